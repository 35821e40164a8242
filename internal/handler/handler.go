package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"novel-fork/internal/middleware"
	"novel-fork/internal/models"
	"novel-fork/internal/service"
	"novel-fork/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Services - сервисы движка, которые обслуживает HTTP-слой.
type Services struct {
	Forks     service.ForkService
	Previews  service.PreviewService
	Bookmarks service.BookmarkService
	Tree      service.BranchTreeService
	PRs       service.PrService
}

// Handler обрабатывает HTTP и WebSocket запросы к движку форков.
type Handler struct {
	forks     service.ForkService
	previews  service.PreviewService
	bookmarks service.BookmarkService
	tree      service.BranchTreeService
	prs       service.PrService

	verifier        *middleware.JWTVerifier
	generationLimit gin.HandlerFunc
	upgrader        websocket.Upgrader
	logger          *zap.Logger
}

// NewHandler создает Handler. generationLimit может быть nil - тогда генерация не ограничивается.
func NewHandler(svc Services, verifier *middleware.JWTVerifier, generationLimit gin.HandlerFunc, allowedOrigins []string, logger *zap.Logger) *Handler {
	if generationLimit == nil {
		generationLimit = func(c *gin.Context) { c.Next() }
	}
	return &Handler{
		forks:           svc.Forks,
		previews:        svc.Previews,
		bookmarks:       svc.Bookmarks,
		tree:            svc.Tree,
		prs:             svc.PRs,
		verifier:        verifier,
		generationLimit: generationLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.Named("Handler"),
	}
}

// RegisterRoutes регистрирует маршруты API под префиксом /api.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api", middleware.Auth(h.verifier))

	forks := api.Group("/reader-forks")
	{
		forks.POST("/by-slug/:slug", h.createFork)
		forks.GET("/by-slug/:slug/exists", h.checkForkExists)
		forks.GET("", h.listMyForks)
		forks.GET("/:forkId", h.getFork)
		forks.DELETE("/:forkId", h.deleteFork)
		forks.PUT("/:forkId/progress", h.updateProgress)

		forks.GET("/:forkId/commits", h.listCommits)
		forks.POST("/:forkId/commits", h.appendCommit)
		forks.POST("/:forkId/commits/generate", h.generationLimit, h.generateCommit)
		forks.POST("/:forkId/rollback", h.rollback)
		forks.POST("/:forkId/rollback-to-branch-point", h.rollbackToBranchPoint)

		forks.GET("/:forkId/ai-preview", h.getAiPreview)
		forks.POST("/:forkId/ai-preview", h.saveAiPreview)
		forks.DELETE("/:forkId/ai-preview", h.clearAiPreview)
		forks.DELETE("/:forkId/ai-preview/:chapterNumber", h.deleteAiPreviewChapter)
		forks.POST("/:forkId/ai-preview/:chapterNumber/summary", h.generationLimit, h.summarizeAiPreview)
		forks.GET("/:forkId/direction-options", h.generationLimit, h.getDirectionOptions)
		forks.GET("/:forkId/stream-choose", h.generationLimit, h.streamChoose)

		forks.GET("/:forkId/bookmarks", h.listBookmarks)
		forks.POST("/:forkId/bookmarks", h.createBookmark)
		forks.PUT("/:forkId/bookmarks/:bookmarkId", h.updateBookmark)
		forks.DELETE("/:forkId/bookmarks/:bookmarkId", h.deleteBookmark)
		forks.GET("/:forkId/bookmarks/:bookmarkId/resolve", h.resolveBookmark)
	}

	stories := api.Group("/stories/:storyId")
	{
		stories.GET("/branch-tree", h.getBranchTree)
		stories.GET("/mainline", h.getMainline)
		stories.GET("/branch-stats", h.getBranchStats)
		stories.GET("/chapters/:chapterId/children", h.getChildBranches)
		stories.GET("/chapters/:chapterId/descendants", h.getDescendants)
		stories.GET("/chapters/:chapterId/ancestors", h.getAncestors)
		stories.GET("/authors/:authorId/branches", h.getAuthorBranches)
	}

	prNovels := api.Group("/pr-novels")
	{
		prNovels.POST("", h.createPrNovel)
		prNovels.GET("/mine", h.listMyPrNovels)
		prNovels.GET("/:id", h.getPrNovel)
		prNovels.PUT("/:id", h.updatePrNovel)
		prNovels.DELETE("/:id", h.deletePrNovel)
		prNovels.POST("/:id/chapters", h.addPrChapter)
		prNovels.PUT("/:id/chapters/:chapterId", h.updatePrChapter)
		prNovels.DELETE("/:id/chapters/:chapterId", h.deletePrChapter)
	}

	pulls := api.Group("/pull-requests")
	{
		pulls.POST("", h.submitPr)
		pulls.GET("/mine", h.listMySubmissions)
		pulls.GET("/received", h.listReceivedSubmissions)
		pulls.GET("/:id", h.getSubmission)
		pulls.POST("/:id/review", h.reviewPr)
	}
}

// --- Вспомогательные функции --- //

// getUserIDFromContext извлекает userID, проставленный middleware.Auth.
func getUserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok || userID == uuid.Nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
			Code: models.ErrCodeTokenInvalid, Message: "Unauthorized",
		})
		return uuid.Nil, false
	}
	return userID, true
}

// parseIDParam разбирает положительный int64 из параметра пути; при ошибке отвечает 400.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		abortBadRequest(c, fmt.Sprintf("invalid %s: %q", name, raw))
		return 0, false
	}
	return id, true
}

func parseIntParam(c *gin.Context, name string) (int, bool) {
	raw := c.Param(name)
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		abortBadRequest(c, fmt.Sprintf("invalid %s: %q", name, raw))
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		abortBadRequest(c, fmt.Sprintf("invalid %s: %q", name, raw))
		return uuid.Nil, false
	}
	return id, true
}

// parsePagination читает cursor и limit из query.
func parsePagination(c *gin.Context) (string, int, bool) {
	cursor := c.Query("cursor")
	limit := utils.DefaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			abortBadRequest(c, "invalid limit")
			return "", 0, false
		}
		limit = v
	}
	return cursor, utils.NormalizeLimit(limit), true
}

// bindJSON разбирает тело запроса; при ошибке отвечает 400.
func (h *Handler) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.logger.Debug("Invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		abortBadRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func abortBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Code: models.ErrCodeBadRequest, Message: message})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
