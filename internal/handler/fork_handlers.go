package handler

import (
	"net/http"

	"novel-fork/internal/models"
	"novel-fork/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type updateProgressRequest struct {
	ChapterSortOrder int `json:"chapter_sort_order" binding:"min=0"`
}

type appendCommitRequest struct {
	BranchPointID   *int64 `json:"branch_point_id"`
	OptionID        *int64 `json:"option_id"`
	Title           string `json:"title" binding:"required"`
	ContentMarkdown string `json:"content_markdown" binding:"required"`
}

type generateCommitRequest struct {
	BranchPointID *int64 `json:"branch_point_id"`
	OptionID      *int64 `json:"option_id"`
	Title         string `json:"title"`
}

type rollbackRequest struct {
	CommitID int64 `json:"commit_id" binding:"required"`
}

type rollbackToBranchPointRequest struct {
	BranchPointSortOrder int `json:"branch_point_sort_order" binding:"required,min=1"`
}

func (h *Handler) createFork(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	fork, err := h.forks.CreateFork(c.Request.Context(), userID, c.Param("slug"))
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, fork)
}

func (h *Handler) checkForkExists(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	exists, err := h.forks.CheckForkExists(c.Request.Context(), userID, c.Param("slug"))
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (h *Handler) listMyForks(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	cursor, limit, ok := parsePagination(c)
	if !ok {
		return
	}
	forks, next, err := h.forks.ListMyForks(c.Request.Context(), userID, cursor, limit)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	if forks == nil {
		forks = []models.Fork{}
	}
	c.JSON(http.StatusOK, models.PaginatedResponse{Data: forks, NextCursor: next})
}

func (h *Handler) getFork(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	fork, err := h.forks.GetFork(c.Request.Context(), forkID, userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, fork)
}

func (h *Handler) deleteFork(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	if err := h.forks.DeleteFork(c.Request.Context(), forkID, userID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	h.logger.Info("Fork deleted", zap.Int64("forkID", forkID), zap.Stringer("userID", userID))
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateProgress(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	var req updateProgressRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.forks.UpdateReadingProgress(c.Request.Context(), forkID, userID, req.ChapterSortOrder); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listCommits(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	commits, err := h.forks.ListCommits(c.Request.Context(), forkID, userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	if commits == nil {
		commits = []models.Commit{}
	}
	c.JSON(http.StatusOK, commits)
}

func (h *Handler) appendCommit(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	var req appendCommitRequest
	if !h.bindJSON(c, &req) {
		return
	}
	commit, err := h.forks.AppendCommit(c.Request.Context(), service.AppendCommitInput{
		ForkID:          forkID,
		RequesterID:     userID,
		BranchPointID:   req.BranchPointID,
		OptionID:        req.OptionID,
		Title:           req.Title,
		ContentMarkdown: req.ContentMarkdown,
	})
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, commit)
}

// generateCommit генерирует главу целиком и возвращает коммит. Потоковый вариант - stream-choose.
func (h *Handler) generateCommit(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	var req generateCommitRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	commit, err := h.forks.GenerateAndAppendCommit(c.Request.Context(), service.GenerateCommitInput{
		ForkID:        forkID,
		RequesterID:   userID,
		BranchPointID: req.BranchPointID,
		OptionID:      req.OptionID,
		Title:         req.Title,
	}, nil)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, commit)
}

func (h *Handler) rollback(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	var req rollbackRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.forks.Rollback(c.Request.Context(), forkID, userID, req.CommitID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) rollbackToBranchPoint(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	var req rollbackToBranchPointRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.forks.RollbackToBranchPoint(c.Request.Context(), forkID, userID, req.BranchPointSortOrder); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}
