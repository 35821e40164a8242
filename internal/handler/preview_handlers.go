package handler

import (
	"net/http"

	"novel-fork/internal/models"
	"novel-fork/internal/service"

	"github.com/gin-gonic/gin"
)

type savePreviewRequest struct {
	ChapterNumber   int    `json:"chapter_number" binding:"required,min=1"`
	Title           string `json:"title" binding:"required"`
	ContentMarkdown string `json:"content_markdown" binding:"required"`
}

func (h *Handler) getAiPreview(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	previews, err := h.previews.GetAiPreview(c.Request.Context(), forkID, userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	if previews == nil {
		previews = []models.PreviewChapter{}
	}
	c.JSON(http.StatusOK, previews)
}

func (h *Handler) saveAiPreview(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	var req savePreviewRequest
	if !h.bindJSON(c, &req) {
		return
	}
	saved, err := h.previews.SaveAiPreview(c.Request.Context(), service.SavePreviewInput{
		ForkID:          forkID,
		RequesterID:     userID,
		ChapterNumber:   req.ChapterNumber,
		Title:           req.Title,
		ContentMarkdown: req.ContentMarkdown,
	})
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *Handler) clearAiPreview(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	if err := h.previews.ClearAiPreview(c.Request.Context(), forkID, userID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteAiPreviewChapter(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	chapterNumber, ok := parseIntParam(c, "chapterNumber")
	if !ok {
		return
	}
	if err := h.previews.DeleteAiPreviewChapter(c.Request.Context(), forkID, userID, chapterNumber); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

// summarizeAiPreview строит краткое содержание главы предпросмотра.
// С ?async=true задача уходит в фоновый пул, и клиент получает task_id.
func (h *Handler) summarizeAiPreview(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	chapterNumber, ok := parseIntParam(c, "chapterNumber")
	if !ok {
		return
	}

	if c.Query("async") == "true" {
		taskID, err := h.previews.ScheduleSummary(c.Request.Context(), forkID, userID, chapterNumber)
		if err != nil {
			handleServiceError(c, err, h.logger)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
		return
	}

	summary, err := h.previews.GenerateAiPreviewSummary(c.Request.Context(), forkID, userID, chapterNumber)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapter_number": chapterNumber, "summary": summary})
}

func (h *Handler) getDirectionOptions(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	options, err := h.previews.GetDirectionOptions(c.Request.Context(), forkID, userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, options)
}
