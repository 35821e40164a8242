package handler

import (
	"context"
	"net/http"

	"novel-fork/internal/models"
	"novel-fork/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type reviewRequest struct {
	Status  models.SubmissionStatus `json:"status" binding:"required"`
	Comment *string                 `json:"comment"`
}

// --- PR-новеллы --- //

func (h *Handler) createPrNovel(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	var req service.CreatePrNovelInput
	if !h.bindJSON(c, &req) {
		return
	}
	novel, err := h.prs.CreatePrNovel(c.Request.Context(), userID, req)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, novel)
}

func (h *Handler) listMyPrNovels(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	novels, err := h.prs.ListMyPrNovels(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	if novels == nil {
		novels = []models.PrNovel{}
	}
	c.JSON(http.StatusOK, novels)
}

func (h *Handler) getPrNovel(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	novelID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	novel, err := h.prs.GetPrNovel(c.Request.Context(), userID, novelID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, novel)
}

func (h *Handler) updatePrNovel(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	novelID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req service.UpdatePrNovelInput
	if !h.bindJSON(c, &req) {
		return
	}
	novel, err := h.prs.UpdatePrNovel(c.Request.Context(), userID, novelID, req)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, novel)
}

func (h *Handler) deletePrNovel(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	novelID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.prs.DeletePrNovel(c.Request.Context(), userID, novelID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addPrChapter(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	novelID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req service.PrChapterInput
	if !h.bindJSON(c, &req) {
		return
	}
	chapter, err := h.prs.AddPrChapter(c.Request.Context(), userID, novelID, req)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, chapter)
}

func (h *Handler) updatePrChapter(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	novelID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	chapterID, ok := parseIDParam(c, "chapterId")
	if !ok {
		return
	}
	var req service.PrChapterInput
	if !h.bindJSON(c, &req) {
		return
	}
	chapter, err := h.prs.UpdatePrChapter(c.Request.Context(), userID, novelID, chapterID, req)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, chapter)
}

func (h *Handler) deletePrChapter(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	novelID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	chapterID, ok := parseIDParam(c, "chapterId")
	if !ok {
		return
	}
	if err := h.prs.DeletePrChapter(c.Request.Context(), userID, novelID, chapterID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Заявки (pull requests) --- //

func (h *Handler) submitPr(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	var req service.SubmitPrInput
	if !h.bindJSON(c, &req) {
		return
	}
	submission, err := h.prs.SubmitPr(c.Request.Context(), userID, req)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	h.logger.Info("Pull request submitted", zap.Int64("submissionID", submission.ID), zap.Stringer("userID", userID))
	c.JSON(http.StatusCreated, submission)
}

func (h *Handler) listMySubmissions(c *gin.Context) {
	h.listSubmissions(c, h.prs.ListMySubmissions)
}

func (h *Handler) listReceivedSubmissions(c *gin.Context) {
	h.listSubmissions(c, h.prs.ListReceivedSubmissions)
}

func (h *Handler) listSubmissions(c *gin.Context, list func(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.PrSubmission, string, error)) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	cursor, limit, ok := parsePagination(c)
	if !ok {
		return
	}
	submissions, next, err := list(c.Request.Context(), userID, cursor, limit)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	if submissions == nil {
		submissions = []models.PrSubmission{}
	}
	c.JSON(http.StatusOK, models.PaginatedResponse{Data: submissions, NextCursor: next})
}

func (h *Handler) getSubmission(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	submission, err := h.prs.GetSubmission(c.Request.Context(), userID, submissionID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, submission)
}

func (h *Handler) reviewPr(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	submissionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if !h.bindJSON(c, &req) {
		return
	}
	submission, err := h.prs.ReviewPr(c.Request.Context(), userID, submissionID, req.Status, req.Comment)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	h.logger.Info("Pull request reviewed",
		zap.Int64("submissionID", submissionID),
		zap.String("status", string(submission.Status)),
		zap.Stringer("reviewerID", userID),
	)
	c.JSON(http.StatusOK, submission)
}
