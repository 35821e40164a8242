package handler

import (
	"net/http"

	"novel-fork/internal/models"
	"novel-fork/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listBookmarks(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	bookmarks, err := h.bookmarks.ListBookmarks(c.Request.Context(), forkID, userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	if bookmarks == nil {
		bookmarks = []models.Bookmark{}
	}
	c.JSON(http.StatusOK, bookmarks)
}

func (h *Handler) createBookmark(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	var req service.BookmarkInput
	if !h.bindJSON(c, &req) {
		return
	}
	bookmark, err := h.bookmarks.CreateBookmark(c.Request.Context(), forkID, userID, req)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, bookmark)
}

func (h *Handler) updateBookmark(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	bookmarkID, ok := parseIDParam(c, "bookmarkId")
	if !ok {
		return
	}
	var req service.BookmarkUpdateInput
	if !h.bindJSON(c, &req) {
		return
	}
	bookmark, err := h.bookmarks.UpdateBookmark(c.Request.Context(), forkID, userID, bookmarkID, req)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, bookmark)
}

func (h *Handler) deleteBookmark(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	bookmarkID, ok := parseIDParam(c, "bookmarkId")
	if !ok {
		return
	}
	if err := h.bookmarks.DeleteBookmark(c.Request.Context(), forkID, userID, bookmarkID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) resolveBookmark(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}
	bookmarkID, ok := parseIDParam(c, "bookmarkId")
	if !ok {
		return
	}
	position, err := h.bookmarks.ResolveBookmark(c.Request.Context(), forkID, userID, bookmarkID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, position)
}
