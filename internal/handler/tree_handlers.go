package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Чтение дерева веток доступно любому аутентифицированному пользователю.

func (h *Handler) getBranchTree(c *gin.Context) {
	storyID, ok := parseIDParam(c, "storyId")
	if !ok {
		return
	}
	roots, err := h.tree.GetBranchTree(c.Request.Context(), storyID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, roots)
}

func (h *Handler) getMainline(c *gin.Context) {
	storyID, ok := parseIDParam(c, "storyId")
	if !ok {
		return
	}
	chapters, err := h.tree.GetMainline(c.Request.Context(), storyID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, chapters)
}

func (h *Handler) getBranchStats(c *gin.Context) {
	storyID, ok := parseIDParam(c, "storyId")
	if !ok {
		return
	}
	stats, err := h.tree.GetBranchStats(c.Request.Context(), storyID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) getChildBranches(c *gin.Context) {
	storyID, ok := parseIDParam(c, "storyId")
	if !ok {
		return
	}
	chapterID, ok := parseIDParam(c, "chapterId")
	if !ok {
		return
	}
	children, err := h.tree.GetChildBranches(c.Request.Context(), storyID, chapterID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, children)
}

func (h *Handler) getDescendants(c *gin.Context) {
	storyID, ok := parseIDParam(c, "storyId")
	if !ok {
		return
	}
	chapterID, ok := parseIDParam(c, "chapterId")
	if !ok {
		return
	}
	subtree, err := h.tree.GetDescendantTree(c.Request.Context(), storyID, chapterID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, subtree)
}

func (h *Handler) getAncestors(c *gin.Context) {
	storyID, ok := parseIDParam(c, "storyId")
	if !ok {
		return
	}
	chapterID, ok := parseIDParam(c, "chapterId")
	if !ok {
		return
	}
	chain, err := h.tree.GetAncestorChain(c.Request.Context(), storyID, chapterID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, chain)
}

func (h *Handler) getAuthorBranches(c *gin.Context) {
	storyID, ok := parseIDParam(c, "storyId")
	if !ok {
		return
	}
	authorID, ok := parseUUIDParam(c, "authorId")
	if !ok {
		return
	}
	chapters, err := h.tree.GetAuthorBranches(c.Request.Context(), storyID, authorID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, chapters)
}
