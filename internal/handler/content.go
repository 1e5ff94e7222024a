package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/MindBridge/internal/service"
)

type ContentHandler struct {
	contentService service.IContentService
}

func NewContentHandler(contentService service.IContentService) *ContentHandler {
	return &ContentHandler{contentService: contentService}
}

func (h *ContentHandler) CreatePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	post, err := h.contentService.CreatePost(c.Request.Context(), userID, c.Param("id"), req.Title, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, post)
}

// ListPosts lists a circle's posts, newest first
func (h *ContentHandler) ListPosts(c *gin.Context) {
	page, size := pagination(c)
	posts, err := h.contentService.ListPosts(c.Request.Context(), c.GetString("user_id"), c.Param("id"), page, size)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts, "page": page, "size": size})
}

func (h *ContentHandler) GetPost(c *gin.Context) {
	post, err := h.contentService.GetPost(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, post)
}

func (h *ContentHandler) EditPost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	post, err := h.contentService.EditPost(c.Request.Context(), userID, c.Param("id"), req.Title, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, post)
}

func (h *ContentHandler) DeletePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.contentService.DeletePost(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ContentHandler) CreateComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	comment, err := h.contentService.CreateComment(c.Request.Context(), userID, c.Param("id"), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, comment)
}

func (h *ContentHandler) ListComments(c *gin.Context) {
	comments, err := h.contentService.ListComments(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, comments)
}

func (h *ContentHandler) EditComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	comment, err := h.contentService.EditComment(c.Request.Context(), userID, c.Param("id"), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, comment)
}

func (h *ContentHandler) DeleteComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.contentService.DeleteComment(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
