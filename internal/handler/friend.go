package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/MindBridge/internal/service"
)

type FriendHandler struct {
	friendService service.IFriendService
}

func NewFriendHandler(friendService service.IFriendService) *FriendHandler {
	return &FriendHandler{friendService: friendService}
}

// List returns friends plus incoming and outgoing requests
func (h *FriendHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	list, err := h.friendService.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *FriendHandler) SendRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.FriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	f, err := h.friendService.SendRequest(c.Request.Context(), userID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, f)
}

func (h *FriendHandler) Accept(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	f, err := h.friendService.Accept(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, f)
}

func (h *FriendHandler) Reject(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.friendService.Reject(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "friend request rejected"})
}

func (h *FriendHandler) Cancel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.friendService.Cancel(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "friend request cancelled"})
}

func (h *FriendHandler) Remove(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.friendService.Remove(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *FriendHandler) Status(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	status, err := h.friendService.Status(c.Request.Context(), userID, c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "status": status})
}
