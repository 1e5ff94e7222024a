package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/MindBridge/internal/service"
)

// SendMessageRequest is the body of POST /messages
type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

type MessageHandler struct {
	messageService service.IMessageService
}

func NewMessageHandler(messageService service.IMessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// Send delivers a direct message to a friend
func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.messageService.Send(c.Request.Context(), userID, req.ReceiverID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// Conversation pages backwards through the messages exchanged with user_id.
// Pass ?before=<RFC3339> to load older messages.
func (h *MessageHandler) Conversation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(c, fmt.Errorf("before must be an RFC3339 timestamp: %w", err))
			return
		}
		before = t
	}

	msgs, err := h.messageService.Conversation(c.Request.Context(), userID, c.Param("user_id"), before, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, msgs)
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.messageService.MarkRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
}

func (h *MessageHandler) Unread(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := h.messageService.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": n})
}
