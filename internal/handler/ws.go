package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/MindBridge/internal/service"
	"github.com/Gopher0727/MindBridge/internal/ws"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
)

type WSHandler struct {
	authService service.IAuthService
	hub         *ws.Hub
	log         *logger.Logger
}

func NewWSHandler(authService service.IAuthService, hub *ws.Hub, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &WSHandler{authService: authService, hub: hub, log: log.Named("ws-handler")}
}

// Serve upgrades GET /ws?token=<jwt>. Browsers cannot set headers on a
// WebSocket handshake, so the token travels in the query string; a bearer
// header is accepted too.
func (h *WSHandler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	user, err := h.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	// Upgrade 失败时 upgrader 已经写好了响应
	if err := h.hub.ServeWS(c.Writer, c.Request, user.ID); err != nil {
		h.log.WarnContext(c.Request.Context(), "websocket upgrade failed",
			zap.String("user_id", user.ID), zap.Error(err))
	}
}
