package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/service"
)

type CircleHandler struct {
	circleService service.ICircleService
}

func NewCircleHandler(circleService service.ICircleService) *CircleHandler {
	return &CircleHandler{circleService: circleService}
}

// CreateCircle creates a circle owned by the caller
func (h *CircleHandler) CreateCircle(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.CreateCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	circle, err := h.circleService.CreateCircle(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, circle)
}

// ListCircles lists circles, most members first
func (h *CircleHandler) ListCircles(c *gin.Context) {
	page, size := pagination(c)
	circles, err := h.circleService.ListCircles(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"circles": circles, "page": page, "size": size})
}

// MyCircles lists the caller's memberships, pending ones included
func (h *CircleHandler) MyCircles(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	circles, err := h.circleService.ListUserCircles(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, circles)
}

func (h *CircleHandler) GetCircle(c *gin.Context) {
	circle, err := h.circleService.GetCircle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, circle)
}

// UpdateCircle applies a partial update; only admins may call it
func (h *CircleHandler) UpdateCircle(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var update model.CircleUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, err)
		return
	}

	circle, err := h.circleService.UpdateCircle(c.Request.Context(), userID, c.Param("id"), &update)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, circle)
}

// Join joins a public circle directly or files a request for a private one
func (h *CircleHandler) Join(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	m, err := h.circleService.RequestJoin(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	code := http.StatusOK
	if m.Status == model.StatusPending {
		code = http.StatusAccepted
	}
	c.JSON(code, m)
}

func (h *CircleHandler) Leave(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.circleService.Leave(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "left circle"})
}

func (h *CircleHandler) ListMembers(c *gin.Context) {
	userID := c.GetString("user_id")
	members, err := h.circleService.ListMembers(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, members)
}

func (h *CircleHandler) ListPending(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	pending, err := h.circleService.ListPending(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, pending)
}

func (h *CircleHandler) Approve(c *gin.Context) {
	h.adminAction(c, h.circleService.ApproveJoin, "join request approved")
}

func (h *CircleHandler) Reject(c *gin.Context) {
	h.adminAction(c, h.circleService.RejectJoin, "join request rejected")
}

func (h *CircleHandler) RemoveMember(c *gin.Context) {
	h.adminAction(c, h.circleService.RemoveMember, "member removed")
}

// adminAction runs an admin operation on the member named in the path.
func (h *CircleHandler) adminAction(c *gin.Context, action func(ctx context.Context, actingUser, circleID, targetUser string) error, done string) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := action(c.Request.Context(), userID, c.Param("id"), c.Param("user_id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": done})
}

func (h *CircleHandler) SetRole(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	err := h.circleService.SetRole(c.Request.Context(), userID, c.Param("id"), c.Param("user_id"), req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "role updated", "role": req.Role})
}

// Permissions reports the caller's standing in the circle. Anonymous callers
// are answered as outsiders.
func (h *CircleHandler) Permissions(c *gin.Context) {
	perms, err := h.circleService.Permissions(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, perms)
}

// Reconcile recounts active members and repairs the cached count
func (h *CircleHandler) Reconcile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := h.circleService.ReconcileMemberCount(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"member_count": count})
}
