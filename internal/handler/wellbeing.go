package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/MindBridge/internal/service"
)

type MoodHandler struct {
	moodService service.IMoodService
}

func NewMoodHandler(moodService service.IMoodService) *MoodHandler {
	return &MoodHandler{moodService: moodService}
}

func (h *MoodHandler) LogMood(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.LogMoodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	entry, err := h.moodService.LogMood(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (h *MoodHandler) ListMoods(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	moods, err := h.moodService.ListMoods(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, moods)
}

// UserMoods lists another user's public moods
func (h *MoodHandler) UserMoods(c *gin.Context) {
	moods, err := h.moodService.PublicMoods(c.Request.Context(), c.GetString("user_id"), c.Param("id"), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, moods)
}

type JournalHandler struct {
	journalService service.IJournalService
}

func NewJournalHandler(journalService service.IJournalService) *JournalHandler {
	return &JournalHandler{journalService: journalService}
}

func (h *JournalHandler) CreateEntry(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.JournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	entry, err := h.journalService.CreateEntry(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (h *JournalHandler) ListEntries(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	entries, err := h.journalService.ListEntries(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *JournalHandler) DeleteEntry(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.journalService.DeleteEntry(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UserJournal lists the entries of another user the caller may read
func (h *JournalHandler) UserJournal(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	entries, err := h.journalService.ListVisibleEntries(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}
