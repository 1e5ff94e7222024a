package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/MindBridge/internal/service"
)

const (
	defaultPage = 1
	defaultSize = 20
	maxSize     = 100
	maxPage     = 100000
)

// errorStatus maps a service outcome to an HTTP status and the message shown
// to the caller. Store failures are checked first: a broken store must never
// read as a denial.
func errorStatus(err error) (int, string) {
	switch {
	case service.IsStoreFailure(err):
		return http.StatusServiceUnavailable, "the service is temporarily unavailable, please try again"
	case errors.Is(err, service.ErrPartialCreate):
		return http.StatusInternalServerError, "circle was not created"

	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, err.Error()

	case errors.Is(err, service.ErrNotAuthorized):
		return http.StatusForbidden, "you do not have permission to do that"
	case errors.Is(err, service.ErrNotFriends):
		return http.StatusForbidden, err.Error()

	case errors.Is(err, service.ErrAlreadyMember),
		errors.Is(err, service.ErrFriendshipExists),
		errors.Is(err, service.ErrUserAlreadyExists):
		return http.StatusConflict, err.Error()

	case errors.Is(err, service.ErrCircleNotFound),
		errors.Is(err, service.ErrMembershipNotFound),
		errors.Is(err, service.ErrPostNotFound),
		errors.Is(err, service.ErrCommentNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrFriendshipNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrJournalNotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, service.ErrCannotRemoveSelf),
		errors.Is(err, service.ErrCannotDemoteSelf),
		errors.Is(err, service.ErrCannotFriendSelf),
		errors.Is(err, service.ErrNothingToUpdate),
		service.IsInvalidInput(err):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

func respondError(c *gin.Context, err error) {
	code, msg := errorStatus(err)
	_ = c.Error(err)
	c.JSON(code, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// currentUser returns the authenticated caller, writing a 401 when there is
// none.
func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

func pagination(c *gin.Context) (page, size int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	if err != nil || page < 1 {
		page = defaultPage
	}
	page = min(page, maxPage)
	size, err = strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultSize)))
	if err != nil || size < 1 {
		size = defaultSize
	}
	return page, min(size, maxSize)
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return min(limit, maxSize)
}
