package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/service"
)

func TestErrorStatus(t *testing.T) {
	storeDown := fmt.Errorf("%w: find membership: %w", service.ErrStoreUnavailable, errors.New("i/o timeout"))

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"store failure", storeDown, http.StatusServiceUnavailable},
		{"partial create", fmt.Errorf("%w: owner row", service.ErrPartialCreate), http.StatusInternalServerError},
		{"not authorized", service.ErrNotAuthorized, http.StatusForbidden},
		{"not friends", service.ErrNotFriends, http.StatusForbidden},
		{"unauthenticated", service.ErrUnauthenticated, http.StatusUnauthorized},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized},
		{"already member", service.ErrAlreadyMember, http.StatusConflict},
		{"friendship exists", service.ErrFriendshipExists, http.StatusConflict},
		{"circle not found", service.ErrCircleNotFound, http.StatusNotFound},
		{"journal not found", service.ErrJournalNotFound, http.StatusNotFound},
		{"remove self", service.ErrCannotRemoveSelf, http.StatusBadRequest},
		{"invalid input", fmt.Errorf("%w: name too long", model.ErrInvalidInput), http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, msg := errorStatus(tc.err)
			assert.Equal(t, tc.code, code)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestErrorStatus_HidesStoreDetails(t *testing.T) {
	err := fmt.Errorf("%w: %w", service.ErrStoreUnavailable, errors.New("dial tcp 10.0.0.3:5432"))
	_, msg := errorStatus(err)
	assert.NotContains(t, msg, "10.0.0.3")
}

func TestPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string][2]int{
		"":                          {1, 20},
		"?page=3&size=5":            {3, 5},
		"?page=0&size=-1":           {1, 20},
		"?page=x&size=500":          {1, 100},
		"?page=9223372036854775807": {maxPage, 20},
	}
	for query, want := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/circles"+query, nil)
		page, size := pagination(c)
		assert.Equal(t, want, [2]int{page, size}, query)
	}
}
