package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository/memory"
	"github.com/Gopher0727/MindBridge/middleware/jwt"
)

func newAuthService(t *testing.T) (*AuthService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := NewAuthService(store.Users(), jwt.NewTokenManager("test-secret", 1, 24)).(*AuthService)
	svc.bcryptCost = bcrypt.MinCost
	return svc, store
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, &RegisterRequest{Username: "quiet_river", Email: " River@Example.COM ", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, "river@example.com", user.Email)
	assert.Equal(t, "quiet_river", user.DisplayName)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	for _, login := range []string{"quiet_river", "RIVER@example.com"} {
		resp, err := svc.Login(ctx, &LoginRequest{Login: login, Password: "s3cret-pass"})
		require.NoError(t, err, login)
		assert.Equal(t, user.ID, resp.User.ID)

		got, err := svc.ValidateToken(ctx, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	}

	_, err = svc.Login(ctx, &LoginRequest{Login: "quiet_river", Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, &LoginRequest{Login: "nobody", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.ValidateToken(ctx, "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRegister_Rejections(t *testing.T) {
	svc, store := newAuthService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, &RegisterRequest{Username: "taken", Email: "a@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, &RegisterRequest{Username: "taken", Email: "b@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
	_, err = svc.Register(ctx, &RegisterRequest{Username: "other", Email: "A@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	for name, req := range map[string]*RegisterRequest{
		"short username": {Username: "ab", Email: "c@example.com", Password: "password1"},
		"bad email":      {Username: "carol", Email: "carol", Password: "password1"},
		"named email":    {Username: "carol", Email: "Carol <c@example.com>", Password: "password1"},
		"short password": {Username: "carol", Email: "c@example.com", Password: "short"},
	} {
		_, err := svc.Register(ctx, req)
		assert.ErrorIs(t, err, model.ErrInvalidInput, name)
	}

	store.FailOn("users.create", errConnReset)
	_, err = svc.Register(ctx, &RegisterRequest{Username: "dave", Email: "d@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestValidateToken_DeletedUser(t *testing.T) {
	svc, _ := newAuthService(t)
	token, err := svc.tokenManager.GenerateToken("ghost", "ghost")
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, &RegisterRequest{Username: "mia", Email: "mia@example.com", Password: "password1"})
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, user.ID, &UpdateProfileRequest{
		DisplayName: " Mia ",
		Bio:         "Learning to slow down",
		Interests:   []string{"Sleep", "sleep", " Running "},
	})
	require.NoError(t, err)
	assert.Equal(t, "Mia", updated.DisplayName)
	assert.Equal(t, []string{"sleep", "running"}, []string(updated.Interests))

	profile, err := svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Learning to slow down", profile.Bio)

	_, err = svc.UpdateProfile(ctx, "", &UpdateProfileRequest{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.UpdateProfile(ctx, "missing", &UpdateProfileRequest{})
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = svc.Profile(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
