package jwt

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(now time.Time) *TokenManager {
	tm := NewTokenManager("test-secret", 24, 2)
	tm.now = func() time.Time { return now }
	return tm
}

func TestGenerateAndParse(t *testing.T) {
	now := time.Now()
	tm := newTestManager(now)

	token, err := tm.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestParseToken_Errors(t *testing.T) {
	now := time.Now()
	tm := newTestManager(now)
	token, err := tm.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := newTestManager(now.Add(25 * time.Hour))
		_, err := later.ParseToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("not yet valid", func(t *testing.T) {
		earlier := newTestManager(now.Add(-time.Hour))
		_, err := earlier.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other-secret", 24, 2)
		_, err := other.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tm.ParseToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1"})
		s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tm.ParseToken(s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing user id", func(t *testing.T) {
		s, err := tm.GenerateToken("", "ghost")
		require.NoError(t, err)
		_, err = tm.ParseToken(s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRefreshToken(t *testing.T) {
	now := time.Now()
	token, err := newTestManager(now).GenerateToken("user-1", "alice")
	require.NoError(t, err)

	t.Run("too early", func(t *testing.T) {
		_, err := newTestManager(now.Add(time.Hour)).RefreshToken(token)
		assert.ErrorIs(t, err, ErrNotRefreshable)
	})

	t.Run("inside window before expiry", func(t *testing.T) {
		refreshed, err := newTestManager(now.Add(23 * time.Hour)).RefreshToken(token)
		require.NoError(t, err)
		assert.NotEmpty(t, refreshed)
	})

	t.Run("shortly after expiry", func(t *testing.T) {
		tm := newTestManager(now.Add(25 * time.Hour))
		refreshed, err := tm.RefreshToken(token)
		require.NoError(t, err)

		claims, err := tm.ParseToken(refreshed)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
	})

	t.Run("long after expiry", func(t *testing.T) {
		_, err := newTestManager(now.Add(30 * time.Hour)).RefreshToken(token)
		assert.ErrorIs(t, err, ErrNotRefreshable)
	})
}
