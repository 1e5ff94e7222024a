package jwt

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const issuer = "mindbridge"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrNotRefreshable   = errors.New("token is outside the refresh window")
)

// Claims identify the caller. UserID is the stable identity every ledger
// operation receives as its acting user.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret     []byte
	expireDur  time.Duration
	refreshDur time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, expireHours, refreshHours int) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		expireDur:  time.Duration(expireHours) * time.Hour,
		refreshDur: time.Duration(refreshHours) * time.Hour,
		now:        time.Now,
	}
}

func (tm *TokenManager) GenerateToken(userID, username string) (string, error) {
	now := tm.now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expireDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

func (tm *TokenManager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return tm.secret, nil
}

func (tm *TokenManager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, tm.keyFunc,
		jwt.WithIssuer(issuer), jwt.WithTimeFunc(tm.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshToken issues a new token when the given one expires within the
// refresh window, or expired less than a refresh window ago.
func (tm *TokenManager) RefreshToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, tm.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ExpiresAt == nil || claims.UserID == "" {
		return "", ErrInvalidToken
	}

	now := tm.now()
	expiry := claims.ExpiresAt.Time
	if now.After(expiry) && now.Sub(expiry) > tm.refreshDur {
		return "", ErrNotRefreshable
	}
	if !now.After(expiry) && expiry.Sub(now) > tm.refreshDur {
		return "", ErrNotRefreshable
	}
	return tm.GenerateToken(claims.UserID, claims.Username)
}
