package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/MindBridge/config"
	"github.com/Gopher0727/MindBridge/middleware/jwt"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
	"github.com/Gopher0727/MindBridge/utils/ratelimit"
)

const traceHeader = "X-Trace-ID"

type MiddlewareManager struct {
	tokenManager *jwt.TokenManager
	rateLimiter  ratelimit.Limiter
	logger       *logger.Logger
	rateLimitCfg *config.RateLimitConfig
}

// NewMiddlewareManager builds the shared middleware. A nil limiter disables
// rate limiting, which is what happens when Redis is turned off.
func NewMiddlewareManager(
	tokenManager *jwt.TokenManager,
	rateLimiter ratelimit.Limiter,
	log *logger.Logger,
	rateLimitCfg *config.RateLimitConfig,
) *MiddlewareManager {
	if log == nil {
		log = logger.NewNop()
	}
	return &MiddlewareManager{
		tokenManager: tokenManager,
		rateLimiter:  rateLimiter,
		logger:       log.Named("http"),
		rateLimitCfg: rateLimitCfg,
	}
}

// JWTAuth rejects requests without a valid bearer token.
func (m *MiddlewareManager) JWTAuth() gin.HandlerFunc {
	return m.auth(true)
}

// OptionalAuth identifies the caller when a token is present and lets
// anonymous requests through, so public circles can be read without an account.
func (m *MiddlewareManager) OptionalAuth() gin.HandlerFunc {
	return m.auth(false)
}

func (m *MiddlewareManager) auth(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
				return
			}
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := m.tokenManager.ParseToken(parts[1])
		if err != nil {
			m.logger.WarnContext(c.Request.Context(), "token validation failed",
				zap.String("ip", c.ClientIP()), zap.Error(err))

			message := "invalid token"
			switch {
			case errors.Is(err, jwt.ErrExpiredToken):
				message = "token has expired"
			case errors.Is(err, jwt.ErrTokenNotYetValid):
				message = "token not yet valid"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// RateLimit applies the budget of class per user, or per IP for anonymous
// callers. It must run after the auth middleware to see the user.
func (m *MiddlewareManager) RateLimit(class ratelimit.Class) gin.HandlerFunc {
	rule := ratelimit.RuleFor(class, m.rateLimitCfg)

	return func(c *gin.Context) {
		if m.rateLimiter == nil {
			c.Next()
			return
		}

		var key string
		if userID := c.GetString("user_id"); userID != "" {
			key = fmt.Sprintf("user:%s:%s", userID, class)
		} else {
			key = fmt.Sprintf("ip:%s:%s", c.ClientIP(), class)
		}

		decision, err := m.rateLimiter.Allow(c.Request.Context(), key, rule)
		if err != nil {
			m.logger.ErrorContext(c.Request.Context(), "rate limit check failed",
				zap.String("key", key), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "rate limit check failed, please try again",
			})
			return
		}

		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
				"remaining":   decision.Remaining,
			})
			return
		}

		c.Next()
	}
}

// Logger assigns a trace ID to every request and logs its outcome.
func (m *MiddlewareManager) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		ctx := logger.WithTraceID(c.Request.Context(), c.GetHeader(traceHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(traceHeader, logger.GetTraceID(ctx))

		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, zap.String("errors", errs.String()))
		}

		// Request.Context() 此时已带上 JWTAuth 写入的 user_id
		log := m.logger.WithContext(c.Request.Context())
		switch {
		case statusCode >= 500:
			log.Error("server error", fields...)
		case statusCode >= 400:
			log.Warn("client error", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}

func (m *MiddlewareManager) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (m *MiddlewareManager) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.ErrorContext(c.Request.Context(), "panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()

		c.Next()
	}
}
