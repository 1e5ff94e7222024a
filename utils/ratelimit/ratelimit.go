// Package ratelimit throttles API callers with fixed-window counters kept in
// Redis, so every node of the cluster shares one budget per caller.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/MindBridge/config"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
)

// Class groups endpoints sharing one budget.
type Class string

const (
	ClassRegister Class = "register"
	ClassLogin    Class = "login"
	ClassMessage  Class = "message"
	ClassAPI      Class = "api"
)

// Rule allows Limit calls per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
	Reset(ctx context.Context, key string, rule Rule) error
}

// WindowLimiter counts calls per key and window with INCR. When Redis fails
// it lets the call through if failOpen is set and reports an error otherwise.
type WindowLimiter struct {
	client   redis.Cmdable
	log      *logger.Logger
	failOpen bool
	now      func() time.Time
}

func NewWindowLimiter(client redis.Cmdable, log *logger.Logger, failOpen bool) *WindowLimiter {
	if log == nil {
		log = logger.NewNop()
	}
	return &WindowLimiter{
		client:   client,
		log:      log.Named("ratelimit"),
		failOpen: failOpen,
		now:      time.Now,
	}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	now := l.now()
	bucket, reset := l.bucket(key, rule, now)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	// 多留一秒，避免窗口边界上计数先于窗口过期
	pipe.Expire(ctx, bucket, rule.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.log.WarnContext(ctx, "rate limit check failed, allowing request",
				zap.String("key", key), zap.Error(err))
			return Decision{Allowed: true, Remaining: -1}, nil
		}
		return Decision{}, fmt.Errorf("failed to check rate limit: %w", err)
	}

	count := int(incr.Val())
	d := Decision{
		Allowed:   count <= rule.Limit,
		Remaining: max(rule.Limit-count, 0),
	}
	if !d.Allowed {
		d.RetryAfter = reset.Sub(now)
		l.log.DebugContext(ctx, "rate limit exceeded",
			zap.String("key", key), zap.Int("count", count), zap.Int("limit", rule.Limit))
	}
	return d, nil
}

// Reset clears the current window for key.
func (l *WindowLimiter) Reset(ctx context.Context, key string, rule Rule) error {
	bucket, _ := l.bucket(key, rule, l.now())
	if err := l.client.Del(ctx, bucket).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to reset rate limit for %s: %w", key, err)
	}
	return nil
}

// bucket names the counter of the window containing now and returns when
// that window ends.
func (l *WindowLimiter) bucket(key string, rule Rule, now time.Time) (string, time.Time) {
	start := now.Truncate(rule.Window)
	return fmt.Sprintf("ratelimit:%s:%d", key, start.Unix()), start.Add(rule.Window)
}

// RuleFor returns the per-minute budget configured for class. Unknown classes
// get the general API budget.
func RuleFor(class Class, cfg *config.RateLimitConfig) Rule {
	limit := cfg.APIPerMinute
	switch class {
	case ClassRegister:
		limit = cfg.RegisterPerMinute
	case ClassLogin:
		limit = cfg.LoginPerMinute
	case ClassMessage:
		limit = cfg.MessagePerMinute
	}
	return Rule{Limit: limit, Window: time.Minute}
}
