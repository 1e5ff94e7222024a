package service

import (
	"context"
	"errors"
	"time"

	"github.com/Gopher0727/MindBridge/config"
	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
)

// RetryPolicy bounds retries of reads and idempotent updates against the row
// store. Inserts never go through it.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// NoRetry runs every call exactly once.
var NoRetry = RetryPolicy{Attempts: 1}

func NewRetryPolicy(cfg *config.LedgerConfig) RetryPolicy {
	return RetryPolicy{
		Attempts: max(cfg.RetryAttempts, 1),
		Backoff:  time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
	}
}

// transient reports whether a repository error is worth another attempt.
// Missing rows, conflicts and malformed rows are answers, not outages.
func transient(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, model.ErrMalformedRow),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Do calls fn until it succeeds, fails permanently or the attempts run out,
// doubling the wait after each transient failure.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := max(p.Attempts, 1)
	backoff := p.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); !transient(err) || attempt >= attempts {
			return err
		}
		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
			backoff *= 2
		}
	}
}

// retryValue is Do for calls that return a value.
func retryValue[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}
