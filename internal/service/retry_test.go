package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/MindBridge/config"
	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
	"github.com/Gopher0727/MindBridge/utils/workerpool"
)

func TestRetryPolicy_Do(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

	t.Run("transient errors are retried until success", func(t *testing.T) {
		calls := 0
		err := policy.Do(ctx, func(context.Context) error {
			calls++
			if calls < 3 {
				return errConnReset
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		calls := 0
		err := policy.Do(ctx, func(context.Context) error {
			calls++
			return errConnReset
		})
		assert.ErrorIs(t, err, errConnReset)
		assert.Equal(t, 3, calls)
	})

	for name, permanent := range map[string]error{
		"not found": repository.ErrNotFound,
		"duplicate": repository.ErrDuplicate,
		"malformed": model.ErrMalformedRow,
		"canceled":  context.Canceled,
	} {
		t.Run(name+" is not retried", func(t *testing.T) {
			calls := 0
			err := policy.Do(ctx, func(context.Context) error {
				calls++
				return permanent
			})
			assert.ErrorIs(t, err, permanent)
			assert.Equal(t, 1, calls)
		})
	}

	t.Run("cancellation stops the backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryPolicy{Attempts: 5, Backoff: time.Hour}
		calls := 0
		err := slow.Do(ctx, func(context.Context) error {
			calls++
			cancel()
			return errConnReset
		})
		assert.ErrorIs(t, err, errConnReset)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		_ = RetryPolicy{}.Do(ctx, func(context.Context) error {
			calls++
			return errors.New("boom")
		})
		assert.Equal(t, 1, calls)
	})
}

func TestRetryValue(t *testing.T) {
	calls := 0
	v, err := retryValue(context.Background(), RetryPolicy{Attempts: 2}, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errConnReset
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestNewRetryPolicy(t *testing.T) {
	p := NewRetryPolicy(&config.LedgerConfig{RetryAttempts: 0, RetryBackoffMs: 25})
	assert.Equal(t, 1, p.Attempts)
	assert.Equal(t, 25*time.Millisecond, p.Backoff)
}

type notifierFunc func(ctx context.Context, userID string, event *model.Event) error

func (f notifierFunc) Notify(ctx context.Context, userID string, event *model.Event) error {
	return f(ctx, userID, event)
}

func TestDirectPublisher(t *testing.T) {
	var got []string
	pub := NewDirectPublisher(notifierFunc(func(_ context.Context, userID string, _ *model.Event) error {
		got = append(got, userID)
		if userID == "offline" {
			return errors.New("no session")
		}
		return nil
	}))

	event := model.NewEvent(model.EventMemberJoined, "u1", "c1", nil, "admin", "offline", "other")
	err := pub.Publish(context.Background(), event)
	assert.Error(t, err)
	assert.Equal(t, []string{"admin", "offline", "other"}, got)

	assert.NoError(t, pub.Publish(context.Background(), model.NewEvent(model.EventMemberJoined, "u1", "c1", nil)))
}

type rejectingDispatcher struct{}

func (rejectingDispatcher) TrySubmit(func()) bool { return false }

func TestAsyncPublisher(t *testing.T) {
	pool := workerpool.New(2, 8, nil)
	pool.Start()

	events := &recordingPublisher{}
	pub := NewAsyncPublisher(events, pool, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pub.Publish(ctx, model.NewEvent(model.EventPostCreated, "u1", "c1", nil)))
	// 请求结束不影响已排队的发布
	cancel()
	pool.Stop()

	assert.Equal(t, []model.EventType{model.EventPostCreated}, events.types())

	full := NewAsyncPublisher(events, rejectingDispatcher{}, time.Second, nil)
	assert.ErrorIs(t, full.Publish(context.Background(), model.NewEvent(model.EventPostCreated, "u1", "c1", nil)), ErrPublishQueueFull)
}
