package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/MindBridge/internal/model"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
)

// EventPublisher delivers domain events to the event stream.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.Event) error
}

// Notifier pushes a live notification to one user's open connections.
type Notifier interface {
	Notify(ctx context.Context, userID string, event *model.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *model.Event) error { return nil }

// NopPublisher drops every event.
var NopPublisher EventPublisher = nopPublisher{}

// emitter publishes events after a mutation has committed. Failures are
// logged and never change the mutation's outcome.
type emitter struct {
	publisher EventPublisher
	log       *logger.Logger
}

func newEmitter(publisher EventPublisher, log *logger.Logger) emitter {
	if publisher == nil {
		publisher = NopPublisher
	}
	if log == nil {
		log = logger.NewNop()
	}
	return emitter{publisher: publisher, log: log}
}

func (e emitter) emit(ctx context.Context, event *model.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.log.WarnContext(ctx, "failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("key", event.Key()),
			zap.Error(err),
		)
	}
}

// directPublisher hands each event straight to the notifier for every
// recipient. It stands in for the event stream when that is disabled.
type directPublisher struct {
	notifier Notifier
}

func NewDirectPublisher(notifier Notifier) EventPublisher {
	return &directPublisher{notifier: notifier}
}

func (p *directPublisher) Publish(ctx context.Context, event *model.Event) error {
	var errs []error
	for _, userID := range event.Recipients {
		if err := p.notifier.Notify(ctx, userID, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrPublishQueueFull is returned when the async publisher has no room left.
var ErrPublishQueueFull = errors.New("event queue is full")

// Dispatcher runs jobs in the background; *workerpool.Pool satisfies it.
type Dispatcher interface {
	TrySubmit(job func()) bool
}

// asyncPublisher moves publishing off the request path. Events are dropped,
// not queued without bound, when the dispatcher is saturated.
type asyncPublisher struct {
	next       EventPublisher
	dispatcher Dispatcher
	timeout    time.Duration
	log        *logger.Logger
}

func NewAsyncPublisher(next EventPublisher, dispatcher Dispatcher, timeout time.Duration, log *logger.Logger) EventPublisher {
	if log == nil {
		log = logger.NewNop()
	}
	return &asyncPublisher{next: next, dispatcher: dispatcher, timeout: timeout, log: log.Named("events")}
}

func (p *asyncPublisher) Publish(ctx context.Context, event *model.Event) error {
	// 请求结束后 ctx 会被取消，这里只保留其中的 trace 信息
	detached := context.WithoutCancel(ctx)
	ok := p.dispatcher.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(detached, p.timeout)
		defer cancel()
		if err := p.next.Publish(ctx, event); err != nil {
			p.log.WarnContext(ctx, "failed to publish event",
				zap.String("type", string(event.Type)),
				zap.String("key", event.Key()),
				zap.Error(err),
			)
		}
	})
	if !ok {
		return ErrPublishQueueFull
	}
	return nil
}
