// Package consumer turns records from the events topic into live
// notifications for the users named on each event.
package consumer

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/MindBridge/internal/pkg/kafka"
	"github.com/Gopher0727/MindBridge/internal/service"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
)

type EventRelay struct {
	notifier service.Notifier
	log      *logger.Logger
}

func NewEventRelay(notifier service.Notifier, log *logger.Logger) *EventRelay {
	if log == nil {
		log = logger.NewNop()
	}
	return &EventRelay{notifier: notifier, log: log.Named("event-relay")}
}

// Handle is a kafka.MessageHandler. Records that do not decode are not
// retried; a failed notification is, for every recipient of the event.
func (r *EventRelay) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := kafka.DecodeEvent(message)
	if err != nil {
		r.log.Warn("dropping undecodable event",
			zap.String("topic", message.Topic),
			zap.Int64("offset", message.Offset),
			zap.Error(err))
		return err
	}

	var errs []error
	for _, userID := range event.Recipients {
		if userID == "" {
			continue
		}
		if err := r.notifier.Notify(ctx, userID, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		r.log.Warn("event relay failed",
			zap.String("type", string(event.Type)),
			zap.Int("failed", len(errs)),
			zap.Error(errors.Join(errs...)))
		return errors.Join(errs...)
	}

	r.log.Debug("event relayed",
		zap.String("type", string(event.Type)),
		zap.Int("recipients", len(event.Recipients)))
	return nil
}
