package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/Gopher0727/MindBridge/internal/model"
)

const HeaderEventType = "x-event-type"

// EventPublisher writes domain events to the events topic, keyed so that the
// events of one circle stay in order.
type EventPublisher struct {
	producer   *Producer
	topic      string
	maxRetries int
}

func NewEventPublisher(producer *Producer, topic string, maxRetries int) *EventPublisher {
	return &EventPublisher{producer: producer, topic: topic, maxRetries: maxRetries}
}

func (p *EventPublisher) Publish(ctx context.Context, event *model.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	header := sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(event.Type)}
	_, _, err = p.producer.ProduceWithRetry(ctx, p.topic, []byte(event.Key()), value, p.maxRetries, header)
	return err
}

// DecodeEvent parses a record written by EventPublisher.
func DecodeEvent(message *sarama.ConsumerMessage) (*model.Event, error) {
	var event model.Event
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSkipRetry, err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: event without type", ErrSkipRetry)
	}
	return &event, nil
}
