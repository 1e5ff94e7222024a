package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/Gopher0727/MindBridge/config"
)

// Producer sends records synchronously so callers learn about failures.
type Producer struct {
	producer sarama.SyncProducer
	config   *config.KafkaConfig
}

func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = cfg.Producer.MaxRetries
	saramaConfig.Producer.Retry.Backoff = time.Duration(cfg.Producer.RetryBackoffMs) * time.Millisecond
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond
	saramaConfig.Metadata.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerWith(producer, cfg), nil
}

// NewProducerWith wraps an existing sarama producer.
func NewProducerWith(producer sarama.SyncProducer, cfg *config.KafkaConfig) *Producer {
	return &Producer{producer: producer, config: cfg}
}

// Produce sends one record. A nil key lets the partitioner choose.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte, headers ...sarama.RecordHeader) (partition int32, offset int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Value:   sarama.ByteEncoder(value),
		Headers: headers,
	}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}

	partition, offset, err = p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}
	return partition, offset, nil
}

// ProduceWithRetry retries Produce with exponential backoff on top of the
// client's own retries, giving up early when ctx is done.
func (p *Producer) ProduceWithRetry(ctx context.Context, topic string, key, value []byte, maxRetries int, headers ...sarama.RecordHeader) (partition int32, offset int64, err error) {
	backoff := time.Duration(p.config.Producer.RetryBackoffMs) * time.Millisecond
	for attempt := 0; ; attempt++ {
		partition, offset, err = p.Produce(ctx, topic, key, value, headers...)
		if err == nil || ctx.Err() != nil {
			return partition, offset, err
		}
		if attempt >= maxRetries {
			return 0, 0, fmt.Errorf("failed to send message after %d attempts: %w", attempt+1, err)
		}
		if err := sleep(ctx, backoff); err != nil {
			return 0, 0, err
		}
		backoff *= 2
	}
}

func (p *Producer) Close() error {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			return fmt.Errorf("failed to close kafka producer: %w", err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
