package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/MindBridge/config"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
)

// ErrSkipRetry marks a handler failure that another attempt cannot fix; the
// message goes straight to the dead letter topic.
var ErrSkipRetry = errors.New("message cannot be processed")

// DLQ headers describing why a record was parked.
const (
	HeaderError          = "x-error"
	HeaderOriginTopic    = "x-origin-topic"
	HeaderOriginOffset   = "x-origin-offset"
	HeaderOriginPartition = "x-origin-partition"
)

// MessageHandler processes one consumed record.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer joins a consumer group, retries failed records and parks the
// ones that keep failing on the dead letter topic.
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	config        *config.KafkaConfig
	handler       MessageHandler
	dlqProducer   *Producer
	topics        []string
	log           *logger.Logger

	readyOnce sync.Once
	ready     chan struct{}
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

type consumerGroupHandler struct {
	consumer *Consumer
}

func NewConsumer(cfg *config.KafkaConfig, topics []string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond
	saramaConfig.Metadata.Timeout = 10 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	dlqProducer, err := NewProducer(cfg)
	if err != nil {
		consumerGroup.Close()
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}
	return newConsumer(consumerGroup, cfg, topics, handler, dlqProducer, log), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg *config.KafkaConfig, topics []string, handler MessageHandler, dlq *Producer, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Consumer{
		consumerGroup: group,
		config:        cfg,
		handler:       handler,
		dlqProducer:   dlq,
		topics:        topics,
		log:           log.Named("kafka-consumer"),
		ready:         make(chan struct{}),
	}
}

// Start consumes in the background until ctx is done or Stop is called.
// It returns once the first session is set up, or when ctx ends first.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler := &consumerGroupHandler{consumer: c}
		for ctx.Err() == nil {
			// Consume returns on every rebalance and must be called again
			if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.log.Error("consume failed", zap.Error(err))
				if sleep(ctx, time.Second) != nil {
					return
				}
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.log.Warn("consumer group error", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if err := c.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer group: %w", err)
	}
	if c.dlqProducer != nil {
		if err := c.dlqProducer.Close(); err != nil {
			return fmt.Errorf("failed to close DLQ producer: %w", err)
		}
	}
	return nil
}

func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.consumer.readyOnce.Do(func() { close(h.consumer.ready) })
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.consumer.process(session.Context(), message); err != nil {
				// 会话结束时不提交位点，消息会在重新分配后再次投递
				return nil
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// process runs the handler with retries and parks the record on the DLQ when
// it keeps failing. It only returns an error when ctx ended first, in which
// case the record must not be marked.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	err := c.handleWithRetry(ctx, message)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if dlqErr := c.sendToDLQ(ctx, message, err); dlqErr != nil {
		c.log.Error("failed to park message on the dead letter topic",
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.Error(dlqErr))
	}
	return nil
}

func (c *Consumer) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	maxRetries := c.config.Consumer.MaxRetries
	backoff := time.Duration(c.config.Consumer.RetryBackoffMs) * time.Millisecond

	for attempt := 0; ; attempt++ {
		err := c.handler(ctx, message)
		if err == nil || errors.Is(err, ErrSkipRetry) {
			return err
		}
		if attempt >= maxRetries {
			return fmt.Errorf("failed after %d attempts: %w", attempt+1, err)
		}
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}

func (c *Consumer) sendToDLQ(ctx context.Context, message *sarama.ConsumerMessage, cause error) error {
	if c.dlqProducer == nil || c.config.Topics.DLQ == "" {
		return fmt.Errorf("no dead letter topic configured: %w", cause)
	}
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderError), Value: []byte(cause.Error())},
		{Key: []byte(HeaderOriginTopic), Value: []byte(message.Topic)},
		{Key: []byte(HeaderOriginPartition), Value: []byte(strconv.FormatInt(int64(message.Partition), 10))},
		{Key: []byte(HeaderOriginOffset), Value: []byte(strconv.FormatInt(message.Offset, 10))},
	}
	if _, _, err := c.dlqProducer.Produce(ctx, c.config.Topics.DLQ, message.Key, message.Value, headers...); err != nil {
		return err
	}
	c.log.Warn("message parked on the dead letter topic",
		zap.String("topic", message.Topic),
		zap.Int64("offset", message.Offset),
		zap.Error(cause))
	return nil
}
