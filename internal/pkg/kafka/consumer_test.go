package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	ctx context.Context

	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) Marked() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "mindbridge.events" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newClaim(msgs ...*sarama.ConsumerMessage) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

func record(offset int64, value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:     "mindbridge.events",
		Partition: 0,
		Offset:    offset,
		Key:       []byte("c1"),
		Value:     []byte(value),
	}
}

func TestConsumeClaim_MarksHandledMessages(t *testing.T) {
	var got []string
	c := newConsumer(nil, testKafkaConfig(), nil, func(_ context.Context, msg *sarama.ConsumerMessage) error {
		got = append(got, string(msg.Value))
		return nil
	}, nil, nil)

	session := &fakeSession{ctx: context.Background()}
	handler := &consumerGroupHandler{consumer: c}
	require.NoError(t, handler.ConsumeClaim(session, newClaim(record(1, "a"), record(2, "b"))))

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, []int64{1, 2}, session.Marked())
}

func TestConsumeClaim_RetriesTransientFailures(t *testing.T) {
	calls := 0
	c := newConsumer(nil, testKafkaConfig(), nil, func(context.Context, *sarama.ConsumerMessage) error {
		calls++
		if calls < 3 {
			return errors.New("redis unavailable")
		}
		return nil
	}, nil, nil)

	session := &fakeSession{ctx: context.Background()}
	handler := &consumerGroupHandler{consumer: c}
	require.NoError(t, handler.ConsumeClaim(session, newClaim(record(7, "x"))))

	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{7}, session.Marked())
}

func TestConsumeClaim_ParksOnDeadLetterTopic(t *testing.T) {
	cfg := testKafkaConfig()
	var parked *sarama.ProducerMessage
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		parked = msg
		return nil
	})
	dlq := NewProducerWith(mock, cfg)
	defer dlq.Close()

	calls := 0
	c := newConsumer(nil, cfg, nil, func(context.Context, *sarama.ConsumerMessage) error {
		calls++
		return errors.New("still broken")
	}, dlq, nil)

	session := &fakeSession{ctx: context.Background()}
	handler := &consumerGroupHandler{consumer: c}
	require.NoError(t, handler.ConsumeClaim(session, newClaim(record(42, "payload"))))

	assert.Equal(t, cfg.Consumer.MaxRetries+1, calls)
	assert.Equal(t, []int64{42}, session.Marked())
	require.NotNil(t, parked)
	assert.Equal(t, cfg.Topics.DLQ, parked.Topic)
	assert.Equal(t, "mindbridge.events", header(parked, HeaderOriginTopic))
	assert.Equal(t, "42", header(parked, HeaderOriginOffset))
	assert.Equal(t, "0", header(parked, HeaderOriginPartition))
	assert.Contains(t, header(parked, HeaderError), "still broken")
	value, err := parked.Value.Encode()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(value))
}

func TestConsumeClaim_SkipRetryGoesStraightToDLQ(t *testing.T) {
	cfg := testKafkaConfig()
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndSucceed()
	dlq := NewProducerWith(mock, cfg)
	defer dlq.Close()

	calls := 0
	c := newConsumer(nil, cfg, nil, func(_ context.Context, msg *sarama.ConsumerMessage) error {
		calls++
		_, err := DecodeEvent(msg)
		return err
	}, dlq, nil)

	session := &fakeSession{ctx: context.Background()}
	handler := &consumerGroupHandler{consumer: c}
	require.NoError(t, handler.ConsumeClaim(session, newClaim(record(3, "garbage"))))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []int64{3}, session.Marked())
}

func TestConsumeClaim_StopsWithoutMarkingOnShutdown(t *testing.T) {
	cfg := testKafkaConfig()
	cfg.Consumer.RetryBackoffMs = int(time.Hour / time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(nil, cfg, nil, func(context.Context, *sarama.ConsumerMessage) error {
		cancel()
		return errors.New("interrupted")
	}, nil, nil)

	session := &fakeSession{ctx: ctx}
	handler := &consumerGroupHandler{consumer: c}
	require.NoError(t, handler.ConsumeClaim(session, newClaim(record(9, "x"))))

	assert.Empty(t, session.Marked())
}

func TestSetupSignalsReady(t *testing.T) {
	c := newConsumer(nil, testKafkaConfig(), nil, nil, nil, nil)
	handler := &consumerGroupHandler{consumer: c}

	require.NoError(t, handler.Setup(&fakeSession{ctx: context.Background()}))
	require.NoError(t, handler.Setup(&fakeSession{ctx: context.Background()}))

	select {
	case <-c.Ready():
	default:
		t.Fatal("consumer not ready after setup")
	}
}
