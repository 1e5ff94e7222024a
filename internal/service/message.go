package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
	"github.com/Gopher0727/MindBridge/utils/snowflake"
)

const (
	defaultConversationLimit = 50
	maxConversationLimit     = 200
)

var ErrMessageNotFound = errors.New("message not found")

// SendMessageRequest represents a request to send a direct message
type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

// IMessageService defines the interface for direct message operations
type IMessageService interface {
	Send(ctx context.Context, senderID, receiverID, content string) (*model.DirectMessage, error)
	Conversation(ctx context.Context, userID, otherID string, before time.Time, limit int) ([]*model.DirectMessage, error)
	MarkRead(ctx context.Context, userID, messageID string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// MessageService implements the IMessageService interface
type MessageService struct {
	emitter
	messages repository.IMessageRepository
	friends  IFriendService
	ids      *snowflake.Generator
	retry    RetryPolicy
}

// NewMessageService creates a new IMessageService instance
func NewMessageService(
	messages repository.IMessageRepository,
	friends IFriendService,
	ids *snowflake.Generator,
	publisher EventPublisher,
	retry RetryPolicy,
	log *logger.Logger,
) IMessageService {
	if log == nil {
		log = logger.NewNop()
	}
	return &MessageService{
		emitter:  newEmitter(publisher, log.Named("message")),
		messages: messages,
		friends:  friends,
		ids:      ids,
		retry:    retry,
	}
}

// Send stores a message between friends and then notifies the receiver.
// The notification is best effort; the stored row is the source of truth.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID, content string) (*model.DirectMessage, error) {
	if senderID == "" {
		return nil, ErrUnauthenticated
	}
	content = strings.TrimSpace(content)
	if err := model.ValidateMessageContent(content); err != nil {
		return nil, err
	}
	ok, err := s.friends.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFriends
	}

	id, err := s.ids.NextString()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	msg := &model.DirectMessage{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, storeError("create message", err)
	}

	s.emit(ctx, model.NewEvent(model.EventDirectMessage, senderID, "", msg, receiverID))
	return msg, nil
}

// Conversation returns up to limit messages between the two users sent
// before the given time, oldest first. A zero before means now.
func (s *MessageService) Conversation(ctx context.Context, userID, otherID string, before time.Time, limit int) ([]*model.DirectMessage, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultConversationLimit
	}
	limit = min(limit, maxConversationLimit)

	msgs, err := retryValue(ctx, s.retry, func(ctx context.Context) ([]*model.DirectMessage, error) {
		return s.messages.Conversation(ctx, userID, otherID, before, limit)
	})
	if err != nil {
		return nil, storeError("list messages", err)
	}
	return msgs, nil
}

// MarkRead is open to the receiver only.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	msg, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.DirectMessage, error) {
		return s.messages.FindByID(ctx, messageID)
	})
	if err != nil {
		return lookupError("find message", err, ErrMessageNotFound)
	}
	if msg.ReceiverID != userID {
		return ErrNotAuthorized
	}
	if msg.IsRead {
		return nil
	}
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.messages.MarkRead(ctx, messageID)
	})
	if err != nil {
		return lookupError("mark message read", err, ErrMessageNotFound)
	}

	s.emit(ctx, model.NewEvent(model.EventDirectMessageRead, userID, "", map[string]string{"message_id": messageID}, msg.SenderID))
	return nil
}

func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrUnauthenticated
	}
	n, err := retryValue(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return s.messages.CountUnread(ctx, userID)
	})
	if err != nil {
		return 0, storeError("count unread", err)
	}
	return n, nil
}
