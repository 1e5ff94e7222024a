package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/MindBridge/internal/model"
)

// IMessageRepository defines the interface for direct message operations
type IMessageRepository interface {
	Create(ctx context.Context, msg *model.DirectMessage) error
	FindByID(ctx context.Context, id string) (*model.DirectMessage, error)
	// Conversation returns up to limit messages exchanged between the two
	// users, oldest first. A non-zero before only returns older messages.
	Conversation(ctx context.Context, userA, userB string, before time.Time, limit int) ([]*model.DirectMessage, error)
	MarkRead(ctx context.Context, id string) error
	CountUnread(ctx context.Context, receiverID string) (int64, error)
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) IMessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, msg *model.DirectMessage) error {
	return translate(r.db.WithContext(ctx).Create(msg).Error)
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*model.DirectMessage, error) {
	var msg model.DirectMessage
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	return validateOne(&msg, err)
}

func (r *MessageRepository) Conversation(ctx context.Context, userA, userB string, before time.Time, limit int) ([]*model.DirectMessage, error) {
	q := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA)
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}

	var messages []*model.DirectMessage
	if err := q.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}
	// 倒序取最新的 limit 条，再翻转为时间正序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return validateAll(messages)
}

func (r *MessageRepository) MarkRead(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&model.DirectMessage{}).
		Where("id = ?", id).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, receiverID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.DirectMessage{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Count(&count).Error
	return count, err
}
