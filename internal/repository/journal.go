package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/MindBridge/internal/model"
)

// IJournalRepository defines the interface for journal entries
type IJournalRepository interface {
	Create(ctx context.Context, entry *model.JournalEntry) error
	FindByID(ctx context.Context, id string) (*model.JournalEntry, error)
	Delete(ctx context.Context, id string) error
	// ListByUser returns the owner's entries newest first, restricted to the
	// given visibilities when any are passed.
	ListByUser(ctx context.Context, userID string, visibilities ...model.JournalVisibility) ([]*model.JournalEntry, error)
}

type JournalRepository struct {
	db *gorm.DB
}

func NewJournalRepository(db *gorm.DB) IJournalRepository {
	return &JournalRepository{db: db}
}

func (r *JournalRepository) Create(ctx context.Context, entry *model.JournalEntry) error {
	return translate(r.db.WithContext(ctx).Create(entry).Error)
}

func (r *JournalRepository) FindByID(ctx context.Context, id string) (*model.JournalEntry, error) {
	var entry model.JournalEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	return validateOne(&entry, err)
}

func (r *JournalRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.JournalEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *JournalRepository) ListByUser(ctx context.Context, userID string, visibilities ...model.JournalVisibility) ([]*model.JournalEntry, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(visibilities) > 0 {
		q = q.Where("visibility IN ?", visibilities)
	}
	var entries []*model.JournalEntry
	if err := q.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return validateAll(entries)
}
