package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/MindBridge/internal/model"
)

// IMoodRepository defines the interface for mood logs
type IMoodRepository interface {
	// Upsert writes the log for (user, date), replacing an existing one.
	Upsert(ctx context.Context, log *model.MoodLog) (*model.MoodLog, error)
	// ListByUser returns the newest logs first. An empty visibility matches all.
	ListByUser(ctx context.Context, userID string, visibility model.Visibility, limit int) ([]*model.MoodLog, error)
}

type MoodRepository struct {
	db *gorm.DB
}

func NewMoodRepository(db *gorm.DB) IMoodRepository {
	return &MoodRepository{db: db}
}

func (r *MoodRepository) Upsert(ctx context.Context, log *model.MoodLog) (*model.MoodLog, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"mood", "note", "visibility"}),
	}).Create(log).Error
	if err != nil {
		return nil, err
	}

	var stored model.MoodLog
	err = r.db.WithContext(ctx).Where("user_id = ? AND date = ?", log.UserID, log.Date).First(&stored).Error
	return validateOne(&stored, err)
}

func (r *MoodRepository) ListByUser(ctx context.Context, userID string, visibility model.Visibility, limit int) ([]*model.MoodLog, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if visibility != "" {
		q = q.Where("visibility = ?", visibility)
	}
	var logs []*model.MoodLog
	if err := q.Order("date DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return validateAll(logs)
}
