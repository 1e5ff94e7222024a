package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
)

const defaultMoodLimit = 30

// LogMoodRequest records the mood for one day. Date defaults to today (UTC).
type LogMoodRequest struct {
	Mood       model.Mood       `json:"mood" binding:"required"`
	Note       string           `json:"note"`
	Visibility model.Visibility `json:"visibility"`
	Date       string           `json:"date"`
}

// IMoodService tracks one mood entry per user per day
type IMoodService interface {
	LogMood(ctx context.Context, userID string, req *LogMoodRequest) (*model.MoodLog, error)
	ListMoods(ctx context.Context, userID string, limit int) ([]*model.MoodLog, error)
	PublicMoods(ctx context.Context, viewer, owner string, limit int) ([]*model.MoodLog, error)
}

// MoodService implements the IMoodService interface
type MoodService struct {
	moods repository.IMoodRepository
	retry RetryPolicy
	now   func() time.Time
}

// NewMoodService creates a new IMoodService instance
func NewMoodService(moods repository.IMoodRepository, retry RetryPolicy) IMoodService {
	return &MoodService{
		moods: moods,
		retry: retry,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// LogMood stores the day's mood, replacing an earlier entry for the same day.
func (s *MoodService) LogMood(ctx context.Context, userID string, req *LogMoodRequest) (*model.MoodLog, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if !req.Mood.Valid() {
		return nil, fmt.Errorf("%w: mood must be good, neutral or bad", model.ErrInvalidInput)
	}
	note := strings.TrimSpace(req.Note)
	if err := model.ValidateMoodNote(note); err != nil {
		return nil, err
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, fmt.Errorf("%w: visibility must be public or private", model.ErrInvalidInput)
	}
	date := req.Date
	if date == "" {
		date = s.now().Format(model.DateLayout)
	}
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: date must look like 2006-01-02", model.ErrInvalidInput)
	}
	if day.After(s.now()) {
		return nil, fmt.Errorf("%w: date is in the future", model.ErrInvalidInput)
	}

	// 同一天重复记录时覆盖，写入是幂等的
	log, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.MoodLog, error) {
		return s.moods.Upsert(ctx, &model.MoodLog{
			ID:         uuid.New().String(),
			UserID:     userID,
			Date:       date,
			Mood:       req.Mood,
			Note:       note,
			Visibility: visibility,
		})
	})
	if err != nil {
		return nil, storeError("log mood", err)
	}
	return log, nil
}

// ListMoods returns the caller's own entries, newest day first.
func (s *MoodService) ListMoods(ctx context.Context, userID string, limit int) ([]*model.MoodLog, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.list(ctx, userID, "", limit)
}

// PublicMoods returns what viewer may see of owner's entries: everything
// when they are the same user, public entries otherwise.
func (s *MoodService) PublicMoods(ctx context.Context, viewer, owner string, limit int) ([]*model.MoodLog, error) {
	if viewer != "" && viewer == owner {
		return s.list(ctx, owner, "", limit)
	}
	return s.list(ctx, owner, model.VisibilityPublic, limit)
}

func (s *MoodService) list(ctx context.Context, userID string, visibility model.Visibility, limit int) ([]*model.MoodLog, error) {
	if limit <= 0 {
		limit = defaultMoodLimit
	}
	limit = min(limit, maxPageSize)
	logs, err := retryValue(ctx, s.retry, func(ctx context.Context) ([]*model.MoodLog, error) {
		return s.moods.ListByUser(ctx, userID, visibility, limit)
	})
	if err != nil {
		return nil, storeError("list moods", err)
	}
	return logs, nil
}
