package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/MindBridge/internal/model"
)

// ICircleRepository defines the interface for circle data operations
type ICircleRepository interface {
	// CreateWithOwner inserts the circle and its owner's admin membership in
	// one transaction. Neither row is visible if either insert fails.
	CreateWithOwner(ctx context.Context, circle *model.Circle, owner *model.Membership) error
	FindByID(ctx context.Context, id string) (*model.Circle, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Circle, error)
	List(ctx context.Context, offset, limit int) ([]*model.Circle, error)
	Update(ctx context.Context, id string, update *model.CircleUpdate) (*model.Circle, error)
	// ReconcileMemberCount resets member_count to the number of active
	// memberships and returns the new value.
	ReconcileMemberCount(ctx context.Context, id string) (int, error)
}

// CircleRepository implements ICircleRepository on gorm
type CircleRepository struct {
	db *gorm.DB
}

// NewCircleRepository creates a new ICircleRepository instance
func NewCircleRepository(db *gorm.DB) ICircleRepository {
	return &CircleRepository{db: db}
}

func (r *CircleRepository) CreateWithOwner(ctx context.Context, circle *model.Circle, owner *model.Membership) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle.MemberCount = 1
		if err := tx.Create(circle).Error; err != nil {
			return translate(err)
		}
		if err := tx.Create(owner).Error; err != nil {
			return fmt.Errorf("%w: %w", ErrOwnerMembership, err)
		}
		return nil
	})
}

func (r *CircleRepository) FindByID(ctx context.Context, id string) (*model.Circle, error) {
	var circle model.Circle
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&circle).Error
	return validateOne(&circle, err)
}

func (r *CircleRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Circle, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var circles []*model.Circle
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("name ASC").
		Find(&circles).Error
	if err != nil {
		return nil, err
	}
	return validateAll(circles)
}

func (r *CircleRepository) List(ctx context.Context, offset, limit int) ([]*model.Circle, error) {
	var circles []*model.Circle
	err := r.db.WithContext(ctx).
		Order("member_count DESC, created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&circles).Error
	if err != nil {
		return nil, err
	}
	return validateAll(circles)
}

func (r *CircleRepository) Update(ctx context.Context, id string, update *model.CircleUpdate) (*model.Circle, error) {
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.Description != nil {
		fields["description"] = *update.Description
	}
	if update.Tags != nil {
		fields["tags"] = update.Tags
	}
	if update.Visibility != nil {
		fields["visibility"] = *update.Visibility
	}

	res := r.db.WithContext(ctx).Model(&model.Circle{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *CircleRepository) ReconcileMemberCount(ctx context.Context, id string) (int, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE circles SET member_count = (
			SELECT COUNT(*) FROM circle_memberships WHERE circle_id = ? AND status = ?
		), updated_at = ? WHERE id = ?`,
		id, model.StatusActive, time.Now().UTC(), id,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	circle, err := r.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return circle.MemberCount, nil
}
