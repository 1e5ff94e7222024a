package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/MindBridge/internal/model"
)

// IFriendshipRepository defines the interface for friendship rows
type IFriendshipRepository interface {
	// Create fails with ErrDuplicate when the pair already has a row.
	Create(ctx context.Context, f *model.Friendship) error
	FindByID(ctx context.Context, id string) (*model.Friendship, error)
	FindBetween(ctx context.Context, userA, userB string) (*model.Friendship, error)
	// Accept moves a pending friendship to accepted.
	Accept(ctx context.Context, id string) (*model.Friendship, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*model.Friendship, error)
}

type FriendshipRepository struct {
	db *gorm.DB
}

func NewFriendshipRepository(db *gorm.DB) IFriendshipRepository {
	return &FriendshipRepository{db: db}
}

func (r *FriendshipRepository) Create(ctx context.Context, f *model.Friendship) error {
	f.PairKey = model.PairKey(f.RequesterID, f.AddresseeID)
	return translate(r.db.WithContext(ctx).Create(f).Error)
}

func (r *FriendshipRepository) FindByID(ctx context.Context, id string) (*model.Friendship, error) {
	var f model.Friendship
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error
	return validateOne(&f, err)
}

func (r *FriendshipRepository) FindBetween(ctx context.Context, userA, userB string) (*model.Friendship, error) {
	var f model.Friendship
	err := r.db.WithContext(ctx).Where("pair_key = ?", model.PairKey(userA, userB)).First(&f).Error
	return validateOne(&f, err)
}

func (r *FriendshipRepository) Accept(ctx context.Context, id string) (*model.Friendship, error) {
	res := r.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("id = ? AND status = ?", id, model.FriendshipPending).
		Updates(map[string]any{"status": model.FriendshipAccepted, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *FriendshipRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Friendship{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FriendshipRepository) ListByUser(ctx context.Context, userID string) ([]*model.Friendship, error) {
	var rows []*model.Friendship
	err := r.db.WithContext(ctx).
		Where("requester_id = ? OR addressee_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return validateAll(rows)
}
