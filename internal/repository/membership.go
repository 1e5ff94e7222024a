package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/MindBridge/internal/model"
)

// IMembershipRepository defines the interface for circle membership rows.
// Every method that changes an active membership adjusts circles.member_count
// in the same transaction with a store-side increment or clamped decrement.
type IMembershipRepository interface {
	// Join inserts m unless a row for (circle, user) already exists. It
	// reports whether a row was inserted.
	Join(ctx context.Context, m *model.Membership) (bool, error)
	Find(ctx context.Context, circleID, userID string) (*model.Membership, error)
	// Remove deletes the membership and returns the deleted row. A non-empty
	// status restricts the delete to rows in that status.
	Remove(ctx context.Context, circleID, userID string, status model.MembershipStatus) (*model.Membership, error)
	// Approve moves a pending membership to active.
	Approve(ctx context.Context, circleID, userID string) (*model.Membership, error)
	// SetRole changes the role of an active membership.
	SetRole(ctx context.Context, circleID, userID string, role model.Role) (*model.Membership, error)
	ListByCircle(ctx context.Context, circleID string, status model.MembershipStatus) ([]*model.Membership, error)
	ListByUser(ctx context.Context, userID string, status model.MembershipStatus) ([]*model.Membership, error)
	CountActive(ctx context.Context, circleID string) (int64, error)
	CountAdmins(ctx context.Context, circleID string) (int64, error)
	// SharesActiveCircle reports whether both users are active members of at
	// least one common circle.
	SharesActiveCircle(ctx context.Context, userA, userB string) (bool, error)
}

type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) IMembershipRepository {
	return &MembershipRepository{db: db}
}

func incrementMembers(tx *gorm.DB, circleID string) error {
	res := tx.Model(&model.Circle{}).
		Where("id = ?", circleID).
		UpdateColumn("member_count", gorm.Expr("member_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func decrementMembers(tx *gorm.DB, circleID string) error {
	return tx.Model(&model.Circle{}).
		Where("id = ?", circleID).
		UpdateColumn("member_count", gorm.Expr("GREATEST(member_count - 1, 0)")).Error
}

func (r *MembershipRepository) Join(ctx context.Context, m *model.Membership) (bool, error) {
	var inserted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(m)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true
		if m.Status == model.StatusActive {
			return incrementMembers(tx, m.CircleID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *MembershipRepository) Find(ctx context.Context, circleID, userID string) (*model.Membership, error) {
	var m model.Membership
	err := r.db.WithContext(ctx).
		Where("circle_id = ? AND user_id = ?", circleID, userID).
		First(&m).Error
	return validateOne(&m, err)
}

func (r *MembershipRepository) Remove(ctx context.Context, circleID, userID string, status model.MembershipStatus) (*model.Membership, error) {
	var removed model.Membership
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Returning{}).Where("circle_id = ? AND user_id = ?", circleID, userID)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		res := q.Delete(&removed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if removed.Status == model.StatusActive {
			return decrementMembers(tx, circleID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

func (r *MembershipRepository) Approve(ctx context.Context, circleID, userID string) (*model.Membership, error) {
	var m model.Membership
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&m).
			Clauses(clause.Returning{}).
			Where("circle_id = ? AND user_id = ? AND status = ?", circleID, userID, model.StatusPending).
			Updates(map[string]any{"status": model.StatusActive, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return incrementMembers(tx, circleID)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MembershipRepository) SetRole(ctx context.Context, circleID, userID string, role model.Role) (*model.Membership, error) {
	var m model.Membership
	res := r.db.WithContext(ctx).Model(&m).
		Clauses(clause.Returning{}).
		Where("circle_id = ? AND user_id = ? AND status = ?", circleID, userID, model.StatusActive).
		Updates(map[string]any{"role": role, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (r *MembershipRepository) ListByCircle(ctx context.Context, circleID string, status model.MembershipStatus) ([]*model.Membership, error) {
	q := r.db.WithContext(ctx).Where("circle_id = ?", circleID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var members []*model.Membership
	if err := q.Order("joined_at ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return validateAll(members)
}

func (r *MembershipRepository) ListByUser(ctx context.Context, userID string, status model.MembershipStatus) ([]*model.Membership, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var members []*model.Membership
	if err := q.Order("joined_at DESC").Find(&members).Error; err != nil {
		return nil, err
	}
	return validateAll(members)
}

func (r *MembershipRepository) CountActive(ctx context.Context, circleID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Membership{}).
		Where("circle_id = ? AND status = ?", circleID, model.StatusActive).
		Count(&count).Error
	return count, err
}

func (r *MembershipRepository) CountAdmins(ctx context.Context, circleID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Membership{}).
		Where("circle_id = ? AND status = ? AND role = ?", circleID, model.StatusActive, model.RoleAdmin).
		Count(&count).Error
	return count, err
}

func (r *MembershipRepository) SharesActiveCircle(ctx context.Context, userA, userB string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("circle_memberships AS a").
		Joins("JOIN circle_memberships AS b ON a.circle_id = b.circle_id").
		Where("a.user_id = ? AND b.user_id = ?", userA, userB).
		Where("a.status = ? AND b.status = ?", model.StatusActive, model.StatusActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
