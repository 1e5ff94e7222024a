package repository

import (
	"context"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/Gopher0727/MindBridge/internal/model"
)

// IUserRepository defines the interface for user data operations
type IUserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, id, displayName, bio, avatarURL string, interests []string) (*model.User, error)
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) IUserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *UserRepository) findBy(ctx context.Context, column, value string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(column+" = ?", value).First(&user).Error
	return validateOne(&user, err)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findBy(ctx, "id", id)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findBy(ctx, "username", username)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findBy(ctx, "email", email)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id, displayName, bio, avatarURL string, interests []string) (*model.User, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"display_name": displayName,
			"bio":          bio,
			"avatar_url":   avatarURL,
			"interests":    pq.StringArray(interests),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}
