package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/MindBridge/internal/model"
)

// IPostRepository defines the interface for posts and their comments
type IPostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	FindPost(ctx context.Context, id string) (*model.Post, error)
	ListPosts(ctx context.Context, circleID string, offset, limit int) ([]*model.Post, error)
	UpdatePost(ctx context.Context, id, title, body string) (*model.Post, error)
	// DeletePost removes the post together with its comments.
	DeletePost(ctx context.Context, id string) error

	// CreateComment inserts the comment and bumps the post's comment_count.
	CreateComment(ctx context.Context, comment *model.Comment) error
	FindComment(ctx context.Context, id string) (*model.Comment, error)
	ListComments(ctx context.Context, postID string) ([]*model.Comment, error)
	UpdateComment(ctx context.Context, id, body string) (*model.Comment, error)
	DeleteComment(ctx context.Context, id string) error
}

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) IPostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) CreatePost(ctx context.Context, post *model.Post) error {
	return translate(r.db.WithContext(ctx).Create(post).Error)
}

func (r *PostRepository) FindPost(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error
	return validateOne(&post, err)
}

func (r *PostRepository) ListPosts(ctx context.Context, circleID string, offset, limit int) ([]*model.Post, error) {
	var posts []*model.Post
	err := r.db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return validateAll(posts)
}

// UpdatePost rewrites title and body only; author and circle never change.
func (r *PostRepository) UpdatePost(ctx context.Context, id, title, body string) (*model.Post, error) {
	res := r.db.WithContext(ctx).Model(&model.Post{}).
		Where("id = ?", id).
		Updates(map[string]any{"title": title, "body": body, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindPost(ctx, id)
}

func (r *PostRepository) DeletePost(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *PostRepository) CreateComment(ctx context.Context, comment *model.Comment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return translate(err)
		}
		res := tx.Model(&model.Post{}).
			Where("id = ?", comment.PostID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *PostRepository) FindComment(ctx context.Context, id string) (*model.Comment, error) {
	var comment model.Comment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error
	return validateOne(&comment, err)
}

func (r *PostRepository) ListComments(ctx context.Context, postID string) ([]*model.Comment, error) {
	var comments []*model.Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return validateAll(comments)
}

func (r *PostRepository) UpdateComment(ctx context.Context, id, body string) (*model.Comment, error) {
	res := r.db.WithContext(ctx).Model(&model.Comment{}).
		Where("id = ?", id).
		Updates(map[string]any{"body": body, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindComment(ctx, id)
}

func (r *PostRepository) DeleteComment(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment model.Comment
		if err := tx.Where("id = ?", id).First(&comment).Error; err != nil {
			return translate(err)
		}
		if err := tx.Delete(&comment).Error; err != nil {
			return err
		}
		return tx.Model(&model.Post{}).
			Where("id = ?", comment.PostID).
			UpdateColumn("comment_count", gorm.Expr("GREATEST(comment_count - 1, 0)")).Error
	})
}
