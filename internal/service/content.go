package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
	"github.com/Gopher0727/MindBridge/utils/snowflake"
)

// PostRequest is the body of a post create or edit
type PostRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body" binding:"required"`
}

// CommentRequest is the body of a comment create or edit
type CommentRequest struct {
	Body string `json:"body" binding:"required"`
}

// IContentService gates posts and comments behind circle membership.
// Authors may always edit and delete their own content; circle admins may
// edit and delete anyone's.
type IContentService interface {
	CreatePost(ctx context.Context, author, circleID, title, body string) (*model.Post, error)
	GetPost(ctx context.Context, viewer, postID string) (*model.Post, error)
	ListPosts(ctx context.Context, viewer, circleID string, page, size int) ([]*model.Post, error)
	EditPost(ctx context.Context, actingUser, postID, title, body string) (*model.Post, error)
	DeletePost(ctx context.Context, actingUser, postID string) error

	CreateComment(ctx context.Context, author, postID, body string) (*model.Comment, error)
	ListComments(ctx context.Context, viewer, postID string) ([]*model.Comment, error)
	EditComment(ctx context.Context, actingUser, commentID, body string) (*model.Comment, error)
	DeleteComment(ctx context.Context, actingUser, commentID string) error
}

// ContentService implements the IContentService interface
type ContentService struct {
	ledger
	emitter
	posts repository.IPostRepository
	ids   *snowflake.Generator
}

// NewContentService creates a new IContentService instance
func NewContentService(
	circles repository.ICircleRepository,
	memberships repository.IMembershipRepository,
	posts repository.IPostRepository,
	ids *snowflake.Generator,
	publisher EventPublisher,
	retry RetryPolicy,
	log *logger.Logger,
) IContentService {
	if log == nil {
		log = logger.NewNop()
	}
	return &ContentService{
		ledger:  ledger{circles: circles, memberships: memberships, retry: retry},
		emitter: newEmitter(publisher, log.Named("content")),
		posts:   posts,
		ids:     ids,
	}
}

func (s *ContentService) CreatePost(ctx context.Context, author, circleID, title, body string) (*model.Post, error) {
	if author == "" {
		return nil, ErrUnauthenticated
	}
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if err := model.ValidatePostFields(title, body); err != nil {
		return nil, err
	}
	if _, err := s.require(ctx, circleID, author, CapPost); err != nil {
		return nil, err
	}

	id, err := s.ids.NextString()
	if err != nil {
		return nil, fmt.Errorf("failed to generate post id: %w", err)
	}
	post := &model.Post{
		ID:       id,
		CircleID: circleID,
		AuthorID: author,
		Title:    title,
		Body:     body,
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, storeError("create post", err)
	}

	s.emit(ctx, model.NewEvent(model.EventPostCreated, author, circleID, post))
	return post, nil
}

// GetPost returns a post the viewer is allowed to read.
func (s *ContentService) GetPost(ctx context.Context, viewer, postID string) (*model.Post, error) {
	post, err := s.post(ctx, postID)
	if err != nil {
		return nil, err
	}
	if _, err := s.require(ctx, post.CircleID, viewer, CapView); err != nil {
		return nil, err
	}
	return post, nil
}

// ListPosts returns one page of a circle's posts, newest first.
func (s *ContentService) ListPosts(ctx context.Context, viewer, circleID string, page, size int) ([]*model.Post, error) {
	if _, err := s.require(ctx, circleID, viewer, CapView); err != nil {
		return nil, err
	}
	offset, limit := pageBounds(page, size)
	posts, err := retryValue(ctx, s.retry, func(ctx context.Context) ([]*model.Post, error) {
		return s.posts.ListPosts(ctx, circleID, offset, limit)
	})
	if err != nil {
		return nil, storeError("list posts", err)
	}
	return posts, nil
}

func (s *ContentService) EditPost(ctx context.Context, actingUser, postID, title, body string) (*model.Post, error) {
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if err := model.ValidatePostFields(title, body); err != nil {
		return nil, err
	}
	post, err := s.post(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeContent(ctx, actingUser, post.CircleID, post.AuthorID); err != nil {
		return nil, err
	}

	updated, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.Post, error) {
		return s.posts.UpdatePost(ctx, postID, title, body)
	})
	if err != nil {
		return nil, lookupError("update post", err, ErrPostNotFound)
	}
	return updated, nil
}

// DeletePost removes the post and its comments.
func (s *ContentService) DeletePost(ctx context.Context, actingUser, postID string) error {
	post, err := s.post(ctx, postID)
	if err != nil {
		return err
	}
	if err := s.authorizeContent(ctx, actingUser, post.CircleID, post.AuthorID); err != nil {
		return err
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return lookupError("delete post", err, ErrPostNotFound)
	}
	return nil
}

func (s *ContentService) CreateComment(ctx context.Context, author, postID, body string) (*model.Comment, error) {
	if author == "" {
		return nil, ErrUnauthenticated
	}
	body = strings.TrimSpace(body)
	if err := model.ValidateCommentBody(body); err != nil {
		return nil, err
	}
	post, err := s.post(ctx, postID)
	if err != nil {
		return nil, err
	}
	if _, err := s.require(ctx, post.CircleID, author, CapComment); err != nil {
		return nil, err
	}

	id, err := s.ids.NextString()
	if err != nil {
		return nil, fmt.Errorf("failed to generate comment id: %w", err)
	}
	comment := &model.Comment{
		ID:       id,
		PostID:   postID,
		AuthorID: author,
		Body:     body,
	}
	if err := s.posts.CreateComment(ctx, comment); err != nil {
		return nil, lookupError("create comment", err, ErrPostNotFound)
	}

	var recipients []string
	if post.AuthorID != author {
		recipients = append(recipients, post.AuthorID)
	}
	s.emit(ctx, model.NewEvent(model.EventCommentCreated, author, post.CircleID, comment, recipients...))
	return comment, nil
}

// ListComments returns a post's comments, oldest first.
func (s *ContentService) ListComments(ctx context.Context, viewer, postID string) ([]*model.Comment, error) {
	if _, err := s.GetPost(ctx, viewer, postID); err != nil {
		return nil, err
	}
	comments, err := retryValue(ctx, s.retry, func(ctx context.Context) ([]*model.Comment, error) {
		return s.posts.ListComments(ctx, postID)
	})
	if err != nil {
		return nil, storeError("list comments", err)
	}
	return comments, nil
}

func (s *ContentService) EditComment(ctx context.Context, actingUser, commentID, body string) (*model.Comment, error) {
	body = strings.TrimSpace(body)
	if err := model.ValidateCommentBody(body); err != nil {
		return nil, err
	}
	comment, post, err := s.comment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeContent(ctx, actingUser, post.CircleID, comment.AuthorID); err != nil {
		return nil, err
	}

	updated, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.Comment, error) {
		return s.posts.UpdateComment(ctx, commentID, body)
	})
	if err != nil {
		return nil, lookupError("update comment", err, ErrCommentNotFound)
	}
	return updated, nil
}

func (s *ContentService) DeleteComment(ctx context.Context, actingUser, commentID string) error {
	comment, post, err := s.comment(ctx, commentID)
	if err != nil {
		return err
	}
	if err := s.authorizeContent(ctx, actingUser, post.CircleID, comment.AuthorID); err != nil {
		return err
	}
	if err := s.posts.DeleteComment(ctx, commentID); err != nil {
		return lookupError("delete comment", err, ErrCommentNotFound)
	}
	return nil
}

// authorizeContent allows the author or an active admin of the circle.
func (s *ContentService) authorizeContent(ctx context.Context, actingUser, circleID, authorID string) error {
	if actingUser == "" {
		return ErrUnauthenticated
	}
	if actingUser == authorID {
		return nil
	}
	admin, err := s.isAdmin(ctx, circleID, actingUser)
	if err != nil {
		return err
	}
	if !admin {
		return ErrNotAuthorized
	}
	return nil
}

func (s *ContentService) post(ctx context.Context, postID string) (*model.Post, error) {
	post, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.Post, error) {
		return s.posts.FindPost(ctx, postID)
	})
	if err != nil {
		return nil, lookupError("find post", err, ErrPostNotFound)
	}
	return post, nil
}

func (s *ContentService) comment(ctx context.Context, commentID string) (*model.Comment, *model.Post, error) {
	comment, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.Comment, error) {
		return s.posts.FindComment(ctx, commentID)
	})
	if err != nil {
		return nil, nil, lookupError("find comment", err, ErrCommentNotFound)
	}
	post, err := s.post(ctx, comment.PostID)
	if err != nil {
		return nil, nil, err
	}
	return comment, post, nil
}
