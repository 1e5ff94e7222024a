package memory

import (
	"context"
	"sort"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
)

type postRepo struct{ s *Store }

func (r *postRepo) CreatePost(ctx context.Context, post *model.Post) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "posts.create"); err != nil {
		return err
	}
	if _, ok := s.posts[post.ID]; ok {
		return repository.ErrDuplicate
	}
	now := s.now()
	post.CreatedAt, post.UpdatedAt = now, now
	s.posts[post.ID] = clone(post)
	return nil
}

func (r *postRepo) FindPost(ctx context.Context, id string) (*model.Post, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "posts.find"); err != nil {
		return nil, err
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return clone(p), nil
}

func (r *postRepo) ListPosts(ctx context.Context, circleID string, offset, limit int) ([]*model.Post, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "posts.list"); err != nil {
		return nil, err
	}
	var out []*model.Post
	for _, p := range s.posts {
		if p.CircleID == circleID {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return checked(page(out, offset, limit))
}

func (r *postRepo) UpdatePost(ctx context.Context, id, title, body string) (*model.Post, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "posts.update"); err != nil {
		return nil, err
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.Title, p.Body = title, body
	p.UpdatedAt = s.now()
	return clone(p), nil
}

func (r *postRepo) DeletePost(ctx context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "posts.delete"); err != nil {
		return err
	}
	if _, ok := s.posts[id]; !ok {
		return repository.ErrNotFound
	}
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
		}
	}
	delete(s.posts, id)
	return nil
}

func (r *postRepo) CreateComment(ctx context.Context, comment *model.Comment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "comments.create"); err != nil {
		return err
	}
	p, ok := s.posts[comment.PostID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.comments[comment.ID]; ok {
		return repository.ErrDuplicate
	}
	now := s.now()
	comment.CreatedAt, comment.UpdatedAt = now, now
	s.comments[comment.ID] = clone(comment)
	p.CommentCount++
	return nil
}

func (r *postRepo) FindComment(ctx context.Context, id string) (*model.Comment, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "comments.find"); err != nil {
		return nil, err
	}
	c, ok := s.comments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return clone(c), nil
}

func (r *postRepo) ListComments(ctx context.Context, postID string) ([]*model.Comment, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "comments.list"); err != nil {
		return nil, err
	}
	var out []*model.Comment
	for _, c := range s.comments {
		if c.PostID == postID {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return checked(out)
}

func (r *postRepo) UpdateComment(ctx context.Context, id, body string) (*model.Comment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "comments.update"); err != nil {
		return nil, err
	}
	c, ok := s.comments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c.Body = body
	c.UpdatedAt = s.now()
	return clone(c), nil
}

func (r *postRepo) DeleteComment(ctx context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "comments.delete"); err != nil {
		return err
	}
	c, ok := s.comments[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.comments, id)
	if p, ok := s.posts[c.PostID]; ok {
		p.CommentCount = max(p.CommentCount-1, 0)
	}
	return nil
}
