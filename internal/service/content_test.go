package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/MindBridge/internal/model"
)

// Scenario: C posts in a private circle, edits it, D cannot, admin A deletes it.
func TestContentScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inner := f.createCircle(t, "A", "Inner Circle", model.VisibilityPrivate)
	f.join(t, "C", inner.ID)
	require.NoError(t, f.circles.ApproveJoin(ctx, "A", inner.ID, "C"))

	post, err := f.content.CreatePost(ctx, "C", inner.ID, "Hello", "First week here")
	require.NoError(t, err)
	assert.Equal(t, "C", post.AuthorID)

	edited, err := f.content.EditPost(ctx, "C", post.ID, "Hello again", "Second week here")
	require.NoError(t, err)
	assert.Equal(t, "Hello again", edited.Title)
	assert.Equal(t, "C", edited.AuthorID)

	_, err = f.content.EditPost(ctx, "D", post.ID, "Defaced", "Defaced")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	require.NoError(t, f.content.DeletePost(ctx, "A", post.ID))
	_, err = f.content.GetPost(ctx, "A", post.ID)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestCreatePost_RequiresActiveMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pub := f.createCircle(t, "alice", "Mindfulness", model.VisibilityPublic)
	priv := f.createCircle(t, "alice", "Inner Circle", model.VisibilityPrivate)
	f.join(t, "carol", priv.ID)

	_, err := f.content.CreatePost(ctx, "stranger", pub.ID, "Hi", "Just passing by")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.content.CreatePost(ctx, "carol", priv.ID, "Hi", "Waiting for approval")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.content.CreatePost(ctx, "", pub.ID, "Hi", "anonymous")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.content.CreatePost(ctx, "alice", "missing", "Hi", "nowhere")
	assert.ErrorIs(t, err, ErrCircleNotFound)

	_, err = f.content.CreatePost(ctx, "alice", pub.ID, "   ", "no title")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	post, err := f.content.CreatePost(ctx, "alice", pub.ID, " Welcome ", " Say hello ")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", post.Title)
	assert.Equal(t, "Say hello", post.Body)
	assert.Equal(t, model.EventPostCreated, f.events.last().Type)
}

func TestReadConfidentiality(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pub := f.createCircle(t, "alice", "Mindfulness", model.VisibilityPublic)
	priv := f.createCircle(t, "alice", "Inner Circle", model.VisibilityPrivate)

	pubPost, err := f.content.CreatePost(ctx, "alice", pub.ID, "Open", "Anyone can read this")
	require.NoError(t, err)
	privPost, err := f.content.CreatePost(ctx, "alice", priv.ID, "Closed", "Members only")
	require.NoError(t, err)

	_, err = f.content.GetPost(ctx, "stranger", pubPost.ID)
	assert.NoError(t, err)
	_, err = f.content.GetPost(ctx, "", pubPost.ID)
	assert.NoError(t, err)

	_, err = f.content.GetPost(ctx, "stranger", privPost.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.content.ListPosts(ctx, "stranger", priv.ID, 1, 10)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.content.ListComments(ctx, "stranger", privPost.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	posts, err := f.content.ListPosts(ctx, "alice", priv.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, privPost.ID, posts[0].ID)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCircle(t, "alice", "Mindfulness", model.VisibilityPublic)
	f.join(t, "bob", c.ID)
	post, err := f.content.CreatePost(ctx, "alice", c.ID, "Check-in", "How was your day?")
	require.NoError(t, err)

	comment, err := f.content.CreateComment(ctx, "bob", post.ID, "Pretty calm")
	require.NoError(t, err)
	last := f.events.last()
	assert.Equal(t, model.EventCommentCreated, last.Type)
	assert.Equal(t, []string{"alice"}, last.Recipients)

	_, err = f.content.CreateComment(ctx, "stranger", post.ID, "drive-by")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.content.CreateComment(ctx, "bob", "missing", "lost")
	assert.ErrorIs(t, err, ErrPostNotFound)

	got, err := f.content.GetPost(ctx, "bob", post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CommentCount)

	_, err = f.content.EditComment(ctx, "carol", comment.ID, "hijack")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	edited, err := f.content.EditComment(ctx, "bob", comment.ID, "Very calm")
	require.NoError(t, err)
	assert.Equal(t, "Very calm", edited.Body)
	assert.Equal(t, "bob", edited.AuthorID)

	// 管理员可以删除任何人的评论
	require.NoError(t, f.content.DeleteComment(ctx, "alice", comment.ID))
	got, err = f.content.GetPost(ctx, "bob", post.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CommentCount)
	assert.ErrorIs(t, f.content.DeleteComment(ctx, "alice", comment.ID), ErrCommentNotFound)
}

func TestDeletePost_RemovesComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCircle(t, "alice", "Mindfulness", model.VisibilityPublic)
	f.join(t, "bob", c.ID)
	post, err := f.content.CreatePost(ctx, "bob", c.ID, "Mine", "My own post")
	require.NoError(t, err)
	comment, err := f.content.CreateComment(ctx, "alice", post.ID, "Nice")
	require.NoError(t, err)

	assert.ErrorIs(t, f.content.DeletePost(ctx, "carol", post.ID), ErrNotAuthorized)
	require.NoError(t, f.content.DeletePost(ctx, "bob", post.ID))

	_, err = f.store.Posts().FindComment(ctx, comment.ID)
	assert.Error(t, err)
	assert.ErrorIs(t, f.content.DeletePost(ctx, "bob", post.ID), ErrPostNotFound)
}

func TestContentAuthorization_Matrix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCircle(t, "admin", "Mindfulness", model.VisibilityPublic)
	f.join(t, "author", c.ID)
	f.join(t, "other", c.ID)

	tests := []struct {
		actor string
		want  error
	}{
		{"author", nil},
		{"admin", nil},
		{"other", ErrNotAuthorized},
		{"outsider", ErrNotAuthorized},
		{"", ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run("actor="+tt.actor, func(t *testing.T) {
			post, err := f.content.CreatePost(ctx, "author", c.ID, "Title", "Body text")
			require.NoError(t, err)
			comment, err := f.content.CreateComment(ctx, "author", post.ID, "Comment")
			require.NoError(t, err)

			_, err = f.content.EditPost(ctx, tt.actor, post.ID, "New", "New body")
			assertOutcome(t, tt.want, err)
			_, err = f.content.EditComment(ctx, tt.actor, comment.ID, "New comment")
			assertOutcome(t, tt.want, err)
			assertOutcome(t, tt.want, f.content.DeleteComment(ctx, tt.actor, comment.ID))
			assertOutcome(t, tt.want, f.content.DeletePost(ctx, tt.actor, post.ID))
		})
	}
}

func assertOutcome(t *testing.T, want, got error) {
	t.Helper()
	if want == nil {
		assert.NoError(t, got)
		return
	}
	assert.ErrorIs(t, got, want)
}

func TestContentStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createCircle(t, "alice", "Mindfulness", model.VisibilityPublic)
	post, err := f.content.CreatePost(ctx, "alice", c.ID, "Title", "Body text")
	require.NoError(t, err)

	f.store.FailOn("posts.find", errConnReset)
	_, err = f.content.EditPost(ctx, "alice", post.ID, "New", "New body")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrNotAuthorized)

	f.store.ClearFaults()
	f.store.FailOn("comments.create", errConnReset)
	_, err = f.content.CreateComment(ctx, "alice", post.ID, "hello")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	f.store.ClearFaults()

	got, err := f.content.GetPost(ctx, "alice", post.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CommentCount)
}
