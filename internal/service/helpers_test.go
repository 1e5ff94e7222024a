package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository/memory"
	"github.com/Gopher0727/MindBridge/utils/snowflake"
)

var errConnReset = errors.New("read tcp 10.0.0.7:5432: connection reset by peer")

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event *model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) last() *model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

type fixture struct {
	store   *memory.Store
	events  *recordingPublisher
	circles ICircleService
	content IContentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	events := &recordingPublisher{}
	ids, err := snowflake.NewGenerator(1)
	require.NoError(t, err)
	retry := RetryPolicy{Attempts: 3}
	return &fixture{
		store:   store,
		events:  events,
		circles: NewCircleService(store.Circles(), store.Memberships(), events, retry, nil),
		content: NewContentService(store.Circles(), store.Memberships(), store.Posts(), ids, events, retry, nil),
	}
}

func (f *fixture) createCircle(t *testing.T, owner, name string, visibility model.Visibility) *model.Circle {
	t.Helper()
	c, err := f.circles.CreateCircle(context.Background(), owner, &CreateCircleRequest{
		Name:        name,
		Description: "A place to talk about " + name,
		Tags:        []string{"wellness"},
		Visibility:  visibility,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) join(t *testing.T, userID, circleID string) *model.Membership {
	t.Helper()
	m, err := f.circles.RequestJoin(context.Background(), userID, circleID)
	require.NoError(t, err)
	return m
}

// memberCount reads the cached counter straight from the store.
func (f *fixture) memberCount(t *testing.T, circleID string) int {
	t.Helper()
	c, err := f.store.Circles().FindByID(context.Background(), circleID)
	require.NoError(t, err)
	return c.MemberCount
}

func (f *fixture) activeCount(t *testing.T, circleID string) int {
	t.Helper()
	n, err := f.store.Memberships().CountActive(context.Background(), circleID)
	require.NoError(t, err)
	return int(n)
}

func (f *fixture) membership(t *testing.T, circleID, userID string) *model.Membership {
	t.Helper()
	m, err := f.store.Memberships().Find(context.Background(), circleID, userID)
	if err != nil {
		return nil
	}
	return m
}
