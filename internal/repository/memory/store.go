// Package memory is a process-local row store implementing the repository
// interfaces. It backs the "memory" storage driver and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
)

// Store holds every table behind one lock, so each repository call is atomic
// the way a single transaction is on the postgres store.
type Store struct {
	mu sync.RWMutex

	users       map[string]*model.User
	circles     map[string]*model.Circle
	memberships map[memberKey]*model.Membership
	posts       map[string]*model.Post
	comments    map[string]*model.Comment
	friendships map[string]*model.Friendship
	messages    map[string]*model.DirectMessage
	moods       map[string]*model.MoodLog
	journals    map[string]*model.JournalEntry

	faults map[string]error
	now    func() time.Time
}

type memberKey struct {
	circleID string
	userID   string
}

func NewStore() *Store {
	return &Store{
		users:       make(map[string]*model.User),
		circles:     make(map[string]*model.Circle),
		memberships: make(map[memberKey]*model.Membership),
		posts:       make(map[string]*model.Post),
		comments:    make(map[string]*model.Comment),
		friendships: make(map[string]*model.Friendship),
		messages:    make(map[string]*model.DirectMessage),
		moods:       make(map[string]*model.MoodLog),
		journals:    make(map[string]*model.JournalEntry),
		faults:      make(map[string]error),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes every call of the named operation return err until
// ClearFaults. Operation names look like "memberships.join"; "*" matches all.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]error)
}

// check is called with the lock held.
func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := s.faults[op]; ok {
		return err
	}
	if err, ok := s.faults["*"]; ok {
		return err
	}
	return nil
}

// PutMembershipRow stores m as is, bypassing every check. Tests use it to
// plant rows the mapping layer must reject.
func (s *Store) PutMembershipRow(m *model.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.memberships[memberKey{m.CircleID, m.UserID}] = &cp
}

// PutCircleRow stores c as is, bypassing every check.
func (s *Store) PutCircleRow(c *model.Circle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.circles[c.ID] = &cp
}

func (s *Store) Users() repository.IUserRepository             { return &userRepo{s} }
func (s *Store) Circles() repository.ICircleRepository         { return &circleRepo{s} }
func (s *Store) Memberships() repository.IMembershipRepository { return &membershipRepo{s} }
func (s *Store) Posts() repository.IPostRepository             { return &postRepo{s} }
func (s *Store) Friendships() repository.IFriendshipRepository { return &friendshipRepo{s} }
func (s *Store) Messages() repository.IMessageRepository       { return &messageRepo{s} }
func (s *Store) Moods() repository.IMoodRepository             { return &moodRepo{s} }
func (s *Store) Journals() repository.IJournalRepository       { return &journalRepo{s} }

func clone[T any](v *T) *T {
	cp := *v
	return &cp
}

func page[T any](rows []T, offset, limit int) []T {
	if offset < 0 || offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

type validator interface {
	Validate() error
}

func checked[T validator](rows []T) ([]T, error) {
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, err
		}
	}
	return rows, nil
}
