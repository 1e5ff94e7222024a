package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "users.create"); err != nil {
		return err
	}
	for _, u := range s.users {
		if u.ID == user.ID || u.Username == user.Username || u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = clone(user)
	return nil
}

func (r *userRepo) find(ctx context.Context, match func(*model.User) bool) (*model.User, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "users.find"); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if match(u) {
			if err := u.Validate(); err != nil {
				return nil, err
			}
			return clone(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.find(ctx, func(u *model.User) bool { return u.ID == id })
}

func (r *userRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.find(ctx, func(u *model.User) bool { return u.Username == username })
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.find(ctx, func(u *model.User) bool { return u.Email == email })
}

func (r *userRepo) UpdateProfile(ctx context.Context, id, displayName, bio, avatarURL string, interests []string) (*model.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "users.update"); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.DisplayName, u.Bio, u.AvatarURL = displayName, bio, avatarURL
	u.Interests = pq.StringArray(slices.Clone(interests))
	u.UpdatedAt = s.now()
	return clone(u), nil
}

type friendshipRepo struct{ s *Store }

func (r *friendshipRepo) Create(ctx context.Context, f *model.Friendship) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "friendships.create"); err != nil {
		return err
	}
	f.PairKey = model.PairKey(f.RequesterID, f.AddresseeID)
	for _, existing := range s.friendships {
		if existing.PairKey == f.PairKey {
			return repository.ErrDuplicate
		}
	}
	now := s.now()
	f.CreatedAt, f.UpdatedAt = now, now
	s.friendships[f.ID] = clone(f)
	return nil
}

func (r *friendshipRepo) FindByID(ctx context.Context, id string) (*model.Friendship, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "friendships.find"); err != nil {
		return nil, err
	}
	f, ok := s.friendships[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return clone(f), nil
}

func (r *friendshipRepo) FindBetween(ctx context.Context, userA, userB string) (*model.Friendship, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "friendships.find"); err != nil {
		return nil, err
	}
	key := model.PairKey(userA, userB)
	for _, f := range s.friendships {
		if f.PairKey == key {
			if err := f.Validate(); err != nil {
				return nil, err
			}
			return clone(f), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *friendshipRepo) Accept(ctx context.Context, id string) (*model.Friendship, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "friendships.accept"); err != nil {
		return nil, err
	}
	f, ok := s.friendships[id]
	if !ok || f.Status != model.FriendshipPending {
		return nil, repository.ErrNotFound
	}
	f.Status = model.FriendshipAccepted
	f.UpdatedAt = s.now()
	return clone(f), nil
}

func (r *friendshipRepo) Delete(ctx context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "friendships.delete"); err != nil {
		return err
	}
	if _, ok := s.friendships[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.friendships, id)
	return nil
}

func (r *friendshipRepo) ListByUser(ctx context.Context, userID string) ([]*model.Friendship, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "friendships.list"); err != nil {
		return nil, err
	}
	var out []*model.Friendship
	for _, f := range s.friendships {
		if f.Involves(userID) {
			out = append(out, clone(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return checked(out)
}

type messageRepo struct{ s *Store }

func (r *messageRepo) Create(ctx context.Context, msg *model.DirectMessage) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "messages.create"); err != nil {
		return err
	}
	if _, ok := s.messages[msg.ID]; ok {
		return repository.ErrDuplicate
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.messages[msg.ID] = clone(msg)
	return nil
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.DirectMessage, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "messages.find"); err != nil {
		return nil, err
	}
	m, ok := s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return clone(m), nil
}

func (r *messageRepo) Conversation(ctx context.Context, userA, userB string, before time.Time, limit int) ([]*model.DirectMessage, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "messages.list"); err != nil {
		return nil, err
	}
	var out []*model.DirectMessage
	for _, m := range s.messages {
		between := (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA)
		if between && (before.IsZero() || m.CreatedAt.Before(before)) {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return checked(out)
}

func (r *messageRepo) MarkRead(ctx context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "messages.mark_read"); err != nil {
		return err
	}
	m, ok := s.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsRead = true
	return nil
}

func (r *messageRepo) CountUnread(ctx context.Context, receiverID string) (int64, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "messages.count"); err != nil {
		return 0, err
	}
	var n int64
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

type moodRepo struct{ s *Store }

func (r *moodRepo) Upsert(ctx context.Context, log *model.MoodLog) (*model.MoodLog, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "moods.upsert"); err != nil {
		return nil, err
	}
	key := log.UserID + "|" + log.Date
	if existing, ok := s.moods[key]; ok {
		existing.Mood, existing.Note, existing.Visibility = log.Mood, log.Note, log.Visibility
		return clone(existing), nil
	}
	log.CreatedAt = s.now()
	s.moods[key] = clone(log)
	return clone(log), nil
}

func (r *moodRepo) ListByUser(ctx context.Context, userID string, visibility model.Visibility, limit int) ([]*model.MoodLog, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "moods.list"); err != nil {
		return nil, err
	}
	var out []*model.MoodLog
	for _, m := range s.moods {
		if m.UserID == userID && (visibility == "" || m.Visibility == visibility) {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return checked(page(out, 0, limit))
}

type journalRepo struct{ s *Store }

func (r *journalRepo) Create(ctx context.Context, entry *model.JournalEntry) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "journals.create"); err != nil {
		return err
	}
	if _, ok := s.journals[entry.ID]; ok {
		return repository.ErrDuplicate
	}
	entry.CreatedAt = s.now()
	s.journals[entry.ID] = clone(entry)
	return nil
}

func (r *journalRepo) FindByID(ctx context.Context, id string) (*model.JournalEntry, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "journals.find"); err != nil {
		return nil, err
	}
	j, ok := s.journals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return clone(j), nil
}

func (r *journalRepo) Delete(ctx context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "journals.delete"); err != nil {
		return err
	}
	if _, ok := s.journals[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.journals, id)
	return nil
}

func (r *journalRepo) ListByUser(ctx context.Context, userID string, visibilities ...model.JournalVisibility) ([]*model.JournalEntry, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "journals.list"); err != nil {
		return nil, err
	}
	var out []*model.JournalEntry
	for _, j := range s.journals {
		if j.UserID == userID && (len(visibilities) == 0 || slices.Contains(visibilities, j.Visibility)) {
			out = append(out, clone(j))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return checked(out)
}
