package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
)

type circleRepo struct{ s *Store }

func (r *circleRepo) CreateWithOwner(ctx context.Context, circle *model.Circle, owner *model.Membership) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "circles.create"); err != nil {
		return err
	}
	if _, ok := s.circles[circle.ID]; ok {
		return repository.ErrDuplicate
	}
	// The owner row is checked before anything is written so a failure leaves no trace.
	if err := s.check(ctx, "circles.create_owner"); err != nil {
		return fmt.Errorf("%w: %w", repository.ErrOwnerMembership, err)
	}

	now := s.now()
	circle.MemberCount = 1
	circle.CreatedAt, circle.UpdatedAt = now, now
	owner.JoinedAt, owner.UpdatedAt = now, now
	s.circles[circle.ID] = clone(circle)
	s.memberships[memberKey{owner.CircleID, owner.UserID}] = clone(owner)
	return nil
}

func (r *circleRepo) FindByID(ctx context.Context, id string) (*model.Circle, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "circles.find"); err != nil {
		return nil, err
	}
	c, ok := s.circles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return clone(c), nil
}

func (r *circleRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Circle, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "circles.find"); err != nil {
		return nil, err
	}
	var out []*model.Circle
	for _, id := range ids {
		if c, ok := s.circles[id]; ok {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return checked(out)
}

func (r *circleRepo) List(ctx context.Context, offset, limit int) ([]*model.Circle, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "circles.list"); err != nil {
		return nil, err
	}
	out := make([]*model.Circle, 0, len(s.circles))
	for _, c := range s.circles {
		out = append(out, clone(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MemberCount != out[j].MemberCount {
			return out[i].MemberCount > out[j].MemberCount
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return checked(page(out, offset, limit))
}

func (r *circleRepo) Update(ctx context.Context, id string, update *model.CircleUpdate) (*model.Circle, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "circles.update"); err != nil {
		return nil, err
	}
	c, ok := s.circles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Description != nil {
		c.Description = *update.Description
	}
	if update.Tags != nil {
		c.Tags = append(c.Tags[:0:0], update.Tags...)
	}
	if update.Visibility != nil {
		c.Visibility = *update.Visibility
	}
	c.UpdatedAt = s.now()
	return clone(c), nil
}

func (r *circleRepo) ReconcileMemberCount(ctx context.Context, id string) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "circles.reconcile"); err != nil {
		return 0, err
	}
	c, ok := s.circles[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	c.MemberCount = s.countActive(id)
	c.UpdatedAt = s.now()
	return c.MemberCount, nil
}

// countActive is called with the lock held.
func (s *Store) countActive(circleID string) int {
	n := 0
	for k, m := range s.memberships {
		if k.circleID == circleID && m.Status == model.StatusActive {
			n++
		}
	}
	return n
}

// adjustMembers is called with the write lock held.
func (s *Store) adjustMembers(circleID string, delta int) {
	if c, ok := s.circles[circleID]; ok {
		c.MemberCount = max(c.MemberCount+delta, 0)
	}
}

type membershipRepo struct{ s *Store }

func (r *membershipRepo) Join(ctx context.Context, m *model.Membership) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "memberships.join"); err != nil {
		return false, err
	}
	key := memberKey{m.CircleID, m.UserID}
	if _, ok := s.memberships[key]; ok {
		return false, nil
	}
	if m.Status == model.StatusActive {
		if _, ok := s.circles[m.CircleID]; !ok {
			return false, repository.ErrNotFound
		}
	}
	now := s.now()
	m.JoinedAt, m.UpdatedAt = now, now
	s.memberships[key] = clone(m)
	if m.Status == model.StatusActive {
		s.adjustMembers(m.CircleID, 1)
	}
	return true, nil
}

func (r *membershipRepo) Find(ctx context.Context, circleID, userID string) (*model.Membership, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "memberships.find"); err != nil {
		return nil, err
	}
	m, ok := s.memberships[memberKey{circleID, userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return clone(m), nil
}

func (r *membershipRepo) Remove(ctx context.Context, circleID, userID string, status model.MembershipStatus) (*model.Membership, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "memberships.remove"); err != nil {
		return nil, err
	}
	key := memberKey{circleID, userID}
	m, ok := s.memberships[key]
	if !ok || (status != "" && m.Status != status) {
		return nil, repository.ErrNotFound
	}
	delete(s.memberships, key)
	if m.Status == model.StatusActive {
		s.adjustMembers(circleID, -1)
	}
	return m, nil
}

func (r *membershipRepo) Approve(ctx context.Context, circleID, userID string) (*model.Membership, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "memberships.approve"); err != nil {
		return nil, err
	}
	m, ok := s.memberships[memberKey{circleID, userID}]
	if !ok || m.Status != model.StatusPending {
		return nil, repository.ErrNotFound
	}
	if _, ok := s.circles[circleID]; !ok {
		return nil, repository.ErrNotFound
	}
	m.Status = model.StatusActive
	m.UpdatedAt = s.now()
	s.adjustMembers(circleID, 1)
	return clone(m), nil
}

func (r *membershipRepo) SetRole(ctx context.Context, circleID, userID string, role model.Role) (*model.Membership, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "memberships.set_role"); err != nil {
		return nil, err
	}
	m, ok := s.memberships[memberKey{circleID, userID}]
	if !ok || m.Status != model.StatusActive {
		return nil, repository.ErrNotFound
	}
	m.Role = role
	m.UpdatedAt = s.now()
	return clone(m), nil
}

func (r *membershipRepo) list(ctx context.Context, match func(memberKey, *model.Membership) bool) ([]*model.Membership, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "memberships.list"); err != nil {
		return nil, err
	}
	var out []*model.Membership
	for k, m := range s.memberships {
		if match(k, m) {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return checked(out)
}

func (r *membershipRepo) ListByCircle(ctx context.Context, circleID string, status model.MembershipStatus) ([]*model.Membership, error) {
	return r.list(ctx, func(k memberKey, m *model.Membership) bool {
		return k.circleID == circleID && (status == "" || m.Status == status)
	})
}

func (r *membershipRepo) ListByUser(ctx context.Context, userID string, status model.MembershipStatus) ([]*model.Membership, error) {
	return r.list(ctx, func(k memberKey, m *model.Membership) bool {
		return k.userID == userID && (status == "" || m.Status == status)
	})
}

func (r *membershipRepo) CountActive(ctx context.Context, circleID string) (int64, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "memberships.count"); err != nil {
		return 0, err
	}
	return int64(s.countActive(circleID)), nil
}

func (r *membershipRepo) CountAdmins(ctx context.Context, circleID string) (int64, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "memberships.count"); err != nil {
		return 0, err
	}
	var n int64
	for k, m := range s.memberships {
		if k.circleID == circleID && m.IsAdmin() {
			n++
		}
	}
	return n, nil
}

func (r *membershipRepo) SharesActiveCircle(ctx context.Context, userA, userB string) (bool, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "memberships.shares"); err != nil {
		return false, err
	}
	for k, m := range s.memberships {
		if k.userID != userA || !m.IsActive() {
			continue
		}
		if other, ok := s.memberships[memberKey{k.circleID, userB}]; ok && other.IsActive() {
			return true, nil
		}
	}
	return false, nil
}
