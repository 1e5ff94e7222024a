package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage keeps (page-1)*size far from overflowing.
	maxPage         = 100000
)

// CreateCircleRequest represents a request to create a new circle
type CreateCircleRequest struct {
	Name        string           `json:"name" binding:"required"`
	Description string           `json:"description" binding:"required"`
	Tags        []string         `json:"tags"`
	Visibility  model.Visibility `json:"visibility"`
}

// SetRoleRequest carries the new role for a member
type SetRoleRequest struct {
	Role model.Role `json:"role" binding:"required"`
}

// UserCircle is a circle seen from one user's membership.
type UserCircle struct {
	Circle *model.Circle          `json:"circle"`
	Role   model.Role             `json:"role"`
	Status model.MembershipStatus `json:"status"`
}

// ICircleService is the membership and authorization ledger for circles.
// Every mutating call takes the acting user explicitly; a nil error is a
// granted outcome.
type ICircleService interface {
	CreateCircle(ctx context.Context, owner string, req *CreateCircleRequest) (*model.Circle, error)
	GetCircle(ctx context.Context, circleID string) (*model.Circle, error)
	ListCircles(ctx context.Context, page, size int) ([]*model.Circle, error)
	UpdateCircle(ctx context.Context, actingUser, circleID string, update *model.CircleUpdate) (*model.Circle, error)

	RequestJoin(ctx context.Context, userID, circleID string) (*model.Membership, error)
	Leave(ctx context.Context, userID, circleID string) error
	ApproveJoin(ctx context.Context, actingUser, circleID, targetUser string) error
	RejectJoin(ctx context.Context, actingUser, circleID, targetUser string) error
	RemoveMember(ctx context.Context, actingUser, circleID, targetUser string) error
	SetRole(ctx context.Context, actingUser, circleID, targetUser string, role model.Role) error

	IsMember(ctx context.Context, userID, circleID string) (bool, error)
	IsAdmin(ctx context.Context, userID, circleID string) (bool, error)
	IsPending(ctx context.Context, userID, circleID string) (bool, error)
	Permissions(ctx context.Context, userID, circleID string) (*Permissions, error)

	ListMembers(ctx context.Context, viewer, circleID string) ([]*model.Membership, error)
	ListPending(ctx context.Context, actingUser, circleID string) ([]*model.Membership, error)
	ListUserCircles(ctx context.Context, userID string) ([]*UserCircle, error)
	ReconcileMemberCount(ctx context.Context, actingUser, circleID string) (int, error)
}

// CircleService implements the ICircleService interface
type CircleService struct {
	ledger
	emitter
}

// NewCircleService creates a new ICircleService instance
func NewCircleService(
	circles repository.ICircleRepository,
	memberships repository.IMembershipRepository,
	publisher EventPublisher,
	retry RetryPolicy,
	log *logger.Logger,
) ICircleService {
	if log == nil {
		log = logger.NewNop()
	}
	return &CircleService{
		ledger:  ledger{circles: circles, memberships: memberships, retry: retry},
		emitter: newEmitter(publisher, log.Named("circle")),
	}
}

// CreateCircle inserts the circle together with the owner's admin membership.
// Either both rows exist afterwards or neither does.
func (s *CircleService) CreateCircle(ctx context.Context, owner string, req *CreateCircleRequest) (*model.Circle, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	name := strings.TrimSpace(req.Name)
	if err := model.ValidateCircleName(name); err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(req.Description)
	if err := model.ValidateCircleDescription(desc); err != nil {
		return nil, err
	}
	tags, err := model.NormalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = model.VisibilityPublic
	}
	if !visibility.Valid() {
		return nil, fmt.Errorf("%w: visibility must be public or private", model.ErrInvalidInput)
	}

	circle := &model.Circle{
		ID:          uuid.New().String(),
		Name:        name,
		Description: desc,
		Tags:        tags,
		Visibility:  visibility,
		CreatedBy:   owner,
	}
	membership := &model.Membership{
		CircleID: circle.ID,
		UserID:   owner,
		Role:     model.RoleAdmin,
		Status:   model.StatusActive,
	}

	// 创建圈子不重试：插入不是幂等操作
	if err := s.circles.CreateWithOwner(ctx, circle, membership); err != nil {
		if errors.Is(err, repository.ErrOwnerMembership) {
			s.log.ErrorContext(ctx, "circle creation rolled back", zap.String("owner", owner), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrPartialCreate, err)
		}
		return nil, storeError("create circle", err)
	}

	s.emit(ctx, model.NewEvent(model.EventCircleCreated, owner, circle.ID, circle, owner))
	return circle, nil
}

func (s *CircleService) GetCircle(ctx context.Context, circleID string) (*model.Circle, error) {
	return s.circle(ctx, circleID)
}

// ListCircles returns one page of circles, most populated first.
func (s *CircleService) ListCircles(ctx context.Context, page, size int) ([]*model.Circle, error) {
	offset, limit := pageBounds(page, size)
	circles, err := retryValue(ctx, s.retry, func(ctx context.Context) ([]*model.Circle, error) {
		return s.circles.List(ctx, offset, limit)
	})
	if err != nil {
		return nil, storeError("list circles", err)
	}
	return circles, nil
}

// UpdateCircle changes circle fields in place. Existing memberships keep
// their status when visibility changes.
func (s *CircleService) UpdateCircle(ctx context.Context, actingUser, circleID string, update *model.CircleUpdate) (*model.Circle, error) {
	if update == nil || update.Empty() {
		return nil, ErrNothingToUpdate
	}
	if err := update.Normalize(); err != nil {
		return nil, err
	}
	if _, err := s.requireAdmin(ctx, circleID, actingUser); err != nil {
		return nil, err
	}

	circle, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.Circle, error) {
		return s.circles.Update(ctx, circleID, update)
	})
	if err != nil {
		return nil, lookupError("update circle", err, ErrCircleNotFound)
	}

	s.emit(ctx, model.NewEvent(model.EventCircleUpdated, actingUser, circleID, circle))
	return circle, nil
}

// RequestJoin adds userID to the circle: active in a public circle, pending
// in a private one.
func (s *CircleService) RequestJoin(ctx context.Context, userID, circleID string) (*model.Membership, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	circle, err := s.circle(ctx, circleID)
	if err != nil {
		return nil, err
	}

	m := &model.Membership{
		CircleID: circleID,
		UserID:   userID,
		Role:     model.RoleMember,
		Status:   model.InitialStatus(circle.Visibility),
	}
	inserted, err := s.memberships.Join(ctx, m)
	if err != nil {
		return nil, lookupError("join circle", err, ErrCircleNotFound)
	}
	if !inserted {
		return nil, ErrAlreadyMember
	}

	typ := model.EventMemberJoined
	if m.IsPending() {
		typ = model.EventJoinRequested
	}
	s.emit(ctx, model.NewEvent(typ, userID, circleID, m, s.adminIDs(ctx, circleID)...))
	return m, nil
}

// Leave deletes the caller's membership whatever its status or role. Leaving
// a circle one does not belong to succeeds.
func (s *CircleService) Leave(ctx context.Context, userID, circleID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	removed, err := s.memberships.Remove(ctx, circleID, userID, "")
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return storeError("leave circle", err)
	}

	s.emit(ctx, model.NewEvent(model.EventMemberLeft, userID, circleID, removed))
	return nil
}

// ApproveJoin moves a pending membership to active.
func (s *CircleService) ApproveJoin(ctx context.Context, actingUser, circleID, targetUser string) error {
	if _, err := s.requireAdmin(ctx, circleID, actingUser); err != nil {
		return err
	}
	m, err := s.memberships.Approve(ctx, circleID, targetUser)
	if err != nil {
		return lookupError("approve membership", err, ErrMembershipNotFound)
	}

	s.emit(ctx, model.NewEvent(model.EventJoinApproved, actingUser, circleID, m, targetUser))
	return nil
}

// RejectJoin deletes a pending membership.
func (s *CircleService) RejectJoin(ctx context.Context, actingUser, circleID, targetUser string) error {
	if _, err := s.requireAdmin(ctx, circleID, actingUser); err != nil {
		return err
	}
	m, err := s.memberships.Remove(ctx, circleID, targetUser, model.StatusPending)
	if err != nil {
		return lookupError("reject membership", err, ErrMembershipNotFound)
	}

	s.emit(ctx, model.NewEvent(model.EventJoinRejected, actingUser, circleID, m, targetUser))
	return nil
}

// RemoveMember deletes another user's membership.
func (s *CircleService) RemoveMember(ctx context.Context, actingUser, circleID, targetUser string) error {
	if _, err := s.requireAdmin(ctx, circleID, actingUser); err != nil {
		return err
	}
	if targetUser == actingUser {
		return ErrCannotRemoveSelf
	}
	m, err := s.memberships.Remove(ctx, circleID, targetUser, "")
	if err != nil {
		return lookupError("remove member", err, ErrMembershipNotFound)
	}

	s.emit(ctx, model.NewEvent(model.EventMemberRemoved, actingUser, circleID, m, targetUser))
	return nil
}

// SetRole promotes or demotes an active member.
func (s *CircleService) SetRole(ctx context.Context, actingUser, circleID, targetUser string, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: role must be admin or member", model.ErrInvalidInput)
	}
	if _, err := s.requireAdmin(ctx, circleID, actingUser); err != nil {
		return err
	}
	if targetUser == actingUser && role == model.RoleMember {
		return ErrCannotDemoteSelf
	}
	m, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.Membership, error) {
		return s.memberships.SetRole(ctx, circleID, targetUser, role)
	})
	if err != nil {
		return lookupError("set role", err, ErrMembershipNotFound)
	}

	s.emit(ctx, model.NewEvent(model.EventRoleChanged, actingUser, circleID, m, targetUser))
	return nil
}

func (s *CircleService) IsMember(ctx context.Context, userID, circleID string) (bool, error) {
	m, err := s.membership(ctx, circleID, userID)
	return m.IsActive(), err
}

// IsAdmin requires both the admin role and an active status.
func (s *CircleService) IsAdmin(ctx context.Context, userID, circleID string) (bool, error) {
	return s.isAdmin(ctx, circleID, userID)
}

func (s *CircleService) IsPending(ctx context.Context, userID, circleID string) (bool, error) {
	m, err := s.membership(ctx, circleID, userID)
	return m.IsPending(), err
}

func (s *CircleService) Permissions(ctx context.Context, userID, circleID string) (*Permissions, error) {
	_, perms, err := s.permissions(ctx, circleID, userID)
	return perms, err
}

// ListMembers lists active members, oldest first. Private circles show their
// roster only to members.
func (s *CircleService) ListMembers(ctx context.Context, viewer, circleID string) ([]*model.Membership, error) {
	if _, err := s.require(ctx, circleID, viewer, CapView); err != nil {
		return nil, err
	}
	return s.listByCircle(ctx, circleID, model.StatusActive)
}

// ListPending lists join requests awaiting approval.
func (s *CircleService) ListPending(ctx context.Context, actingUser, circleID string) ([]*model.Membership, error) {
	if _, err := s.requireAdmin(ctx, circleID, actingUser); err != nil {
		return nil, err
	}
	return s.listByCircle(ctx, circleID, model.StatusPending)
}

func (s *CircleService) listByCircle(ctx context.Context, circleID string, status model.MembershipStatus) ([]*model.Membership, error) {
	members, err := retryValue(ctx, s.retry, func(ctx context.Context) ([]*model.Membership, error) {
		return s.memberships.ListByCircle(ctx, circleID, status)
	})
	if err != nil {
		return nil, storeError("list memberships", err)
	}
	return members, nil
}

// ListUserCircles returns every circle userID holds a membership in,
// pending requests included.
func (s *CircleService) ListUserCircles(ctx context.Context, userID string) ([]*UserCircle, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	memberships, err := retryValue(ctx, s.retry, func(ctx context.Context) ([]*model.Membership, error) {
		return s.memberships.ListByUser(ctx, userID, "")
	})
	if err != nil {
		return nil, storeError("list user memberships", err)
	}
	if len(memberships) == 0 {
		return []*UserCircle{}, nil
	}

	byCircle := make(map[string]*model.Membership, len(memberships))
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		byCircle[m.CircleID] = m
		ids = append(ids, m.CircleID)
	}
	circles, err := retryValue(ctx, s.retry, func(ctx context.Context) ([]*model.Circle, error) {
		return s.circles.FindByIDs(ctx, ids)
	})
	if err != nil {
		return nil, storeError("find circles", err)
	}

	out := make([]*UserCircle, 0, len(circles))
	for _, c := range circles {
		m := byCircle[c.ID]
		out = append(out, &UserCircle{Circle: c, Role: m.Role, Status: m.Status})
	}
	return out, nil
}

// ReconcileMemberCount resets the cached counter to the number of active
// memberships and returns it.
func (s *CircleService) ReconcileMemberCount(ctx context.Context, actingUser, circleID string) (int, error) {
	if _, err := s.requireAdmin(ctx, circleID, actingUser); err != nil {
		return 0, err
	}
	n, err := retryValue(ctx, s.retry, func(ctx context.Context) (int, error) {
		return s.circles.ReconcileMemberCount(ctx, circleID)
	})
	if err != nil {
		return 0, lookupError("reconcile member count", err, ErrCircleNotFound)
	}
	s.log.InfoContext(ctx, "member count reconciled", zap.String("circle_id", circleID), zap.Int("member_count", n))
	return n, nil
}

// adminIDs is best effort: a failure only narrows who gets notified.
func (s *CircleService) adminIDs(ctx context.Context, circleID string) []string {
	members, err := s.memberships.ListByCircle(ctx, circleID, model.StatusActive)
	if err != nil {
		s.log.WarnContext(ctx, "failed to list admins for notification", zap.String("circle_id", circleID), zap.Error(err))
		return nil
	}
	var ids []string
	for _, m := range members {
		if m.IsAdmin() {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

func pageBounds(page, size int) (offset, limit int) {
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)
	page = min(max(page, 1), maxPage)
	return (page - 1) * size, size
}
