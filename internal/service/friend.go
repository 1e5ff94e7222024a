package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
)

var (
	ErrCannotFriendSelf   = errors.New("cannot send a friend request to yourself")
	ErrFriendshipExists   = errors.New("a friendship or pending request already exists")
	ErrFriendshipNotFound = errors.New("friend request not found")
	ErrNotFriends         = errors.New("users are not friends")
)

// FriendRequest names the user to befriend
type FriendRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// FriendList splits a user's relationships by state.
type FriendList struct {
	Friends  []*model.Friendship `json:"friends"`
	Incoming []*model.Friendship `json:"incoming"`
	Outgoing []*model.Friendship `json:"outgoing"`
}

// IFriendService manages friend requests and friendships
type IFriendService interface {
	SendRequest(ctx context.Context, from, to string) (*model.Friendship, error)
	Accept(ctx context.Context, userID, friendshipID string) (*model.Friendship, error)
	Reject(ctx context.Context, userID, friendshipID string) error
	Cancel(ctx context.Context, userID, friendshipID string) error
	Remove(ctx context.Context, userID, friendshipID string) error
	Status(ctx context.Context, userID, otherID string) (model.FriendStatus, error)
	List(ctx context.Context, userID string) (*FriendList, error)
	AreFriends(ctx context.Context, userA, userB string) (bool, error)
}

// FriendService implements the IFriendService interface
type FriendService struct {
	emitter
	friendships repository.IFriendshipRepository
	users       repository.IUserRepository
	retry       RetryPolicy
}

// NewFriendService creates a new IFriendService instance
func NewFriendService(
	friendships repository.IFriendshipRepository,
	users repository.IUserRepository,
	publisher EventPublisher,
	retry RetryPolicy,
	log *logger.Logger,
) IFriendService {
	if log == nil {
		log = logger.NewNop()
	}
	return &FriendService{
		emitter:     newEmitter(publisher, log.Named("friend")),
		friendships: friendships,
		users:       users,
		retry:       retry,
	}
}

func (s *FriendService) SendRequest(ctx context.Context, from, to string) (*model.Friendship, error) {
	if from == "" {
		return nil, ErrUnauthenticated
	}
	if from == to {
		return nil, ErrCannotFriendSelf
	}
	if _, err := s.users.FindByID(ctx, to); err != nil {
		return nil, lookupError("find user", err, ErrUserNotFound)
	}

	f := &model.Friendship{
		ID:          uuid.New().String(),
		RequesterID: from,
		AddresseeID: to,
		Status:      model.FriendshipPending,
	}
	if err := s.friendships.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrFriendshipExists
		}
		return nil, storeError("create friendship", err)
	}

	s.emit(ctx, model.NewEvent(model.EventFriendRequested, from, "", f, to))
	return f, nil
}

// Accept is open to the addressee of a pending request only.
func (s *FriendService) Accept(ctx context.Context, userID, friendshipID string) (*model.Friendship, error) {
	f, err := s.pending(ctx, userID, friendshipID)
	if err != nil {
		return nil, err
	}
	if f.AddresseeID != userID {
		return nil, ErrNotAuthorized
	}
	accepted, err := s.friendships.Accept(ctx, friendshipID)
	if err != nil {
		return nil, lookupError("accept friendship", err, ErrFriendshipNotFound)
	}

	s.emit(ctx, model.NewEvent(model.EventFriendAccepted, userID, "", accepted, accepted.RequesterID))
	return accepted, nil
}

// Reject is open to the addressee of a pending request only.
func (s *FriendService) Reject(ctx context.Context, userID, friendshipID string) error {
	f, err := s.pending(ctx, userID, friendshipID)
	if err != nil {
		return err
	}
	if f.AddresseeID != userID {
		return ErrNotAuthorized
	}
	return s.delete(ctx, friendshipID)
}

// Cancel withdraws a pending request the caller sent.
func (s *FriendService) Cancel(ctx context.Context, userID, friendshipID string) error {
	f, err := s.pending(ctx, userID, friendshipID)
	if err != nil {
		return err
	}
	if f.RequesterID != userID {
		return ErrNotAuthorized
	}
	return s.delete(ctx, friendshipID)
}

// Remove ends a friendship or request in any state; either party may do it.
func (s *FriendService) Remove(ctx context.Context, userID, friendshipID string) error {
	f, err := s.find(ctx, userID, friendshipID)
	if err != nil {
		return err
	}
	if !f.Involves(userID) {
		return ErrNotAuthorized
	}
	return s.delete(ctx, friendshipID)
}

func (s *FriendService) Status(ctx context.Context, userID, otherID string) (model.FriendStatus, error) {
	f, err := s.between(ctx, userID, otherID)
	if err != nil {
		return model.FriendStatusNone, err
	}
	return f.StatusFor(userID), nil
}

func (s *FriendService) List(ctx context.Context, userID string) (*FriendList, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	rows, err := retryValue(ctx, s.retry, func(ctx context.Context) ([]*model.Friendship, error) {
		return s.friendships.ListByUser(ctx, userID)
	})
	if err != nil {
		return nil, storeError("list friendships", err)
	}

	list := &FriendList{
		Friends:  []*model.Friendship{},
		Incoming: []*model.Friendship{},
		Outgoing: []*model.Friendship{},
	}
	for _, f := range rows {
		switch f.StatusFor(userID) {
		case model.FriendStatusFriends:
			list.Friends = append(list.Friends, f)
		case model.FriendStatusPendingReceived:
			list.Incoming = append(list.Incoming, f)
		case model.FriendStatusPendingSent:
			list.Outgoing = append(list.Outgoing, f)
		}
	}
	return list, nil
}

func (s *FriendService) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	f, err := s.between(ctx, userA, userB)
	if err != nil {
		return false, err
	}
	return f != nil && f.Status == model.FriendshipAccepted, nil
}

// between returns nil without error when the two users have no row.
func (s *FriendService) between(ctx context.Context, userA, userB string) (*model.Friendship, error) {
	if userA == "" {
		return nil, ErrUnauthenticated
	}
	f, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.Friendship, error) {
		return s.friendships.FindBetween(ctx, userA, userB)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, storeError("find friendship", err)
	}
	return f, nil
}

func (s *FriendService) find(ctx context.Context, userID, friendshipID string) (*model.Friendship, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	f, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.Friendship, error) {
		return s.friendships.FindByID(ctx, friendshipID)
	})
	if err != nil {
		return nil, lookupError("find friendship", err, ErrFriendshipNotFound)
	}
	return f, nil
}

func (s *FriendService) pending(ctx context.Context, userID, friendshipID string) (*model.Friendship, error) {
	f, err := s.find(ctx, userID, friendshipID)
	if err != nil {
		return nil, err
	}
	if f.Status != model.FriendshipPending {
		return nil, ErrFriendshipNotFound
	}
	return f, nil
}

func (s *FriendService) delete(ctx context.Context, friendshipID string) error {
	if err := s.friendships.Delete(ctx, friendshipID); err != nil {
		return lookupError("delete friendship", err, ErrFriendshipNotFound)
	}
	return nil
}
