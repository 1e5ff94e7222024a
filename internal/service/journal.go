package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
)

var ErrJournalNotFound = errors.New("journal entry not found")

// JournalRequest creates a journal entry. Visibility defaults to private.
type JournalRequest struct {
	Title      string                  `json:"title" binding:"required"`
	Body       string                  `json:"body" binding:"required"`
	Visibility model.JournalVisibility `json:"visibility"`
}

// IJournalService stores journal entries and decides who may read them
type IJournalService interface {
	CreateEntry(ctx context.Context, userID string, req *JournalRequest) (*model.JournalEntry, error)
	ListEntries(ctx context.Context, userID string) ([]*model.JournalEntry, error)
	DeleteEntry(ctx context.Context, userID, entryID string) error
	ListVisibleEntries(ctx context.Context, viewer, owner string) ([]*model.JournalEntry, error)
}

// JournalService implements the IJournalService interface
type JournalService struct {
	journals    repository.IJournalRepository
	memberships repository.IMembershipRepository
	retry       RetryPolicy
}

// NewJournalService creates a new IJournalService instance
func NewJournalService(journals repository.IJournalRepository, memberships repository.IMembershipRepository, retry RetryPolicy) IJournalService {
	return &JournalService{
		journals:    journals,
		memberships: memberships,
		retry:       retry,
	}
}

func (s *JournalService) CreateEntry(ctx context.Context, userID string, req *JournalRequest) (*model.JournalEntry, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	title, body := strings.TrimSpace(req.Title), strings.TrimSpace(req.Body)
	if err := model.ValidateJournalFields(title, body); err != nil {
		return nil, err
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = model.JournalPrivate
	}
	if !visibility.Valid() {
		return nil, fmt.Errorf("%w: visibility must be private, circle or public", model.ErrInvalidInput)
	}

	entry := &model.JournalEntry{
		ID:         uuid.New().String(),
		UserID:     userID,
		Title:      title,
		Body:       body,
		Visibility: visibility,
	}
	if err := s.journals.Create(ctx, entry); err != nil {
		return nil, storeError("create journal entry", err)
	}
	return entry, nil
}

// ListEntries returns all of the caller's own entries.
func (s *JournalService) ListEntries(ctx context.Context, userID string) ([]*model.JournalEntry, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.list(ctx, userID)
}

// DeleteEntry is open to the entry's owner only.
func (s *JournalService) DeleteEntry(ctx context.Context, userID, entryID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	entry, err := retryValue(ctx, s.retry, func(ctx context.Context) (*model.JournalEntry, error) {
		return s.journals.FindByID(ctx, entryID)
	})
	if err != nil {
		return lookupError("find journal entry", err, ErrJournalNotFound)
	}
	if entry.UserID != userID {
		return ErrNotAuthorized
	}
	if err := s.journals.Delete(ctx, entryID); err != nil {
		return lookupError("delete journal entry", err, ErrJournalNotFound)
	}
	return nil
}

// ListVisibleEntries returns owner's entries as viewer may see them: public
// entries to everyone, circle entries to users sharing an active circle with
// the owner, private entries to the owner alone.
func (s *JournalService) ListVisibleEntries(ctx context.Context, viewer, owner string) ([]*model.JournalEntry, error) {
	if viewer != "" && viewer == owner {
		return s.list(ctx, owner)
	}
	visible := []model.JournalVisibility{model.JournalPublic}
	if viewer != "" {
		shares, err := retryValue(ctx, s.retry, func(ctx context.Context) (bool, error) {
			return s.memberships.SharesActiveCircle(ctx, viewer, owner)
		})
		if err != nil {
			return nil, storeError("check shared circles", err)
		}
		if shares {
			visible = append(visible, model.JournalCircle)
		}
	}
	return s.list(ctx, owner, visible...)
}

func (s *JournalService) list(ctx context.Context, owner string, visibilities ...model.JournalVisibility) ([]*model.JournalEntry, error) {
	entries, err := retryValue(ctx, s.retry, func(ctx context.Context) ([]*model.JournalEntry, error) {
		return s.journals.ListByUser(ctx, owner, visibilities...)
	})
	if err != nil {
		return nil, storeError("list journal entries", err)
	}
	return entries, nil
}
