package service

import (
	"errors"
	"fmt"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
)

// Ledger outcomes. Callers tell "not allowed" apart from "store broken" by
// checking ErrStoreUnavailable first.
var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrAlreadyMember      = errors.New("user already has a membership in this circle")
	ErrCircleNotFound     = errors.New("circle not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrCannotRemoveSelf   = errors.New("admins cannot remove themselves")
	ErrCannotDemoteSelf   = errors.New("admins cannot demote themselves")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrPartialCreate      = errors.New("circle was not created")
	ErrNothingToUpdate    = errors.New("no fields to update")
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrCommentNotFound = errors.New("comment not found")
)

// storeError wraps a repository failure so it can never be read as an
// authorization outcome.
func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// lookupError maps a single-row lookup failure: a missing row becomes
// notFound, anything else is a store failure.
func lookupError(op string, err, notFound error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return storeError(op, err)
}

// IsStoreFailure reports whether err came from the row store rather than from
// a business rule.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsInvalidInput reports a caller-supplied value rejected by field validation.
func IsInvalidInput(err error) bool {
	return errors.Is(err, model.ErrInvalidInput)
}
