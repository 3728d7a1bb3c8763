// Package apperrors defines the error taxonomy for the screening engine.
// Sentinel values allow errors.Is checks across package boundaries; the
// structured types below wrap them with the detail callers need to act.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrAnnotationLocked       = errors.New("annotation is signed off and immutable")
	ErrCaseFinalized          = errors.New("case already finalized for this round")
	ErrUnauthorized           = errors.New("permission denied")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrUpstreamTimeout        = errors.New("upstream call timed out")
	ErrScorerUnavailable      = errors.New("AI scorer unavailable")
	ErrInvalidArtifact        = errors.New("invalid sample artifact")
	ErrPersistenceFailure     = errors.New("persistence failure")
	ErrConsentRequired        = errors.New("patient consent required")
)

// InvalidTransitionError reports a rejected state machine transition,
// identifying the current and requested states.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %q to %q", e.Entity, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ConcurrentModificationError reports an optimistic-lock conflict. The caller
// should re-read the entity and retry.
type ConcurrentModificationError struct {
	Entity          string
	ID              string
	ExpectedVersion int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s %s changed since version %d was read", e.Entity, e.ID, e.ExpectedVersion)
}

func (e *ConcurrentModificationError) Unwrap() error { return ErrConcurrentModification }

// NotFoundError reports a missing entity reference.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IsRetryable reports whether a caller is expected to retry the failed
// operation automatically (with backoff). Only optimistic-lock conflicts and
// upstream unavailability qualify; everything else is a caller or policy error.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrUpstreamTimeout) ||
		errors.Is(err, ErrScorerUnavailable)
}
