package application

import (
	"errors"
	"fmt"

	"jobmate/autoapply-service/internal/store"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when a posting, CV or application is missing or
	// does not belong to the user.
	ErrNotFound = store.ErrNotFound
	// ErrNoDefaultCV is wrapped by a PreconditionError when no CV was given
	// and the user has no default one.
	ErrNoDefaultCV = errors.New("user has no default cv")
	// ErrNoActiveFilter is wrapped by a PreconditionError when a search is
	// started without any active filter.
	ErrNoActiveFilter = errors.New("user has no active search filter")
)

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// PreconditionError reports a request that is well-formed but cannot be
// served in the current state. It has no side effect.
type PreconditionError struct {
	Msg string
	Err error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// DuplicateError is returned when the user already has an active application
// for the posting.
type DuplicateError struct{ ApplicationID string }

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("an active application already exists: %s", e.ApplicationID)
}
