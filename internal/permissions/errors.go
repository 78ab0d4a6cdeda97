package permissions

import (
	"errors"
	"fmt"

	"github.com/odyssey-crm/odyssey-crm/internal/platform/httpx"
)

var (
	// ErrPermissionDenied is returned when a non super admin changes a shield lock.
	ErrPermissionDenied = fmt.Errorf("permissions: super admin required: %w", httpx.ErrForbidden)
	// ErrNotFound is returned when a mutation names a param or node the catalog lacks.
	ErrNotFound = fmt.Errorf("permissions: %w", httpx.ErrNotFound)
	// ErrInvalidMutation is returned for malformed mutation requests.
	ErrInvalidMutation = fmt.Errorf("permissions: invalid mutation: %w", httpx.ErrValidation)
	// ErrNotReady is returned when an Editor is used before it was hydrated.
	ErrNotReady = errors.New("permissions: editor not hydrated")
)

// PersistenceError reports a failed save. Proposal holds the change that
// could not be stored so callers can retry or roll back.
type PersistenceError struct {
	Proposal Proposal
	Err      error
}

func (e *PersistenceError) Error() string {
	return "permissions: persist overrides: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is match the generic persistence sentinel.
func (e *PersistenceError) Is(target error) bool { return target == httpx.ErrPersistence }
