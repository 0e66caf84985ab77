package dispatch

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a task id does not resolve.
var ErrNotFound = errors.New("dispatch: task not found")

// NotClaimableError carries the task's current status so callers can render
// spec §4.4's `not_claimable(<status>)` reason string.
type NotClaimableError struct {
	Status Status
}

func (e *NotClaimableError) Error() string {
	return fmt.Sprintf("not_claimable(%s)", e.Status)
}

// ErrNotActive is returned by unclaim/complete when the task isn't active.
var ErrNotActive = errors.New("dispatch: task is not active")

// ErrInvalidOutcome is returned when complete is called with an outcome
// that isn't one of the enum values.
var ErrInvalidOutcome = errors.New("dispatch: invalid completion outcome")
