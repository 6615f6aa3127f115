package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input for an action.
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition marks an action that is not legal from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStaleState marks a transition whose source status changed before the write landed.
	ErrStaleState = errors.New("stale state")
)

// TransitionError reports an illegal transition together with the status observed.
type TransitionError struct {
	Entity  string
	Action  string
	Current string
	// Stale is set when the validator passed but the conditional write found another status.
	Stale bool
}

func (e *TransitionError) Error() string {
	if e.Stale {
		return fmt.Sprintf("cannot %s %s: status changed concurrently, now %q", e.Action, e.Entity, e.Current)
	}
	return fmt.Sprintf("cannot %s %s with status %q", e.Action, e.Entity, e.Current)
}

// Is matches ErrInvalidTransition always and ErrStaleState for stale writes.
func (e *TransitionError) Is(target error) bool {
	if target == ErrInvalidTransition {
		return true
	}
	return e.Stale && target == ErrStaleState
}

// Stale builds the error returned when a conditional write lost against a concurrent writer.
func Stale(entity, action, current string) error {
	return &TransitionError{Entity: entity, Action: action, Current: current, Stale: true}
}

func invalid(entity, action, current string) error {
	return &TransitionError{Entity: entity, Action: action, Current: current}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
