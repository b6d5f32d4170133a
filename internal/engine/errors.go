package engine

import (
	"errors"
	"fmt"
)

// ErrFieldUnavailable is returned when booking initiation finds the target
// field already reserved for the match window.
var ErrFieldUnavailable = errors.New("field already booked for this window")

// ErrCreatorInterest is returned when a creator tries to express interest in
// their own match.
var ErrCreatorInterest = errors.New("creator cannot express interest in their own match")

// UnauthorizedError is returned when the caller is not the creator or
// participant an operation requires.
type UnauthorizedError struct {
	Action string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("only the match creator may %s", e.Action)
}

// InvalidStateError is returned when an operation is not legal from the
// current lifecycle or participant state.
type InvalidStateError struct {
	Op     string
	Status string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while status is %s", e.Op, e.Status)
}

// DuplicateActionError is returned for repeated one-shot actions: a second
// interest expression for the same pair, or deciding an already-decided
// participant.
type DuplicateActionError struct {
	Reason string
}

func (e DuplicateActionError) Error() string { return e.Reason }

// CapacityExceededError is returned when the approved count and the slot
// limit cannot be reconciled: an approval against an already filled match,
// or a convert attempt short of the needed players.
type CapacityExceededError struct {
	SlotsNeeded int
	Approved    int
}

func (e CapacityExceededError) Error() string {
	return fmt.Sprintf("%d approved participants against a slot limit of %d", e.Approved, e.SlotsNeeded)
}
