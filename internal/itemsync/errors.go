package itemsync

import (
	"errors"
	"fmt"

	"github.com/gravitas-games/economy/pkg/models"
)

var (
	// ErrDenied is wrapped by every DenialError.
	ErrDenied = errors.New("denied by authority")

	ErrCancelled     = errors.New("cancelled")
	ErrNoCombination = fmt.Errorf("%w: nothing interesting happens", models.ErrValidation)
	ErrCannotUse     = fmt.Errorf("%w: item has no use", models.ErrValidation)
	ErrNotedUse      = fmt.Errorf("%w: noted items must be exchanged at a bank first", models.ErrValidation)
	ErrSameSlot      = fmt.Errorf("%w: choose two different slots", models.ErrValidation)
	ErrInvalidArgs   = fmt.Errorf("%w: invalid arguments", models.ErrValidation)
	ErrNotConnected  = errors.New("authority not connected")
)

// DenialError is the authority's refusal of a request. Nothing was applied.
type DenialError struct {
	Op     string
	Code   string
	Reason string
	// Actor is the conflicting player, when the authority names one.
	Actor string
}

func (e *DenialError) Error() string {
	if e.Actor != "" {
		return fmt.Sprintf("%s denied: %s (%s)", e.Op, e.Reason, e.Actor)
	}
	return fmt.Sprintf("%s denied: %s", e.Op, e.Reason)
}

func (e *DenialError) Unwrap() error { return ErrDenied }

// ConflictError reports that another actor got there first, such as a floor
// item already picked up by someone else.
type ConflictError struct {
	Actor string
	Err   error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: taken by %s", e.Err, e.Actor)
}

func (e *ConflictError) Unwrap() error { return e.Err }
