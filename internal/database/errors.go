package database

import (
	"errors"
	"fmt"

	"konsult/internal/models"
)

var (
	// ErrSlotConflict: another booking already claims an increment of the
	// requested run. Retryable by picking a different slot.
	ErrSlotConflict = errors.New("slot already claimed")

	// ErrAlreadyRescheduled: the booking has used its single reschedule.
	ErrAlreadyRescheduled = errors.New("booking already rescheduled")

	// ErrBookingNotFound: no booking record yet for the purchase. The
	// reconciliation poller consumes this as a retry signal; it is never
	// surfaced to users directly.
	ErrBookingNotFound = errors.New("booking not found")

	ErrPurchaseNotFound   = errors.New("purchase not found")
	ErrConsultantNotFound = errors.New("consultant not found")

	// ErrVerificationFailed is deliberately uniform: a wrong credential and
	// a nonexistent purchase id must be indistinguishable to the caller.
	ErrVerificationFailed = errors.New("verification failed")

	ErrConcurrentModification = errors.New("concurrent modification")
	ErrPastSlot               = errors.New("slot is in the past")
	ErrNotAvailable           = errors.New("slot not available")
)

// SlotConflictError names the first colliding increment of a rejected claim.
type SlotConflictError struct {
	Slot models.SlotRef
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot already claimed: %s %s", e.Slot.Date, e.Slot.Time)
}

func (e *SlotConflictError) Unwrap() error {
	return ErrSlotConflict
}
