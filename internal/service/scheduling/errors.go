package scheduling

import (
	"fmt"

	"bookline/backend/internal/domain"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ConflictReason says why a proposed interval is not bookable.
type ConflictReason string

const (
	ConflictNone                  ConflictReason = ""
	ConflictOverlapsBooking       ConflictReason = "overlaps_booking"
	ConflictOverlapsBlockedTime   ConflictReason = "overlaps_blocked_time"
	ConflictOutsideWorkingHours   ConflictReason = "outside_working_hours"
	ConflictViolatesAdvanceNotice ConflictReason = "violates_advance_notice"
)

// ConflictError reports a booking attempt that lost to existing commitments.
// No mutation happens when it is returned.
type ConflictError struct {
	Reason ConflictReason
}

func (e *ConflictError) Error() string {
	return "slot conflict: " + string(e.Reason)
}

// TransitionError reports a booking or series operation attempted from a
// state it is not legal in.
type TransitionError struct {
	From domain.BookingStatus
	To   domain.BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
