package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookline/backend/internal/domain"
)

// BookingFilter narrows ListBookings. Zero fields are ignored.
type BookingFilter struct {
	CustomerID string
	ProviderID string
	Status     domain.BookingStatus
	From       time.Time
	To         time.Time
}

// ScheduleStore is the persistence surface of the scheduling engine. It holds
// no business rules; conflict policy lives in the service layer and runs
// against a ScheduleTx.
type ScheduleStore interface {
	// InProviderTransaction runs fn inside a transaction that holds the
	// provider's calendar lock, serializing conflicting writers.
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx ScheduleTx) error) error

	GetProviderSchedule(ctx context.Context, providerID string) (domain.ProviderSchedule, error)
	UpsertProviderSchedule(ctx context.Context, ps domain.ProviderSchedule) (domain.ProviderSchedule, error)
	GetServicePolicy(ctx context.Context, serviceID string) (domain.ServicePolicy, error)
	UpsertServicePolicy(ctx context.Context, sp domain.ServicePolicy) (domain.ServicePolicy, error)

	ListWorkingHours(ctx context.Context, providerID string) ([]domain.WorkingHours, error)
	ReplaceWorkingHours(ctx context.Context, providerID string, rows []domain.WorkingHours) error
	CreateBlockedTime(ctx context.Context, bt domain.BlockedTime) (domain.BlockedTime, error)
	ListBlockedTimes(ctx context.Context, providerID string, date time.Time) ([]domain.BlockedTime, error)

	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]domain.Booking, error)
	ListActiveBookings(ctx context.Context, providerID string, staffID *string, windowStart, windowEnd time.Time) ([]domain.Booking, error)

	CreateRecurringBooking(ctx context.Context, rb domain.RecurringBooking) (domain.RecurringBooking, error)
	GetRecurringBooking(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error)
	// ListDueRecurringBookings returns active series whose next occurrence
	// date is on or before asOf.
	ListDueRecurringBookings(ctx context.Context, asOf time.Time) ([]domain.RecurringBooking, error)
	UpdateRecurringBooking(ctx context.Context, rb domain.RecurringBooking) (domain.RecurringBooking, error)

	UpsertRecurringException(ctx context.Context, ex domain.RecurringException) (domain.RecurringException, error)
	FindRecurringException(ctx context.Context, recurringBookingID uuid.UUID, date time.Time) (*domain.RecurringException, error)
}

// ScheduleTx is the data access available inside a provider transaction.
// Reads here observe the locked, authoritative state; CreateBooking maps the
// database overlap and uniqueness guards to ErrConflict and
// ErrDuplicateOccurrence.
type ScheduleTx interface {
	ListWorkingHours(ctx context.Context, providerID string) ([]domain.WorkingHours, error)
	ListBlockedTimes(ctx context.Context, providerID string, date time.Time) ([]domain.BlockedTime, error)
	ListActiveBookings(ctx context.Context, providerID string, staffID *string, windowStart, windowEnd time.Time) ([]domain.Booking, error)

	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)

	GetRecurringBooking(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error)
	UpdateRecurringBooking(ctx context.Context, rb domain.RecurringBooking) (domain.RecurringBooking, error)
	FindRecurringException(ctx context.Context, recurringBookingID uuid.UUID, date time.Time) (*domain.RecurringException, error)
}
