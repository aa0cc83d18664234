package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusPending     BookingStatus = "pending"
	BookingStatusConfirmed   BookingStatus = "confirmed"
	BookingStatusInProgress  BookingStatus = "in_progress"
	BookingStatusCompleted   BookingStatus = "completed"
	BookingStatusCancelled   BookingStatus = "cancelled"
	BookingStatusRescheduled BookingStatus = "rescheduled"
)

// ActiveBookingStatuses are the states that occupy provider time. The overlap
// invariant is enforced over bookings in these states only.
var ActiveBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusInProgress,
}

func (s BookingStatus) Active() bool {
	for _, a := range ActiveBookingStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// bookingTransitions is the closed transition table. Completed, cancelled and
// rescheduled are terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusRescheduled},
	BookingStatusConfirmed:  {BookingStatusInProgress, BookingStatusCancelled, BookingStatusRescheduled},
	BookingStatusInProgress: {BookingStatusCompleted},
}

// CanTransition reports whether from -> to is a legal booking transition.
func CanTransition(from, to BookingStatus) bool {
	for _, t := range bookingTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusUnpaid         PaymentStatus = "unpaid"
	PaymentStatusDepositPending PaymentStatus = "deposit_pending"
	PaymentStatusPaid           PaymentStatus = "paid"
	PaymentStatusRefunded       PaymentStatus = "refunded"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings" json:"-"`

	ID                 uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	CustomerID         string        `bun:"customer_id,notnull" json:"customer_id"`
	ProviderID         string        `bun:"provider_id,notnull" json:"provider_id"`
	StaffID            *string       `bun:"staff_id" json:"staff_id,omitempty"`
	ServiceID          string        `bun:"service_id,notnull" json:"service_id"`
	StartTime          time.Time     `bun:"start_time,notnull" json:"start_time"`
	EndTime            time.Time     `bun:"end_time,notnull" json:"end_time"`
	Status             BookingStatus `bun:"status,notnull" json:"status"`
	PaymentStatus      PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	RecurringBookingID *uuid.UUID    `bun:"recurring_booking_id,type:uuid" json:"recurring_booking_id,omitempty"`
	OccurrenceDate     *time.Time    `bun:"occurrence_date" json:"occurrence_date,omitempty"`
	RescheduledFrom    *uuid.UUID    `bun:"rescheduled_from,type:uuid" json:"rescheduled_from,omitempty"`
	CancellationFee    int64         `bun:"cancellation_fee_cents,notnull,default:0" json:"cancellation_fee_cents"`
	CancelledAt        *time.Time    `bun:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt          time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return touchModel(&b.ID, &b.CreatedAt, &b.UpdatedAt, query)
}

func (b *Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// OccupiedInterval returns the booking interval padded with the trailing
// buffer that keeps the next booking from starting back-to-back.
func (b *Booking) OccupiedInterval(buffer time.Duration) Interval {
	iv := b.Interval()
	if buffer > 0 {
		iv.End = iv.End.Add(buffer)
	}
	return iv
}

// CancellationFeeCents computes the fee owed for cancelling at now. Within the
// policy window the configured percentage of the service price applies;
// earlier cancellations are free.
func CancellationFeeCents(policy ServicePolicy, start, now time.Time, servicePriceCents int64) int64 {
	threshold := time.Duration(policy.CancellationPolicyHours) * time.Hour
	if start.Sub(now) >= threshold {
		return 0
	}
	if policy.CancellationFeePercent <= 0 || servicePriceCents <= 0 {
		return 0
	}
	return servicePriceCents * int64(policy.CancellationFeePercent) / 100
}
