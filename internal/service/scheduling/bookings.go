package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bookline/backend/internal/broadcast"
	"bookline/backend/internal/domain"
	"bookline/backend/internal/store"
)

type CreateBookingRequest struct {
	CustomerID string
	ProviderID string
	StaffID    *string
	ServiceID  string
	StartTime  time.Time
}

// CreateBooking books a slot. The conflict check and the insert run in one
// provider transaction, so two customers racing for the same slot cannot both
// win; the loser gets a ConflictError.
func (s *Service) CreateBooking(ctx context.Context, req CreateBookingRequest) (domain.Booking, error) {
	if req.CustomerID == "" || req.ProviderID == "" || req.ServiceID == "" {
		return domain.Booking{}, validationError("customer_id, provider_id and service_id are required")
	}
	if req.StartTime.IsZero() {
		return domain.Booking{}, validationError("start_time is required")
	}

	policy, loc, err := s.providerContext(ctx, req.ProviderID, req.ServiceID)
	if err != nil {
		return domain.Booking{}, err
	}

	booking := domain.Booking{
		CustomerID:    req.CustomerID,
		ProviderID:    req.ProviderID,
		StaffID:       req.StaffID,
		ServiceID:     req.ServiceID,
		StartTime:     req.StartTime.UTC(),
		EndTime:       req.StartTime.Add(policy.Duration()).UTC(),
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
	}
	if policy.DepositRequired {
		booking.PaymentStatus = domain.PaymentStatusDepositPending
	}

	err = s.repo.InProviderTransaction(ctx, req.ProviderID, func(ctx context.Context, tx store.ScheduleTx) error {
		booking, err = s.checkAndInsert(ctx, tx, policy, loc, booking, nil)
		return err
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.publish(broadcast.Event{
		Type:       broadcast.EventBookingCreated,
		ProviderID: booking.ProviderID,
		ServiceID:  booking.ServiceID,
		BookingID:  booking.ID.String(),
		Date:       localDate(booking.StartTime, loc).Format("2006-01-02"),
	})
	return booking, nil
}

// CreateBookingInTx conflict-checks and inserts b inside an already open
// provider transaction. Direct booking and the series generator both go
// through this guard.
func (s *Service) CreateBookingInTx(ctx context.Context, tx store.ScheduleTx, policy domain.ServicePolicy, loc *time.Location, b domain.Booking) (domain.Booking, error) {
	return s.checkAndInsert(ctx, tx, policy, loc, b, nil)
}

func (s *Service) checkAndInsert(ctx context.Context, tx store.ScheduleTx, policy domain.ServicePolicy, loc *time.Location, b domain.Booking, exclude map[string]struct{}) (domain.Booking, error) {
	date := localDate(b.StartTime, loc)

	hours, err := tx.ListWorkingHours(ctx, b.ProviderID)
	if err != nil {
		return domain.Booking{}, err
	}
	blocks, err := tx.ListBlockedTimes(ctx, b.ProviderID, date)
	if err != nil {
		return domain.Booking{}, err
	}
	dayStart := domain.MinuteOfDay(date, 0, loc)
	bookings, err := tx.ListActiveBookings(ctx, b.ProviderID, b.StaffID, dayStart.Add(-policy.Buffer()), dayStart.AddDate(0, 0, 1))
	if err != nil {
		return domain.Booking{}, err
	}

	day := BuildDaySchedule(date, loc, hours, blocks, bookings, policy.Buffer(), exclude)
	if reason := CheckConflict(day, policy, b.Interval(), s.now()); reason != ConflictNone {
		return domain.Booking{}, &ConflictError{Reason: reason}
	}

	created, err := tx.CreateBooking(ctx, b)
	if errors.Is(err, store.ErrConflict) {
		// The database guard caught a writer the application check missed.
		return domain.Booking{}, &ConflictError{Reason: ConflictOverlapsBooking}
	}
	if err != nil {
		return domain.Booking{}, err
	}
	return created, nil
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *Service) ListBookings(ctx context.Context, filter store.BookingFilter) ([]domain.Booking, error) {
	return s.repo.ListBookings(ctx, filter)
}

// ConfirmBooking moves a pending booking to confirmed. The slot is already
// held; no conflict re-check is needed.
func (s *Service) ConfirmBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return s.transition(ctx, id, domain.BookingStatusConfirmed, nil)
}

// CheckInBooking marks a confirmed booking as in progress. Check-in before
// the booked start is rejected.
func (s *Service) CheckInBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return s.transition(ctx, id, domain.BookingStatusInProgress, func(b *domain.Booking) error {
		if s.now().Before(b.StartTime) {
			return validationError("cannot check in before the booking starts")
		}
		return nil
	})
}

// CompleteBooking closes out an in-progress booking.
func (s *Service) CompleteBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return s.transition(ctx, id, domain.BookingStatusCompleted, nil)
}

// CancelBooking cancels a pending or confirmed booking and records the
// cancellation fee the policy dictates for this notice period.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	policy, err := s.repo.GetServicePolicy(ctx, booking.ServiceID)
	if err != nil {
		return domain.Booking{}, err
	}

	now := s.now().UTC()
	booking, err = s.transition(ctx, id, domain.BookingStatusCancelled, func(b *domain.Booking) error {
		b.CancelledAt = &now
		b.CancellationFee = domain.CancellationFeeCents(policy, b.StartTime, now, policy.PriceCents)
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.publish(broadcast.Event{
		Type:       broadcast.EventBookingCancelled,
		ProviderID: booking.ProviderID,
		ServiceID:  booking.ServiceID,
		BookingID:  booking.ID.String(),
		Date:       booking.StartTime.UTC().Format("2006-01-02"),
	})
	return booking, nil
}

// RescheduleBooking moves a pending or confirmed booking to a new start. The
// original becomes terminal (rescheduled) and a replacement carrying the same
// status is created, linked through rescheduled_from. Both writes share one
// provider transaction, so the calendar never shows neither or both slots.
func (s *Service) RescheduleBooking(ctx context.Context, id uuid.UUID, newStart time.Time) (domain.Booking, error) {
	if newStart.IsZero() {
		return domain.Booking{}, validationError("new start_time is required")
	}

	original, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	policy, loc, err := s.providerContext(ctx, original.ProviderID, original.ServiceID)
	if err != nil {
		return domain.Booking{}, err
	}

	var replacement domain.Booking
	err = s.repo.InProviderTransaction(ctx, original.ProviderID, func(ctx context.Context, tx store.ScheduleTx) error {
		current, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.Status, domain.BookingStatusRescheduled) {
			return &TransitionError{From: current.Status, To: domain.BookingStatusRescheduled}
		}

		duration := current.EndTime.Sub(current.StartTime)
		next := domain.Booking{
			CustomerID:         current.CustomerID,
			ProviderID:         current.ProviderID,
			StaffID:            current.StaffID,
			ServiceID:          current.ServiceID,
			StartTime:          newStart.UTC(),
			EndTime:            newStart.Add(duration).UTC(),
			Status:             current.Status,
			PaymentStatus:      current.PaymentStatus,
			RecurringBookingID: current.RecurringBookingID,
			RescheduledFrom:    &current.ID,
		}

		// Retire the original first so its unique start key frees up, and
		// exclude it from the busy set so moving within its own slot works.
		current.Status = domain.BookingStatusRescheduled
		if _, err := tx.UpdateBooking(ctx, current); err != nil {
			return err
		}

		exclude := map[string]struct{}{current.ID.String(): {}}
		replacement, err = s.checkAndInsert(ctx, tx, policy, loc, next, exclude)
		return err
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.publish(broadcast.Event{
		Type:       broadcast.EventBookingRescheduled,
		ProviderID: replacement.ProviderID,
		ServiceID:  replacement.ServiceID,
		BookingID:  replacement.ID.String(),
		Date:       localDate(replacement.StartTime, loc).Format("2006-01-02"),
	})
	return replacement, nil
}

// transition re-reads the booking under the provider lock, validates the state
// change and applies it. mutate, when set, adjusts the row before the update
// and may veto it.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to domain.BookingStatus, mutate func(*domain.Booking) error) (domain.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}

	err = s.repo.InProviderTransaction(ctx, booking.ProviderID, func(ctx context.Context, tx store.ScheduleTx) error {
		current, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(current.Status, to) {
			return &TransitionError{From: current.Status, To: to}
		}
		current.Status = to
		if mutate != nil {
			if err := mutate(&current); err != nil {
				return err
			}
		}
		booking, err = tx.UpdateBooking(ctx, current)
		return err
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.log.Info("booking transition",
		slog.String("booking_id", id.String()),
		slog.String("status", string(to)),
	)
	return booking, nil
}

// providerContext loads the policy and timezone a booking operation needs and
// verifies the service belongs to the provider.
func (s *Service) providerContext(ctx context.Context, providerID, serviceID string) (domain.ServicePolicy, *time.Location, error) {
	policy, err := s.repo.GetServicePolicy(ctx, serviceID)
	if err != nil {
		return domain.ServicePolicy{}, nil, err
	}
	if policy.ProviderID != providerID {
		return domain.ServicePolicy{}, nil, validationError("service does not belong to provider")
	}
	sched, err := s.repo.GetProviderSchedule(ctx, providerID)
	if err != nil {
		return domain.ServicePolicy{}, nil, err
	}
	loc, err := sched.Location()
	if err != nil {
		return domain.ServicePolicy{}, nil, err
	}
	return policy, loc, nil
}

// localDate is the provider-local calendar date of t, as UTC midnight.
func localDate(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}
