// Package generator materializes recurring booking series into concrete
// bookings, one occurrence per transaction.
package generator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bookline/backend/internal/broadcast"
	"bookline/backend/internal/domain"
	"bookline/backend/internal/service/scheduling"
	"bookline/backend/internal/store"
)

const (
	defaultInterval = time.Minute
	// maxStepsPerSweep bounds catch-up for a series that fell far behind; the
	// remainder is picked up on the next tick.
	maxStepsPerSweep = 64
)

// Worker sweeps active series whose next occurrence date is due and creates
// the corresponding bookings through the same conflict guard direct bookings
// use. Each occurrence is one provider transaction, so a crash mid-sweep
// loses at most in-flight work and the occurrence key makes replays
// idempotent.
type Worker struct {
	repo     store.ScheduleStore
	svc      *scheduling.Service
	events   scheduling.EventPublisher
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func New(repo store.ScheduleStore, svc *scheduling.Service, events scheduling.EventPublisher, log *slog.Logger, interval time.Duration) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Worker{
		repo:     repo,
		svc:      svc,
		events:   events,
		log:      log.With(slog.String("component", "generator")),
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps immediately, then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep processes every due series once. A failing series is logged and left
// for the next tick; it never blocks the others.
func (w *Worker) Sweep(ctx context.Context) {
	due, err := w.repo.ListDueRecurringBookings(ctx, w.now())
	if err != nil {
		w.log.Error("listing due series failed", slog.Any("err", err))
		return
	}

	for _, series := range due {
		if ctx.Err() != nil {
			return
		}
		if err := w.processSeries(ctx, series); err != nil {
			w.log.Error("series sweep failed",
				slog.String("series_id", series.ID.String()),
				slog.Any("err", err),
			)
		}
	}
}

func (w *Worker) processSeries(ctx context.Context, series domain.RecurringBooking) error {
	policy, err := w.repo.GetServicePolicy(ctx, series.ServiceID)
	if err != nil {
		return err
	}
	sched, err := w.repo.GetProviderSchedule(ctx, series.ProviderID)
	if err != nil {
		return err
	}
	loc, err := sched.Location()
	if err != nil {
		return err
	}

	for i := 0; i < maxStepsPerSweep; i++ {
		more, err := w.step(ctx, series.ID, series.ProviderID, policy, loc)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// step materializes (or skips) exactly one occurrence inside a provider
// transaction and advances the series. It returns true when another due
// occurrence remains.
func (w *Worker) step(ctx context.Context, seriesID uuid.UUID, providerID string, policy domain.ServicePolicy, loc *time.Location) (bool, error) {
	var (
		more  bool
		event *broadcast.Event
	)

	err := w.repo.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.ScheduleTx) error {
		series, err := tx.GetRecurringBooking(ctx, seriesID)
		if err != nil {
			return err
		}
		if series.Status != domain.SeriesStatusActive {
			return nil
		}

		date := domain.DateOf(series.NextBookingDate)
		today := domain.DateOf(w.now())
		if date.After(today) {
			return nil
		}
		if series.ReachedEnd(date) {
			series.Status = domain.SeriesStatusCompleted
			_, err = tx.UpdateRecurringBooking(ctx, series)
			return err
		}

		exception, err := tx.FindRecurringException(ctx, series.ID, date)
		if err != nil {
			return err
		}
		if exception != nil && exception.Kind == domain.ExceptionKindCancel {
			series.Status = domain.SeriesStatusCancelled
			_, err = tx.UpdateRecurringBooking(ctx, series)
			return err
		}

		skip := series.SkipDates.Contains(date) || (exception != nil && exception.Kind == domain.ExceptionKindSkip)
		if !skip {
			occ := series.OccurrenceInterval(date, loc)
			if exception != nil && exception.Kind == domain.ExceptionKindReschedule {
				occ = domain.Interval{Start: exception.NewStartTime.UTC(), End: exception.NewEndTime.UTC()}
			}

			created, err := w.materialize(ctx, tx, series, policy, loc, occ, date)
			switch {
			case err == nil:
				series.BookingsCreated++
				now := w.now().UTC()
				series.LastBookingCreated = &now
				event = &broadcast.Event{
					Type:       broadcast.EventBookingCreated,
					ProviderID: series.ProviderID,
					ServiceID:  series.ServiceID,
					BookingID:  created.ID.String(),
					SeriesID:   series.ID.String(),
					Date:       date.Format("2006-01-02"),
				}
			case errors.Is(err, store.ErrDuplicateOccurrence):
				// A previous run already materialized this occurrence;
				// advance without counting it again.
			case isConflict(err):
				// The slot is gone (blocked time or a direct booking won
				// it). The occurrence is dropped, not retried.
				w.log.Warn("occurrence conflicts, skipping",
					slog.String("series_id", series.ID.String()),
					slog.String("date", date.Format("2006-01-02")),
				)
			default:
				return err
			}
		}

		next, err := domain.NextOccurrenceDate(series, date)
		if err != nil {
			return err
		}
		series.NextBookingDate = next
		if series.ReachedEnd(next) {
			series.Status = domain.SeriesStatusCompleted
		}
		if _, err := tx.UpdateRecurringBooking(ctx, series); err != nil {
			return err
		}

		more = series.Status == domain.SeriesStatusActive && !domain.DateOf(next).After(today)
		return nil
	})
	if err != nil {
		return false, err
	}

	if event != nil && w.events != nil {
		w.events.Publish(*event)
	}
	return more, nil
}

func (w *Worker) materialize(ctx context.Context, tx store.ScheduleTx, series domain.RecurringBooking, policy domain.ServicePolicy, loc *time.Location, occ domain.Interval, date time.Time) (domain.Booking, error) {
	status := domain.BookingStatusPending
	if series.AutoConfirm {
		status = domain.BookingStatusConfirmed
	}
	payment := domain.PaymentStatusUnpaid
	if policy.DepositRequired {
		payment = domain.PaymentStatusDepositPending
	}

	// Notice windows govern customer-initiated bookings; the series itself
	// was the advance commitment.
	policy.MinAdvanceHours = 0
	policy.MaxAdvanceDays = 0

	return w.svc.CreateBookingInTx(ctx, tx, policy, loc, domain.Booking{
		CustomerID:         series.CustomerID,
		ProviderID:         series.ProviderID,
		StaffID:            series.StaffID,
		ServiceID:          series.ServiceID,
		StartTime:          occ.Start,
		EndTime:            occ.End,
		Status:             status,
		PaymentStatus:      payment,
		RecurringBookingID: &series.ID,
		OccurrenceDate:     &date,
	})
}

func isConflict(err error) bool {
	var conflict *scheduling.ConflictError
	return errors.As(err, &conflict)
}
