package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/store"
)

type CreateSeriesRequest struct {
	CustomerID    string
	ProviderID    string
	StaffID       *string
	ServiceID     string
	Frequency     domain.RecurrenceFrequency
	IntervalWeeks int
	ByWeekday     []int16
	StartDate     time.Time
	StartMinute   int
	EndDate       *time.Time
	MaxBookings   *int
	AutoConfirm   bool
	SkipDates     []time.Time
}

// CreateRecurringBooking registers a series. Nothing is materialized here;
// the generator picks the series up from next_booking_date onward.
func (s *Service) CreateRecurringBooking(ctx context.Context, req CreateSeriesRequest) (domain.RecurringBooking, error) {
	if req.CustomerID == "" || req.ProviderID == "" || req.ServiceID == "" {
		return domain.RecurringBooking{}, validationError("customer_id, provider_id and service_id are required")
	}
	if !req.Frequency.Valid() {
		return domain.RecurringBooking{}, validationError("unknown recurrence frequency")
	}
	if req.Frequency == domain.RecurrenceFrequencyCustom && req.IntervalWeeks < 1 {
		return domain.RecurringBooking{}, validationError("custom frequency requires interval_weeks >= 1")
	}
	for _, wd := range req.ByWeekday {
		if wd < 1 || wd > 7 {
			return domain.RecurringBooking{}, validationError("by_weekday values must be 1 (Monday) through 7 (Sunday)")
		}
	}
	if req.StartDate.IsZero() {
		return domain.RecurringBooking{}, validationError("start_date is required")
	}
	if req.StartMinute < 0 || req.StartMinute >= 24*60 {
		return domain.RecurringBooking{}, validationError("start_minute out of range")
	}
	if req.EndDate != nil && domain.DateOf(*req.EndDate).Before(domain.DateOf(req.StartDate)) {
		return domain.RecurringBooking{}, validationError("end_date precedes start_date")
	}
	if req.MaxBookings != nil && *req.MaxBookings < 1 {
		return domain.RecurringBooking{}, validationError("max_bookings must be positive")
	}

	policy, _, err := s.providerContext(ctx, req.ProviderID, req.ServiceID)
	if err != nil {
		return domain.RecurringBooking{}, err
	}

	series := domain.RecurringBooking{
		CustomerID:      req.CustomerID,
		ProviderID:      req.ProviderID,
		StaffID:         req.StaffID,
		ServiceID:       req.ServiceID,
		Frequency:       req.Frequency,
		IntervalWeeks:   req.IntervalWeeks,
		ByWeekday:       req.ByWeekday,
		StartMinute:     req.StartMinute,
		DurationMinutes: policy.DurationMinutes,
		EndDate:         req.EndDate,
		MaxBookings:     req.MaxBookings,
		AutoConfirm:     req.AutoConfirm,
		Status:          domain.SeriesStatusActive,
	}
	for _, d := range req.SkipDates {
		series.SkipDates = series.SkipDates.Add(d)
	}

	first, err := firstOccurrenceOnOrAfter(series, req.StartDate)
	if err != nil {
		return domain.RecurringBooking{}, validationError(err.Error())
	}
	series.NextBookingDate = first

	return s.repo.CreateRecurringBooking(ctx, series)
}

func (s *Service) GetRecurringBooking(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error) {
	return s.repo.GetRecurringBooking(ctx, id)
}

// PauseSeries stops generation until the series is resumed.
func (s *Service) PauseSeries(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error) {
	return s.transitionSeries(ctx, id, domain.SeriesStatusPaused)
}

// ResumeSeries re-enters a paused series into the generator sweep. Occurrence
// dates skipped while paused are not back-filled.
func (s *Service) ResumeSeries(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error) {
	return s.transitionSeries(ctx, id, domain.SeriesStatusActive)
}

// CancelSeries terminally stops generation. Bookings already materialized
// stay on the calendar and are cancelled individually.
func (s *Service) CancelSeries(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error) {
	return s.transitionSeries(ctx, id, domain.SeriesStatusCancelled)
}

func (s *Service) transitionSeries(ctx context.Context, id uuid.UUID, to domain.SeriesStatus) (domain.RecurringBooking, error) {
	series, err := s.repo.GetRecurringBooking(ctx, id)
	if err != nil {
		return domain.RecurringBooking{}, err
	}

	// Under the provider lock so a status flip cannot interleave with a
	// generator sweep of the same series.
	err = s.repo.InProviderTransaction(ctx, series.ProviderID, func(ctx context.Context, tx store.ScheduleTx) error {
		current, err := tx.GetRecurringBooking(ctx, id)
		if err != nil {
			return err
		}
		if !domain.CanTransitionSeries(current.Status, to) {
			return validationError("series cannot move from " + string(current.Status) + " to " + string(to))
		}
		current.Status = to
		series, err = tx.UpdateRecurringBooking(ctx, current)
		return err
	})
	if err != nil {
		return domain.RecurringBooking{}, err
	}
	return series, nil
}

type AddExceptionRequest struct {
	SeriesID     uuid.UUID
	Date         time.Time
	Kind         domain.ExceptionKind
	NewStartTime *time.Time
	NewEndTime   *time.Time
	Reason       string
}

// AddException records a one-occurrence override. The generator consults it
// when the occurrence date comes up; at most one exception exists per
// (series, date), later writes replacing earlier ones.
func (s *Service) AddException(ctx context.Context, req AddExceptionRequest) (domain.RecurringException, error) {
	if !req.Kind.Valid() {
		return domain.RecurringException{}, validationError("unknown exception kind")
	}
	if req.Date.IsZero() {
		return domain.RecurringException{}, validationError("exception date is required")
	}
	if req.Kind == domain.ExceptionKindReschedule {
		if req.NewStartTime == nil || req.NewEndTime == nil {
			return domain.RecurringException{}, validationError("reschedule exception requires new start and end times")
		}
		if !req.NewEndTime.After(*req.NewStartTime) {
			return domain.RecurringException{}, validationError("exception end must be after start")
		}
	}

	if _, err := s.repo.GetRecurringBooking(ctx, req.SeriesID); err != nil {
		return domain.RecurringException{}, err
	}

	return s.repo.UpsertRecurringException(ctx, domain.RecurringException{
		RecurringBookingID: req.SeriesID,
		ExceptionDate:      domain.DateOf(req.Date),
		Kind:               req.Kind,
		NewStartTime:       req.NewStartTime,
		NewEndTime:         req.NewEndTime,
		Reason:             req.Reason,
	})
}

// firstOccurrenceOnOrAfter returns date itself when it satisfies the cadence,
// otherwise the next date that does.
func firstOccurrenceOnOrAfter(series domain.RecurringBooking, date time.Time) (time.Time, error) {
	date = domain.DateOf(date)
	switch series.Frequency {
	case domain.RecurrenceFrequencyDaily, domain.RecurrenceFrequencyMonthly, domain.RecurrenceFrequencyQuarterly:
		return date, nil
	}
	if len(series.ByWeekday) == 0 {
		return date, nil
	}
	for _, wd := range series.ByWeekday {
		if wd == isoWeekday(date.Weekday()) {
			return date, nil
		}
	}
	return domain.NextOccurrenceDate(series, date)
}
