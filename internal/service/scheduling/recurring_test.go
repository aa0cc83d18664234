package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"bookline/backend/internal/domain"
)

func TestCreateRecurringBooking_FirstOccurrence(t *testing.T) {
	svc, _, _ := newTestService(t)

	// Start on a Tuesday; the series runs Mondays and Wednesdays.
	series, err := svc.CreateRecurringBooking(context.Background(), CreateSeriesRequest{
		CustomerID:  "c1",
		ProviderID:  "p1",
		ServiceID:   "s1",
		Frequency:   domain.RecurrenceFrequencyWeekly,
		ByWeekday:   []int16{1, 3},
		StartDate:   time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		StartMinute: minutes(9, 0),
	})
	if err != nil {
		t.Fatalf("CreateRecurringBooking error: %v", err)
	}
	if !series.NextBookingDate.Equal(time.Date(2026, 9, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("next = %v, want the Wednesday", series.NextBookingDate)
	}
	if series.DurationMinutes != 60 {
		t.Fatalf("duration = %d, want copied from the service policy", series.DurationMinutes)
	}
	if series.Status != domain.SeriesStatusActive {
		t.Fatalf("status = %s, want active", series.Status)
	}
}

func TestCreateRecurringBooking_StartDateOnCadence(t *testing.T) {
	svc, _, _ := newTestService(t)

	series, err := svc.CreateRecurringBooking(context.Background(), CreateSeriesRequest{
		CustomerID:  "c1",
		ProviderID:  "p1",
		ServiceID:   "s1",
		Frequency:   domain.RecurrenceFrequencyWeekly,
		ByWeekday:   []int16{1},
		StartDate:   testDate, // a Monday
		StartMinute: minutes(9, 0),
	})
	if err != nil {
		t.Fatalf("CreateRecurringBooking error: %v", err)
	}
	if !series.NextBookingDate.Equal(testDate) {
		t.Fatalf("next = %v, want the start date itself", series.NextBookingDate)
	}
}

func TestCreateRecurringBooking_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	base := CreateSeriesRequest{
		CustomerID:  "c1",
		ProviderID:  "p1",
		ServiceID:   "s1",
		Frequency:   domain.RecurrenceFrequencyWeekly,
		ByWeekday:   []int16{1},
		StartDate:   testDate,
		StartMinute: minutes(9, 0),
	}

	tests := []struct {
		name   string
		mutate func(*CreateSeriesRequest)
	}{
		{"unknown frequency", func(r *CreateSeriesRequest) { r.Frequency = "fortnightly" }},
		{"custom without interval", func(r *CreateSeriesRequest) {
			r.Frequency = domain.RecurrenceFrequencyCustom
			r.IntervalWeeks = 0
		}},
		{"weekday out of range", func(r *CreateSeriesRequest) { r.ByWeekday = []int16{8} }},
		{"missing start date", func(r *CreateSeriesRequest) { r.StartDate = time.Time{} }},
		{"end before start", func(r *CreateSeriesRequest) {
			end := testDate.AddDate(0, 0, -1)
			r.EndDate = &end
		}},
		{"non-positive max bookings", func(r *CreateSeriesRequest) {
			zero := 0
			r.MaxBookings = &zero
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := svc.CreateRecurringBooking(context.Background(), req)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %T (%v), want *ValidationError", err, err)
			}
		})
	}
}

func TestSeriesLifecycle(t *testing.T) {
	svc, mem, _ := newTestService(t)
	series := mem.SeedSeries(domain.RecurringBooking{
		CustomerID:      "c1",
		ProviderID:      "p1",
		ServiceID:       "s1",
		Frequency:       domain.RecurrenceFrequencyWeekly,
		ByWeekday:       []int16{1},
		StartMinute:     minutes(9, 0),
		DurationMinutes: 60,
		NextBookingDate: testDate,
		Status:          domain.SeriesStatusActive,
	})

	paused, err := svc.PauseSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("PauseSeries error: %v", err)
	}
	if paused.Status != domain.SeriesStatusPaused {
		t.Fatalf("status = %s, want paused", paused.Status)
	}

	resumed, err := svc.ResumeSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("ResumeSeries error: %v", err)
	}
	if resumed.Status != domain.SeriesStatusActive {
		t.Fatalf("status = %s, want active", resumed.Status)
	}

	cancelled, err := svc.CancelSeries(context.Background(), series.ID)
	if err != nil {
		t.Fatalf("CancelSeries error: %v", err)
	}
	if cancelled.Status != domain.SeriesStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// Cancelled is terminal.
	if _, err := svc.ResumeSeries(context.Background(), series.ID); err == nil {
		t.Fatalf("expected resume of a cancelled series to fail")
	}
}

func TestAddException(t *testing.T) {
	svc, mem, _ := newTestService(t)
	series := mem.SeedSeries(domain.RecurringBooking{
		CustomerID:      "c1",
		ProviderID:      "p1",
		ServiceID:       "s1",
		Frequency:       domain.RecurrenceFrequencyWeekly,
		ByWeekday:       []int16{1},
		StartMinute:     minutes(9, 0),
		DurationMinutes: 60,
		NextBookingDate: testDate,
		Status:          domain.SeriesStatusActive,
	})

	ex, err := svc.AddException(context.Background(), AddExceptionRequest{
		SeriesID: series.ID,
		Date:     testDate,
		Kind:     domain.ExceptionKindSkip,
		Reason:   "provider travelling",
	})
	if err != nil {
		t.Fatalf("AddException error: %v", err)
	}
	if ex.Kind != domain.ExceptionKindSkip {
		t.Fatalf("kind = %s, want skip", ex.Kind)
	}

	found, err := mem.FindRecurringException(context.Background(), series.ID, testDate)
	if err != nil || found == nil {
		t.Fatalf("exception not stored: %v", err)
	}

	// Replacing the exception for the same date keeps one row.
	newStart := utc(14, 0)
	newEnd := utc(15, 0)
	ex, err = svc.AddException(context.Background(), AddExceptionRequest{
		SeriesID:     series.ID,
		Date:         testDate,
		Kind:         domain.ExceptionKindReschedule,
		NewStartTime: &newStart,
		NewEndTime:   &newEnd,
	})
	if err != nil {
		t.Fatalf("AddException (upsert) error: %v", err)
	}
	found, _ = mem.FindRecurringException(context.Background(), series.ID, testDate)
	if found == nil || found.Kind != domain.ExceptionKindReschedule {
		t.Fatalf("exception = %+v, want replaced by reschedule", found)
	}
}

func TestAddException_RescheduleNeedsTimes(t *testing.T) {
	svc, mem, _ := newTestService(t)
	series := mem.SeedSeries(domain.RecurringBooking{
		ProviderID:      "p1",
		ServiceID:       "s1",
		NextBookingDate: testDate,
		Status:          domain.SeriesStatusActive,
	})

	_, err := svc.AddException(context.Background(), AddExceptionRequest{
		SeriesID: series.ID,
		Date:     testDate,
		Kind:     domain.ExceptionKindReschedule,
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %T (%v), want *ValidationError", err, err)
	}
}
