package scheduling

import (
	"context"
	"time"

	"bookline/backend/internal/broadcast"
	"bookline/backend/internal/domain"
)

const minutesPerDay = 24 * 60

// SetProviderSchedule creates or updates the provider's calendar settings.
func (s *Service) SetProviderSchedule(ctx context.Context, ps domain.ProviderSchedule) (domain.ProviderSchedule, error) {
	if ps.ProviderID == "" {
		return domain.ProviderSchedule{}, validationError("provider_id is required")
	}
	if _, err := time.LoadLocation(ps.Timezone); err != nil {
		return domain.ProviderSchedule{}, validationError("unknown timezone " + ps.Timezone)
	}
	return s.repo.UpsertProviderSchedule(ctx, ps)
}

// SetServicePolicy creates or updates the engine-local scheduling parameters
// of a service.
func (s *Service) SetServicePolicy(ctx context.Context, sp domain.ServicePolicy) (domain.ServicePolicy, error) {
	if sp.ServiceID == "" || sp.ProviderID == "" {
		return domain.ServicePolicy{}, validationError("service_id and provider_id are required")
	}
	if sp.DurationMinutes <= 0 {
		return domain.ServicePolicy{}, validationError("duration_minutes must be positive")
	}
	if sp.BufferMinutes < 0 || sp.MinAdvanceHours < 0 || sp.MaxAdvanceDays < 0 {
		return domain.ServicePolicy{}, validationError("policy values cannot be negative")
	}
	if sp.CancellationFeePercent < 0 || sp.CancellationFeePercent > 100 {
		return domain.ServicePolicy{}, validationError("cancellation_fee_percent must be 0..100")
	}
	return s.repo.UpsertServicePolicy(ctx, sp)
}

func (s *Service) ListWorkingHours(ctx context.Context, providerID string) ([]domain.WorkingHours, error) {
	return s.repo.ListWorkingHours(ctx, providerID)
}

// ReplaceWorkingHours swaps the provider's weekly template atomically and
// announces the change. Existing bookings outside the new hours stay valid;
// only future slot computation changes.
func (s *Service) ReplaceWorkingHours(ctx context.Context, providerID string, rows []domain.WorkingHours) error {
	if providerID == "" {
		return validationError("provider_id is required")
	}
	for _, h := range rows {
		if h.Weekday < 1 || h.Weekday > 7 {
			return validationError("weekday must be 1 (Monday) through 7 (Sunday)")
		}
		if h.StartMinute < 0 || h.EndMinute > minutesPerDay || h.StartMinute >= h.EndMinute {
			return validationError("working hours must satisfy 0 <= start < end <= 1440")
		}
		if (h.BreakStartMinute == nil) != (h.BreakEndMinute == nil) {
			return validationError("break start and end must both be set")
		}
		if h.BreakStartMinute != nil {
			if *h.BreakStartMinute >= *h.BreakEndMinute ||
				*h.BreakStartMinute < h.StartMinute || *h.BreakEndMinute > h.EndMinute {
				return validationError("break must lie within the working interval")
			}
		}
	}

	if err := s.repo.ReplaceWorkingHours(ctx, providerID, rows); err != nil {
		return err
	}
	s.publish(broadcast.Event{
		Type:       broadcast.EventWorkingHoursChanged,
		ProviderID: providerID,
	})
	return nil
}

func (s *Service) ListBlockedTimes(ctx context.Context, providerID string, date time.Time) ([]domain.BlockedTime, error) {
	return s.repo.ListBlockedTimes(ctx, providerID, date)
}

// AddBlockedTime removes availability on a date (or a repeating set of dates)
// and announces the change.
func (s *Service) AddBlockedTime(ctx context.Context, bt domain.BlockedTime) (domain.BlockedTime, error) {
	if bt.ProviderID == "" {
		return domain.BlockedTime{}, validationError("provider_id is required")
	}
	if bt.Date.IsZero() {
		return domain.BlockedTime{}, validationError("date is required")
	}
	if (bt.StartMinute == nil) != (bt.EndMinute == nil) {
		return domain.BlockedTime{}, validationError("start and end minutes must both be set, or neither for all day")
	}
	if bt.StartMinute != nil {
		if *bt.StartMinute < 0 || *bt.EndMinute > minutesPerDay || *bt.StartMinute >= *bt.EndMinute {
			return domain.BlockedTime{}, validationError("blocked interval must satisfy 0 <= start < end <= 1440")
		}
	}
	switch bt.Recurrence {
	case "", domain.BlockRecurrenceNone, domain.BlockRecurrenceWeekly, domain.BlockRecurrenceMonthly:
	default:
		return domain.BlockedTime{}, validationError("unknown block recurrence")
	}
	if bt.Recurrence == "" {
		bt.Recurrence = domain.BlockRecurrenceNone
	}
	bt.Date = domain.DateOf(bt.Date)
	bt.Active = true

	created, err := s.repo.CreateBlockedTime(ctx, bt)
	if err != nil {
		return domain.BlockedTime{}, err
	}
	s.publish(broadcast.Event{
		Type:       broadcast.EventBlockedTimeChanged,
		ProviderID: created.ProviderID,
		Date:       created.Date.Format("2006-01-02"),
	})
	return created, nil
}
