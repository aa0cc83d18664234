package scheduling

import (
	"context"
	"log/slog"
	"time"

	"bookline/backend/internal/broadcast"
	"bookline/backend/internal/domain"
	"bookline/backend/internal/store"
)

const defaultGranularity = 15 * time.Minute

// EventPublisher receives availability change events after the transaction
// that caused them has committed.
type EventPublisher interface {
	Publish(event broadcast.Event)
}

// Service owns the scheduling rules: slot computation, conflict policy, the
// booking state machine and series management. Persistence goes through the
// store; concurrent writers to the same provider calendar are serialized by
// the store's provider transaction.
type Service struct {
	repo        store.ScheduleStore
	events      EventPublisher
	log         *slog.Logger
	granularity time.Duration
	now         func() time.Time
}

func New(repo store.ScheduleStore, events EventPublisher, log *slog.Logger, granularity time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if granularity <= 0 {
		granularity = defaultGranularity
	}
	return &Service{
		repo:        repo,
		events:      events,
		log:         log.With(slog.String("component", "scheduling")),
		granularity: granularity,
		now:         time.Now,
	}
}

// SlotRequest asks for the bookable slots of one service on one date. StaffID
// narrows busy time to one staff member plus provider-wide commitments.
type SlotRequest struct {
	ProviderID string
	ServiceID  string
	StaffID    *string
	Date       time.Time
}

// ComputeSlots returns the start/end pairs a customer can book, in the
// provider's timezone. The result is advisory; booking re-checks against
// locked state, so a stale slot fails with a conflict rather than
// double-booking.
func (s *Service) ComputeSlots(ctx context.Context, req SlotRequest) ([]domain.Interval, error) {
	if req.ProviderID == "" || req.ServiceID == "" {
		return nil, validationError("provider_id and service_id are required")
	}

	policy, err := s.repo.GetServicePolicy(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if policy.ProviderID != req.ProviderID {
		return nil, validationError("service does not belong to provider")
	}

	sched, err := s.repo.GetProviderSchedule(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	loc, err := sched.Location()
	if err != nil {
		return nil, err
	}

	date := domain.DateOf(req.Date)
	hours, err := s.repo.ListWorkingHours(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	blocks, err := s.repo.ListBlockedTimes(ctx, req.ProviderID, date)
	if err != nil {
		return nil, err
	}

	// Widen the window by the buffer so a booking ending just before the day
	// still pads into it.
	dayStart := domain.MinuteOfDay(date, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	bookings, err := s.repo.ListActiveBookings(ctx, req.ProviderID, req.StaffID, dayStart.Add(-policy.Buffer()), dayEnd)
	if err != nil {
		return nil, err
	}

	day := BuildDaySchedule(date, loc, hours, blocks, bookings, policy.Buffer(), nil)
	return s.sliceDay(day, policy), nil
}

// sliceDay cuts the day's remaining free time into candidate slots and drops
// the ones policy forbids: too soon, too far out, or ending so late the
// trailing buffer would spill past closing.
func (s *Service) sliceDay(day DaySchedule, policy domain.ServicePolicy) []domain.Interval {
	busy := make([]domain.Interval, 0, len(day.Blocked)+len(day.Busy))
	busy = append(busy, day.Blocked...)
	busy = append(busy, day.Busy...)
	free := domain.SubtractIntervals(day.Open, busy)

	now := s.now()
	earliest := now.Add(time.Duration(policy.MinAdvanceHours) * time.Hour)
	var horizon time.Time
	if policy.MaxAdvanceDays > 0 {
		horizon = now.AddDate(0, 0, policy.MaxAdvanceDays)
	}

	candidates := domain.SliceSlots(free, policy.Duration(), s.granularity)
	slots := make([]domain.Interval, 0, len(candidates))
	for _, c := range candidates {
		if c.Start.Before(earliest) {
			continue
		}
		if !horizon.IsZero() && c.Start.After(horizon) {
			continue
		}
		if !day.DayClose.IsZero() && c.End.Add(policy.Buffer()).After(day.DayClose) {
			continue
		}
		slots = append(slots, c)
	}
	return slots
}

func (s *Service) publish(event broadcast.Event) {
	if s.events == nil {
		return
	}
	event.At = s.now().UTC()
	s.events.Publish(event)
}
