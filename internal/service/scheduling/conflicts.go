package scheduling

import (
	"time"

	"bookline/backend/internal/domain"
)

// DaySchedule is a provider's commitments for one calendar date, resolved to
// absolute instants. Open holds working hours minus breaks; Blocked the
// active blocked time; Busy the active bookings padded with the trailing
// service buffer. It is assembled from store reads — inside the provider
// transaction when guarding a write, outside it for advisory slot listings.
type DaySchedule struct {
	Date    time.Time
	Open    []domain.Interval
	Blocked []domain.Interval
	Busy    []domain.Interval
	// DayClose is the end of the last working interval; zero when the
	// provider is closed on the date.
	DayClose time.Time
}

// BuildDaySchedule resolves schedule rows for date into absolute intervals in
// the provider's location. Bookings listed in excludeBooking (by string id)
// are left out of Busy — used when rescheduling so a booking does not
// conflict with itself.
func BuildDaySchedule(
	date time.Time,
	loc *time.Location,
	hours []domain.WorkingHours,
	blocks []domain.BlockedTime,
	bookings []domain.Booking,
	buffer time.Duration,
	excludeBooking map[string]struct{},
) DaySchedule {
	date = domain.DateOf(date)
	day := DaySchedule{Date: date}
	weekday := isoWeekday(date.Weekday())

	for _, h := range hours {
		if h.Weekday != weekday {
			continue
		}
		open := domain.Interval{
			Start: domain.MinuteOfDay(date, h.StartMinute, loc),
			End:   domain.MinuteOfDay(date, h.EndMinute, loc),
		}
		if !open.End.After(open.Start) {
			continue
		}
		if h.BreakStartMinute != nil && h.BreakEndMinute != nil {
			brk := domain.Interval{
				Start: domain.MinuteOfDay(date, *h.BreakStartMinute, loc),
				End:   domain.MinuteOfDay(date, *h.BreakEndMinute, loc),
			}
			day.Open = append(day.Open, domain.SubtractIntervals([]domain.Interval{open}, []domain.Interval{brk})...)
		} else {
			day.Open = append(day.Open, open)
		}
		if day.DayClose.IsZero() || open.End.After(day.DayClose) {
			day.DayClose = open.End
		}
	}

	for _, b := range blocks {
		if !b.AppliesOn(date) {
			continue
		}
		if b.StartMinute == nil || b.EndMinute == nil {
			// All-day block covers the whole working span.
			for _, open := range day.Open {
				day.Blocked = append(day.Blocked, open)
			}
			continue
		}
		day.Blocked = append(day.Blocked, domain.Interval{
			Start: domain.MinuteOfDay(date, *b.StartMinute, loc),
			End:   domain.MinuteOfDay(date, *b.EndMinute, loc),
		})
	}

	for _, b := range bookings {
		if !b.Status.Active() {
			continue
		}
		if excludeBooking != nil {
			if _, skip := excludeBooking[b.ID.String()]; skip {
				continue
			}
		}
		day.Busy = append(day.Busy, b.OccupiedInterval(buffer))
	}

	return day
}

// CheckConflict decides whether the proposed interval can be booked against
// the day's commitments. Half-open interval comparison throughout; the
// trailing buffer is already folded into Busy. This is the same rule slot
// computation uses, re-evaluated against authoritative state inside the
// booking transaction.
func CheckConflict(day DaySchedule, policy domain.ServicePolicy, proposed domain.Interval, now time.Time) ConflictReason {
	if minAdvance := time.Duration(policy.MinAdvanceHours) * time.Hour; proposed.Start.Sub(now) < minAdvance {
		return ConflictViolatesAdvanceNotice
	}
	if policy.MaxAdvanceDays > 0 {
		horizon := now.AddDate(0, 0, policy.MaxAdvanceDays)
		if proposed.Start.After(horizon) {
			return ConflictViolatesAdvanceNotice
		}
	}

	within := false
	for _, open := range day.Open {
		if open.Contains(proposed) {
			within = true
			break
		}
	}
	if !within {
		return ConflictOutsideWorkingHours
	}
	// The trailing buffer may not spill past closing.
	if !day.DayClose.IsZero() && proposed.End.Add(policy.Buffer()).After(day.DayClose) {
		return ConflictOutsideWorkingHours
	}

	for _, blocked := range day.Blocked {
		if proposed.Overlaps(blocked) {
			return ConflictOverlapsBlockedTime
		}
	}
	for _, busy := range day.Busy {
		if proposed.Overlaps(busy) {
			return ConflictOverlapsBooking
		}
	}
	return ConflictNone
}

func isoWeekday(wd time.Weekday) int16 {
	if wd == time.Sunday {
		return 7
	}
	return int16(wd)
}
