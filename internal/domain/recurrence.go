package domain

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RecurrenceFrequency string

const (
	RecurrenceFrequencyDaily     RecurrenceFrequency = "daily"
	RecurrenceFrequencyWeekly    RecurrenceFrequency = "weekly"
	RecurrenceFrequencyBiweekly  RecurrenceFrequency = "biweekly"
	RecurrenceFrequencyMonthly   RecurrenceFrequency = "monthly"
	RecurrenceFrequencyQuarterly RecurrenceFrequency = "quarterly"
	// RecurrenceFrequencyCustom repeats every IntervalWeeks weeks on the
	// ByWeekday set.
	RecurrenceFrequencyCustom RecurrenceFrequency = "custom"
)

func (f RecurrenceFrequency) Valid() bool {
	switch f {
	case RecurrenceFrequencyDaily, RecurrenceFrequencyWeekly, RecurrenceFrequencyBiweekly,
		RecurrenceFrequencyMonthly, RecurrenceFrequencyQuarterly, RecurrenceFrequencyCustom:
		return true
	}
	return false
}

type SeriesStatus string

const (
	SeriesStatusActive    SeriesStatus = "active"
	SeriesStatusPaused    SeriesStatus = "paused"
	SeriesStatusCompleted SeriesStatus = "completed"
	SeriesStatusCancelled SeriesStatus = "cancelled"
)

// seriesTransitions: paused can resume; completed and cancelled are terminal.
var seriesTransitions = map[SeriesStatus][]SeriesStatus{
	SeriesStatusActive: {SeriesStatusPaused, SeriesStatusCompleted, SeriesStatusCancelled},
	SeriesStatusPaused: {SeriesStatusActive, SeriesStatusCancelled},
}

func CanTransitionSeries(from, to SeriesStatus) bool {
	for _, t := range seriesTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// DateSet is an ordered set of calendar dates (UTC midnight), stored as a
// JSONB array of "2006-01-02" strings. Lookups and inserts normalize through
// DateOf so equality is well defined.
type DateSet []time.Time

func (s DateSet) Contains(date time.Time) bool {
	date = DateOf(date)
	for _, d := range s {
		if DateOf(d).Equal(date) {
			return true
		}
	}
	return false
}

// Add returns the set with date included, keeping order and uniqueness.
func (s DateSet) Add(date time.Time) DateSet {
	if s.Contains(date) {
		return s
	}
	out := append(DateSet{}, s...)
	out = append(out, DateOf(date))
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

const dateSetLayout = "2006-01-02"

func (s DateSet) Value() (driver.Value, error) {
	strs := make([]string, 0, len(s))
	for _, d := range s {
		strs = append(strs, DateOf(d).Format(dateSetLayout))
	}
	return json.Marshal(strs)
}

func (s *DateSet) Scan(src any) error {
	if src == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("dateset: cannot scan %T", src)
	}
	var strs []string
	if err := json.Unmarshal(raw, &strs); err != nil {
		return err
	}
	out := make(DateSet, 0, len(strs))
	for _, str := range strs {
		d, err := time.ParseInLocation(dateSetLayout, str, time.UTC)
		if err != nil {
			return fmt.Errorf("dateset: invalid date %q", str)
		}
		out = append(out, d)
	}
	*s = out
	return nil
}

// RecurringBooking is a series definition the generator materializes into
// concrete bookings one occurrence at a time.
type RecurringBooking struct {
	bun.BaseModel `bun:"table:recurring_bookings" json:"-"`

	ID                 uuid.UUID           `bun:"id,pk,type:uuid" json:"id"`
	CustomerID         string              `bun:"customer_id,notnull" json:"customer_id"`
	ProviderID         string              `bun:"provider_id,notnull" json:"provider_id"`
	StaffID            *string             `bun:"staff_id" json:"staff_id,omitempty"`
	ServiceID          string              `bun:"service_id,notnull" json:"service_id"`
	Frequency          RecurrenceFrequency `bun:"frequency,notnull" json:"frequency"`
	IntervalWeeks      int                 `bun:"interval_weeks,notnull,default:1" json:"interval_weeks"`
	ByWeekday          []int16             `bun:"by_weekday,array" json:"by_weekday,omitempty"`
	StartMinute        int                 `bun:"start_minute,notnull" json:"start_minute"`
	DurationMinutes    int                 `bun:"duration_minutes,notnull" json:"duration_minutes"`
	NextBookingDate    time.Time           `bun:"next_booking_date,notnull" json:"next_booking_date"`
	EndDate            *time.Time          `bun:"end_date" json:"end_date,omitempty"`
	MaxBookings        *int                `bun:"max_bookings" json:"max_bookings,omitempty"`
	BookingsCreated    int                 `bun:"bookings_created,notnull,default:0" json:"bookings_created"`
	AutoConfirm        bool                `bun:"auto_confirm,notnull" json:"auto_confirm"`
	SkipDates          DateSet             `bun:"skip_dates,type:jsonb" json:"skip_dates,omitempty"`
	Status             SeriesStatus        `bun:"status,notnull" json:"status"`
	LastBookingCreated *time.Time          `bun:"last_booking_created" json:"last_booking_created,omitempty"`
	CreatedAt          time.Time           `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time           `bun:"updated_at,notnull" json:"updated_at"`
}

func (s *RecurringBooking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return touchModel(&s.ID, &s.CreatedAt, &s.UpdatedAt, query)
}

func (s *RecurringBooking) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// OccurrenceInterval places an occurrence on date using the series
// time-of-day in the provider's location.
func (s *RecurringBooking) OccurrenceInterval(date time.Time, loc *time.Location) Interval {
	start := MinuteOfDay(date, s.StartMinute, loc).UTC()
	return Interval{Start: start, End: start.Add(s.Duration())}
}

// ReachedEnd reports whether either series bound has been hit.
func (s *RecurringBooking) ReachedEnd(next time.Time) bool {
	if s.MaxBookings != nil && s.BookingsCreated >= *s.MaxBookings {
		return true
	}
	if s.EndDate != nil && DateOf(next).After(DateOf(*s.EndDate)) {
		return true
	}
	return false
}

// NextOccurrenceDate computes the occurrence date following after, honoring
// the frequency rule. Weekly-style cadences respect the ByWeekday set and the
// week interval anchored at after's week. Skip dates are not consulted here;
// the generator handles them per occurrence.
func NextOccurrenceDate(s RecurringBooking, after time.Time) (time.Time, error) {
	after = DateOf(after)
	switch s.Frequency {
	case RecurrenceFrequencyDaily:
		return after.AddDate(0, 0, 1), nil
	case RecurrenceFrequencyMonthly:
		return after.AddDate(0, 1, 0), nil
	case RecurrenceFrequencyQuarterly:
		return after.AddDate(0, 3, 0), nil
	case RecurrenceFrequencyWeekly, RecurrenceFrequencyBiweekly, RecurrenceFrequencyCustom:
		return nextWeekdayOccurrence(s, after)
	}
	return time.Time{}, errors.New("unsupported recurrence frequency")
}

func nextWeekdayOccurrence(s RecurringBooking, after time.Time) (time.Time, error) {
	intervalWeeks := s.IntervalWeeks
	switch s.Frequency {
	case RecurrenceFrequencyWeekly:
		intervalWeeks = 1
	case RecurrenceFrequencyBiweekly:
		intervalWeeks = 2
	}
	if intervalWeeks < 1 {
		intervalWeeks = 1
	}

	weekdays := s.ByWeekday
	if len(weekdays) == 0 {
		weekdays = []int16{isoWeekday(after.Weekday())}
	}
	for _, wd := range weekdays {
		if wd < 1 || wd > 7 {
			return time.Time{}, errors.New("invalid weekday")
		}
	}

	anchorMonday := mondayDateUTC(after)

	// The next match is at most intervalWeeks+1 weeks out, so the scan is
	// bounded.
	limit := (intervalWeeks + 1) * 7
	for i := 1; i <= limit; i++ {
		candidate := after.AddDate(0, 0, i)
		if !containsWeekday(weekdays, isoWeekday(candidate.Weekday())) {
			continue
		}
		weeks := int(mondayDateUTC(candidate).Sub(anchorMonday) / (7 * 24 * time.Hour))
		if weeks%intervalWeeks != 0 {
			continue
		}
		return candidate, nil
	}
	return time.Time{}, errors.New("recurrence rule produced no next occurrence")
}

func isoWeekday(wd time.Weekday) int16 {
	if wd == time.Sunday {
		return 7
	}
	return int16(wd)
}

func containsWeekday(set []int16, wd int16) bool {
	for _, w := range set {
		if w == wd {
			return true
		}
	}
	return false
}

func mondayDateUTC(t time.Time) time.Time {
	wd := t.Weekday()
	offset := 0
	if wd == time.Sunday {
		offset = 6
	} else {
		offset = int(wd) - 1
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -offset)
}

type ExceptionKind string

const (
	ExceptionKindSkip       ExceptionKind = "skip"
	ExceptionKindReschedule ExceptionKind = "reschedule"
	ExceptionKindCancel     ExceptionKind = "cancel"
)

func (k ExceptionKind) Valid() bool {
	switch k {
	case ExceptionKindSkip, ExceptionKindReschedule, ExceptionKindCancel:
		return true
	}
	return false
}

// RecurringException overrides a single occurrence of a series. At most one
// exception exists per (series, date); later writes replace earlier ones.
type RecurringException struct {
	bun.BaseModel `bun:"table:recurring_exceptions" json:"-"`

	ID                 uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	RecurringBookingID uuid.UUID     `bun:"recurring_booking_id,notnull,type:uuid" json:"recurring_booking_id"`
	ExceptionDate      time.Time     `bun:"exception_date,notnull" json:"exception_date"`
	Kind               ExceptionKind `bun:"kind,notnull" json:"kind"`
	NewStartTime       *time.Time    `bun:"new_start_time" json:"new_start_time,omitempty"`
	NewEndTime         *time.Time    `bun:"new_end_time" json:"new_end_time,omitempty"`
	Reason             string        `bun:"reason" json:"reason,omitempty"`
	CreatedAt          time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

func (e *RecurringException) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return touchModel(&e.ID, &e.CreatedAt, &e.UpdatedAt, query)
}
