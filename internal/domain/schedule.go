package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProviderSchedule carries the per-provider calendar settings the engine owns.
// Provider identity itself belongs to the identity subsystem; only the id is
// referenced here.
type ProviderSchedule struct {
	bun.BaseModel `bun:"table:provider_schedules" json:"-"`

	ProviderID string    `bun:"provider_id,pk" json:"provider_id"`
	Timezone   string    `bun:"timezone,notnull" json:"timezone"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (p *ProviderSchedule) Location() (*time.Location, error) {
	return time.LoadLocation(p.Timezone)
}

// WorkingHours is one open interval on a weekday, expressed as minutes from
// midnight in the provider's timezone. Weekdays follow ISO numbering,
// 1=Monday..7=Sunday. A weekday may have several rows; an optional break
// interval is subtracted from the open span.
type WorkingHours struct {
	bun.BaseModel `bun:"table:working_hours" json:"-"`

	ID               uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ProviderID       string    `bun:"provider_id,notnull" json:"provider_id"`
	Weekday          int16     `bun:"weekday,notnull" json:"weekday"`
	StartMinute      int       `bun:"start_minute,notnull" json:"start_minute"`
	EndMinute        int       `bun:"end_minute,notnull" json:"end_minute"`
	BreakStartMinute *int      `bun:"break_start_minute" json:"break_start_minute,omitempty"`
	BreakEndMinute   *int      `bun:"break_end_minute" json:"break_end_minute,omitempty"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (w *WorkingHours) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return touchModel(&w.ID, &w.CreatedAt, &w.UpdatedAt, query)
}

type BlockRecurrence string

const (
	BlockRecurrenceNone    BlockRecurrence = "none"
	BlockRecurrenceWeekly  BlockRecurrence = "weekly"
	BlockRecurrenceMonthly BlockRecurrence = "monthly"
)

// BlockedTime removes provider availability on a date. Nil start/end minutes
// mean the whole day. A recurrence other than none repeats the block until
// RecurrenceEnd (inclusive), or forever when RecurrenceEnd is nil.
type BlockedTime struct {
	bun.BaseModel `bun:"table:blocked_times" json:"-"`

	ID            uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	ProviderID    string          `bun:"provider_id,notnull" json:"provider_id"`
	Date          time.Time       `bun:"date,notnull" json:"date"`
	StartMinute   *int            `bun:"start_minute" json:"start_minute,omitempty"`
	EndMinute     *int            `bun:"end_minute" json:"end_minute,omitempty"`
	Reason        string          `bun:"reason" json:"reason,omitempty"`
	Active        bool            `bun:"active,notnull" json:"active"`
	Recurrence    BlockRecurrence `bun:"recurrence,notnull,default:'none'" json:"recurrence"`
	RecurrenceEnd *time.Time      `bun:"recurrence_end" json:"recurrence_end,omitempty"`
	CreatedAt     time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

func (b *BlockedTime) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return touchModel(&b.ID, &b.CreatedAt, &b.UpdatedAt, query)
}

// AppliesOn reports whether the block removes availability on the given
// calendar date (UTC midnight).
func (b *BlockedTime) AppliesOn(date time.Time) bool {
	if !b.Active {
		return false
	}
	base := DateOf(b.Date)
	date = DateOf(date)
	if base.Equal(date) {
		return true
	}
	if b.Recurrence == BlockRecurrenceNone || date.Before(base) {
		return false
	}
	if b.RecurrenceEnd != nil && date.After(DateOf(*b.RecurrenceEnd)) {
		return false
	}
	switch b.Recurrence {
	case BlockRecurrenceWeekly:
		return base.Weekday() == date.Weekday()
	case BlockRecurrenceMonthly:
		return base.Day() == date.Day()
	}
	return false
}

// ServicePolicy is the engine-local copy of a service's scheduling parameters.
// The catalog subsystem owns the service; this row only carries what slot
// computation and booking policy need.
type ServicePolicy struct {
	bun.BaseModel `bun:"table:service_policies" json:"-"`

	ServiceID               string    `bun:"service_id,pk" json:"service_id"`
	ProviderID              string    `bun:"provider_id,notnull" json:"provider_id"`
	DurationMinutes         int       `bun:"duration_minutes,notnull" json:"duration_minutes"`
	BufferMinutes           int       `bun:"buffer_minutes,notnull" json:"buffer_minutes"`
	MinAdvanceHours         int       `bun:"min_advance_hours,notnull" json:"min_advance_hours"`
	MaxAdvanceDays          int       `bun:"max_advance_days,notnull" json:"max_advance_days"`
	CancellationPolicyHours int       `bun:"cancellation_policy_hours,notnull" json:"cancellation_policy_hours"`
	CancellationFeePercent  int       `bun:"cancellation_fee_percent,notnull" json:"cancellation_fee_percent"`
	DepositRequired         bool      `bun:"deposit_required,notnull" json:"deposit_required"`
	PriceCents              int64     `bun:"price_cents,notnull,default:0" json:"price_cents"`
	CreatedAt               time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt               time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (p *ServicePolicy) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

func (p *ServicePolicy) Buffer() time.Duration {
	return time.Duration(p.BufferMinutes) * time.Minute
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MinuteOfDay converts minutes-from-midnight on a date in loc to an instant.
func MinuteOfDay(date time.Time, minute int, loc *time.Location) time.Time {
	date = DateOf(date)
	return time.Date(date.Year(), date.Month(), date.Day(), 0, minute, 0, 0, loc)
}

func touchModel(id *uuid.UUID, createdAt, updatedAt *time.Time, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if *id == uuid.Nil {
			v, err := uuid.NewV7()
			if err != nil {
				return err
			}
			*id = v
		}
		if createdAt.IsZero() {
			*createdAt = now
		}
		if updatedAt.IsZero() {
			*updatedAt = now
		}
	case *bun.UpdateQuery:
		*updatedAt = now
	}
	return nil
}
