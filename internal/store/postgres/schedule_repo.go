package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/store"
)

type ScheduleRepo struct {
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

type scheduleTx struct {
	tx bun.Tx
}

// InProviderTransaction serializes writers against the same provider calendar
// with a transaction-scoped advisory lock, and retries the whole transaction
// a bounded number of times on transient failures. Retrying is safe because
// booking inserts are guarded by the overlap and occurrence constraints.
func (r *ScheduleRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ScheduleTx) error) error {
	return withRetry(ctx, func() error {
		return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
				return err
			}
			return fn(ctx, scheduleTx{tx: tx})
		})
	})
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

func (r *ScheduleRepo) GetProviderSchedule(ctx context.Context, providerID string) (domain.ProviderSchedule, error) {
	var row domain.ProviderSchedule
	err := r.db.NewSelect().
		Model(&row).
		Where("provider_id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProviderSchedule{}, store.ErrNotFound
	}
	if err != nil {
		return domain.ProviderSchedule{}, err
	}
	return row, nil
}

func (r *ScheduleRepo) UpsertProviderSchedule(ctx context.Context, ps domain.ProviderSchedule) (domain.ProviderSchedule, error) {
	now := time.Now().UTC()
	if ps.CreatedAt.IsZero() {
		ps.CreatedAt = now
	}
	ps.UpdatedAt = now
	_, err := r.db.NewInsert().
		Model(&ps).
		On("CONFLICT (provider_id) DO UPDATE").
		Set("timezone = EXCLUDED.timezone").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.ProviderSchedule{}, err
	}
	return ps, nil
}

func (r *ScheduleRepo) GetServicePolicy(ctx context.Context, serviceID string) (domain.ServicePolicy, error) {
	var row domain.ServicePolicy
	err := r.db.NewSelect().
		Model(&row).
		Where("service_id = ?", serviceID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ServicePolicy{}, store.ErrNotFound
	}
	if err != nil {
		return domain.ServicePolicy{}, err
	}
	return row, nil
}

func (r *ScheduleRepo) UpsertServicePolicy(ctx context.Context, sp domain.ServicePolicy) (domain.ServicePolicy, error) {
	now := time.Now().UTC()
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = now
	}
	sp.UpdatedAt = now
	_, err := r.db.NewInsert().
		Model(&sp).
		On("CONFLICT (service_id) DO UPDATE").
		Set("provider_id = EXCLUDED.provider_id").
		Set("duration_minutes = EXCLUDED.duration_minutes").
		Set("buffer_minutes = EXCLUDED.buffer_minutes").
		Set("min_advance_hours = EXCLUDED.min_advance_hours").
		Set("max_advance_days = EXCLUDED.max_advance_days").
		Set("cancellation_policy_hours = EXCLUDED.cancellation_policy_hours").
		Set("cancellation_fee_percent = EXCLUDED.cancellation_fee_percent").
		Set("deposit_required = EXCLUDED.deposit_required").
		Set("price_cents = EXCLUDED.price_cents").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.ServicePolicy{}, err
	}
	return sp, nil
}

func (r *ScheduleRepo) ListWorkingHours(ctx context.Context, providerID string) ([]domain.WorkingHours, error) {
	return listWorkingHours(ctx, r.db, providerID)
}

// ReplaceWorkingHours swaps the provider's whole weekly template in one
// transaction under the calendar lock, so slot computation never observes a
// half-written week.
func (r *ScheduleRepo) ReplaceWorkingHours(ctx context.Context, providerID string, rows []domain.WorkingHours) error {
	return r.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.ScheduleTx) error {
		stx := tx.(scheduleTx)
		_, err := stx.tx.NewDelete().
			Model((*domain.WorkingHours)(nil)).
			Where("provider_id = ?", providerID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].ProviderID = providerID
		}
		_, err = stx.tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

func (r *ScheduleRepo) CreateBlockedTime(ctx context.Context, bt domain.BlockedTime) (domain.BlockedTime, error) {
	_, err := r.db.NewInsert().Model(&bt).Exec(ctx)
	if err != nil {
		return domain.BlockedTime{}, err
	}
	return bt, nil
}

func (r *ScheduleRepo) ListBlockedTimes(ctx context.Context, providerID string, date time.Time) ([]domain.BlockedTime, error) {
	return listBlockedTimes(ctx, r.db, providerID, date)
}

func (r *ScheduleRepo) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return getBooking(ctx, r.db, id)
}

func (r *ScheduleRepo) ListActiveBookings(ctx context.Context, providerID string, staffID *string, windowStart, windowEnd time.Time) ([]domain.Booking, error) {
	return listActiveBookings(ctx, r.db, providerID, staffID, windowStart, windowEnd)
}

func (r *ScheduleRepo) ListBookings(ctx context.Context, filter store.BookingFilter) ([]domain.Booking, error) {
	var rows []domain.Booking
	q := r.db.NewSelect().Model(&rows)
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.ProviderID != "" {
		q = q.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if !filter.From.IsZero() {
		q = q.Where("end_time > ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("start_time < ?", filter.To)
	}
	if err := q.OrderExpr("start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) CreateRecurringBooking(ctx context.Context, rb domain.RecurringBooking) (domain.RecurringBooking, error) {
	_, err := r.db.NewInsert().Model(&rb).Exec(ctx)
	if err != nil {
		return domain.RecurringBooking{}, err
	}
	return rb, nil
}

func (r *ScheduleRepo) GetRecurringBooking(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error) {
	var row domain.RecurringBooking
	err := r.db.NewSelect().
		Model(&row).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RecurringBooking{}, store.ErrNotFound
	}
	if err != nil {
		return domain.RecurringBooking{}, err
	}
	return row, nil
}

func (r *ScheduleRepo) ListDueRecurringBookings(ctx context.Context, asOf time.Time) ([]domain.RecurringBooking, error) {
	var rows []domain.RecurringBooking
	err := r.db.NewSelect().
		Model(&rows).
		Where("status = ?", domain.SeriesStatusActive).
		Where("next_booking_date <= ?", domain.DateOf(asOf)).
		OrderExpr("next_booking_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) UpdateRecurringBooking(ctx context.Context, rb domain.RecurringBooking) (domain.RecurringBooking, error) {
	res, err := r.db.NewUpdate().
		Model(&rb).
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.RecurringBooking{}, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.RecurringBooking{}, store.ErrNotFound
	}
	return rb, nil
}

func (r *ScheduleRepo) UpsertRecurringException(ctx context.Context, ex domain.RecurringException) (domain.RecurringException, error) {
	_, err := r.db.NewInsert().
		Model(&ex).
		On("CONFLICT (recurring_booking_id, exception_date) DO UPDATE").
		Set("kind = EXCLUDED.kind").
		Set("new_start_time = EXCLUDED.new_start_time").
		Set("new_end_time = EXCLUDED.new_end_time").
		Set("reason = EXCLUDED.reason").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.RecurringException{}, err
	}
	return ex, nil
}

func (r *ScheduleRepo) FindRecurringException(ctx context.Context, recurringBookingID uuid.UUID, date time.Time) (*domain.RecurringException, error) {
	return findRecurringException(ctx, r.db, recurringBookingID, date)
}

func (t scheduleTx) ListWorkingHours(ctx context.Context, providerID string) ([]domain.WorkingHours, error) {
	return listWorkingHours(ctx, t.tx, providerID)
}

func (t scheduleTx) ListBlockedTimes(ctx context.Context, providerID string, date time.Time) ([]domain.BlockedTime, error) {
	return listBlockedTimes(ctx, t.tx, providerID, date)
}

func (t scheduleTx) ListActiveBookings(ctx context.Context, providerID string, staffID *string, windowStart, windowEnd time.Time) ([]domain.Booking, error) {
	return listActiveBookings(ctx, t.tx, providerID, staffID, windowStart, windowEnd)
}

func (t scheduleTx) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return getBooking(ctx, t.tx, id)
}

func (t scheduleTx) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	_, err := t.tx.NewInsert().Model(&b).Exec(ctx)
	if err != nil {
		return domain.Booking{}, mapBookingInsertError(err)
	}
	return b, nil
}

func (t scheduleTx) UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	res, err := t.tx.NewUpdate().
		Model(&b).
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.Booking{}, store.ErrNotFound
	}
	return b, nil
}

func (t scheduleTx) GetRecurringBooking(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error) {
	var row domain.RecurringBooking
	err := t.tx.NewSelect().
		Model(&row).
		Where("id = ?", id).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RecurringBooking{}, store.ErrNotFound
	}
	if err != nil {
		return domain.RecurringBooking{}, err
	}
	return row, nil
}

func (t scheduleTx) UpdateRecurringBooking(ctx context.Context, rb domain.RecurringBooking) (domain.RecurringBooking, error) {
	res, err := t.tx.NewUpdate().
		Model(&rb).
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.RecurringBooking{}, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.RecurringBooking{}, store.ErrNotFound
	}
	return rb, nil
}

func (t scheduleTx) FindRecurringException(ctx context.Context, recurringBookingID uuid.UUID, date time.Time) (*domain.RecurringException, error) {
	return findRecurringException(ctx, t.tx, recurringBookingID, date)
}

// mapBookingInsertError translates the database guards into domain errors:
// the overlap exclusion constraint and the (provider, staff, start) key both
// mean a lost race for the slot; the occurrence key means the generator
// already materialized this occurrence.
func mapBookingInsertError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01":
		if pgErr.ConstraintName == "bookings_no_overlap" {
			return store.ErrConflict
		}
	case "23505":
		switch pgErr.ConstraintName {
		case "bookings_occurrence_key":
			return store.ErrDuplicateOccurrence
		case "bookings_provider_start_key":
			return store.ErrConflict
		}
	}
	return err
}

func listWorkingHours(ctx context.Context, db bun.IDB, providerID string) ([]domain.WorkingHours, error) {
	var rows []domain.WorkingHours
	err := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		OrderExpr("weekday ASC, start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// listBlockedTimes fetches the active rows that can apply on date: the
// one-off block for that date plus every recurring block anchored on or
// before it. Whether a recurring row actually hits the date is decided by
// domain.BlockedTime.AppliesOn.
func listBlockedTimes(ctx context.Context, db bun.IDB, providerID string, date time.Time) ([]domain.BlockedTime, error) {
	date = domain.DateOf(date)
	var rows []domain.BlockedTime
	err := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("active = TRUE").
		Where("(date = ? OR (recurrence != 'none' AND date <= ?))", date, date).
		OrderExpr("date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func listActiveBookings(ctx context.Context, db bun.IDB, providerID string, staffID *string, windowStart, windowEnd time.Time) ([]domain.Booking, error) {
	var rows []domain.Booking
	q := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("status IN (?)", bun.In(domain.ActiveBookingStatuses)).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart)
	if staffID != nil {
		// Provider-wide commitments (no staff) block every staff member.
		q = q.Where("(staff_id IS NULL OR staff_id = ?)", *staffID)
	}
	if err := q.OrderExpr("start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func getBooking(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Booking, error) {
	var row domain.Booking
	err := db.NewSelect().
		Model(&row).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}
	return row, nil
}

func findRecurringException(ctx context.Context, db bun.IDB, recurringBookingID uuid.UUID, date time.Time) (*domain.RecurringException, error) {
	var row domain.RecurringException
	err := db.NewSelect().
		Model(&row).
		Where("recurring_booking_id = ?", recurringBookingID).
		Where("exception_date = ?", domain.DateOf(date)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
