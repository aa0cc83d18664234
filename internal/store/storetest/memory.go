// Package storetest provides an in-memory ScheduleStore for tests. It mimics
// the database guards (occurrence key, provider/staff/start key) and rolls a
// provider transaction back on error, so service-level atomicity can be
// exercised without Postgres.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/store"
)

type MemStore struct {
	mu         sync.Mutex
	schedules  map[string]domain.ProviderSchedule
	policies   map[string]domain.ServicePolicy
	hours      []domain.WorkingHours
	blocks     []domain.BlockedTime
	bookings   map[uuid.UUID]domain.Booking
	series     map[uuid.UUID]domain.RecurringBooking
	exceptions map[string]domain.RecurringException
}

func NewMemStore() *MemStore {
	return &MemStore{
		schedules:  make(map[string]domain.ProviderSchedule),
		policies:   make(map[string]domain.ServicePolicy),
		bookings:   make(map[uuid.UUID]domain.Booking),
		series:     make(map[uuid.UUID]domain.RecurringBooking),
		exceptions: make(map[string]domain.RecurringException),
	}
}

func exceptionKey(seriesID uuid.UUID, date time.Time) string {
	return seriesID.String() + "/" + domain.DateOf(date).Format("2006-01-02")
}

// Seed helpers.

func (m *MemStore) SeedSchedule(ps domain.ProviderSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[ps.ProviderID] = ps
}

func (m *MemStore) SeedPolicy(sp domain.ServicePolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[sp.ServiceID] = sp
}

func (m *MemStore) SeedWorkingHours(rows ...domain.WorkingHours) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours = append(m.hours, rows...)
}

func (m *MemStore) SeedBlockedTime(rows ...domain.BlockedTime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, rows...)
}

func (m *MemStore) SeedBooking(b domain.Booking) domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.bookings[b.ID] = b
	return b
}

func (m *MemStore) SeedSeries(s domain.RecurringBooking) domain.RecurringBooking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.series[s.ID] = s
	return s
}

func (m *MemStore) Booking(id uuid.UUID) (domain.Booking, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	return b, ok
}

func (m *MemStore) AllBookings() []domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, b)
	}
	return out
}

func (m *MemStore) Series(id uuid.UUID) (domain.RecurringBooking, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[id]
	return s, ok
}

// InProviderTransaction serializes on the store mutex and restores the
// snapshot when fn fails, imitating a rollback.
func (m *MemStore) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ScheduleTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapBookings := make(map[uuid.UUID]domain.Booking, len(m.bookings))
	for k, v := range m.bookings {
		snapBookings[k] = v
	}
	snapSeries := make(map[uuid.UUID]domain.RecurringBooking, len(m.series))
	for k, v := range m.series {
		snapSeries[k] = v
	}
	snapHours := append([]domain.WorkingHours(nil), m.hours...)

	if err := fn(ctx, (*memTx)(m)); err != nil {
		m.bookings = snapBookings
		m.series = snapSeries
		m.hours = snapHours
		return err
	}
	return nil
}

func (m *MemStore) GetProviderSchedule(ctx context.Context, providerID string) (domain.ProviderSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.schedules[providerID]
	if !ok {
		return domain.ProviderSchedule{}, store.ErrNotFound
	}
	return ps, nil
}

func (m *MemStore) UpsertProviderSchedule(ctx context.Context, ps domain.ProviderSchedule) (domain.ProviderSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[ps.ProviderID] = ps
	return ps, nil
}

func (m *MemStore) GetServicePolicy(ctx context.Context, serviceID string) (domain.ServicePolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.policies[serviceID]
	if !ok {
		return domain.ServicePolicy{}, store.ErrNotFound
	}
	return sp, nil
}

func (m *MemStore) UpsertServicePolicy(ctx context.Context, sp domain.ServicePolicy) (domain.ServicePolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[sp.ServiceID] = sp
	return sp, nil
}

func (m *MemStore) ListWorkingHours(ctx context.Context, providerID string) ([]domain.WorkingHours, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listWorkingHoursLocked(providerID), nil
}

func (m *MemStore) listWorkingHoursLocked(providerID string) []domain.WorkingHours {
	var out []domain.WorkingHours
	for _, h := range m.hours {
		if h.ProviderID == providerID {
			out = append(out, h)
		}
	}
	return out
}

func (m *MemStore) ReplaceWorkingHours(ctx context.Context, providerID string, rows []domain.WorkingHours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.WorkingHours
	for _, h := range m.hours {
		if h.ProviderID != providerID {
			kept = append(kept, h)
		}
	}
	for i := range rows {
		rows[i].ProviderID = providerID
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
	}
	m.hours = append(kept, rows...)
	return nil
}

func (m *MemStore) CreateBlockedTime(ctx context.Context, bt domain.BlockedTime) (domain.BlockedTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bt.ID == uuid.Nil {
		bt.ID = uuid.New()
	}
	m.blocks = append(m.blocks, bt)
	return bt, nil
}

func (m *MemStore) ListBlockedTimes(ctx context.Context, providerID string, date time.Time) ([]domain.BlockedTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listBlockedTimesLocked(providerID, date), nil
}

func (m *MemStore) listBlockedTimesLocked(providerID string, date time.Time) []domain.BlockedTime {
	date = domain.DateOf(date)
	var out []domain.BlockedTime
	for _, b := range m.blocks {
		if b.ProviderID != providerID || !b.Active {
			continue
		}
		if domain.DateOf(b.Date).Equal(date) ||
			(b.Recurrence != domain.BlockRecurrenceNone && !domain.DateOf(b.Date).After(date)) {
			out = append(out, b)
		}
	}
	return out
}

func (m *MemStore) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBookingLocked(id)
}

func (m *MemStore) getBookingLocked(id uuid.UUID) (domain.Booking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return b, nil
}

func (m *MemStore) ListBookings(ctx context.Context, filter store.BookingFilter) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if filter.CustomerID != "" && b.CustomerID != filter.CustomerID {
			continue
		}
		if filter.ProviderID != "" && b.ProviderID != filter.ProviderID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && !b.EndTime.After(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !b.StartTime.Before(filter.To) {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (m *MemStore) ListActiveBookings(ctx context.Context, providerID string, staffID *string, windowStart, windowEnd time.Time) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listActiveBookingsLocked(providerID, staffID, windowStart, windowEnd), nil
}

func (m *MemStore) listActiveBookingsLocked(providerID string, staffID *string, windowStart, windowEnd time.Time) []domain.Booking {
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.ProviderID != providerID || !b.Status.Active() {
			continue
		}
		if !b.StartTime.Before(windowEnd) || !b.EndTime.After(windowStart) {
			continue
		}
		if staffID != nil && b.StaffID != nil && *b.StaffID != *staffID {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out
}

func (m *MemStore) CreateRecurringBooking(ctx context.Context, rb domain.RecurringBooking) (domain.RecurringBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rb.ID == uuid.Nil {
		rb.ID = uuid.New()
	}
	m.series[rb.ID] = rb
	return rb, nil
}

func (m *MemStore) GetRecurringBooking(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSeriesLocked(id)
}

func (m *MemStore) getSeriesLocked(id uuid.UUID) (domain.RecurringBooking, error) {
	s, ok := m.series[id]
	if !ok {
		return domain.RecurringBooking{}, store.ErrNotFound
	}
	return s, nil
}

func (m *MemStore) ListDueRecurringBookings(ctx context.Context, asOf time.Time) ([]domain.RecurringBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := domain.DateOf(asOf)
	var out []domain.RecurringBooking
	for _, s := range m.series {
		if s.Status == domain.SeriesStatusActive && !domain.DateOf(s.NextBookingDate).After(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemStore) UpdateRecurringBooking(ctx context.Context, rb domain.RecurringBooking) (domain.RecurringBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSeriesLocked(rb)
}

func (m *MemStore) updateSeriesLocked(rb domain.RecurringBooking) (domain.RecurringBooking, error) {
	if _, ok := m.series[rb.ID]; !ok {
		return domain.RecurringBooking{}, store.ErrNotFound
	}
	m.series[rb.ID] = rb
	return rb, nil
}

func (m *MemStore) UpsertRecurringException(ctx context.Context, ex domain.RecurringException) (domain.RecurringException, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	m.exceptions[exceptionKey(ex.RecurringBookingID, ex.ExceptionDate)] = ex
	return ex, nil
}

func (m *MemStore) FindRecurringException(ctx context.Context, recurringBookingID uuid.UUID, date time.Time) (*domain.RecurringException, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findExceptionLocked(recurringBookingID, date), nil
}

func (m *MemStore) findExceptionLocked(recurringBookingID uuid.UUID, date time.Time) *domain.RecurringException {
	ex, ok := m.exceptions[exceptionKey(recurringBookingID, date)]
	if !ok {
		return nil
	}
	return &ex
}

// memTx is the transactional view; the mutex is already held.
type memTx MemStore

func (t *memTx) ListWorkingHours(ctx context.Context, providerID string) ([]domain.WorkingHours, error) {
	return (*MemStore)(t).listWorkingHoursLocked(providerID), nil
}

func (t *memTx) ListBlockedTimes(ctx context.Context, providerID string, date time.Time) ([]domain.BlockedTime, error) {
	return (*MemStore)(t).listBlockedTimesLocked(providerID, date), nil
}

func (t *memTx) ListActiveBookings(ctx context.Context, providerID string, staffID *string, windowStart, windowEnd time.Time) ([]domain.Booking, error) {
	return (*MemStore)(t).listActiveBookingsLocked(providerID, staffID, windowStart, windowEnd), nil
}

func (t *memTx) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return (*MemStore)(t).getBookingLocked(id)
}

func (t *memTx) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := (*MemStore)(t)
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	for _, existing := range m.bookings {
		if b.RecurringBookingID != nil && existing.RecurringBookingID != nil &&
			*existing.RecurringBookingID == *b.RecurringBookingID &&
			existing.OccurrenceDate != nil && b.OccurrenceDate != nil &&
			domain.DateOf(*existing.OccurrenceDate).Equal(domain.DateOf(*b.OccurrenceDate)) {
			return domain.Booking{}, store.ErrDuplicateOccurrence
		}
		if existing.Status.Active() && b.Status.Active() &&
			existing.ProviderID == b.ProviderID &&
			existing.StartTime.Equal(b.StartTime) && sameStaff(existing.StaffID, b.StaffID) {
			return domain.Booking{}, store.ErrConflict
		}
	}
	m.bookings[b.ID] = b
	return b, nil
}

func (t *memTx) UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := (*MemStore)(t)
	if _, ok := m.bookings[b.ID]; !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	m.bookings[b.ID] = b
	return b, nil
}

func (t *memTx) GetRecurringBooking(ctx context.Context, id uuid.UUID) (domain.RecurringBooking, error) {
	return (*MemStore)(t).getSeriesLocked(id)
}

func (t *memTx) UpdateRecurringBooking(ctx context.Context, rb domain.RecurringBooking) (domain.RecurringBooking, error) {
	return (*MemStore)(t).updateSeriesLocked(rb)
}

func (t *memTx) FindRecurringException(ctx context.Context, recurringBookingID uuid.UUID, date time.Time) (*domain.RecurringException, error) {
	return (*MemStore)(t).findExceptionLocked(recurringBookingID, date), nil
}

func sameStaff(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sortBookings(rows []domain.Booking) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartTime.Before(rows[j].StartTime) })
}
