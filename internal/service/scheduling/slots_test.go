package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"bookline/backend/internal/broadcast"
	"bookline/backend/internal/domain"
	"bookline/backend/internal/store/storetest"
)

type capturePublisher struct {
	events []broadcast.Event
}

func (c *capturePublisher) Publish(e broadcast.Event) {
	c.events = append(c.events, e)
}

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

// newTestService wires a service over the in-memory store with a 9-17 Monday
// schedule for provider p1 and a 60m/15m-buffer policy for service s1, with
// the clock pinned to the Sunday before.
func newTestService(t *testing.T) (*Service, *storetest.MemStore, *capturePublisher) {
	t.Helper()

	mem := storetest.NewMemStore()
	mem.SeedSchedule(domain.ProviderSchedule{ProviderID: "p1", Timezone: "UTC"})
	mem.SeedPolicy(testPolicy())
	mem.SeedWorkingHours(nineToFive()...)

	pub := &capturePublisher{}
	svc := New(mem, pub, nil, 15*time.Minute)
	svc.now = func() time.Time { return testNow }
	return svc, mem, pub
}

func TestComputeSlots_CanonicalDay(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.SeedBooking(domain.Booking{
		CustomerID: "c9",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(10, 0),
		EndTime:    utc(11, 0),
		Status:     domain.BookingStatusConfirmed,
	})

	slots, err := svc.ComputeSlots(context.Background(), SlotRequest{
		ProviderID: "p1",
		ServiceID:  "s1",
		Date:       testDate,
	})
	if err != nil {
		t.Fatalf("ComputeSlots error: %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("expected slots")
	}

	// 09:00 fits exactly before the 10:00 booking; the next start clears the
	// booking plus its trailing buffer at 11:15; the last start leaves room
	// for the buffer before the 17:00 close.
	if !slots[0].Start.Equal(utc(9, 0)) {
		t.Fatalf("first slot = %v, want 09:00", slots[0].Start)
	}
	if !slots[1].Start.Equal(utc(11, 15)) {
		t.Fatalf("second slot = %v, want 11:15", slots[1].Start)
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(utc(15, 45)) {
		t.Fatalf("last slot = %v, want 15:45", last.Start)
	}
	if len(slots) != 20 {
		t.Fatalf("slot count = %d, want 20", len(slots))
	}

	for _, slot := range slots {
		if slot.Start.Before(utc(10, 0)) && slot.End.After(utc(10, 0)) {
			t.Fatalf("slot %v overlaps the existing booking", slot)
		}
	}
}

func TestComputeSlots_AdvanceNoticeFiltersToday(t *testing.T) {
	svc, mem, _ := newTestService(t)
	policy := testPolicy()
	policy.MinAdvanceHours = 48
	mem.SeedPolicy(policy)

	slots, err := svc.ComputeSlots(context.Background(), SlotRequest{
		ProviderID: "p1",
		ServiceID:  "s1",
		Date:       testDate,
	})
	if err != nil {
		t.Fatalf("ComputeSlots error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots inside the notice window, got %d", len(slots))
	}
}

func TestComputeSlots_ClosedDayIsEmptyNotError(t *testing.T) {
	svc, _, _ := newTestService(t)

	sunday := testDate.AddDate(0, 0, -1)
	slots, err := svc.ComputeSlots(context.Background(), SlotRequest{
		ProviderID: "p1",
		ServiceID:  "s1",
		Date:       sunday,
	})
	if err != nil {
		t.Fatalf("ComputeSlots error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected empty day, got %v", slots)
	}
}

func TestComputeSlots_AllDayBlock(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.SeedBlockedTime(domain.BlockedTime{
		ProviderID: "p1",
		Date:       testDate,
		Active:     true,
		Recurrence: domain.BlockRecurrenceNone,
	})

	slots, err := svc.ComputeSlots(context.Background(), SlotRequest{
		ProviderID: "p1",
		ServiceID:  "s1",
		Date:       testDate,
	})
	if err != nil {
		t.Fatalf("ComputeSlots error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a blocked day, got %d", len(slots))
	}
}

func TestComputeSlots_ServiceProviderMismatch(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.SeedPolicy(domain.ServicePolicy{
		ServiceID:       "s2",
		ProviderID:      "other",
		DurationMinutes: 30,
	})

	_, err := svc.ComputeSlots(context.Background(), SlotRequest{
		ProviderID: "p1",
		ServiceID:  "s2",
		Date:       testDate,
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %T (%v), want *ValidationError", err, err)
	}
}

func TestComputeSlots_ProviderTimezone(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.SeedSchedule(domain.ProviderSchedule{ProviderID: "p1", Timezone: "America/New_York"})

	slots, err := svc.ComputeSlots(context.Background(), SlotRequest{
		ProviderID: "p1",
		ServiceID:  "s1",
		Date:       testDate,
	})
	if err != nil {
		t.Fatalf("ComputeSlots error: %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("expected slots")
	}

	// 09:00 in New York is 13:00 UTC in September.
	if !slots[0].Start.UTC().Equal(utc(13, 0)) {
		t.Fatalf("first slot = %v, want 13:00 UTC", slots[0].Start.UTC())
	}
}
