package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bookline/backend/internal/broadcast"
	"bookline/backend/internal/domain"
)

func TestCreateBooking_Succeeds(t *testing.T) {
	svc, _, pub := newTestService(t)

	booking, err := svc.CreateBooking(context.Background(), CreateBookingRequest{
		CustomerID: "c1",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(9, 0),
	})
	if err != nil {
		t.Fatalf("CreateBooking error: %v", err)
	}
	if booking.Status != domain.BookingStatusPending {
		t.Fatalf("status = %s, want pending", booking.Status)
	}
	if !booking.EndTime.Equal(utc(10, 0)) {
		t.Fatalf("end = %v, want start plus service duration", booking.EndTime)
	}
	if booking.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("payment = %s, want unpaid", booking.PaymentStatus)
	}

	if len(pub.events) != 1 || pub.events[0].Type != broadcast.EventBookingCreated {
		t.Fatalf("events = %v, want one booking-created", pub.events)
	}
	if pub.events[0].ProviderID != "p1" || pub.events[0].ServiceID != "s1" {
		t.Fatalf("event topics wrong: %+v", pub.events[0])
	}
}

func TestCreateBooking_DepositRequired(t *testing.T) {
	svc, mem, _ := newTestService(t)
	policy := testPolicy()
	policy.DepositRequired = true
	mem.SeedPolicy(policy)

	booking, err := svc.CreateBooking(context.Background(), CreateBookingRequest{
		CustomerID: "c1",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(9, 0),
	})
	if err != nil {
		t.Fatalf("CreateBooking error: %v", err)
	}
	if booking.PaymentStatus != domain.PaymentStatusDepositPending {
		t.Fatalf("payment = %s, want deposit_pending", booking.PaymentStatus)
	}
}

func TestCreateBooking_ConflictLeavesNoRow(t *testing.T) {
	svc, mem, pub := newTestService(t)
	mem.SeedBooking(domain.Booking{
		CustomerID: "c9",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(10, 0),
		EndTime:    utc(11, 0),
		Status:     domain.BookingStatusConfirmed,
	})

	_, err := svc.CreateBooking(context.Background(), CreateBookingRequest{
		CustomerID: "c1",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(10, 30),
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %T (%v), want *ConflictError", err, err)
	}
	if conflict.Reason != ConflictOverlapsBooking {
		t.Fatalf("reason = %q, want %q", conflict.Reason, ConflictOverlapsBooking)
	}
	if got := len(mem.AllBookings()); got != 1 {
		t.Fatalf("bookings = %d, want the seeded one only", got)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event must be published on conflict, got %v", pub.events)
	}
}

func TestCreateBooking_ConcurrentSameSlot(t *testing.T) {
	svc, mem, _ := newTestService(t)

	// Several customers race for the identical slot. The provider
	// transaction serializes them; exactly one wins, the rest get a
	// conflict, and only one row lands.
	const n = 8
	start := make(chan struct{})
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.CreateBooking(context.Background(), CreateBookingRequest{
				CustomerID: fmt.Sprintf("c%d", i),
				ProviderID: "p1",
				ServiceID:  "s1",
				StartTime:  utc(9, 0),
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		var conflict *ConflictError
		switch {
		case err == nil:
			wins++
		case errors.As(err, &conflict):
			conflicts++
		default:
			t.Fatalf("unexpected error %T (%v)", err, err)
		}
	}
	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins = %d, conflicts = %d, want 1 and %d", wins, conflicts, n-1)
	}
	if got := len(mem.AllBookings()); got != 1 {
		t.Fatalf("bookings = %d, want the single winner", got)
	}
}

func TestConfirmThenCheckInThenComplete(t *testing.T) {
	svc, mem, _ := newTestService(t)
	seeded := mem.SeedBooking(domain.Booking{
		CustomerID: "c1",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(9, 0),
		EndTime:    utc(10, 0),
		Status:     domain.BookingStatusPending,
	})

	booking, err := svc.ConfirmBooking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("ConfirmBooking error: %v", err)
	}
	if booking.Status != domain.BookingStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", booking.Status)
	}

	// Check-in before the start is rejected.
	svc.now = func() time.Time { return utc(8, 0) }
	if _, err := svc.CheckInBooking(context.Background(), seeded.ID); err == nil {
		t.Fatalf("expected early check-in to fail")
	}

	svc.now = func() time.Time { return utc(9, 5) }
	booking, err = svc.CheckInBooking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("CheckInBooking error: %v", err)
	}
	if booking.Status != domain.BookingStatusInProgress {
		t.Fatalf("status = %s, want in_progress", booking.Status)
	}

	booking, err = svc.CompleteBooking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("CompleteBooking error: %v", err)
	}
	if booking.Status != domain.BookingStatusCompleted {
		t.Fatalf("status = %s, want completed", booking.Status)
	}
}

func TestTransition_IllegalSource(t *testing.T) {
	svc, mem, _ := newTestService(t)
	seeded := mem.SeedBooking(domain.Booking{
		CustomerID: "c1",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(9, 0),
		EndTime:    utc(10, 0),
		Status:     domain.BookingStatusCancelled,
	})

	_, err := svc.ConfirmBooking(context.Background(), seeded.ID)
	var tErr *TransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("error = %T (%v), want *TransitionError", err, err)
	}
	if tErr.From != domain.BookingStatusCancelled || tErr.To != domain.BookingStatusConfirmed {
		t.Fatalf("transition = %s -> %s", tErr.From, tErr.To)
	}
}

func TestCancelBooking_FeeInsideWindow(t *testing.T) {
	svc, mem, pub := newTestService(t)
	policy := testPolicy()
	policy.CancellationPolicyHours = 24
	policy.CancellationFeePercent = 50
	policy.PriceCents = 10000
	mem.SeedPolicy(policy)

	seeded := mem.SeedBooking(domain.Booking{
		CustomerID: "c1",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(9, 0),
		EndTime:    utc(10, 0),
		Status:     domain.BookingStatusConfirmed,
	})

	// Two hours before the start, well inside the 24h window.
	svc.now = func() time.Time { return utc(7, 0) }
	booking, err := svc.CancelBooking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("CancelBooking error: %v", err)
	}
	if booking.Status != domain.BookingStatusCancelled {
		t.Fatalf("status = %s, want cancelled", booking.Status)
	}
	if booking.CancellationFee != 5000 {
		t.Fatalf("fee = %d, want 5000", booking.CancellationFee)
	}
	if booking.CancelledAt == nil {
		t.Fatalf("cancelled_at not recorded")
	}
	if len(pub.events) != 1 || pub.events[0].Type != broadcast.EventBookingCancelled {
		t.Fatalf("events = %v, want one booking-cancelled", pub.events)
	}
}

func TestCancelBooking_FreeOutsideWindow(t *testing.T) {
	svc, mem, _ := newTestService(t)
	policy := testPolicy()
	policy.CancellationPolicyHours = 24
	policy.CancellationFeePercent = 50
	policy.PriceCents = 10000
	mem.SeedPolicy(policy)

	seeded := mem.SeedBooking(domain.Booking{
		CustomerID: "c1",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(9, 0),
		EndTime:    utc(10, 0),
		Status:     domain.BookingStatusPending,
	})

	booking, err := svc.CancelBooking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("CancelBooking error: %v", err)
	}
	if booking.CancellationFee != 0 {
		t.Fatalf("fee = %d, want 0 outside the window", booking.CancellationFee)
	}
}

func TestRescheduleBooking_MovesAtomically(t *testing.T) {
	svc, mem, pub := newTestService(t)
	seeded := mem.SeedBooking(domain.Booking{
		CustomerID: "c1",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(10, 0),
		EndTime:    utc(11, 0),
		Status:     domain.BookingStatusConfirmed,
	})

	// Half an hour later, overlapping its own old slot: legal because the
	// original no longer occupies the calendar.
	replacement, err := svc.RescheduleBooking(context.Background(), seeded.ID, utc(10, 30))
	if err != nil {
		t.Fatalf("RescheduleBooking error: %v", err)
	}
	if replacement.Status != domain.BookingStatusConfirmed {
		t.Fatalf("status = %s, want confirmed carried over", replacement.Status)
	}
	if replacement.RescheduledFrom == nil || *replacement.RescheduledFrom != seeded.ID {
		t.Fatalf("rescheduled_from = %v, want %v", replacement.RescheduledFrom, seeded.ID)
	}
	if !replacement.EndTime.Equal(utc(11, 30)) {
		t.Fatalf("end = %v, want duration preserved", replacement.EndTime)
	}

	original, ok := mem.Booking(seeded.ID)
	if !ok || original.Status != domain.BookingStatusRescheduled {
		t.Fatalf("original status = %s, want rescheduled", original.Status)
	}
	if len(pub.events) != 1 || pub.events[0].Type != broadcast.EventBookingRescheduled {
		t.Fatalf("events = %v, want one booking-rescheduled", pub.events)
	}
}

func TestRescheduleBooking_ConflictRollsBack(t *testing.T) {
	svc, mem, _ := newTestService(t)
	seeded := mem.SeedBooking(domain.Booking{
		CustomerID: "c1",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(10, 0),
		EndTime:    utc(11, 0),
		Status:     domain.BookingStatusConfirmed,
	})
	mem.SeedBooking(domain.Booking{
		CustomerID: "c2",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  utc(13, 0),
		EndTime:    utc(14, 0),
		Status:     domain.BookingStatusConfirmed,
	})

	_, err := svc.RescheduleBooking(context.Background(), seeded.ID, utc(13, 30))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %T (%v), want *ConflictError", err, err)
	}

	// The original must still hold its slot.
	original, _ := mem.Booking(seeded.ID)
	if original.Status != domain.BookingStatusConfirmed {
		t.Fatalf("original status = %s, want confirmed after rollback", original.Status)
	}
	if got := len(mem.AllBookings()); got != 2 {
		t.Fatalf("bookings = %d, want 2", got)
	}
}
