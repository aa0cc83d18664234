package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bookline/backend/internal/broadcast"
	"bookline/backend/internal/domain"
	"bookline/backend/internal/service/scheduling"
	"bookline/backend/internal/store/storetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// 2030-01-07 is a Monday, far enough out that advance-notice checks against
// the wall clock stay inert.
var testDay = time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *storetest.MemStore, *broadcast.Broadcaster) {
	t.Helper()

	mem := storetest.NewMemStore()
	mem.SeedSchedule(domain.ProviderSchedule{ProviderID: "p1", Timezone: "UTC"})
	mem.SeedPolicy(domain.ServicePolicy{
		ServiceID:       "s1",
		ProviderID:      "p1",
		DurationMinutes: 60,
		BufferMinutes:   15,
	})
	mem.SeedWorkingHours(domain.WorkingHours{
		ProviderID:  "p1",
		Weekday:     1,
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
	})

	hub := broadcast.New(8)
	t.Cleanup(hub.Close)

	svc := scheduling.New(mem, hub, nil, 15*time.Minute)
	srv := NewServer(svc, hub, nil, Options{RateLimit: 10000, RateBurst: 10000})
	t.Cleanup(srv.Close)
	return srv, mem, hub
}

func doJSON(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestGetAvailability(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/availability?provider_id=p1&service_id=s1&date=2030-01-07", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var body struct {
		ProviderID string `json:"provider_id"`
		Date       string `json:"date"`
		Slots      []struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"slots"`
	}
	decodeBody(t, rec, &body)
	if body.Date != "2030-01-07" {
		t.Fatalf("date = %q", body.Date)
	}
	if len(body.Slots) == 0 {
		t.Fatalf("expected slots on an open Monday")
	}
	if !body.Slots[0].Start.Equal(testDay.Add(9 * time.Hour)) {
		t.Fatalf("first slot = %v, want 09:00", body.Slots[0].Start)
	}
}

func TestGetAvailability_BadDate(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/availability?provider_id=p1&service_id=s1&date=tomorrow", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	if body.Error != "validation" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestCreateBooking(t *testing.T) {
	srv, mem, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/bookings",
		`{"customer_id":"c1","provider_id":"p1","service_id":"s1","start_time":"2030-01-07T09:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var booking domain.Booking
	decodeBody(t, rec, &booking)
	if booking.Status != domain.BookingStatusPending {
		t.Fatalf("status = %s, want pending", booking.Status)
	}
	if got := len(mem.AllBookings()); got != 1 {
		t.Fatalf("bookings = %d, want 1", got)
	}
}

func TestCreateBooking_Conflict(t *testing.T) {
	srv, mem, _ := newTestServer(t)
	mem.SeedBooking(domain.Booking{
		CustomerID: "c9",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  testDay.Add(9 * time.Hour),
		EndTime:    testDay.Add(10 * time.Hour),
		Status:     domain.BookingStatusConfirmed,
	})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/bookings",
		`{"customer_id":"c1","provider_id":"p1","service_id":"s1","start_time":"2030-01-07T09:30:00Z"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var body struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	decodeBody(t, rec, &body)
	if body.Error != "conflict" || body.Reason != string(scheduling.ConflictOverlapsBooking) {
		t.Fatalf("body = %+v", body)
	}
}

func TestCreateBooking_MissingFields(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/bookings", `{"customer_id":"c1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	if body.Error != "not_found" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestGetBooking_BadID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/bookings/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConfirmBooking_InvalidTransition(t *testing.T) {
	srv, mem, _ := newTestServer(t)
	seeded := mem.SeedBooking(domain.Booking{
		CustomerID: "c1",
		ProviderID: "p1",
		ServiceID:  "s1",
		StartTime:  testDay.Add(9 * time.Hour),
		EndTime:    testDay.Add(10 * time.Hour),
		Status:     domain.BookingStatusCancelled,
	})

	rec := doJSON(t, srv, http.MethodPatch, "/api/v1/bookings/"+seeded.ID.String()+"/confirm", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var body struct {
		Error string `json:"error"`
		From  string `json:"from"`
		To    string `json:"to"`
	}
	decodeBody(t, rec, &body)
	if body.Error != "invalid_transition" || body.From != "cancelled" || body.To != "confirmed" {
		t.Fatalf("body = %+v", body)
	}
}

func TestStreamEvents_RequiresValidTopics(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/events", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without topics", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/events?topic=everything", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a malformed topic", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
