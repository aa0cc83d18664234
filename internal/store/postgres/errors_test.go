package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"bookline/backend/internal/store"
)

func TestMapBookingInsertError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			"overlap exclusion",
			&pgconn.PgError{Code: "23P01", ConstraintName: "bookings_no_overlap"},
			store.ErrConflict,
		},
		{
			"occurrence key",
			&pgconn.PgError{Code: "23505", ConstraintName: "bookings_occurrence_key"},
			store.ErrDuplicateOccurrence,
		},
		{
			"provider start key",
			&pgconn.PgError{Code: "23505", ConstraintName: "bookings_provider_start_key"},
			store.ErrConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapBookingInsertError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("mapped to %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapBookingInsertError_Passthrough(t *testing.T) {
	// Unrelated constraints and non-postgres errors come back unchanged.
	foreign := &pgconn.PgError{Code: "23505", ConstraintName: "some_other_key"}
	if got := mapBookingInsertError(foreign); got != error(foreign) {
		t.Fatalf("mapped to %v, want the original error", got)
	}

	plain := fmt.Errorf("connection reset")
	if got := mapBookingInsertError(plain); got != plain {
		t.Fatalf("mapped to %v, want the original error", got)
	}

	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01", ConstraintName: "bookings_no_overlap"})
	if got := mapBookingInsertError(wrapped); !errors.Is(got, store.ErrConflict) {
		t.Fatalf("wrapped exclusion error mapped to %v, want ErrConflict", got)
	}
}

func TestIsTransient(t *testing.T) {
	if !isTransient(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("serialization failure must be transient")
	}
	if !isTransient(&pgconn.PgError{Code: "40P01"}) {
		t.Fatalf("deadlock must be transient")
	}
	if isTransient(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation must not be retried")
	}
	if isTransient(errors.New("boom")) {
		t.Fatalf("plain errors must not be retried")
	}
}
