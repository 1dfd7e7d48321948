package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyStoreError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: StoreReasonDeadlineExceeded},
		{name: "wrapped_deadline", err: fmt.Errorf("update: %w", context.DeadlineExceeded), want: StoreReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: StoreReasonLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: StoreReasonSerializationFailure},
		{name: "pg_unique_violation", err: &pgconn.PgError{Code: "23505"}, want: StoreReasonUniqueViolation},
		{name: "gorm_duplicate", err: gorm.ErrDuplicatedKey, want: StoreReasonUniqueViolation},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: StoreReasonNotFound},
		{name: "unknown", err: errors.New("boom"), want: StoreReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyStoreError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestStoreMetricsRecordError(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newStoreMetrics(registry, Config{ServiceName: "portal-test", Environment: "test"})

	m.RecordError("invitation.create", &pgconn.PgError{Code: "23505"})
	m.RecordError("invitation.create", &pgconn.PgError{Code: "23505"})
	m.RecordError("invitation.update_status", nil)

	got := testutil.ToFloat64(m.errors.WithLabelValues("invitation.create", StoreReasonUniqueViolation))
	if got != 2 {
		t.Fatalf("expected 2 unique violations, got %v", got)
	}
	if n := testutil.CollectAndCount(m.errors); n != 1 {
		t.Fatalf("expected one series, got %d", n)
	}
}

func TestNilStoreMetricsIsSafe(t *testing.T) {
	var m *StoreMetrics
	m.RecordError("invitation.create", errors.New("boom"))
}
