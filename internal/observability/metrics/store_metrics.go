package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StoreReasonDeadlineExceeded     = "deadline_exceeded"
	StoreReasonLockTimeout          = "db_lock_timeout"
	StoreReasonSerializationFailure = "serialization_failure"
	StoreReasonUniqueViolation      = "unique_violation"
	StoreReasonNotFound             = "not_found"
	StoreReasonUnknown              = "unknown"
)

// StoreMetrics counts persistence failures on the invitation lifecycle path.
type StoreMetrics struct {
	errors *prometheus.CounterVec
}

var (
	storeMetricsOnce sync.Once
	storeMetrics     *StoreMetrics
)

// Store returns the singleton store metrics registry.
func Store() *StoreMetrics {
	return StoreWithConfig(Config{})
}

// StoreWithConfig returns the singleton store metrics registry using config labels.
func StoreWithConfig(cfg Config) *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetrics = newStoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return storeMetrics
}

// ResetStoreMetricsForTest resets the store metrics singleton for tests.
func ResetStoreMetricsForTest() {
	storeMetricsOnce = sync.Once{}
	storeMetrics = nil
}

func newStoreMetrics(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portal_store_errors_total",
		Help:        "Persistence errors by operation and low-cardinality reason.",
		ConstLabels: constLabelsFor(cfg),
	}, []string{"operation", "reason"})

	registered, err := registerCounterVec(registerer, counter)
	if err != nil {
		registered = counter
	}
	return &StoreMetrics{errors: registered}
}

// RecordError counts err under operation. Nil errors are ignored.
func (m *StoreMetrics) RecordError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	m.errors.WithLabelValues(op, ClassifyStoreError(err)).Inc()
}

// ClassifyStoreError maps driver and context errors to a reason label.
func ClassifyStoreError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StoreReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return StoreReasonUniqueViolation
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StoreReasonNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return StoreReasonLockTimeout
		case "40001", "40P01":
			return StoreReasonSerializationFailure
		case "23505":
			return StoreReasonUniqueViolation
		}
	}
	return StoreReasonUnknown
}
