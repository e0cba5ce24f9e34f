package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "solarma_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec

	guardFailures *prometheus.CounterVec

	amountsMoved *prometheus.CounterVec

	permitVerifications *prometheus.CounterVec

	statementExportTotal   *prometheus.CounterVec
	statementExportLatency *prometheus.HistogramVec

	eventsPublished *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		operationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total escrow operations by operation and result",
			},
			[]string{"operation", "result"},
		)
		operationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Escrow operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)

		guardFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "guard_failures_total",
				Help: "Total rejected operations by operation and error code",
			},
			[]string{"operation", "code"},
		)

		amountsMoved = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "amounts_moved_total",
				Help: "Total base units moved out of vaults by operation and destination kind",
			},
			[]string{"operation", "destination"},
		)

		permitVerifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "permit_verifications_total",
				Help: "Total wake permit verifications by result",
			},
			[]string{"result"},
		)

		statementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_export_total",
				Help: "Total statement export operations by format and result",
			},
			[]string{"format", "result"},
		)
		statementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_export_latency_seconds",
				Help:    "Statement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		eventsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_published_total",
				Help: "Total lifecycle events published by type",
			},
			[]string{"event"},
		)

		prometheus.MustRegister(
			operationTotal,
			operationLatency,
			guardFailures,
			amountsMoved,
			permitVerifications,
			statementExportTotal,
			statementExportLatency,
			eventsPublished,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveOperation records one escrow operation with its latency.
func ObserveOperation(operation, result string, seconds float64) {
	if result == "" {
		result = resultSuccess
	}
	if operationTotal != nil {
		operationTotal.WithLabelValues(operation, result).Inc()
	}
	if operationLatency != nil {
		operationLatency.WithLabelValues(operation, result).Observe(seconds)
	}
}

// GuardFailure increments the rejected-operation counter.
func GuardFailure(operation, code string) {
	if code == "" {
		code = "unknown"
	}
	if guardFailures != nil {
		guardFailures.WithLabelValues(operation, code).Inc()
	}
}

// AmountMoved adds base units disbursed from a vault. Zero moves are
// dropped so counters only reflect actual transfers.
func AmountMoved(operation, destination string, amount uint64) {
	if amount == 0 {
		return
	}
	if amountsMoved != nil {
		amountsMoved.WithLabelValues(operation, destination).Add(float64(amount))
	}
}

// IncPermitVerification increments the wake permit verification counter.
func IncPermitVerification(result string) {
	if result == "" {
		result = resultSuccess
	}
	if permitVerifications != nil {
		permitVerifications.WithLabelValues(result).Inc()
	}
}

// ObserveStatementExport records export latency and result.
func ObserveStatementExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if statementExportTotal != nil {
		statementExportTotal.WithLabelValues(format, result).Inc()
	}
	if statementExportLatency != nil {
		statementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncEventPublished increments lifecycle event counters.
func IncEventPublished(event string) {
	if event == "" {
		event = "unknown"
	}
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(event).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
