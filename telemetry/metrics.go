// Package telemetry provides Prometheus metrics, correlation-id aware logging
// helpers, and OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	ImportsStarted   = promauto.NewCounter(prometheus.CounterOpts{Name: "f1chatter_imports_started_total", Help: "Number of message import runs started"})
	ImportsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "f1chatter_imports_succeeded_total", Help: "Number of message imports that completed"})
	ImportsFailed    = promauto.NewCounter(prometheus.CounterOpts{Name: "f1chatter_imports_failed_total", Help: "Number of message imports that failed"})
	PollCycles       = promauto.NewCounter(prometheus.CounterOpts{Name: "f1chatter_poll_cycles_total", Help: "Number of live poll cycles that triggered an import"})
	MessagesCreated  = promauto.NewCounter(prometheus.CounterOpts{Name: "f1chatter_messages_created_total", Help: "Messages created by imports"})
	MessagesUpdated  = promauto.NewCounter(prometheus.CounterOpts{Name: "f1chatter_messages_updated_total", Help: "Messages updated by imports"})
	MessagesSkipped  = promauto.NewCounter(prometheus.CounterOpts{Name: "f1chatter_messages_skipped_total", Help: "Messages skipped by imports (filters, missing fields)"})

	// Histograms (seconds)
	ExportDuration prometheus.Observer = promauto.NewHistogram(prometheus.HistogramOpts{Name: "f1chatter_export_duration_seconds", Help: "Discord export subprocess duration seconds", Buckets: prometheus.DefBuckets})
	ImportDuration prometheus.Observer = promauto.NewHistogram(prometheus.HistogramOpts{Name: "f1chatter_import_duration_seconds", Help: "Total import run duration seconds", Buckets: prometheus.DefBuckets})

	// Gauges
	LiveSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "f1chatter_live_sessions", Help: "Number of sessions currently live"})
)

// SetLiveSessions records how many sessions cover the current instant.
func SetLiveSessions(n int) { LiveSessionsGauge.Set(float64(n)) }

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
