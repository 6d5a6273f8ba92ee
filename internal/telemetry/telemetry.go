// Package telemetry provides the pluggable logging and metrics sink used by
// the broker's core components. The core never calls slog directly so that
// call sites stay agnostic of the concrete sink (see Sink below); the default
// implementation is a thin structured-logging + Prometheus adapter.
package telemetry

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the four-method telemetry adapter consumed by the broker core.
// Message is a short human-readable event name; fields are structured
// key/value pairs following slog's attribute convention.
type Sink interface {
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Debug(msg string, fields ...any)
}

// logsTotal counts emitted log lines by level, mirroring the "logs_total"
// counter required by the observability surface.
var logsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "logs_total",
		Help: "Total number of log lines emitted, by level.",
	},
	[]string{"level"},
)

func init() {
	prometheus.MustRegister(logsTotal)
}

// slogSink is the default Sink backed by log/slog, matching the rest of the
// codebase's structured-logging idiom.
type slogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps an *slog.Logger as a Sink.
func NewSlogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogSink{logger: logger}
}

func (s *slogSink) Info(msg string, fields ...any) {
	logsTotal.WithLabelValues("info").Inc()
	s.logger.Info(msg, fields...)
}

func (s *slogSink) Warn(msg string, fields ...any) {
	logsTotal.WithLabelValues("warn").Inc()
	s.logger.Warn(msg, fields...)
}

func (s *slogSink) Error(msg string, fields ...any) {
	logsTotal.WithLabelValues("error").Inc()
	s.logger.Error(msg, fields...)
}

func (s *slogSink) Debug(msg string, fields ...any) {
	logsTotal.WithLabelValues("debug").Inc()
	s.logger.Debug(msg, fields...)
}
