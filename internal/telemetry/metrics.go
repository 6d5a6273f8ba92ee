package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the Prometheus registry (logs_total plus the
// default process/runtime collectors) on /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
