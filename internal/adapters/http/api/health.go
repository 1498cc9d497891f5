package api

import (
	"net/http"

	"github.com/okian/admit/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HandleHealth serves GET /healthz as the Prometheus exposition of the
// service registry. A scrape that succeeds is the liveness signal.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
