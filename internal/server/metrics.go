// Package server contains HTTP handlers for the DID service.
// This file implements Prometheus metrics exposure and the domain-specific
// counters for registry mutations and DID resolutions.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Resolutions by method token and outcome. Outcome is "success" or one
	// of the resolution error codes (notFound, deactivated, timeout, ...).
	resolutionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "did_resolutions_total",
			Help: "Total number of DID resolutions, by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	// Registry mutations by operation and result.
	mutationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "did_registry_mutations_total",
			Help: "Total number of registry mutations, by operation and result.",
		},
		[]string{"operation", "result"}, // register/update/deactivate x success/failure
	)
)

// metricsHandler exposes Prometheus metrics through the main HTTP server in
// the standard exposition format.
func (h *Handler) metricsHandler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// NewMetricsHandler creates a standalone handler for the separate metrics
// listener, keeping scrape traffic off the application port.
func NewMetricsHandler() http.Handler {
	return promhttp.Handler()
}

// incrementResolution records one resolution outcome. An empty error code
// counts as success.
func incrementResolution(method, errorCode string) {
	if method == "" {
		method = "invalid"
	}
	outcome := errorCode
	if outcome == "" {
		outcome = "success"
	}
	resolutionCount.WithLabelValues(method, outcome).Inc()
}

// incrementMutation records one registry mutation result.
func incrementMutation(operation, result string) {
	mutationCount.WithLabelValues(operation, result).Inc()
}
