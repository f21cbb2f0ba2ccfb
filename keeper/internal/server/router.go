// Package server provides HTTP server setup for the keeper service.
package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moebius-network/moebius/common/middleware"
	"github.com/moebius-network/moebius/keeper/internal/handlers"
)

// NewRouter constructs a ServeMux with keeper API routes registered.
func NewRouter(h *handlers.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.HandleFunc("/readyz", h.ReadyCheck)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/records", h.Records)
	mux.HandleFunc("/api/v1/keepers", h.Keepers)

	return middleware.RequestID(middleware.AccessLog(logger)(mux))
}
