package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/salon-queue/internal/connection"
	"github.com/rickgao/salon-queue/internal/poller"
	"github.com/rickgao/salon-queue/internal/queue"
	"github.com/rickgao/salon-queue/internal/version"
)

// coordinator is what the server needs from queue.Coordinator.
type coordinator interface {
	View() queue.View
	Mode() (live, polling bool)
	PollerStats() poller.Stats
	Refresh(ctx context.Context) error
	RetryWebSocket(ctx context.Context) error
}

// liveStats is what the server needs from connection.Manager.
type liveStats interface {
	Stats() connection.ManagerStats
}

type healthResponse struct {
	Status     string         `json:"status"`
	Version    version.Info   `json:"version"`
	Components map[string]any `json:"components"`
}

// newHandler builds the health and debug endpoints.
func newHandler(coord coordinator, conn liveStats, metricsPath string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		view := coord.View()
		live, polling := coord.Mode()
		cs := conn.Stats()
		ps := coord.PollerStats()

		health := healthResponse{
			Status:  "healthy",
			Version: version.Get(),
			Components: map[string]any{
				"connection": map[string]any{
					"status":      cs.Status,
					"failures":    cs.FailureCount,
					"in_fallback": cs.InFallback,
					"topics":      cs.Topics,
				},
				"queue": map[string]any{
					"live":       live,
					"polling":    polling,
					"entries":    len(view.Entries),
					"loading":    view.Loading,
					"last_error": view.LastError,
					"updated_at": view.UpdatedAt,
					"source":     view.Source,
				},
				"poller": map[string]any{
					"polls":  ps.Polls,
					"errors": ps.Errors,
				},
			},
		}

		switch {
		case view.LastError != "" && !live:
			// Neither push nor pull is delivering.
			health.Status = "unhealthy"
		case view.UsingFallback || view.LastError != "":
			health.Status = "degraded"
		}

		code := http.StatusOK
		if health.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health, logger)
	})

	mux.HandleFunc("GET /queue", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, coord.View(), logger)
	})

	mux.HandleFunc("POST /refresh", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		if err := coord.Refresh(ctx); err != nil {
			logger.Warn("manual refresh failed", "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()}, logger)
			return
		}
		writeJSON(w, http.StatusOK, coord.View(), logger)
	})

	mux.HandleFunc("POST /retry", func(w http.ResponseWriter, r *http.Request) {
		if err := coord.RetryWebSocket(r.Context()); err != nil {
			logger.Warn("retry websocket failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()}, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"}, logger)
	})

	if metricsPath != "" {
		mux.Handle("GET "+metricsPath, promhttp.Handler())
	}

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}
