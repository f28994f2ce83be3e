package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/replication-worker/internal/connection"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type healthSources struct {
	db        pinger
	state     func() connection.State
	delay     func() time.Duration
	sequencer interface{ Pending() int }
	notifier  interface{ Pending() int }
	pusher    interface{ LastToken() int64 }
}

type healthResponse struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components"`
}

// newHealthHandler reports database reachability and replication progress.
// A failed database ping is unhealthy; a replication link that is not
// connected is degraded.
func newHealthHandler(src healthSources) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := healthResponse{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := src.db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		state := src.state()
		health.Components["replication"] = map[string]any{
			"state":       state.String(),
			"retry_delay": src.delay().String(),
		}
		if state != connection.StateConnected && health.Status == "healthy" {
			health.Status = "degraded"
		}

		health.Components["sequencer"] = map[string]any{"pending_batches": src.sequencer.Pending()}
		health.Components["notifier"] = map[string]any{"pending_events": src.notifier.Pending()}
		health.Components["push"] = map[string]any{"last_token": src.pusher.LastToken()}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
