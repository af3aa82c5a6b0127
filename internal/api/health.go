package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/snarg/psola/internal/watch"
)

type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type HealthHandler struct {
	stats     StatsSource
	version   string
	startTime time.Time
}

func NewHealthHandler(stats StatsSource, version string) *HealthHandler {
	return &HealthHandler{
		stats:     stats,
		version:   version,
		startTime: time.Now(),
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// Stats serves the live watcher counters.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var s watch.Stats
	if h.stats != nil {
		s = h.stats()
	}
	writeJSON(w, http.StatusOK, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
