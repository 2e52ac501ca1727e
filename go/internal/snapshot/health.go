package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Worker    Stats                  `json:"worker"`
	Sinks     map[string]SinkHealth  `json:"sinks"`
	Metrics   map[string]SinkMetrics `json:"metrics,omitempty"`
	Errors    []string               `json:"errors"`
	CheckedAt time.Time              `json:"checked_at"`
}

type SinkHealth struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker reports on the snapshot worker and its sinks.
type HealthChecker struct {
	worker  *Worker
	sinks   []Sink
	metrics *MemoryMetrics
	clock   clockwork.Clock
	// threshold is how stale the last flush may be before the worker counts
	// as stuck.
	threshold time.Duration
}

func NewHealthChecker(worker *Worker, sinks []Sink, metrics *MemoryMetrics, clock clockwork.Clock, threshold time.Duration) *HealthChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthChecker{
		worker:    worker,
		sinks:     sinks,
		metrics:   metrics,
		clock:     clock,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:   true,
		Sinks:     make(map[string]SinkHealth, len(h.sinks)),
		Errors:    []string{},
		CheckedAt: h.clock.Now(),
	}

	if h.worker != nil {
		status.Worker = h.worker.Stats()
		if !status.Worker.Running {
			status.Healthy = false
			status.Errors = append(status.Errors, "snapshot worker not running")
		} else if !status.Worker.LastFlush.IsZero() && h.threshold > 0 {
			if since := h.clock.Since(status.Worker.LastFlush); since > h.threshold {
				status.Healthy = false
				status.Errors = append(status.Errors, fmt.Sprintf("no snapshot pass for %s", since))
			}
		}
	}

	for _, sink := range h.sinks {
		sh := SinkHealth{Connected: true}
		if p, ok := sink.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				sh.Connected = false
				sh.Error = err.Error()
				status.Healthy = false
				status.Errors = append(status.Errors, fmt.Sprintf("%s: %v", sink.Name(), err))
			}
		}
		status.Sinks[sink.Name()] = sh
	}

	if h.metrics != nil {
		status.Metrics = h.metrics.Sinks()
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health response")
	}
}
