package snapshot

import (
	"sync"
	"time"
)

// MetricsCollector receives snapshot worker measurements.
type MetricsCollector interface {
	RecordSave(sink string, success bool, duration time.Duration)
	RecordFlush(count int, duration time.Duration)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordSave(sink string, success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordFlush(count int, duration time.Duration)                {}

// SinkMetrics are the per-sink counters kept by MemoryMetrics.
type SinkMetrics struct {
	Saves       uint64        `json:"saves"`
	Failures    uint64        `json:"failures"`
	LastSuccess time.Time     `json:"last_success"`
	LastLatency time.Duration `json:"last_latency_ns"`
}

// MemoryMetrics keeps counters in memory for the health endpoint.
type MemoryMetrics struct {
	mu            sync.Mutex
	sinks         map[string]SinkMetrics
	lastFlushSize int
	lastFlushTime time.Duration
}

func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{sinks: make(map[string]SinkMetrics)}
}

func (m *MemoryMetrics) RecordSave(sink string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sinks[sink]
	if success {
		s.Saves++
		s.LastSuccess = time.Now()
	} else {
		s.Failures++
	}
	s.LastLatency = duration
	m.sinks[sink] = s
}

func (m *MemoryMetrics) RecordFlush(count int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFlushSize = count
	m.lastFlushTime = duration
}

// Sinks returns a copy of the per-sink counters.
func (m *MemoryMetrics) Sinks() map[string]SinkMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]SinkMetrics, len(m.sinks))
	for k, v := range m.sinks {
		out[k] = v
	}
	return out
}

func (m *MemoryMetrics) LastFlush() (count int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFlushSize, m.lastFlushTime
}
