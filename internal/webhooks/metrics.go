package webhooks

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// metricsEntry accumulates delivery counters for one webhook. Guarded by
// its own mutex so webhooks never contend with each other.
type metricsEntry struct {
	mu           sync.Mutex
	total        int64
	successful   int64
	avgLatencyMs float64
}

// MetricsTracker keeps per-webhook rolling delivery health. Each delivery
// attempt results in exactly one Record call, so counters never observe a
// partially applied outcome.
type MetricsTracker struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*metricsEntry
}

// NewMetricsTracker creates an empty tracker.
func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{entries: make(map[uuid.UUID]*metricsEntry)}
}

func (m *MetricsTracker) entry(id uuid.UUID) *metricsEntry {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.entries[id]; ok {
		return e
	}
	e = &metricsEntry{}
	m.entries[id] = e
	return e
}

// Record applies the outcome of one delivery attempt. Latency only feeds
// the rolling average on success; failed attempts count toward the total.
func (m *MetricsTracker) Record(id uuid.UUID, success bool, latency time.Duration) {
	e := m.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.total++
	if success {
		e.successful++
		// Cumulative moving average over successful deliveries.
		ms := float64(latency.Milliseconds())
		e.avgLatencyMs += (ms - e.avgLatencyMs) / float64(e.successful)
	}
}

// Snapshot returns the current health view for a webhook. A webhook with
// no recorded deliveries scores 1.0.
func (m *MetricsTracker) Snapshot(id uuid.UUID) HealthMetrics {
	e := m.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	hm := HealthMetrics{
		TotalDeliveries:      e.total,
		SuccessfulDeliveries: e.successful,
		AverageLatencyMs:     e.avgLatencyMs,
		HealthScore:          1.0,
	}
	if e.total > 0 {
		hm.HealthScore = float64(e.successful) / float64(e.total)
	}
	return hm
}
