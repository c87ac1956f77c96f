package webhooks

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CircuitState is the breaker state for a single webhook endpoint.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// BreakerConfig tunes the per-webhook circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker open.
	FailureThreshold int
	// OpenDuration is how long the breaker stays open before permitting
	// a half-open trial delivery.
	OpenDuration time.Duration
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenDuration:     5 * time.Minute,
	}
}

// CircuitSnapshot is a read-only view of one endpoint's breaker state.
type CircuitSnapshot struct {
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	OpenedAt            *time.Time   `json:"opened_at,omitempty"`
}

// circuitEntry holds breaker state for one webhook id. Each entry has its
// own mutex so deliveries to different webhooks never contend.
type circuitEntry struct {
	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
}

// CircuitBreaker tracks delivery failures per webhook id and suspends
// delivery to endpoints that keep failing. The OPEN→HALF_OPEN transition
// happens lazily on the next Allow call after OpenDuration elapses; there
// is no cleanup job.
type CircuitBreaker struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*circuitEntry
	cfg     BreakerConfig
	now     func() time.Time
}

// NewCircuitBreaker creates a breaker with the given configuration.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 5 * time.Minute
	}
	return &CircuitBreaker{
		entries: make(map[uuid.UUID]*circuitEntry),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (b *CircuitBreaker) entry(id uuid.UUID) *circuitEntry {
	b.mu.RLock()
	e, ok := b.entries[id]
	b.mu.RUnlock()
	if ok {
		return e
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok = b.entries[id]; ok {
		return e
	}
	e = &circuitEntry{state: CircuitClosed}
	b.entries[id] = e
	return e
}

// Allow reports whether a delivery to the given webhook may proceed.
// When the breaker has been open longer than OpenDuration it transitions
// to half-open and permits a single trial delivery.
func (b *CircuitBreaker) Allow(id uuid.UUID) bool {
	e := b.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if b.now().Sub(e.openedAt) >= b.cfg.OpenDuration {
			e.state = CircuitHalfOpen
			return true
		}
		return false
	}
	return true
}

// IsOpen reports whether deliveries to the webhook are currently blocked.
func (b *CircuitBreaker) IsOpen(id uuid.UUID) bool {
	return !b.Allow(id)
}

// RecordSuccess resets the endpoint to closed with a zeroed failure count.
func (b *CircuitBreaker) RecordSuccess(id uuid.UUID) {
	e := b.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = CircuitClosed
	e.consecutiveFailures = 0
	e.openedAt = time.Time{}
}

// RecordFailure counts a failed delivery. A half-open trial failure
// reopens the breaker immediately; in the closed state the breaker opens
// once the consecutive failure count reaches the threshold.
func (b *CircuitBreaker) RecordFailure(id uuid.UUID) {
	e := b.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures++
	switch e.state {
	case CircuitHalfOpen:
		e.state = CircuitOpen
		e.openedAt = b.now()
	case CircuitClosed:
		if e.consecutiveFailures >= b.cfg.FailureThreshold {
			e.state = CircuitOpen
			e.openedAt = b.now()
		}
	}
}

// Snapshot returns the current breaker state for a webhook. Webhooks that
// never failed report a closed circuit.
func (b *CircuitBreaker) Snapshot(id uuid.UUID) CircuitSnapshot {
	e := b.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := CircuitSnapshot{
		State:               e.state,
		ConsecutiveFailures: e.consecutiveFailures,
	}
	if !e.openedAt.IsZero() {
		t := e.openedAt
		snap.OpenedAt = &t
	}
	return snap
}

// OpenCount returns the number of webhooks whose breaker is currently open.
func (b *CircuitBreaker) OpenCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, e := range b.entries {
		e.mu.Lock()
		if e.state == CircuitOpen {
			n++
		}
		e.mu.Unlock()
	}
	return n
}
