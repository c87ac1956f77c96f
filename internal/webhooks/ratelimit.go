package webhooks

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// TestRateLimiter caps synchronous test deliveries per webhook using a
// token bucket. It is consulted before the delivery worker runs, so a
// rate-limited test never touches the circuit breaker or metrics.
type TestRateLimiter struct {
	mu        sync.Mutex
	limiters  map[uuid.UUID]*rate.Limiter
	perMinute int
}

// NewTestRateLimiter creates a limiter allowing perMinute requests per
// webhook per minute.
func NewTestRateLimiter(perMinute int) *TestRateLimiter {
	if perMinute <= 0 {
		perMinute = 100
	}
	return &TestRateLimiter{
		limiters:  make(map[uuid.UUID]*rate.Limiter),
		perMinute: perMinute,
	}
}

// Limit returns the per-minute cap.
func (t *TestRateLimiter) Limit() int {
	return t.perMinute
}

func (t *TestRateLimiter) limiter(id uuid.UUID) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.perMinute)), t.perMinute)
		t.limiters[id] = l
	}
	return l
}

// Allow consumes one token for the webhook, reporting whether the request
// is within budget.
func (t *TestRateLimiter) Allow(id uuid.UUID) bool {
	return t.limiter(id).Allow()
}

// Remaining returns the number of requests left in the current window.
func (t *TestRateLimiter) Remaining(id uuid.UUID) int {
	n := int(t.limiter(id).Tokens())
	if n < 0 {
		return 0
	}
	return n
}
