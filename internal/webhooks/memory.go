package webhooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySubscriptionStore is an in-memory SubscriptionStore. It backs
// db-less development mode and the test suite; production uses the
// Postgres repository.
type MemorySubscriptionStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*Subscription
}

// NewMemorySubscriptionStore creates an empty store.
func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{rows: make(map[uuid.UUID]*Subscription)}
}

func (s *MemorySubscriptionStore) Create(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = uuid.New()
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	sub.Active = true
	cp := *sub
	s.rows[sub.ID] = &cp
	return nil
}

func (s *MemorySubscriptionStore) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *MemorySubscriptionStore) ListActive(_ context.Context) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Subscription
	for _, sub := range s.rows {
		if sub.Active {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemorySubscriptionStore) ListActiveByEvent(_ context.Context, event EventType) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Subscription
	for _, sub := range s.rows {
		if sub.Active && sub.Listens(event) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemorySubscriptionStore) Update(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[sub.ID]; !ok {
		return ErrNotFound
	}
	sub.UpdatedAt = time.Now().UTC()
	cp := *sub
	s.rows[sub.ID] = &cp
	return nil
}

func (s *MemorySubscriptionStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	sub.Active = false
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

// MemoryAttemptStore is an in-memory AttemptStore with bounded size:
// once maxRows is exceeded the oldest terminal rows are evicted.
type MemoryAttemptStore struct {
	mu      sync.RWMutex
	rows    map[uuid.UUID]*DeliveryAttempt
	maxRows int
}

// NewMemoryAttemptStore creates a store bounded at maxRows (default 1000).
func NewMemoryAttemptStore(maxRows int) *MemoryAttemptStore {
	if maxRows <= 0 {
		maxRows = 1000
	}
	return &MemoryAttemptStore{rows: make(map[uuid.UUID]*DeliveryAttempt), maxRows: maxRows}
}

func (s *MemoryAttemptStore) Record(_ context.Context, a *DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) >= s.maxRows {
		s.evictOldestTerminal()
	}
	cp := *a
	s.rows[a.ID] = &cp
	return nil
}

func (s *MemoryAttemptStore) Update(_ context.Context, a *DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.rows[a.ID] = &cp
	return nil
}

func (s *MemoryAttemptStore) ListDue(_ context.Context, now time.Time, maxAge time.Duration, maxAttempts int) ([]*DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := now.Add(-maxAge)
	var out []*DeliveryAttempt
	for _, a := range s.rows {
		if a.Status == AttemptFailed &&
			a.Attempt < maxAttempts &&
			a.CreatedAt.After(cutoff) &&
			a.NextRetryAt != nil && !a.NextRetryAt.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	return out, nil
}

func (s *MemoryAttemptStore) ListByWebhook(_ context.Context, webhookID uuid.UUID, limit int) ([]*DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*DeliveryAttempt
	for _, a := range s.rows {
		if a.WebhookID == webhookID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// evictOldestTerminal drops the oldest success/abandoned rows first so
// retryable failures are never lost to eviction. Caller holds the lock.
func (s *MemoryAttemptStore) evictOldestTerminal() {
	var victims []*DeliveryAttempt
	for _, a := range s.rows {
		if a.Status == AttemptSuccess || a.Status == AttemptAbandoned {
			victims = append(victims, a)
		}
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i].CreatedAt.Before(victims[j].CreatedAt) })

	drop := len(s.rows) / 10
	if drop == 0 {
		drop = 1
	}
	for i := 0; i < drop && i < len(victims); i++ {
		delete(s.rows, victims[i].ID)
	}
}
