package webhooks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStore persists webhook subscriptions. Deletion is always
// soft: rows keep their history and deliveries to inactive subscriptions
// are silently skipped.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *Subscription) error
	// GetByID returns the subscription regardless of its active flag;
	// callers decide how to treat soft-deleted rows.
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListActive(ctx context.Context) ([]*Subscription, error)
	ListActiveByEvent(ctx context.Context, event EventType) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	// SoftDelete marks the subscription inactive. Deleting an already
	// inactive subscription is a no-op, not an error.
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// AttemptStore persists delivery attempts for retry and audit.
type AttemptStore interface {
	Record(ctx context.Context, a *DeliveryAttempt) error
	Update(ctx context.Context, a *DeliveryAttempt) error
	// ListDue returns failed attempts that are eligible for retry: younger
	// than maxAge, below maxAttempts, and whose next_retry_at has passed.
	ListDue(ctx context.Context, now time.Time, maxAge time.Duration, maxAttempts int) ([]*DeliveryAttempt, error)
	// ListByWebhook returns the most recent attempts for a webhook,
	// newest first.
	ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]*DeliveryAttempt, error)
}
