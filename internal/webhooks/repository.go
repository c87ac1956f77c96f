package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository is the Postgres-backed SubscriptionStore.
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

// NewSubscriptionRepository creates a repository over the given pool.
func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *Subscription) error {
	sub.ID = uuid.New()
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	sub.Active = true

	options, err := json.Marshal(sub.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	query := `INSERT INTO webhook_subscriptions (id, url, events, secret, options, active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.Exec(ctx, query,
		sub.ID, sub.URL, eventsToStrings(sub.Events), sub.Secret, options, sub.Active, sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	query := `SELECT id, url, events, secret, options, active, created_at, updated_at
	          FROM webhook_subscriptions WHERE id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (r *SubscriptionRepository) ListActive(ctx context.Context) ([]*Subscription, error) {
	query := `SELECT id, url, events, secret, options, active, created_at, updated_at
	          FROM webhook_subscriptions WHERE active = true ORDER BY created_at`
	return r.list(ctx, query)
}

func (r *SubscriptionRepository) ListActiveByEvent(ctx context.Context, event EventType) ([]*Subscription, error) {
	query := `SELECT id, url, events, secret, options, active, created_at, updated_at
	          FROM webhook_subscriptions
	          WHERE active = true AND $1 = ANY(events)
	          ORDER BY created_at`
	return r.list(ctx, query, string(event))
}

func (r *SubscriptionRepository) Update(ctx context.Context, sub *Subscription) error {
	sub.UpdatedAt = time.Now().UTC()

	options, err := json.Marshal(sub.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	query := `UPDATE webhook_subscriptions
	          SET url = $2, events = $3, secret = $4, options = $5, updated_at = $6
	          WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		sub.ID, sub.URL, eventsToStrings(sub.Events), sub.Secret, options, sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE webhook_subscriptions SET active = false, updated_at = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) list(ctx context.Context, query string, args ...any) ([]*Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		sub     Subscription
		events  []string
		options []byte
	)
	if err := row.Scan(&sub.ID, &sub.URL, &events, &sub.Secret, &options, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	for _, e := range events {
		sub.Events = append(sub.Events, EventType(e))
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &sub.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	return &sub, nil
}

func eventsToStrings(events []EventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

// AttemptRepository is the Postgres-backed AttemptStore.
type AttemptRepository struct {
	db *pgxpool.Pool
}

// NewAttemptRepository creates a repository over the given pool.
func NewAttemptRepository(db *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) Record(ctx context.Context, a *DeliveryAttempt) error {
	query := `INSERT INTO delivery_attempts
	          (id, webhook_id, event_id, event_type, payload, attempt, status, http_status, error, latency_ms, next_retry_at, created_at, completed_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Exec(ctx, query,
		a.ID, a.WebhookID, a.EventID, string(a.EventType), []byte(a.Payload),
		a.Attempt, string(a.Status), a.HTTPStatus, a.Error, a.LatencyMs,
		a.NextRetryAt, a.CreatedAt, a.CompletedAt,
	)
	return err
}

func (r *AttemptRepository) Update(ctx context.Context, a *DeliveryAttempt) error {
	query := `UPDATE delivery_attempts
	          SET attempt = $2, status = $3, http_status = $4, error = $5,
	              latency_ms = $6, next_retry_at = $7, completed_at = $8
	          WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		a.ID, a.Attempt, string(a.Status), a.HTTPStatus, a.Error,
		a.LatencyMs, a.NextRetryAt, a.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AttemptRepository) ListDue(ctx context.Context, now time.Time, maxAge time.Duration, maxAttempts int) ([]*DeliveryAttempt, error) {
	query := `SELECT id, webhook_id, event_id, event_type, payload, attempt, status, http_status, error, latency_ms, next_retry_at, created_at, completed_at
	          FROM delivery_attempts
	          WHERE status = 'failed'
	            AND attempt < $1
	            AND created_at > $2
	            AND next_retry_at IS NOT NULL AND next_retry_at <= $3
	          ORDER BY next_retry_at`
	return r.list(ctx, query, maxAttempts, now.Add(-maxAge), now)
}

func (r *AttemptRepository) ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]*DeliveryAttempt, error) {
	query := `SELECT id, webhook_id, event_id, event_type, payload, attempt, status, http_status, error, latency_ms, next_retry_at, created_at, completed_at
	          FROM delivery_attempts
	          WHERE webhook_id = $1
	          ORDER BY created_at DESC
	          LIMIT $2`
	return r.list(ctx, query, webhookID, limit)
}

func (r *AttemptRepository) list(ctx context.Context, query string, args ...any) ([]*DeliveryAttempt, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*DeliveryAttempt
	for rows.Next() {
		var (
			a         DeliveryAttempt
			eventType string
			status    string
			payload   []byte
		)
		if err := rows.Scan(&a.ID, &a.WebhookID, &a.EventID, &eventType, &payload,
			&a.Attempt, &status, &a.HTTPStatus, &a.Error, &a.LatencyMs,
			&a.NextRetryAt, &a.CreatedAt, &a.CompletedAt); err != nil {
			return nil, err
		}
		a.EventType = EventType(eventType)
		a.Status = AttemptStatus(status)
		a.Payload = payload
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
