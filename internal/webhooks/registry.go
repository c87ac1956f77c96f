package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// secretBytes is the entropy of generated secrets. Hex encoding doubles
// the character count, so generated secrets are 64 characters long.
const secretBytes = 32

// Registry owns webhook subscription records: registration, updates,
// soft deletion, and secret rotation. All writes go through compliance
// validation; nothing else in the service mutates subscriptions.
type Registry struct {
	store  SubscriptionStore
	logger *zap.Logger
}

// NewRegistry creates a Registry backed by the given store.
func NewRegistry(store SubscriptionStore, logger *zap.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// Register validates and persists a new subscription. The returned
// Subscription carries the secret; it is the only time the secret is
// exposed unless rotated.
func (r *Registry) Register(ctx context.Context, req *CreateSubscriptionRequest) (*Subscription, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}
	if err := validateEvents(req.Events); err != nil {
		return nil, err
	}

	secret := req.Secret
	if secret == "" {
		var err error
		secret, err = generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}

	sub := &Subscription{
		URL:    req.URL,
		Events: req.Events,
		Secret: secret,
	}
	if req.Options != nil {
		sub.Options = *req.Options
	}

	if err := r.store.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	r.logger.Info("webhook registered",
		zap.String("webhook_id", sub.ID.String()),
		zap.String("url", sub.URL),
		zap.Int("events", len(sub.Events)),
	)
	return sub, nil
}

// Update applies a partial update, re-validating any changed fields.
func (r *Registry) Update(ctx context.Context, id uuid.UUID, req *UpdateSubscriptionRequest) (*Subscription, error) {
	sub, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.URL != nil {
		if err := validateURL(*req.URL); err != nil {
			return nil, err
		}
		sub.URL = *req.URL
	}
	if req.Events != nil {
		if err := validateEvents(req.Events); err != nil {
			return nil, err
		}
		sub.Events = req.Events
	}
	if req.Options != nil {
		sub.Options = *req.Options
	}

	if err := r.store.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return sub, nil
}

// Delete soft-deletes the subscription. Deleting twice is not an error;
// later deliveries to the webhook are silently skipped.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("webhook deleted", zap.String("webhook_id", id.String()))
	return nil
}

// RotateSecret generates a new secret, invalidating the old one
// immediately. The new secret is returned exactly once.
func (r *Registry) RotateSecret(ctx context.Context, id uuid.UUID) (string, error) {
	sub, err := r.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	secret, err := generateSecret()
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	sub.Secret = secret

	if err := r.store.Update(ctx, sub); err != nil {
		return "", fmt.Errorf("persist rotated secret: %w", err)
	}

	r.logger.Info("webhook secret rotated", zap.String("webhook_id", id.String()))
	return secret, nil
}

// Get returns a subscription by id.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return r.store.GetByID(ctx, id)
}

// List returns all active subscriptions.
func (r *Registry) List(ctx context.Context) ([]*Subscription, error) {
	return r.store.ListActive(ctx)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: got %q", ErrInvalidURL, raw)
	}
	return nil
}

func validateEvents(events []EventType) error {
	if len(events) == 0 {
		return ErrInvalidEvents
	}
	for _, e := range events {
		if !e.Valid() {
			return fmt.Errorf("%w: unknown event %q", ErrInvalidEvents, e)
		}
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
