package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carebridge/enrollhooks/pkg/signature"
)

// DeliveryResult is the outcome variant of one delivery attempt. Expected
// non-delivery outcomes (circuit open, rate limit) are results, not errors:
// callers must handle each case explicitly.
type DeliveryResult string

const (
	ResultDelivered     DeliveryResult = "delivered"
	ResultSkipped       DeliveryResult = "skipped"
	ResultCircuitBroken DeliveryResult = "circuit_broken"
	ResultRateLimited   DeliveryResult = "rate_limited"
	ResultFailed        DeliveryResult = "failed"
)

// DeliveryOutcome carries the result of one attempt plus whatever the
// subscriber endpoint told us.
type DeliveryOutcome struct {
	Result     DeliveryResult `json:"result"`
	HTTPStatus int            `json:"http_status,omitempty"`
	Error      string         `json:"error,omitempty"`
	LatencyMs  int64          `json:"latency_ms"`
}

// WorkerConfig tunes the delivery worker.
type WorkerConfig struct {
	// Timeout bounds each outbound POST. Default 30s.
	Timeout time.Duration
	// MaxAttempts is the retry budget per logical delivery. Default 5.
	MaxAttempts int
	// RetryMinDelay/RetryMaxDelay bound the jittered delay before a failed
	// delivery becomes eligible for retry. Defaults 5m and 15m.
	RetryMinDelay time.Duration
	RetryMaxDelay time.Duration
}

// DefaultWorkerConfig returns the production defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Timeout:       30 * time.Second,
		MaxAttempts:   5,
		RetryMinDelay: 5 * time.Minute,
		RetryMaxDelay: 15 * time.Minute,
	}
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	d := DefaultWorkerConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryMinDelay <= 0 {
		c.RetryMinDelay = d.RetryMinDelay
	}
	if c.RetryMaxDelay < c.RetryMinDelay {
		c.RetryMaxDelay = c.RetryMinDelay
	}
	return c
}

// deliveryEnvelope is the wire body sent to subscriber endpoints.
type deliveryEnvelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Worker performs outbound webhook deliveries. It is the single writer of
// circuit-breaker and metrics state: every attempt ends in exactly one
// breaker update and one metrics update, applied after the outcome is known.
type Worker struct {
	subs     SubscriptionStore
	attempts AttemptStore
	breaker  *CircuitBreaker
	metrics  *MetricsTracker
	client   *http.Client
	cfg      WorkerConfig
	logger   *zap.Logger
}

// NewWorker creates a delivery worker.
func NewWorker(subs SubscriptionStore, attempts AttemptStore, breaker *CircuitBreaker, metrics *MetricsTracker, cfg WorkerConfig, logger *zap.Logger) *Worker {
	return &Worker{
		subs:     subs,
		attempts: attempts,
		breaker:  breaker,
		metrics:  metrics,
		client:   &http.Client{}, // per-attempt timeout comes from the context
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Breaker exposes the circuit breaker for status reporting.
func (w *Worker) Breaker() *CircuitBreaker { return w.breaker }

// Metrics exposes the health metrics tracker for status reporting.
func (w *Worker) Metrics() *MetricsTracker { return w.metrics }

// Deliver performs the first attempt of a logical delivery and records it.
func (w *Worker) Deliver(ctx context.Context, sub *Subscription, event Event) DeliveryOutcome {
	attempt := &DeliveryAttempt{
		ID:        uuid.New(),
		WebhookID: sub.ID,
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   event.Data,
		Attempt:   1,
		Status:    AttemptPending,
		CreatedAt: time.Now().UTC(),
	}
	outcome := w.attempt(ctx, sub, attempt)
	if outcome.Result == ResultDelivered || outcome.Result == ResultFailed {
		if err := w.attempts.Record(ctx, attempt); err != nil {
			w.logger.Warn("record delivery attempt", zap.Error(err))
		}
	}
	return outcome
}

// Retry re-drives a previously failed attempt. The subscription is
// re-fetched so deletions and secret rotations that happened since the
// failure take effect; a vanished or deleted subscription abandons the
// attempt rather than delivering with stale data.
func (w *Worker) Retry(ctx context.Context, a *DeliveryAttempt) DeliveryOutcome {
	sub, err := w.subs.GetByID(ctx, a.WebhookID)
	if err != nil || !sub.Active {
		w.abandon(ctx, a, "subscription no longer active")
		return DeliveryOutcome{Result: ResultSkipped}
	}

	a.Attempt++
	RecordRetry()
	outcome := w.attempt(ctx, sub, a)
	if outcome.Result == ResultDelivered || outcome.Result == ResultFailed {
		if err := w.attempts.Update(ctx, a); err != nil {
			w.logger.Warn("update delivery attempt", zap.Error(err))
		}
	}
	return outcome
}

// attempt performs one delivery and fills in the attempt record. The
// attempt row is only mutated here; persistence is the caller's job so a
// crash mid-call never leaves a half-updated record behind.
func (w *Worker) attempt(ctx context.Context, sub *Subscription, a *DeliveryAttempt) DeliveryOutcome {
	if !sub.Active {
		return DeliveryOutcome{Result: ResultSkipped}
	}
	if !w.breaker.Allow(sub.ID) {
		recordDeliveryMetric(ResultCircuitBroken, 0)
		return DeliveryOutcome{Result: ResultCircuitBroken}
	}

	status, latency, err := w.post(ctx, sub, a)
	a.HTTPStatus = status
	a.LatencyMs = latency.Milliseconds()

	success := err == nil
	now := time.Now().UTC()

	if success {
		w.breaker.RecordSuccess(sub.ID)
		w.metrics.Record(sub.ID, true, latency)
		recordDeliveryMetric(ResultDelivered, latency)
		SetOpenBreakers(w.breaker.OpenCount())

		a.Status = AttemptSuccess
		a.Error = ""
		a.NextRetryAt = nil
		a.CompletedAt = &now
		return DeliveryOutcome{Result: ResultDelivered, HTTPStatus: status, LatencyMs: a.LatencyMs}
	}

	w.breaker.RecordFailure(sub.ID)
	w.metrics.Record(sub.ID, false, latency)
	recordDeliveryMetric(ResultFailed, latency)
	SetOpenBreakers(w.breaker.OpenCount())

	a.Error = err.Error()
	if a.Attempt >= w.cfg.MaxAttempts {
		a.Status = AttemptAbandoned
		a.NextRetryAt = nil
		a.CompletedAt = &now
		w.logger.Warn("delivery abandoned after max attempts",
			zap.String("webhook_id", sub.ID.String()),
			zap.String("event_type", string(a.EventType)),
			zap.Int("attempts", a.Attempt),
		)
	} else {
		a.Status = AttemptFailed
		next := now.Add(w.retryDelay())
		a.NextRetryAt = &next
	}

	w.logger.Warn("webhook delivery failed",
		zap.String("webhook_id", sub.ID.String()),
		zap.String("url", sub.URL),
		zap.Int("attempt", a.Attempt),
		zap.Int("http_status", status),
		zap.String("error", a.Error),
	)
	return DeliveryOutcome{Result: ResultFailed, HTTPStatus: status, Error: a.Error, LatencyMs: a.LatencyMs}
}

// post sends the signed request and reports the HTTP status, the elapsed
// time, and a non-nil error for any non-2xx or transport failure.
func (w *Worker) post(ctx context.Context, sub *Subscription, a *DeliveryAttempt) (int, time.Duration, error) {
	body, err := json.Marshal(deliveryEnvelope{Event: a.EventType, Data: a.Payload})
	if err != nil {
		return 0, 0, fmt.Errorf("marshal payload: %w", err)
	}

	timeout := w.cfg.Timeout
	if sub.Options.TimeoutSeconds > 0 {
		timeout = time.Duration(sub.Options.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("build request: %w", err)
	}

	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, signature.Sign(sub.Secret, ts, body))
	req.Header.Set("X-Webhook-Event", string(a.EventType))
	req.Header.Set("X-Webhook-ID", a.EventID.String())
	for k, v := range sub.Options.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, latency, fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, latency, nil
}

func (w *Worker) retryDelay() time.Duration {
	span := w.cfg.RetryMaxDelay - w.cfg.RetryMinDelay
	if span <= 0 {
		return w.cfg.RetryMinDelay
	}
	return w.cfg.RetryMinDelay + time.Duration(rand.Int63n(int64(span)))
}

func (w *Worker) abandon(ctx context.Context, a *DeliveryAttempt, reason string) {
	now := time.Now().UTC()
	a.Status = AttemptAbandoned
	a.Error = reason
	a.NextRetryAt = nil
	a.CompletedAt = &now
	if err := w.attempts.Update(ctx, a); err != nil {
		w.logger.Warn("abandon delivery attempt", zap.Error(err))
	}
}
