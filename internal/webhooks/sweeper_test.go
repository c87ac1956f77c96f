package webhooks_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carebridge/enrollhooks/internal/webhooks"
)

func failedAttempt(webhookID uuid.UUID, attempt int, nextRetry time.Time) *webhooks.DeliveryAttempt {
	next := nextRetry
	return &webhooks.DeliveryAttempt{
		ID:          uuid.New(),
		WebhookID:   webhookID,
		EventID:     uuid.New(),
		EventType:   webhooks.EventEnrollmentCreated,
		Payload:     []byte(`{}`),
		Attempt:     attempt,
		Status:      webhooks.AttemptFailed,
		Error:       "endpoint returned HTTP 500",
		NextRetryAt: &next,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}
}

func TestSweepRetriesDueAttempts(t *testing.T) {
	f := newDeliveryFixture(t)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	ctx := context.Background()
	sub := f.subscribe(t, srv.URL, nil)

	due := failedAttempt(sub.ID, 1, time.Now().UTC().Add(-time.Minute))
	notYet := failedAttempt(sub.ID, 1, time.Now().UTC().Add(time.Hour))
	exhausted := failedAttempt(sub.ID, 5, time.Now().UTC().Add(-time.Minute))
	tooOld := failedAttempt(sub.ID, 1, time.Now().UTC().Add(-time.Minute))
	tooOld.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	for _, a := range []*webhooks.DeliveryAttempt{due, notYet, exhausted, tooOld} {
		if err := f.attempts.Record(ctx, a); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	sweeper := webhooks.NewSweeper(f.attempts, f.worker, webhooks.SweeperConfig{
		MaxAge:      24 * time.Hour,
		MaxAttempts: 5,
	}, zap.NewNop())

	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	// Only the due attempt inside the retry window is re-driven.
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("endpoint hit %d times, want 1", n)
	}

	rows, _ := f.attempts.ListByWebhook(ctx, sub.ID, 10)
	byID := make(map[uuid.UUID]*webhooks.DeliveryAttempt, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	if got := byID[due.ID]; got.Status != webhooks.AttemptSuccess || got.Attempt != 2 {
		t.Fatalf("due attempt after sweep = %+v, want success on attempt 2", got)
	}
	if got := byID[notYet.ID]; got.Status != webhooks.AttemptFailed || got.Attempt != 1 {
		t.Fatalf("future attempt was touched: %+v", got)
	}
	if got := byID[exhausted.ID]; got.Attempt != 5 {
		t.Fatalf("exhausted attempt was retried: %+v", got)
	}
	if got := byID[tooOld.ID]; got.Attempt != 1 {
		t.Fatalf("attempt outside the 24h window was retried: %+v", got)
	}
}

func TestSweepEmptyStoreIsNoop(t *testing.T) {
	f := newDeliveryFixture(t)
	sweeper := webhooks.NewSweeper(f.attempts, f.worker, webhooks.SweeperConfig{}, zap.NewNop())
	if err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep on empty store: %v", err)
	}
}

// brokenAttemptStore fails every read to exercise the sweeper's abort path.
type brokenAttemptStore struct {
	webhooks.AttemptStore
}

func (brokenAttemptStore) ListDue(context.Context, time.Time, time.Duration, int) ([]*webhooks.DeliveryAttempt, error) {
	return nil, errors.New("connection refused")
}

func TestSweepAbortsOnStoreError(t *testing.T) {
	f := newDeliveryFixture(t)
	sweeper := webhooks.NewSweeper(brokenAttemptStore{f.attempts}, f.worker, webhooks.SweeperConfig{}, zap.NewNop())
	if err := sweeper.Sweep(context.Background()); err == nil {
		t.Fatal("Sweep did not surface the store error")
	}
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	f := newDeliveryFixture(t)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	ctx := context.Background()
	sub := f.subscribe(t, srv.URL, nil)
	for i := 0; i < 3; i++ {
		if err := f.attempts.Record(ctx, failedAttempt(sub.ID, 1, time.Now().UTC().Add(-time.Minute))); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	sweeper := webhooks.NewSweeper(f.attempts, f.worker, webhooks.SweeperConfig{}, zap.NewNop())
	if err := sweeper.Sweep(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sweep error = %v, want context.Canceled", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("sweep kept delivering after cancellation")
	}
}
