package webhooks

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DispatchReport aggregates the per-subscriber outcomes of one event
// fan-out. Individual failures are counted, never propagated.
type DispatchReport struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Matched   int    `json:"matched"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

// Dispatcher fans a domain event out to every active subscription whose
// event set matches. Each subscriber is delivered to on its own goroutine
// so a slow or failing endpoint never blocks the others.
type Dispatcher struct {
	subs   SubscriptionStore
	worker *Worker
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(subs SubscriptionStore, worker *Worker, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{subs: subs, worker: worker, logger: logger}
}

// Dispatch delivers the event to all matching subscriptions and returns
// the aggregate report. The only error condition is the subscription
// lookup itself; delivery outcomes are folded into the report.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (DispatchReport, error) {
	report := DispatchReport{
		EventID:   event.ID.String(),
		EventType: string(event.Type),
	}

	subs, err := d.subs.ListActiveByEvent(ctx, event.Type)
	if err != nil {
		return report, err
	}
	report.Matched = len(subs)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			outcome := d.worker.Deliver(ctx, sub, event)

			mu.Lock()
			switch outcome.Result {
			case ResultDelivered:
				report.Delivered++
			case ResultFailed:
				report.Failed++
			default:
				report.Skipped++
			}
			mu.Unlock()
		}(sub)
	}
	wg.Wait()

	d.logger.Info("event dispatched",
		zap.String("event_type", string(event.Type)),
		zap.Int("matched", report.Matched),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}
