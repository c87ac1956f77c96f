package webhooks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SweeperConfig tunes the retry sweeper.
type SweeperConfig struct {
	// MaxAge bounds how old a failed attempt may be and still be retried.
	// Default 24h.
	MaxAge time.Duration
	// MaxAttempts mirrors the worker's retry budget; attempts at or past
	// it are never picked up. Default 5.
	MaxAttempts int
}

// Sweeper periodically re-drives failed delivery attempts through the
// delivery worker. Attempts past the retry budget stay in the store with
// status abandoned for audit; they are never silently discarded.
type Sweeper struct {
	attempts AttemptStore
	worker   *Worker
	cfg      SweeperConfig
	logger   *zap.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(attempts AttemptStore, worker *Worker, cfg SweeperConfig, logger *zap.Logger) *Sweeper {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Sweeper{attempts: attempts, worker: worker, cfg: cfg, logger: logger}
}

// Sweep runs one cycle: it collects due attempts and retries each one in
// order of scheduling. A store failure aborts the cycle; the next
// scheduled run picks up where this one left off.
func (s *Sweeper) Sweep(ctx context.Context) error {
	due, err := s.attempts.ListDue(ctx, time.Now().UTC(), s.cfg.MaxAge, s.cfg.MaxAttempts)
	if err != nil {
		return fmt.Errorf("list due attempts: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Info("retry sweep started", zap.Int("due", len(due)))

	retried, delivered := 0, 0
	for _, a := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outcome := s.worker.Retry(ctx, a)
		retried++
		if outcome.Result == ResultDelivered {
			delivered++
		}
	}

	s.logger.Info("retry sweep finished",
		zap.Int("retried", retried),
		zap.Int("delivered", delivered),
	)
	return nil
}
