// Package worker runs the fingerprint retention janitor: a background loop
// that prunes perceptual hashes past their retention window so the duplicate
// check stays bounded and old photos stop counting as duplicates.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nancybwi/DrainGuardHCM-sub000/internal/metrics"
)

// FingerprintPruner is the repository surface the janitor needs.
type FingerprintPruner interface {
	DeleteExpiredFingerprints(ctx context.Context, window time.Duration) (int64, error)
}

// Janitor periodically deletes expired image fingerprints.
type Janitor struct {
	pruner FingerprintPruner
	config Config
	logger *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewJanitor creates a janitor. It must be started with Start() and stopped
// with Stop().
func NewJanitor(pruner FingerprintPruner, config Config, logger *slog.Logger) (*Janitor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Janitor{
		pruner: pruner,
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins the prune loop. One sweep runs immediately so a restart
// doesn't postpone overdue cleanup by a full interval.
func (j *Janitor) Start(ctx context.Context) {
	j.wg.Add(1)
	go j.run(ctx)

	j.logger.Info("Fingerprint janitor started",
		"interval", j.config.Interval,
		"retention_window", j.config.RetentionWindow,
	)
}

// Stop signals the janitor to stop and waits for any in-flight sweep.
func (j *Janitor) Stop() {
	j.logger.Info("Stopping fingerprint janitor...")
	close(j.stopCh)

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("Fingerprint janitor stopped gracefully")
	case <-time.After(j.config.ShutdownTimeout):
		j.logger.Warn("Fingerprint janitor shutdown timeout exceeded")
	}
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	j.sweep(ctx)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// sweep deletes one batch of expired fingerprints. Failures are logged and
// retried on the next tick; expired rows are harmless in the meantime.
func (j *Janitor) sweep(ctx context.Context) {
	pruned, err := j.pruner.DeleteExpiredFingerprints(ctx, j.config.RetentionWindow)
	if err != nil {
		j.logger.Error("Fingerprint sweep failed", "error", err)
		return
	}

	if pruned > 0 {
		metrics.FingerprintsPruned.Add(float64(pruned))
		j.logger.Info("Pruned expired fingerprints", "count", pruned)
	}
}
