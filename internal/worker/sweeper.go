package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tutorlink/session-core/internal/auth"
	"github.com/tutorlink/session-core/internal/observability"
)

const (
	defaultSweepInterval = time.Hour
	defaultSweepBatch    = 500
	// maxBatchesPerTick caps one tick so a large backlog drains over several.
	maxBatchesPerTick = 100
)

// SweeperConfig controls the periodic cleanup of expired auth state.
type SweeperConfig struct {
	Interval     time.Duration
	Batch        int
	StoreTimeout time.Duration
}

// Sweeper removes revocation entries whose tokens have expired and login
// attempt windows that have elapsed.
type Sweeper struct {
	revocations auth.RevocationStore
	attempts    auth.AttemptStore
	cfg         SweeperConfig
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time

	wg sync.WaitGroup
}

// NewSweeper builds a sweeper. Either store may be nil.
func NewSweeper(revocations auth.RevocationStore, attempts auth.AttemptStore, cfg SweeperConfig, logger *zap.Logger, metrics *observability.Metrics) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultSweepBatch
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		revocations: revocations,
		attempts:    attempts,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

// RunOnce performs one sweep of both stores and returns the removed counts.
func (s *Sweeper) RunOnce(ctx context.Context) (revoked, attempts int) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	now := s.now()

	if s.revocations != nil {
		for i := 0; i < maxBatchesPerTick; i++ {
			n, err := s.revocations.Sweep(ctx, now, s.cfg.Batch)
			if err != nil {
				s.logger.Warn("revocation sweep failed", zap.Int("removed", revoked), zap.Error(err))
				break
			}
			revoked += n
			if n < s.cfg.Batch {
				break
			}
		}
		s.metrics.RecordSweep("revocations", revoked)
	}

	if s.attempts != nil {
		n, err := s.attempts.Sweep(ctx, now)
		if err != nil {
			s.logger.Warn("login attempt sweep failed", zap.Error(err))
		}
		attempts = n
		s.metrics.RecordSweep("login_attempts", attempts)
	}

	if revoked > 0 || attempts > 0 {
		s.logger.Info("auth sweep finished", zap.Int("revocations_removed", revoked), zap.Int("attempts_removed", attempts))
	}
	return revoked, attempts
}
