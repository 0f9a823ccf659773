package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Refresher re-sweeps every tracked view and reports how many records expired.
type Refresher interface {
	RefreshViews(ctx context.Context, now time.Time) (int, error)
}

// SweepScheduler runs the expiration sweep on a fixed interval.
type SweepScheduler struct {
	refresher Refresher
	interval  time.Duration
	now       func() time.Time
	logger    *zerolog.Logger

	mu      sync.Mutex
	running bool
}

func NewSweepScheduler(refresher Refresher, interval time.Duration, logger *zerolog.Logger) *SweepScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "sweep_scheduler").Logger()
	return &SweepScheduler{refresher: refresher, interval: interval, now: time.Now, logger: &l}
}

// Start blocks until ctx is done.
func (s *SweepScheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("sweep scheduler started")
	defer s.logger.Info().Msg("sweep scheduler stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunNow(ctx)
		}
	}
}

// RunNow performs one sweep unless another one is still running.
func (s *SweepScheduler) RunNow(ctx context.Context) (expired int, ran bool) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return 0, false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	n, err := s.refresher.RefreshViews(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Int("expired", n).Msg("periodic sweep finished with errors")
		return n, true
	}
	s.logger.Debug().Int("expired", n).Dur("took", time.Since(start)).Msg("periodic sweep done")
	return n, true
}
