package sweeper

import (
	"context"
	"fmt"
	"time"

	"ms-seating/internal/logger"
)

type HoldSweeper interface {
	Sweep(now time.Time) (int, error)
}

// Sweeper periodically releases expired holds. Expiry is data-driven
// (the TTL lives on the row), so holds left behind by crashed processes
// or vanished clients are reclaimed here regardless of who created them.
type Sweeper struct {
	service  HoldSweeper
	interval time.Duration
	logger   *logger.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewSweeper(service HoldSweeper, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until the context is cancelled or Stop is
// called. One sweep runs immediately on startup to clear anything left
// over from before the process started.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("SWEEPER", fmt.Sprintf("expiry sweeper started, interval %s", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	s.sweep()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SWEEPER", "expiry sweeper stopped (context cancelled)")
			return
		case <-s.stopCh:
			s.logger.Info("SWEEPER", "expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// Stop halts the loop and waits for it to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper) sweep() {
	released, err := s.service.Sweep(time.Now())
	if err != nil {
		// Never dropped silently; the next tick retries.
		s.logger.Error("SWEEPER", fmt.Sprintf("sweep failed: %v", err))
		return
	}
	if released > 0 {
		s.logger.LogSweep(released, "expired holds released")
	} else {
		s.logger.Debug("SWEEPER", "no expired holds")
	}
}
