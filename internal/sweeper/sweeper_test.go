package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-seating/internal/logger"
)

type fakeSweepService struct {
	sweeps   int64
	released int
	fail     bool
}

func (f *fakeSweepService) Sweep(now time.Time) (int, error) {
	atomic.AddInt64(&f.sweeps, 1)
	if f.fail {
		return 0, errors.New("store unavailable")
	}
	return f.released, nil
}

func (f *fakeSweepService) count() int64 {
	return atomic.LoadInt64(&f.sweeps)
}

func TestSweeper_RunsImmediatelyAndPeriodically(t *testing.T) {
	svc := &fakeSweepService{released: 2}
	s := NewSweeper(svc, 20*time.Millisecond, logger.NewLogger())

	go s.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	s.Stop()

	count := svc.count()
	assert.GreaterOrEqual(t, count, int64(2), "one immediate sweep plus at least one tick")
}

func TestSweeper_StopHaltsLoop(t *testing.T) {
	svc := &fakeSweepService{}
	s := NewSweeper(svc, 10*time.Millisecond, logger.NewLogger())

	go s.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	s.Stop()

	after := svc.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, svc.count(), "no sweeps after Stop")
}

func TestSweeper_ContextCancelHaltsLoop(t *testing.T) {
	svc := &fakeSweepService{}
	s := NewSweeper(svc, 10*time.Millisecond, logger.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

func TestSweeper_KeepsRunningAfterError(t *testing.T) {
	svc := &fakeSweepService{fail: true}
	s := NewSweeper(svc, 15*time.Millisecond, logger.NewLogger())

	go s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, svc.count(), int64(2), "a failed sweep is retried on the next tick")
}
