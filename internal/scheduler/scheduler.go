package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"talon/internal/logger"
)

// PeriodicScheduler runs a task on a fixed cadence. It never lets a cycle
// overlap itself: if the previous run is still going when the ticker fires,
// that tick is skipped rather than run concurrently.
type PeriodicScheduler struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	ctx     context.Context
	running atomic.Bool
}

func NewPeriodicScheduler(ctx context.Context, name string, interval time.Duration) *PeriodicScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &PeriodicScheduler{
		Name:     name,
		Interval: interval,
		ctx:      ctx,
	}
}

// Start blocks until the context is cancelled.
func (s *PeriodicScheduler) Start(task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("PeriodicScheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	logger.Infof("PeriodicScheduler[%s]: started interval=%s run_immediately=%v", s.Name, s.Interval, s.RunImmediately)

	run := func() {
		if !s.running.CompareAndSwap(false, true) {
			logger.Warnf("PeriodicScheduler[%s]: previous cycle still running, skipping tick", s.Name)
			return
		}
		defer s.running.Store(false)
		task()
	}

	if s.RunImmediately {
		run()
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("PeriodicScheduler[%s]: stop signal received, exiting", s.Name)
			return
		case <-ticker.C:
			go run()
		}
	}
}
