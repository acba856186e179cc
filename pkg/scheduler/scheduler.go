package scheduler

import (
	"context"
	"sync"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// Scheduler runs fixed-period loops. Stop cancels every loop and waits for
// runs already in progress to return.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// EveryWithTimeout runs job each period d. A run never overlaps the next
// one: the ticker drops ticks while a run is in progress. A positive timeout
// bounds each run's context; pass one below d so a slow run cannot delay
// the next tick.
func (s *Scheduler) EveryWithTimeout(d, timeout time.Duration, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loopEvery(d, timeout, job)
	}()
}

func (s *Scheduler) loopEvery(d, timeout time.Duration, job Job) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			s.runOnce(timeout, job)
		}
	}
}

func (s *Scheduler) runOnce(timeout time.Duration, job Job) {
	ctx := s.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, timeout)
		defer cancel()
	}
	job.Run(ctx)
}
