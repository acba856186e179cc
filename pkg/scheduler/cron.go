package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron wraps robfig/cron with panic recovery, overlap skipping and a
// context that is cancelled on Stop.
type Cron struct {
	c      *cron.Cron
	loc    *time.Location
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCron(loc *time.Location, lg *zap.Logger) *Cron {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{sugar: zapOrNop(lg).Sugar()}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{c: c, loc: loc, ctx: ctx, cancel: cancel}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop cancels running jobs' context and blocks until they return.
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
}

// AddWithTimeout registers fn; a positive timeout bounds each run and is
// capped at 4/5 of the gap between the schedule's next two activations.
// It returns the timeout actually applied.
func (cr *Cron) AddWithTimeout(expr string, timeout time.Duration, fn func(ctx context.Context)) (time.Duration, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return 0, err
	}
	if period := schedulePeriod(sched, time.Now().In(cr.loc)); timeout > 0 && period > 0 && timeout >= period {
		timeout = period * 4 / 5
	}
	cr.c.Schedule(sched, cron.FuncJob(func() {
		ctx := cr.ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(cr.ctx, timeout)
			defer cancel()
		}
		fn(ctx)
	}))
	return timeout, nil
}

func schedulePeriod(s cron.Schedule, from time.Time) time.Duration {
	first := s.Next(from)
	if first.IsZero() {
		return 0
	}
	return s.Next(first).Sub(first)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

func zapOrNop(lg *zap.Logger) *zap.Logger {
	if lg == nil {
		return zap.NewNop()
	}
	return lg
}
