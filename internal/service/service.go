package service

import (
	"context"
	"sync"
	"time"

	"SafeCircle/internal/models"
	"SafeCircle/pkg/cache"
	"SafeCircle/pkg/errors"
	"SafeCircle/pkg/metrics"
	"SafeCircle/pkg/notification"
	"SafeCircle/pkg/scheduler"
	"SafeCircle/pkg/sse"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	DispatchSource      string
	DispatchInterval    time.Duration
	DispatchTickTimeout time.Duration
	SweepSchedule       string
	SweepTimeout        time.Duration // capped below the schedule's period
	StaleAfter          time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (o *Options) setDefaults() {
	if o.DispatchInterval <= 0 {
		o.DispatchInterval = 5 * time.Second
	}
	if o.DispatchTickTimeout <= 0 || o.DispatchTickTimeout >= o.DispatchInterval {
		o.DispatchTickTimeout = o.DispatchInterval * 4 / 5
	}
	if o.SweepSchedule == "" {
		o.SweepSchedule = "@every 60s"
	}
	if o.SweepTimeout <= 0 {
		o.SweepTimeout = 30 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 2 * time.Minute
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Service owns the store handle, the background tasks and the stream hub.
type Service struct {
	db   *gorm.DB
	lg   *zap.Logger
	opts Options
	hub  *sse.Hub

	Registry   *Registry
	Ledger     *Ledger
	Sessions   *Sessions
	Dispatcher *Dispatcher
	Sweeper    *Sweeper

	mu      sync.Mutex
	sched   *scheduler.Scheduler
	cron    *scheduler.Cron
	stopped chan struct{}
}

func New(db *gorm.DB, c cache.Cache, sender notification.Sender, hub *sse.Hub, m *metrics.Metrics, lg *zap.Logger, opts Options) (*Service, error) {
	opts.setDefaults()
	if lg == nil {
		lg = zap.NewNop()
	}
	if hub == nil {
		hub = sse.NewHub(0)
	}
	source, err := NewSubjectSource(opts.DispatchSource, db)
	if err != nil {
		return nil, err
	}

	s := &Service{db: db, lg: lg, opts: opts, hub: hub}
	s.Registry = &Registry{db: db, cache: c, now: opts.Clock, lg: lg.Named("registry")}
	s.Ledger = &Ledger{db: db, now: opts.Clock}
	s.Sessions = &Sessions{db: db, hub: hub, metrics: m, now: opts.Clock, lg: lg.Named("sos")}
	s.Dispatcher = &Dispatcher{db: db, source: source, sender: sender, metrics: m, now: opts.Clock, lg: lg.Named("dispatch")}
	s.Sweeper = &Sweeper{db: db, sessions: s.Sessions, staleAfter: opts.StaleAfter, metrics: m, now: opts.Clock, lg: lg.Named("sweeper")}
	return s, nil
}

func (s *Service) Hub() *sse.Hub { return s.hub }

// Ping checks the store connection.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Start schedules the dispatch loop and the sweeper. They stop when ctx is
// cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return errors.New("service already started")
	}

	cr := scheduler.NewCron(models.ServerZone, s.lg.Named("cron"))
	sweepTimeout, err := cr.AddWithTimeout(s.opts.SweepSchedule, s.opts.SweepTimeout, s.Sweeper.run)
	if err != nil {
		return errors.Wrapf(err, "invalid sweep schedule %q", s.opts.SweepSchedule)
	}

	sched := scheduler.New()
	sched.EveryWithTimeout(s.opts.DispatchInterval, s.opts.DispatchTickTimeout, scheduler.FuncJob(func(ctx context.Context) {
		s.Dispatcher.Tick(ctx)
	}))
	cr.Start()

	s.sched, s.cron = sched, cr
	s.stopped = make(chan struct{})
	stopped := s.stopped
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopped:
		}
	}()

	s.lg.Info("background tasks started",
		zap.String("dispatch_source", s.Dispatcher.source.Name()),
		zap.Duration("dispatch_interval", s.opts.DispatchInterval),
		zap.String("sweep_schedule", s.opts.SweepSchedule),
		zap.Duration("sweep_timeout", sweepTimeout),
		zap.Duration("stale_after", s.opts.StaleAfter))
	return nil
}

// Stop cancels both tasks and waits for in-flight runs. Safe to call twice.
func (s *Service) Stop() {
	s.mu.Lock()
	sched, cr, stopped := s.sched, s.cron, s.stopped
	s.sched, s.cron, s.stopped = nil, nil, nil
	s.mu.Unlock()

	if sched == nil {
		return
	}
	close(stopped)
	sched.Stop()
	cr.Stop()
	s.lg.Info("background tasks stopped")
}
