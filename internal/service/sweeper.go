package service

import (
	"context"
	"time"

	"SafeCircle/internal/models"
	"SafeCircle/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sweeper resolves active sessions that stopped receiving updates.
type Sweeper struct {
	db         *gorm.DB
	sessions   *Sessions
	staleAfter time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time
	lg         *zap.Logger
}

func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().In(models.ServerZone)
	cutoff := now.Add(-s.staleAfter)
	ids, err := retryOnMissingSchema(ctx, s.db, s.lg, "sos sweep", func(ctx context.Context) ([]string, error) {
		return models.ResolveStaleSessions(ctx, s.db, cutoff, now)
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.sessions.publishResolved(id, now)
		s.lg.Info("sos auto-resolved", zap.String("public_id", id))
	}
	s.metrics.RecordSweep(int64(len(ids)))
	return len(ids), nil
}

func (s *Sweeper) run(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.lg.Error("sos sweep failed", zap.Error(err))
	}
}
