package service

import (
	"context"
	"time"

	"SafeCircle/internal/models"
	"SafeCircle/pkg/metrics"
	"SafeCircle/pkg/sse"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	EventPosition = "position"
	EventResolved = "resolved"
)

type PositionEvent struct {
	PublicID    string    `json:"public_id"`
	CurrentLat  float64   `json:"current_lat"`
	CurrentLon  float64   `json:"current_lon"`
	Timestamp   int64     `json:"timestamp"`
	LastUpdated time.Time `json:"last_updated"`
}

type ResolvedEvent struct {
	PublicID    string    `json:"public_id"`
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

// Sessions manages SOS sessions and fans their changes out to stream subscribers.
type Sessions struct {
	db      *gorm.DB
	hub     *sse.Hub
	metrics *metrics.Metrics
	now     func() time.Time
	lg      *zap.Logger
}

func (s *Sessions) Create(ctx context.Context, in models.NewSession) (string, error) {
	session, err := models.CreateSession(ctx, s.db, in, s.now())
	if err != nil {
		return "", err
	}
	s.metrics.RecordSessionEvent("created")
	s.lg.Info("sos created",
		zap.String("public_id", session.PublicID),
		zap.Int64("subject_user_id", session.SubjectUserID),
		zap.Int64("rescuer_id", session.RescuerID))
	return session.PublicID, nil
}

func (s *Sessions) UpdatePosition(ctx context.Context, publicID string, lat, lon float64, ts int64) error {
	now := s.now().In(models.ServerZone)
	if err := models.UpdateSessionPosition(ctx, s.db, publicID, lat, lon, ts, now); err != nil {
		return err
	}
	s.metrics.RecordSessionEvent("updated")
	s.publish(publicID, EventPosition, PositionEvent{
		PublicID:    publicID,
		CurrentLat:  lat,
		CurrentLon:  lon,
		Timestamp:   ts,
		LastUpdated: now,
	})
	return nil
}

func (s *Sessions) Resolve(ctx context.Context, publicID string) error {
	now := s.now().In(models.ServerZone)
	if err := models.ResolveSession(ctx, s.db, publicID, now); err != nil {
		return err
	}
	s.metrics.RecordSessionEvent("resolved")
	s.publishResolved(publicID, now)
	return nil
}

func (s *Sessions) ListActive(ctx context.Context) ([]models.SOSSession, error) {
	return models.ListActiveSessions(ctx, s.db)
}

func (s *Sessions) Get(ctx context.Context, publicID string) (*models.SOSSession, error) {
	return models.GetSession(ctx, s.db, publicID)
}

func (s *Sessions) publishResolved(publicID string, at time.Time) {
	s.publish(publicID, EventResolved, ResolvedEvent{
		PublicID:    publicID,
		Status:      models.StatusResolved,
		LastUpdated: at,
	})
}

func (s *Sessions) publish(publicID, name string, data interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(publicID, sse.Event{Name: name, Data: data})
	s.lg.Debug("session event published",
		zap.String("public_id", publicID),
		zap.String("event", name),
		zap.Int("watchers", s.hub.Subscribers(publicID)))
}
