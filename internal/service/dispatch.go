package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"SafeCircle/internal/models"
	"SafeCircle/pkg/metrics"
	"SafeCircle/pkg/notification"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	SourceCircle    = "circle"
	SourceLocations = "locations"
)

// Subject is someone who has not yet acknowledged being safe.
type Subject struct {
	RefID string
	Token string
	Label string
}

// SubjectSource is the table the dispatch loop scans and /response writes to.
type SubjectSource interface {
	Name() string
	Pending(ctx context.Context) ([]Subject, error)
	Respond(ctx context.Context, ref int64, safe *bool, comment *string, now time.Time) error
}

func NewSubjectSource(name string, db *gorm.DB) (SubjectSource, error) {
	switch name {
	case "", SourceCircle:
		return circleSource{db: db}, nil
	case SourceLocations:
		return locationSource{db: db}, nil
	default:
		return nil, fmt.Errorf("unknown dispatch source: %s", name)
	}
}

type circleSource struct{ db *gorm.DB }

func (circleSource) Name() string { return SourceCircle }

func (s circleSource) Pending(ctx context.Context) ([]Subject, error) {
	rows, err := models.PendingCircleSubjects(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]Subject, 0, len(rows))
	for _, r := range rows {
		label := r.Username
		if label == "" {
			label = r.Name
		}
		out = append(out, Subject{RefID: strconv.FormatInt(r.ID, 10), Token: *r.FCMToken, Label: label})
	}
	return out, nil
}

func (s circleSource) Respond(ctx context.Context, ref int64, safe *bool, comment *string, now time.Time) error {
	return models.RecordCircleResponse(ctx, s.db, ref, safe, comment, now)
}

type locationSource struct{ db *gorm.DB }

func (locationSource) Name() string { return SourceLocations }

func (s locationSource) Pending(ctx context.Context) ([]Subject, error) {
	rows, err := models.PendingLocationSubjects(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]Subject, 0, len(rows))
	for _, r := range rows {
		out = append(out, Subject{RefID: strconv.FormatInt(r.UserID, 10), Token: *r.NotificationToken, Label: r.Username})
	}
	return out, nil
}

func (s locationSource) Respond(ctx context.Context, ref int64, safe *bool, comment *string, _ time.Time) error {
	return models.RecordLocationResponse(ctx, s.db, ref, safe, comment)
}

// Dispatcher pushes a safety alert to every pending subject on each tick.
// Nothing records that a push happened, so subjects are re-notified every
// tick until they respond.
type Dispatcher struct {
	db      *gorm.DB
	source  SubjectSource
	sender  notification.Sender
	metrics *metrics.Metrics
	now     func() time.Time
	lg      *zap.Logger
}

// Tick scans once and pushes to every pending subject. Send failures are
// logged and skipped.
func (d *Dispatcher) Tick(ctx context.Context) (sent, failed int) {
	subjects, err := retryOnMissingSchema(ctx, d.db, d.lg, "dispatch scan", d.source.Pending)
	if err != nil {
		d.lg.Error("dispatch scan failed", zap.String("source", d.source.Name()), zap.Error(err))
		d.metrics.RecordDispatchTick("scan_error", 0)
		return 0, 0
	}

	for _, sub := range subjects {
		if ctx.Err() != nil {
			d.lg.Warn("dispatch tick deadline reached", zap.Int("remaining", len(subjects)-sent-failed))
			break
		}
		if err := d.sender.Send(ctx, sub.Token, notification.SafetyAlert(sub.RefID)); err != nil {
			failed++
			d.metrics.RecordPush(false)
			d.lg.Warn("push failed", zap.String("ref", sub.RefID), zap.Error(err))
			continue
		}
		sent++
		d.metrics.RecordPush(true)
		d.lg.Debug("alert sent", zap.String("ref", sub.RefID), zap.String("subject", sub.Label))
	}
	d.metrics.RecordDispatchTick("ok", len(subjects))
	return sent, failed
}

func (d *Dispatcher) RecordResponse(ctx context.Context, ref int64, safe *bool, comment *string) error {
	if ref <= 0 {
		return models.ErrMissingFields
	}
	return d.source.Respond(ctx, ref, safe, comment, d.now())
}

// AddSubject enqueues a new circle member for alerts.
func (d *Dispatcher) AddSubject(ctx context.Context, subject *models.AlertSubject) error {
	return models.CreateSubject(ctx, d.db, subject, d.now())
}
