package service

import (
	"context"
	"time"

	"SafeCircle/internal/models"

	"gorm.io/gorm"
)

type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// Report stores r, keeping the previous position or token for nil fields.
func (l *Ledger) Report(ctx context.Context, r models.LocationReport) error {
	return models.UpsertLocation(ctx, l.db, r, l.now())
}

func (l *Ledger) List(ctx context.Context) ([]models.LocationRecord, error) {
	return models.ListLocations(ctx, l.db)
}

func (l *Ledger) Get(ctx context.Context, userID int64) (*models.LocationRecord, error) {
	return models.GetLocation(ctx, l.db, userID)
}
