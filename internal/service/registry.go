package service

import (
	"context"
	"time"

	"SafeCircle/internal/models"
	"SafeCircle/pkg/cache"

	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const deviceCacheTTL = 24 * time.Hour

// Registry maps device ids to user ids. The mapping never changes once
// assigned, so lookups are served from cache when possible.
type Registry struct {
	db    *gorm.DB
	cache cache.Cache
	now   func() time.Time
	lg    *zap.Logger
}

func (r *Registry) Register(ctx context.Context, username, deviceID string) (int64, error) {
	if username == "" || deviceID == "" {
		return 0, models.ErrMissingFields
	}

	key := "device:" + deviceID
	if r.cache != nil {
		if v, ok := r.cache.Get(ctx, key); ok {
			if id, err := cast.ToInt64E(v); err == nil && id > 0 {
				return id, nil
			}
		}
	}

	id, err := models.RegisterDevice(ctx, r.db, username, deviceID, r.now())
	if err != nil {
		return 0, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, id, deviceCacheTTL); err != nil {
			r.lg.Warn("cache device id failed", zap.String("device_id", deviceID), zap.Error(err))
		}
	}
	return id, nil
}
