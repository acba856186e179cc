package models

import (
	"context"
	stderrors "errors"
	"time"

	"SafeCircle/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewSession 新建求救会话时的输入
type NewSession struct {
	SubjectUserID   int64
	SubjectUsername string
	RescuerID       int64
	Lat             float64
	Lon             float64
	Timestamp       int64
}

// CreateSession 当前位置初始化为起始位置，返回 public_id
func CreateSession(ctx context.Context, db *gorm.DB, in NewSession, now time.Time) (*SOSSession, error) {
	if in.SubjectUserID <= 0 || in.SubjectUsername == "" || in.RescuerID <= 0 {
		return nil, ErrMissingFields
	}

	session := &SOSSession{
		PublicID:        uuid.NewString(),
		SubjectUserID:   in.SubjectUserID,
		SubjectUsername: in.SubjectUsername,
		RescuerID:       in.RescuerID,
		InitialLat:      in.Lat,
		InitialLon:      in.Lon,
		CurrentLat:      in.Lat,
		CurrentLon:      in.Lon,
		Timestamp:       in.Timestamp,
		LastUpdated:     serverTime(now),
		Status:          StatusActive,
	}
	if err := db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, errors.Wrap(err, "create sos")
	}
	return session, nil
}

// UpdateSessionPosition 仅 active 会话可更新，不存在与已结束不作区分
func UpdateSessionPosition(ctx context.Context, db *gorm.DB, publicID string, lat, lon float64, ts int64, now time.Time) error {
	result := db.WithContext(ctx).Model(&SOSSession{}).
		Where("public_id = ? AND status = ?", publicID, StatusActive).
		Updates(map[string]interface{}{
			"current_lat":  lat,
			"current_lon":  lon,
			"last_updated": serverTime(now),
			"timestamp":    ts,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "update sos")
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ResolveSession 无条件结束，重复调用同样成功
func ResolveSession(ctx context.Context, db *gorm.DB, publicID string, now time.Time) error {
	err := db.WithContext(ctx).Model(&SOSSession{}).
		Where("public_id = ?", publicID).
		Updates(map[string]interface{}{
			"status":       StatusResolved,
			"last_updated": serverTime(now),
		}).Error
	if err != nil {
		return errors.Wrap(err, "resolve sos")
	}
	return nil
}

func GetSession(ctx context.Context, db *gorm.DB, publicID string) (*SOSSession, error) {
	var session SOSSession
	err := db.WithContext(ctx).Where("public_id = ?", publicID).Take(&session).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get sos")
	}
	return &session, nil
}

// ListActiveSessions 按客户端时间倒序
func ListActiveSessions(ctx context.Context, db *gorm.DB) ([]SOSSession, error) {
	var sessions []SOSSession
	err := db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Find(&sessions).Error
	if err != nil {
		return nil, errors.Wrap(err, "list active sos")
	}
	return sessions, nil
}

// ResolveStaleSessions 结束 last_updated <= cutoff 的 active 会话，返回被结束的 public_id
func ResolveStaleSessions(ctx context.Context, db *gorm.DB, cutoff, now time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&SOSSession{}).
		Where("status = ? AND last_updated <= ?", StatusActive, serverTime(cutoff)).
		Pluck("public_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// 再次带上 status 条件，避免覆盖期间已被其他请求结束的会话
	err = db.WithContext(ctx).Model(&SOSSession{}).
		Where("public_id IN ? AND status = ? AND last_updated <= ?", ids, StatusActive, serverTime(cutoff)).
		Updates(map[string]interface{}{
			"status":       StatusResolved,
			"last_updated": serverTime(now),
		}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
