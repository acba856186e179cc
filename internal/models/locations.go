package models

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"SafeCircle/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LocationReport 一次位置上报，nil 字段保留库中旧值
type LocationReport struct {
	UserID    int64
	Username  string
	Latitude  *float64
	Longitude *float64
	Timestamp int64
	Token     *string
}

var coalescedLocationColumns = []string{"latitude", "longitude", "notification_token"}

// locationUpsertSet username/timestamp/updated_at 总是覆盖，其余字段仅在传值时覆盖
func locationUpsertSet(db *gorm.DB) clause.Set {
	set := clause.AssignmentColumns([]string{"username", "timestamp", "updated_at"})
	mysql := db.Dialector.Name() == "mysql"
	for _, col := range coalescedLocationColumns {
		expr := gorm.Expr("COALESCE(excluded." + col + ", user_locations." + col + ")")
		if mysql {
			expr = gorm.Expr("COALESCE(VALUES(" + col + "), " + col + ")")
		}
		set = append(set, clause.Assignment{Column: clause.Column{Name: col}, Value: expr})
	}
	return set
}

// UpsertLocation 单条语句完成插入或合并更新
func UpsertLocation(ctx context.Context, db *gorm.DB, r LocationReport, now time.Time) error {
	if r.UserID <= 0 || r.Username == "" {
		return ErrMissingFields
	}

	rec := LocationRecord{
		UserID:            r.UserID,
		Username:          r.Username,
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
		Timestamp:         r.Timestamp,
		NotificationToken: presentToken(r.Token),
		UpdatedAt:         serverTime(now),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: locationUpsertSet(db),
		}).
		Create(&rec).Error
	if err != nil {
		return errors.Wrap(err, "upsert location")
	}
	return nil
}

// presentToken 空白 token 视为未上报，避免覆盖已登记的 token
func presentToken(tok *string) *string {
	if tok == nil || strings.TrimSpace(*tok) == "" {
		return nil
	}
	return tok
}

func GetLocation(ctx context.Context, db *gorm.DB, userID int64) (*LocationRecord, error) {
	var rec LocationRecord
	err := db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoLocation
	}
	if err != nil {
		return nil, errors.Wrap(err, "get location")
	}
	return &rec, nil
}

func ListLocations(ctx context.Context, db *gorm.DB) ([]LocationRecord, error) {
	var recs []LocationRecord
	if err := db.WithContext(ctx).Order("user_id").Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "list locations")
	}
	return recs, nil
}

// PendingLocationSubjects 尚未确认安全且有推送 token 的用户
func PendingLocationSubjects(ctx context.Context, db *gorm.DB) ([]LocationRecord, error) {
	var recs []LocationRecord
	err := db.WithContext(ctx).
		Where("safe IS NULL AND notification_token IS NOT NULL AND notification_token <> ''").
		Order("user_id").
		Find(&recs).Error
	return recs, err
}

// RecordLocationResponse 不触碰 updated_at，保持其为最后一次上报时间
func RecordLocationResponse(ctx context.Context, db *gorm.DB, userID int64, safe *bool, comment *string) error {
	err := db.WithContext(ctx).Model(&LocationRecord{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]interface{}{"safe": safe, "comment": comment}).Error
	if err != nil {
		return errors.Wrap(err, "record response")
	}
	return nil
}
