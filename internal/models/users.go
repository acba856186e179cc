package models

import (
	"context"
	"time"

	"SafeCircle/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RegisterDevice 幂等注册：device_id 已存在时返回原 user_id
func RegisterDevice(ctx context.Context, db *gorm.DB, username, deviceID string, now time.Time) (int64, error) {
	if username == "" || deviceID == "" {
		return 0, ErrMissingFields
	}

	user := User{Username: username, DeviceID: deviceID, CreatedAt: serverTime(now)}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "device_id"}}, DoNothing: true}).
		Create(&user)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "register device")
	}
	if result.RowsAffected > 0 && user.UserID != 0 {
		return user.UserID, nil
	}

	existing, err := GetUserByDevice(ctx, db, deviceID)
	if err != nil {
		return 0, err
	}
	return existing.UserID, nil
}

func GetUserByDevice(ctx context.Context, db *gorm.DB, deviceID string) (*User, error) {
	var user User
	if err := db.WithContext(ctx).Where("device_id = ?", deviceID).Take(&user).Error; err != nil {
		return nil, errors.Wrap(err, "lookup device")
	}
	return &user, nil
}
