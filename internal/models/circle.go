package models

import (
	"context"
	"time"

	"SafeCircle/pkg/errors"

	"gorm.io/gorm"
)

// CreateSubject 加入一个待确认安全的提醒对象
func CreateSubject(ctx context.Context, db *gorm.DB, subject *AlertSubject, now time.Time) error {
	if subject.Username == "" || subject.FCMToken == nil || *subject.FCMToken == "" {
		return ErrMissingFields
	}
	subject.Safe = nil
	subject.CreatedAt = serverTime(now)
	subject.UpdatedAt = subject.CreatedAt
	if err := db.WithContext(ctx).Create(subject).Error; err != nil {
		return errors.Wrap(err, "create circle subject")
	}
	return nil
}

// PendingCircleSubjects safe 未设置且有 token 的对象
func PendingCircleSubjects(ctx context.Context, db *gorm.DB) ([]AlertSubject, error) {
	var subjects []AlertSubject
	err := db.WithContext(ctx).
		Where("safe IS NULL AND fcm_token IS NOT NULL AND fcm_token <> ''").
		Order("id").
		Find(&subjects).Error
	return subjects, err
}

// RecordCircleResponse 未匹配到记录也视为成功
func RecordCircleResponse(ctx context.Context, db *gorm.DB, id int64, safe *bool, comment *string, now time.Time) error {
	err := db.WithContext(ctx).Model(&AlertSubject{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"safe":       safe,
			"comment":    comment,
			"updated_at": serverTime(now),
		}).Error
	if err != nil {
		return errors.Wrap(err, "record response")
	}
	return nil
}
