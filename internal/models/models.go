package models

import (
	"time"

	"gorm.io/gorm"
)

// ServerZone 服务端时间统一使用 UTC+05:30
var ServerZone = time.FixedZone("IST", 5*3600+30*60)

const (
	StatusActive   = "active"
	StatusResolved = "resolved"
)

// User 设备注册得到的用户身份
type User struct {
	UserID    int64     `json:"userId" gorm:"column:user_id;primaryKey;autoIncrement"`
	Username  string    `json:"username" gorm:"size:255;not null"`
	DeviceID  string    `json:"deviceId" gorm:"column:device_id;size:191;not null;uniqueIndex"`
	CreatedAt time.Time `json:"createdAt"`
}

func (User) TableName() string { return "users" }

// LocationRecord 每个用户一条当前位置
type LocationRecord struct {
	UserID            int64     `json:"user_id" gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Username          string    `json:"username" gorm:"size:255"`
	Latitude          *float64  `json:"latitude"`
	Longitude         *float64  `json:"longitude"`
	Timestamp         int64     `json:"timestamp" gorm:"column:timestamp"` // 客户端时间，原样保存
	NotificationToken *string   `json:"notification_token" gorm:"column:notification_token;size:512"`
	UpdatedAt         time.Time `json:"updated_at"`
	Safe              *bool     `json:"safe"`
	Comment           *string   `json:"comment" gorm:"type:text"`
}

func (LocationRecord) TableName() string { return "user_locations" }

// SOSSession 一次求救会话，status 只会 active -> resolved
type SOSSession struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	PublicID        string    `json:"public_id" gorm:"column:public_id;size:36;not null;uniqueIndex"`
	SubjectUserID   int64     `json:"subject_user_id" gorm:"index"`
	SubjectUsername string    `json:"subject_username" gorm:"size:255"`
	RescuerID       int64     `json:"rescuer_id" gorm:"index"`
	InitialLat      float64   `json:"initial_lat"`
	InitialLon      float64   `json:"initial_lon"`
	CurrentLat      float64   `json:"current_lat"`
	CurrentLon      float64   `json:"current_lon"`
	Timestamp       int64     `json:"timestamp" gorm:"column:timestamp"`
	LastUpdated     time.Time `json:"last_updated"`
	Status          string    `json:"status" gorm:"size:16;not null;index"`
}

func (SOSSession) TableName() string { return "sos" }

// AlertSubject 等待确认安全的提醒对象
type AlertSubject struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    *int64    `json:"user_id"`
	Username  string    `json:"username" gorm:"size:255"`
	Name      string    `json:"name" gorm:"size:255"`
	FCMToken  *string   `json:"fcm_token" gorm:"column:fcm_token;size:512"`
	Safe      *bool     `json:"safe"`
	Comment   *string   `json:"comment" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AlertSubject) TableName() string { return "circle_selection" }

// Migrate 创建或补齐全部表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &LocationRecord{}, &SOSSession{}, &AlertSubject{})
}

func serverTime(now time.Time) time.Time {
	return now.In(ServerZone)
}
