package models

import "time"

type RefreshToken struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Token     string    `gorm:"size:64;not null;uniqueIndex" json:"token"`
	UserId    int       `gorm:"not null;index" json:"user_id"`
	DeviceId  string    `gorm:"size:100" json:"device_id"`
	Revoked   bool      `gorm:"not null;default:false" json:"revoked"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
