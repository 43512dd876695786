package model

import "time"

type OneTimeToken struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"index;not null"`
	TokenHash string `gorm:"uniqueIndex;not null"` // sha256 of the token, raw value is never stored
	Purpose   string `gorm:"index;not null"`
	ExpiresAt time.Time
	Used      bool `gorm:"not null;default:false"`
	UsedAt    *time.Time
	CreatedAt time.Time
}
