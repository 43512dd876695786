package model

import "time"

// Consent is one entry of the append-only consent log
type Consent struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string     `gorm:"index:idx_consent_user_ts,priority:1;not null" json:"userId"`
	Type         string     `gorm:"not null" json:"type"`
	Mandatory    bool       `json:"mandatory"`
	Accepted     bool       `json:"accepted"`
	LegalVersion string     `gorm:"not null" json:"legalVersion"`
	IPAddress    string     `json:"ipAddress,omitempty"`
	Purpose      *string    `json:"purpose,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	Timestamp    time.Time  `gorm:"index:idx_consent_user_ts,priority:2;not null" json:"timestamp"`
}
