// Package model defines database models
package model

import "time"

// User holds the credential record. Email is stored only encrypted, with a
// keyed digest alongside it for lookups.
type User struct {
	ID             string  `gorm:"primaryKey"`
	FirstName      string  `gorm:"not null"`
	LastName       string  `gorm:"not null"`
	EmailEncrypted string  `gorm:"not null"`
	EmailIndex     string  `gorm:"uniqueIndex;not null"`
	PasswordHash   string  `gorm:"not null"`
	EmailVerified  bool    `gorm:"not null;default:false"`
	Country        *string // ISO 3166 alpha-2
	Timezone       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	OneTimeTokens []OneTimeToken `gorm:"foreignKey:UserID"`
	Consents      []Consent      `gorm:"foreignKey:UserID"`
}
