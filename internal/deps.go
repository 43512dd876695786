package internal

import (
	"arc/auth-api/config"
	"arc/auth-api/internal/service"
	"arc/auth-api/pkg/security"

	"gorm.io/gorm"
)

// Deps is built once by the router and handed to every handler
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Argon    *security.ArgonHash
	Cipher   *security.Cipher
	Sessions *security.SessionTokens
	Users    *service.Credentials
	Tokens   *service.OneTimeTokens
	Consents *service.ConsentLog
	Mailer   service.Mailer
}

// NewDeps wires the stores around an open database
func NewDeps(c *config.Config, db *gorm.DB, mailer service.Mailer) (*Deps, error) {
	key, err := security.ParseHexKey(c.Security.EncryptionKey)
	if err != nil {
		return nil, err
	}

	cipher, err := security.NewCipher(key)
	if err != nil {
		return nil, err
	}

	sessions, err := security.NewSessionTokens([]byte(c.Security.JWTSecret))
	if err != nil {
		return nil, err
	}

	return &Deps{
		Config:   c,
		DB:       db,
		Argon:    security.NewArgon(),
		Cipher:   cipher,
		Sessions: sessions,
		Users:    service.NewCredentials(db, cipher),
		Tokens:   service.NewOneTimeTokens(db),
		Consents: service.NewConsentLog(db),
		Mailer:   mailer,
	}, nil
}
