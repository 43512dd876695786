package service

import (
	"arc/auth-api/internal/model"
	"arc/auth-api/pkg/security"
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Profile is a user record with the email decrypted
type Profile struct {
	ID            string  `json:"id"`
	FirstName     string  `json:"firstName"`
	LastName      string  `json:"lastName"`
	Email         string  `json:"email"`
	EmailVerified bool    `json:"emailVerified"`
	Country       *string `json:"country"`
	Timezone      *string `json:"timezone"`
}

// Account is a Profile with its record timestamps, used for data exports
type Account struct {
	Profile
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProfileUpdate holds the user editable fields. A nil Timezone clears it.
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Country   string
	Timezone  *string
}

type NewUser struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Country      *string
	Timezone     *string
}

// Credentials gives access to user records, encrypting the email on write
// and decrypting it on read
type Credentials struct {
	db     *gorm.DB
	cipher *security.Cipher
}

func NewCredentials(db *gorm.DB, c *security.Cipher) *Credentials {
	return &Credentials{db: db, cipher: c}
}

// WithTx returns a copy of s that runs every query inside tx
func (s *Credentials) WithTx(tx *gorm.DB) *Credentials {
	return &Credentials{db: tx, cipher: s.cipher}
}

func (s *Credentials) Create(ctx context.Context, u NewUser) (Profile, error) {
	id, err := gonanoid.New()
	if err != nil {
		return Profile{}, fmt.Errorf("failed to generate user ID, %w", err)
	}

	email := security.NormalizeEmail(u.Email)

	enc, err := s.cipher.Encrypt(email)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to encrypt email, %w", err)
	}

	rec := model.User{
		ID:             id,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		EmailEncrypted: enc,
		EmailIndex:     s.cipher.EmailIndex(email),
		PasswordHash:   u.PasswordHash,
		Country:        u.Country,
		Timezone:       u.Timezone,
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Profile{}, ErrEmailTaken
		}

		return Profile{}, storageErr("create user", err)
	}

	return s.profile(rec, email), nil
}

func (s *Credentials) FindByID(ctx context.Context, id string) (Profile, error) {
	a, err := s.Export(ctx, id)
	if err != nil {
		return Profile{}, err
	}

	return a.Profile, nil
}

// Export returns the full account of id
func (s *Credentials) Export(ctx context.Context, id string) (Account, error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return Account{}, err
	}

	email, err := s.decryptEmail(rec)
	if err != nil {
		return Account{}, err
	}

	return Account{
		Profile:   s.profile(rec, email),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// PasswordHash returns the stored password hash of id
func (s *Credentials) PasswordHash(ctx context.Context, id string) (string, error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return "", err
	}

	return rec.PasswordHash, nil
}

func (s *Credentials) find(ctx context.Context, id string) (model.User, error) {
	var rec model.User

	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.User{}, ErrNotFound
		}

		return model.User{}, storageErr("find user", err)
	}

	return rec, nil
}

// FindByEmail looks a user up through the email index and returns the profile
// together with the stored password hash
func (s *Credentials) FindByEmail(ctx context.Context, email string) (Profile, string, error) {
	var rec model.User

	err := s.db.WithContext(ctx).Where("email_index = ?", s.cipher.EmailIndex(email)).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Profile{}, "", ErrNotFound
		}

		return Profile{}, "", storageErr("find user by email", err)
	}

	plain, err := s.decryptEmail(rec)
	if err != nil {
		return Profile{}, "", err
	}

	return s.profile(rec, plain), rec.PasswordHash, nil
}

// MarkEmailVerified sets the verified flag. Calling it on an already verified
// user is a no-op.
func (s *Credentials) MarkEmailVerified(ctx context.Context, id string) error {
	return s.update(ctx, "mark email verified", id, map[string]any{"email_verified": true})
}

func (s *Credentials) SetPasswordHash(ctx context.Context, id, hash string) error {
	return s.update(ctx, "set password", id, map[string]any{"password_hash": hash})
}

// UpdateProfile writes the editable fields of id and returns the result. The
// email can't be changed here.
func (s *Credentials) UpdateProfile(ctx context.Context, id string, u ProfileUpdate) (Profile, error) {
	err := s.update(ctx, "update profile", id, map[string]any{
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"country":    u.Country,
		"timezone":   u.Timezone,
	})
	if err != nil {
		return Profile{}, err
	}

	return s.FindByID(ctx, id)
}

func (s *Credentials) update(ctx context.Context, op, id string, fields map[string]any) error {
	r := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	if r.Error != nil {
		return storageErr(op, r.Error)
	}

	if r.RowsAffected > 0 {
		return nil
	}

	// Some drivers only count rows whose values changed
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return storageErr(op, err)
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Credentials) decryptEmail(rec model.User) (string, error) {
	email, err := s.cipher.Decrypt(rec.EmailEncrypted)
	if err != nil {
		zap.L().Warn("Security event: stored email failed integrity check", zap.String("userID", rec.ID))
		return "", fmt.Errorf("failed to decrypt email of user %s, %w", rec.ID, err)
	}

	return email, nil
}

func (s *Credentials) profile(rec model.User, email string) Profile {
	return Profile{
		ID:            rec.ID,
		FirstName:     rec.FirstName,
		LastName:      rec.LastName,
		Email:         email,
		EmailVerified: rec.EmailVerified,
		Country:       rec.Country,
		Timezone:      rec.Timezone,
	}
}
