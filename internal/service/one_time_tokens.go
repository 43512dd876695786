package service

import (
	"arc/auth-api/internal/model"
	"arc/auth-api/pkg/security"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// OneTimeTokens issues single-use tokens for email verification and password
// reset. Only token hashes are persisted.
type OneTimeTokens struct {
	db  *gorm.DB
	now func() time.Time
}

func NewOneTimeTokens(db *gorm.DB) *OneTimeTokens {
	return &OneTimeTokens{db: db, now: time.Now}
}

func (s *OneTimeTokens) WithClock(now func() time.Time) *OneTimeTokens {
	return &OneTimeTokens{db: s.db, now: now}
}

// WithTx returns a copy of s that runs every query inside tx
func (s *OneTimeTokens) WithTx(tx *gorm.DB) *OneTimeTokens {
	return &OneTimeTokens{db: tx, now: s.now}
}

// TokenInfo describes an issued token without its digest
type TokenInfo struct {
	Purpose   string     `json:"purpose"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"usedAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ListFor returns the tokens issued to userID, oldest first
func (s *OneTimeTokens) ListFor(ctx context.Context, userID string) ([]TokenInfo, error) {
	var recs []model.OneTimeToken

	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&recs).Error; err != nil {
		return nil, storageErr("list one-time tokens", err)
	}

	infos := make([]TokenInfo, len(recs))
	for i, r := range recs {
		infos[i] = TokenInfo{
			Purpose:   r.Purpose,
			ExpiresAt: r.ExpiresAt,
			Used:      r.Used,
			UsedAt:    r.UsedAt,
			CreatedAt: r.CreatedAt,
		}
	}

	return infos, nil
}

// Issue creates and stores a new token for userID
func (s *OneTimeTokens) Issue(ctx context.Context, userID string, purpose security.Purpose, ttl time.Duration) (string, error) {
	return s.IssueAndSend(ctx, userID, purpose, ttl, nil)
}

// IssueAndSend generates a token, hands it to send and stores it only once
// send succeeded. A failed delivery leaves nothing behind.
func (s *OneTimeTokens) IssueAndSend(ctx context.Context, userID string, purpose security.Purpose, ttl time.Duration, send func(token string) error) (string, error) {
	if userID == "" {
		return "", ErrNoUserID
	}

	if !purpose.Valid() {
		return "", fmt.Errorf("invalid token purpose %q", purpose)
	}

	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	token, err := security.NewOneTimeToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token, %w", err)
	}

	if send != nil {
		if err := send(token); err != nil {
			return "", fmt.Errorf("failed to deliver token, %w", err)
		}
	}

	now := s.now().UTC()

	rec := model.OneTimeToken{
		UserID:    userID,
		TokenHash: security.HashOneTimeToken(token),
		Purpose:   string(purpose),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", storageErr("create one-time token", err)
	}

	return token, nil
}

// Consume marks the token used and returns its owner. The mark is a single
// conditional update, so of any number of concurrent calls for the same
// token exactly one succeeds and the rest get ErrTokenConsumed.
func (s *OneTimeTokens) Consume(ctx context.Context, token string, purpose security.Purpose) (string, error) {
	if token == "" {
		return "", ErrTokenNotFound
	}

	hash := security.HashOneTimeToken(token)
	now := s.now().UTC()

	r := s.db.WithContext(ctx).
		Model(&model.OneTimeToken{}).
		Where("token_hash = ? AND purpose = ? AND used = ? AND expires_at > ?", hash, string(purpose), false, now).
		Updates(map[string]any{
			"used":    true,
			"used_at": now,
		})
	if r.Error != nil {
		return "", storageErr("consume one-time token", r.Error)
	}

	var rec model.OneTimeToken

	err := s.db.WithContext(ctx).
		Where("token_hash = ? AND purpose = ?", hash, string(purpose)).
		First(&rec).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrTokenNotFound
		}

		return "", storageErr("read one-time token", err)
	}

	if r.RowsAffected == 1 {
		return rec.UserID, nil
	}

	// Lost the update, work out why for the caller
	switch {
	case rec.Used:
		return "", ErrTokenConsumed
	case !rec.ExpiresAt.After(now):
		return "", ErrTokenExpired
	default:
		return "", ErrTokenNotFound
	}
}
