package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrExpired          = errors.New("session token expired")
	ErrInvalidSignature = errors.New("session token signature invalid")
	ErrMalformed        = errors.New("session token malformed")
)

// SessionClaims is the identity asserted by a session token. EmailVerified
// is a snapshot taken at issuance and is not refreshed until a new token is
// issued.
type SessionClaims struct {
	UserID        string
	EmailVerified bool
	IssuedAt      time.Time
}

type sessionJWT struct {
	jwt.RegisteredClaims
	UserID        string `json:"userId"`
	EmailVerified bool   `json:"emailVerified"`
	TS            int64  `json:"ts"`
	ExpMS         int64  `json:"expMs"`
}

// SessionTokens signs and verifies HS256 session tokens with a single
// process-wide secret
type SessionTokens struct {
	secret []byte
	now    func() time.Time
}

func NewSessionTokens(secret []byte) (*SessionTokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("no signing secret provided")
	}

	return &SessionTokens{secret: secret, now: time.Now}, nil
}

// WithClock returns a copy of s that reads time from now
func (s *SessionTokens) WithClock(now func() time.Time) *SessionTokens {
	return &SessionTokens{secret: s.secret, now: now}
}

// Issue signs claims with an absolute expiry of now+ttl. The registered exp
// is rounded up to the next second, expMs carries the expiry in milliseconds
// rounded up.
func (s *SessionTokens) Issue(c SessionClaims, ttl time.Duration) (string, error) {
	if c.UserID == "" {
		return "", errors.New("no user ID provided")
	}

	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	now := s.now()
	if c.IssuedAt.IsZero() {
		c.IssuedAt = now
	}

	exp := now.Add(ttl)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionJWT{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceil(exp, time.Second)),
		},
		UserID:        c.UserID,
		EmailVerified: c.EmailVerified,
		TS:            c.IssuedAt.UnixMilli(),
		ExpMS:         ceil(exp, time.Millisecond).UnixMilli(),
	})

	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token, %w", err)
	}

	return signed, nil
}

// Verify checks the signature and expiry of a token and returns its claims.
// A token is expired from the instant now reaches its millisecond expiry.
func (s *SessionTokens) Verify(token string) (SessionClaims, error) {
	var claims sessionJWT

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return SessionClaims{}, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return SessionClaims{}, ErrExpired
		default:
			return SessionClaims{}, ErrInvalidSignature
		}
	}

	if !parsed.Valid {
		return SessionClaims{}, ErrInvalidSignature
	}

	if claims.UserID == "" || claims.ExpMS == 0 {
		return SessionClaims{}, ErrMalformed
	}

	if !s.now().Before(time.UnixMilli(claims.ExpMS)) {
		return SessionClaims{}, ErrExpired
	}

	return SessionClaims{
		UserID:        claims.UserID,
		EmailVerified: claims.EmailVerified,
		IssuedAt:      time.UnixMilli(claims.TS),
	}, nil
}

func ceil(t time.Time, d time.Duration) time.Time {
	r := t.Truncate(d)
	if r.Before(t) {
		r = r.Add(d)
	}

	return r
}
