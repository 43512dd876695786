package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// Purpose scopes a one-time token to a single kind of action
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify-email"
	PurposeResetPassword Purpose = "reset-password"
)

const oneTimeTokenSize = 32

func (p Purpose) Valid() bool {
	return p == PurposeVerifyEmail || p == PurposeResetPassword
}

// NewOneTimeToken returns 32 random bytes hex encoded
func NewOneTimeToken() (string, error) {
	b, err := RandomBytes(oneTimeTokenSize)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// HashOneTimeToken is the form a one-time token is stored in. Only the
// bearer ever holds the raw value.
func HashOneTimeToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
