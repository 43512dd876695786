package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	ErrIntegrity  = errors.New("ciphertext failed integrity check")
	ErrInvalidKey = errors.New("encryption key must be 32 bytes")
)

// Cipher encrypts personal fields at rest with AES-256-GCM. It holds no
// mutable state after construction and can be shared between goroutines.
type Cipher struct {
	aead     cipher.AEAD
	indexKey []byte
}

// ParseHexKey decodes a 64 character hex string into a 32 byte key
func ParseHexKey(s string) ([]byte, error) {
	if len(s) != keySize*2 {
		return nil, fmt.Errorf("%w, got %d hex characters", ErrInvalidKey, len(s))
	}

	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex, %w", err)
	}

	return key, nil
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// Blind index uses its own sub-key, never the AES key
	indexKey := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte("arc email index")), indexKey); err != nil {
		return nil, fmt.Errorf("failed to derive index key, %w", err)
	}

	return &Cipher{aead: aead, indexKey: indexKey}, nil
}

// Encrypt seals plaintext under a fresh nonce. The result is base64 of
// nonce | tag | ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	// Seal appends the tag after the ciphertext, move it up front
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, body...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt. Every failure, including bad
// encoding and a wrong key, is reported as ErrIntegrity.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(ciphertext)
	if err != nil {
		return "", ErrIntegrity
	}

	if len(raw) < nonceSize+tagSize {
		return "", ErrIntegrity
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	body := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(body)+tagSize)
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrIntegrity
	}

	return string(plaintext), nil
}

// EmailIndex returns a deterministic keyed digest of the normalized email,
// used for lookups and uniqueness without decrypting stored rows.
func (c *Cipher) EmailIndex(email string) string {
	m := hmac.New(sha256.New, c.indexKey)
	m.Write([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(m.Sum(nil))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
