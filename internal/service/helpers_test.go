package service

import (
	"arc/auth-api/pkg/security"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *security.Cipher {
	t.Helper()

	c, err := security.NewCipher(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	return c
}

func strPtr(s string) *string { return &s }
