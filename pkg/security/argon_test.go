package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastArgon() *ArgonHash {
	a := NewArgon()
	a.Memory = 8 * 1024
	a.Iterations = 1
	return a
}

func TestArgon_HashAndVerify(t *testing.T) {
	t.Parallel()

	a := fastArgon()

	hash, err := a.Hash("correct horse")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=8192,t=1,p=2$")

	ok, err := a.Verify("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Verify("wrong horse", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon_VerifyUsesStoredParams(t *testing.T) {
	t.Parallel()

	hash, err := fastArgon().Hash("pw123456")
	require.NoError(t, err)

	ok, err := NewArgon().Verify("pw123456", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArgon_BadFormat(t *testing.T) {
	t.Parallel()

	a := fastArgon()

	for _, e := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", "$argon2id$v=18$m=1,t=1,p=1$c2FsdA$aGFzaA", "$argon2id$v=19$m=x$c2FsdA$aGFzaA"} {
		_, err := a.Verify("pw", e)
		assert.ErrorIs(t, err, ErrHashFormat, "hash %q", e)
	}
}
