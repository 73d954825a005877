package application

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2idHasher(t *testing.T) {
	hasher := fastHasher()

	first, err := hasher.Hash("1234")
	require.NoError(t, err)
	second, err := hasher.Hash("1234")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, "$argon2id$v=19$"))
	assert.NotEqual(t, first, second, "hashes must be salted")

	ok, err := hasher.Verify("1234", first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("4321", first)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2idHasherRejectsMalformedHashes(t *testing.T) {
	hasher := fastHasher()

	for _, encoded := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=64,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=x$m=64,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=64$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$!!$aGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdA$",
	} {
		_, err := hasher.Verify("1234", encoded)
		assert.ErrorIs(t, err, ErrInvalidSecretHash, encoded)
	}

	_, err := hasher.Verify("1234", "$argon2id$v=16$m=64,t=1,p=1$c2FsdA$aGFzaA")
	assert.ErrorIs(t, err, ErrIncompatibleSecretVersion)
}

func TestNewArgon2idHasherDefaults(t *testing.T) {
	assert.Equal(t, DefaultArgon2idParams, NewArgon2idHasher(Argon2idParams{}).Params)
}

func TestValidPIN(t *testing.T) {
	for pin, want := range map[string]bool{
		"0000":  true,
		"1234":  true,
		"123":   false,
		"12345": false,
		"12a4":  false,
		"١٢٣٤":  false,
		" 123":  false,
	} {
		assert.Equal(t, want, validPIN(pin), pin)
	}
}
