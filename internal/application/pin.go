package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidSecretHash         = errors.New("application: invalid secret hash format")
	ErrIncompatibleSecretVersion = errors.New("application: incompatible secret hash version")
)

// PINHasher hashes and verifies short secrets such as cancel PINs and device keys.
type PINHasher interface {
	Hash(raw string) (string, error)
	Verify(raw, encoded string) (bool, error)
}

// Argon2idParams tunes the argon2id key derivation.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams are the production cost settings.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Argon2idHasher is the default PINHasher. Output uses the PHC string format
// $argon2id$v=19$m=...,t=...,p=...$salt$hash.
type Argon2idHasher struct {
	Params Argon2idParams
}

// NewArgon2idHasher returns a hasher using params, or the defaults when params is zero.
func NewArgon2idHasher(params Argon2idParams) *Argon2idHasher {
	if params == (Argon2idParams{}) {
		params = DefaultArgon2idParams
	}
	return &Argon2idHasher{Params: params}
}

// Hash derives a salted hash of raw.
func (h *Argon2idHasher) Hash(raw string) (string, error) {
	params := h.Params
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("application: read salt: %w", err)
	}

	hash := argon2.IDKey([]byte(raw), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Hash), nil
}

// Verify reports whether raw matches encoded. A malformed hash is an error,
// a mismatch is not.
func (h *Argon2idHasher) Verify(raw, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrInvalidSecretHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, ErrInvalidSecretHash
	}
	if version != argon2.Version {
		return false, ErrIncompatibleSecretVersion
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return false, ErrInvalidSecretHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrInvalidSecretHash
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(decodedHash) == 0 {
		return false, ErrInvalidSecretHash
	}

	comparisonHash := argon2.IDKey([]byte(raw), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(decodedHash)))
	return subtle.ConstantTimeCompare(decodedHash, comparisonHash) == 1, nil
}

// validPIN reports whether pin is exactly four ASCII digits.
func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}
