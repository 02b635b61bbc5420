package auth

import (
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// DefaultSalt is used when no salt is configured
const DefaultSalt = "ledger-service/credential/v1"

// Argon2 parameters
const (
	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
	argonKeyLen  = 32
)

// Argon2Hasher derives credential hashes with Argon2id over a fixed salt.
// The output must be deterministic so accounts can be looked up by (id, hash).
type Argon2Hasher struct {
	salt []byte
}

func NewArgon2Hasher(salt string) *Argon2Hasher {
	if salt == "" {
		salt = DefaultSalt
	}
	return &Argon2Hasher{salt: []byte(salt)}
}

func (h *Argon2Hasher) Hash(password string) string {
	key := argon2.IDKey([]byte(password), h.salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return hex.EncodeToString(key)
}
