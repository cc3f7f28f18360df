package hashing

import (
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"

	"insights-service/internal/config"
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
}

// Hasher derives blind-index keys for email addresses. The pepper acts
// as the argon2 salt, so the same email always yields the same key;
// rotating the pepper would orphan every stored identity row.
type Hasher struct {
	params Argon2Params
	pepper []byte
}

func NewHasher(cfg *config.Config) *Hasher {
	return &Hasher{
		params: Argon2Params{
			Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
			Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
			Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
			KeyLength:   32,
		},
		pepper: []byte(cfg.Hashing.Pepper),
	}
}

// EmailKey returns the deterministic lookup key for a normalized email.
func (h *Hasher) EmailKey(email string) string {
	key := argon2.IDKey(
		[]byte(email),
		h.pepper,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)
	return base64.RawURLEncoding.EncodeToString(key)
}

// Equal compares two keys in constant time.
func (h *Hasher) Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
