package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	ShortSeedLen = 32
	SeedLen      = 64

	workingSeedSalt = "cashew/working-seed"
	workingSeedInfo = "v1"
)

var (
	ErrInvalidSeedLength = fmt.Errorf("seed must be either 32 or 64 bytes long")
	ErrInvalidSeedHex    = fmt.Errorf("seed must be a 64 or 128 chars long hex string")
)

// SeedFromHex decodes a seed in hex format.
func SeedFromHex(str string) ([]byte, error) {
	str = strings.TrimSpace(str)
	if len(str) != 2*ShortSeedLen && len(str) != 2*SeedLen {
		return nil, ErrInvalidSeedHex
	}
	seed, err := hex.DecodeString(str)
	if err != nil {
		return nil, ErrInvalidSeedHex
	}
	return seed, nil
}

// WorkingSeed returns the canonical 64-byte seed every key is derived from.
// A 64-byte seed is returned as is, a 32-byte one is expanded with
// HKDF-SHA256.
func WorkingSeed(seed []byte) ([]byte, error) {
	switch len(seed) {
	case SeedLen:
		working := make([]byte, SeedLen)
		copy(working, seed)
		return working, nil
	case ShortSeedLen:
		working := make([]byte, SeedLen)
		r := hkdf.New(
			sha256.New, seed, []byte(workingSeedSalt), []byte(workingSeedInfo),
		)
		if _, err := io.ReadFull(r, working); err != nil {
			return nil, err
		}
		return working, nil
	default:
		return nil, ErrInvalidSeedLength
	}
}
