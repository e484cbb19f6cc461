package mnemonic

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
	vbip39 "github.com/vulpemventures/go-bip39"
)

var (
	ErrInvalidWordCount   = fmt.Errorf("word count must be 12 or 24")
	ErrInvalidEntropySize = fmt.Errorf("entropy must be 16 or 32 bytes")
	ErrInvalidMnemonic    = fmt.Errorf("invalid mnemonic")
)

type NewMnemonicArgs struct {
	WordCount uint32
}

func (a NewMnemonicArgs) validate() error {
	if a.WordCount > 0 {
		if a.WordCount != 12 && a.WordCount != 24 {
			return ErrInvalidWordCount
		}
	}
	return nil
}

func (a NewMnemonicArgs) entropySize() int {
	if a.WordCount == 12 {
		return 128
	}
	return 256
}

// NewMnemonic returns a new mnemonic as a list of words:
//   - WordCount: 24 (default) -> 256 bits of entropy.
//   - WordCount: 12 -> 128 bits of entropy.
func NewMnemonic(args NewMnemonicArgs) ([]string, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}

	entropy, err := bip39.NewEntropy(args.entropySize())
	if err != nil {
		return nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return strings.Split(mnemonic, " "), nil
}

// IsValid returns whether the mnemonic is made of 12 or 24 words of the
// english wordlist with a valid checksum.
func IsValid(mnemonic []string) bool {
	if len(mnemonic) != 12 && len(mnemonic) != 24 {
		return false
	}
	return vbip39.IsMnemonicValid(strings.Join(mnemonic, " "))
}

// ToSeed returns the 64-byte BIP-39 seed of the mnemonic, with empty
// passphrase.
func ToSeed(mnemonic []string) ([]byte, error) {
	if !IsValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return vbip39.NewSeed(strings.Join(mnemonic, " "), ""), nil
}

// ToEntropy returns the entropy encoded by the mnemonic, 16 bytes for 12
// words and 32 bytes for 24 words.
func ToEntropy(mnemonic []string) ([]byte, error) {
	if !IsValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	entropy, err := bip39.EntropyFromMnemonic(strings.Join(mnemonic, " "))
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	return entropy, nil
}

// FromEntropy is the inverse of ToEntropy.
func FromEntropy(entropy []byte) ([]string, error) {
	if len(entropy) != 16 && len(entropy) != 32 {
		return nil, ErrInvalidEntropySize
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return strings.Split(mnemonic, " "), nil
}
