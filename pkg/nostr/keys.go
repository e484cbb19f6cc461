// Package nostr implements the subset of the nostr protocol needed to back up
// a wallet on relays: keys, signed events and subscription filters.
package nostr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	nsecPrefix = "nsec"
	npubPrefix = "npub"
)

var (
	ErrInvalidPrivateKey = fmt.Errorf("invalid private key")
	ErrInvalidPublicKey  = fmt.Errorf("invalid public key")
	ErrInvalidBech32Key  = fmt.Errorf("invalid bech32 key")
)

// GeneratePrivateKey returns a new random key.
func GeneratePrivateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// ParsePrivateKey parses a 32-byte private key either in hex or nsec format.
func ParsePrivateKey(str string) (*btcec.PrivateKey, error) {
	str = strings.TrimSpace(str)
	var buf []byte
	if strings.HasPrefix(str, nsecPrefix) {
		b, err := decodeBech32Key(nsecPrefix, str)
		if err != nil {
			return nil, err
		}
		buf = b
	} else {
		b, err := hex.DecodeString(str)
		if err != nil {
			return nil, ErrInvalidPrivateKey
		}
		buf = b
	}
	if len(buf) != 32 {
		return nil, ErrInvalidPrivateKey
	}
	key, _ := btcec.PrivKeyFromBytes(buf)
	if key.Key.IsZero() {
		return nil, ErrInvalidPrivateKey
	}
	return key, nil
}

// PublicKeyHex returns the x-only public key of the given private key in hex
// format.
func PublicKeyHex(key *btcec.PrivateKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(key.PubKey()))
}

// ParsePublicKey parses an x-only public key either in hex or npub format.
func ParsePublicKey(str string) (*btcec.PublicKey, error) {
	str = strings.TrimSpace(str)
	var buf []byte
	if strings.HasPrefix(str, npubPrefix) {
		b, err := decodeBech32Key(npubPrefix, str)
		if err != nil {
			return nil, err
		}
		buf = b
	} else {
		b, err := hex.DecodeString(str)
		if err != nil {
			return nil, ErrInvalidPublicKey
		}
		buf = b
	}
	pubkey, err := schnorr.ParsePubKey(buf)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return pubkey, nil
}

// EncodeNsec returns the bech32 encoding of the private key.
func EncodeNsec(key *btcec.PrivateKey) (string, error) {
	return encodeBech32Key(nsecPrefix, key.Serialize())
}

// EncodeNpub returns the bech32 encoding of the x-only public key in hex
// format.
func EncodeNpub(pubkey string) (string, error) {
	buf, err := hex.DecodeString(pubkey)
	if err != nil || len(buf) != 32 {
		return "", ErrInvalidPublicKey
	}
	return encodeBech32Key(npubPrefix, buf)
}

// DecodeNpub returns the x-only public key in hex format encoded by npub.
func DecodeNpub(npub string) (string, error) {
	buf, err := decodeBech32Key(npubPrefix, npub)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func encodeBech32Key(prefix string, key []byte) (string, error) {
	data, err := bech32.ConvertBits(key, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, data)
}

func decodeBech32Key(prefix, str string) ([]byte, error) {
	hrp, data, err := bech32.Decode(str)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBech32Key, err)
	}
	if hrp != prefix {
		return nil, fmt.Errorf("%w: expected prefix %s, got %s", ErrInvalidBech32Key, prefix, hrp)
	}
	buf, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBech32Key, err)
	}
	if len(buf) != 32 {
		return nil, ErrInvalidBech32Key
	}
	return buf, nil
}
