// Package nip44 implements version 2 of the nostr payload encryption scheme:
// ECDH + HKDF derived keys, ChaCha20 and HMAC-SHA256 over a padded plaintext.
package nip44

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

const (
	Version = 2

	minPlaintextSize = 1
	maxPlaintextSize = 65535

	nonceSize = 32
	macSize   = 32
)

var (
	ErrInvalidPlaintextSize = fmt.Errorf("plaintext size must be between 1 and 65535 bytes")
	ErrInvalidPayload       = fmt.Errorf("invalid payload")
	ErrUnsupportedVersion   = fmt.Errorf("unsupported encryption version")
	ErrInvalidMac           = fmt.Errorf("invalid mac")
	ErrInvalidPadding       = fmt.Errorf("invalid padding")
	ErrInvalidNonce         = fmt.Errorf("nonce must be 32 bytes")

	conversationSalt = []byte("nip44-v2")
)

// ConversationKey returns the symmetric key shared between the owner of the
// private key and the owner of the public key.
func ConversationKey(key *btcec.PrivateKey, pubkey *btcec.PublicKey) []byte {
	shared := btcec.GenerateSharedSecret(key, pubkey)
	return hkdf.Extract(sha256.New, shared, conversationSalt)
}

// Encrypt encrypts the plaintext with a random nonce and returns the base64
// encoded payload.
func Encrypt(plaintext string, conversationKey []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return EncryptWithNonce(plaintext, conversationKey, nonce)
}

// EncryptWithNonce is like Encrypt but with a caller provided nonce. Never
// reuse a nonce with the same conversation key.
func EncryptWithNonce(
	plaintext string, conversationKey, nonce []byte,
) (string, error) {
	if len(nonce) != nonceSize {
		return "", ErrInvalidNonce
	}
	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}
	padded, err := pad(plaintext)
	if err != nil {
		return "", err
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	ciphertext := make([]byte, len(padded))
	cipher.XORKeyStream(ciphertext, padded)

	mac := computeMac(hmacKey, nonce, ciphertext)

	payload := make([]byte, 0, 1+nonceSize+len(ciphertext)+macSize)
	payload = append(payload, Version)
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)
	payload = append(payload, mac...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt authenticates and decrypts the given base64 payload.
func Decrypt(payload string, conversationKey []byte) (string, error) {
	plen := len(payload)
	if plen == 0 || payload[0] == '#' {
		return "", ErrUnsupportedVersion
	}
	if plen < 132 || plen > 87472 {
		return "", fmt.Errorf("%w: unexpected length %d", ErrInvalidPayload, plen)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	dlen := len(data)
	if dlen < 99 || dlen > 65603 {
		return "", fmt.Errorf("%w: unexpected length %d", ErrInvalidPayload, dlen)
	}
	if data[0] != Version {
		return "", ErrUnsupportedVersion
	}

	nonce := data[1 : 1+nonceSize]
	ciphertext := data[1+nonceSize : dlen-macSize]
	mac := data[dlen-macSize:]

	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}
	if !hmac.Equal(mac, computeMac(hmacKey, nonce, ciphertext)) {
		return "", ErrInvalidMac
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	padded := make([]byte, len(ciphertext))
	cipher.XORKeyStream(padded, ciphertext)

	return unpad(padded)
}

// CalcPaddedLen returns the size the plaintext is padded to before
// encryption.
func CalcPaddedLen(unpaddedLen int) int {
	if unpaddedLen <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(unpaddedLen-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((unpaddedLen-1)/chunk + 1)
}

func messageKeys(
	conversationKey, nonce []byte,
) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	if len(conversationKey) != 32 {
		return nil, nil, nil, fmt.Errorf("conversation key must be 32 bytes")
	}
	keys := make([]byte, 76)
	r := hkdf.Expand(sha256.New, conversationKey, nonce)
	if _, err := io.ReadFull(r, keys); err != nil {
		return nil, nil, nil, err
	}
	return keys[:32], keys[32:44], keys[44:], nil
}

func computeMac(key, nonce, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(nonce)
	h.Write(ciphertext)
	return h.Sum(nil)
}

func pad(plaintext string) ([]byte, error) {
	size := len(plaintext)
	if size < minPlaintextSize || size > maxPlaintextSize {
		return nil, ErrInvalidPlaintextSize
	}
	padded := make([]byte, 2+CalcPaddedLen(size))
	binary.BigEndian.PutUint16(padded, uint16(size))
	copy(padded[2:], plaintext)
	return padded, nil
}

func unpad(padded []byte) (string, error) {
	if len(padded) < 2 {
		return "", ErrInvalidPadding
	}
	size := int(binary.BigEndian.Uint16(padded))
	if size < minPlaintextSize || len(padded) != 2+CalcPaddedLen(size) {
		return "", ErrInvalidPadding
	}
	return string(padded[2 : 2+size]), nil
}
