// Package nip04 implements the legacy nostr payload encryption: AES-256-CBC
// keyed with the x coordinate of the ECDH shared point. It is kept to read
// records written before NIP-44.
package nip04

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

const ivSeparator = "?iv="

var (
	ErrInvalidPayload = fmt.Errorf("invalid payload")
	ErrInvalidPadding = fmt.Errorf("invalid padding")
)

// SharedKey returns the key shared between the owner of the private key and
// the owner of the public key.
func SharedKey(key *btcec.PrivateKey, pubkey *btcec.PublicKey) []byte {
	return btcec.GenerateSharedSecret(key, pubkey)
}

// IsPayload returns whether the content looks like a NIP-04 payload.
func IsPayload(content string) bool {
	return strings.Contains(content, ivSeparator)
}

// Encrypt returns the payload "<base64 ciphertext>?iv=<base64 iv>".
func Encrypt(plaintext string, sharedKey []byte) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	block, err := aes.NewCipher(sharedKey)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext) + ivSeparator +
		base64.StdEncoding.EncodeToString(iv), nil
}

func Decrypt(payload string, sharedKey []byte) (string, error) {
	parts := strings.Split(payload, ivSeparator)
	if len(parts) != 2 {
		return "", ErrInvalidPayload
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	if len(iv) != aes.BlockSize || len(ciphertext) == 0 ||
		len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrInvalidPayload
	}

	block, err := aes.NewCipher(sharedKey)
	if err != nil {
		return "", err
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func pkcs7Pad(buf []byte, blockSize int) []byte {
	n := blockSize - len(buf)%blockSize
	return append(buf, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(buf []byte, blockSize int) ([]byte, error) {
	n := int(buf[len(buf)-1])
	if n == 0 || n > blockSize || n > len(buf) {
		return nil, ErrInvalidPadding
	}
	for _, b := range buf[len(buf)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return buf[:len(buf)-n], nil
}
