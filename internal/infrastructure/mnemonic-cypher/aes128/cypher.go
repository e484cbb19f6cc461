package cypher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/vulpemventures/cashew/internal/core/domain"
	"golang.org/x/crypto/scrypt"
)

const (
	// 2^20 = 1048576 recommended length for key-stretching
	// check the doc for other recommended values:
	// https://godoc.org/golang.org/x/crypto/scrypt
	DefaultScryptN = 1048576

	saltLen = 32
	keyLen  = 16
)

var (
	ErrNullPlainText     = fmt.Errorf("plaintext must not be null")
	ErrNullPassphrase    = fmt.Errorf("passphrase must not be null")
	ErrNullCypherText    = fmt.Errorf("cyphertext must not be null")
	ErrInvalidCypherText = fmt.Errorf("cyphertext is too short")
)

type aes128Cypher struct {
	scryptN int
}

// NewAES128Cypher returns a mnemonic cypher encrypting with AES-128-GCM a
// key stretched from the password with scrypt. A zero scryptN selects the
// default cost.
func NewAES128Cypher(scryptN int) domain.IMnemonicCypher {
	if scryptN <= 0 {
		scryptN = DefaultScryptN
	}
	return &aes128Cypher{scryptN}
}

// Encrypt returns nonce|ciphertext|salt.
func (c *aes128Cypher) Encrypt(mnemonic, password []byte) ([]byte, error) {
	if len(mnemonic) <= 0 {
		return nil, ErrNullPlainText
	}
	if len(password) <= 0 {
		return nil, ErrNullPassphrase
	}

	key, salt, err := c.deriveKey(password, nil)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, mnemonic, nil)
	return append(ciphertext, salt...), nil
}

func (c *aes128Cypher) Decrypt(encryptedMnemonic, password []byte) ([]byte, error) {
	if len(encryptedMnemonic) <= 0 {
		return nil, ErrNullCypherText
	}
	if len(password) <= 0 {
		return nil, ErrNullPassphrase
	}

	data := make([]byte, len(encryptedMnemonic))
	copy(data, encryptedMnemonic)
	if len(data) <= saltLen {
		return nil, ErrInvalidCypherText
	}
	salt, data := data[len(data)-saltLen:], data[:len(data)-saltLen]

	key, _, err := c.deriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, ErrInvalidCypherText
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, text, nil)
}

// deriveKey derives the AES key from the password and returns it along with
// the salt, randomly generated if not given.
func (c *aes128Cypher) deriveKey(password, salt []byte) ([]byte, []byte, error) {
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	key, err := scrypt.Key(password, salt, c.scryptN, 8, 1, keyLen)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}
