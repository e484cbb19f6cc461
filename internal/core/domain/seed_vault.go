package domain

import (
	"fmt"
	"strings"
	"time"
)

var (
	ErrVaultMissingMnemonic = fmt.Errorf("%w: missing mnemonic", ErrInvalidInput)
	ErrVaultMissingPassword = fmt.Errorf("%w: missing password", ErrInvalidInput)
	ErrVaultInvalidPassword = fmt.Errorf("%w: wrong password", ErrInvalidInput)
	ErrVaultLocked          = fmt.Errorf("%w: seed vault is locked", ErrState)
	ErrVaultUnlocked        = fmt.Errorf("%w: seed vault must be locked", ErrState)
)

// SeedVault holds the mnemonic every wallet instance derives its secrets
// from, encrypted with the user password. The plaintext lives in the given
// store only while the vault is unlocked.
//
// The password is never persisted in any form: the cypher is expected to be
// authenticated so that decrypting with a wrong password fails.
type SeedVault struct {
	EncryptedMnemonic []byte
	CreatedAt         int64
	UpdatedAt         int64
}

// NewSeedVault encrypts the mnemonic with the password and returns a new
// locked vault.
func NewSeedVault(
	mnemonic []string, password string, cypher IMnemonicCypher,
) (*SeedVault, error) {
	if len(mnemonic) <= 0 {
		return nil, ErrVaultMissingMnemonic
	}
	if len(password) <= 0 {
		return nil, ErrVaultMissingPassword
	}

	encryptedMnemonic, err := cypher.Encrypt(
		[]byte(strings.Join(mnemonic, " ")), []byte(password),
	)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	return &SeedVault{
		EncryptedMnemonic: encryptedMnemonic,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (v *SeedVault) IsInitialized() bool {
	return len(v.EncryptedMnemonic) > 0
}

// IsLocked returns whether the plaintext mnemonic is missing from the store.
func (v *SeedVault) IsLocked(store IMnemonicStore) bool {
	return !v.IsInitialized() || !store.IsSet()
}

func (v *SeedVault) Mnemonic(store IMnemonicStore) ([]string, error) {
	if v.IsLocked(store) {
		return nil, ErrVaultLocked
	}
	return store.Get(), nil
}

// Unlock decrypts the mnemonic and sets it in the store. Unlocking an
// unlocked vault is a no-op.
func (v *SeedVault) Unlock(
	store IMnemonicStore, cypher IMnemonicCypher, password string,
) error {
	if !v.IsLocked(store) {
		return nil
	}
	mnemonic, err := v.decrypt(cypher, password)
	if err != nil {
		return err
	}
	store.Set(string(mnemonic))
	return nil
}

// Lock wipes the plaintext mnemonic from the store once the password is
// verified.
func (v *SeedVault) Lock(
	store IMnemonicStore, cypher IMnemonicCypher, password string,
) error {
	if v.IsLocked(store) {
		return nil
	}
	if _, err := v.decrypt(cypher, password); err != nil {
		return err
	}
	store.Unset()
	return nil
}

// ChangePassword re-encrypts the mnemonic with the new password. The vault
// must be locked.
func (v *SeedVault) ChangePassword(
	store IMnemonicStore, cypher IMnemonicCypher,
	currentPassword, newPassword string,
) error {
	if !v.IsLocked(store) {
		return ErrVaultUnlocked
	}
	if len(newPassword) <= 0 {
		return ErrVaultMissingPassword
	}

	mnemonic, err := v.decrypt(cypher, currentPassword)
	if err != nil {
		return err
	}
	encryptedMnemonic, err := cypher.Encrypt(mnemonic, []byte(newPassword))
	if err != nil {
		return err
	}

	v.EncryptedMnemonic = encryptedMnemonic
	v.UpdatedAt = time.Now().Unix()
	return nil
}

func (v *SeedVault) decrypt(cypher IMnemonicCypher, password string) ([]byte, error) {
	if len(password) <= 0 {
		return nil, ErrVaultMissingPassword
	}
	mnemonic, err := cypher.Decrypt(v.EncryptedMnemonic, []byte(password))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVaultInvalidPassword, err)
	}
	return mnemonic, nil
}

// IMnemonicStore holds the plaintext mnemonic of an unlocked vault.
type IMnemonicStore interface {
	Set(mnemonic string)
	Unset()
	IsSet() bool
	Get() []string
}

// IMnemonicCypher encrypts and decrypts the mnemonic with the password.
// Decrypt must fail if the password doesn't match the one used to encrypt.
type IMnemonicCypher interface {
	Encrypt(mnemonic, password []byte) ([]byte, error)
	Decrypt(encryptedMnemonic, password []byte) ([]byte, error)
}
