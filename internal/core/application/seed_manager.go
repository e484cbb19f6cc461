package application

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/pkg/wallet"
	"github.com/vulpemventures/cashew/pkg/wallet/mnemonic"
)

// SeedManager is responsible for the seed every wallet instance derives its
// secrets from:
//   - Generate, validate and convert BIP-39 mnemonics.
//   - Decode seeds in hex format and canonicalize them into working seeds.
//   - Keep the mnemonic in a password protected vault, that can be unlocked
//     to get the seed, locked again, or re-encrypted with a new password.
//
// The plaintext mnemonic is never persisted, it lives in the injected store
// while the vault is unlocked.
type SeedManager struct {
	repoManager ports.RepoManager
	store       domain.IMnemonicStore
	cypher      domain.IMnemonicCypher

	log func(format string, a ...interface{})
}

func NewSeedManager(
	repoManager ports.RepoManager,
	store domain.IMnemonicStore, cypher domain.IMnemonicCypher,
) *SeedManager {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("seed manager: %s", format)
		log.Debugf(format, a...)
	}
	return &SeedManager{repoManager, store, cypher, logFn}
}

// GenerateMnemonic returns a new random mnemonic of 12 or 24 words.
func (sm *SeedManager) GenerateMnemonic(wordCount int) ([]string, error) {
	if wordCount != 12 && wordCount != 24 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, mnemonic.ErrInvalidWordCount)
	}
	return mnemonic.NewMnemonic(mnemonic.NewMnemonicArgs{
		WordCount: uint32(wordCount),
	})
}

func (sm *SeedManager) ValidateMnemonic(words []string) bool {
	return mnemonic.IsValid(words)
}

// MnemonicToSeed returns the 64-byte BIP-39 seed of the mnemonic.
func (sm *SeedManager) MnemonicToSeed(words []string) ([]byte, error) {
	seed, err := mnemonic.ToSeed(words)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}
	return seed, nil
}

// MnemonicToEntropy returns the 16 or 32 bytes encoded by the mnemonic.
func (sm *SeedManager) MnemonicToEntropy(words []string) ([]byte, error) {
	entropy, err := mnemonic.ToEntropy(words)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}
	return entropy, nil
}

func (sm *SeedManager) EntropyToMnemonic(entropy []byte) ([]string, error) {
	words, err := mnemonic.FromEntropy(entropy)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}
	return words, nil
}

// SeedFromHex decodes a 32 or 64 byte seed from its 64 or 128 chars hex
// representation.
func (sm *SeedManager) SeedFromHex(str string) ([]byte, error) {
	seed, err := wallet.SeedFromHex(str)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}
	return seed, nil
}

// WorkingSeed returns the canonical 64-byte seed for a 32 or 64 byte one.
func (sm *SeedManager) WorkingSeed(seed []byte) ([]byte, error) {
	working, err := wallet.WorkingSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}
	return working, nil
}

// CreateWallet stores the given mnemonic encrypted with the password. The
// vault is left locked.
func (sm *SeedManager) CreateWallet(
	ctx context.Context, words []string, password string,
) error {
	if !mnemonic.IsValid(words) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, mnemonic.ErrInvalidMnemonic)
	}
	if sm.IsInitialized(ctx) {
		return domain.ErrVaultAlreadyExists
	}

	vault, err := domain.NewSeedVault(words, password, sm.cypher)
	if err != nil {
		return err
	}
	if err := sm.repoManager.SeedVaultRepository().CreateVault(ctx, vault); err != nil {
		return err
	}
	sm.log("seed vault created")
	return nil
}

// Unlock decrypts the mnemonic with the password.
func (sm *SeedManager) Unlock(ctx context.Context, password string) error {
	vault, err := sm.getVault(ctx)
	if err != nil {
		return err
	}
	if err := vault.Unlock(sm.store, sm.cypher, password); err != nil {
		return err
	}
	sm.log("seed vault unlocked")
	return nil
}

// Lock wipes the plaintext mnemonic.
func (sm *SeedManager) Lock(ctx context.Context, password string) error {
	vault, err := sm.getVault(ctx)
	if err != nil {
		return err
	}
	if err := vault.Lock(sm.store, sm.cypher, password); err != nil {
		return err
	}
	sm.log("seed vault locked")
	return nil
}

// ChangePassword re-encrypts the mnemonic with a new password. The vault must
// be locked.
func (sm *SeedManager) ChangePassword(
	ctx context.Context, currentPassword, newPassword string,
) error {
	if err := sm.repoManager.SeedVaultRepository().UpdateVault(
		ctx, func(v *domain.SeedVault) (*domain.SeedVault, error) {
			if err := v.ChangePassword(
				sm.store, sm.cypher, currentPassword, newPassword,
			); err != nil {
				return nil, err
			}
			return v, nil
		},
	); err != nil {
		return err
	}
	sm.log("seed vault password changed")
	return nil
}

// Mnemonic returns the plaintext mnemonic of the unlocked vault.
func (sm *SeedManager) Mnemonic(ctx context.Context) ([]string, error) {
	vault, err := sm.getVault(ctx)
	if err != nil {
		return nil, err
	}
	return vault.Mnemonic(sm.store)
}

// Seed returns the BIP-39 seed of the unlocked vault.
func (sm *SeedManager) Seed(ctx context.Context) ([]byte, error) {
	words, err := sm.Mnemonic(ctx)
	if err != nil {
		return nil, err
	}
	return sm.MnemonicToSeed(words)
}

func (sm *SeedManager) IsInitialized(ctx context.Context) bool {
	vault, err := sm.getVault(ctx)
	return err == nil && vault.IsInitialized()
}

func (sm *SeedManager) IsUnlocked(ctx context.Context) bool {
	vault, err := sm.getVault(ctx)
	return err == nil && !vault.IsLocked(sm.store)
}

func (sm *SeedManager) GetStatus(ctx context.Context) WalletStatus {
	return WalletStatus{
		IsInitialized: sm.IsInitialized(ctx),
		IsUnlocked:    sm.IsUnlocked(ctx),
	}
}

func (sm *SeedManager) getVault(ctx context.Context) (*domain.SeedVault, error) {
	return sm.repoManager.SeedVaultRepository().GetVault(ctx)
}
