package application_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/application"
	"github.com/vulpemventures/cashew/internal/core/domain"
	mnemonic_store "github.com/vulpemventures/cashew/internal/infrastructure/mnemonic-store/in-memory"
	"github.com/vulpemventures/cashew/internal/infrastructure/storage/db/inmemory"
)

func TestSeedManager(t *testing.T) {
	testMnemonicUtils(t)

	testSeedVault(t)
}

func testMnemonicUtils(t *testing.T) {
	svc := application.NewSeedManager(
		inmemory.NewRepoManager(), mnemonic_store.NewInMemoryMnemonicStore(),
		newMockedMnemonicCypher(),
	)

	t.Run("generate_mnemonic", func(t *testing.T) {
		for _, count := range []int{12, 24} {
			words, err := svc.GenerateMnemonic(count)
			require.NoError(t, err)
			require.Len(t, words, count)
			require.True(t, svc.ValidateMnemonic(words))
		}

		words, err := svc.GenerateMnemonic(15)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
		require.Nil(t, words)
	})

	t.Run("mnemonic_conversions", func(t *testing.T) {
		seed, err := svc.MnemonicToSeed(mnemonic)
		require.NoError(t, err)
		require.Equal(
			t,
			"5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4",
			hex.EncodeToString(seed),
		)

		entropy, err := svc.MnemonicToEntropy(mnemonic)
		require.NoError(t, err)
		require.Len(t, entropy, 16)

		words, err := svc.EntropyToMnemonic(entropy)
		require.NoError(t, err)
		require.Equal(t, mnemonic, words)

		invalid := append([]string{}, mnemonic...)
		invalid[11] = "abandon"
		require.False(t, svc.ValidateMnemonic(invalid))
		_, err = svc.MnemonicToSeed(invalid)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("seed_from_hex", func(t *testing.T) {
		seed, err := svc.SeedFromHex(hex.EncodeToString(aliceSeed))
		require.NoError(t, err)
		require.Equal(t, aliceSeed, seed)

		working, err := svc.WorkingSeed(seed)
		require.NoError(t, err)
		require.Len(t, working, 64)

		again, err := svc.WorkingSeed(working)
		require.NoError(t, err)
		require.Equal(t, working, again)

		for _, str := range []string{"", "00", "zz" + hex.EncodeToString(aliceSeed)[2:]} {
			_, err := svc.SeedFromHex(str)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		}
	})
}

func testSeedVault(t *testing.T) {
	t.Run("create_unlock_lock", func(t *testing.T) {
		svc := application.NewSeedManager(
			inmemory.NewRepoManager(), mnemonic_store.NewInMemoryMnemonicStore(),
			newMockedMnemonicCypher(),
		)

		status := svc.GetStatus(ctx)
		require.False(t, status.IsInitialized)
		require.False(t, status.IsUnlocked)

		seed, err := svc.Seed(ctx)
		require.ErrorIs(t, err, domain.ErrVaultNotFound)
		require.Nil(t, seed)

		err = svc.CreateWallet(ctx, mnemonic, password)
		require.NoError(t, err)

		err = svc.CreateWallet(ctx, mnemonic, password)
		require.ErrorIs(t, err, domain.ErrVaultAlreadyExists)

		status = svc.GetStatus(ctx)
		require.True(t, status.IsInitialized)
		require.False(t, status.IsUnlocked)

		_, err = svc.Mnemonic(ctx)
		require.ErrorIs(t, err, domain.ErrVaultLocked)

		err = svc.Unlock(ctx, "wrongpassword")
		require.ErrorIs(t, err, domain.ErrVaultInvalidPassword)

		err = svc.Unlock(ctx, password)
		require.NoError(t, err)
		require.True(t, svc.IsUnlocked(ctx))

		words, err := svc.Mnemonic(ctx)
		require.NoError(t, err)
		require.Equal(t, mnemonic, words)

		seed, err = svc.Seed(ctx)
		require.NoError(t, err)
		require.Len(t, seed, 64)

		err = svc.Lock(ctx, "wrongpassword")
		require.ErrorIs(t, err, domain.ErrVaultInvalidPassword)

		err = svc.Lock(ctx, password)
		require.NoError(t, err)
		require.False(t, svc.IsUnlocked(ctx))
	})

	t.Run("change_password", func(t *testing.T) {
		svc := application.NewSeedManager(
			inmemory.NewRepoManager(), mnemonic_store.NewInMemoryMnemonicStore(),
			newMockedMnemonicCypher(),
		)
		require.NoError(t, svc.CreateWallet(ctx, mnemonic, password))

		require.NoError(t, svc.Unlock(ctx, password))
		err := svc.ChangePassword(ctx, password, newPassword)
		require.ErrorIs(t, err, domain.ErrVaultUnlocked)
		require.NoError(t, svc.Lock(ctx, password))

		err = svc.ChangePassword(ctx, "wrongpassword", newPassword)
		require.ErrorIs(t, err, domain.ErrVaultInvalidPassword)

		err = svc.ChangePassword(ctx, password, newPassword)
		require.NoError(t, err)

		err = svc.Unlock(ctx, password)
		require.ErrorIs(t, err, domain.ErrVaultInvalidPassword)

		err = svc.Unlock(ctx, newPassword)
		require.NoError(t, err)
	})

	t.Run("create_with_invalid_mnemonic", func(t *testing.T) {
		svc := application.NewSeedManager(
			inmemory.NewRepoManager(), mnemonic_store.NewInMemoryMnemonicStore(),
			newMockedMnemonicCypher(),
		)
		err := svc.CreateWallet(ctx, mnemonic[:3], password)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
		require.False(t, svc.IsInitialized(ctx))
	})
}
