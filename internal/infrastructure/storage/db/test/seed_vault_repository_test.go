package db_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/domain"
	mnemonic_store "github.com/vulpemventures/cashew/internal/infrastructure/mnemonic-store/in-memory"
)

var (
	mnemonic = []string{
		"leave", "dice", "fine", "decrease", "dune", "ribbon", "ocean", "earn",
		"lunar", "account", "silver", "admit", "cheap", "fringe", "disorder", "trade",
		"because", "trade", "steak", "clock", "grace", "video", "jacket", "equal",
	}
	password    = "password"
	newPassword = "newPassword"
)

func TestSeedVaultRepository(t *testing.T) {
	cypher := newMockedMnemonicCypher(
		strings.Join(mnemonic, " "), password, newPassword,
	)

	for name, rm := range newRepoManagers(t) {
		created := make(chan domain.VaultEvent, 10)
		updated := make(chan domain.VaultEvent, 10)
		rm.RegisterHandlerForVaultEvent(
			domain.VaultCreated, func(e domain.VaultEvent) { created <- e },
		)
		rm.RegisterHandlerForVaultEvent(
			domain.VaultUpdated, func(e domain.VaultEvent) { updated <- e },
		)
		repo := rm.SeedVaultRepository()

		t.Run(name, func(t *testing.T) {
			t.Run("create_vault", func(t *testing.T) {
				vault, err := repo.GetVault(ctx)
				require.ErrorIs(t, err, domain.ErrVaultNotFound)
				require.Nil(t, vault)

				err = repo.UpdateVault(
					ctx, func(v *domain.SeedVault) (*domain.SeedVault, error) {
						return v, nil
					},
				)
				require.ErrorIs(t, err, domain.ErrVaultNotFound)

				v, err := domain.NewSeedVault(mnemonic, password, cypher)
				require.NoError(t, err)

				err = repo.CreateVault(ctx, v)
				require.NoError(t, err)

				err = repo.CreateVault(ctx, v)
				require.ErrorIs(t, err, domain.ErrVaultAlreadyExists)

				vault, err = repo.GetVault(ctx)
				require.NoError(t, err)
				require.Exactly(t, *v, *vault)
				require.True(t, vault.IsInitialized())

				event := waitForEvent(t, created)
				require.Equal(t, domain.VaultCreated, event.EventType)
			})

			t.Run("update_vault", func(t *testing.T) {
				store := mnemonic_store.NewInMemoryMnemonicStore()
				before, err := repo.GetVault(ctx)
				require.NoError(t, err)

				err = repo.UpdateVault(
					ctx, func(v *domain.SeedVault) (*domain.SeedVault, error) {
						if err := v.ChangePassword(
							store, cypher, password, newPassword,
						); err != nil {
							return nil, err
						}
						return v, nil
					},
				)
				require.NoError(t, err)

				event := waitForEvent(t, updated)
				require.Equal(t, domain.VaultUpdated, event.EventType)

				vault, err := repo.GetVault(ctx)
				require.NoError(t, err)
				require.NotEqual(t, before.EncryptedMnemonic, vault.EncryptedMnemonic)
				require.Equal(t, before.CreatedAt, vault.CreatedAt)

				err = repo.UpdateVault(
					ctx, func(v *domain.SeedVault) (*domain.SeedVault, error) {
						return nil, errSomethingWentWrong
					},
				)
				require.EqualError(t, err, errSomethingWentWrong.Error())

				err = vault.Unlock(store, cypher, password)
				require.ErrorIs(t, err, domain.ErrVaultInvalidPassword)

				err = vault.Unlock(store, cypher, newPassword)
				require.NoError(t, err)
				require.Equal(t, mnemonic, store.Get())
			})
		})
	}
}
