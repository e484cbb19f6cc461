package db_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

func TestTransactionRepository(t *testing.T) {
	for name, rm := range newRepoManagers(t) {
		events := make(chan domain.TransactionEvent, 10)
		rm.RegisterHandlerForTxEvent(
			domain.TransactionAdded,
			func(e domain.TransactionEvent) { events <- e },
		)
		repo := rm.TransactionRepository()

		t.Run(name, func(t *testing.T) {
			first := domain.NewTransaction(
				walletKey, domain.Incoming, domain.TxMint, 100, 0, "",
				map[string]string{"quote": randomHex(16)},
			)
			second := domain.NewTransaction(
				walletKey, domain.Outgoing, domain.TxEcashSend, 40, 1, "coffee", nil,
			)
			second.Timestamp = first.Timestamp + 1
			other := domain.NewTransaction(
				usdWalletKey, domain.Incoming, domain.TxEcashReceive, 5, 0, "", nil,
			)

			t.Run("add_transaction", func(t *testing.T) {
				tx, err := repo.GetTransaction(ctx, first.ID)
				require.ErrorIs(t, err, domain.ErrTransactionNotFound)
				require.Nil(t, tx)

				for _, tx := range []*domain.Transaction{second, first, other} {
					done, err := repo.AddTransaction(ctx, tx)
					require.NoError(t, err)
					require.True(t, done)
					waitForEvent(t, events)
				}

				done, err := repo.AddTransaction(ctx, first)
				require.NoError(t, err)
				require.False(t, done)

				tx, err = repo.GetTransaction(ctx, first.ID)
				require.NoError(t, err)
				require.Equal(t, *first, *tx)
			})

			t.Run("get_transactions_for_wallet", func(t *testing.T) {
				txs, err := repo.GetTransactionsForWallet(ctx, walletKey)
				require.NoError(t, err)
				require.Len(t, txs, 2)
				require.Equal(t, first.ID, txs[0].ID)
				require.Equal(t, second.ID, txs[1].ID)
				require.Equal(t, "coffee", txs[1].Memo)
				require.Equal(t, uint64(1), txs[1].Fee)

				txs, err = repo.GetTransactionsForWallet(ctx, usdWalletKey)
				require.NoError(t, err)
				require.Len(t, txs, 1)

				txs, err = repo.GetTransactionsForWallet(
					ctx, domain.WalletKey{MintURL: otherMintURL, Unit: "sat"},
				)
				require.NoError(t, err)
				require.Empty(t, txs)
			})
		})
	}
}
