package application_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/application"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/infrastructure/mint/simulator"
	"github.com/vulpemventures/cashew/internal/infrastructure/storage/db/inmemory"
)

func TestMultiMintWallet(t *testing.T) {
	testNotInitialized(t)

	testSendAndReceive(t)

	testPrepareAndConfirmSend(t)

	testSendWithFees(t)

	testBalancesAndTransactions(t)
}

func testNotInitialized(t *testing.T) {
	t.Run("not_initialized", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		tw := newTestWallet(t, network, nil)
		w := tw.wallet

		require.False(t, w.IsInitialized())

		_, err := w.AddMint(ctx, mintA)
		require.ErrorIs(t, err, domain.ErrNotInitialized)

		_, err = w.Send(ctx, mintA, 1, "")
		require.ErrorIs(t, err, domain.ErrNotInitialized)

		_, err = w.Receive(ctx, "cashuAbad")
		require.ErrorIs(t, err, domain.ErrNotInitialized)

		_, err = w.GetAllBalances(ctx)
		require.ErrorIs(t, err, domain.ErrNotInitialized)

		_, err = w.CreateMintQuote(ctx, mintA, 100)
		require.ErrorIs(t, err, domain.ErrNotInitialized)

		_, err = w.PayInvoice(ctx, mintA, "lnbc1", 0)
		require.ErrorIs(t, err, domain.ErrNotInitialized)

		require.NoError(t, w.Init(ctx, aliceSeed))
		require.True(t, w.IsInitialized())

		err = w.Init(ctx, aliceSeed)
		require.ErrorIs(t, err, domain.ErrState)
	})

	t.Run("init_with_invalid_seed", func(t *testing.T) {
		network := newNetwork(t, nil)
		tw := newTestWallet(t, network, nil)

		err := tw.wallet.Init(ctx, aliceSeed[:16])
		require.ErrorIs(t, err, domain.ErrInvalidInput)
		require.False(t, tw.wallet.IsInitialized())
	})
}

func testSendAndReceive(t *testing.T) {
	t.Run("send_and_receive", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		alice := newTestWallet(t, network, aliceSeed)
		bob := newTestWallet(t, network, bobSeed)

		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)
		fund(t, network, alice.wallet, mintA, 1000)

		token, err := alice.wallet.Send(ctx, mintA, 400, "lunch")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		decoded, err := domain.DecodeToken(token)
		require.NoError(t, err)
		require.Equal(t, uint64(400), decoded.Amount())
		require.Equal(t, "lunch", decoded.Memo)

		balances, err := alice.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(600), balances[satKey(mintA)])

		hasMint, err := bob.wallet.HasMint(mintA)
		require.NoError(t, err)
		require.False(t, hasMint)

		amount, err := bob.wallet.Receive(ctx, token)
		require.NoError(t, err)
		require.Equal(t, uint64(400), amount)

		hasMint, err = bob.wallet.HasMint(mintA)
		require.NoError(t, err)
		require.True(t, hasMint)

		balances, err = bob.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(400), balances[satKey(mintA)])

		amount, err = bob.wallet.Receive(ctx, token)
		require.ErrorIs(t, err, domain.ErrProtocol)
		require.Zero(t, amount)

		balances, err = bob.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(400), balances[satKey(mintA)])
	})

	t.Run("send_insufficient_balance", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		alice := newTestWallet(t, network, aliceSeed)
		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)
		fund(t, network, alice.wallet, mintA, 100)

		token, err := alice.wallet.Send(ctx, mintA, 101, "")
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
		require.Empty(t, token)

		_, err = alice.wallet.Send(ctx, mintA, 0, "")
		require.ErrorIs(t, err, domain.ErrInvalidAmount)

		_, err = alice.wallet.Send(ctx, mintB, 10, "")
		require.ErrorIs(t, err, domain.ErrWalletNotFound)
	})

	t.Run("send_with_mint_offline", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		alice := newTestWallet(t, network, aliceSeed)
		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)
		fund(t, network, alice.wallet, mintA, 100)

		getMint(t, network, mintA).SetOnline(false)

		token, err := alice.wallet.Send(ctx, mintA, 30, "")
		require.ErrorIs(t, err, domain.ErrNetworkFailure)
		require.Empty(t, token)

		balances, err := alice.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(100), balances[satKey(mintA)])
	})

	t.Run("receive_malformed_token", func(t *testing.T) {
		network := newNetwork(t, nil)
		bob := newTestWallet(t, network, bobSeed)

		_, err := bob.wallet.Receive(ctx, "cashuAnotatoken")
		require.ErrorIs(t, err, domain.ErrInvalidToken)

		mints, err := bob.wallet.ListMints()
		require.NoError(t, err)
		require.Empty(t, mints)
	})

	t.Run("receive_from_unreachable_mint", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		alice := newTestWallet(t, network, aliceSeed)
		bob := newTestWallet(t, network, bobSeed)

		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)
		fund(t, network, alice.wallet, mintA, 64)
		token, err := alice.wallet.Send(ctx, mintA, 64, "")
		require.NoError(t, err)

		getMint(t, network, mintA).SetOnline(false)

		_, err = bob.wallet.Receive(ctx, token)
		require.ErrorIs(t, err, domain.ErrNetworkFailure)

		hasMint, err := bob.wallet.HasMint(mintA)
		require.NoError(t, err)
		require.False(t, hasMint)
	})
}

func testPrepareAndConfirmSend(t *testing.T) {
	t.Run("offline_exact_match", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		alice := newTestWallet(t, network, aliceSeed)
		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)
		fund(t, network, alice.wallet, mintA, 96)

		prepared, err := alice.wallet.PrepareSend(
			ctx, satKey(mintA), 32, application.SendOptions{Offline: true},
		)
		require.NoError(t, err)
		require.False(t, prepared.Swap)
		require.Equal(t, uint64(32), prepared.Proofs.Amount())

		swaps := getMint(t, network, mintA).Calls("swap")
		token, err := alice.wallet.ConfirmSend(ctx, prepared, "")
		require.NoError(t, err)
		require.NotEmpty(t, token)
		require.Equal(t, swaps, getMint(t, network, mintA).Calls("swap"))

		_, err = alice.wallet.ConfirmSend(ctx, prepared, "")
		require.ErrorIs(t, err, domain.ErrStalePreparedSend)

		balances, err := alice.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(64), balances[satKey(mintA)])
	})

	t.Run("cancel_send", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		alice := newTestWallet(t, network, aliceSeed)
		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)
		fund(t, network, alice.wallet, mintA, 100)

		prepared, err := alice.wallet.PrepareSend(
			ctx, satKey(mintA), 30, application.SendOptions{},
		)
		require.NoError(t, err)
		require.True(t, prepared.Swap)
		require.NoError(t, alice.wallet.CancelSend(prepared))

		balances, err := alice.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(100), balances[satKey(mintA)])

		token, err := alice.wallet.ConfirmSend(ctx, prepared, "")
		require.NoError(t, err)
		require.NotEmpty(t, token)
	})

	t.Run("concurrent_confirms", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		alice := newTestWallet(t, network, aliceSeed)
		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)
		fund(t, network, alice.wallet, mintA, 100)

		prepared, err := alice.wallet.PrepareSend(
			ctx, satKey(mintA), 50, application.SendOptions{},
		)
		require.NoError(t, err)

		wg := &sync.WaitGroup{}
		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := alice.wallet.ConfirmSend(ctx, prepared, "")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		failures := 0
		for err := range errs {
			if err != nil {
				require.ErrorIs(t, err, domain.ErrStalePreparedSend)
				failures++
			}
		}
		require.Equal(t, 1, failures)

		balances, err := alice.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(50), balances[satKey(mintA)])
	})
}

func testSendWithFees(t *testing.T) {
	t.Run("send_and_receive_with_input_fees", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{
			mintA: {InputFeePpk: 100},
		})
		alice := newTestWallet(t, network, aliceSeed)
		bob := newTestWallet(t, network, bobSeed)

		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)
		fund(t, network, alice.wallet, mintA, 1000)

		prepared, err := alice.wallet.PrepareSend(
			ctx, satKey(mintA), 100, application.SendOptions{},
		)
		require.NoError(t, err)
		require.Equal(t, uint64(1), prepared.Fee)
		require.Equal(
			t, prepared.Proofs.Amount(), prepared.Amount+prepared.Fee+prepared.Change,
		)

		token, err := alice.wallet.ConfirmSend(ctx, prepared, "")
		require.NoError(t, err)

		balances, err := alice.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1000-100-1), balances[satKey(mintA)])

		decoded, err := domain.DecodeToken(token)
		require.NoError(t, err)
		expectedFee := (uint64(len(decoded.Proofs))*100 + 999) / 1000

		amount, err := bob.wallet.Receive(ctx, token)
		require.NoError(t, err)
		require.Equal(t, 100-expectedFee, amount)
	})
}

func testBalancesAndTransactions(t *testing.T) {
	t.Run("aggregate_wallets", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{
			mintA: {Units: []string{"sat", "usd"}},
			mintB: {},
		})
		alice := newTestWallet(t, network, aliceSeed)

		_, err := alice.wallet.AddMint(ctx, mintA, "sat", "usd")
		require.NoError(t, err)
		_, err = alice.wallet.AddMint(ctx, mintB)
		require.NoError(t, err)

		mints, err := alice.wallet.ListMints()
		require.NoError(t, err)
		require.Equal(t, []domain.WalletKey{
			satKey(mintA), {MintURL: mintA, Unit: "usd"}, satKey(mintB),
		}, mints)

		fund(t, network, alice.wallet, mintA, 300)
		fund(t, network, alice.wallet, mintB, 200)
		_, err = alice.wallet.Send(ctx, mintB, 50, "")
		require.NoError(t, err)

		balances, err := alice.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		require.Len(t, balances, 3)
		require.Equal(t, uint64(300), balances[satKey(mintA)])
		require.Equal(t, uint64(0), balances[domain.WalletKey{MintURL: mintA, Unit: "usd"}])
		require.Equal(t, uint64(150), balances[satKey(mintB)])

		total, err := alice.wallet.GetTotalBalance(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(450), total["sat"])
		require.Equal(t, uint64(0), total["usd"])

		txs, err := alice.wallet.GetAllTransactions(ctx)
		require.NoError(t, err)
		require.Len(t, txs, 3)
		for i := 1; i < len(txs); i++ {
			require.LessOrEqual(t, txs[i-1].Timestamp, txs[i].Timestamp)
		}
		last := txs[len(txs)-1]
		require.Equal(t, domain.TxEcashSend, last.Type)
		require.Equal(t, domain.Outgoing, last.Direction)
		require.Equal(t, uint64(50), last.Amount)
		require.Equal(t, mintB, last.MintURL)
	})

	t.Run("remove_mint", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		repoManager := inmemory.NewRepoManager()
		alice := newTestWalletWithRepoManager(t, network, repoManager, aliceSeed)

		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)
		fund(t, network, alice.wallet, mintA, 100)

		require.NoError(t, alice.wallet.RemoveMint(ctx, mintA))

		hasMint, err := alice.wallet.HasMint(mintA)
		require.NoError(t, err)
		require.False(t, hasMint)

		_, err = repoManager.MintRepository().GetMint(ctx, mintA)
		require.ErrorIs(t, err, domain.ErrMintNotFound)
		proofs, err := repoManager.ProofRepository().GetProofs(ctx, satKey(mintA))
		require.NoError(t, err)
		require.Empty(t, proofs)

		err = alice.wallet.RemoveMint(ctx, mintA)
		require.ErrorIs(t, err, domain.ErrMintNotFound)
	})
}
