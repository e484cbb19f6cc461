package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/infrastructure/mint/simulator"
)

func TestMintQuotes(t *testing.T) {
	t.Run("mint_lifecycle", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		alice := newTestWallet(t, network, aliceSeed)
		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)

		quote, err := alice.wallet.CreateMintQuote(ctx, mintA, 500)
		require.NoError(t, err)
		require.NotEmpty(t, quote.ID)
		require.NotEmpty(t, quote.Request)
		require.Equal(t, domain.MintQuoteUnpaid, quote.State)

		amount, err := alice.wallet.RedeemMintQuote(ctx, quote.ID)
		require.ErrorIs(t, err, domain.ErrQuoteNotPaid)
		require.Zero(t, amount)

		quote, err = alice.wallet.CheckMintQuote(ctx, quote.ID)
		require.NoError(t, err)
		require.Equal(t, domain.MintQuoteUnpaid, quote.State)

		require.NoError(t, getMint(t, network, mintA).PayMintQuote(quote.ID))

		quote, err = alice.wallet.CheckMintQuote(ctx, quote.ID)
		require.NoError(t, err)
		require.Equal(t, domain.MintQuotePaid, quote.State)

		amount, err = alice.wallet.RedeemMintQuote(ctx, quote.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(500), amount)

		amount, err = alice.wallet.RedeemMintQuote(ctx, quote.ID)
		require.NoError(t, err)
		require.Zero(t, amount)
		require.Equal(t, 1, getMint(t, network, mintA).Calls("mint"))

		quote, err = alice.wallet.CheckMintQuote(ctx, quote.ID)
		require.NoError(t, err)
		require.True(t, quote.IsIssued())

		balances, err := alice.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(500), balances[satKey(mintA)])

		txs, err := alice.wallet.GetAllTransactions(ctx)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		require.Equal(t, domain.TxMint, txs[0].Type)
		require.Equal(t, domain.Incoming, txs[0].Direction)
	})

	t.Run("invalid_requests", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		alice := newTestWallet(t, network, aliceSeed)
		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)

		quote, err := alice.wallet.CreateMintQuote(ctx, mintA, 0)
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
		require.Nil(t, quote)

		quote, err = alice.wallet.CreateMintQuote(ctx, mintB, 100)
		require.ErrorIs(t, err, domain.ErrWalletNotFound)
		require.Nil(t, quote)

		_, err = alice.wallet.RedeemMintQuote(ctx, "unknown")
		require.ErrorIs(t, err, domain.ErrQuoteNotFound)
	})

	t.Run("mint_offline", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: {}})
		alice := newTestWallet(t, network, aliceSeed)
		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)

		quote, err := alice.wallet.CreateMintQuote(ctx, mintA, 100)
		require.NoError(t, err)
		require.NoError(t, getMint(t, network, mintA).PayMintQuote(quote.ID))

		getMint(t, network, mintA).SetOnline(false)
		_, err = alice.wallet.RedeemMintQuote(ctx, quote.ID)
		require.ErrorIs(t, err, domain.ErrNetworkFailure)

		getMint(t, network, mintA).SetOnline(true)
		amount, err := alice.wallet.RedeemMintQuote(ctx, quote.ID)
		require.NoError(t, err)
		require.Equal(t, uint64(100), amount)
	})

	t.Run("watch_redeems_paid_quotes", func(t *testing.T) {
		network := newNetwork(t, map[string]simulator.MintConfig{
			mintA: {AutoPay: true},
		})
		alice := newTestWallet(t, network, aliceSeed)
		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)

		_, err = alice.wallet.CreateMintQuote(ctx, mintA, 64)
		require.NoError(t, err)
		_, err = alice.wallet.CreateMintQuote(ctx, mintA, 16)
		require.NoError(t, err)

		watchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			done <- alice.wallet.Watch(watchCtx, 50*time.Millisecond)
		}()

		require.Eventually(t, func() bool {
			balances, err := alice.wallet.GetAllBalances(ctx)
			return err == nil && balances[satKey(mintA)] == 80
		}, 4*time.Second, 50*time.Millisecond)

		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
	})
}

func TestMeltQuotes(t *testing.T) {
	newFundedWallet := func(
		t *testing.T, cfg simulator.MintConfig,
	) (*simulator.Network, *testWallet) {
		network := newNetwork(t, map[string]simulator.MintConfig{mintA: cfg})
		alice := newTestWallet(t, network, aliceSeed)
		_, err := alice.wallet.AddMint(ctx, mintA)
		require.NoError(t, err)
		fund(t, network, alice.wallet, mintA, 1000)
		return network, alice
	}
	balance := func(t *testing.T, w *testWallet) uint64 {
		balances, err := w.wallet.GetAllBalances(ctx)
		require.NoError(t, err)
		return balances[satKey(mintA)]
	}

	t.Run("pay_invoice_with_change", func(t *testing.T) {
		network, alice := newFundedWallet(t, simulator.MintConfig{
			FeeReserve: 10, LightningFee: 2,
		})
		invoice, err := getMint(t, network, mintA).CreateInvoice(100, "coffee")
		require.NoError(t, err)

		res, err := alice.wallet.PayInvoice(ctx, mintA, invoice, 0)
		require.NoError(t, err)
		require.Equal(t, domain.MeltQuotePaid, res.State)
		require.Equal(t, uint64(100), res.Amount)
		require.Equal(t, uint64(2), res.Fee)
		require.NotEmpty(t, res.Preimage)
		require.NotZero(t, res.Change)
		require.Equal(t, uint64(898), balance(t, alice))

		quote, err := alice.wallet.CheckMeltQuote(ctx, res.QuoteID)
		require.NoError(t, err)
		require.Equal(t, domain.MeltQuotePaid, quote.State)
		require.Equal(t, uint64(2), quote.FeePaid)

		txs, err := alice.wallet.GetAllTransactions(ctx)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		require.Equal(t, domain.TxMelt, txs[1].Type)
		require.Equal(t, domain.Outgoing, txs[1].Direction)
		require.Equal(t, uint64(100), txs[1].Amount)
		require.Equal(t, uint64(2), txs[1].Fee)
	})

	t.Run("pay_invoice_rejected", func(t *testing.T) {
		network, alice := newFundedWallet(t, simulator.MintConfig{FeeReserve: 10})
		mint := getMint(t, network, mintA)

		invoice, err := mint.CreateInvoice(100, "coffee")
		require.NoError(t, err)
		res, err := alice.wallet.PayInvoice(ctx, mintA, invoice, 5)
		require.ErrorIs(t, err, domain.ErrFeeTooHigh)
		require.Nil(t, res)

		noAmount, err := mint.CreateInvoice(0, "donation")
		require.NoError(t, err)
		res, err = alice.wallet.PayInvoice(ctx, mintA, noAmount, 0)
		require.ErrorIs(t, err, domain.ErrInvoiceMissingAmount)
		require.Nil(t, res)

		res, err = alice.wallet.PayInvoice(ctx, mintA, "lnbc1notaninvoice", 0)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
		require.Nil(t, res)

		tooLarge, err := mint.CreateInvoice(5000, "car")
		require.NoError(t, err)
		res, err = alice.wallet.PayInvoice(ctx, mintA, tooLarge, 0)
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
		require.Nil(t, res)

		require.Zero(t, mint.Calls("melt"))
		require.Equal(t, uint64(1000), balance(t, alice))
	})

	t.Run("failed_payment_restores_proofs", func(t *testing.T) {
		network, alice := newFundedWallet(t, simulator.MintConfig{FeeReserve: 10})
		mint := getMint(t, network, mintA)
		mint.SetMeltOutcome(simulator.MeltFails)

		invoice, err := mint.CreateInvoice(100, "coffee")
		require.NoError(t, err)
		res, err := alice.wallet.PayInvoice(ctx, mintA, invoice, 0)
		require.ErrorIs(t, err, domain.ErrProtocol)
		require.Nil(t, res)
		require.Equal(t, uint64(1000), balance(t, alice))

		pending, err := alice.repoManager.ProofRepository().GetPendingProofs(
			ctx, satKey(mintA),
		)
		require.NoError(t, err)
		require.Empty(t, pending)
	})

	t.Run("pending_payment_settles_paid", func(t *testing.T) {
		network, alice := newFundedWallet(t, simulator.MintConfig{FeeReserve: 10})
		mint := getMint(t, network, mintA)
		mint.SetMeltOutcome(simulator.MeltPending)

		invoice, err := mint.CreateInvoice(100, "coffee")
		require.NoError(t, err)
		res, err := alice.wallet.PayInvoice(ctx, mintA, invoice, 0)
		require.NoError(t, err)
		require.Equal(t, domain.MeltQuotePending, res.State)
		require.Equal(t, uint64(488), balance(t, alice))

		quote, err := alice.wallet.CheckMeltQuote(ctx, res.QuoteID)
		require.NoError(t, err)
		require.Equal(t, domain.MeltQuotePending, quote.State)
		require.Len(t, quote.PendingSecrets, 1)

		require.NoError(t, mint.SettleMelt(res.QuoteID, true))

		quote, err = alice.wallet.CheckMeltQuote(ctx, res.QuoteID)
		require.NoError(t, err)
		require.Equal(t, domain.MeltQuotePaid, quote.State)
		require.Empty(t, quote.PendingSecrets)
		require.NotEmpty(t, quote.Preimage)
		require.Equal(t, uint64(488), balance(t, alice))

		pending, err := alice.repoManager.ProofRepository().GetPendingProofs(
			ctx, satKey(mintA),
		)
		require.NoError(t, err)
		require.Empty(t, pending)
	})

	t.Run("pending_payment_settles_failed", func(t *testing.T) {
		network, alice := newFundedWallet(t, simulator.MintConfig{FeeReserve: 10})
		mint := getMint(t, network, mintA)
		mint.SetMeltOutcome(simulator.MeltPending)

		invoice, err := mint.CreateInvoice(100, "coffee")
		require.NoError(t, err)
		res, err := alice.wallet.PayInvoice(ctx, mintA, invoice, 0)
		require.NoError(t, err)
		require.Equal(t, domain.MeltQuotePending, res.State)

		require.NoError(t, mint.SettleMelt(res.QuoteID, false))

		quote, err := alice.wallet.CheckMeltQuote(ctx, res.QuoteID)
		require.NoError(t, err)
		require.Equal(t, domain.MeltQuoteFailed, quote.State)
		require.Equal(t, uint64(1000), balance(t, alice))

		txs, err := alice.wallet.GetAllTransactions(ctx)
		require.NoError(t, err)
		require.Len(t, txs, 1)
	})

	t.Run("interrupted_payment", func(t *testing.T) {
		network, alice := newFundedWallet(t, simulator.MintConfig{FeeReserve: 10})
		mint := getMint(t, network, mintA)

		invoice, err := mint.CreateInvoice(100, "coffee")
		require.NoError(t, err)
		quote, err := alice.quotes.CreateMeltQuote(ctx, satKey(mintA), invoice)
		require.NoError(t, err)
		require.Equal(t, uint64(110), quote.Total())

		mint.SetOnline(false)
		res, err := alice.quotes.Melt(ctx, quote.ID)
		require.ErrorIs(t, err, domain.ErrNetworkFailure)
		require.Nil(t, res)
		require.Equal(t, uint64(488), balance(t, alice))

		pending, err := alice.wallet.GetPendingBalances(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(512), pending[satKey(mintA)])

		results, err := alice.wallet.CheckPendingProofs(ctx)
		require.NoError(t, err)
		require.NotContains(t, results, satKey(mintA))

		mint.SetOnline(true)
		results, err = alice.wallet.CheckPendingProofs(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(512), results[satKey(mintA)].Restored)
		require.Zero(t, results[satKey(mintA)].Spent)
		require.Equal(t, uint64(1000), balance(t, alice))

		pending, err = alice.wallet.GetPendingBalances(ctx)
		require.NoError(t, err)
		require.Empty(t, pending)
	})
}
