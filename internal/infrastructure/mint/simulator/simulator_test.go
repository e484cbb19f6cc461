package simulator_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/internal/infrastructure/mint/simulator"
	"github.com/vulpemventures/cashew/pkg/bolt11"
)

const mintURL = "https://mint.example.com"

var (
	ctx = context.Background()
	seq int
)

func outputs(keysetID, prefix string, amounts ...uint64) ports.PreMints {
	out := make(ports.PreMints, 0, len(amounts))
	for i, a := range amounts {
		out = append(out, ports.PreMint{
			Amount: a, KeysetID: keysetID, Secret: fmt.Sprintf("%s%d", prefix, i),
		})
	}
	return out
}

func mintProofs(
	t *testing.T, client ports.Mint, sim *simulator.Mint, amounts ...uint64,
) (string, domain.Proofs) {
	keysets, err := client.GetKeysets(ctx)
	require.NoError(t, err)
	keysetID := keysets[0].ID

	seq++
	outs := outputs(keysetID, fmt.Sprintf("mint%d-", seq), amounts...)
	quote, err := client.CreateMintQuote(ctx, outs.Amount(), "sat")
	require.NoError(t, err)
	require.Equal(t, domain.MintQuoteUnpaid, quote.State)

	invoice, err := bolt11.Decode(quote.Request)
	require.NoError(t, err)
	amount, err := invoice.AmountSat()
	require.NoError(t, err)
	require.Equal(t, outs.Amount(), amount)

	_, err = client.Mint(ctx, quote.Quote, outs)
	require.ErrorIs(t, err, domain.ErrProtocol)

	require.NoError(t, sim.PayMintQuote(quote.Quote))
	proofs, err := client.Mint(ctx, quote.Quote, outs)
	require.NoError(t, err)

	quote, err = client.GetMintQuote(ctx, quote.Quote)
	require.NoError(t, err)
	require.Equal(t, domain.MintQuoteIssued, quote.State)

	_, err = client.Mint(ctx, quote.Quote, outputs(keysetID, fmt.Sprintf("again%d-", seq), amounts...))
	require.ErrorIs(t, err, domain.ErrProtocol)
	return keysetID, proofs
}

func TestInfo(t *testing.T) {
	network := simulator.NewNetwork()
	_, err := network.AddMint(mintURL, simulator.MintConfig{Units: []string{"sat", "usd"}})
	require.NoError(t, err)

	client, err := network.NewMint(mintURL + "/")
	require.NoError(t, err)
	require.Equal(t, mintURL, client.URL())

	info, err := client.GetInfo(ctx)
	require.NoError(t, err)
	require.True(t, info.SupportsCheckState())
	require.True(t, info.SupportsMethod(domain.NutMint, "usd"))
	require.False(t, info.SupportsMethod(domain.NutMint, "eur"))

	keysets, err := client.GetKeysets(ctx)
	require.NoError(t, err)
	require.Len(t, keysets, 2)
	require.Equal(t, "sat", keysets[0].Unit)
	require.Len(t, keysets[0].Keys, 32)
}

func TestSwap(t *testing.T) {
	network := simulator.NewNetwork()
	sim, err := network.AddMint(mintURL, simulator.MintConfig{InputFeePpk: 500})
	require.NoError(t, err)
	client, err := network.NewMint(mintURL)
	require.NoError(t, err)

	keysetID, proofs := mintProofs(t, client, sim, 8, 2)

	t.Run("unbalanced", func(t *testing.T) {
		_, err := client.Swap(ctx, proofs, outputs(keysetID, "x", 8, 2))
		require.ErrorIs(t, err, domain.ErrProtocol)
	})

	t.Run("valid", func(t *testing.T) {
		// Two inputs at 500 ppk cost 1 sat.
		swapped, err := client.Swap(ctx, proofs, outputs(keysetID, "y", 8, 1))
		require.NoError(t, err)
		require.Equal(t, uint64(9), swapped.Amount())
		require.True(t, sim.IsSpent(proofs[0].Secret))

		_, err = client.Swap(ctx, proofs, outputs(keysetID, "z", 8, 1))
		require.ErrorIs(t, err, domain.ErrProtocol)
	})

	t.Run("reused outputs", func(t *testing.T) {
		_, more := mintProofs(t, client, sim, 4)
		_, err := client.Swap(ctx, more, outputs(keysetID, "y", 2, 1))
		require.ErrorIs(t, err, domain.ErrProtocol)
	})
}

func TestMelt(t *testing.T) {
	network := simulator.NewNetwork()
	sim, err := network.AddMint(mintURL, simulator.MintConfig{
		FeeReserve: 4, LightningFee: 1,
	})
	require.NoError(t, err)
	client, err := network.NewMint(mintURL)
	require.NoError(t, err)

	invoice, err := sim.CreateInvoice(10, "coffee")
	require.NoError(t, err)

	t.Run("paid", func(t *testing.T) {
		keysetID, proofs := mintProofs(t, client, sim, 16)
		quote, err := client.CreateMeltQuote(ctx, invoice, "sat")
		require.NoError(t, err)
		require.Equal(t, uint64(10), quote.Amount)
		require.Equal(t, uint64(4), quote.FeeReserve)

		resp, err := client.Melt(ctx, quote.Quote, proofs, outputs(keysetID, "c", 1, 1, 1))
		require.NoError(t, err)
		require.Equal(t, domain.MeltQuotePaid, resp.State)
		require.NotEmpty(t, resp.Preimage)
		// 16 - 10 - 1 = 5 = 1 + 4
		require.Equal(t, uint64(5), resp.Change.Amount())
		require.Len(t, resp.Change, 2)
	})

	t.Run("pending then failed", func(t *testing.T) {
		sim.SetMeltOutcome(simulator.MeltPending)
		defer sim.SetMeltOutcome(simulator.MeltSucceeds)

		_, proofs := mintProofs(t, client, sim, 16)
		quote, err := client.CreateMeltQuote(ctx, invoice, "sat")
		require.NoError(t, err)

		resp, err := client.Melt(ctx, quote.Quote, proofs, nil)
		require.NoError(t, err)
		require.Equal(t, domain.MeltQuotePending, resp.State)

		states, err := client.CheckState(ctx, proofs.Secrets())
		require.NoError(t, err)
		require.Equal(t, ports.StatePending, states[0].State)

		require.NoError(t, sim.SettleMelt(quote.Quote, false))
		resp, err = client.GetMeltQuote(ctx, quote.Quote)
		require.NoError(t, err)
		require.Equal(t, domain.MeltQuoteUnpaid, resp.State)

		states, err = client.CheckState(ctx, proofs.Secrets())
		require.NoError(t, err)
		require.Equal(t, ports.StateUnspent, states[0].State)
	})

	t.Run("failed", func(t *testing.T) {
		sim.SetMeltOutcome(simulator.MeltFails)
		defer sim.SetMeltOutcome(simulator.MeltSucceeds)

		_, proofs := mintProofs(t, client, sim, 16)
		quote, err := client.CreateMeltQuote(ctx, invoice, "sat")
		require.NoError(t, err)

		_, err = client.Melt(ctx, quote.Quote, proofs, nil)
		require.ErrorIs(t, err, domain.ErrProtocol)
		require.False(t, sim.IsSpent(proofs[0].Secret))
	})

	t.Run("invoice without amount", func(t *testing.T) {
		invoice, err := sim.CreateInvoice(0, "donation")
		require.NoError(t, err)
		_, err = client.CreateMeltQuote(ctx, invoice, "sat")
		require.ErrorIs(t, err, domain.ErrProtocol)
	})
}

func TestNetworkFailures(t *testing.T) {
	network := simulator.NewNetwork()
	sim, err := network.AddMint(mintURL, simulator.MintConfig{})
	require.NoError(t, err)

	client, err := network.NewMint("https://unknown.example.com")
	require.NoError(t, err)
	_, err = client.GetInfo(ctx)
	require.ErrorIs(t, err, domain.ErrNetworkFailure)

	client, err = network.NewMint(mintURL)
	require.NoError(t, err)
	sim.SetOnline(false)
	_, err = client.GetKeysets(ctx)
	require.ErrorIs(t, err, domain.ErrNetworkFailure)
	require.Equal(t, 1, sim.Calls("keysets"))

	sim.SetOnline(true)
	_, err = client.GetKeysets(ctx)
	require.NoError(t, err)

	_, err = network.NewMint("ftp://mint.example.com")
	require.ErrorIs(t, err, domain.ErrInvalidMintURL)
}
