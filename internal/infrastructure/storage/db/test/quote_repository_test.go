package db_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

func TestQuoteRepository(t *testing.T) {
	for name, rm := range newRepoManagers(t) {
		events := make(chan domain.QuoteEvent, 10)
		handler := func(e domain.QuoteEvent) { events <- e }
		rm.RegisterHandlerForQuoteEvent(domain.MintQuoteUpdated, handler)
		rm.RegisterHandlerForQuoteEvent(domain.MeltQuoteUpdated, handler)
		repo := rm.QuoteRepository()

		t.Run(name, func(t *testing.T) {
			now := time.Now().Unix()

			t.Run("mint_quotes", func(t *testing.T) {
				quote := &domain.MintQuote{
					ID:        randomHex(16),
					MintURL:   mintURL,
					Unit:      "sat",
					Request:   "lnbc1000n1",
					Amount:    100,
					Expiry:    now + 600,
					CreatedAt: now,
					UpdatedAt: now,
				}

				q, err := repo.GetMintQuote(ctx, quote.ID)
				require.ErrorIs(t, err, domain.ErrQuoteNotFound)
				require.Nil(t, q)

				require.NoError(t, repo.AddMintQuote(ctx, quote))
				require.ErrorIs(
					t, repo.AddMintQuote(ctx, quote), domain.ErrQuoteAlreadyExists,
				)

				q, err = repo.GetMintQuote(ctx, quote.ID)
				require.NoError(t, err)
				require.Equal(t, *quote, *q)

				pending, err := repo.GetPendingMintQuotes(ctx)
				require.NoError(t, err)
				require.Len(t, pending, 1)

				err = repo.UpdateMintQuote(
					ctx, quote.ID,
					func(q *domain.MintQuote) (*domain.MintQuote, error) {
						q.Observe(domain.MintQuotePaid)
						if err := q.MarkIssued(); err != nil {
							return nil, err
						}
						return q, nil
					},
				)
				require.NoError(t, err)

				event := waitForEvent(t, events)
				require.Equal(t, domain.MintQuoteUpdated, event.EventType)
				require.Equal(t, quote.ID, event.QuoteID)
				require.Equal(t, walletKey, event.WalletKey)

				q, err = repo.GetMintQuote(ctx, quote.ID)
				require.NoError(t, err)
				require.True(t, q.IsIssued())

				pending, err = repo.GetPendingMintQuotes(ctx)
				require.NoError(t, err)
				require.Empty(t, pending)

				err = repo.UpdateMintQuote(
					ctx, randomHex(16),
					func(q *domain.MintQuote) (*domain.MintQuote, error) {
						return q, nil
					},
				)
				require.ErrorIs(t, err, domain.ErrQuoteNotFound)
			})

			t.Run("melt_quotes", func(t *testing.T) {
				quote := &domain.MeltQuote{
					ID:         randomHex(16),
					MintURL:    mintURL,
					Unit:       "sat",
					Request:    "lnbc500n1",
					Amount:     50,
					FeeReserve: 2,
					Expiry:     now + 600,
					CreatedAt:  now,
					UpdatedAt:  now,
				}

				require.NoError(t, repo.AddMeltQuote(ctx, quote))
				require.ErrorIs(
					t, repo.AddMeltQuote(ctx, quote), domain.ErrQuoteAlreadyExists,
				)

				q, err := repo.GetMeltQuote(ctx, quote.ID)
				require.NoError(t, err)
				require.Equal(t, *quote, *q)

				secrets := []string{randomHex(32), randomHex(32)}
				err = repo.UpdateMeltQuote(
					ctx, quote.ID,
					func(q *domain.MeltQuote) (*domain.MeltQuote, error) {
						q.Observe(domain.MeltQuotePending)
						q.PendingSecrets = secrets
						return q, nil
					},
				)
				require.NoError(t, err)
				waitForEvent(t, events)

				pending, err := repo.GetPendingMeltQuotes(ctx)
				require.NoError(t, err)
				require.Len(t, pending, 1)
				require.Equal(t, secrets, pending[0].PendingSecrets)
				require.Equal(t, domain.MeltQuotePending, pending[0].State)

				err = repo.UpdateMeltQuote(
					ctx, quote.ID,
					func(q *domain.MeltQuote) (*domain.MeltQuote, error) {
						q.Observe(domain.MeltQuotePaid)
						q.Preimage = randomHex(32)
						q.FeePaid = 1
						q.PendingSecrets = nil
						return q, nil
					},
				)
				require.NoError(t, err)

				event := waitForEvent(t, events)
				require.Equal(t, domain.MeltQuoteUpdated, event.EventType)

				q, err = repo.GetMeltQuote(ctx, quote.ID)
				require.NoError(t, err)
				require.Equal(t, domain.MeltQuotePaid, q.State)
				require.Equal(t, uint64(1), q.FeePaid)
				require.NotEmpty(t, q.Preimage)
				require.Empty(t, q.PendingSecrets)

				pending, err = repo.GetPendingMeltQuotes(ctx)
				require.NoError(t, err)
				require.Empty(t, pending)
			})

			t.Run("delete_quotes_for_mint", func(t *testing.T) {
				quote := &domain.MintQuote{
					ID:        randomHex(16),
					MintURL:   otherMintURL,
					Unit:      "sat",
					Request:   "lnbc10n1",
					Amount:    1,
					CreatedAt: now,
					UpdatedAt: now,
				}
				require.NoError(t, repo.AddMintQuote(ctx, quote))

				require.NoError(t, repo.DeleteQuotesForMint(ctx, mintURL))

				pending, err := repo.GetPendingMintQuotes(ctx)
				require.NoError(t, err)
				require.Len(t, pending, 1)
				require.Equal(t, quote.ID, pending[0].ID)

				melts, err := repo.GetPendingMeltQuotes(ctx)
				require.NoError(t, err)
				require.Empty(t, melts)
			})
		})
	}
}
