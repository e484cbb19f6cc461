package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

func TestMintQuoteTransitions(t *testing.T) {
	t.Parallel()

	q := &domain.MintQuote{ID: "q1", Amount: 500}
	require.Equal(t, domain.MintQuoteUnpaid, q.State)

	err := q.MarkIssued()
	require.ErrorIs(t, err, domain.ErrQuoteNotPaid)

	require.True(t, q.Observe(domain.MintQuotePaid))
	require.False(t, q.Observe(domain.MintQuotePaid))
	require.False(t, q.Observe(domain.MintQuoteUnpaid))
	require.Equal(t, domain.MintQuotePaid, q.State)

	require.NoError(t, q.MarkIssued())
	require.True(t, q.IsIssued())

	// Issued is terminal.
	require.False(t, q.Observe(domain.MintQuotePaid))
	require.False(t, q.Observe(domain.MintQuoteUnpaid))
	require.NoError(t, q.MarkIssued())
	require.Equal(t, domain.MintQuoteIssued, q.State)
}

func TestMeltQuoteTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		observed []domain.MeltQuoteState
		expected domain.MeltQuoteState
	}{
		{"paid", []domain.MeltQuoteState{domain.MeltQuotePending, domain.MeltQuotePaid}, domain.MeltQuotePaid},
		{"paid_directly", []domain.MeltQuoteState{domain.MeltQuotePaid}, domain.MeltQuotePaid},
		{"failed", []domain.MeltQuoteState{domain.MeltQuotePending, domain.MeltQuoteFailed}, domain.MeltQuoteFailed},
		{"back_to_unpaid", []domain.MeltQuoteState{domain.MeltQuotePending, domain.MeltQuoteUnpaid}, domain.MeltQuoteFailed},
		{"unpaid_is_noop", []domain.MeltQuoteState{domain.MeltQuoteUnpaid}, domain.MeltQuoteUnpaid},
		{"paid_is_final", []domain.MeltQuoteState{domain.MeltQuotePaid, domain.MeltQuoteFailed, domain.MeltQuoteUnpaid}, domain.MeltQuotePaid},
		{"failed_is_final", []domain.MeltQuoteState{domain.MeltQuoteFailed, domain.MeltQuotePaid}, domain.MeltQuoteFailed},
	}

	for _, tt := range tests {
		q := &domain.MeltQuote{ID: "q1", Amount: 100, FeeReserve: 2}
		for _, s := range tt.observed {
			q.Observe(s)
		}
		require.Equal(t, tt.expected, q.State, tt.name)
		require.Equal(t, uint64(102), q.Total())
	}
}

func TestParseQuoteState(t *testing.T) {
	t.Parallel()

	s, err := domain.ParseMintQuoteState("PAID")
	require.NoError(t, err)
	require.Equal(t, domain.MintQuotePaid, s)

	_, err = domain.ParseMintQuoteState("paid?")
	require.ErrorIs(t, err, domain.ErrProtocol)

	m, err := domain.ParseMeltQuoteState("PENDING")
	require.NoError(t, err)
	require.Equal(t, domain.MeltQuotePending, m)
	require.Equal(t, "PENDING", m.String())
}

func TestQuoteExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	q := &domain.MintQuote{Expiry: now.Add(-time.Minute).Unix()}
	require.True(t, q.IsExpired(now))

	q.State = domain.MintQuotePaid
	require.False(t, q.IsExpired(now))

	q = &domain.MintQuote{}
	require.False(t, q.IsExpired(now))
}
