package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"go.uber.org/ratelimit"
)

const DefaultQuotePollInterval = 10 * time.Second

// QuoteTracker is responsible for the lifecycle of mint and melt quotes:
//   - Create a mint quote and poll its state until paid.
//   - Redeem a paid mint quote for new proofs, exactly once.
//   - Create a melt quote and pay it with proofs.
//   - Poll a pending melt quote and settle its reserved proofs.
//   - Watch all the non final quotes in background, redeeming the paid mint
//     quotes automatically.
//
// A failing mint call never advances the state of a quote. Polls are
// throttled by a rate limiter shared among all mints.
type QuoteTracker struct {
	repoManager ports.RepoManager
	registry    *MintRegistry
	limiter     ratelimit.Limiter

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

// NewQuoteTracker returns a tracker making at most rps calls per second to
// mints while polling. A non positive rps disables the throttling.
func NewQuoteTracker(
	repoManager ports.RepoManager, registry *MintRegistry, rps int,
) *QuoteTracker {
	limiter := ratelimit.NewUnlimited()
	if rps > 0 {
		limiter = ratelimit.New(rps)
	}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("quote tracker: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("quote tracker: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &QuoteTracker{repoManager, registry, limiter, logFn, warnFn}
}

// CreateMintQuote requests an invoice to receive the given amount with the
// given wallet.
func (qt *QuoteTracker) CreateMintQuote(
	ctx context.Context, key domain.WalletKey, amount uint64,
) (*domain.MintQuote, error) {
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	w, err := qt.registry.GetWallet(key)
	if err != nil {
		return nil, err
	}
	quote, err := w.createMintQuote(ctx, amount)
	if err != nil {
		return nil, err
	}
	if err := qt.repoManager.QuoteRepository().AddMintQuote(ctx, quote); err != nil {
		return nil, err
	}
	qt.log("created mint quote %s of %d for %s", quote.ID, amount, key)
	return quote, nil
}

// CheckMintQuote polls the mint for the state of the quote and records any
// forward transition. An issued quote is returned without polling.
func (qt *QuoteTracker) CheckMintQuote(
	ctx context.Context, quoteID string,
) (*domain.MintQuote, error) {
	quoteRepo := qt.repoManager.QuoteRepository()
	quote, err := quoteRepo.GetMintQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.IsIssued() {
		return quote, nil
	}
	w, err := qt.registry.GetWallet(quote.WalletKey())
	if err != nil {
		return nil, err
	}

	qt.limiter.Take()
	resp, err := w.mint.GetMintQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if !quote.Observe(resp.State) {
		return quote, nil
	}
	if err := quoteRepo.UpdateMintQuote(
		ctx, quoteID, func(q *domain.MintQuote) (*domain.MintQuote, error) {
			q.Observe(resp.State)
			return q, nil
		},
	); err != nil {
		return nil, err
	}
	qt.log("mint quote %s is now %s", quoteID, quote.State)
	return quote, nil
}

// RedeemMintQuote issues the proofs of a paid quote and returns the amount
// minted. Redeeming an issued quote returns zero.
func (qt *QuoteTracker) RedeemMintQuote(
	ctx context.Context, quoteID string,
) (uint64, error) {
	quote, err := qt.repoManager.QuoteRepository().GetMintQuote(ctx, quoteID)
	if err != nil {
		return 0, err
	}
	if quote.IsIssued() {
		return 0, nil
	}
	w, err := qt.registry.GetWallet(quote.WalletKey())
	if err != nil {
		return 0, err
	}
	return w.redeemMintQuote(ctx, quoteID)
}

// CreateMeltQuote asks the mint of the given wallet to quote the payment of
// the invoice.
func (qt *QuoteTracker) CreateMeltQuote(
	ctx context.Context, key domain.WalletKey, invoice string,
) (*domain.MeltQuote, error) {
	w, err := qt.registry.GetWallet(key)
	if err != nil {
		return nil, err
	}
	quote, err := w.createMeltQuote(ctx, invoice)
	if err != nil {
		return nil, err
	}
	if err := qt.repoManager.QuoteRepository().AddMeltQuote(ctx, quote); err != nil {
		return nil, err
	}
	qt.log(
		"created melt quote %s of %d (fee reserve %d) for %s",
		quote.ID, quote.Amount, quote.FeeReserve, key,
	)
	return quote, nil
}

// Melt pays the invoice of the quote.
func (qt *QuoteTracker) Melt(
	ctx context.Context, quoteID string,
) (*PaymentResult, error) {
	quote, err := qt.repoManager.QuoteRepository().GetMeltQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	w, err := qt.registry.GetWallet(quote.WalletKey())
	if err != nil {
		return nil, err
	}
	return w.melt(ctx, quoteID)
}

// CheckMeltQuote polls the mint for the state of the quote. Once final, the
// proofs reserved for it are either dropped or made available again.
func (qt *QuoteTracker) CheckMeltQuote(
	ctx context.Context, quoteID string,
) (*domain.MeltQuote, error) {
	quote, err := qt.repoManager.QuoteRepository().GetMeltQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.State.IsFinal() {
		return quote, nil
	}
	w, err := qt.registry.GetWallet(quote.WalletKey())
	if err != nil {
		return nil, err
	}

	qt.limiter.Take()
	return w.checkMeltQuote(ctx, quoteID)
}

// Watch polls the non final quotes at every interval until the context is
// canceled. Paid mint quotes are redeemed.
func (qt *QuoteTracker) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultQuotePollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	qt.log("watching quotes every %s", interval)
	for {
		qt.checkPendingQuotes(ctx)

		select {
		case <-ctx.Done():
			qt.log("stopped watching quotes")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (qt *QuoteTracker) checkPendingQuotes(ctx context.Context) {
	quoteRepo := qt.repoManager.QuoteRepository()
	now := time.Now()

	mintQuotes, err := quoteRepo.GetPendingMintQuotes(ctx)
	if err != nil {
		qt.warn(err, "failed to get pending mint quotes")
	}
	for _, q := range mintQuotes {
		if ctx.Err() != nil {
			return
		}
		if q.IsExpired(now) || !qt.registry.HasMint(q.MintURL) {
			continue
		}
		quote, err := qt.CheckMintQuote(ctx, q.ID)
		if err != nil {
			qt.warn(err, "failed to check mint quote %s", q.ID)
			continue
		}
		if quote.State != domain.MintQuotePaid {
			continue
		}
		amount, err := qt.RedeemMintQuote(ctx, q.ID)
		if err != nil {
			qt.warn(err, "failed to redeem mint quote %s", q.ID)
			continue
		}
		log.Infof("redeemed %d %s from mint quote %s", amount, q.Unit, q.ID)
	}

	meltQuotes, err := quoteRepo.GetPendingMeltQuotes(ctx)
	if err != nil {
		qt.warn(err, "failed to get pending melt quotes")
	}
	for _, q := range meltQuotes {
		if ctx.Err() != nil {
			return
		}
		if !qt.registry.HasMint(q.MintURL) || !qt.hasReservedProofs(ctx, q) {
			continue
		}
		quote, err := qt.CheckMeltQuote(ctx, q.ID)
		if err != nil {
			if !errors.Is(err, domain.ErrNetworkFailure) {
				qt.warn(err, "failed to check melt quote %s", q.ID)
			}
			continue
		}
		if quote.State.IsFinal() {
			log.Infof("melt quote %s is %s", q.ID, quote.State)
		}
	}
}

// hasReservedProofs returns whether the melt of the quote was attempted,
// ie. some proofs are reserved for it.
func (qt *QuoteTracker) hasReservedProofs(
	ctx context.Context, quote *domain.MeltQuote,
) bool {
	if quote.State == domain.MeltQuotePending || len(quote.PendingSecrets) > 0 {
		return true
	}
	pending, err := qt.repoManager.ProofRepository().GetPendingProofs(
		ctx, quote.WalletKey(),
	)
	if err != nil {
		return false
	}
	return len(pending[quote.ID]) > 0
}
