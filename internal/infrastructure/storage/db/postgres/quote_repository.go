package postgresdb

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

const (
	selectMintQuote = `SELECT id, mint_url, unit, request, amount, state,
expiry, created_at, updated_at FROM mint_quote`
	selectMeltQuote = `SELECT id, mint_url, unit, request, amount, fee_reserve,
fee_paid, state, preimage, expiry, pending_secrets, created_at, updated_at
FROM melt_quote`
)

type quoteRepositoryPg struct {
	pgxPool          *pgxpool.Pool
	chLock           *sync.Mutex
	chEvents         chan domain.QuoteEvent
	externalChEvents chan domain.QuoteEvent
}

func NewQuoteRepositoryPgImpl(pgxPool *pgxpool.Pool) domain.QuoteRepository {
	return newQuoteRepositoryPg(pgxPool)
}

func newQuoteRepositoryPg(pgxPool *pgxpool.Pool) *quoteRepositoryPg {
	return &quoteRepositoryPg{
		pgxPool:          pgxPool,
		chLock:           &sync.Mutex{},
		chEvents:         make(chan domain.QuoteEvent),
		externalChEvents: make(chan domain.QuoteEvent),
	}
}

func (q *quoteRepositoryPg) AddMintQuote(
	ctx context.Context, quote *domain.MintQuote,
) error {
	if _, err := q.pgxPool.Exec(
		ctx,
		`INSERT INTO mint_quote (id, mint_url, unit, request, amount, state,
		expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		quote.ID, quote.MintURL, quote.Unit, quote.Request, int64(quote.Amount),
		int(quote.State), quote.Expiry, quote.CreatedAt, quote.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrQuoteAlreadyExists
		}
		return err
	}

	go q.publishEvent(domain.QuoteEvent{
		EventType: domain.MintQuoteAdded,
		QuoteID:   quote.ID,
		WalletKey: quote.WalletKey(),
	})
	return nil
}

func (q *quoteRepositoryPg) GetMintQuote(
	ctx context.Context, id string,
) (*domain.MintQuote, error) {
	return getMintQuote(ctx, q.pgxPool, id, false)
}

func (q *quoteRepositoryPg) GetPendingMintQuotes(
	ctx context.Context,
) ([]*domain.MintQuote, error) {
	rows, err := q.pgxPool.Query(
		ctx, selectMintQuote+" WHERE state <> $1 ORDER BY created_at, id",
		int(domain.MintQuoteIssued),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotes := make([]*domain.MintQuote, 0)
	for rows.Next() {
		quote, err := scanMintQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, quote)
	}
	return quotes, rows.Err()
}

func (q *quoteRepositoryPg) UpdateMintQuote(
	ctx context.Context, id string,
	updateFn func(q *domain.MintQuote) (*domain.MintQuote, error),
) error {
	var updated *domain.MintQuote
	if err := q.pgxPool.BeginFunc(ctx, func(tx pgx.Tx) error {
		quote, err := getMintQuote(ctx, tx, id, true)
		if err != nil {
			return err
		}
		updated, err = updateFn(quote)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			ctx,
			`UPDATE mint_quote SET request = $2, amount = $3, state = $4,
			expiry = $5, updated_at = $6 WHERE id = $1`,
			id, updated.Request, int64(updated.Amount), int(updated.State),
			updated.Expiry, updated.UpdatedAt,
		)
		return err
	}); err != nil {
		return err
	}

	go q.publishEvent(domain.QuoteEvent{
		EventType: domain.MintQuoteUpdated,
		QuoteID:   id,
		WalletKey: updated.WalletKey(),
	})
	return nil
}

func (q *quoteRepositoryPg) AddMeltQuote(
	ctx context.Context, quote *domain.MeltQuote,
) error {
	secrets, err := json.Marshal(nonNilStrings(quote.PendingSecrets))
	if err != nil {
		return err
	}
	if _, err := q.pgxPool.Exec(
		ctx,
		`INSERT INTO melt_quote (id, mint_url, unit, request, amount,
		fee_reserve, fee_paid, state, preimage, expiry, pending_secrets,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		quote.ID, quote.MintURL, quote.Unit, quote.Request, int64(quote.Amount),
		int64(quote.FeeReserve), int64(quote.FeePaid), int(quote.State),
		quote.Preimage, quote.Expiry, secrets, quote.CreatedAt, quote.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrQuoteAlreadyExists
		}
		return err
	}

	go q.publishEvent(domain.QuoteEvent{
		EventType: domain.MeltQuoteAdded,
		QuoteID:   quote.ID,
		WalletKey: quote.WalletKey(),
	})
	return nil
}

func (q *quoteRepositoryPg) GetMeltQuote(
	ctx context.Context, id string,
) (*domain.MeltQuote, error) {
	return getMeltQuote(ctx, q.pgxPool, id, false)
}

func (q *quoteRepositoryPg) GetPendingMeltQuotes(
	ctx context.Context,
) ([]*domain.MeltQuote, error) {
	rows, err := q.pgxPool.Query(
		ctx,
		selectMeltQuote+" WHERE state IN ($1, $2) ORDER BY created_at, id",
		int(domain.MeltQuoteUnpaid), int(domain.MeltQuotePending),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotes := make([]*domain.MeltQuote, 0)
	for rows.Next() {
		quote, err := scanMeltQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, quote)
	}
	return quotes, rows.Err()
}

func (q *quoteRepositoryPg) UpdateMeltQuote(
	ctx context.Context, id string,
	updateFn func(q *domain.MeltQuote) (*domain.MeltQuote, error),
) error {
	var updated *domain.MeltQuote
	if err := q.pgxPool.BeginFunc(ctx, func(tx pgx.Tx) error {
		quote, err := getMeltQuote(ctx, tx, id, true)
		if err != nil {
			return err
		}
		updated, err = updateFn(quote)
		if err != nil {
			return err
		}
		secrets, err := json.Marshal(nonNilStrings(updated.PendingSecrets))
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			ctx,
			`UPDATE melt_quote SET request = $2, amount = $3, fee_reserve = $4,
			fee_paid = $5, state = $6, preimage = $7, expiry = $8,
			pending_secrets = $9, updated_at = $10 WHERE id = $1`,
			id, updated.Request, int64(updated.Amount),
			int64(updated.FeeReserve), int64(updated.FeePaid),
			int(updated.State), updated.Preimage, updated.Expiry, secrets,
			updated.UpdatedAt,
		)
		return err
	}); err != nil {
		return err
	}

	go q.publishEvent(domain.QuoteEvent{
		EventType: domain.MeltQuoteUpdated,
		QuoteID:   id,
		WalletKey: updated.WalletKey(),
	})
	return nil
}

func (q *quoteRepositoryPg) DeleteQuotesForMint(
	ctx context.Context, mintURL string,
) error {
	return q.pgxPool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(
			ctx, "DELETE FROM mint_quote WHERE mint_url = $1", mintURL,
		); err != nil {
			return err
		}
		_, err := tx.Exec(
			ctx, "DELETE FROM melt_quote WHERE mint_url = $1", mintURL,
		)
		return err
	})
}

func (q *quoteRepositoryPg) GetEventChannel() chan domain.QuoteEvent {
	return q.externalChEvents
}

func (q *quoteRepositoryPg) publishEvent(event domain.QuoteEvent) {
	q.chLock.Lock()
	defer q.chLock.Unlock()

	q.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case q.externalChEvents <- event:
	default:
	}
}

func (q *quoteRepositoryPg) close() {
	close(q.chEvents)
	close(q.externalChEvents)
}

func getMintQuote(
	ctx context.Context, db querier, id string, forUpdate bool,
) (*domain.MintQuote, error) {
	query := selectMintQuote + " WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	quote, err := scanMintQuote(db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQuoteNotFound
		}
		return nil, err
	}
	return quote, nil
}

func getMeltQuote(
	ctx context.Context, db querier, id string, forUpdate bool,
) (*domain.MeltQuote, error) {
	query := selectMeltQuote + " WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	quote, err := scanMeltQuote(db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQuoteNotFound
		}
		return nil, err
	}
	return quote, nil
}

func scanMintQuote(row pgx.Row) (*domain.MintQuote, error) {
	var (
		quote  domain.MintQuote
		amount int64
		state  int
	)
	if err := row.Scan(
		&quote.ID, &quote.MintURL, &quote.Unit, &quote.Request, &amount,
		&state, &quote.Expiry, &quote.CreatedAt, &quote.UpdatedAt,
	); err != nil {
		return nil, err
	}
	quote.Amount = uint64(amount)
	quote.State = domain.MintQuoteState(state)
	return &quote, nil
}

func scanMeltQuote(row pgx.Row) (*domain.MeltQuote, error) {
	var (
		quote                       domain.MeltQuote
		amount, feeReserve, feePaid int64
		state                       int
		secrets                     []byte
	)
	if err := row.Scan(
		&quote.ID, &quote.MintURL, &quote.Unit, &quote.Request, &amount,
		&feeReserve, &feePaid, &state, &quote.Preimage, &quote.Expiry,
		&secrets, &quote.CreatedAt, &quote.UpdatedAt,
	); err != nil {
		return nil, err
	}
	quote.Amount = uint64(amount)
	quote.FeeReserve = uint64(feeReserve)
	quote.FeePaid = uint64(feePaid)
	quote.State = domain.MeltQuoteState(state)
	if len(secrets) > 0 {
		if err := json.Unmarshal(secrets, &quote.PendingSecrets); err != nil {
			return nil, err
		}
	}
	if len(quote.PendingSecrets) == 0 {
		quote.PendingSecrets = nil
	}
	return &quote, nil
}
