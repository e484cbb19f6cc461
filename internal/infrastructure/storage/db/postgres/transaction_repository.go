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

const selectTransaction = `SELECT id, direction, amount, fee, memo,
tx_timestamp, mint_url, unit, tx_type, metadata FROM wallet_transaction`

type txRepositoryPg struct {
	pgxPool          *pgxpool.Pool
	chLock           *sync.Mutex
	chEvents         chan domain.TransactionEvent
	externalChEvents chan domain.TransactionEvent
}

func NewTxRepositoryPgImpl(pgxPool *pgxpool.Pool) domain.TransactionRepository {
	return newTxRepositoryPg(pgxPool)
}

func newTxRepositoryPg(pgxPool *pgxpool.Pool) *txRepositoryPg {
	return &txRepositoryPg{
		pgxPool:          pgxPool,
		chLock:           &sync.Mutex{},
		chEvents:         make(chan domain.TransactionEvent),
		externalChEvents: make(chan domain.TransactionEvent),
	}
}

func (t *txRepositoryPg) AddTransaction(
	ctx context.Context, tx *domain.Transaction,
) (bool, error) {
	metadata := tx.Metadata
	if metadata == nil {
		metadata = make(map[string]string)
	}
	buf, err := json.Marshal(metadata)
	if err != nil {
		return false, err
	}

	tag, err := t.pgxPool.Exec(
		ctx,
		`INSERT INTO wallet_transaction (id, direction, amount, fee, memo,
		tx_timestamp, mint_url, unit, tx_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		tx.ID, string(tx.Direction), int64(tx.Amount), int64(tx.Fee), tx.Memo,
		tx.Timestamp, tx.MintURL, tx.Unit, string(tx.Type), buf,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() <= 0 {
		return false, nil
	}

	stored := *tx
	stored.Metadata = metadata
	go t.publishEvent(domain.TransactionEvent{
		EventType:   domain.TransactionAdded,
		Transaction: &stored,
	})
	return true, nil
}

func (t *txRepositoryPg) GetTransaction(
	ctx context.Context, id string,
) (*domain.Transaction, error) {
	tx, err := scanTransaction(
		t.pgxPool.QueryRow(ctx, selectTransaction+" WHERE id = $1", id),
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (t *txRepositoryPg) GetTransactionsForWallet(
	ctx context.Context, key domain.WalletKey,
) ([]*domain.Transaction, error) {
	rows, err := t.pgxPool.Query(
		ctx,
		selectTransaction+` WHERE mint_url = $1 AND unit = $2
		ORDER BY tx_timestamp, id`,
		key.MintURL, key.Unit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (t *txRepositoryPg) GetEventChannel() chan domain.TransactionEvent {
	return t.externalChEvents
}

func (t *txRepositoryPg) publishEvent(event domain.TransactionEvent) {
	t.chLock.Lock()
	defer t.chLock.Unlock()

	t.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case t.externalChEvents <- event:
	default:
	}
}

func (t *txRepositoryPg) close() {
	close(t.chEvents)
	close(t.externalChEvents)
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx              domain.Transaction
		direction, kind string
		amount, fee     int64
		metadata        []byte
	)
	if err := row.Scan(
		&tx.ID, &direction, &amount, &fee, &tx.Memo, &tx.Timestamp,
		&tx.MintURL, &tx.Unit, &kind, &metadata,
	); err != nil {
		return nil, err
	}
	tx.Direction = domain.TxDirection(direction)
	tx.Type = domain.TxType(kind)
	tx.Amount = uint64(amount)
	tx.Fee = uint64(fee)
	tx.Metadata = make(map[string]string)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, err
		}
	}
	return &tx, nil
}
