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

const selectMint = `SELECT url, info, units, keysets, backup_event_ids,
created_at, updated_at FROM mint`

type mintRepositoryPg struct {
	pgxPool          *pgxpool.Pool
	chLock           *sync.Mutex
	chEvents         chan domain.MintEvent
	externalChEvents chan domain.MintEvent
}

func NewMintRepositoryPgImpl(pgxPool *pgxpool.Pool) domain.MintRepository {
	return newMintRepositoryPg(pgxPool)
}

func newMintRepositoryPg(pgxPool *pgxpool.Pool) *mintRepositoryPg {
	return &mintRepositoryPg{
		pgxPool:          pgxPool,
		chLock:           &sync.Mutex{},
		chEvents:         make(chan domain.MintEvent),
		externalChEvents: make(chan domain.MintEvent),
	}
}

func (m *mintRepositoryPg) AddMint(
	ctx context.Context, mint *domain.MintRecord,
) error {
	info, units, keysets, eventIDs, err := marshalMint(mint)
	if err != nil {
		return err
	}

	if _, err := m.pgxPool.Exec(
		ctx,
		`INSERT INTO mint (url, info, units, keysets, backup_event_ids,
		created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		mint.URL, info, units, keysets, eventIDs, mint.CreatedAt, mint.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrMintAlreadyExists
		}
		return err
	}

	go m.publishEvent(domain.MintEvent{
		EventType: domain.MintAdded,
		MintURL:   mint.URL,
	})
	return nil
}

func (m *mintRepositoryPg) GetMint(
	ctx context.Context, url string,
) (*domain.MintRecord, error) {
	return m.getMint(ctx, m.pgxPool, url, false)
}

func (m *mintRepositoryPg) GetAllMints(
	ctx context.Context,
) ([]*domain.MintRecord, error) {
	rows, err := m.pgxPool.Query(ctx, selectMint+" ORDER BY url")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mints := make([]*domain.MintRecord, 0)
	for rows.Next() {
		mint, err := scanMint(rows)
		if err != nil {
			return nil, err
		}
		mints = append(mints, mint)
	}
	return mints, rows.Err()
}

func (m *mintRepositoryPg) UpdateMint(
	ctx context.Context, url string,
	updateFn func(m *domain.MintRecord) (*domain.MintRecord, error),
) error {
	if err := m.pgxPool.BeginFunc(ctx, func(tx pgx.Tx) error {
		mint, err := m.getMint(ctx, tx, url, true)
		if err != nil {
			return err
		}

		updatedMint, err := updateFn(mint)
		if err != nil {
			return err
		}

		info, units, keysets, eventIDs, err := marshalMint(updatedMint)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			ctx,
			`UPDATE mint SET info = $2, units = $3, keysets = $4,
			backup_event_ids = $5, updated_at = $6 WHERE url = $1`,
			url, info, units, keysets, eventIDs, updatedMint.UpdatedAt,
		)
		return err
	}); err != nil {
		return err
	}

	go m.publishEvent(domain.MintEvent{
		EventType: domain.MintUpdated,
		MintURL:   url,
	})
	return nil
}

func (m *mintRepositoryPg) DeleteMint(ctx context.Context, url string) error {
	tag, err := m.pgxPool.Exec(ctx, "DELETE FROM mint WHERE url = $1", url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMintNotFound
	}

	go m.publishEvent(domain.MintEvent{
		EventType: domain.MintRemoved,
		MintURL:   url,
	})
	return nil
}

func (m *mintRepositoryPg) GetEventChannel() chan domain.MintEvent {
	return m.externalChEvents
}

func (m *mintRepositoryPg) getMint(
	ctx context.Context, q querier, url string, forUpdate bool,
) (*domain.MintRecord, error) {
	query := selectMint + " WHERE url = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	mint, err := scanMint(q.QueryRow(ctx, query, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMintNotFound
		}
		return nil, err
	}
	return mint, nil
}

func (m *mintRepositoryPg) publishEvent(event domain.MintEvent) {
	m.chLock.Lock()
	defer m.chLock.Unlock()

	m.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case m.externalChEvents <- event:
	default:
	}
}

func (m *mintRepositoryPg) close() {
	close(m.chEvents)
	close(m.externalChEvents)
}

func marshalMint(
	mint *domain.MintRecord,
) (info, units, keysets, eventIDs []byte, err error) {
	if info, err = json.Marshal(mint.Info); err != nil {
		return
	}
	if units, err = json.Marshal(nonNilStrings(mint.Units)); err != nil {
		return
	}
	if keysets, err = json.Marshal(mint.Keysets); err != nil {
		return
	}
	eventIDs, err = json.Marshal(nonNilStrings(mint.BackupEventIDs))
	return
}

func scanMint(row pgx.Row) (*domain.MintRecord, error) {
	var info, units, keysets, eventIDs []byte
	mint := &domain.MintRecord{}
	if err := row.Scan(
		&mint.URL, &info, &units, &keysets, &eventIDs,
		&mint.CreatedAt, &mint.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(info, &mint.Info); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(units, &mint.Units); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(keysets, &mint.Keysets); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(eventIDs, &mint.BackupEventIDs); err != nil {
		return nil, err
	}
	return mint, nil
}

func nonNilStrings(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
