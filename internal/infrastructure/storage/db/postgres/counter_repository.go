package postgresdb

import (
	"context"
	"errors"
	"math"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

type counterRepositoryPg struct {
	pgxPool *pgxpool.Pool
}

func NewCounterRepositoryPgImpl(pgxPool *pgxpool.Pool) domain.CounterRepository {
	return newCounterRepositoryPg(pgxPool)
}

func newCounterRepositoryPg(pgxPool *pgxpool.Pool) *counterRepositoryPg {
	return &counterRepositoryPg{pgxPool}
}

func (c *counterRepositoryPg) ReserveCounters(
	ctx context.Context, keysetID string, n uint32,
) (uint32, error) {
	var start uint32
	if err := c.pgxPool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var next int64
		if err := tx.QueryRow(
			ctx,
			`INSERT INTO keyset_counter (keyset_id, counter) VALUES ($1, $2)
			ON CONFLICT (keyset_id)
			DO UPDATE SET counter = keyset_counter.counter + EXCLUDED.counter
			RETURNING counter`,
			keysetID, int64(n),
		).Scan(&next); err != nil {
			return err
		}
		// Rolling back leaves the counter untouched.
		if next > math.MaxInt32 {
			return domain.ErrCounterOverflow
		}
		start = uint32(next - int64(n))
		return nil
	}); err != nil {
		return 0, err
	}
	return start, nil
}

func (c *counterRepositoryPg) GetCounter(
	ctx context.Context, keysetID string,
) (uint32, error) {
	var counter int64
	if err := c.pgxPool.QueryRow(
		ctx, "SELECT counter FROM keyset_counter WHERE keyset_id = $1", keysetID,
	).Scan(&counter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint32(counter), nil
}
