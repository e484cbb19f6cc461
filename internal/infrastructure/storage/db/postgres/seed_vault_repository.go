package postgresdb

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

// The seed_vault table holds at most one row.
const vaultID = 1

type vaultRepositoryPg struct {
	pgxPool          *pgxpool.Pool
	chLock           *sync.Mutex
	chEvents         chan domain.VaultEvent
	externalChEvents chan domain.VaultEvent
}

func NewSeedVaultRepositoryPgImpl(pgxPool *pgxpool.Pool) domain.SeedVaultRepository {
	return newVaultRepositoryPg(pgxPool)
}

func newVaultRepositoryPg(pgxPool *pgxpool.Pool) *vaultRepositoryPg {
	return &vaultRepositoryPg{
		pgxPool:          pgxPool,
		chLock:           &sync.Mutex{},
		chEvents:         make(chan domain.VaultEvent),
		externalChEvents: make(chan domain.VaultEvent),
	}
}

func (r *vaultRepositoryPg) CreateVault(
	ctx context.Context, vault *domain.SeedVault,
) error {
	if _, err := r.pgxPool.Exec(
		ctx,
		`INSERT INTO seed_vault (id, encrypted_mnemonic, created_at, updated_at)
		VALUES ($1, $2, $3, $4)`,
		vaultID, vault.EncryptedMnemonic, vault.CreatedAt, vault.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVaultAlreadyExists
		}
		return err
	}

	go r.publishEvent(domain.VaultEvent{EventType: domain.VaultCreated})
	return nil
}

func (r *vaultRepositoryPg) GetVault(ctx context.Context) (*domain.SeedVault, error) {
	return r.getVault(ctx, r.pgxPool, false)
}

func (r *vaultRepositoryPg) UpdateVault(
	ctx context.Context,
	updateFn func(v *domain.SeedVault) (*domain.SeedVault, error),
) error {
	if err := r.pgxPool.BeginFunc(ctx, func(tx pgx.Tx) error {
		vault, err := r.getVault(ctx, tx, true)
		if err != nil {
			return err
		}
		updated, err := updateFn(vault)
		if err != nil {
			return err
		}

		_, err = tx.Exec(
			ctx,
			`UPDATE seed_vault SET encrypted_mnemonic = $2, updated_at = $3
			WHERE id = $1`,
			vaultID, updated.EncryptedMnemonic, updated.UpdatedAt,
		)
		return err
	}); err != nil {
		return err
	}

	go r.publishEvent(domain.VaultEvent{EventType: domain.VaultUpdated})
	return nil
}

func (r *vaultRepositoryPg) GetEventChannel() chan domain.VaultEvent {
	return r.externalChEvents
}

func (r *vaultRepositoryPg) getVault(
	ctx context.Context, q querier, forUpdate bool,
) (*domain.SeedVault, error) {
	query := `SELECT encrypted_mnemonic, created_at, updated_at FROM seed_vault
		WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	vault := &domain.SeedVault{}
	if err := q.QueryRow(ctx, query, vaultID).Scan(
		&vault.EncryptedMnemonic, &vault.CreatedAt, &vault.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVaultNotFound
		}
		return nil, err
	}
	return vault, nil
}

func (r *vaultRepositoryPg) publishEvent(event domain.VaultEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *vaultRepositoryPg) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}
