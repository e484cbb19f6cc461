package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

// There's only one vault per db.
const vaultKey = "seed_vault"

type vaultRepository struct {
	store            *badgerhold.Store
	chEvents         chan domain.VaultEvent
	externalChEvents chan domain.VaultEvent
	lock             *sync.Mutex

	log func(format string, a ...interface{})
}

func NewSeedVaultRepository(store *badgerhold.Store) domain.SeedVaultRepository {
	return newVaultRepository(store)
}

func newVaultRepository(store *badgerhold.Store) *vaultRepository {
	chEvents := make(chan domain.VaultEvent, 10)
	externalChEvents := make(chan domain.VaultEvent, 10)
	lock := &sync.Mutex{}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("seed vault repository: %s", format)
		log.Debugf(format, a...)
	}
	return &vaultRepository{store, chEvents, externalChEvents, lock, logFn}
}

func (r *vaultRepository) CreateVault(
	ctx context.Context, vault *domain.SeedVault,
) error {
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxInsert(tx, vaultKey, *vault)
	} else {
		err = r.store.Insert(vaultKey, *vault)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrVaultAlreadyExists
		}
		return err
	}

	go r.publishEvent(domain.VaultEvent{EventType: domain.VaultCreated})
	return nil
}

func (r *vaultRepository) GetVault(ctx context.Context) (*domain.SeedVault, error) {
	if ctx.Value("tx") != nil {
		return r.getVault(ctx.Value("tx").(*badger.Txn))
	}

	var vault *domain.SeedVault
	if err := r.store.Badger().View(func(tx *badger.Txn) error {
		v, err := r.getVault(tx)
		vault = v
		return err
	}); err != nil {
		return nil, err
	}
	return vault, nil
}

// UpdateVault reads and writes the vault within the same badger transaction,
// unless one is given with the context.
func (r *vaultRepository) UpdateVault(
	ctx context.Context,
	updateFn func(v *domain.SeedVault) (*domain.SeedVault, error),
) error {
	update := func(tx *badger.Txn) error {
		vault, err := r.getVault(tx)
		if err != nil {
			return err
		}
		updated, err := updateFn(vault)
		if err != nil {
			return err
		}
		return r.store.TxUpdate(tx, vaultKey, *updated)
	}

	var err error
	if ctx.Value("tx") != nil {
		err = update(ctx.Value("tx").(*badger.Txn))
	} else {
		err = r.store.Badger().Update(update)
	}
	if err != nil {
		return err
	}

	go r.publishEvent(domain.VaultEvent{EventType: domain.VaultUpdated})
	return nil
}

func (r *vaultRepository) GetEventChannel() chan domain.VaultEvent {
	return r.externalChEvents
}

func (r *vaultRepository) getVault(tx *badger.Txn) (*domain.SeedVault, error) {
	var vault domain.SeedVault
	if err := r.store.TxGet(tx, vaultKey, &vault); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrVaultNotFound
		}
		return nil, err
	}
	return &vault, nil
}

func (r *vaultRepository) publishEvent(event domain.VaultEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.log("publish event %s", event.EventType)
	r.chEvents <- event

	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *vaultRepository) reset() {
	// nolint
	r.store.Badger().DropAll()
}

func (r *vaultRepository) close() {
	r.store.Close()
	close(r.chEvents)
	close(r.externalChEvents)
}
