package inmemory

import (
	"context"
	"sync"

	"github.com/vulpemventures/cashew/internal/core/domain"
)

type vaultRepository struct {
	vault *domain.SeedVault
	lock  *sync.RWMutex

	chEvents         chan domain.VaultEvent
	externalChEvents chan domain.VaultEvent
	chLock           *sync.Mutex
}

func NewSeedVaultRepository() domain.SeedVaultRepository {
	return newVaultRepository()
}

func newVaultRepository() *vaultRepository {
	return &vaultRepository{
		lock:             &sync.RWMutex{},
		chEvents:         make(chan domain.VaultEvent),
		externalChEvents: make(chan domain.VaultEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *vaultRepository) CreateVault(
	_ context.Context, vault *domain.SeedVault,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.vault != nil {
		return domain.ErrVaultAlreadyExists
	}
	r.vault = copyVault(vault)

	go r.publishEvent(domain.VaultEvent{EventType: domain.VaultCreated})
	return nil
}

func (r *vaultRepository) GetVault(_ context.Context) (*domain.SeedVault, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.vault == nil {
		return nil, domain.ErrVaultNotFound
	}
	return copyVault(r.vault), nil
}

func (r *vaultRepository) UpdateVault(
	_ context.Context,
	updateFn func(v *domain.SeedVault) (*domain.SeedVault, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.vault == nil {
		return domain.ErrVaultNotFound
	}
	updated, err := updateFn(copyVault(r.vault))
	if err != nil {
		return err
	}
	r.vault = copyVault(updated)

	go r.publishEvent(domain.VaultEvent{EventType: domain.VaultUpdated})
	return nil
}

func (r *vaultRepository) GetEventChannel() chan domain.VaultEvent {
	return r.externalChEvents
}

func (r *vaultRepository) publishEvent(event domain.VaultEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *vaultRepository) reset() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.vault = nil
}

func (r *vaultRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}

func copyVault(v *domain.SeedVault) *domain.SeedVault {
	cp := *v
	cp.EncryptedMnemonic = append([]byte(nil), v.EncryptedMnemonic...)
	return &cp
}
