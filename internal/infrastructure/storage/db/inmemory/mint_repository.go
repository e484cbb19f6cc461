package inmemory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/vulpemventures/cashew/internal/core/domain"
)

type mintInmemoryStore struct {
	mints map[string]*domain.MintRecord
	lock  *sync.RWMutex
}

type mintRepository struct {
	store            *mintInmemoryStore
	chEvents         chan domain.MintEvent
	externalChEvents chan domain.MintEvent
	chLock           *sync.Mutex
}

func NewMintRepository() domain.MintRepository {
	return newMintRepository()
}

func newMintRepository() *mintRepository {
	return &mintRepository{
		store: &mintInmemoryStore{
			mints: make(map[string]*domain.MintRecord),
			lock:  &sync.RWMutex{},
		},
		chEvents:         make(chan domain.MintEvent),
		externalChEvents: make(chan domain.MintEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *mintRepository) AddMint(
	_ context.Context, mint *domain.MintRecord,
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.mints[mint.URL]; ok {
		return domain.ErrMintAlreadyExists
	}
	r.store.mints[mint.URL] = copyMint(mint)

	go r.publishEvent(domain.MintEvent{
		EventType: domain.MintAdded,
		MintURL:   mint.URL,
	})
	return nil
}

func (r *mintRepository) GetMint(
	_ context.Context, url string,
) (*domain.MintRecord, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	mint, ok := r.store.mints[url]
	if !ok {
		return nil, domain.ErrMintNotFound
	}
	return copyMint(mint), nil
}

func (r *mintRepository) GetAllMints(
	_ context.Context,
) ([]*domain.MintRecord, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	mints := make([]*domain.MintRecord, 0, len(r.store.mints))
	for _, m := range r.store.mints {
		mints = append(mints, copyMint(m))
	}
	sort.SliceStable(mints, func(i, j int) bool {
		return mints[i].URL < mints[j].URL
	})
	return mints, nil
}

func (r *mintRepository) UpdateMint(
	_ context.Context, url string,
	updateFn func(m *domain.MintRecord) (*domain.MintRecord, error),
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	mint, ok := r.store.mints[url]
	if !ok {
		return domain.ErrMintNotFound
	}

	updatedMint, err := updateFn(copyMint(mint))
	if err != nil {
		return err
	}
	r.store.mints[url] = copyMint(updatedMint)

	go r.publishEvent(domain.MintEvent{
		EventType: domain.MintUpdated,
		MintURL:   url,
	})
	return nil
}

func (r *mintRepository) DeleteMint(_ context.Context, url string) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.mints[url]; !ok {
		return domain.ErrMintNotFound
	}
	delete(r.store.mints, url)

	go r.publishEvent(domain.MintEvent{
		EventType: domain.MintRemoved,
		MintURL:   url,
	})
	return nil
}

func (r *mintRepository) GetEventChannel() chan domain.MintEvent {
	return r.externalChEvents
}

func (r *mintRepository) publishEvent(event domain.MintEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *mintRepository) reset() {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	r.store.mints = make(map[string]*domain.MintRecord)
}

func (r *mintRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}

func copyMint(m *domain.MintRecord) *domain.MintRecord {
	c := *m
	c.Units = append([]string(nil), m.Units...)
	c.BackupEventIDs = append([]string(nil), m.BackupEventIDs...)
	c.Keysets = make([]domain.Keyset, 0, len(m.Keysets))
	for _, k := range m.Keysets {
		if k.Keys != nil {
			keys := make(map[uint64]string, len(k.Keys))
			for amount, key := range k.Keys {
				keys[amount] = key
			}
			k.Keys = keys
		}
		c.Keysets = append(c.Keysets, k)
	}
	c.Info.Contact = append([]domain.MintContact(nil), m.Info.Contact...)
	if m.Info.Nuts != nil {
		c.Info.Nuts = make(map[string]json.RawMessage, len(m.Info.Nuts))
		for k, v := range m.Info.Nuts {
			c.Info.Nuts[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}
