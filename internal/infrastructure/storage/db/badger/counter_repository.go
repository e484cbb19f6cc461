package dbbadger

import (
	"context"
	"math"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

type counterData struct {
	KeysetID string
	Counter  uint32
}

type counterRepository struct {
	store *badgerhold.Store
	lock  *sync.Mutex
}

func NewCounterRepository(store *badgerhold.Store) domain.CounterRepository {
	return newCounterRepository(store)
}

func newCounterRepository(store *badgerhold.Store) *counterRepository {
	return &counterRepository{store, &sync.Mutex{}}
}

func (r *counterRepository) ReserveCounters(
	_ context.Context, keysetID string, n uint32,
) (uint32, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var start uint32
	if err := r.store.Badger().Update(func(tx *badger.Txn) error {
		counter, err := r.getCounter(tx, keysetID)
		if err != nil {
			return err
		}
		if uint64(counter)+uint64(n) > math.MaxInt32 {
			return domain.ErrCounterOverflow
		}
		start = counter
		return r.store.TxUpsert(tx, keysetID, counterData{
			KeysetID: keysetID,
			Counter:  counter + n,
		})
	}); err != nil {
		return 0, err
	}
	return start, nil
}

func (r *counterRepository) GetCounter(
	_ context.Context, keysetID string,
) (uint32, error) {
	var counter uint32
	err := r.store.Badger().View(func(tx *badger.Txn) error {
		var err error
		counter, err = r.getCounter(tx, keysetID)
		return err
	})
	return counter, err
}

func (r *counterRepository) getCounter(
	tx *badger.Txn, keysetID string,
) (uint32, error) {
	var data counterData
	if err := r.store.TxGet(tx, keysetID, &data); err != nil {
		if err == badgerhold.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	return data.Counter, nil
}

func (r *counterRepository) reset() {
	// nolint
	r.store.Badger().DropAll()
}

func (r *counterRepository) close() {
	r.store.Close()
}
