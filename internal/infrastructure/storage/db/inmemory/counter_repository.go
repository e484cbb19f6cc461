package inmemory

import (
	"context"
	"math"
	"sync"

	"github.com/vulpemventures/cashew/internal/core/domain"
)

type counterRepository struct {
	counters map[string]uint32
	lock     *sync.Mutex
}

func NewCounterRepository() domain.CounterRepository {
	return newCounterRepository()
}

func newCounterRepository() *counterRepository {
	return &counterRepository{
		counters: make(map[string]uint32),
		lock:     &sync.Mutex{},
	}
}

func (r *counterRepository) ReserveCounters(
	_ context.Context, keysetID string, n uint32,
) (uint32, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	start := r.counters[keysetID]
	if uint64(start)+uint64(n) > math.MaxInt32 {
		return 0, domain.ErrCounterOverflow
	}
	r.counters[keysetID] = start + n
	return start, nil
}

func (r *counterRepository) GetCounter(
	_ context.Context, keysetID string,
) (uint32, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.counters[keysetID], nil
}

func (r *counterRepository) reset() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.counters = make(map[string]uint32)
}
