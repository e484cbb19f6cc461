package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/vulpemventures/cashew/internal/core/domain"
)

type txInmemoryStore struct {
	txs  map[string]*domain.Transaction
	lock *sync.RWMutex
}

type txRepository struct {
	store            *txInmemoryStore
	chEvents         chan domain.TransactionEvent
	externalChEvents chan domain.TransactionEvent
	chLock           *sync.Mutex
}

func NewTransactionRepository() domain.TransactionRepository {
	return newTransactionRepository()
}

func newTransactionRepository() *txRepository {
	return &txRepository{
		store: &txInmemoryStore{
			txs:  make(map[string]*domain.Transaction),
			lock: &sync.RWMutex{},
		},
		chEvents:         make(chan domain.TransactionEvent),
		externalChEvents: make(chan domain.TransactionEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *txRepository) AddTransaction(
	_ context.Context, tx *domain.Transaction,
) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.txs[tx.ID]; ok {
		return false, nil
	}

	stored := copyTransaction(tx)
	r.store.txs[tx.ID] = stored

	go r.publishEvent(domain.TransactionEvent{
		EventType:   domain.TransactionAdded,
		Transaction: copyTransaction(stored),
	})

	return true, nil
}

func (r *txRepository) GetTransaction(
	_ context.Context, id string,
) (*domain.Transaction, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	tx, ok := r.store.txs[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return copyTransaction(tx), nil
}

func (r *txRepository) GetTransactionsForWallet(
	_ context.Context, key domain.WalletKey,
) ([]*domain.Transaction, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	txs := make([]*domain.Transaction, 0)
	for _, tx := range r.store.txs {
		if tx.WalletKey() == key {
			txs = append(txs, copyTransaction(tx))
		}
	}
	sortTransactions(txs)
	return txs, nil
}

func (r *txRepository) GetEventChannel() chan domain.TransactionEvent {
	return r.externalChEvents
}

func (r *txRepository) publishEvent(event domain.TransactionEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *txRepository) reset() {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	r.store.txs = make(map[string]*domain.Transaction)
}

func (r *txRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}

func copyTransaction(tx *domain.Transaction) *domain.Transaction {
	t := *tx
	t.Metadata = make(map[string]string, len(tx.Metadata))
	for k, v := range tx.Metadata {
		t.Metadata[k] = v
	}
	return &t
}

func sortTransactions(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Timestamp != txs[j].Timestamp {
			return txs[i].Timestamp < txs[j].Timestamp
		}
		return txs[i].ID < txs[j].ID
	})
}
