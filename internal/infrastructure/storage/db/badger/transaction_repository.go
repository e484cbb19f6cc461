package dbbadger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

type transactionRepository struct {
	store            *badgerhold.Store
	chEvents         chan domain.TransactionEvent
	externalChEvents chan domain.TransactionEvent
	lock             *sync.Mutex

	log func(format string, a ...interface{})
}

func NewTransactionRepository(
	store *badgerhold.Store,
) domain.TransactionRepository {
	return newTransactionRepository(store)
}

func newTransactionRepository(
	store *badgerhold.Store,
) *transactionRepository {
	chEvents := make(chan domain.TransactionEvent)
	extrernalChEvents := make(chan domain.TransactionEvent)
	lock := &sync.Mutex{}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("transaction repository: %s", format)
		log.Debugf(format, a...)
	}
	return &transactionRepository{
		store, chEvents, extrernalChEvents, lock, logFn,
	}
}

func (r *transactionRepository) AddTransaction(
	ctx context.Context, tx *domain.Transaction,
) (bool, error) {
	done, err := r.insertTx(ctx, tx)
	if done {
		go r.publishEvent(domain.TransactionEvent{
			EventType:   domain.TransactionAdded,
			Transaction: tx,
		})
	}
	return done, err
}

func (r *transactionRepository) GetTransaction(
	ctx context.Context, id string,
) (*domain.Transaction, error) {
	return r.getTx(ctx, id)
}

func (r *transactionRepository) GetTransactionsForWallet(
	ctx context.Context, key domain.WalletKey,
) ([]*domain.Transaction, error) {
	query := badgerhold.Where("MintURL").Eq(key.MintURL).And("Unit").Eq(key.Unit)

	var list []domain.Transaction
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxFind(tx, &list, query)
	} else {
		err = r.store.Find(&list, query)
	}
	if err != nil {
		return nil, err
	}

	txs := make([]*domain.Transaction, 0, len(list))
	for i := range list {
		tx := list[i]
		txs = append(txs, &tx)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Timestamp != txs[j].Timestamp {
			return txs[i].Timestamp < txs[j].Timestamp
		}
		return txs[i].ID < txs[j].ID
	})
	return txs, nil
}

func (r *transactionRepository) GetEventChannel() chan domain.TransactionEvent {
	return r.externalChEvents
}

func (r *transactionRepository) insertTx(
	ctx context.Context, tx *domain.Transaction,
) (bool, error) {
	var err error
	if ctx.Value("tx") != nil {
		t := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxInsert(t, tx.ID, *tx)
	} else {
		err = r.store.Insert(tx.ID, *tx)
	}

	if err != nil {
		if err == badgerhold.ErrKeyExists {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (r *transactionRepository) getTx(
	ctx context.Context, id string,
) (*domain.Transaction, error) {
	var err error
	var tx domain.Transaction

	if ctx.Value("tx") != nil {
		t := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxGet(t, id, &tx)
	} else {
		err = r.store.Get(id, &tx)
	}

	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}

	return &tx, nil
}

func (r *transactionRepository) publishEvent(event domain.TransactionEvent) {
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

func (r *transactionRepository) reset() {
	// nolint
	r.store.Badger().DropAll()
}

func (r *transactionRepository) close() {
	r.store.Close()
	close(r.chEvents)
	close(r.externalChEvents)
}
