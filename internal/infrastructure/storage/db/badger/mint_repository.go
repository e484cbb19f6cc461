package dbbadger

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

type mintRepository struct {
	store            *badgerhold.Store
	chEvents         chan domain.MintEvent
	externalChEvents chan domain.MintEvent
	lock             *sync.Mutex

	log func(format string, a ...interface{})
}

func NewMintRepository(store *badgerhold.Store) domain.MintRepository {
	return newMintRepository(store)
}

func newMintRepository(store *badgerhold.Store) *mintRepository {
	chEvents := make(chan domain.MintEvent)
	externalChEvents := make(chan domain.MintEvent)
	lock := &sync.Mutex{}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("mint repository: %s", format)
		log.Debugf(format, a...)
	}
	return &mintRepository{store, chEvents, externalChEvents, lock, logFn}
}

func (r *mintRepository) AddMint(
	ctx context.Context, mint *domain.MintRecord,
) error {
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxInsert(tx, mint.URL, *mint)
	} else {
		err = r.store.Insert(mint.URL, *mint)
	}
	if err != nil {
		if err == badgerhold.ErrKeyExists {
			return domain.ErrMintAlreadyExists
		}
		return err
	}

	go r.publishEvent(domain.MintEvent{
		EventType: domain.MintAdded,
		MintURL:   mint.URL,
	})
	return nil
}

func (r *mintRepository) GetMint(
	ctx context.Context, url string,
) (*domain.MintRecord, error) {
	return r.getMint(ctx, url)
}

func (r *mintRepository) GetAllMints(
	ctx context.Context,
) ([]*domain.MintRecord, error) {
	query := badgerhold.Where("URL").Ne("").SortBy("URL")

	var list []domain.MintRecord
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

	mints := make([]*domain.MintRecord, 0, len(list))
	for i := range list {
		m := list[i]
		mints = append(mints, &m)
	}
	return mints, nil
}

func (r *mintRepository) UpdateMint(
	ctx context.Context, url string,
	updateFn func(m *domain.MintRecord) (*domain.MintRecord, error),
) error {
	mint, err := r.getMint(ctx, url)
	if err != nil {
		return err
	}

	updatedMint, err := updateFn(mint)
	if err != nil {
		return err
	}

	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxUpdate(tx, url, *updatedMint)
	} else {
		err = r.store.Update(url, *updatedMint)
	}
	if err != nil {
		return err
	}

	go r.publishEvent(domain.MintEvent{
		EventType: domain.MintUpdated,
		MintURL:   url,
	})
	return nil
}

func (r *mintRepository) DeleteMint(ctx context.Context, url string) error {
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxDelete(tx, url, domain.MintRecord{})
	} else {
		err = r.store.Delete(url, domain.MintRecord{})
	}
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return domain.ErrMintNotFound
		}
		return err
	}

	go r.publishEvent(domain.MintEvent{
		EventType: domain.MintRemoved,
		MintURL:   url,
	})
	return nil
}

func (r *mintRepository) GetEventChannel() chan domain.MintEvent {
	return r.externalChEvents
}

func (r *mintRepository) getMint(
	ctx context.Context, url string,
) (*domain.MintRecord, error) {
	var err error
	var mint domain.MintRecord

	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxGet(tx, url, &mint)
	} else {
		err = r.store.Get(url, &mint)
	}
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrMintNotFound
		}
		return nil, err
	}
	return &mint, nil
}

func (r *mintRepository) publishEvent(event domain.MintEvent) {
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

func (r *mintRepository) reset() {
	// nolint
	r.store.Badger().DropAll()
}

func (r *mintRepository) close() {
	r.store.Close()
	close(r.chEvents)
	close(r.externalChEvents)
}
