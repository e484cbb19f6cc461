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

type quoteRepository struct {
	store            *badgerhold.Store
	chEvents         chan domain.QuoteEvent
	externalChEvents chan domain.QuoteEvent
	lock             *sync.Mutex
	writeLock        *sync.Mutex

	log func(format string, a ...interface{})
}

func NewQuoteRepository(store *badgerhold.Store) domain.QuoteRepository {
	return newQuoteRepository(store)
}

func newQuoteRepository(store *badgerhold.Store) *quoteRepository {
	chEvents := make(chan domain.QuoteEvent)
	externalChEvents := make(chan domain.QuoteEvent)
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("quote repository: %s", format)
		log.Debugf(format, a...)
	}
	return &quoteRepository{
		store, chEvents, externalChEvents, &sync.Mutex{}, &sync.Mutex{}, logFn,
	}
}

func (r *quoteRepository) AddMintQuote(
	_ context.Context, quote *domain.MintQuote,
) error {
	if err := r.store.Insert(quote.ID, *quote); err != nil {
		if err == badgerhold.ErrKeyExists {
			return domain.ErrQuoteAlreadyExists
		}
		return err
	}

	go r.publishEvent(domain.QuoteEvent{
		EventType: domain.MintQuoteAdded,
		QuoteID:   quote.ID,
		WalletKey: quote.WalletKey(),
	})
	return nil
}

func (r *quoteRepository) GetMintQuote(
	_ context.Context, id string,
) (*domain.MintQuote, error) {
	var quote domain.MintQuote
	if err := r.store.Get(id, &quote); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrQuoteNotFound
		}
		return nil, err
	}
	return &quote, nil
}

func (r *quoteRepository) GetPendingMintQuotes(
	_ context.Context,
) ([]*domain.MintQuote, error) {
	query := badgerhold.Where("State").Ne(domain.MintQuoteIssued).
		SortBy("CreatedAt")

	var list []domain.MintQuote
	if err := r.store.Find(&list, query); err != nil {
		return nil, err
	}
	quotes := make([]*domain.MintQuote, 0, len(list))
	for i := range list {
		q := list[i]
		quotes = append(quotes, &q)
	}
	return quotes, nil
}

func (r *quoteRepository) UpdateMintQuote(
	_ context.Context, id string,
	updateFn func(q *domain.MintQuote) (*domain.MintQuote, error),
) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	var updatedQuote *domain.MintQuote
	if err := r.store.Badger().Update(func(tx *badger.Txn) error {
		var quote domain.MintQuote
		if err := r.store.TxGet(tx, id, &quote); err != nil {
			if err == badgerhold.ErrNotFound {
				return domain.ErrQuoteNotFound
			}
			return err
		}
		var err error
		if updatedQuote, err = updateFn(&quote); err != nil {
			return err
		}
		return r.store.TxUpdate(tx, id, *updatedQuote)
	}); err != nil {
		return err
	}

	go r.publishEvent(domain.QuoteEvent{
		EventType: domain.MintQuoteUpdated,
		QuoteID:   id,
		WalletKey: updatedQuote.WalletKey(),
	})
	return nil
}

func (r *quoteRepository) AddMeltQuote(
	_ context.Context, quote *domain.MeltQuote,
) error {
	if err := r.store.Insert(quote.ID, *quote); err != nil {
		if err == badgerhold.ErrKeyExists {
			return domain.ErrQuoteAlreadyExists
		}
		return err
	}

	go r.publishEvent(domain.QuoteEvent{
		EventType: domain.MeltQuoteAdded,
		QuoteID:   quote.ID,
		WalletKey: quote.WalletKey(),
	})
	return nil
}

func (r *quoteRepository) GetMeltQuote(
	_ context.Context, id string,
) (*domain.MeltQuote, error) {
	var quote domain.MeltQuote
	if err := r.store.Get(id, &quote); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrQuoteNotFound
		}
		return nil, err
	}
	return &quote, nil
}

func (r *quoteRepository) GetPendingMeltQuotes(
	_ context.Context,
) ([]*domain.MeltQuote, error) {
	query := badgerhold.Where("State").
		In(domain.MeltQuoteUnpaid, domain.MeltQuotePending).
		SortBy("CreatedAt")

	var list []domain.MeltQuote
	if err := r.store.Find(&list, query); err != nil {
		return nil, err
	}
	quotes := make([]*domain.MeltQuote, 0, len(list))
	for i := range list {
		q := list[i]
		quotes = append(quotes, &q)
	}
	return quotes, nil
}

func (r *quoteRepository) UpdateMeltQuote(
	_ context.Context, id string,
	updateFn func(q *domain.MeltQuote) (*domain.MeltQuote, error),
) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	var updatedQuote *domain.MeltQuote
	if err := r.store.Badger().Update(func(tx *badger.Txn) error {
		var quote domain.MeltQuote
		if err := r.store.TxGet(tx, id, &quote); err != nil {
			if err == badgerhold.ErrNotFound {
				return domain.ErrQuoteNotFound
			}
			return err
		}
		var err error
		if updatedQuote, err = updateFn(&quote); err != nil {
			return err
		}
		return r.store.TxUpdate(tx, id, *updatedQuote)
	}); err != nil {
		return err
	}

	go r.publishEvent(domain.QuoteEvent{
		EventType: domain.MeltQuoteUpdated,
		QuoteID:   id,
		WalletKey: updatedQuote.WalletKey(),
	})
	return nil
}

func (r *quoteRepository) DeleteQuotesForMint(
	_ context.Context, mintURL string,
) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	query := badgerhold.Where("MintURL").Eq(mintURL)
	if err := r.store.DeleteMatching(&domain.MintQuote{}, query); err != nil {
		return err
	}
	return r.store.DeleteMatching(&domain.MeltQuote{}, query)
}

func (r *quoteRepository) GetEventChannel() chan domain.QuoteEvent {
	return r.externalChEvents
}

func (r *quoteRepository) publishEvent(event domain.QuoteEvent) {
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

func (r *quoteRepository) reset() {
	// nolint
	r.store.Badger().DropAll()
}

func (r *quoteRepository) close() {
	r.store.Close()
	close(r.chEvents)
	close(r.externalChEvents)
}
