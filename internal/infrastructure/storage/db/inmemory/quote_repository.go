package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/vulpemventures/cashew/internal/core/domain"
)

type quoteInmemoryStore struct {
	mintQuotes map[string]*domain.MintQuote
	meltQuotes map[string]*domain.MeltQuote
	lock       *sync.RWMutex
}

type quoteRepository struct {
	store            *quoteInmemoryStore
	chEvents         chan domain.QuoteEvent
	externalChEvents chan domain.QuoteEvent
	chLock           *sync.Mutex
}

func NewQuoteRepository() domain.QuoteRepository {
	return newQuoteRepository()
}

func newQuoteRepository() *quoteRepository {
	return &quoteRepository{
		store: &quoteInmemoryStore{
			mintQuotes: make(map[string]*domain.MintQuote),
			meltQuotes: make(map[string]*domain.MeltQuote),
			lock:       &sync.RWMutex{},
		},
		chEvents:         make(chan domain.QuoteEvent),
		externalChEvents: make(chan domain.QuoteEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *quoteRepository) AddMintQuote(
	_ context.Context, quote *domain.MintQuote,
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.mintQuotes[quote.ID]; ok {
		return domain.ErrQuoteAlreadyExists
	}
	q := *quote
	r.store.mintQuotes[quote.ID] = &q

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
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	quote, ok := r.store.mintQuotes[id]
	if !ok {
		return nil, domain.ErrQuoteNotFound
	}
	q := *quote
	return &q, nil
}

func (r *quoteRepository) GetPendingMintQuotes(
	_ context.Context,
) ([]*domain.MintQuote, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	quotes := make([]*domain.MintQuote, 0)
	for _, quote := range r.store.mintQuotes {
		if quote.IsIssued() {
			continue
		}
		q := *quote
		quotes = append(quotes, &q)
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].CreatedAt < quotes[j].CreatedAt
	})
	return quotes, nil
}

func (r *quoteRepository) UpdateMintQuote(
	_ context.Context, id string,
	updateFn func(q *domain.MintQuote) (*domain.MintQuote, error),
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	quote, ok := r.store.mintQuotes[id]
	if !ok {
		return domain.ErrQuoteNotFound
	}
	q := *quote
	updatedQuote, err := updateFn(&q)
	if err != nil {
		return err
	}
	uq := *updatedQuote
	r.store.mintQuotes[id] = &uq

	go r.publishEvent(domain.QuoteEvent{
		EventType: domain.MintQuoteUpdated,
		QuoteID:   id,
		WalletKey: uq.WalletKey(),
	})
	return nil
}

func (r *quoteRepository) AddMeltQuote(
	_ context.Context, quote *domain.MeltQuote,
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.meltQuotes[quote.ID]; ok {
		return domain.ErrQuoteAlreadyExists
	}
	r.store.meltQuotes[quote.ID] = copyMeltQuote(quote)

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
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	quote, ok := r.store.meltQuotes[id]
	if !ok {
		return nil, domain.ErrQuoteNotFound
	}
	return copyMeltQuote(quote), nil
}

func (r *quoteRepository) GetPendingMeltQuotes(
	_ context.Context,
) ([]*domain.MeltQuote, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	quotes := make([]*domain.MeltQuote, 0)
	for _, quote := range r.store.meltQuotes {
		if quote.State.IsFinal() {
			continue
		}
		quotes = append(quotes, copyMeltQuote(quote))
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].CreatedAt < quotes[j].CreatedAt
	})
	return quotes, nil
}

func (r *quoteRepository) UpdateMeltQuote(
	_ context.Context, id string,
	updateFn func(q *domain.MeltQuote) (*domain.MeltQuote, error),
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	quote, ok := r.store.meltQuotes[id]
	if !ok {
		return domain.ErrQuoteNotFound
	}
	updatedQuote, err := updateFn(copyMeltQuote(quote))
	if err != nil {
		return err
	}
	r.store.meltQuotes[id] = copyMeltQuote(updatedQuote)

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
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	for id, q := range r.store.mintQuotes {
		if q.MintURL == mintURL {
			delete(r.store.mintQuotes, id)
		}
	}
	for id, q := range r.store.meltQuotes {
		if q.MintURL == mintURL {
			delete(r.store.meltQuotes, id)
		}
	}
	return nil
}

func (r *quoteRepository) GetEventChannel() chan domain.QuoteEvent {
	return r.externalChEvents
}

func (r *quoteRepository) publishEvent(event domain.QuoteEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *quoteRepository) reset() {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	r.store.mintQuotes = make(map[string]*domain.MintQuote)
	r.store.meltQuotes = make(map[string]*domain.MeltQuote)
}

func (r *quoteRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}

func copyMeltQuote(q *domain.MeltQuote) *domain.MeltQuote {
	c := *q
	if q.PendingSecrets != nil {
		c.PendingSecrets = append([]string{}, q.PendingSecrets...)
	}
	return &c
}
