package inmemory

import (
	"sync"
	"time"

	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
)

type repoManager struct {
	vaultRepository   *vaultRepository
	mintRepository    *mintRepository
	proofRepository   *proofRepository
	txRepository      *txRepository
	quoteRepository   *quoteRepository
	counterRepository *counterRepository

	vaultEventHandlers *handlerMap
	mintEventHandlers  *handlerMap
	proofEventHandlers *handlerMap
	txEventHandlers    *handlerMap
	quoteEventHandlers *handlerMap
}

func NewRepoManager() ports.RepoManager {
	rm := &repoManager{
		vaultRepository:    newVaultRepository(),
		mintRepository:     newMintRepository(),
		proofRepository:    newProofRepository(),
		txRepository:       newTransactionRepository(),
		quoteRepository:    newQuoteRepository(),
		counterRepository:  newCounterRepository(),
		vaultEventHandlers: newHandlerMap(),
		mintEventHandlers:  newHandlerMap(),
		proofEventHandlers: newHandlerMap(),
		txEventHandlers:    newHandlerMap(),
		quoteEventHandlers: newHandlerMap(),
	}

	go rm.listenToVaultEvents()
	go rm.listenToMintEvents()
	go rm.listenToProofEvents()
	go rm.listenToTxEvents()
	go rm.listenToQuoteEvents()

	return rm
}

func (rm *repoManager) SeedVaultRepository() domain.SeedVaultRepository {
	return rm.vaultRepository
}

func (rm *repoManager) MintRepository() domain.MintRepository {
	return rm.mintRepository
}

func (rm *repoManager) ProofRepository() domain.ProofRepository {
	return rm.proofRepository
}

func (rm *repoManager) TransactionRepository() domain.TransactionRepository {
	return rm.txRepository
}

func (rm *repoManager) QuoteRepository() domain.QuoteRepository {
	return rm.quoteRepository
}

func (rm *repoManager) CounterRepository() domain.CounterRepository {
	return rm.counterRepository
}

func (rm *repoManager) RegisterHandlerForVaultEvent(
	eventType domain.VaultEventType, handler ports.VaultEventHandler,
) {
	rm.vaultEventHandlers.set(int(eventType), handler)
}

func (rm *repoManager) RegisterHandlerForMintEvent(
	eventType domain.MintEventType, handler ports.MintEventHandler,
) {
	rm.mintEventHandlers.set(int(eventType), handler)
}

func (rm *repoManager) RegisterHandlerForProofEvent(
	eventType domain.ProofEventType, handler ports.ProofEventHandler,
) {
	rm.proofEventHandlers.set(int(eventType), handler)
}

func (rm *repoManager) RegisterHandlerForTxEvent(
	eventType domain.TransactionEventType, handler ports.TxEventHandler,
) {
	rm.txEventHandlers.set(int(eventType), handler)
}

func (rm *repoManager) RegisterHandlerForQuoteEvent(
	eventType domain.QuoteEventType, handler ports.QuoteEventHandler,
) {
	rm.quoteEventHandlers.set(int(eventType), handler)
}

func (rm *repoManager) listenToVaultEvents() {
	for event := range rm.vaultRepository.chEvents {
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.vaultEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.VaultEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) listenToMintEvents() {
	for event := range rm.mintRepository.chEvents {
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.mintEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.MintEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) listenToProofEvents() {
	for event := range rm.proofRepository.chEvents {
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.proofEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.ProofEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) listenToTxEvents() {
	for event := range rm.txRepository.chEvents {
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.txEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.TxEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) listenToQuoteEvents() {
	for event := range rm.quoteRepository.chEvents {
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.quoteEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.QuoteEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) Reset() {
	rm.vaultRepository.reset()
	rm.mintRepository.reset()
	rm.proofRepository.reset()
	rm.txRepository.reset()
	rm.quoteRepository.reset()
	rm.counterRepository.reset()
}

func (rm *repoManager) Close() {
	rm.vaultRepository.close()
	rm.mintRepository.close()
	rm.proofRepository.close()
	rm.txRepository.close()
	rm.quoteRepository.close()
}

// handlerMap is a util type to prevent race conditions when registering
// or retrieving handlers for events.
type handlerMap struct {
	handlersByEventType map[int][]interface{}
	lock                *sync.RWMutex
}

func newHandlerMap() *handlerMap {
	return &handlerMap{
		handlersByEventType: make(map[int][]interface{}),
		lock:                &sync.RWMutex{},
	}
}

func (m *handlerMap) set(key int, val interface{}) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.handlersByEventType[key] = append(m.handlersByEventType[key], val)
}

func (m *handlerMap) get(key int) ([]interface{}, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	val, ok := m.handlersByEventType[key]
	return val, ok
}
