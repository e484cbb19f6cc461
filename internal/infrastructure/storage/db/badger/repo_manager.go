package dbbadger

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
)

// repoManager holds all the badgerhold stores and domain repositories
// implementations in a single data structure.
type repoManager struct {
	vaultRepository   *vaultRepository
	mintRepository    *mintRepository
	proofRepository   *proofRepository
	txRepository      *transactionRepository
	quoteRepository   *quoteRepository
	counterRepository *counterRepository

	vaultEventHandlers *handlerMap
	mintEventHandlers  *handlerMap
	proofEventHandlers *handlerMap
	txEventHandlers    *handlerMap
	quoteEventHandlers *handlerMap
}

// NewRepoManager is the factory for creating a new badger implementation
// of the ports.RepoManager interface.
// It takes care of creating the db files on disk (or in-memory if no baseDbDir
// is provided - to be used only for testing purposes), and opening and closing
// the connection to them.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	var vaultDir, mintDir, proofDir, txDir, quoteDir, counterDir string
	if len(baseDbDir) > 0 {
		vaultDir   = filepath.Join(baseDbDir, "vault")
		mintDir    = filepath.Join(baseDbDir, "mints")
		proofDir   = filepath.Join(baseDbDir, "proofs")
		txDir      = filepath.Join(baseDbDir, "txs")
		quoteDir   = filepath.Join(baseDbDir, "quotes")
		counterDir = filepath.Join(baseDbDir, "counters")
	}

	vaultDb, err := createDb(vaultDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening vault db: %w", err)
	}
	mintDb, err := createDb(mintDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening mint db: %w", err)
	}
	proofDb, err := createDb(proofDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening proof db: %w", err)
	}
	txDb, err := createDb(txDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening tx db: %w", err)
	}
	quoteDb, err := createDb(quoteDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening quote db: %w", err)
	}
	counterDb, err := createDb(counterDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening counter db: %w", err)
	}

	rm := &repoManager{
		vaultRepository:    newVaultRepository(vaultDb),
		mintRepository:     newMintRepository(mintDb),
		proofRepository:    newProofRepository(proofDb),
		txRepository:       newTransactionRepository(txDb),
		quoteRepository:    newQuoteRepository(quoteDb),
		counterRepository:  newCounterRepository(counterDb),
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

	return rm, nil
}

func (d *repoManager) SeedVaultRepository() domain.SeedVaultRepository {
	return d.vaultRepository
}

func (d *repoManager) MintRepository() domain.MintRepository {
	return d.mintRepository
}

func (d *repoManager) ProofRepository() domain.ProofRepository {
	return d.proofRepository
}

func (d *repoManager) TransactionRepository() domain.TransactionRepository {
	return d.txRepository
}

func (d *repoManager) QuoteRepository() domain.QuoteRepository {
	return d.quoteRepository
}

func (d *repoManager) CounterRepository() domain.CounterRepository {
	return d.counterRepository
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

func (d *repoManager) Reset() {
	d.vaultRepository.reset()
	d.mintRepository.reset()
	d.proofRepository.reset()
	d.txRepository.reset()
	d.quoteRepository.reset()
	d.counterRepository.reset()
}

func (d *repoManager) Close() {
	d.vaultRepository.close()
	d.mintRepository.close()
	d.proofRepository.close()
	d.txRepository.close()
	d.quoteRepository.close()
	d.counterRepository.close()
}

func (rm *repoManager) listenToVaultEvents() {
	for event := range rm.vaultRepository.chEvents {
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
		if handlers, ok := rm.quoteEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.QuoteEventHandler)(event)
			}
		}
	}
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
					log.Warnf("garbage collector: %s", err)
				}
			}
		}()
	}

	return db, nil
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
