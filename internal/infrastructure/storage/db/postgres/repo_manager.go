package postgresdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"

	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const (
	postgresDriver             = "pgx"
	insecureDataSourceTemplate = "postgresql://%s:%s@%s:%d/%s?sslmode=disable"
	//uniqueViolation is a postgres error code for unique constraint violation
	uniqueViolation = "23505"
)

type repoManager struct {
	pgxPool *pgxpool.Pool

	vaultRepository   *vaultRepositoryPg
	mintRepository    *mintRepositoryPg
	proofRepository   *proofRepositoryPg
	txRepository      *txRepositoryPg
	quoteRepository   *quoteRepositoryPg
	counterRepository *counterRepositoryPg

	vaultEventHandlers *handlerMap
	mintEventHandlers  *handlerMap
	proofEventHandlers *handlerMap
	txEventHandlers    *handlerMap
	quoteEventHandlers *handlerMap
}

func NewRepoManager(dbConfig DbConfig) (ports.RepoManager, error) {
	dataSource := insecureDataSourceStr(dbConfig)

	pgxPool, err := connect(dataSource)
	if err != nil {
		return nil, err
	}

	if err = migrateDb(dataSource, dbConfig.MigrationSourceURL); err != nil {
		return nil, err
	}

	rm := &repoManager{
		pgxPool:            pgxPool,
		vaultRepository:    newVaultRepositoryPg(pgxPool),
		mintRepository:     newMintRepositoryPg(pgxPool),
		proofRepository:    newProofRepositoryPg(pgxPool),
		txRepository:       newTxRepositoryPg(pgxPool),
		quoteRepository:    newQuoteRepositoryPg(pgxPool),
		counterRepository:  newCounterRepositoryPg(pgxPool),
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

type DbConfig struct {
	DbUser             string
	DbPassword         string
	DbHost             string
	DbPort             int
	DbName             string
	MigrationSourceURL string
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
				go handlers[i].(ports.VaultEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) listenToMintEvents() {
	for event := range rm.mintRepository.chEvents {
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.mintEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				go handlers[i].(ports.MintEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) listenToProofEvents() {
	for event := range rm.proofRepository.chEvents {
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.proofEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				go handlers[i].(ports.ProofEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) listenToTxEvents() {
	for event := range rm.txRepository.chEvents {
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.txEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				go handlers[i].(ports.TxEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) listenToQuoteEvents() {
	for event := range rm.quoteRepository.chEvents {
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.quoteEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				go handlers[i].(ports.QuoteEventHandler)(event)
			}
		}
	}
}

// Reset truncates all tables.
func (rm *repoManager) Reset() {
	// nolint
	rm.pgxPool.Exec(
		context.Background(),
		`TRUNCATE seed_vault, mint, proof, wallet_transaction, mint_quote,
		melt_quote, keyset_counter`,
	)
}

func (rm *repoManager) Close() {
	rm.vaultRepository.close()
	rm.mintRepository.close()
	rm.proofRepository.close()
	rm.txRepository.close()
	rm.quoteRepository.close()

	rm.pgxPool.Close()
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

func connect(dataSource string) (*pgxpool.Pool, error) {
	return pgxpool.Connect(context.Background(), dataSource)
}

func migrateDb(dataSource, migrationSourceUrl string) error {
	pg := postgres.Postgres{}

	d, err := pg.Open(dataSource)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationSourceUrl,
		postgresDriver,
		d,
	)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	return nil
}

// insecureDataSourceStr converts database configuration params to connection string
func insecureDataSourceStr(dbConfig DbConfig) string {
	return fmt.Sprintf(
		insecureDataSourceTemplate,
		dbConfig.DbUser,
		dbConfig.DbPassword,
		dbConfig.DbHost,
		dbConfig.DbPort,
		dbConfig.DbName,
	)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
