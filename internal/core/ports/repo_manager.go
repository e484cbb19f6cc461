package ports

import (
	"github.com/vulpemventures/cashew/internal/core/domain"
)

type VaultEventHandler func(event domain.VaultEvent)
type MintEventHandler func(event domain.MintEvent)
type ProofEventHandler func(event domain.ProofEvent)
type TxEventHandler func(event domain.TransactionEvent)
type QuoteEventHandler func(event domain.QuoteEvent)

// RepoManager is the abstraction for any kind of service intended to manage
// domain repositories implementations of the same concrete type.
type RepoManager interface {
	// SeedVaultRepository returns the seed vault repository.
	SeedVaultRepository() domain.SeedVaultRepository
	// MintRepository returns the mint registry repository.
	MintRepository() domain.MintRepository
	// ProofRepository returns the proof repository.
	ProofRepository() domain.ProofRepository
	// TransactionRepository returns the transaction ledger repository.
	TransactionRepository() domain.TransactionRepository
	// QuoteRepository returns the mint and melt quote repository.
	QuoteRepository() domain.QuoteRepository
	// CounterRepository returns the deterministic secret counter repository.
	CounterRepository() domain.CounterRepository

	// RegisterHandlerForVaultEvent registers an handler function, executed
	// whenever the given event type occurs.
	RegisterHandlerForVaultEvent(
		eventType domain.VaultEventType, handler VaultEventHandler,
	)
	// RegisterHandlerForMintEvent registers an handler function, executed
	// whenever the given event type occurs.
	RegisterHandlerForMintEvent(
		eventType domain.MintEventType, handler MintEventHandler,
	)
	// RegisterHandlerForProofEvent registers an handler function, executed
	// whenever the given event type occurs.
	RegisterHandlerForProofEvent(
		eventType domain.ProofEventType, handler ProofEventHandler,
	)
	// RegisterHandlerForTxEvent registers an handler function, executed
	// whenever the given event type occurs.
	RegisterHandlerForTxEvent(
		eventType domain.TransactionEventType, handler TxEventHandler,
	)
	// RegisterHandlerForQuoteEvent registers an handler function, executed
	// whenever the given event type occurs.
	RegisterHandlerForQuoteEvent(
		eventType domain.QuoteEventType, handler QuoteEventHandler,
	)

	// Reset brings all the repos to their initial state by deleting any persisted data.
	Reset()

	// Close closes the connection with all concrete repositories
	// implementations.
	Close()
}
