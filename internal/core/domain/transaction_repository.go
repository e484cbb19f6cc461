package domain

import "context"

const (
	TransactionAdded TransactionEventType = iota
)

var (
	txTypeString = map[TransactionEventType]string{
		TransactionAdded: "TransactionAdded",
	}
)

type TransactionEventType int

func (t TransactionEventType) String() string {
	return txTypeString[t]
}

// TransactionEvent holds info about an event occured within the repository.
type TransactionEvent struct {
	EventType   TransactionEventType
	Transaction *Transaction
}

// TransactionRepository is the abstraction for any kind of database intended
// to persist the append-only transaction ledger.
type TransactionRepository interface {
	// AddTransaction adds the provided transaction to the repository by
	// preventing duplicates.
	// Generates a TransactionAdded event if successful.
	AddTransaction(ctx context.Context, tx *Transaction) (bool, error)
	// GetTransaction returns the Transaction identified by the given id.
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	// GetTransactionsForWallet returns the transactions of the given wallet
	// sorted by timestamp.
	GetTransactionsForWallet(
		ctx context.Context, key WalletKey,
	) ([]*Transaction, error)
	// GetEventChannel retunrs the channel of TransactionEvents.
	GetEventChannel() chan TransactionEvent
}
