package domain

import "context"

const (
	MintQuoteAdded QuoteEventType = iota
	MintQuoteUpdated
	MeltQuoteAdded
	MeltQuoteUpdated
)

var (
	quoteTypeString = map[QuoteEventType]string{
		MintQuoteAdded:   "MintQuoteAdded",
		MintQuoteUpdated: "MintQuoteUpdated",
		MeltQuoteAdded:   "MeltQuoteAdded",
		MeltQuoteUpdated: "MeltQuoteUpdated",
	}
)

type QuoteEventType int

func (t QuoteEventType) String() string {
	return quoteTypeString[t]
}

// QuoteEvent holds info about an event occured within the repository.
type QuoteEvent struct {
	EventType QuoteEventType
	QuoteID   string
	WalletKey WalletKey
}

// QuoteRepository is the abstraction for any kind of database intended to
// persist mint and melt quotes.
type QuoteRepository interface {
	// AddMintQuote stores a new mint quote by preventing duplicates.
	// Generates a MintQuoteAdded event if successful.
	AddMintQuote(ctx context.Context, quote *MintQuote) error
	// GetMintQuote returns the mint quote with the given id.
	GetMintQuote(ctx context.Context, id string) (*MintQuote, error)
	// GetPendingMintQuotes returns all the quotes not yet issued.
	GetPendingMintQuotes(ctx context.Context) ([]*MintQuote, error)
	// UpdateMintQuote allows to commit multiple changes to the same quote in
	// a transactional way.
	// Generates a MintQuoteUpdated event if successful.
	UpdateMintQuote(
		ctx context.Context, id string,
		updateFn func(q *MintQuote) (*MintQuote, error),
	) error
	// AddMeltQuote stores a new melt quote by preventing duplicates.
	// Generates a MeltQuoteAdded event if successful.
	AddMeltQuote(ctx context.Context, quote *MeltQuote) error
	// GetMeltQuote returns the melt quote with the given id.
	GetMeltQuote(ctx context.Context, id string) (*MeltQuote, error)
	// GetPendingMeltQuotes returns all the quotes not yet in a final state.
	GetPendingMeltQuotes(ctx context.Context) ([]*MeltQuote, error)
	// UpdateMeltQuote allows to commit multiple changes to the same quote in
	// a transactional way.
	// Generates a MeltQuoteUpdated event if successful.
	UpdateMeltQuote(
		ctx context.Context, id string,
		updateFn func(q *MeltQuote) (*MeltQuote, error),
	) error
	// DeleteQuotesForMint removes every quote of the given mint.
	DeleteQuotesForMint(ctx context.Context, mintURL string) error
	// GetEventChannel returns the channel of QuoteEvents.
	GetEventChannel() chan QuoteEvent
}
