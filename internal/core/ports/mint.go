package ports

import (
	"context"

	"github.com/vulpemventures/cashew/internal/core/domain"
)

const (
	StateUnspent SpendState = iota
	StatePending
	StateSpent
)

var spendStateString = map[SpendState]string{
	StateUnspent: "UNSPENT",
	StatePending: "PENDING",
	StateSpent:   "SPENT",
}

// SpendState is the state of a proof as known by its mint (NUT-07).
type SpendState int

func (s SpendState) String() string {
	return spendStateString[s]
}

func ParseSpendState(str string) (SpendState, error) {
	for k, v := range spendStateString {
		if v == str {
			return k, nil
		}
	}
	return -1, domain.ProtocolError("unknown proof state " + str)
}

// PreMint is an output to be signed by a mint, along with the secret and
// blinding factor needed to turn the signature into a proof.
type PreMint struct {
	Amount         uint64
	KeysetID       string
	Secret         string
	BlindingFactor []byte
}

type PreMints []PreMint

func (p PreMints) Amount() uint64 {
	var tot uint64
	for _, o := range p {
		tot += o.Amount
	}
	return tot
}

type MintQuoteResponse struct {
	Quote   string
	Request string
	Amount  uint64
	Unit    string
	State   domain.MintQuoteState
	Expiry  int64
}

type MeltQuoteResponse struct {
	Quote      string
	Amount     uint64
	FeeReserve uint64
	Unit       string
	State      domain.MeltQuoteState
	Expiry     int64
	Preimage   string
	// Change holds the proofs returned for the unused fee reserve.
	Change domain.Proofs
}

type ProofStateInfo struct {
	Secret  string
	State   SpendState
	Witness string
}

// Mint is the abstraction for any kind of client intended to talk with a
// Cashu mint. Every method either returns the mint's answer or an error
// wrapping domain.ErrNetworkFailure (retryable) or domain.ErrProtocol
// (rejection).
type Mint interface {
	// URL returns the normalized url of the mint.
	URL() string
	// GetInfo returns the capability descriptor of the mint.
	GetInfo(ctx context.Context) (*domain.MintInfo, error)
	// GetKeysets returns all keysets of the mint, along with the public keys
	// of the active ones.
	GetKeysets(ctx context.Context) ([]domain.Keyset, error)
	// Swap spends the inputs in exchange for new proofs for the outputs.
	Swap(
		ctx context.Context, inputs domain.Proofs, outputs PreMints,
	) (domain.Proofs, error)
	// CreateMintQuote requests an invoice to receive the given amount.
	CreateMintQuote(
		ctx context.Context, amount uint64, unit string,
	) (*MintQuoteResponse, error)
	// GetMintQuote returns the current state of the mint quote.
	GetMintQuote(ctx context.Context, quoteID string) (*MintQuoteResponse, error)
	// Mint issues new proofs for a paid mint quote.
	Mint(
		ctx context.Context, quoteID string, outputs PreMints,
	) (domain.Proofs, error)
	// CreateMeltQuote requests the amount and fee reserve to pay an invoice.
	CreateMeltQuote(
		ctx context.Context, request, unit string,
	) (*MeltQuoteResponse, error)
	// GetMeltQuote returns the current state of the melt quote.
	GetMeltQuote(ctx context.Context, quoteID string) (*MeltQuoteResponse, error)
	// Melt spends the inputs to pay the invoice of the quote. Change outputs
	// are signed for the unused fee reserve.
	Melt(
		ctx context.Context, quoteID string, inputs domain.Proofs,
		change PreMints,
	) (*MeltQuoteResponse, error)
	// CheckState returns the state of the proofs with the given secrets, in
	// the same order.
	CheckState(ctx context.Context, secrets []string) ([]ProofStateInfo, error)
}

// MintFactory returns clients for the given mint urls. Creating a client
// never does network I/O.
type MintFactory interface {
	NewMint(url string) (Mint, error)
}
