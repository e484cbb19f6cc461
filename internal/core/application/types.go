package application

import (
	"fmt"
	"sort"

	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	ss_selector "github.com/vulpemventures/cashew/internal/infrastructure/proof-selector/smallest-subset"
)

const (
	ProofSelectionStrategySmallestSubset = iota
)

var (
	proofSelectorByType = map[int]ProofSelectorFactory{
		ProofSelectionStrategySmallestSubset: ss_selector.NewSmallestSubsetProofSelector,
	}

	DefaultProofSelector = ss_selector.NewSmallestSubsetProofSelector()
)

type ProofSelectorFactory func() ports.ProofSelector

// NewProofSelector returns the selector implementing the given strategy.
func NewProofSelector(strategy int) (ports.ProofSelector, error) {
	factory, ok := proofSelectorByType[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: unknown proof selection strategy %d", domain.ErrInvalidInput, strategy)
	}
	return factory(), nil
}

type WalletStatus struct {
	IsInitialized bool
	IsUnlocked    bool
}

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// SendOptions customize the proof selection of a send.
type SendOptions struct {
	// Offline skips the swap at the mint whenever the selected proofs sum up
	// to exactly the amount to send.
	Offline bool
}

// ReceiveOptions customize how a token is redeemed.
type ReceiveOptions struct {
	// PreCheck makes the wallet verify that the token proofs are unspent
	// before swapping them, if the mint supports it.
	PreCheck bool
	// Memo overrides the memo of the token in the recorded transaction.
	Memo string
}

// PreparedSend is a proof selection not yet committed. Canceling it or
// letting it go never changes the state of the wallet.
type PreparedSend struct {
	WalletKey domain.WalletKey
	Amount    uint64
	Fee       uint64
	Change    uint64
	Proofs    domain.Proofs
	Swap      bool
}

// PaymentResult is the outcome of the payment of a lightning invoice.
type PaymentResult struct {
	QuoteID  string
	State    domain.MeltQuoteState
	Amount   uint64
	Fee      uint64
	Preimage string
	Change   uint64
}

// PendingCheckResult reports what happened to the proofs reserved by
// in-flight melts after checking their state with the mint.
type PendingCheckResult struct {
	Spent    uint64
	Restored uint64
	Pending  uint64
}

// RestoreResult reports the outcome of a restore from relays.
type RestoreResult struct {
	Mints       []string
	FailedMints []string
	Amounts     map[domain.WalletKey]uint64
	SpentAmount uint64
}

type Balances map[domain.WalletKey]uint64

// ByUnit returns the total balance per unit.
func (b Balances) ByUnit() map[string]uint64 {
	total := make(map[string]uint64)
	for key, amount := range b {
		total[key.Unit] += amount
	}
	return total
}

// Keys returns the wallet keys sorted by mint url and unit.
func (b Balances) Keys() []domain.WalletKey {
	keys := make([]domain.WalletKey, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sortWalletKeys(keys)
	return keys
}

func sortWalletKeys(keys []domain.WalletKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].MintURL != keys[j].MintURL {
			return keys[i].MintURL < keys[j].MintURL
		}
		return keys[i].Unit < keys[j].Unit
	})
}
