package ports

import "github.com/vulpemventures/cashew/internal/core/domain"

// ProofSelector is the abstraction for any kind of service intended to return
// a subset of the given proofs covering the target amount plus the input fee
// of the subset, based on a specific strategy.
type ProofSelector interface {
	// SelectProofs implements a certain proof selection strategy. feeFn
	// returns the input fee the mint charges to spend a set of proofs.
	SelectProofs(
		proofs domain.Proofs, targetAmount uint64,
		feeFn func(domain.Proofs) uint64,
	) (selected domain.Proofs, change uint64, err error)
}
