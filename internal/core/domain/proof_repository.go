package domain

import (
	"context"
)

const (
	ProofsAdded ProofEventType = iota
	ProofsSpent
	ProofsPending
	ProofsRestored
)

var (
	proofTypeString = map[ProofEventType]string{
		ProofsAdded:    "ProofsAdded",
		ProofsSpent:    "ProofsSpent",
		ProofsPending:  "ProofsPending",
		ProofsRestored: "ProofsRestored",
	}
)

type ProofEventType int

func (t ProofEventType) String() string {
	return proofTypeString[t]
}

// ProofEvent holds info about an event occured within the repository.
type ProofEvent struct {
	EventType ProofEventType
	WalletKey WalletKey
	Secrets   []string
}

// StoredProof is a Proof along with the wallet instance owning it and its
// local state.
type StoredProof struct {
	Proof
	MintURL string
	Unit    string
	State   ProofState
	QuoteID string
}

func (p StoredProof) WalletKey() WalletKey {
	return WalletKey{MintURL: p.MintURL, Unit: p.Unit}
}

// ProofRepository is the abstraction for any kind of database intended to
// persist the proofs of every wallet instance.
type ProofRepository interface {
	// AddProofs adds the given proofs to the wallet by skipping those whose
	// secret is already stored. Returns the number of proofs added.
	// Generates a ProofsAdded event if successful.
	AddProofs(ctx context.Context, key WalletKey, proofs Proofs) (int, error)
	// GetProofs returns the unspent proofs of the wallet.
	GetProofs(ctx context.Context, key WalletKey) (Proofs, error)
	// GetPendingProofs returns the proofs of the wallet reserved by an
	// in-flight melt, grouped by quote id.
	GetPendingProofs(ctx context.Context, key WalletKey) (map[string]Proofs, error)
	// ReplaceProofs atomically deletes the proofs with the given secrets and
	// adds the new ones. Nothing changes if any of the secrets is unknown.
	// Generates a ProofsSpent and a ProofsAdded event if successful.
	ReplaceProofs(
		ctx context.Context, key WalletKey, spent []string, added Proofs,
	) error
	// SetProofsPending marks the given unspent proofs as reserved by the melt
	// quote with the given id. Nothing changes if any proof is not unspent.
	// Generates a ProofsPending event if successful.
	SetProofsPending(
		ctx context.Context, key WalletKey, secrets []string, quoteID string,
	) error
	// RestoreProofs brings the given pending proofs back to unspent. Returns
	// the number of proofs restored.
	// Generates a ProofsRestored event if successful.
	RestoreProofs(ctx context.Context, key WalletKey, secrets []string) (int, error)
	// DeleteProofsForMint removes every proof of every unit of the given mint.
	DeleteProofsForMint(ctx context.Context, mintURL string) error
	// GetEventChannel returns the channel of ProofEvents.
	GetEventChannel() chan ProofEvent
}
