package domain

import (
	"sort"
)

const (
	ProofUnspent ProofState = iota
	ProofPending
)

type ProofState int

func (s ProofState) String() string {
	if s == ProofPending {
		return "pending"
	}
	return "unspent"
}

// DLEQProof is the optional discrete-log equality proof attached by the mint
// to a blind signature.
type DLEQProof struct {
	E string `json:"e"`
	S string `json:"s"`
	R string `json:"r,omitempty"`
}

// Proof is a single bearer token issued by a mint. It's uniquely identified
// by its Secret.
type Proof struct {
	KeysetID string     `json:"id"`
	Amount   uint64     `json:"amount"`
	Secret   string     `json:"secret"`
	C        string     `json:"C"`
	Witness  string     `json:"witness,omitempty"`
	DLEQ     *DLEQProof `json:"dleq,omitempty"`
}

type Proofs []Proof

// Amount returns the sum of the amounts of the proofs.
func (p Proofs) Amount() uint64 {
	var total uint64
	for _, proof := range p {
		total += proof.Amount
	}
	return total
}

// Secrets returns the list of secrets of the proofs.
func (p Proofs) Secrets() []string {
	secrets := make([]string, 0, len(p))
	for _, proof := range p {
		secrets = append(secrets, proof.Secret)
	}
	return secrets
}

// KeysetIDs returns the distinct keyset ids referenced by the proofs.
func (p Proofs) KeysetIDs() []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, proof := range p {
		if _, ok := seen[proof.KeysetID]; ok {
			continue
		}
		seen[proof.KeysetID] = struct{}{}
		ids = append(ids, proof.KeysetID)
	}
	return ids
}

// ProofStore is the set of unspent proofs owned by a single wallet instance.
// It's not safe for concurrent use, the owner is in charge of serializing
// access to it.
type ProofStore struct {
	proofs  map[string]Proof
	order   []string
	balance uint64
}

func NewProofStore(proofs ...Proof) (*ProofStore, error) {
	s := &ProofStore{proofs: make(map[string]Proof)}
	for _, p := range proofs {
		if err := s.Add(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts the given proof, rejecting it if another one with the same
// secret is already in the store.
func (s *ProofStore) Add(proof Proof) error {
	if proof.Secret == "" {
		return ErrInvalidInput
	}
	if _, ok := s.proofs[proof.Secret]; ok {
		return ErrDuplicateProof
	}
	s.proofs[proof.Secret] = proof
	s.order = append(s.order, proof.Secret)
	s.balance = s.sum()
	return nil
}

// Remove deletes the proof with the given secret and returns whether it was
// found.
func (s *ProofStore) Remove(secret string) bool {
	if _, ok := s.proofs[secret]; !ok {
		return false
	}
	delete(s.proofs, secret)
	for i, v := range s.order {
		if v == secret {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.balance = s.sum()
	return true
}

// Has returns whether all the given secrets are in the store.
func (s *ProofStore) Has(secrets ...string) bool {
	for _, secret := range secrets {
		if _, ok := s.proofs[secret]; !ok {
			return false
		}
	}
	return true
}

func (s *ProofStore) Balance() uint64 {
	return s.balance
}

func (s *ProofStore) Len() int {
	return len(s.proofs)
}

// Unspent returns a snapshot of the proofs in insertion order.
func (s *ProofStore) Unspent() Proofs {
	proofs := make(Proofs, 0, len(s.order))
	for _, secret := range s.order {
		proofs = append(proofs, s.proofs[secret])
	}
	return proofs
}

// BalanceByKeyset returns the balance grouped by keyset id.
func (s *ProofStore) BalanceByKeyset() map[string]uint64 {
	balance := make(map[string]uint64)
	for _, p := range s.proofs {
		balance[p.KeysetID] += p.Amount
	}
	return balance
}

func (s *ProofStore) sum() uint64 {
	var total uint64
	for _, p := range s.proofs {
		total += p.Amount
	}
	return total
}

// SplitAmount decomposes amount into powers of two, the denominations in
// which mints issue proofs, smallest first.
func SplitAmount(amount uint64) []uint64 {
	amounts := make([]uint64, 0)
	for i := 0; amount > 0; i++ {
		if amount&1 == 1 {
			amounts = append(amounts, uint64(1)<<uint(i))
		}
		amount >>= 1
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i] < amounts[j] })
	return amounts
}
