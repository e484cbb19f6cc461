package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vulpemventures/cashew/internal/core/domain"
)

type proofInmemoryStore struct {
	proofs          map[string]*domain.StoredProof
	secretsByWallet map[domain.WalletKey][]string
	lock            *sync.RWMutex
}

type proofRepository struct {
	store            *proofInmemoryStore
	chEvents         chan domain.ProofEvent
	externalChEvents chan domain.ProofEvent
	chLock           *sync.Mutex
}

func NewProofRepository() domain.ProofRepository {
	return newProofRepository()
}

func newProofRepository() *proofRepository {
	return &proofRepository{
		store: &proofInmemoryStore{
			proofs:          make(map[string]*domain.StoredProof),
			secretsByWallet: make(map[domain.WalletKey][]string),
			lock:            &sync.RWMutex{},
		},
		chEvents:         make(chan domain.ProofEvent),
		externalChEvents: make(chan domain.ProofEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *proofRepository) AddProofs(
	_ context.Context, key domain.WalletKey, proofs domain.Proofs,
) (int, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	for _, p := range proofs {
		if p.Secret == "" {
			return -1, fmt.Errorf("%w: missing proof secret", domain.ErrInvalidInput)
		}
	}

	secrets := r.addProofs(key, proofs)
	if len(secrets) > 0 {
		go r.publishEvent(domain.ProofEvent{
			EventType: domain.ProofsAdded,
			WalletKey: key,
			Secrets:   secrets,
		})
	}
	return len(secrets), nil
}

func (r *proofRepository) GetProofs(
	_ context.Context, key domain.WalletKey,
) (domain.Proofs, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	proofs := make(domain.Proofs, 0)
	for _, secret := range r.store.secretsByWallet[key] {
		p := r.store.proofs[secret]
		if p.State == domain.ProofUnspent {
			proofs = append(proofs, p.Proof)
		}
	}
	return proofs, nil
}

func (r *proofRepository) GetPendingProofs(
	_ context.Context, key domain.WalletKey,
) (map[string]domain.Proofs, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	proofs := make(map[string]domain.Proofs)
	for _, secret := range r.store.secretsByWallet[key] {
		p := r.store.proofs[secret]
		if p.State == domain.ProofPending {
			proofs[p.QuoteID] = append(proofs[p.QuoteID], p.Proof)
		}
	}
	return proofs, nil
}

func (r *proofRepository) ReplaceProofs(
	_ context.Context, key domain.WalletKey,
	spent []string, added domain.Proofs,
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	for _, secret := range spent {
		p, ok := r.store.proofs[secret]
		if !ok || p.WalletKey() != key {
			return fmt.Errorf("%w: %s", domain.ErrProofNotFound, secret)
		}
	}
	for _, p := range added {
		if p.Secret == "" {
			return fmt.Errorf("%w: missing proof secret", domain.ErrInvalidInput)
		}
	}

	r.removeProofs(key, spent)
	addedSecrets := r.addProofs(key, added)

	if len(spent) > 0 {
		go r.publishEvent(domain.ProofEvent{
			EventType: domain.ProofsSpent,
			WalletKey: key,
			Secrets:   spent,
		})
	}
	if len(addedSecrets) > 0 {
		go r.publishEvent(domain.ProofEvent{
			EventType: domain.ProofsAdded,
			WalletKey: key,
			Secrets:   addedSecrets,
		})
	}
	return nil
}

func (r *proofRepository) SetProofsPending(
	_ context.Context, key domain.WalletKey, secrets []string, quoteID string,
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	for _, secret := range secrets {
		p, ok := r.store.proofs[secret]
		if !ok || p.WalletKey() != key {
			return fmt.Errorf("%w: %s", domain.ErrProofNotFound, secret)
		}
		if p.State != domain.ProofUnspent {
			return fmt.Errorf("%w: %s", domain.ErrProofNotUnspent, secret)
		}
	}
	for _, secret := range secrets {
		p := r.store.proofs[secret]
		p.State = domain.ProofPending
		p.QuoteID = quoteID
	}

	if len(secrets) > 0 {
		go r.publishEvent(domain.ProofEvent{
			EventType: domain.ProofsPending,
			WalletKey: key,
			Secrets:   secrets,
		})
	}
	return nil
}

func (r *proofRepository) RestoreProofs(
	_ context.Context, key domain.WalletKey, secrets []string,
) (int, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	restored := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		p, ok := r.store.proofs[secret]
		if !ok || p.WalletKey() != key || p.State != domain.ProofPending {
			continue
		}
		p.State = domain.ProofUnspent
		p.QuoteID = ""
		restored = append(restored, secret)
	}

	if len(restored) > 0 {
		go r.publishEvent(domain.ProofEvent{
			EventType: domain.ProofsRestored,
			WalletKey: key,
			Secrets:   restored,
		})
	}
	return len(restored), nil
}

func (r *proofRepository) DeleteProofsForMint(
	_ context.Context, mintURL string,
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	for key, secrets := range r.store.secretsByWallet {
		if key.MintURL != mintURL {
			continue
		}
		for _, secret := range secrets {
			delete(r.store.proofs, secret)
		}
		delete(r.store.secretsByWallet, key)
	}
	return nil
}

func (r *proofRepository) GetEventChannel() chan domain.ProofEvent {
	return r.externalChEvents
}

func (r *proofRepository) addProofs(
	key domain.WalletKey, proofs domain.Proofs,
) []string {
	secrets := make([]string, 0, len(proofs))
	for _, p := range proofs {
		if _, ok := r.store.proofs[p.Secret]; ok {
			continue
		}
		r.store.proofs[p.Secret] = &domain.StoredProof{
			Proof:   p,
			MintURL: key.MintURL,
			Unit:    key.Unit,
			State:   domain.ProofUnspent,
		}
		r.store.secretsByWallet[key] = append(r.store.secretsByWallet[key], p.Secret)
		secrets = append(secrets, p.Secret)
	}
	return secrets
}

func (r *proofRepository) removeProofs(key domain.WalletKey, secrets []string) {
	if len(secrets) <= 0 {
		return
	}
	toRemove := make(map[string]bool, len(secrets))
	for _, secret := range secrets {
		toRemove[secret] = true
		delete(r.store.proofs, secret)
	}
	remaining := make([]string, 0, len(r.store.secretsByWallet[key]))
	for _, secret := range r.store.secretsByWallet[key] {
		if !toRemove[secret] {
			remaining = append(remaining, secret)
		}
	}
	r.store.secretsByWallet[key] = remaining
}

func (r *proofRepository) publishEvent(event domain.ProofEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *proofRepository) reset() {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	r.store.proofs = make(map[string]*domain.StoredProof)
	r.store.secretsByWallet = make(map[domain.WalletKey][]string)
}

func (r *proofRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}
