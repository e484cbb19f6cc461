package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

// proofData is the badgerhold representation of a stored proof. Sequence
// keeps the insertion order of the proofs of a wallet.
type proofData struct {
	Secret   string
	KeysetID string
	Amount   uint64
	C        string
	Witness  string
	DLEQ     *domain.DLEQProof
	MintURL  string
	Unit     string
	State    domain.ProofState
	QuoteID  string
	Sequence int64
}

func newProofData(key domain.WalletKey, p domain.Proof, seq int64) proofData {
	return proofData{
		Secret:   p.Secret,
		KeysetID: p.KeysetID,
		Amount:   p.Amount,
		C:        p.C,
		Witness:  p.Witness,
		DLEQ:     p.DLEQ,
		MintURL:  key.MintURL,
		Unit:     key.Unit,
		State:    domain.ProofUnspent,
		Sequence: seq,
	}
}

func (d proofData) walletKey() domain.WalletKey {
	return domain.WalletKey{MintURL: d.MintURL, Unit: d.Unit}
}

func (d proofData) toDomain() domain.Proof {
	return domain.Proof{
		KeysetID: d.KeysetID,
		Amount:   d.Amount,
		Secret:   d.Secret,
		C:        d.C,
		Witness:  d.Witness,
		DLEQ:     d.DLEQ,
	}
}

type proofRepository struct {
	store            *badgerhold.Store
	chEvents         chan domain.ProofEvent
	externalChEvents chan domain.ProofEvent
	lock             *sync.Mutex
	// writeLock serializes read-modify-write badger transactions.
	writeLock *sync.Mutex

	log func(format string, a ...interface{})
}

func NewProofRepository(store *badgerhold.Store) domain.ProofRepository {
	return newProofRepository(store)
}

func newProofRepository(store *badgerhold.Store) *proofRepository {
	chEvents := make(chan domain.ProofEvent)
	externalChEvents := make(chan domain.ProofEvent)
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("proof repository: %s", format)
		log.Debugf(format, a...)
	}
	return &proofRepository{
		store, chEvents, externalChEvents, &sync.Mutex{}, &sync.Mutex{}, logFn,
	}
}

func (r *proofRepository) AddProofs(
	_ context.Context, key domain.WalletKey, proofs domain.Proofs,
) (int, error) {
	for _, p := range proofs {
		if p.Secret == "" {
			return -1, fmt.Errorf("%w: missing proof secret", domain.ErrInvalidInput)
		}
	}

	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	var added []string
	if err := r.store.Badger().Update(func(tx *badger.Txn) error {
		var err error
		added, err = r.insertProofs(tx, key, proofs)
		return err
	}); err != nil {
		return -1, err
	}

	if len(added) > 0 {
		go r.publishEvent(domain.ProofEvent{
			EventType: domain.ProofsAdded,
			WalletKey: key,
			Secrets:   added,
		})
	}
	return len(added), nil
}

func (r *proofRepository) GetProofs(
	_ context.Context, key domain.WalletKey,
) (domain.Proofs, error) {
	query := badgerhold.Where("MintURL").Eq(key.MintURL).
		And("Unit").Eq(key.Unit).
		And("State").Eq(domain.ProofUnspent).
		SortBy("Sequence")

	list, err := r.findProofs(nil, query)
	if err != nil {
		return nil, err
	}
	proofs := make(domain.Proofs, 0, len(list))
	for _, d := range list {
		proofs = append(proofs, d.toDomain())
	}
	return proofs, nil
}

func (r *proofRepository) GetPendingProofs(
	_ context.Context, key domain.WalletKey,
) (map[string]domain.Proofs, error) {
	query := badgerhold.Where("MintURL").Eq(key.MintURL).
		And("Unit").Eq(key.Unit).
		And("State").Eq(domain.ProofPending).
		SortBy("Sequence")

	list, err := r.findProofs(nil, query)
	if err != nil {
		return nil, err
	}
	proofs := make(map[string]domain.Proofs)
	for _, d := range list {
		proofs[d.QuoteID] = append(proofs[d.QuoteID], d.toDomain())
	}
	return proofs, nil
}

func (r *proofRepository) ReplaceProofs(
	_ context.Context, key domain.WalletKey,
	spent []string, added domain.Proofs,
) error {
	for _, p := range added {
		if p.Secret == "" {
			return fmt.Errorf("%w: missing proof secret", domain.ErrInvalidInput)
		}
	}

	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	var addedSecrets []string
	if err := r.store.Badger().Update(func(tx *badger.Txn) error {
		for _, secret := range spent {
			if _, err := r.getProof(tx, key, secret); err != nil {
				return err
			}
		}
		for _, secret := range spent {
			if err := r.store.TxDelete(tx, secret, proofData{}); err != nil {
				return err
			}
		}
		var err error
		addedSecrets, err = r.insertProofs(tx, key, added)
		return err
	}); err != nil {
		return err
	}

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
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if err := r.store.Badger().Update(func(tx *badger.Txn) error {
		proofs := make([]*proofData, 0, len(secrets))
		for _, secret := range secrets {
			p, err := r.getProof(tx, key, secret)
			if err != nil {
				return err
			}
			if p.State != domain.ProofUnspent {
				return fmt.Errorf("%w: %s", domain.ErrProofNotUnspent, secret)
			}
			proofs = append(proofs, p)
		}
		for _, p := range proofs {
			p.State = domain.ProofPending
			p.QuoteID = quoteID
			if err := r.store.TxUpdate(tx, p.Secret, *p); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
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
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	restored := make([]string, 0, len(secrets))
	if err := r.store.Badger().Update(func(tx *badger.Txn) error {
		for _, secret := range secrets {
			p, err := r.getProof(tx, key, secret)
			if err != nil {
				if errors.Is(err, domain.ErrProofNotFound) {
					continue
				}
				return err
			}
			if p.State != domain.ProofPending {
				continue
			}
			p.State = domain.ProofUnspent
			p.QuoteID = ""
			if err := r.store.TxUpdate(tx, p.Secret, *p); err != nil {
				return err
			}
			restored = append(restored, secret)
		}
		return nil
	}); err != nil {
		return -1, err
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
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	return r.store.DeleteMatching(
		&proofData{}, badgerhold.Where("MintURL").Eq(mintURL),
	)
}

func (r *proofRepository) GetEventChannel() chan domain.ProofEvent {
	return r.externalChEvents
}

func (r *proofRepository) insertProofs(
	tx *badger.Txn, key domain.WalletKey, proofs domain.Proofs,
) ([]string, error) {
	seq := time.Now().UnixNano()
	added := make([]string, 0, len(proofs))
	for i, p := range proofs {
		err := r.store.TxInsert(tx, p.Secret, newProofData(key, p, seq+int64(i)))
		if err != nil {
			if err == badgerhold.ErrKeyExists {
				continue
			}
			return nil, err
		}
		added = append(added, p.Secret)
	}
	return added, nil
}

func (r *proofRepository) getProof(
	tx *badger.Txn, key domain.WalletKey, secret string,
) (*proofData, error) {
	var p proofData
	if err := r.store.TxGet(tx, secret, &p); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrProofNotFound, secret)
		}
		return nil, err
	}
	if p.walletKey() != key {
		return nil, fmt.Errorf("%w: %s", domain.ErrProofNotFound, secret)
	}
	return &p, nil
}

func (r *proofRepository) findProofs(
	tx *badger.Txn, query *badgerhold.Query,
) ([]proofData, error) {
	var list []proofData
	var err error
	if tx != nil {
		err = r.store.TxFind(tx, &list, query)
	} else {
		err = r.store.Find(&list, query)
	}
	return list, err
}

func (r *proofRepository) publishEvent(event domain.ProofEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.log("publish event %s", event.EventType)
	r.chEvents <- event

	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *proofRepository) reset() {
	// nolint
	r.store.Badger().DropAll()
}

func (r *proofRepository) close() {
	r.store.Close()
	close(r.chEvents)
	close(r.externalChEvents)
}
