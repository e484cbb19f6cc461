package postgresdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

const selectProof = `SELECT secret, keyset_id, amount, c, witness, dleq,
quote_id FROM proof`

type proofRepositoryPg struct {
	pgxPool          *pgxpool.Pool
	chLock           *sync.Mutex
	chEvents         chan domain.ProofEvent
	externalChEvents chan domain.ProofEvent
}

func NewProofRepositoryPgImpl(pgxPool *pgxpool.Pool) domain.ProofRepository {
	return newProofRepositoryPg(pgxPool)
}

func newProofRepositoryPg(pgxPool *pgxpool.Pool) *proofRepositoryPg {
	return &proofRepositoryPg{
		pgxPool:          pgxPool,
		chLock:           &sync.Mutex{},
		chEvents:         make(chan domain.ProofEvent),
		externalChEvents: make(chan domain.ProofEvent),
	}
}

func (p *proofRepositoryPg) AddProofs(
	ctx context.Context, key domain.WalletKey, proofs domain.Proofs,
) (int, error) {
	for _, proof := range proofs {
		if proof.Secret == "" {
			return -1, fmt.Errorf("%w: missing proof secret", domain.ErrInvalidInput)
		}
	}

	var added []string
	if err := p.pgxPool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var err error
		added, err = p.insertProofs(ctx, tx, key, proofs)
		return err
	}); err != nil {
		return -1, err
	}

	if len(added) > 0 {
		go p.publishEvent(domain.ProofEvent{
			EventType: domain.ProofsAdded,
			WalletKey: key,
			Secrets:   added,
		})
	}
	return len(added), nil
}

func (p *proofRepositoryPg) GetProofs(
	ctx context.Context, key domain.WalletKey,
) (domain.Proofs, error) {
	list, err := p.findProofs(ctx, key, domain.ProofUnspent)
	if err != nil {
		return nil, err
	}
	proofs := make(domain.Proofs, 0, len(list))
	for _, sp := range list {
		proofs = append(proofs, sp.Proof)
	}
	return proofs, nil
}

func (p *proofRepositoryPg) GetPendingProofs(
	ctx context.Context, key domain.WalletKey,
) (map[string]domain.Proofs, error) {
	list, err := p.findProofs(ctx, key, domain.ProofPending)
	if err != nil {
		return nil, err
	}
	proofs := make(map[string]domain.Proofs)
	for _, sp := range list {
		proofs[sp.QuoteID] = append(proofs[sp.QuoteID], sp.Proof)
	}
	return proofs, nil
}

func (p *proofRepositoryPg) ReplaceProofs(
	ctx context.Context, key domain.WalletKey,
	spent []string, added domain.Proofs,
) error {
	for _, proof := range added {
		if proof.Secret == "" {
			return fmt.Errorf("%w: missing proof secret", domain.ErrInvalidInput)
		}
	}

	var addedSecrets []string
	if err := p.pgxPool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if len(spent) > 0 {
			tag, err := tx.Exec(
				ctx,
				`DELETE FROM proof WHERE secret = ANY($1)
				AND mint_url = $2 AND unit = $3`,
				spent, key.MintURL, key.Unit,
			)
			if err != nil {
				return err
			}
			if int(tag.RowsAffected()) != countUnique(spent) {
				return fmt.Errorf("%w: some spent proofs are unknown", domain.ErrProofNotFound)
			}
		}
		var err error
		addedSecrets, err = p.insertProofs(ctx, tx, key, added)
		return err
	}); err != nil {
		return err
	}

	if len(spent) > 0 {
		go p.publishEvent(domain.ProofEvent{
			EventType: domain.ProofsSpent,
			WalletKey: key,
			Secrets:   spent,
		})
	}
	if len(addedSecrets) > 0 {
		go p.publishEvent(domain.ProofEvent{
			EventType: domain.ProofsAdded,
			WalletKey: key,
			Secrets:   addedSecrets,
		})
	}
	return nil
}

func (p *proofRepositoryPg) SetProofsPending(
	ctx context.Context, key domain.WalletKey, secrets []string, quoteID string,
) error {
	if len(secrets) <= 0 {
		return nil
	}

	if err := p.pgxPool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(
			ctx,
			`UPDATE proof SET state = $4, quote_id = $5 WHERE secret = ANY($1)
			AND mint_url = $2 AND unit = $3 AND state = $6`,
			secrets, key.MintURL, key.Unit,
			int(domain.ProofPending), quoteID, int(domain.ProofUnspent),
		)
		if err != nil {
			return err
		}
		if int(tag.RowsAffected()) != countUnique(secrets) {
			return fmt.Errorf(
				"%w: some proofs are unknown or not unspent", domain.ErrProofNotUnspent,
			)
		}
		return nil
	}); err != nil {
		return err
	}

	go p.publishEvent(domain.ProofEvent{
		EventType: domain.ProofsPending,
		WalletKey: key,
		Secrets:   secrets,
	})
	return nil
}

func (p *proofRepositoryPg) RestoreProofs(
	ctx context.Context, key domain.WalletKey, secrets []string,
) (int, error) {
	if len(secrets) <= 0 {
		return 0, nil
	}

	rows, err := p.pgxPool.Query(
		ctx,
		`UPDATE proof SET state = $4, quote_id = '' WHERE secret = ANY($1)
		AND mint_url = $2 AND unit = $3 AND state = $5 RETURNING secret`,
		secrets, key.MintURL, key.Unit,
		int(domain.ProofUnspent), int(domain.ProofPending),
	)
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	restored := make([]string, 0, len(secrets))
	for rows.Next() {
		var secret string
		if err := rows.Scan(&secret); err != nil {
			return -1, err
		}
		restored = append(restored, secret)
	}
	if err := rows.Err(); err != nil {
		return -1, err
	}

	if len(restored) > 0 {
		go p.publishEvent(domain.ProofEvent{
			EventType: domain.ProofsRestored,
			WalletKey: key,
			Secrets:   restored,
		})
	}
	return len(restored), nil
}

func (p *proofRepositoryPg) DeleteProofsForMint(
	ctx context.Context, mintURL string,
) error {
	_, err := p.pgxPool.Exec(ctx, "DELETE FROM proof WHERE mint_url = $1", mintURL)
	return err
}

func (p *proofRepositoryPg) GetEventChannel() chan domain.ProofEvent {
	return p.externalChEvents
}

func (p *proofRepositoryPg) insertProofs(
	ctx context.Context, tx pgx.Tx, key domain.WalletKey, proofs domain.Proofs,
) ([]string, error) {
	added := make([]string, 0, len(proofs))
	for _, proof := range proofs {
		var dleq []byte
		if proof.DLEQ != nil {
			buf, err := json.Marshal(proof.DLEQ)
			if err != nil {
				return nil, err
			}
			dleq = buf
		}
		tag, err := tx.Exec(
			ctx,
			`INSERT INTO proof (secret, keyset_id, amount, c, witness, dleq,
			mint_url, unit, state) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (secret) DO NOTHING`,
			proof.Secret, proof.KeysetID, int64(proof.Amount), proof.C,
			proof.Witness, dleq, key.MintURL, key.Unit, int(domain.ProofUnspent),
		)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() > 0 {
			added = append(added, proof.Secret)
		}
	}
	return added, nil
}

func (p *proofRepositoryPg) findProofs(
	ctx context.Context, key domain.WalletKey, state domain.ProofState,
) ([]domain.StoredProof, error) {
	rows, err := p.pgxPool.Query(
		ctx,
		selectProof+" WHERE mint_url = $1 AND unit = $2 AND state = $3 ORDER BY seq",
		key.MintURL, key.Unit, int(state),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	proofs := make([]domain.StoredProof, 0)
	for rows.Next() {
		var amount int64
		var dleq []byte
		sp := domain.StoredProof{MintURL: key.MintURL, Unit: key.Unit, State: state}
		if err := rows.Scan(
			&sp.Secret, &sp.KeysetID, &amount, &sp.C, &sp.Witness, &dleq,
			&sp.QuoteID,
		); err != nil {
			return nil, err
		}
		sp.Amount = uint64(amount)
		if len(dleq) > 0 {
			sp.DLEQ = &domain.DLEQProof{}
			if err := json.Unmarshal(dleq, sp.DLEQ); err != nil {
				return nil, err
			}
		}
		proofs = append(proofs, sp)
	}
	return proofs, rows.Err()
}

func (p *proofRepositoryPg) publishEvent(event domain.ProofEvent) {
	p.chLock.Lock()
	defer p.chLock.Unlock()

	p.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case p.externalChEvents <- event:
	default:
	}
}

func (p *proofRepositoryPg) close() {
	close(p.chEvents)
	close(p.externalChEvents)
}

func countUnique(list []string) int {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return len(set)
}
