package application

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/pkg/nip60"
	"github.com/vulpemventures/cashew/pkg/nostr"
)

const (
	ownerKeyAccount  = 0
	walletKeyAccount = 1

	autoPublishTimeout = 30 * time.Second
)

// BackupService keeps an encrypted copy of the wallet on nostr relays:
//   - Publish the wallet record listing the known mints.
//   - Publish a snapshot of the proofs of a mint, superseding the previous
//     one.
//   - Restore mints and proofs from the published records.
//
// Records are signed and encrypted with a key derived from the wallet seed,
// so that a wallet restored from the same seed can find and open them.
type BackupService struct {
	repoManager ports.RepoManager
	registry    *MintRegistry
	relay       ports.Relay

	lock *sync.Mutex

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

// NewBackupService returns a backup service publishing to the given relay.
// With autoPublish, records are published again whenever the proofs or the
// mints of the wallet change.
func NewBackupService(
	repoManager ports.RepoManager, registry *MintRegistry, relay ports.Relay,
	autoPublish bool,
) *BackupService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("backup service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("backup service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	svc := &BackupService{
		repoManager: repoManager,
		registry:    registry,
		relay:       relay,
		lock:        &sync.Mutex{},
		log:         logFn,
		warn:        warnFn,
	}
	if autoPublish {
		svc.registerHandlerForProofEvents()
		svc.registerHandlerForMintEvents()
	}
	return svc
}

// PublicKey returns the hex x-only public key the records are authored with.
func (bs *BackupService) PublicKey() (string, error) {
	owner, _, err := bs.keys()
	if err != nil {
		return "", err
	}
	return nostr.PublicKeyHex(owner), nil
}

// PublishWallet publishes the wallet record and returns its event id.
func (bs *BackupService) PublishWallet(ctx context.Context) (string, error) {
	bs.lock.Lock()
	defer bs.lock.Unlock()

	owner, walletKey, err := bs.keys()
	if err != nil {
		return "", err
	}

	event, err := nip60.NewWalletEvent(owner, nip60.WalletRecord{
		PrivKey: hex.EncodeToString(walletKey.Serialize()),
		Mints:   bs.registry.MintURLs(),
	})
	if err != nil {
		return "", err
	}
	if err := bs.relay.Publish(ctx, event); err != nil {
		return "", err
	}
	bs.log("published wallet record %s", event.ID)
	return event.ID, nil
}

// PublishTokens publishes a snapshot of all the proofs of the mint, pending
// ones included, and returns the ids of its events. Large snapshots are split
// across several events. The new snapshot deletes the previously published
// one.
func (bs *BackupService) PublishTokens(
	ctx context.Context, mintURL string,
) ([]string, error) {
	bs.lock.Lock()
	defer bs.lock.Unlock()

	owner, _, err := bs.keys()
	if err != nil {
		return nil, err
	}
	url, err := domain.NormalizeMintURL(mintURL)
	if err != nil {
		return nil, err
	}

	mintRepo := bs.repoManager.MintRepository()
	record, err := mintRepo.GetMint(ctx, url)
	if err != nil {
		return nil, err
	}
	proofs, err := bs.getAllProofs(ctx, record)
	if err != nil {
		return nil, err
	}

	events, err := nip60.NewTokenEvents(owner, nip60.TokenRecord{
		Mint:   url,
		Proofs: toBackupProofs(proofs),
		Del:    record.BackupEventIDs,
	})
	if err != nil {
		return nil, err
	}
	eventIDs := make([]string, 0, len(events))
	for _, event := range events {
		if err := bs.relay.Publish(ctx, event); err != nil {
			return nil, err
		}
		eventIDs = append(eventIDs, event.ID)
	}

	if err := mintRepo.UpdateMint(
		ctx, url, func(m *domain.MintRecord) (*domain.MintRecord, error) {
			m.BackupEventIDs = eventIDs
			return m, nil
		},
	); err != nil {
		return nil, err
	}
	bs.log(
		"published %d token records with %d proofs for mint %s",
		len(eventIDs), len(proofs), url,
	)
	return eventIDs, nil
}

// Restore fetches the published records, registers every mint they mention
// and adds the reconciled proofs to the wallets. Proofs reported as spent by
// their mint are skipped. Mints that can't be reached are reported and
// skipped. Records that can't be opened are skipped, unless none can.
func (bs *BackupService) Restore(ctx context.Context) (*RestoreResult, error) {
	owner, _, err := bs.keys()
	if err != nil {
		return nil, err
	}

	events, err := bs.relay.Query(ctx, nip60.Filter(nostr.PublicKeyHex(owner)))
	if err != nil {
		return nil, err
	}

	var walletRecord *nip60.WalletRecord
	var walletCreatedAt int64
	var decodeErr error
	entries := make([]nip60.TokenEntry, 0)
	for _, event := range events {
		switch event.Kind {
		case nip60.KindWallet:
			record, err := nip60.DecodeWalletEvent(owner, event)
			if err != nil {
				bs.warn(err, "skipping wallet record %s", event.ID)
				decodeErr = err
				continue
			}
			if walletRecord == nil || event.CreatedAt > walletCreatedAt {
				walletRecord = record
				walletCreatedAt = event.CreatedAt
			}
		case nip60.KindToken:
			record, err := nip60.DecodeTokenEvent(owner, event)
			if err != nil {
				bs.warn(err, "skipping token record %s", event.ID)
				decodeErr = err
				continue
			}
			entries = append(entries, nip60.TokenEntry{
				EventID:   event.ID,
				CreatedAt: event.CreatedAt,
				Record:    *record,
			})
		}
	}
	if walletRecord == nil && len(entries) <= 0 && decodeErr != nil {
		return nil, fmt.Errorf("no backup record could be opened: %w", decodeErr)
	}

	proofsByMint := make(map[string][]nip60.Proof)
	for mint, proofs := range nip60.Reconcile(entries) {
		url, err := domain.NormalizeMintURL(mint)
		if err != nil {
			bs.warn(err, "skipping proofs of mint %s", mint)
			continue
		}
		proofsByMint[url] = append(proofsByMint[url], proofs...)
	}
	if walletRecord != nil {
		for _, mint := range walletRecord.Mints {
			url, err := domain.NormalizeMintURL(mint)
			if err != nil {
				bs.warn(err, "skipping mint %s", mint)
				continue
			}
			if _, ok := proofsByMint[url]; !ok {
				proofsByMint[url] = nil
			}
		}
	}

	urls := make([]string, 0, len(proofsByMint))
	for url := range proofsByMint {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	result := &RestoreResult{
		Mints:       make([]string, 0),
		FailedMints: make([]string, 0),
		Amounts:     make(map[domain.WalletKey]uint64),
	}
	for _, url := range urls {
		if err := bs.restoreMint(ctx, url, proofsByMint[url], result); err != nil {
			bs.warn(err, "failed to restore mint %s", url)
			result.FailedMints = append(result.FailedMints, url)
			continue
		}
		result.Mints = append(result.Mints, url)
	}

	bs.log(
		"restored %d mints from %d records, %d failed",
		len(result.Mints), len(events), len(result.FailedMints),
	)
	return result, nil
}

func (bs *BackupService) restoreMint(
	ctx context.Context, url string, backup []nip60.Proof, result *RestoreResult,
) error {
	record, err := bs.repoManager.MintRepository().GetMint(ctx, url)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if record, err = bs.registry.AddMint(ctx, url); err != nil {
			return err
		}
	}

	proofsByUnit := make(map[string]domain.Proofs)
	for _, p := range backup {
		keyset, ok := record.Keyset(p.ID)
		if !ok {
			bs.log("skipping proof of unknown keyset %s of mint %s", p.ID, url)
			continue
		}
		proofsByUnit[keyset.Unit] = append(proofsByUnit[keyset.Unit], fromBackupProof(p))
	}

	units := make([]string, 0, len(proofsByUnit))
	for unit := range proofsByUnit {
		units = append(units, unit)
	}
	sort.Strings(units)

	for _, unit := range units {
		key := domain.WalletKey{MintURL: url, Unit: unit}
		w, err := bs.registry.ensureWallet(ctx, key)
		if err != nil {
			return err
		}

		proofs := proofsByUnit[unit]
		unspent, spentAmount, err := bs.filterSpent(ctx, w, proofs)
		if err != nil {
			return err
		}
		if len(unspent) > 0 {
			if unspent, err = w.importProofs(ctx, unspent); err != nil {
				return err
			}
		}
		result.Amounts[key] += unspent.Amount()
		result.SpentAmount += spentAmount
	}
	return nil
}

// filterSpent drops the proofs the mint reports as spent, if it supports
// checking their state.
func (bs *BackupService) filterSpent(
	ctx context.Context, w *WalletInstance, proofs domain.Proofs,
) (domain.Proofs, uint64, error) {
	record := w.MintRecord()
	if !record.Info.SupportsCheckState() {
		return proofs, 0, nil
	}

	states, err := w.mint.CheckState(ctx, proofs.Secrets())
	if err != nil {
		return nil, 0, err
	}
	spent := make(map[string]bool)
	for _, s := range states {
		if s.State == ports.StateSpent {
			spent[s.Secret] = true
		}
	}

	unspent := make(domain.Proofs, 0, len(proofs))
	var spentAmount uint64
	for _, p := range proofs {
		if spent[p.Secret] {
			spentAmount += p.Amount
			continue
		}
		unspent = append(unspent, p)
	}
	return unspent, spentAmount, nil
}

func (bs *BackupService) getAllProofs(
	ctx context.Context, record *domain.MintRecord,
) (domain.Proofs, error) {
	proofRepo := bs.repoManager.ProofRepository()
	proofs := make(domain.Proofs, 0)
	for _, key := range record.WalletKeys() {
		unspent, err := proofRepo.GetProofs(ctx, key)
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, unspent...)

		pending, err := proofRepo.GetPendingProofs(ctx, key)
		if err != nil {
			return nil, err
		}
		quoteIDs := make([]string, 0, len(pending))
		for id := range pending {
			quoteIDs = append(quoteIDs, id)
		}
		sort.Strings(quoteIDs)
		for _, id := range quoteIDs {
			proofs = append(proofs, pending[id]...)
		}
	}
	return proofs, nil
}

// keys returns the key the records are signed and encrypted with, and the
// key published in the wallet record.
func (bs *BackupService) keys() (*btcec.PrivateKey, *btcec.PrivateKey, error) {
	keychain, err := bs.registry.getKeychain()
	if err != nil {
		return nil, nil, err
	}
	owner, err := keychain.NostrKey(ownerKeyAccount)
	if err != nil {
		return nil, nil, err
	}
	walletKey, err := keychain.NostrKey(walletKeyAccount)
	if err != nil {
		return nil, nil, err
	}
	return owner, walletKey, nil
}

func (bs *BackupService) registerHandlerForProofEvents() {
	handler := func(event domain.ProofEvent) {
		if _, err := bs.registry.getKeychain(); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), autoPublishTimeout)
		defer cancel()

		if _, err := bs.PublishTokens(ctx, event.WalletKey.MintURL); err != nil {
			bs.warn(
				err, "failed to publish token record for mint %s",
				event.WalletKey.MintURL,
			)
		}
	}
	for _, eventType := range []domain.ProofEventType{
		domain.ProofsAdded, domain.ProofsSpent, domain.ProofsRestored,
	} {
		bs.repoManager.RegisterHandlerForProofEvent(eventType, handler)
	}
}

func (bs *BackupService) registerHandlerForMintEvents() {
	handler := func(event domain.MintEvent) {
		if _, err := bs.registry.getKeychain(); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), autoPublishTimeout)
		defer cancel()

		if _, err := bs.PublishWallet(ctx); err != nil {
			bs.warn(err, "failed to publish wallet record")
		}
	}
	bs.repoManager.RegisterHandlerForMintEvent(domain.MintAdded, handler)
	bs.repoManager.RegisterHandlerForMintEvent(domain.MintRemoved, handler)
}

func toBackupProofs(proofs domain.Proofs) []nip60.Proof {
	list := make([]nip60.Proof, 0, len(proofs))
	for _, p := range proofs {
		bp := nip60.Proof{
			ID:      p.KeysetID,
			Amount:  p.Amount,
			Secret:  p.Secret,
			C:       p.C,
			Witness: p.Witness,
		}
		if p.DLEQ != nil {
			bp.DLEQ = &nip60.DLEQ{E: p.DLEQ.E, S: p.DLEQ.S, R: p.DLEQ.R}
		}
		list = append(list, bp)
	}
	return list
}

func fromBackupProof(p nip60.Proof) domain.Proof {
	proof := domain.Proof{
		KeysetID: p.ID,
		Amount:   p.Amount,
		Secret:   p.Secret,
		C:        p.C,
		Witness:  p.Witness,
	}
	if p.DLEQ != nil {
		proof.DLEQ = &domain.DLEQProof{E: p.DLEQ.E, S: p.DLEQ.S, R: p.DLEQ.R}
	}
	return proof
}
