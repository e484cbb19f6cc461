package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/pkg/wallet"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrMintNotPersisted = fmt.Errorf(
	"%w: mint record could not be verified after persisting it", domain.ErrState,
)

// MintRegistry is responsible for the set of known mints and of the wallet
// instances bound to them:
//   - Add a mint, after probing it, for one or more units.
//   - Remove a mint along with its proofs and quotes.
//   - List the wallet keys and look up the wallet instance of a key.
//   - Rebuild all the wallet instances from the persisted mint records at
//     startup.
//
// The persisted records are the source of truth, the map of wallet instances
// is a cache rebuildable from them at any time. A wallet instance becomes
// visible only after its mint has been probed and its record persisted and
// read back, so that a failing add never leaves a mint half-registered.
// No mint is contacted while holding the registry write lock.
type MintRegistry struct {
	repoManager ports.RepoManager
	mintFactory ports.MintFactory
	selector    ports.ProofSelector
	defaultUnit string

	lock     *sync.RWMutex
	keychain *wallet.Keychain
	wallets  map[domain.WalletKey]*WalletInstance
	adding   *singleflight.Group

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewMintRegistry(
	repoManager ports.RepoManager, mintFactory ports.MintFactory,
	selector ports.ProofSelector, defaultUnit string,
) *MintRegistry {
	if selector == nil {
		selector = DefaultProofSelector
	}
	if defaultUnit == "" {
		defaultUnit = domain.DefaultUnit
	}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("mint registry: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("mint registry: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	return &MintRegistry{
		repoManager: repoManager,
		mintFactory: mintFactory,
		selector:    selector,
		defaultUnit: defaultUnit,
		lock:        &sync.RWMutex{},
		wallets:     make(map[domain.WalletKey]*WalletInstance),
		adding:      &singleflight.Group{},
		log:         logFn,
		warn:        warnFn,
	}
}

// Load rebuilds the wallet instances of every persisted mint with secrets
// derived from the given seed. Mints whose keysets can't be reloaded are
// skipped, their records are kept for the next attempt.
func (r *MintRegistry) Load(ctx context.Context, seed []byte) error {
	keychain, err := wallet.NewKeychain(seed)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}

	records, err := r.repoManager.MintRepository().GetAllMints(ctx)
	if err != nil {
		return err
	}

	lock := &sync.Mutex{}
	wallets := make(map[domain.WalletKey]*WalletInstance)
	g := &errgroup.Group{}
	for _, rec := range records {
		record := rec
		g.Go(func() error {
			instances, err := r.reloadMint(ctx, record, keychain)
			if err != nil {
				r.warn(err, "skipping mint %s", record.URL)
				return nil
			}
			lock.Lock()
			defer lock.Unlock()
			for _, w := range instances {
				wallets[w.Key()] = w
			}
			return nil
		})
	}
	// nolint
	g.Wait()

	r.lock.Lock()
	defer r.lock.Unlock()

	r.keychain = keychain
	r.wallets = wallets
	r.log("loaded %d wallets from %d mints", len(wallets), len(records))
	return nil
}

// AddMint probes the mint at the given url and registers a wallet for each
// of the given units, or for the default one if none is given. Fails with
// ErrMintAlreadyExists if all the wallets already exist.
func (r *MintRegistry) AddMint(
	ctx context.Context, mintURL string, units ...string,
) (*domain.MintRecord, error) {
	url, err := domain.NormalizeMintURL(mintURL)
	if err != nil {
		return nil, err
	}
	if len(units) <= 0 {
		units = []string{r.defaultUnit}
	}

	r.lock.RLock()
	keychain := r.keychain
	missing := make([]string, 0, len(units))
	for _, unit := range units {
		if _, ok := r.wallets[domain.WalletKey{MintURL: url, Unit: unit}]; !ok {
			missing = append(missing, unit)
		}
	}
	r.lock.RUnlock()

	if keychain == nil {
		return nil, domain.ErrNotInitialized
	}
	if len(missing) <= 0 {
		return nil, domain.ErrMintAlreadyExists
	}
	sort.Strings(missing)

	flightKey := url + "|" + strings.Join(missing, ",")
	res, err, _ := r.adding.Do(flightKey, func() (interface{}, error) {
		return r.addMint(ctx, url, missing, keychain)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.MintRecord), nil
}

// ensureWallet returns the wallet for the given key, adding the mint first if
// unknown.
func (r *MintRegistry) ensureWallet(
	ctx context.Context, key domain.WalletKey,
) (*WalletInstance, error) {
	if w, err := r.GetWallet(key); err == nil {
		return w, nil
	}
	if _, err := r.AddMint(ctx, key.MintURL, key.Unit); err != nil &&
		!errors.Is(err, domain.ErrMintAlreadyExists) {
		return nil, err
	}
	return r.GetWallet(key)
}

// RemoveMint unregisters all the wallets of the mint and deletes its record,
// proofs and quotes.
func (r *MintRegistry) RemoveMint(ctx context.Context, mintURL string) error {
	url, err := domain.NormalizeMintURL(mintURL)
	if err != nil {
		return err
	}

	r.lock.Lock()
	removed := make([]*WalletInstance, 0)
	for key, w := range r.wallets {
		if key.MintURL == url {
			removed = append(removed, w)
			delete(r.wallets, key)
		}
	}
	r.lock.Unlock()

	mintRepo := r.repoManager.MintRepository()
	if _, err := mintRepo.GetMint(ctx, url); err != nil {
		if len(removed) <= 0 {
			return err
		}
		r.warn(err, "mint %s had wallets but no record", url)
	}

	for _, w := range removed {
		if balance := w.Balance(); balance > 0 {
			r.log("removing wallet %s with balance %d", w.Key(), balance)
		}
	}
	if err := r.repoManager.ProofRepository().DeleteProofsForMint(ctx, url); err != nil {
		return err
	}
	if err := r.repoManager.QuoteRepository().DeleteQuotesForMint(ctx, url); err != nil {
		return err
	}
	if err := mintRepo.DeleteMint(ctx, url); err != nil &&
		!errors.Is(err, domain.ErrNotFound) {
		return err
	}
	r.log("removed mint %s", url)
	return nil
}

// ListMints returns the keys of all registered wallets, sorted.
func (r *MintRegistry) ListMints() []domain.WalletKey {
	r.lock.RLock()
	defer r.lock.RUnlock()

	keys := make([]domain.WalletKey, 0, len(r.wallets))
	for k := range r.wallets {
		keys = append(keys, k)
	}
	sortWalletKeys(keys)
	return keys
}

// HasMint returns whether any wallet is registered for the mint.
func (r *MintRegistry) HasMint(mintURL string) bool {
	url, err := domain.NormalizeMintURL(mintURL)
	if err != nil {
		return false
	}

	r.lock.RLock()
	defer r.lock.RUnlock()

	for k := range r.wallets {
		if k.MintURL == url {
			return true
		}
	}
	return false
}

// GetWallet returns the wallet instance of the given key.
func (r *MintRegistry) GetWallet(key domain.WalletKey) (*WalletInstance, error) {
	url, err := domain.NormalizeMintURL(key.MintURL)
	if err != nil {
		return nil, err
	}
	key.MintURL = url

	r.lock.RLock()
	defer r.lock.RUnlock()

	w, ok := r.wallets[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, key)
	}
	return w, nil
}

// Wallets returns all the wallet instances, sorted by key.
func (r *MintRegistry) Wallets() []*WalletInstance {
	keys := r.ListMints()

	r.lock.RLock()
	defer r.lock.RUnlock()

	wallets := make([]*WalletInstance, 0, len(keys))
	for _, k := range keys {
		if w, ok := r.wallets[k]; ok {
			wallets = append(wallets, w)
		}
	}
	return wallets
}

// MintURLs returns the distinct urls of the registered mints, sorted.
func (r *MintRegistry) MintURLs() []string {
	urls := make([]string, 0)
	seen := make(map[string]bool)
	for _, k := range r.ListMints() {
		if !seen[k.MintURL] {
			seen[k.MintURL] = true
			urls = append(urls, k.MintURL)
		}
	}
	return urls
}

// getKeychain returns the keychain loaded at Init.
func (r *MintRegistry) getKeychain() (*wallet.Keychain, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.keychain == nil {
		return nil, domain.ErrNotInitialized
	}
	return r.keychain, nil
}

func (r *MintRegistry) addMint(
	ctx context.Context, url string, units []string, keychain *wallet.Keychain,
) (*domain.MintRecord, error) {
	mint, err := r.mintFactory.NewMint(url)
	if err != nil {
		return nil, err
	}
	info, err := mint.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	keysets, err := mint.GetKeysets(ctx)
	if err != nil {
		return nil, err
	}

	mintRepo := r.repoManager.MintRepository()
	created := false
	var prevUnits []string
	existing, err := mintRepo.GetMint(ctx, url)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		record, err := domain.NewMintRecord(url, *info, keysets, units)
		if err != nil {
			return nil, err
		}
		if err := mintRepo.AddMint(ctx, record); err != nil {
			return nil, err
		}
		created = true
	} else {
		prevUnits = append([]string{}, existing.Units...)
		if err := mintRepo.UpdateMint(
			ctx, existing.URL, func(m *domain.MintRecord) (*domain.MintRecord, error) {
				m.Info = *info
				m.SetKeysets(keysets)
				for _, unit := range units {
					if err := m.AddUnit(unit); err != nil {
						return nil, err
					}
				}
				return m, nil
			},
		); err != nil {
			return nil, err
		}
	}

	rollback := func(cause error) error {
		var err error
		if created {
			err = mintRepo.DeleteMint(ctx, url)
		} else {
			err = mintRepo.UpdateMint(
				ctx, url, func(m *domain.MintRecord) (*domain.MintRecord, error) {
					m.Units = prevUnits
					return m, nil
				},
			)
		}
		if err != nil {
			r.warn(err, "failed to roll back record of mint %s", url)
		}
		return cause
	}

	record, err := mintRepo.GetMint(ctx, url)
	if err != nil {
		return nil, rollback(fmt.Errorf("%w: %s", ErrMintNotPersisted, err))
	}
	if record.URL != url || len(record.Keysets) != len(keysets) {
		return nil, rollback(ErrMintNotPersisted)
	}
	for _, unit := range units {
		if !record.HasUnit(unit) {
			return nil, rollback(ErrMintNotPersisted)
		}
	}

	instances := make([]*WalletInstance, 0, len(record.Units))
	for _, key := range record.WalletKeys() {
		w, err := newWalletInstance(
			ctx, key, copyRecord(record), mint, r.repoManager, r.selector, keychain,
		)
		if err != nil {
			return nil, rollback(err)
		}
		instances = append(instances, w)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	for _, w := range instances {
		if _, ok := r.wallets[w.Key()]; ok {
			continue
		}
		r.wallets[w.Key()] = w
	}
	r.log("added mint %s for units %s", url, strings.Join(units, ", "))
	return record, nil
}

func (r *MintRegistry) reloadMint(
	ctx context.Context, record *domain.MintRecord, keychain *wallet.Keychain,
) ([]*WalletInstance, error) {
	mint, err := r.mintFactory.NewMint(record.URL)
	if err != nil {
		return nil, err
	}
	keysets, err := mint.GetKeysets(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.repoManager.MintRepository().UpdateMint(
		ctx, record.URL, func(m *domain.MintRecord) (*domain.MintRecord, error) {
			m.SetKeysets(keysets)
			return m, nil
		},
	); err != nil {
		return nil, err
	}
	record.SetKeysets(keysets)

	instances := make([]*WalletInstance, 0, len(record.Units))
	for _, key := range record.WalletKeys() {
		w, err := newWalletInstance(
			ctx, key, copyRecord(record), mint, r.repoManager, r.selector, keychain,
		)
		if err != nil {
			return nil, err
		}
		instances = append(instances, w)
	}
	return instances, nil
}

// copyRecord returns a copy of the record that doesn't share slices with
// the original, since each wallet instance updates its own.
func copyRecord(record *domain.MintRecord) *domain.MintRecord {
	cp := *record
	cp.Units = append([]string{}, record.Units...)
	cp.Keysets = append([]domain.Keyset{}, record.Keysets...)
	cp.BackupEventIDs = append([]string{}, record.BackupEventIDs...)
	return &cp
}
