package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/pkg/bolt11"
)

// MultiMintWallet is the entry point of the wallet core. It orchestrates the
// wallet instances of every known mint:
//   - Send and receive ecash, registering the mint of a received token if
//     unknown.
//   - Aggregate balances and transactions of all wallets.
//   - Receive and pay through lightning via mint and melt quotes.
//   - Add and remove mints.
//
// Every operation fails with domain.ErrNotInitialized until Init is called
// with the wallet seed.
type MultiMintWallet struct {
	repoManager ports.RepoManager
	registry    *MintRegistry
	quotes      *QuoteTracker
	defaultUnit string

	lock        *sync.RWMutex
	initialized bool

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewMultiMintWallet(
	repoManager ports.RepoManager, registry *MintRegistry, quotes *QuoteTracker,
) *MultiMintWallet {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("wallet: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("wallet: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &MultiMintWallet{
		repoManager: repoManager,
		registry:    registry,
		quotes:      quotes,
		defaultUnit: registry.defaultUnit,
		lock:        &sync.RWMutex{},
		log:         logFn,
		warn:        warnFn,
	}
}

// Init loads every known mint with secrets derived from the given 32 or 64
// byte seed.
func (m *MultiMintWallet) Init(ctx context.Context, seed []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.initialized {
		return fmt.Errorf("%w: wallet already initialized", domain.ErrState)
	}
	if err := m.registry.Load(ctx, seed); err != nil {
		return err
	}
	m.initialized = true
	m.log("initialized with %d wallets", len(m.registry.ListMints()))
	return nil
}

func (m *MultiMintWallet) IsInitialized() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.initialized
}

func (m *MultiMintWallet) AddMint(
	ctx context.Context, mintURL string, units ...string,
) (*domain.MintRecord, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	return m.registry.AddMint(ctx, mintURL, units...)
}

func (m *MultiMintWallet) RemoveMint(ctx context.Context, mintURL string) error {
	if err := m.checkInitialized(); err != nil {
		return err
	}
	return m.registry.RemoveMint(ctx, mintURL)
}

func (m *MultiMintWallet) ListMints() ([]domain.WalletKey, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	return m.registry.ListMints(), nil
}

func (m *MultiMintWallet) HasMint(mintURL string) (bool, error) {
	if err := m.checkInitialized(); err != nil {
		return false, err
	}
	return m.registry.HasMint(mintURL), nil
}

// GetMint returns the persisted record of the mint.
func (m *MultiMintWallet) GetMint(
	ctx context.Context, mintURL string,
) (*domain.MintRecord, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	url, err := domain.NormalizeMintURL(mintURL)
	if err != nil {
		return nil, err
	}
	return m.repoManager.MintRepository().GetMint(ctx, url)
}

// Send returns a serialized token of the given amount, in the default unit,
// from the wallet of the mint.
func (m *MultiMintWallet) Send(
	ctx context.Context, mintURL string, amount uint64, memo string,
) (string, error) {
	key := domain.WalletKey{MintURL: mintURL, Unit: m.defaultUnit}
	prepared, err := m.PrepareSend(ctx, key, amount, SendOptions{})
	if err != nil {
		return "", err
	}
	return m.ConfirmSend(ctx, prepared, memo)
}

func (m *MultiMintWallet) PrepareSend(
	ctx context.Context, key domain.WalletKey, amount uint64, opts SendOptions,
) (*PreparedSend, error) {
	w, err := m.getWallet(key)
	if err != nil {
		return nil, err
	}
	return w.PrepareSend(ctx, amount, opts)
}

func (m *MultiMintWallet) ConfirmSend(
	ctx context.Context, prepared *PreparedSend, memo string,
) (string, error) {
	if prepared == nil {
		return "", fmt.Errorf("%w: missing prepared send", domain.ErrInvalidInput)
	}
	w, err := m.getWallet(prepared.WalletKey)
	if err != nil {
		return "", err
	}
	token, err := w.Confirm(ctx, prepared, memo)
	if err != nil {
		return "", err
	}
	return token.Serialize()
}

func (m *MultiMintWallet) CancelSend(prepared *PreparedSend) error {
	if prepared == nil {
		return nil
	}
	w, err := m.getWallet(prepared.WalletKey)
	if err != nil {
		return err
	}
	w.CancelSend(prepared)
	return nil
}

// Receive redeems the serialized token and returns the amount received. The
// mint of the token is added if unknown.
func (m *MultiMintWallet) Receive(ctx context.Context, tokenStr string) (uint64, error) {
	return m.ReceiveWithOptions(ctx, tokenStr, ReceiveOptions{})
}

func (m *MultiMintWallet) ReceiveWithOptions(
	ctx context.Context, tokenStr string, opts ReceiveOptions,
) (uint64, error) {
	if err := m.checkInitialized(); err != nil {
		return 0, err
	}
	token, err := domain.DecodeToken(tokenStr)
	if err != nil {
		return 0, err
	}
	mintURL, err := domain.NormalizeMintURL(token.MintURL)
	if err != nil {
		return 0, err
	}
	key := domain.WalletKey{MintURL: mintURL, Unit: token.Unit}

	w, err := m.registry.ensureWallet(ctx, key)
	if err != nil {
		return 0, err
	}
	return w.Receive(ctx, token, opts)
}

// GetAllBalances returns the balance of every wallet.
func (m *MultiMintWallet) GetAllBalances(_ context.Context) (Balances, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	balances := make(Balances)
	for _, w := range m.registry.Wallets() {
		balances[w.Key()] = w.Balance()
	}
	return balances, nil
}

// GetPendingBalances returns the amount reserved by in-flight melts of every
// wallet that has any. Reserved proofs are not part of the balance until the
// payment fails.
func (m *MultiMintWallet) GetPendingBalances(ctx context.Context) (Balances, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	balances := make(Balances)
	for _, w := range m.registry.Wallets() {
		amount, err := w.PendingBalance(ctx)
		if err != nil {
			return nil, err
		}
		if amount > 0 {
			balances[w.Key()] = amount
		}
	}
	return balances, nil
}

// GetTotalBalance returns the sum of the balances of all wallets per unit.
func (m *MultiMintWallet) GetTotalBalance(ctx context.Context) (map[string]uint64, error) {
	balances, err := m.GetAllBalances(ctx)
	if err != nil {
		return nil, err
	}
	return balances.ByUnit(), nil
}

// GetAllTransactions returns the transactions of all wallets sorted by
// timestamp. Wallets whose history can't be read are skipped.
func (m *MultiMintWallet) GetAllTransactions(
	ctx context.Context,
) ([]*domain.Transaction, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	txs := make([]*domain.Transaction, 0)
	for _, w := range m.registry.Wallets() {
		list, err := w.Transactions(ctx)
		if err != nil {
			m.warn(err, "skipping transactions of wallet %s", w.Key())
			continue
		}
		txs = append(txs, list...)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp < txs[j].Timestamp
	})
	return txs, nil
}

// PayInvoice pays the lightning invoice with the default unit wallet of the
// mint. A non zero maxFee rejects the payment if the mint asks for a larger
// fee reserve.
func (m *MultiMintWallet) PayInvoice(
	ctx context.Context, mintURL, invoice string, maxFee uint64,
) (*PaymentResult, error) {
	key := domain.WalletKey{MintURL: mintURL, Unit: m.defaultUnit}
	if _, err := m.getWallet(key); err != nil {
		return nil, err
	}

	decoded, err := bolt11.Decode(invoice)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}
	if _, err := decoded.AmountSat(); err != nil {
		return nil, domain.ErrInvoiceMissingAmount
	}
	if decoded.IsExpired(time.Now()) {
		return nil, fmt.Errorf("%w: invoice expired", domain.ErrInvalidInput)
	}

	quote, err := m.quotes.CreateMeltQuote(ctx, key, invoice)
	if err != nil {
		return nil, err
	}
	if maxFee > 0 && quote.FeeReserve > maxFee {
		return nil, fmt.Errorf(
			"%w: %d > %d", domain.ErrFeeTooHigh, quote.FeeReserve, maxFee,
		)
	}
	return m.quotes.Melt(ctx, quote.ID)
}

// CreateMintQuote requests an invoice to receive the given amount in the
// default unit wallet of the mint.
func (m *MultiMintWallet) CreateMintQuote(
	ctx context.Context, mintURL string, amount uint64,
) (*domain.MintQuote, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	key := domain.WalletKey{MintURL: mintURL, Unit: m.defaultUnit}
	return m.quotes.CreateMintQuote(ctx, key, amount)
}

func (m *MultiMintWallet) CheckMintQuote(
	ctx context.Context, quoteID string,
) (*domain.MintQuote, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	return m.quotes.CheckMintQuote(ctx, quoteID)
}

func (m *MultiMintWallet) RedeemMintQuote(
	ctx context.Context, quoteID string,
) (uint64, error) {
	if err := m.checkInitialized(); err != nil {
		return 0, err
	}
	return m.quotes.RedeemMintQuote(ctx, quoteID)
}

func (m *MultiMintWallet) CheckMeltQuote(
	ctx context.Context, quoteID string,
) (*domain.MeltQuote, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	return m.quotes.CheckMeltQuote(ctx, quoteID)
}

// CheckPendingProofs checks the proofs reserved by in-flight melts of every
// wallet. Wallets whose mint can't be reached are skipped.
func (m *MultiMintWallet) CheckPendingProofs(
	ctx context.Context,
) (map[domain.WalletKey]*PendingCheckResult, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	results := make(map[domain.WalletKey]*PendingCheckResult)
	for _, w := range m.registry.Wallets() {
		res, err := w.CheckPendingProofs(ctx)
		if err != nil {
			m.warn(err, "failed to check pending proofs of wallet %s", w.Key())
			continue
		}
		results[w.Key()] = res
	}
	return results, nil
}

// Watch polls the non final quotes until the context is canceled.
func (m *MultiMintWallet) Watch(ctx context.Context, interval time.Duration) error {
	if err := m.checkInitialized(); err != nil {
		return err
	}
	return m.quotes.Watch(ctx, interval)
}

func (m *MultiMintWallet) getWallet(key domain.WalletKey) (*WalletInstance, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	return m.registry.GetWallet(key)
}

func (m *MultiMintWallet) checkInitialized() error {
	if !m.IsInitialized() {
		return domain.ErrNotInitialized
	}
	return nil
}
