package application

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/pkg/wallet"
)

// WalletInstance is the wallet bound to a single (mint, unit) pair. It owns
// the in-memory set of unspent proofs, kept in sync with the proof
// repository. Every operation that mutates proofs is serialized by the
// instance lock, which is held across the relative mint call.
type WalletInstance struct {
	key         domain.WalletKey
	mint        ports.Mint
	repoManager ports.RepoManager
	selector    ports.ProofSelector
	keychain    *wallet.Keychain

	lock   *sync.Mutex
	record *domain.MintRecord
	store  *domain.ProofStore

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func newWalletInstance(
	ctx context.Context, key domain.WalletKey, record *domain.MintRecord,
	mint ports.Mint, repoManager ports.RepoManager,
	selector ports.ProofSelector, keychain *wallet.Keychain,
) (*WalletInstance, error) {
	if !record.HasUnit(key.Unit) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidUnit, key.Unit)
	}
	proofs, err := repoManager.ProofRepository().GetProofs(ctx, key)
	if err != nil {
		return nil, err
	}
	store, err := domain.NewProofStore(proofs...)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("wallet %s", key)
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("%s: %s", prefix, format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("%s: %s", prefix, format)
		log.WithError(err).Warnf(format, a...)
	}

	return &WalletInstance{
		key:         key,
		mint:        mint,
		repoManager: repoManager,
		selector:    selector,
		keychain:    keychain,
		lock:        &sync.Mutex{},
		record:      record,
		store:       store,
		log:         logFn,
		warn:        warnFn,
	}, nil
}

func (w *WalletInstance) Key() domain.WalletKey {
	return w.key
}

func (w *WalletInstance) Balance() uint64 {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.store.Balance()
}

// PendingBalance returns the amount of the proofs reserved by in-flight
// melts.
func (w *WalletInstance) PendingBalance(ctx context.Context) (uint64, error) {
	pending, err := w.repoManager.ProofRepository().GetPendingProofs(ctx, w.key)
	if err != nil {
		return 0, err
	}
	var amount uint64
	for _, proofs := range pending {
		amount += proofs.Amount()
	}
	return amount, nil
}

// Proofs returns a snapshot of the unspent proofs.
func (w *WalletInstance) Proofs() domain.Proofs {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.store.Unspent()
}

// MintRecord returns a copy of the record of the wallet's mint.
func (w *WalletInstance) MintRecord() domain.MintRecord {
	w.lock.Lock()
	defer w.lock.Unlock()

	return *w.record
}

func (w *WalletInstance) Transactions(
	ctx context.Context,
) ([]*domain.Transaction, error) {
	return w.repoManager.TransactionRepository().GetTransactionsForWallet(ctx, w.key)
}

// PrepareSend selects the proofs to send the given amount without touching
// the wallet state.
func (w *WalletInstance) PrepareSend(
	_ context.Context, amount uint64, opts SendOptions,
) (*PreparedSend, error) {
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	unspent := w.store.Unspent()
	if opts.Offline {
		if selected, ok := exactProofs(unspent, amount); ok {
			w.log("prepared offline send of %d with %d proofs", amount, len(selected))
			return &PreparedSend{
				WalletKey: w.key,
				Amount:    amount,
				Proofs:    selected,
			}, nil
		}
	}

	selected, change, err := w.selector.SelectProofs(unspent, amount, w.record.InputFee)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, fmt.Errorf(
				"%w: requested %d, available %d", domain.ErrInsufficientBalance,
				amount, w.store.Balance(),
			)
		}
		return nil, err
	}
	fee := w.record.InputFee(selected)
	w.log(
		"prepared send of %d with %d proofs (fee %d, change %d)",
		amount, len(selected), fee, change,
	)
	return &PreparedSend{
		WalletKey: w.key,
		Amount:    amount,
		Fee:       fee,
		Change:    change,
		Proofs:    selected,
		Swap:      true,
	}, nil
}

// Confirm swaps the prepared proofs at the mint, if required, and commits the
// send. Nothing changes if the mint call fails.
func (w *WalletInstance) Confirm(
	ctx context.Context, prepared *PreparedSend, memo string,
) (*domain.Token, error) {
	if prepared == nil || prepared.WalletKey != w.key {
		return nil, fmt.Errorf("%w: prepared send belongs to another wallet", domain.ErrInvalidInput)
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	spent := prepared.Proofs.Secrets()
	if !w.store.Has(spent...) {
		return nil, domain.ErrStalePreparedSend
	}

	sendProofs := prepared.Proofs
	var change domain.Proofs
	if prepared.Swap {
		sendAmounts := domain.SplitAmount(prepared.Amount)
		changeAmounts := domain.SplitAmount(prepared.Change)
		outputs, err := w.newOutputs(ctx, append(sendAmounts, changeAmounts...))
		if err != nil {
			return nil, err
		}
		proofs, err := w.mint.Swap(ctx, prepared.Proofs, outputs)
		if err != nil {
			return nil, err
		}
		sendProofs = proofs[:len(sendAmounts)]
		change = proofs[len(sendAmounts):]
	}

	token, err := domain.NewToken(w.key.MintURL, w.key.Unit, sendProofs, memo)
	if err != nil {
		return nil, err
	}
	if err := w.replaceProofs(ctx, spent, change); err != nil {
		return nil, err
	}

	tx := domain.NewTransaction(
		w.key, domain.Outgoing, domain.TxEcashSend, prepared.Amount,
		prepared.Fee, memo, nil,
	)
	w.addTransaction(ctx, tx)

	w.log("sent %d with %d proofs", prepared.Amount, len(sendProofs))
	return token, nil
}

// CancelSend drops a prepared send. Proofs are never reserved before
// confirmation, so there's nothing to release.
func (w *WalletInstance) CancelSend(prepared *PreparedSend) {
	if prepared == nil {
		return
	}
	w.log("canceled send of %d", prepared.Amount)
}

// Receive swaps the proofs of the token for fresh ones and returns the
// amount received, net of the mint fees.
func (w *WalletInstance) Receive(
	ctx context.Context, token *domain.Token, opts ReceiveOptions,
) (uint64, error) {
	if token == nil {
		return 0, domain.ErrInvalidToken
	}
	mintURL, err := domain.NormalizeMintURL(token.MintURL)
	if err != nil {
		return 0, err
	}
	if mintURL != w.key.MintURL || token.Unit != w.key.Unit {
		return 0, domain.ErrTokenMintMismatch
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if err := w.ensureKeysets(ctx, token.Proofs.KeysetIDs()); err != nil {
		return 0, err
	}

	if opts.PreCheck && w.record.Info.SupportsCheckState() {
		states, err := w.mint.CheckState(ctx, token.Proofs.Secrets())
		if err != nil {
			return 0, err
		}
		for _, s := range states {
			if s.State != ports.StateUnspent {
				return 0, domain.ProtocolError(
					fmt.Sprintf("token proof is %s", strings.ToLower(s.State.String())),
				)
			}
		}
	}

	fee := w.record.InputFee(token.Proofs)
	if token.Amount() <= fee {
		return 0, fmt.Errorf(
			"%w: token amount %d doesn't cover fee %d", domain.ErrInvalidInput,
			token.Amount(), fee,
		)
	}
	amount := token.Amount() - fee

	outputs, err := w.newOutputs(ctx, domain.SplitAmount(amount))
	if err != nil {
		return 0, err
	}
	proofs, err := w.mint.Swap(ctx, token.Proofs, outputs)
	if err != nil {
		return 0, err
	}
	if err := w.addProofs(ctx, proofs); err != nil {
		return 0, err
	}

	memo := token.Memo
	if opts.Memo != "" {
		memo = opts.Memo
	}
	tx := domain.NewTransaction(
		w.key, domain.Incoming, domain.TxEcashReceive, amount, fee, memo, nil,
	)
	w.addTransaction(ctx, tx)

	w.log("received %d (fee %d)", amount, fee)
	return amount, nil
}

// RefreshKeysets fetches the keysets of the mint and persists them.
func (w *WalletInstance) RefreshKeysets(ctx context.Context) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.refreshKeysets(ctx)
}

// CheckPendingProofs asks the mint the state of the proofs reserved by
// in-flight melts. Spent proofs are dropped, unspent ones return available.
func (w *WalletInstance) CheckPendingProofs(
	ctx context.Context,
) (*PendingCheckResult, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	result := &PendingCheckResult{}
	pending, err := w.repoManager.ProofRepository().GetPendingProofs(ctx, w.key)
	if err != nil {
		return nil, err
	}
	if len(pending) <= 0 {
		return result, nil
	}
	if !w.record.Info.SupportsCheckState() {
		for _, proofs := range pending {
			result.Pending += proofs.Amount()
		}
		return result, nil
	}

	for quoteID, proofs := range pending {
		states, err := w.mint.CheckState(ctx, proofs.Secrets())
		if err != nil {
			return nil, err
		}
		bySecret := make(map[string]domain.Proof, len(proofs))
		for _, p := range proofs {
			bySecret[p.Secret] = p
		}

		spent := make([]string, 0)
		unspent := make(domain.Proofs, 0)
		for _, s := range states {
			p := bySecret[s.Secret]
			switch s.State {
			case ports.StateSpent:
				spent = append(spent, s.Secret)
				result.Spent += p.Amount
			case ports.StateUnspent:
				unspent = append(unspent, p)
				result.Restored += p.Amount
			default:
				result.Pending += p.Amount
			}
		}

		if len(spent) > 0 {
			if err := w.repoManager.ProofRepository().ReplaceProofs(
				ctx, w.key, spent, nil,
			); err != nil {
				return nil, err
			}
		}
		if len(unspent) > 0 {
			if err := w.restoreProofs(ctx, unspent); err != nil {
				return nil, err
			}
		}
		w.log(
			"checked pending proofs of quote %s: %d spent, %d restored",
			quoteID, len(spent), len(unspent),
		)
	}
	return result, nil
}

// createMintQuote requests an invoice to receive the given amount.
func (w *WalletInstance) createMintQuote(
	ctx context.Context, amount uint64,
) (*domain.MintQuote, error) {
	if !w.MintRecord().Info.SupportsMethod(domain.NutMint, w.key.Unit) {
		return nil, fmt.Errorf("%w: minting disabled for %s", domain.ErrInvalidUnit, w.key.Unit)
	}
	resp, err := w.mint.CreateMintQuote(ctx, amount, w.key.Unit)
	if err != nil {
		return nil, err
	}
	if resp.Amount != amount {
		return nil, domain.ProtocolError(fmt.Sprintf(
			"mint quote amount %d doesn't match requested %d", resp.Amount, amount,
		))
	}
	return newMintQuote(w.key, resp), nil
}

// redeemMintQuote issues the proofs of a paid mint quote. Redeeming an issued
// quote is a no-op returning zero.
func (w *WalletInstance) redeemMintQuote(
	ctx context.Context, quoteID string,
) (uint64, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	quoteRepo := w.repoManager.QuoteRepository()
	quote, err := quoteRepo.GetMintQuote(ctx, quoteID)
	if err != nil {
		return 0, err
	}
	if quote.IsIssued() {
		return 0, nil
	}
	if quote.State == domain.MintQuoteUnpaid {
		resp, err := w.mint.GetMintQuote(ctx, quoteID)
		if err != nil {
			return 0, err
		}
		if quote.Observe(resp.State) {
			if err := w.updateMintQuoteState(ctx, quoteID, resp.State); err != nil {
				return 0, err
			}
		}
		if quote.IsIssued() {
			w.log("quote %s already issued by mint", quoteID)
			return 0, nil
		}
		if quote.State != domain.MintQuotePaid {
			if quote.IsExpired(time.Now()) {
				return 0, domain.ErrQuoteExpired
			}
			return 0, domain.ErrQuoteNotPaid
		}
	}

	outputs, err := w.newOutputs(ctx, domain.SplitAmount(quote.Amount))
	if err != nil {
		return 0, err
	}
	proofs, err := w.mint.Mint(ctx, quoteID, outputs)
	if err != nil {
		return 0, err
	}
	if err := w.addProofs(ctx, proofs); err != nil {
		return 0, err
	}
	if err := quoteRepo.UpdateMintQuote(
		ctx, quoteID, func(q *domain.MintQuote) (*domain.MintQuote, error) {
			q.Observe(domain.MintQuotePaid)
			if err := q.MarkIssued(); err != nil {
				return nil, err
			}
			return q, nil
		},
	); err != nil {
		return 0, err
	}

	tx := domain.NewTransaction(
		w.key, domain.Incoming, domain.TxMint, proofs.Amount(), 0, "",
		map[string]string{"quote": quoteID, "request": quote.Request},
	)
	w.addTransaction(ctx, tx)

	w.log("redeemed mint quote %s for %d", quoteID, proofs.Amount())
	return proofs.Amount(), nil
}

// createMeltQuote asks the mint the amount and fee reserve to pay the
// invoice.
func (w *WalletInstance) createMeltQuote(
	ctx context.Context, invoice string,
) (*domain.MeltQuote, error) {
	if !w.MintRecord().Info.SupportsMethod(domain.NutMelt, w.key.Unit) {
		return nil, fmt.Errorf("%w: melting disabled for %s", domain.ErrInvalidUnit, w.key.Unit)
	}
	resp, err := w.mint.CreateMeltQuote(ctx, invoice, w.key.Unit)
	if err != nil {
		return nil, err
	}
	return newMeltQuote(w.key, invoice, resp), nil
}

// melt spends proofs to pay the invoice of the quote. The proofs are reserved
// for the quote before calling the mint: they are dropped once the payment
// succeeds and made available again if it fails. A network error leaves
// them reserved until the quote is checked again.
func (w *WalletInstance) melt(
	ctx context.Context, quoteID string,
) (*PaymentResult, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	quoteRepo := w.repoManager.QuoteRepository()
	quote, err := quoteRepo.GetMeltQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.State != domain.MeltQuoteUnpaid {
		return nil, fmt.Errorf(
			"%w: melt quote %s is %s", domain.ErrState, quoteID, quote.State,
		)
	}
	if quote.IsExpired(time.Now()) {
		return nil, domain.ErrQuoteExpired
	}

	selected, _, err := w.selector.SelectProofs(
		w.store.Unspent(), quote.Total(), w.record.InputFee,
	)
	if err != nil {
		return nil, err
	}
	inputFee := w.record.InputFee(selected)
	overpaid := selected.Amount() - quote.Amount - inputFee
	blank := make([]uint64, bits.Len64(overpaid))
	for i := range blank {
		blank[i] = 1
	}
	changeOutputs, err := w.newOutputs(ctx, blank)
	if err != nil {
		return nil, err
	}

	secrets := selected.Secrets()
	if err := w.repoManager.ProofRepository().SetProofsPending(
		ctx, w.key, secrets, quoteID,
	); err != nil {
		return nil, err
	}
	for _, secret := range secrets {
		w.store.Remove(secret)
	}

	resp, err := w.mint.Melt(ctx, quoteID, selected, changeOutputs)
	if err != nil {
		if errors.Is(err, domain.ErrNetworkFailure) {
			w.warn(err, "melt of quote %s interrupted, proofs kept reserved", quoteID)
			return nil, err
		}
		if rErr := w.restoreProofs(ctx, selected); rErr != nil {
			w.warn(rErr, "failed to restore proofs of quote %s", quoteID)
		}
		return nil, err
	}

	return w.settleMelt(ctx, quote, selected, inputFee, resp)
}

// checkMeltQuote polls the state of a melt quote and settles its reserved
// proofs once the payment is final.
func (w *WalletInstance) checkMeltQuote(
	ctx context.Context, quoteID string,
) (*domain.MeltQuote, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	quote, err := w.repoManager.QuoteRepository().GetMeltQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.State.IsFinal() {
		return quote, nil
	}
	resp, err := w.mint.GetMeltQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	pending, err := w.repoManager.ProofRepository().GetPendingProofs(ctx, w.key)
	if err != nil {
		return nil, err
	}
	reserved := pending[quoteID]
	if len(reserved) <= 0 {
		if quote.Observe(resp.State) {
			if err := w.updateMeltQuote(ctx, quote, resp); err != nil {
				return nil, err
			}
		}
		return quote, nil
	}

	if _, err := w.settleMelt(ctx, quote, reserved, w.record.InputFee(reserved), resp); err != nil {
		return nil, err
	}
	return w.repoManager.QuoteRepository().GetMeltQuote(ctx, quoteID)
}

// settleMelt applies the outcome of a melt reported by the mint to the
// reserved proofs and to the quote.
func (w *WalletInstance) settleMelt(
	ctx context.Context, quote *domain.MeltQuote, reserved domain.Proofs,
	inputFee uint64, resp *ports.MeltQuoteResponse,
) (*PaymentResult, error) {
	quote.Observe(resp.State)
	result := &PaymentResult{
		QuoteID: quote.ID,
		State:   quote.State,
		Amount:  quote.Amount,
	}

	switch quote.State {
	case domain.MeltQuotePaid:
		change := resp.Change
		if err := w.replaceProofs(ctx, reserved.Secrets(), change); err != nil {
			return nil, err
		}
		var fee uint64
		if spent := quote.Amount + change.Amount(); reserved.Amount() > spent {
			fee = reserved.Amount() - spent
		}
		quote.FeePaid = fee
		quote.Preimage = resp.Preimage
		quote.PendingSecrets = nil
		result.Fee = fee
		result.Preimage = resp.Preimage
		result.Change = change.Amount()

		tx := domain.NewTransaction(
			w.key, domain.Outgoing, domain.TxMelt, quote.Amount, fee, "",
			map[string]string{"quote": quote.ID, "request": quote.Request},
		)
		w.addTransaction(ctx, tx)
		w.log("paid invoice of quote %s (fee %d, input fee %d)", quote.ID, fee, inputFee)
	case domain.MeltQuoteFailed, domain.MeltQuoteUnpaid:
		if err := w.restoreProofs(ctx, reserved); err != nil {
			return nil, err
		}
		quote.PendingSecrets = nil
		w.log("payment of quote %s failed, proofs restored", quote.ID)
	default:
		quote.PendingSecrets = reserved.Secrets()
		w.log("payment of quote %s is pending", quote.ID)
	}

	if err := w.updateMeltQuote(ctx, quote, resp); err != nil {
		return nil, err
	}
	return result, nil
}

func (w *WalletInstance) updateMeltQuote(
	ctx context.Context, quote *domain.MeltQuote, resp *ports.MeltQuoteResponse,
) error {
	return w.repoManager.QuoteRepository().UpdateMeltQuote(
		ctx, quote.ID, func(q *domain.MeltQuote) (*domain.MeltQuote, error) {
			q.Observe(resp.State)
			q.FeePaid = quote.FeePaid
			q.PendingSecrets = quote.PendingSecrets
			if resp.Preimage != "" {
				q.Preimage = resp.Preimage
			}
			return q, nil
		},
	)
}

func (w *WalletInstance) updateMintQuoteState(
	ctx context.Context, quoteID string, state domain.MintQuoteState,
) error {
	return w.repoManager.QuoteRepository().UpdateMintQuote(
		ctx, quoteID, func(q *domain.MintQuote) (*domain.MintQuote, error) {
			q.Observe(state)
			return q, nil
		},
	)
}

// addProofs persists the given proofs and adds those not yet known to the
// in-memory store.
func (w *WalletInstance) addProofs(ctx context.Context, proofs domain.Proofs) error {
	if _, err := w.repoManager.ProofRepository().AddProofs(ctx, w.key, proofs); err != nil {
		return err
	}
	for _, p := range proofs {
		if err := w.store.Add(p); err != nil && !errors.Is(err, domain.ErrDuplicateProof) {
			return err
		}
	}
	return nil
}

// importProofs adds proofs coming from a backup and returns those that are
// now spendable. Backup proofs already stored keep their local state, so the
// in-memory store is reloaded from the unspent proofs of the repository
// instead of taking the backup ones as they are.
func (w *WalletInstance) importProofs(
	ctx context.Context, proofs domain.Proofs,
) (domain.Proofs, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	proofRepo := w.repoManager.ProofRepository()
	if _, err := proofRepo.AddProofs(ctx, w.key, proofs); err != nil {
		return nil, err
	}
	unspent, err := proofRepo.GetProofs(ctx, w.key)
	if err != nil {
		return nil, err
	}
	store, err := domain.NewProofStore(unspent...)
	if err != nil {
		return nil, err
	}
	w.store = store

	imported := make(domain.Proofs, 0, len(proofs))
	for _, p := range proofs {
		if store.Has(p.Secret) {
			imported = append(imported, p)
		}
	}
	return imported, nil
}

func (w *WalletInstance) replaceProofs(
	ctx context.Context, spent []string, added domain.Proofs,
) error {
	if err := w.repoManager.ProofRepository().ReplaceProofs(
		ctx, w.key, spent, added,
	); err != nil {
		return err
	}
	for _, secret := range spent {
		w.store.Remove(secret)
	}
	for _, p := range added {
		if err := w.store.Add(p); err != nil && !errors.Is(err, domain.ErrDuplicateProof) {
			return err
		}
	}
	return nil
}

func (w *WalletInstance) restoreProofs(
	ctx context.Context, proofs domain.Proofs,
) error {
	if _, err := w.repoManager.ProofRepository().RestoreProofs(
		ctx, w.key, proofs.Secrets(),
	); err != nil {
		return err
	}
	for _, p := range proofs {
		if err := w.store.Add(p); err != nil && !errors.Is(err, domain.ErrDuplicateProof) {
			return err
		}
	}
	return nil
}

func (w *WalletInstance) addTransaction(ctx context.Context, tx *domain.Transaction) {
	if _, err := w.repoManager.TransactionRepository().AddTransaction(
		ctx, tx,
	); err != nil {
		w.warn(err, "failed to record %s transaction %s", tx.Type, tx.ID)
	}
}

// newOutputs returns the outputs for the given amounts, for the cheapest
// active keyset of the unit. Their secrets are derived from reserved
// counters, so that they're never reused even if the mint call fails.
func (w *WalletInstance) newOutputs(
	ctx context.Context, amounts []uint64,
) (ports.PreMints, error) {
	if len(amounts) <= 0 {
		return nil, nil
	}
	keyset, err := w.record.ActiveKeyset(w.key.Unit)
	if err != nil {
		return nil, err
	}

	first, err := w.repoManager.CounterRepository().ReserveCounters(
		ctx, keyset.ID, uint32(len(amounts)),
	)
	if err != nil {
		return nil, err
	}

	outputs := make(ports.PreMints, 0, len(amounts))
	for i, amount := range amounts {
		secret, r, err := w.keychain.DeriveSecret(keyset.ID, first+uint32(i))
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, ports.PreMint{
			Amount:         amount,
			KeysetID:       keyset.ID,
			Secret:         secret,
			BlindingFactor: r,
		})
	}
	return outputs, nil
}

// ensureKeysets refreshes the keysets of the mint if any of the given ids is
// unknown, and fails if still unknown after that.
func (w *WalletInstance) ensureKeysets(ctx context.Context, ids []string) error {
	refreshed := false
	for _, id := range ids {
		k, ok := w.record.Keyset(id)
		if !ok && !refreshed {
			if err := w.refreshKeysets(ctx); err != nil {
				return err
			}
			refreshed = true
			k, ok = w.record.Keyset(id)
		}
		if !ok {
			return fmt.Errorf("%w: unknown keyset %s", domain.ErrTokenMintMismatch, id)
		}
		if k.Unit != w.key.Unit {
			return fmt.Errorf(
				"%w: keyset %s is for unit %s", domain.ErrTokenMintMismatch, id, k.Unit,
			)
		}
	}
	return nil
}

func (w *WalletInstance) refreshKeysets(ctx context.Context) error {
	keysets, err := w.mint.GetKeysets(ctx)
	if err != nil {
		return err
	}
	if err := w.repoManager.MintRepository().UpdateMint(
		ctx, w.key.MintURL, func(m *domain.MintRecord) (*domain.MintRecord, error) {
			m.SetKeysets(keysets)
			return m, nil
		},
	); err != nil {
		return err
	}
	w.record.SetKeysets(keysets)
	w.log("refreshed %d keysets", len(keysets))
	return nil
}

// exactProofs returns proofs summing up exactly to amount, picking the
// largest ones first.
func exactProofs(proofs domain.Proofs, amount uint64) (domain.Proofs, bool) {
	sorted := make(domain.Proofs, len(proofs))
	copy(sorted, proofs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount > sorted[j].Amount
	})

	selected := make(domain.Proofs, 0)
	remaining := amount
	for _, p := range sorted {
		if remaining == 0 {
			break
		}
		if p.Amount <= remaining {
			selected = append(selected, p)
			remaining -= p.Amount
		}
	}
	return selected, remaining == 0
}

func newMintQuote(
	key domain.WalletKey, resp *ports.MintQuoteResponse,
) *domain.MintQuote {
	now := time.Now().Unix()
	return &domain.MintQuote{
		ID:        resp.Quote,
		MintURL:   key.MintURL,
		Unit:      key.Unit,
		Request:   resp.Request,
		Amount:    resp.Amount,
		State:     resp.State,
		Expiry:    resp.Expiry,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newMeltQuote(
	key domain.WalletKey, invoice string, resp *ports.MeltQuoteResponse,
) *domain.MeltQuote {
	now := time.Now().Unix()
	return &domain.MeltQuote{
		ID:         resp.Quote,
		MintURL:    key.MintURL,
		Unit:       key.Unit,
		Request:    invoice,
		Amount:     resp.Amount,
		FeeReserve: resp.FeeReserve,
		State:      resp.State,
		Preimage:   resp.Preimage,
		Expiry:     resp.Expiry,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
