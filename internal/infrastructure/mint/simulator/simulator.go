// Package simulator implements an in-process network of Cashu mints, used to
// run the wallet without real mints and to test it.
//
// Signatures are not blind: a proof is valid if its C matches the hash of
// its keyset, amount and secret. This is enough to reproduce every state
// transition a real mint goes through.
package simulator

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/pkg/bolt11"
)

const (
	maxOrder    = 32
	quoteExpiry = time.Hour
)

const (
	// MeltSucceeds makes melts pay the invoice right away.
	MeltSucceeds MeltOutcome = iota
	// MeltPending leaves melts in flight until SettleMelt is called.
	MeltPending
	// MeltFails makes melts fail, inputs are left unspent.
	MeltFails
)

var (
	ErrMintOffline = fmt.Errorf("mint is offline")
	ErrUnknownMint = fmt.Errorf("no mint at this address")
)

type MeltOutcome int

// MintConfig holds the settings of a simulated mint.
type MintConfig struct {
	Name        string
	Units       []string
	InputFeePpk uint64
	// FeeReserve is the fee reserve requested by melt quotes.
	FeeReserve uint64
	// LightningFee is the fee actually paid by melts, the rest of the
	// reserve is returned as change.
	LightningFee uint64
	// AutoPay marks mint quotes paid as soon as they are created.
	AutoPay bool
	// WithoutCheckState hides NUT-07 support from the mint info.
	WithoutCheckState bool
}

// Network is a set of simulated mints reachable by url. It implements
// ports.MintFactory.
type Network struct {
	lock  *sync.RWMutex
	mints map[string]*Mint
}

func NewNetwork() *Network {
	return &Network{
		lock:  &sync.RWMutex{},
		mints: make(map[string]*Mint),
	}
}

// AddMint starts a simulated mint at the given url.
func (n *Network) AddMint(rawURL string, cfg MintConfig) (*Mint, error) {
	mintURL, err := domain.NormalizeMintURL(rawURL)
	if err != nil {
		return nil, err
	}
	if len(cfg.Units) == 0 {
		cfg.Units = []string{domain.DefaultUnit}
	}
	if cfg.Name == "" {
		cfg.Name = mintURL
	}

	n.lock.Lock()
	defer n.lock.Unlock()

	if _, ok := n.mints[mintURL]; ok {
		return nil, fmt.Errorf("mint %s already exists", mintURL)
	}
	m := newMint(mintURL, cfg)
	n.mints[mintURL] = m
	return m, nil
}

// Mint returns the simulated mint at the given url.
func (n *Network) Mint(rawURL string) (*Mint, bool) {
	mintURL, err := domain.NormalizeMintURL(rawURL)
	if err != nil {
		return nil, false
	}
	n.lock.RLock()
	defer n.lock.RUnlock()
	m, ok := n.mints[mintURL]
	return m, ok
}

// NewMint returns a client for the given url. Clients of unknown mints fail
// every call with a network error.
func (n *Network) NewMint(rawURL string) (ports.Mint, error) {
	mintURL, err := domain.NormalizeMintURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &client{network: n, url: mintURL}, nil
}

// Mint is a simulated mint.
type Mint struct {
	url        string
	cfg        MintConfig
	lock       *sync.Mutex
	keysets    []domain.Keyset
	online     bool
	outcome    MeltOutcome
	lnKey      *btcec.PrivateKey
	spent      map[string]struct{}
	pending    map[string]string
	signed     map[string]struct{}
	mintQuotes map[string]*ports.MintQuoteResponse
	meltQuotes map[string]*meltQuote
	calls      map[string]int
}

type meltQuote struct {
	ports.MeltQuoteResponse
	inputs domain.Proofs
}

func newMint(mintURL string, cfg MintConfig) *Mint {
	seed := sha256.Sum256([]byte(mintURL))
	lnKey, _ := btcec.PrivKeyFromBytes(seed[:])

	units := append([]string{}, cfg.Units...)
	sort.Strings(units)
	keysets := make([]domain.Keyset, 0, len(units))
	for _, unit := range units {
		keysets = append(keysets, newKeyset(mintURL, unit, 0, cfg.InputFeePpk))
	}

	return &Mint{
		url:        mintURL,
		cfg:        cfg,
		lock:       &sync.Mutex{},
		keysets:    keysets,
		online:     true,
		lnKey:      lnKey,
		spent:      make(map[string]struct{}),
		pending:    make(map[string]string),
		signed:     make(map[string]struct{}),
		mintQuotes: make(map[string]*ports.MintQuoteResponse),
		meltQuotes: make(map[string]*meltQuote),
		calls:      make(map[string]int),
	}
}

func newKeyset(
	mintURL, unit string, version int, inputFeePpk uint64,
) domain.Keyset {
	buf := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", mintURL, unit, version)))
	keys := make(map[uint64]string, maxOrder)
	for i := 0; i < maxOrder; i++ {
		amount := uint64(1) << i
		k := sha256.Sum256(append(buf[:], byte(i)))
		priv, _ := btcec.PrivKeyFromBytes(k[:])
		keys[amount] = hex.EncodeToString(priv.PubKey().SerializeCompressed())
	}
	return domain.Keyset{
		ID:          "00" + hex.EncodeToString(buf[:7]),
		Unit:        unit,
		Active:      true,
		InputFeePpk: inputFeePpk,
		Keys:        keys,
	}
}

// URL returns the normalized url of the mint.
func (m *Mint) URL() string {
	return m.url
}

// SetOnline makes the mint reachable or not.
func (m *Mint) SetOnline(online bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.online = online
}

// SetMeltOutcome sets how the next melts behave.
func (m *Mint) SetMeltOutcome(outcome MeltOutcome) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.outcome = outcome
}

// RotateKeyset deactivates the current keyset of the unit and activates a
// new one with the given input fee.
func (m *Mint) RotateKeyset(unit string, inputFeePpk uint64) domain.Keyset {
	m.lock.Lock()
	defer m.lock.Unlock()

	version := 0
	for i := range m.keysets {
		if m.keysets[i].Unit == unit {
			m.keysets[i].Active = false
			version++
		}
	}
	keyset := newKeyset(m.url, unit, version, inputFeePpk)
	m.keysets = append(m.keysets, keyset)
	return keyset
}

// PayMintQuote simulates the payment of the invoice of the mint quote.
func (m *Mint) PayMintQuote(quoteID string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	q, ok := m.mintQuotes[quoteID]
	if !ok {
		return domain.ErrQuoteNotFound
	}
	if q.State == domain.MintQuoteUnpaid {
		q.State = domain.MintQuotePaid
	}
	return nil
}

// SettleMelt resolves an in-flight melt.
func (m *Mint) SettleMelt(quoteID string, paid bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	q, ok := m.meltQuotes[quoteID]
	if !ok {
		return domain.ErrQuoteNotFound
	}
	if q.State != domain.MeltQuotePending {
		return fmt.Errorf("melt quote %s is not pending", quoteID)
	}
	for _, p := range q.inputs {
		delete(m.pending, p.Secret)
		if paid {
			m.spent[p.Secret] = struct{}{}
		}
	}
	if paid {
		q.State = domain.MeltQuotePaid
		q.Preimage = preimage(quoteID)
	} else {
		q.State = domain.MeltQuoteUnpaid
		q.inputs = nil
	}
	return nil
}

// Spend marks the given secrets as spent, as if they were redeemed by
// someone else.
func (m *Mint) Spend(secrets ...string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, s := range secrets {
		m.spent[s] = struct{}{}
	}
}

// IsSpent returns whether the secret has been spent at this mint.
func (m *Mint) IsSpent(secret string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	_, ok := m.spent[secret]
	return ok
}

// Calls returns how many times the given endpoint was called.
func (m *Mint) Calls(endpoint string) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.calls[endpoint]
}

// CreateInvoice returns an invoice for the given amount payable through
// the lightning node of this mint. A zero amount returns an invoice without
// amount.
func (m *Mint) CreateInvoice(amount uint64, description string) (string, error) {
	return m.invoice(amount, description, randomHash())
}

func (m *Mint) invoice(amount uint64, description string, hash []byte) (string, error) {
	return bolt11.Encode(bolt11.EncodeArgs{
		Network:     "bc",
		AmountMsat:  amount * 1000,
		PaymentHash: hash,
		Description: description,
		Expiry:      quoteExpiry,
		PrivateKey:  m.lnKey,
	})
}

// enter must be called with the lock held.
func (m *Mint) enter(endpoint string) error {
	m.calls[endpoint]++
	if !m.online {
		return domain.NetworkError(ErrMintOffline)
	}
	return nil
}

func (m *Mint) info() *domain.MintInfo {
	type method struct {
		Method string `json:"method"`
		Unit   string `json:"unit"`
	}
	methods := make([]method, 0, len(m.cfg.Units))
	for _, unit := range m.cfg.Units {
		methods = append(methods, method{"bolt11", unit})
	}
	mintSettings, _ := json.Marshal(map[string]interface{}{
		"methods": methods, "disabled": false,
	})
	meltSettings, _ := json.Marshal(map[string]interface{}{"methods": methods})

	nuts := map[string]json.RawMessage{
		"2":  json.RawMessage(`{"supported":true}`),
		"4":  mintSettings,
		"5":  meltSettings,
		"12": json.RawMessage(`{"supported":false}`),
	}
	if !m.cfg.WithoutCheckState {
		nuts["7"] = json.RawMessage(`{"supported":true}`)
	}
	return &domain.MintInfo{
		Name:        m.cfg.Name,
		Version:     "cashew-simulator/0.1.0",
		Description: "simulated mint",
		Nuts:        nuts,
	}
}

func (m *Mint) keyset(id string) (*domain.Keyset, bool) {
	for i := range m.keysets {
		if m.keysets[i].ID == id {
			return &m.keysets[i], true
		}
	}
	return nil, false
}

func (m *Mint) inputFee(inputs domain.Proofs) uint64 {
	var sum uint64
	for _, p := range inputs {
		if k, ok := m.keyset(p.KeysetID); ok {
			sum += k.InputFeePpk
		}
	}
	return (sum + 999) / 1000
}

func (m *Mint) verifyInputs(inputs domain.Proofs) (string, error) {
	if len(inputs) == 0 {
		return "", domain.ProtocolError("no inputs provided")
	}
	unit := ""
	seen := make(map[string]struct{}, len(inputs))
	for _, p := range inputs {
		if _, ok := seen[p.Secret]; ok {
			return "", domain.ProtocolError("duplicate inputs provided")
		}
		seen[p.Secret] = struct{}{}

		k, ok := m.keyset(p.KeysetID)
		if !ok {
			return "", domain.ProtocolError("unknown keyset " + p.KeysetID)
		}
		if unit == "" {
			unit = k.Unit
		} else if unit != k.Unit {
			return "", domain.ProtocolError("inputs of different units")
		}
		if _, ok := m.spent[p.Secret]; ok {
			return "", domain.ProtocolError("Token already spent.")
		}
		if _, ok := m.pending[p.Secret]; ok {
			return "", domain.ProtocolError("Token is pending.")
		}
		if p.C != signature(p.KeysetID, p.Amount, p.Secret) {
			return "", domain.ProtocolError("invalid proof")
		}
	}
	return unit, nil
}

func (m *Mint) sign(outputs ports.PreMints, unit string) (domain.Proofs, error) {
	seen := make(map[string]struct{}, len(outputs))
	for _, o := range outputs {
		k, ok := m.keyset(o.KeysetID)
		if !ok || !k.Active {
			return nil, domain.ProtocolError("keyset is not active " + o.KeysetID)
		}
		if k.Unit != unit {
			return nil, domain.ProtocolError("outputs of wrong unit")
		}
		if _, ok := k.Keys[o.Amount]; !ok {
			return nil, domain.ProtocolError(fmt.Sprintf("invalid amount %d", o.Amount))
		}
		if _, ok := m.signed[o.Secret]; ok {
			return nil, domain.ProtocolError("outputs have already been signed before")
		}
		if _, ok := seen[o.Secret]; ok {
			return nil, domain.ProtocolError("duplicate outputs provided")
		}
		seen[o.Secret] = struct{}{}
	}

	proofs := make(domain.Proofs, 0, len(outputs))
	for _, o := range outputs {
		m.signed[o.Secret] = struct{}{}
		proofs = append(proofs, domain.Proof{
			KeysetID: o.KeysetID,
			Amount:   o.Amount,
			Secret:   o.Secret,
			C:        signature(o.KeysetID, o.Amount, o.Secret),
		})
	}
	return proofs, nil
}

func (m *Mint) activeKeyset(unit string) (*domain.Keyset, bool) {
	for i := range m.keysets {
		if m.keysets[i].Active && m.keysets[i].Unit == unit {
			return &m.keysets[i], true
		}
	}
	return nil, false
}

type client struct {
	network *Network
	url     string
}

func (c *client) URL() string {
	return c.url
}

func (c *client) mint(endpoint string) (*Mint, error) {
	c.network.lock.RLock()
	m, ok := c.network.mints[c.url]
	c.network.lock.RUnlock()
	if !ok {
		return nil, domain.NetworkError(ErrUnknownMint)
	}
	m.lock.Lock()
	if err := m.enter(endpoint); err != nil {
		m.lock.Unlock()
		return nil, err
	}
	log.Tracef("simulator: %s %s", c.url, endpoint)
	return m, nil
}

func (c *client) GetInfo(ctx context.Context) (*domain.MintInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NetworkError(err)
	}
	m, err := c.mint("info")
	if err != nil {
		return nil, err
	}
	defer m.lock.Unlock()
	return m.info(), nil
}

func (c *client) GetKeysets(ctx context.Context) ([]domain.Keyset, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NetworkError(err)
	}
	m, err := c.mint("keysets")
	if err != nil {
		return nil, err
	}
	defer m.lock.Unlock()

	keysets := make([]domain.Keyset, 0, len(m.keysets))
	for _, k := range m.keysets {
		keyset := k
		if !k.Active {
			keyset.Keys = nil
		}
		keysets = append(keysets, keyset)
	}
	return keysets, nil
}

func (c *client) Swap(
	ctx context.Context, inputs domain.Proofs, outputs ports.PreMints,
) (domain.Proofs, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NetworkError(err)
	}
	m, err := c.mint("swap")
	if err != nil {
		return nil, err
	}
	defer m.lock.Unlock()

	unit, err := m.verifyInputs(inputs)
	if err != nil {
		return nil, err
	}
	fee := m.inputFee(inputs)
	if inputs.Amount() < fee || inputs.Amount()-fee != outputs.Amount() {
		return nil, domain.ProtocolError(fmt.Sprintf(
			"inputs (%d) - fees (%d) vs outputs (%d) are not balanced",
			inputs.Amount(), fee, outputs.Amount(),
		))
	}
	proofs, err := m.sign(outputs, unit)
	if err != nil {
		return nil, err
	}
	for _, p := range inputs {
		m.spent[p.Secret] = struct{}{}
	}
	return proofs, nil
}

func (c *client) CreateMintQuote(
	ctx context.Context, amount uint64, unit string,
) (*ports.MintQuoteResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NetworkError(err)
	}
	m, err := c.mint("mint_quote")
	if err != nil {
		return nil, err
	}
	defer m.lock.Unlock()

	if amount == 0 {
		return nil, domain.ProtocolError("amount must be positive")
	}
	if _, ok := m.activeKeyset(unit); !ok {
		return nil, domain.ProtocolError("unit not supported " + unit)
	}
	request, err := m.invoice(amount, "cashew simulator", randomHash())
	if err != nil {
		return nil, domain.ProtocolError(err.Error())
	}

	state := domain.MintQuoteUnpaid
	if m.cfg.AutoPay {
		state = domain.MintQuotePaid
	}
	q := &ports.MintQuoteResponse{
		Quote:   uuid.New().String(),
		Request: request,
		Amount:  amount,
		Unit:    unit,
		State:   state,
		Expiry:  time.Now().Add(quoteExpiry).Unix(),
	}
	m.mintQuotes[q.Quote] = q
	resp := *q
	return &resp, nil
}

func (c *client) GetMintQuote(
	ctx context.Context, quoteID string,
) (*ports.MintQuoteResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NetworkError(err)
	}
	m, err := c.mint("mint_quote")
	if err != nil {
		return nil, err
	}
	defer m.lock.Unlock()

	q, ok := m.mintQuotes[quoteID]
	if !ok {
		return nil, domain.ProtocolError("quote not found")
	}
	resp := *q
	return &resp, nil
}

func (c *client) Mint(
	ctx context.Context, quoteID string, outputs ports.PreMints,
) (domain.Proofs, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NetworkError(err)
	}
	m, err := c.mint("mint")
	if err != nil {
		return nil, err
	}
	defer m.lock.Unlock()

	q, ok := m.mintQuotes[quoteID]
	if !ok {
		return nil, domain.ProtocolError("quote not found")
	}
	switch q.State {
	case domain.MintQuoteUnpaid:
		return nil, domain.ProtocolError("quote not paid")
	case domain.MintQuoteIssued:
		return nil, domain.ProtocolError("tokens already issued for this quote")
	}
	if outputs.Amount() > q.Amount {
		return nil, domain.ProtocolError("outputs exceed the quote amount")
	}
	proofs, err := m.sign(outputs, q.Unit)
	if err != nil {
		return nil, err
	}
	q.State = domain.MintQuoteIssued
	return proofs, nil
}

func (c *client) CreateMeltQuote(
	ctx context.Context, request, unit string,
) (*ports.MeltQuoteResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NetworkError(err)
	}
	m, err := c.mint("melt_quote")
	if err != nil {
		return nil, err
	}
	defer m.lock.Unlock()

	if _, ok := m.activeKeyset(unit); !ok {
		return nil, domain.ProtocolError("unit not supported " + unit)
	}
	invoice, err := bolt11.Decode(request)
	if err != nil {
		return nil, domain.ProtocolError(err.Error())
	}
	amount, err := invoice.AmountSat()
	if err != nil {
		return nil, domain.ProtocolError(err.Error())
	}

	q := &meltQuote{MeltQuoteResponse: ports.MeltQuoteResponse{
		Quote:      uuid.New().String(),
		Amount:     amount,
		FeeReserve: m.cfg.FeeReserve,
		Unit:       unit,
		State:      domain.MeltQuoteUnpaid,
		Expiry:     time.Now().Add(quoteExpiry).Unix(),
	}}
	m.meltQuotes[q.Quote] = q
	resp := q.MeltQuoteResponse
	return &resp, nil
}

func (c *client) GetMeltQuote(
	ctx context.Context, quoteID string,
) (*ports.MeltQuoteResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NetworkError(err)
	}
	m, err := c.mint("melt_quote")
	if err != nil {
		return nil, err
	}
	defer m.lock.Unlock()

	q, ok := m.meltQuotes[quoteID]
	if !ok {
		return nil, domain.ProtocolError("quote not found")
	}
	resp := q.MeltQuoteResponse
	resp.Change = nil
	return &resp, nil
}

func (c *client) Melt(
	ctx context.Context, quoteID string, inputs domain.Proofs,
	change ports.PreMints,
) (*ports.MeltQuoteResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NetworkError(err)
	}
	m, err := c.mint("melt")
	if err != nil {
		return nil, err
	}
	defer m.lock.Unlock()

	q, ok := m.meltQuotes[quoteID]
	if !ok {
		return nil, domain.ProtocolError("quote not found")
	}
	if q.State != domain.MeltQuoteUnpaid {
		return nil, domain.ProtocolError("quote is " + q.State.String())
	}
	unit, err := m.verifyInputs(inputs)
	if err != nil {
		return nil, err
	}
	if unit != q.Unit {
		return nil, domain.ProtocolError("inputs of wrong unit")
	}
	fee := m.inputFee(inputs)
	if inputs.Amount() < q.Amount+q.FeeReserve+fee {
		return nil, domain.ProtocolError("not enough inputs provided for melt")
	}

	switch m.outcome {
	case MeltFails:
		return nil, domain.ProtocolError("lightning payment failed")
	case MeltPending:
		for _, p := range inputs {
			m.pending[p.Secret] = quoteID
		}
		q.inputs = inputs
		q.State = domain.MeltQuotePending
		resp := q.MeltQuoteResponse
		return &resp, nil
	}

	for _, p := range inputs {
		m.spent[p.Secret] = struct{}{}
	}
	q.inputs = inputs
	q.State = domain.MeltQuotePaid
	q.Preimage = preimage(quoteID)

	lightningFee := m.cfg.LightningFee
	if lightningFee > q.FeeReserve {
		lightningFee = q.FeeReserve
	}
	overpaid := inputs.Amount() - fee - q.Amount - lightningFee
	keyset, _ := m.activeKeyset(unit)
	outputs := make(ports.PreMints, 0, len(change))
	for i, amount := range split(overpaid) {
		if i >= len(change) {
			break
		}
		o := change[i]
		o.Amount = amount
		o.KeysetID = keyset.ID
		outputs = append(outputs, o)
	}
	changeProofs, err := m.sign(outputs, unit)
	if err != nil {
		return nil, err
	}

	resp := q.MeltQuoteResponse
	resp.Change = changeProofs
	return &resp, nil
}

func (c *client) CheckState(
	ctx context.Context, secrets []string,
) ([]ports.ProofStateInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NetworkError(err)
	}
	m, err := c.mint("checkstate")
	if err != nil {
		return nil, err
	}
	defer m.lock.Unlock()

	if m.cfg.WithoutCheckState {
		return nil, domain.ProtocolError("endpoint not supported")
	}
	states := make([]ports.ProofStateInfo, 0, len(secrets))
	for _, s := range secrets {
		state := ports.StateUnspent
		if _, ok := m.spent[s]; ok {
			state = ports.StateSpent
		} else if _, ok := m.pending[s]; ok {
			state = ports.StatePending
		}
		states = append(states, ports.ProofStateInfo{Secret: s, State: state})
	}
	return states, nil
}

func signature(keysetID string, amount uint64, secret string) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, amount)
	h := sha256.New()
	h.Write([]byte(keysetID))
	h.Write(buf)
	h.Write([]byte(secret))
	return "02" + hex.EncodeToString(h.Sum(nil))
}

func preimage(quoteID string) string {
	h := sha256.Sum256([]byte("preimage|" + quoteID))
	return hex.EncodeToString(h[:])
}

func randomHash() []byte {
	buf := make([]byte, 32)
	// nolint
	rand.Read(buf)
	return buf
}

// split returns the powers of two summing to amount, in ascending order.
func split(amount uint64) []uint64 {
	amounts := make([]uint64, 0)
	for i := 0; amount > 0; i++ {
		if amount&1 == 1 {
			amounts = append(amounts, uint64(1)<<i)
		}
		amount >>= 1
	}
	return amounts
}
