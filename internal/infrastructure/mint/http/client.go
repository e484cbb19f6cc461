// Package httpmint implements the ports.Mint client of the Cashu v1 HTTP API.
package httpmint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
)

const (
	// ClearAuthHeader carries the clear auth token of NUT-21.
	ClearAuthHeader = "Clear-auth"

	maxResponseSize = 4 << 20
)

var (
	// MaxNumOfFailingRequests is the number of requests after which a mint
	// with a too high failure ratio is considered unreachable.
	MaxNumOfFailingRequests = 5
	// FailingRatio is the ratio of failing requests that trips the breaker.
	FailingRatio = 0.6
	// BreakerTimeout is the time a tripped breaker stays open.
	BreakerTimeout = 30 * time.Second
)

type mintFactory struct {
	transport ports.Transport
	auth      ports.AuthProvider
	blinder   ports.Blinder
	timeout   time.Duration
	metrics   *Metrics

	lock     *sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	keys     map[string]*keyCache
}

// NewMintFactory returns a factory of http mint clients. auth and metrics
// are optional. Clients of the same mint share the circuit breaker and the
// cache of keyset public keys.
func NewMintFactory(
	transport ports.Transport, auth ports.AuthProvider, blinder ports.Blinder,
	timeout time.Duration, metrics *Metrics,
) (ports.MintFactory, error) {
	if transport == nil {
		return nil, fmt.Errorf("missing transport")
	}
	if blinder == nil {
		return nil, fmt.Errorf("missing blinder")
	}
	return &mintFactory{
		transport: transport,
		auth:      auth,
		blinder:   blinder,
		timeout:   timeout,
		metrics:   metrics,
		lock:      &sync.Mutex{},
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		keys:      make(map[string]*keyCache),
	}, nil
}

func (f *mintFactory) NewMint(rawURL string) (ports.Mint, error) {
	mintURL, err := domain.NormalizeMintURL(rawURL)
	if err != nil {
		return nil, err
	}
	httpClient, err := f.transport.Client(mintURL)
	if err != nil {
		return nil, err
	}

	f.lock.Lock()
	cb, ok := f.breakers[mintURL]
	if !ok {
		cb = newCircuitBreaker(mintURL)
		f.breakers[mintURL] = cb
	}
	keys, ok := f.keys[mintURL]
	if !ok {
		keys = &keyCache{lock: &sync.RWMutex{}, keys: make(map[string]map[uint64]string)}
		f.keys[mintURL] = keys
	}
	f.lock.Unlock()

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("mint %s: %s", mintURL, format)
		log.Debugf(format, a...)
	}

	return &client{
		url:     mintURL,
		http:    httpClient,
		auth:    f.auth,
		blinder: f.blinder,
		timeout: f.timeout,
		metrics: f.metrics,
		cb:      cb,
		keys:    keys,
		log:     logFn,
	}, nil
}

func newCircuitBreaker(mintURL string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    mintURL,
		Timeout: BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) >= MaxNumOfFailingRequests && ratio >= FailingRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infof("mint %s: circuit breaker state changed from %s to %s", name, from, to)
		},
	})
}

type keyCache struct {
	lock *sync.RWMutex
	keys map[string]map[uint64]string
}

func (c *keyCache) get(keysetID string) (map[uint64]string, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	keys, ok := c.keys[keysetID]
	return keys, ok
}

func (c *keyCache) set(keysetID string, keys map[uint64]string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.keys[keysetID] = keys
}

type client struct {
	url     string
	http    *http.Client
	auth    ports.AuthProvider
	blinder ports.Blinder
	timeout time.Duration
	metrics *Metrics
	cb      *gobreaker.CircuitBreaker
	keys    *keyCache

	log func(format string, a ...interface{})
}

func (c *client) URL() string {
	return c.url
}

func (c *client) GetInfo(ctx context.Context) (*domain.MintInfo, error) {
	info := &domain.MintInfo{}
	if err := c.do(ctx, http.MethodGet, "info", "/v1/info", nil, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *client) GetKeysets(ctx context.Context) ([]domain.Keyset, error) {
	resp := keysetsResponse{}
	if err := c.do(
		ctx, http.MethodGet, "keysets", "/v1/keysets", nil, &resp,
	); err != nil {
		return nil, err
	}

	keysets := make([]domain.Keyset, 0, len(resp.Keysets))
	for _, k := range resp.Keysets {
		keyset := domain.Keyset{
			ID:          k.ID,
			Unit:        k.Unit,
			Active:      k.Active,
			InputFeePpk: k.InputFeePpk,
		}
		if k.Active {
			keys, err := c.getKeys(ctx, k.ID)
			if err != nil {
				return nil, err
			}
			keyset.Keys = keys
		}
		keysets = append(keysets, keyset)
	}
	return keysets, nil
}

func (c *client) Swap(
	ctx context.Context, inputs domain.Proofs, outputs ports.PreMints,
) (domain.Proofs, error) {
	blinded, err := c.blind(outputs)
	if err != nil {
		return nil, err
	}
	req := swapRequest{Inputs: inputs, Outputs: blinded}
	resp := signaturesResponse{}
	if err := c.do(
		ctx, http.MethodPost, "swap", "/v1/swap", req, &resp,
	); err != nil {
		return nil, err
	}
	if len(resp.Signatures) != len(outputs) {
		return nil, domain.ProtocolError(fmt.Sprintf(
			"got %d signatures for %d outputs", len(resp.Signatures), len(outputs),
		))
	}
	return c.unblind(ctx, resp.Signatures, outputs, true)
}

func (c *client) CreateMintQuote(
	ctx context.Context, amount uint64, unit string,
) (*ports.MintQuoteResponse, error) {
	req := mintQuoteRequest{Amount: amount, Unit: unit}
	resp := mintQuoteResponse{}
	if err := c.do(
		ctx, http.MethodPost, "mint_quote", "/v1/mint/quote/bolt11", req, &resp,
	); err != nil {
		return nil, err
	}
	if resp.Amount == 0 {
		resp.Amount = amount
	}
	if resp.Unit == "" {
		resp.Unit = unit
	}
	return parseMintQuote(resp)
}

func (c *client) GetMintQuote(
	ctx context.Context, quoteID string,
) (*ports.MintQuoteResponse, error) {
	resp := mintQuoteResponse{}
	path := "/v1/mint/quote/bolt11/" + url.PathEscape(quoteID)
	if err := c.do(
		ctx, http.MethodGet, "mint_quote", path, nil, &resp,
	); err != nil {
		return nil, err
	}
	return parseMintQuote(resp)
}

func (c *client) Mint(
	ctx context.Context, quoteID string, outputs ports.PreMints,
) (domain.Proofs, error) {
	blinded, err := c.blind(outputs)
	if err != nil {
		return nil, err
	}
	req := mintRequest{Quote: quoteID, Outputs: blinded}
	resp := signaturesResponse{}
	if err := c.do(
		ctx, http.MethodPost, "mint", "/v1/mint/bolt11", req, &resp,
	); err != nil {
		return nil, err
	}
	if len(resp.Signatures) != len(outputs) {
		return nil, domain.ProtocolError(fmt.Sprintf(
			"got %d signatures for %d outputs", len(resp.Signatures), len(outputs),
		))
	}
	return c.unblind(ctx, resp.Signatures, outputs, true)
}

func (c *client) CreateMeltQuote(
	ctx context.Context, request, unit string,
) (*ports.MeltQuoteResponse, error) {
	req := meltQuoteRequest{Request: request, Unit: unit}
	resp := meltQuoteResponse{}
	if err := c.do(
		ctx, http.MethodPost, "melt_quote", "/v1/melt/quote/bolt11", req, &resp,
	); err != nil {
		return nil, err
	}
	if resp.Unit == "" {
		resp.Unit = unit
	}
	return parseMeltQuote(resp, nil)
}

func (c *client) GetMeltQuote(
	ctx context.Context, quoteID string,
) (*ports.MeltQuoteResponse, error) {
	resp := meltQuoteResponse{}
	path := "/v1/melt/quote/bolt11/" + url.PathEscape(quoteID)
	if err := c.do(
		ctx, http.MethodGet, "melt_quote", path, nil, &resp,
	); err != nil {
		return nil, err
	}
	return parseMeltQuote(resp, nil)
}

func (c *client) Melt(
	ctx context.Context, quoteID string, inputs domain.Proofs,
	change ports.PreMints,
) (*ports.MeltQuoteResponse, error) {
	blinded, err := c.blind(change)
	if err != nil {
		return nil, err
	}
	req := meltRequest{Quote: quoteID, Inputs: inputs, Outputs: blinded}
	resp := meltQuoteResponse{}
	if err := c.do(
		ctx, http.MethodPost, "melt", "/v1/melt/bolt11", req, &resp,
	); err != nil {
		return nil, err
	}
	if len(resp.Change) > len(change) {
		return nil, domain.ProtocolError(fmt.Sprintf(
			"got %d change signatures for %d outputs", len(resp.Change), len(change),
		))
	}

	// Blank outputs get their amount from the mint.
	changeProofs, err := c.unblind(ctx, resp.Change, change[:len(resp.Change)], false)
	if err != nil {
		return nil, err
	}
	if resp.Quote == "" {
		resp.Quote = quoteID
	}
	return parseMeltQuote(resp, changeProofs)
}

func (c *client) CheckState(
	ctx context.Context, secrets []string,
) ([]ports.ProofStateInfo, error) {
	ys := make([]string, 0, len(secrets))
	secretByY := make(map[string]string, len(secrets))
	for _, secret := range secrets {
		y, err := c.blinder.HashToCurve(secret)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
		}
		ys = append(ys, y)
		secretByY[y] = secret
	}

	resp := checkStateResponse{}
	if err := c.do(
		ctx, http.MethodPost, "checkstate", "/v1/checkstate",
		checkStateRequest{Ys: ys}, &resp,
	); err != nil {
		return nil, err
	}

	states := make(map[string]ports.ProofStateInfo, len(resp.States))
	for _, s := range resp.States {
		secret, ok := secretByY[s.Y]
		if !ok {
			return nil, domain.ProtocolError("got state of unknown proof " + s.Y)
		}
		state, err := ports.ParseSpendState(s.State)
		if err != nil {
			return nil, err
		}
		states[s.Y] = ports.ProofStateInfo{
			Secret: secret, State: state, Witness: s.Witness,
		}
	}

	result := make([]ports.ProofStateInfo, 0, len(ys))
	for _, y := range ys {
		info, ok := states[y]
		if !ok {
			return nil, domain.ProtocolError("missing state of proof " + y)
		}
		result = append(result, info)
	}
	return result, nil
}

func (c *client) getKeys(
	ctx context.Context, keysetID string,
) (map[uint64]string, error) {
	if keys, ok := c.keys.get(keysetID); ok {
		return keys, nil
	}

	resp := keysResponse{}
	path := "/v1/keys/" + url.PathEscape(keysetID)
	if err := c.do(ctx, http.MethodGet, "keys", path, nil, &resp); err != nil {
		return nil, err
	}
	for _, k := range resp.Keysets {
		if k.ID == keysetID {
			c.keys.set(keysetID, k.Keys)
			c.log("cached keys of keyset %s", keysetID)
			return k.Keys, nil
		}
	}
	return nil, domain.ProtocolError("missing keys of keyset " + keysetID)
}

func (c *client) blind(outputs ports.PreMints) ([]blindedMessage, error) {
	blinded := make([]blindedMessage, 0, len(outputs))
	for _, o := range outputs {
		b, err := c.blinder.Blind(o.Secret, o.BlindingFactor)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
		}
		blinded = append(blinded, blindedMessage{
			Amount: o.Amount, KeysetID: o.KeysetID, B_: b,
		})
	}
	return blinded, nil
}

// unblind turns the signatures into proofs. When strict, every signature
// must match the amount and keyset of its output.
func (c *client) unblind(
	ctx context.Context, sigs []blindSignature, outputs ports.PreMints,
	strict bool,
) (domain.Proofs, error) {
	proofs := make(domain.Proofs, 0, len(sigs))
	for i, sig := range sigs {
		output := outputs[i]
		if strict && (sig.Amount != output.Amount || sig.KeysetID != output.KeysetID) {
			return nil, domain.ProtocolError(fmt.Sprintf(
				"signature %d doesn't match its output", i,
			))
		}
		keys, err := c.getKeys(ctx, sig.KeysetID)
		if err != nil {
			return nil, err
		}
		pubkey, ok := keys[sig.Amount]
		if !ok {
			return nil, domain.ProtocolError(fmt.Sprintf(
				"keyset %s has no key for amount %d", sig.KeysetID, sig.Amount,
			))
		}
		C, err := c.blinder.Unblind(sig.C_, output.BlindingFactor, pubkey)
		if err != nil {
			return nil, domain.ProtocolError(fmt.Sprintf("invalid signature: %s", err))
		}
		proofs = append(proofs, domain.Proof{
			KeysetID: sig.KeysetID,
			Amount:   sig.Amount,
			Secret:   output.Secret,
			C:        C,
			DLEQ:     sig.DLEQ,
		})
	}
	return proofs, nil
}

type rawResponse struct {
	status int
	body   []byte
}

// do sends the request through the breaker of the mint. Only transport
// failures and server errors count as breaker failures, rejections are
// parsed outside of it.
func (c *client) do(
	ctx context.Context, method, endpoint, path string, req, resp interface{},
) (err error) {
	start := time.Now()
	outcome := "ok"
	defer func() { c.metrics.observe(endpoint, outcome, start) }()

	var payload []byte
	if req != nil {
		if payload, err = json.Marshal(req); err != nil {
			outcome = "invalid"
			return fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
		}
	}

	token := ""
	if c.auth != nil {
		if token, err = c.auth.Token(ctx, c.url); err != nil {
			outcome = "invalid"
			return err
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Accept", "application/json")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			httpReq.Header.Set(ClearAuthHeader, token)
		}

		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		buf, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
		if err != nil {
			return nil, err
		}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf(
				"mint replied with status %d: %s", httpResp.StatusCode, buf,
			)
		}
		return &rawResponse{httpResp.StatusCode, buf}, nil
	})
	if err != nil {
		outcome = "network"
		if errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s", domain.ErrMintUnreachable, err)
		}
		return domain.NetworkError(err)
	}

	raw := res.(*rawResponse)
	if raw.status >= http.StatusBadRequest {
		outcome = "rejected"
		return parseError(raw)
	}
	if resp != nil {
		if err := json.Unmarshal(raw.body, resp); err != nil {
			outcome = "invalid"
			return domain.ProtocolError(fmt.Sprintf("malformed %s response: %s", endpoint, err))
		}
	}
	return nil
}

func parseError(raw *rawResponse) error {
	errResp := errorResponse{}
	if err := json.Unmarshal(raw.body, &errResp); err != nil || errResp.Detail == "" {
		return domain.ProtocolError(fmt.Sprintf("mint replied with status %d", raw.status))
	}
	if errResp.Code > 0 {
		return domain.ProtocolError(fmt.Sprintf("%s (code %d)", errResp.Detail, errResp.Code))
	}
	return domain.ProtocolError(errResp.Detail)
}

func parseMintQuote(resp mintQuoteResponse) (*ports.MintQuoteResponse, error) {
	if resp.Quote == "" {
		return nil, domain.ProtocolError("missing quote id")
	}
	var state domain.MintQuoteState
	switch {
	case resp.State == "PENDING":
		// Older mints flag a quote being issued as pending.
		state = domain.MintQuotePaid
	case resp.State != "":
		s, err := domain.ParseMintQuoteState(resp.State)
		if err != nil {
			return nil, err
		}
		state = s
	case resp.Paid != nil && *resp.Paid:
		state = domain.MintQuotePaid
	default:
		state = domain.MintQuoteUnpaid
	}
	return &ports.MintQuoteResponse{
		Quote:   resp.Quote,
		Request: resp.Request,
		Amount:  resp.Amount,
		Unit:    resp.Unit,
		State:   state,
		Expiry:  resp.Expiry,
	}, nil
}

func parseMeltQuote(
	resp meltQuoteResponse, change domain.Proofs,
) (*ports.MeltQuoteResponse, error) {
	if resp.Quote == "" {
		return nil, domain.ProtocolError("missing quote id")
	}
	var state domain.MeltQuoteState
	switch {
	case resp.State != "":
		s, err := domain.ParseMeltQuoteState(resp.State)
		if err != nil {
			return nil, err
		}
		state = s
	case resp.Paid != nil && *resp.Paid:
		state = domain.MeltQuotePaid
	default:
		state = domain.MeltQuoteUnpaid
	}
	return &ports.MeltQuoteResponse{
		Quote:      resp.Quote,
		Amount:     resp.Amount,
		FeeReserve: resp.FeeReserve,
		Unit:       resp.Unit,
		State:      state,
		Expiry:     resp.Expiry,
		Preimage:   resp.Preimage,
		Change:     change,
	}, nil
}
