// Package nip60 encodes and decodes the nostr records used to back up an
// ecash wallet: a replaceable wallet record listing the known mints and token
// records holding the unspent proofs of a mint. Record contents are NIP-44
// encrypted to the author's own key, NIP-04 contents are still accepted.
package nip60

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/pkg/nip04"
	"github.com/vulpemventures/cashew/pkg/nip44"
	"github.com/vulpemventures/cashew/pkg/nostr"
)

const (
	KindWallet = 17375
	KindToken  = 7375

	privkeyTag = "privkey"
	mintTag    = "mint"

	// maxContentSize is the largest plaintext a NIP-44 payload can hold.
	maxContentSize = 65535
)

var (
	ErrInvalidKind      = fmt.Errorf("unexpected event kind")
	ErrDecryptionFailed = fmt.Errorf("%w: backup record", domain.ErrDecryptionFailed)
	ErrInvalidRecord    = fmt.Errorf("invalid record")
)

type DLEQ struct {
	E string `json:"e"`
	S string `json:"s"`
	R string `json:"r,omitempty"`
}

// Proof is the wire format of a proof inside a token record.
type Proof struct {
	ID      string `json:"id"`
	Amount  uint64 `json:"amount"`
	Secret  string `json:"secret"`
	C       string `json:"C"`
	Witness string `json:"witness,omitempty"`
	DLEQ    *DLEQ  `json:"dleq,omitempty"`
}

// WalletRecord is the content of a wallet event. PrivKey is the hex key
// ecash locked to the wallet can be redeemed with.
type WalletRecord struct {
	PrivKey string
	Mints   []string
}

// TokenRecord is the content of a token event. Del lists the ids of the token
// events this record supersedes.
type TokenRecord struct {
	Mint   string   `json:"mint"`
	Proofs []Proof  `json:"proofs"`
	Del    []string `json:"del,omitempty"`
}

func (r TokenRecord) validate() error {
	if r.Mint == "" {
		return fmt.Errorf("%w: missing mint", ErrInvalidRecord)
	}
	for _, p := range r.Proofs {
		if p.Secret == "" || p.C == "" || p.ID == "" {
			return fmt.Errorf("%w: malformed proof", ErrInvalidRecord)
		}
	}
	return nil
}

// NewWalletEvent returns the signed wallet event for the given record.
func NewWalletEvent(
	key *btcec.PrivateKey, record WalletRecord,
) (*nostr.Event, error) {
	tags := make([][]string, 0, len(record.Mints)+1)
	tags = append(tags, []string{privkeyTag, record.PrivKey})
	for _, mint := range record.Mints {
		tags = append(tags, []string{mintTag, mint})
	}
	content, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return newEvent(key, KindWallet, content)
}

// DecodeWalletEvent verifies and decrypts a wallet event authored by the
// given key.
func DecodeWalletEvent(
	key *btcec.PrivateKey, event *nostr.Event,
) (*WalletRecord, error) {
	content, err := openEvent(key, KindWallet, event)
	if err != nil {
		return nil, err
	}

	var tags [][]string
	if err := json.Unmarshal(content, &tags); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, err)
	}
	record := &WalletRecord{Mints: make([]string, 0)}
	for _, tag := range tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case privkeyTag:
			record.PrivKey = tag[1]
		case mintTag:
			record.Mints = append(record.Mints, tag[1])
		}
	}
	return record, nil
}

// NewTokenEvent returns the signed token event for the given record.
func NewTokenEvent(
	key *btcec.PrivateKey, record TokenRecord,
) (*nostr.Event, error) {
	if err := record.validate(); err != nil {
		return nil, err
	}
	if record.Proofs == nil {
		record.Proofs = make([]Proof, 0)
	}
	content, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return newEvent(key, KindToken, content)
}

// NewTokenEvents returns the signed token events holding the proofs of the
// given record, split so that each content fits a NIP-44 payload. Only the
// first event lists the deleted ids.
func NewTokenEvents(
	key *btcec.PrivateKey, record TokenRecord,
) ([]*nostr.Event, error) {
	if err := record.validate(); err != nil {
		return nil, err
	}
	chunks, err := splitRecord(record)
	if err != nil {
		return nil, err
	}
	events := make([]*nostr.Event, 0, len(chunks))
	for _, chunk := range chunks {
		event, err := NewTokenEvent(key, chunk)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// DecodeTokenEvent verifies and decrypts a token event authored by the given
// key.
func DecodeTokenEvent(
	key *btcec.PrivateKey, event *nostr.Event,
) (*TokenRecord, error) {
	content, err := openEvent(key, KindToken, event)
	if err != nil {
		return nil, err
	}

	record := &TokenRecord{}
	if err := json.Unmarshal(content, record); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, err)
	}
	if err := record.validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// Filter returns the filter matching all the backup records of the given
// author.
func Filter(pubkey string) nostr.Filter {
	return nostr.Filter{
		Authors: []string{pubkey},
		Kinds:   []int{KindWallet, KindToken},
	}
}

// TokenEntry is a decoded token record along with the metadata of its event.
type TokenEntry struct {
	EventID   string
	CreatedAt int64
	Record    TokenRecord
}

// Reconcile merges the given token records into the set of proofs per mint.
// Records are ordered by creation time, then by event id. A record is dropped
// if a strictly later record lists it as deleted. The proofs of the surviving
// records are merged by secret.
func Reconcile(entries []TokenEntry) map[string][]Proof {
	sorted := make([]TokenEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].EventID < sorted[j].EventID
	})

	// deletedAt maps a deleted event id to the position of the latest record
	// deleting it.
	deletedAt := make(map[string]int)
	for i, e := range sorted {
		for _, id := range e.Record.Del {
			deletedAt[id] = i
		}
	}

	proofsByMint := make(map[string][]Proof)
	seen := make(map[string]bool)
	for i, e := range sorted {
		if j, ok := deletedAt[e.EventID]; ok && j > i {
			continue
		}
		if _, ok := proofsByMint[e.Record.Mint]; !ok {
			proofsByMint[e.Record.Mint] = make([]Proof, 0)
		}
		for _, p := range e.Record.Proofs {
			if seen[p.Secret] {
				continue
			}
			seen[p.Secret] = true
			proofsByMint[e.Record.Mint] = append(proofsByMint[e.Record.Mint], p)
		}
	}
	return proofsByMint
}

func splitRecord(record TokenRecord) ([]TokenRecord, error) {
	current := TokenRecord{Mint: record.Mint, Proofs: make([]Proof, 0), Del: record.Del}
	size, err := contentSize(current)
	if err != nil {
		return nil, err
	}
	if size > maxContentSize {
		return nil, fmt.Errorf("%w: too many deleted ids", ErrInvalidRecord)
	}

	chunks := make([]TokenRecord, 0, 1)
	for _, p := range record.Proofs {
		buf, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		// +1 for the separator.
		proofSize := len(buf) + 1
		if size+proofSize > maxContentSize && len(current.Proofs) > 0 {
			chunks = append(chunks, current)
			current = TokenRecord{Mint: record.Mint, Proofs: make([]Proof, 0)}
			if size, err = contentSize(current); err != nil {
				return nil, err
			}
		}
		if size+proofSize > maxContentSize {
			return nil, fmt.Errorf("%w: proof too large", ErrInvalidRecord)
		}
		current.Proofs = append(current.Proofs, p)
		size += proofSize
	}
	return append(chunks, current), nil
}

func contentSize(record TokenRecord) (int, error) {
	buf, err := json.Marshal(record)
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

func newEvent(
	key *btcec.PrivateKey, kind int, content []byte,
) (*nostr.Event, error) {
	ck := nip44.ConversationKey(key, key.PubKey())
	payload, err := nip44.Encrypt(string(content), ck)
	if err != nil {
		return nil, err
	}
	event := nostr.NewEvent(kind, payload, nil)
	if err := event.Sign(key); err != nil {
		return nil, err
	}
	return event, nil
}

func openEvent(
	key *btcec.PrivateKey, kind int, event *nostr.Event,
) ([]byte, error) {
	if event.Kind != kind {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKind, event.Kind, kind)
	}
	if err := event.Verify(); err != nil {
		return nil, err
	}
	var content string
	var err error
	if nip04.IsPayload(event.Content) {
		content, err = nip04.Decrypt(event.Content, nip04.SharedKey(key, key.PubKey()))
	} else {
		content, err = nip44.Decrypt(event.Content, nip44.ConversationKey(key, key.PubKey()))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecryptionFailed, err)
	}
	return []byte(content), nil
}
