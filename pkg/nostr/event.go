package nostr

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	ErrInvalidEventID  = fmt.Errorf("event id doesn't match its content")
	ErrInvalidEventSig = fmt.Errorf("invalid event signature")
)

type Tag []string

// Key returns the name of the tag.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first value of the tag.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

type Tags []Tag

// GetAll returns all the tags with the given name.
func (t Tags) GetAll(key string) Tags {
	tags := make(Tags, 0)
	for _, tag := range t {
		if tag.Key() == key {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Event is a NIP-01 event.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

func NewEvent(kind int, content string, tags Tags) *Event {
	if tags == nil {
		tags = Tags{}
	}
	return &Event{
		CreatedAt: time.Now().Unix(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
}

// Serialize returns the canonical serialization hashed to get the event id.
func (e *Event) Serialize() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = Tags{}
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]interface{}{
		0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content,
	}); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ComputeID returns the id of the event, ie. the sha256 hash of its
// serialization.
func (e *Event) ComputeID() (string, error) {
	buf, err := e.Serialize()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(chainhash.HashB(buf)), nil
}

// Sign sets pubkey, id and schnorr signature of the event.
func (e *Event) Sign(key *btcec.PrivateKey) error {
	e.PubKey = PublicKeyHex(key)
	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	hash, _ := hex.DecodeString(id)
	sig, err := schnorr.Sign(key, hash)
	if err != nil {
		return err
	}
	e.ID = id
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify checks that id and signature of the event are valid.
func (e *Event) Verify() error {
	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	if id != e.ID {
		return ErrInvalidEventID
	}
	pubkey, err := ParsePublicKey(e.PubKey)
	if err != nil {
		return err
	}
	buf, err := hex.DecodeString(e.Sig)
	if err != nil {
		return ErrInvalidEventSig
	}
	sig, err := schnorr.ParseSignature(buf)
	if err != nil {
		return ErrInvalidEventSig
	}
	hash, _ := hex.DecodeString(id)
	if !sig.Verify(hash, pubkey) {
		return ErrInvalidEventSig
	}
	return nil
}
