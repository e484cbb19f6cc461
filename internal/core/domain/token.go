package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TokenPrefixV3 = "cashuA"
	DefaultUnit   = "sat"
)

// Token is a transferable bundle of proofs issued by a single mint for a
// single unit.
type Token struct {
	MintURL string
	Unit    string
	Proofs  Proofs
	Memo    string
}

// tokenV3 is the wire format of a serialized token. The field order of the
// structs below determines the serialized JSON, keep it stable.
type tokenV3 struct {
	Token []tokenV3Entry `json:"token"`
	Unit  string         `json:"unit,omitempty"`
	Memo  string         `json:"memo,omitempty"`
}

type tokenV3Entry struct {
	Mint   string `json:"mint"`
	Proofs Proofs `json:"proofs"`
}

func NewToken(mintURL, unit string, proofs Proofs, memo string) (*Token, error) {
	t := &Token{
		MintURL: mintURL,
		Unit:    unit,
		Proofs:  proofs,
		Memo:    memo,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Amount returns the total value of the token.
func (t *Token) Amount() uint64 {
	return t.Proofs.Amount()
}

// WalletKey returns the key of the wallet instance able to redeem the token.
func (t *Token) WalletKey() WalletKey {
	return WalletKey{MintURL: t.MintURL, Unit: t.Unit}
}

// Serialize encodes the token as a cashuA string.
func (t *Token) Serialize() (string, error) {
	if err := t.validate(); err != nil {
		return "", err
	}
	buf, err := json.Marshal(tokenV3{
		Token: []tokenV3Entry{{Mint: t.MintURL, Proofs: t.Proofs}},
		Unit:  t.Unit,
		Memo:  t.Memo,
	})
	if err != nil {
		return "", err
	}
	return TokenPrefixV3 + base64.URLEncoding.EncodeToString(buf), nil
}

// DecodeToken parses a cashuA string. Both the url and the standard base64
// alphabets are accepted, with or without padding. Tokens spanning multiple
// mints are rejected.
func DecodeToken(str string) (*Token, error) {
	str = strings.TrimSpace(str)
	if !strings.HasPrefix(str, TokenPrefixV3) {
		return nil, fmt.Errorf("%w: unknown token prefix", ErrInvalidToken)
	}
	buf, err := decodeBase64(strings.TrimPrefix(str, TokenPrefixV3))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	var raw tokenV3
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	if len(raw.Token) == 0 {
		return nil, fmt.Errorf("%w: no proofs", ErrInvalidToken)
	}

	mintURL := raw.Token[0].Mint
	proofs := make(Proofs, 0)
	for _, entry := range raw.Token {
		if entry.Mint != mintURL {
			return nil, fmt.Errorf("%w: multi-mint tokens are not supported", ErrInvalidToken)
		}
		proofs = append(proofs, entry.Proofs...)
	}

	unit := raw.Unit
	if unit == "" {
		unit = DefaultUnit
	}
	return NewToken(mintURL, unit, proofs, raw.Memo)
}

func (t *Token) validate() error {
	if t.MintURL == "" {
		return fmt.Errorf("%w: missing mint url", ErrInvalidToken)
	}
	if t.Unit == "" {
		return fmt.Errorf("%w: missing unit", ErrInvalidToken)
	}
	if len(t.Proofs) == 0 {
		return fmt.Errorf("%w: no proofs", ErrInvalidToken)
	}
	secrets := make(map[string]struct{}, len(t.Proofs))
	for _, p := range t.Proofs {
		if p.Amount == 0 || p.Secret == "" || p.C == "" || p.KeysetID == "" {
			return fmt.Errorf("%w: malformed proof", ErrInvalidToken)
		}
		if _, ok := secrets[p.Secret]; ok {
			return fmt.Errorf("%w: duplicate proof secret", ErrInvalidToken)
		}
		secrets[p.Secret] = struct{}{}
	}
	return nil
}

func decodeBase64(str string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.URLEncoding, base64.RawURLEncoding,
		base64.StdEncoding, base64.RawStdEncoding,
	}
	var err error
	for _, enc := range encodings {
		var buf []byte
		if buf, err = enc.DecodeString(str); err == nil {
			return buf, nil
		}
	}
	return nil, err
}
