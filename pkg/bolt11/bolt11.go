// Package bolt11 decodes and encodes BOLT-11 lightning payment requests.
package bolt11

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	DefaultExpiry = time.Hour

	fieldPaymentHash     = 1
	fieldExpiry          = 6
	fieldDescription     = 13
	fieldPaymentSecret   = 16
	fieldPayee           = 19
	fieldDescriptionHash = 23

	timestampLen = 7
	signatureLen = 104
	hashLen      = 52
	pubkeyLen    = 53
)

var (
	ErrMissingAmount      = fmt.Errorf("invoice is missing amount")
	ErrMissingPaymentHash = fmt.Errorf("invoice is missing payment hash")
	ErrInvalidPrefix      = fmt.Errorf("invoice must start with 'ln'")
	ErrInvalidSignature   = fmt.Errorf("invalid invoice signature")
	ErrTooShort           = fmt.Errorf("invoice data is too short")
)

// Invoice holds the decoded fields of a payment request.
type Invoice struct {
	Network         string
	AmountMsat      uint64
	HasAmount       bool
	Timestamp       time.Time
	PaymentHash     string
	PaymentSecret   string
	Description     string
	DescriptionHash string
	Expiry          time.Duration
	Payee           string
}

// AmountSat returns the invoice amount in satoshis, rounded up.
func (i *Invoice) AmountSat() (uint64, error) {
	if !i.HasAmount {
		return 0, ErrMissingAmount
	}
	return (i.AmountMsat + 999) / 1000, nil
}

func (i *Invoice) ExpiresAt() time.Time {
	return i.Timestamp.Add(i.Expiry)
}

func (i *Invoice) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt())
}

// Decode parses the given payment request and verifies its signature.
func Decode(invoice string) (*Invoice, error) {
	invoice = strings.ToLower(strings.TrimSpace(invoice))
	invoice = strings.TrimPrefix(invoice, "lightning:")

	hrp, data, err := bech32.DecodeNoLimit(invoice)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(hrp, "ln") {
		return nil, ErrInvalidPrefix
	}
	if len(data) < timestampLen+signatureLen {
		return nil, ErrTooShort
	}

	network, amountMsat, hasAmount, err := parseHrp(hrp)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		Network:    network,
		AmountMsat: amountMsat,
		HasAmount:  hasAmount,
		Timestamp:  time.Unix(int64(groupsToUint(data[:timestampLen])), 0),
		Expiry:     DefaultExpiry,
	}

	signed := data[:len(data)-signatureLen]
	if err := parseTaggedFields(inv, signed[timestampLen:]); err != nil {
		return nil, err
	}
	if inv.PaymentHash == "" {
		return nil, ErrMissingPaymentHash
	}

	payee, err := recoverPayee(hrp, signed, data[len(data)-signatureLen:])
	if err != nil {
		return nil, err
	}
	if inv.Payee == "" {
		inv.Payee = payee
	} else if inv.Payee != payee {
		return nil, ErrInvalidSignature
	}

	return inv, nil
}

func parseTaggedFields(inv *Invoice, data []byte) error {
	for len(data) > 0 {
		if len(data) < 3 {
			return fmt.Errorf("malformed tagged field")
		}
		tag := data[0]
		length := int(data[1])<<5 | int(data[2])
		data = data[3:]
		if len(data) < length {
			return fmt.Errorf("tagged field %d overflows invoice data", tag)
		}
		field := data[:length]
		data = data[length:]

		switch tag {
		case fieldPaymentHash:
			// Fields of unexpected length must be skipped.
			if length != hashLen {
				continue
			}
			buf, err := bech32.ConvertBits(field, 5, 8, false)
			if err != nil {
				return err
			}
			inv.PaymentHash = hex.EncodeToString(buf)
		case fieldPaymentSecret:
			if length != hashLen {
				continue
			}
			buf, err := bech32.ConvertBits(field, 5, 8, false)
			if err != nil {
				return err
			}
			inv.PaymentSecret = hex.EncodeToString(buf)
		case fieldDescriptionHash:
			if length != hashLen {
				continue
			}
			buf, err := bech32.ConvertBits(field, 5, 8, false)
			if err != nil {
				return err
			}
			inv.DescriptionHash = hex.EncodeToString(buf)
		case fieldDescription:
			buf, err := bech32.ConvertBits(field, 5, 8, false)
			if err != nil {
				return err
			}
			if !utf8.Valid(buf) {
				return fmt.Errorf("description is not valid utf8")
			}
			inv.Description = string(buf)
		case fieldExpiry:
			inv.Expiry = time.Duration(groupsToUint(field)) * time.Second
		case fieldPayee:
			if length != pubkeyLen {
				continue
			}
			buf, err := bech32.ConvertBits(field, 5, 8, false)
			if err != nil {
				return err
			}
			inv.Payee = hex.EncodeToString(buf)
		}
	}
	return nil
}

func recoverPayee(hrp string, signed, signature []byte) (string, error) {
	sig, err := bech32.ConvertBits(signature, 5, 8, false)
	if err != nil || len(sig) != 65 {
		return "", ErrInvalidSignature
	}
	recoveryID := sig[64]
	if recoveryID > 3 {
		return "", ErrInvalidSignature
	}

	hash, err := signingHash(hrp, signed)
	if err != nil {
		return "", err
	}
	compact := append([]byte{27 + 4 + recoveryID}, sig[:64]...)
	pubkey, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return "", ErrInvalidSignature
	}
	return hex.EncodeToString(pubkey.SerializeCompressed()), nil
}

func signingHash(hrp string, signed []byte) ([]byte, error) {
	buf, err := bech32.ConvertBits(signed, 5, 8, true)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(append([]byte(hrp), buf...))
	return hash[:], nil
}

func groupsToUint(groups []byte) uint64 {
	var n uint64
	for _, g := range groups {
		n = n<<5 | uint64(g)
	}
	return n
}

func uintToGroups(n uint64, size int) []byte {
	groups := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		groups[i] = byte(n & 31)
		n >>= 5
	}
	return groups
}

// EncodeArgs are the fields of an invoice to encode.
type EncodeArgs struct {
	Network     string
	AmountMsat  uint64
	PaymentHash []byte
	Description string
	Expiry      time.Duration
	Timestamp   time.Time
	PrivateKey  *btcec.PrivateKey
}

func (a EncodeArgs) validate() error {
	if len(a.PaymentHash) != 32 {
		return fmt.Errorf("payment hash must be 32 bytes long")
	}
	if a.PrivateKey == nil {
		return fmt.Errorf("missing signing key")
	}
	return nil
}

// Encode returns the signed payment request for the given args.
// A zero AmountMsat produces an invoice without amount.
func Encode(args EncodeArgs) (string, error) {
	if err := args.validate(); err != nil {
		return "", err
	}
	network := args.Network
	if network == "" {
		network = "bc"
	}
	timestamp := args.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	hrp := "ln" + network + formatAmount(args.AmountMsat)

	data := uintToGroups(uint64(timestamp.Unix()), timestampLen)
	hash, err := bech32.ConvertBits(args.PaymentHash, 8, 5, true)
	if err != nil {
		return "", err
	}
	data = appendField(data, fieldPaymentHash, hash)
	description, err := bech32.ConvertBits([]byte(args.Description), 8, 5, true)
	if err != nil {
		return "", err
	}
	data = appendField(data, fieldDescription, description)
	if args.Expiry > 0 && args.Expiry != DefaultExpiry {
		seconds := uint64(args.Expiry / time.Second)
		size := 1
		for s := seconds >> 5; s > 0; s >>= 5 {
			size++
		}
		data = appendField(data, fieldExpiry, uintToGroups(seconds, size))
	}

	sigHash, err := signingHash(hrp, data)
	if err != nil {
		return "", err
	}
	compact, err := ecdsa.SignCompact(args.PrivateKey, sigHash, true)
	if err != nil {
		return "", err
	}
	sig := append(compact[1:], compact[0]-27-4)
	sigGroups, err := bech32.ConvertBits(sig, 8, 5, true)
	if err != nil {
		return "", err
	}

	return bech32.Encode(hrp, append(data, sigGroups...))
}

func appendField(data []byte, tag byte, field []byte) []byte {
	data = append(data, tag, byte(len(field)>>5), byte(len(field)&31))
	return append(data, field...)
}
