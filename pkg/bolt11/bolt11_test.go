package bolt11_test

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/pkg/bolt11"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	paymentHash := sha256.Sum256([]byte("preimage"))
	timestamp := time.Unix(1700000000, 0)

	tests := []struct {
		name       string
		network    string
		amountMsat uint64
		expiry     time.Duration
		prefix     string
	}{
		{"milli", "bc", 100000000, 0, "lnbc1m1"},
		{"micro", "bc", 250000000, 0, "lnbc2500u1"},
		{"nano", "tb", 1000, 10 * time.Minute, "lntb10n1"},
		{"pico", "bcrt", 1, time.Hour, "lnbcrt10p1"},
		{"sats", "bc", 500000, 24 * time.Hour, "lnbc5u1"},
		{"no_amount", "bc", 0, 0, "lnbc1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			invoice, err := bolt11.Encode(bolt11.EncodeArgs{
				Network:     tt.network,
				AmountMsat:  tt.amountMsat,
				PaymentHash: paymentHash[:],
				Description: "coffee ☕",
				Expiry:      tt.expiry,
				Timestamp:   timestamp,
				PrivateKey:  key,
			})
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(invoice, tt.prefix), invoice)

			decoded, err := bolt11.Decode(strings.ToUpper(invoice))
			require.NoError(t, err)
			require.Equal(t, tt.network, decoded.Network)
			require.Equal(t, tt.amountMsat, decoded.AmountMsat)
			require.Equal(t, tt.amountMsat > 0, decoded.HasAmount)
			require.Equal(t, hex.EncodeToString(paymentHash[:]), decoded.PaymentHash)
			require.Equal(t, "coffee ☕", decoded.Description)
			require.Equal(t, timestamp.Unix(), decoded.Timestamp.Unix())
			require.Equal(t, hex.EncodeToString(key.PubKey().SerializeCompressed()), decoded.Payee)

			expiry := tt.expiry
			if expiry == 0 {
				expiry = bolt11.DefaultExpiry
			}
			require.Equal(t, expiry, decoded.Expiry)
			require.True(t, decoded.IsExpired(time.Now()))

			amount, err := decoded.AmountSat()
			if tt.amountMsat == 0 {
				require.ErrorIs(t, err, bolt11.ErrMissingAmount)
				return
			}
			require.NoError(t, err)
			require.Equal(t, (tt.amountMsat+999)/1000, amount)
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	hash := sha256.Sum256([]byte("x"))
	valid, err := bolt11.Encode(bolt11.EncodeArgs{
		AmountMsat: 1000, PaymentHash: hash[:], PrivateKey: key,
	})
	require.NoError(t, err)

	// Flip a char of the data part to break the checksum.
	broken := []byte(valid)
	if broken[20] == 'q' {
		broken[20] = 'p'
	} else {
		broken[20] = 'q'
	}

	tests := []string{
		"",
		"lnbc",
		"bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
		string(broken),
		valid[:len(valid)-10],
	}
	for _, invoice := range tests {
		_, err := bolt11.Decode(invoice)
		require.Error(t, err, invoice)
	}

	_, err = bolt11.Encode(bolt11.EncodeArgs{PaymentHash: hash[:4], PrivateKey: key})
	require.Error(t, err)
}
