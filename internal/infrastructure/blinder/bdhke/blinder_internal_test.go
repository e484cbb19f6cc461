package bdhke

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashToCurve(t *testing.T) {
	tests := []struct {
		msg      string
		expected string
	}{
		{
			msg:      "0000000000000000000000000000000000000000000000000000000000000000",
			expected: "024cce997d3b518f739663b757deaec95bcd9473c30a14ac2fd04023a739d1a725",
		},
		{
			msg:      "0000000000000000000000000000000000000000000000000000000000000001",
			expected: "022e7158e11c9506f1aa4248bf531298daa7febd6194f003edcd9b93ade6253acf",
		},
	}

	for _, tt := range tests {
		msg, _ := hex.DecodeString(tt.msg)
		point, err := hashToCurve(msg)
		require.NoError(t, err)
		require.Equal(t, tt.expected, hex.EncodeToString(point.SerializeCompressed()))
	}
}

func TestBlindUnblind(t *testing.T) {
	b := NewBlinder()
	one := scalar(1)
	three := scalar(3)

	blinded, err := b.Blind("test_message", one)
	require.NoError(t, err)
	require.Equal(t, "025cc16fe33b953e2ace39653efb3e7a7049711ae1d8a2f7a9108753f1cdea742b", blinded)

	blinded, err = b.Blind("abc", three)
	require.NoError(t, err)
	require.Equal(t, "02d920b4ae65047a54a94e6aa259fd47ac61105c05bbee692d1711fc64cde74bea", blinded)

	// Mint key a = 2, K = 2G, C_ = a*B_.
	c, err := b.Unblind(
		"0378245285efcf3e16e2450ef1816c3ebc7262ffb3c03002241b831866e1a2fd34",
		three,
		"02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5",
	)
	require.NoError(t, err)
	require.Equal(t, "03114b0b271bdc3680aae5593e86d995268180c63a2925d18fed0ed1c97c83bd0b", c)

	_, err = b.Blind("abc", make([]byte, 32))
	require.ErrorIs(t, err, ErrInvalidBlindingFactor)

	_, err = b.Unblind("zz", three, "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5")
	require.Error(t, err)
}

func scalar(n byte) []byte {
	buf := make([]byte, 32)
	buf[31] = n
	return buf
}
