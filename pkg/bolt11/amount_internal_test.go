package bolt11

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHrp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hrp       string
		network   string
		msat      uint64
		hasAmount bool
	}{
		{"lnbc", "bc", 0, false},
		{"lnbc2500u", "bc", 250000000, true},
		{"lnbc20m", "bc", 2000000000, true},
		{"lntb1", "tb", 100000000000, true},
		{"lnbcrt10n", "bcrt", 1000, true},
		{"lnbc9678785340p", "bc", 967878534, true},
	}

	for _, tt := range tests {
		network, msat, hasAmount, err := parseHrp(tt.hrp)
		require.NoError(t, err, tt.hrp)
		require.Equal(t, tt.network, network)
		require.Equal(t, tt.msat, msat)
		require.Equal(t, tt.hasAmount, hasAmount)
	}

	invalid := []string{"ln", "ln100u", "lnbc1x", "lnbc1p", "lnbc0100u", "lnbc0"}
	for _, hrp := range invalid {
		_, _, _, err := parseHrp(hrp)
		require.Error(t, err, hrp)
	}
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msat     uint64
		expected string
	}{
		{0, ""},
		{1, "10p"},
		{1000, "10n"},
		{100000, "1u"},
		{250000000, "2500u"},
		{100000000, "1m"},
		{123456789, "1234567890p"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, formatAmount(tt.msat))
		if tt.msat > 0 {
			msat, err := parseAmount(tt.expected)
			require.NoError(t, err)
			require.Equal(t, tt.msat, msat)
		}
	}
}
