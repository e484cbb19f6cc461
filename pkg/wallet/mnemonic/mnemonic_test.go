package mnemonic_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/pkg/wallet/mnemonic"
)

func TestNewMnemonic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wordCount uint32
		expected  int
	}{
		{0, 24},
		{12, 12},
		{24, 24},
	}

	for _, tt := range tests {
		m, err := mnemonic.NewMnemonic(mnemonic.NewMnemonicArgs{WordCount: tt.wordCount})
		require.NoError(t, err)
		require.Len(t, m, tt.expected)
		require.True(t, mnemonic.IsValid(m))
	}

	for _, wordCount := range []uint32{11, 15, 18, 25} {
		_, err := mnemonic.NewMnemonic(mnemonic.NewMnemonicArgs{WordCount: wordCount})
		require.ErrorIs(t, err, mnemonic.ErrInvalidWordCount)
	}
}

func TestMnemonicToSeed(t *testing.T) {
	t.Parallel()

	// BIP-39 test vector, empty passphrase.
	m := strings.Split("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about", " ")
	seed, err := mnemonic.ToSeed(m)
	require.NoError(t, err)
	require.Equal(
		t,
		"5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4",
		hex.EncodeToString(seed),
	)

	invalid := [][]string{
		nil,
		strings.Split("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", " "),
		strings.Split("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon notaword", " "),
		strings.Split("abandon abandon abandon", " "),
	}
	for _, m := range invalid {
		require.False(t, mnemonic.IsValid(m))
		_, err := mnemonic.ToSeed(m)
		require.ErrorIs(t, err, mnemonic.ErrInvalidMnemonic)
	}
}

func TestMnemonicEntropyRoundTrip(t *testing.T) {
	t.Parallel()

	for _, wordCount := range []uint32{12, 24} {
		for i := 0; i < 20; i++ {
			m, err := mnemonic.NewMnemonic(mnemonic.NewMnemonicArgs{WordCount: wordCount})
			require.NoError(t, err)

			entropy, err := mnemonic.ToEntropy(m)
			require.NoError(t, err)
			require.Len(t, entropy, int(wordCount/12*16))

			m2, err := mnemonic.FromEntropy(entropy)
			require.NoError(t, err)
			require.Equal(t, m, m2)
		}
	}

	_, err := mnemonic.FromEntropy(make([]byte, 20))
	require.ErrorIs(t, err, mnemonic.ErrInvalidEntropySize)
}
