package wallet_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/pkg/wallet"
	"github.com/vulpemventures/cashew/pkg/wallet/mnemonic"
)

var testMnemonic = strings.Split(
	"half depart obvious quality work element tank gorilla view sugar picture humble", " ",
)

func TestSeedFromHex(t *testing.T) {
	t.Parallel()

	seed, err := wallet.SeedFromHex(strings.Repeat("ab", 32))
	require.NoError(t, err)
	require.Len(t, seed, 32)

	seed, err = wallet.SeedFromHex(strings.Repeat("CD", 64))
	require.NoError(t, err)
	require.Len(t, seed, 64)

	invalid := []string{
		"",
		strings.Repeat("ab", 31),
		strings.Repeat("ab", 33),
		strings.Repeat("ab", 65),
		strings.Repeat("zz", 32),
	}
	for _, str := range invalid {
		_, err := wallet.SeedFromHex(str)
		require.ErrorIs(t, err, wallet.ErrInvalidSeedHex)
	}
}

func TestWorkingSeed(t *testing.T) {
	t.Parallel()

	long := make([]byte, 64)
	for i := range long {
		long[i] = byte(i)
	}
	working, err := wallet.WorkingSeed(long)
	require.NoError(t, err)
	require.Equal(t, long, working)

	short := long[:32]
	working, err = wallet.WorkingSeed(short)
	require.NoError(t, err)
	require.Len(t, working, 64)
	require.NotEqual(t, short, working[:32])

	again, err := wallet.WorkingSeed(short)
	require.NoError(t, err)
	require.Equal(t, working, again)

	for _, l := range []int{0, 16, 33, 63, 65} {
		_, err := wallet.WorkingSeed(make([]byte, l))
		require.ErrorIs(t, err, wallet.ErrInvalidSeedLength)
	}
}

func TestDeriveSecret(t *testing.T) {
	t.Parallel()

	seed, err := mnemonic.ToSeed(testMnemonic)
	require.NoError(t, err)
	keychain, err := wallet.NewKeychain(seed)
	require.NoError(t, err)

	// NUT-13 test vectors.
	expectedSecrets := []string{
		"485875df74771877439ac06339e284c3acfcd9be7abf3bc20b516faeadfe77ae",
		"8f2b39e8e594a4056eb1e6dbb4b0c38ef13b1b2c751f64f810ec04ee35b77270",
		"bc628c79accd2364fd31511216a0fab62afd4a18ff77a20deded7b858c9860c8",
		"59284fd1650ea9fa17db2b3acf59ecd0f2d52ec3261dd4152785813ff27a33bf",
		"576c23393a8b31cc8da6688d9c9a96394ec74b40fdaf1f693a6bb84284334ea0",
	}
	expectedBlindingFactors := []string{
		"ad00d431add9c673e843d4c2bf9a778a5f402b985b8da2d5550bf39cda41d679",
		"967d5232515e10b81ff226ecf5a9e2e2aff92d66ebc3edf0987eb56357fd6248",
		"b20f47bb6ae083659f3aa986bfa0435c55c6d93f687d51a01f26862d9b9a4899",
		"fb5fca398eb0b1deb955a2988b5ac77d32956155f1c002a373535211a2dfdc29",
		"5f09bfbfe27c439a597719321e061e2e40aad4a36768bb2bcc3de547c9644bf9",
	}

	for i := range expectedSecrets {
		secret, r, err := keychain.DeriveSecret("009a1f293253e41e", uint32(i))
		require.NoError(t, err)
		require.Equal(t, expectedSecrets[i], secret)
		require.Equal(t, expectedBlindingFactors[i], hex.EncodeToString(r))
	}

	_, _, err = keychain.DeriveSecret("I2yN+iRYfkzT", 0)
	require.Error(t, err)
}

func TestNostrKey(t *testing.T) {
	t.Parallel()

	// NIP-06 test vector.
	m := strings.Split("leader monkey parrot ring guide accident before fence cannon height naive bean", " ")
	seed, err := mnemonic.ToSeed(m)
	require.NoError(t, err)
	keychain, err := wallet.NewKeychain(seed)
	require.NoError(t, err)

	key, err := keychain.NostrKey(0)
	require.NoError(t, err)
	require.Equal(
		t,
		"7f7ff03d123792d6ac594bfa67bf6d0c0ab55b6b1fdb6249303fe861f1ccba9a",
		hex.EncodeToString(key.Serialize()),
	)
}
