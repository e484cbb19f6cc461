package nip44_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/pkg/nip44"
)

func privKey(t *testing.T, str string) *btcec.PrivateKey {
	buf, err := hex.DecodeString(str)
	require.NoError(t, err)
	key, _ := btcec.PrivKeyFromBytes(buf)
	return key
}

func TestConversationKey(t *testing.T) {
	key1 := privKey(t, strings.Repeat("0", 63)+"1")
	key2 := privKey(t, strings.Repeat("0", 63)+"2")

	ck := nip44.ConversationKey(key1, key2.PubKey())
	require.Equal(
		t, "c41c775356fd92eadc63ff5a0dc1da211b268cbea22316767095b2871ea1412d",
		hex.EncodeToString(ck),
	)
	require.Equal(t, ck, nip44.ConversationKey(key2, key1.PubKey()))
}

func TestEncryptWithNonce(t *testing.T) {
	ck, _ := hex.DecodeString(
		"c41c775356fd92eadc63ff5a0dc1da211b268cbea22316767095b2871ea1412d",
	)
	nonce, _ := hex.DecodeString(strings.Repeat("0", 63) + "1")
	expected := "AgAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABee0G5VSK0/9YypIObAtDKfYEAjD35uVkHyB0F4DwrcNaCXlCWZKaArsGrY6M9wnuTMxWfp1RTN9Xga8no+kF5Vsb"

	payload, err := nip44.EncryptWithNonce("a", ck, nonce)
	require.NoError(t, err)
	require.Equal(t, expected, payload)

	plaintext, err := nip44.Decrypt(payload, ck)
	require.NoError(t, err)
	require.Equal(t, "a", plaintext)
}

func TestEncryptDecrypt(t *testing.T) {
	alice, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	bob, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	eve, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	ck := nip44.ConversationKey(alice, bob.PubKey())
	messages := []string{
		"x",
		`{"mint":"https://mint.example.com","proofs":[],"del":[]}`,
		strings.Repeat("ecash", 1000),
	}
	for _, msg := range messages {
		payload, err := nip44.Encrypt(msg, ck)
		require.NoError(t, err)

		plaintext, err := nip44.Decrypt(payload, nip44.ConversationKey(bob, alice.PubKey()))
		require.NoError(t, err)
		require.Equal(t, msg, plaintext)

		_, err = nip44.Decrypt(payload, nip44.ConversationKey(eve, alice.PubKey()))
		require.ErrorIs(t, err, nip44.ErrInvalidMac)
	}
}

func TestInvalidInputs(t *testing.T) {
	ck := make([]byte, 32)

	_, err := nip44.Encrypt("", ck)
	require.ErrorIs(t, err, nip44.ErrInvalidPlaintextSize)

	_, err = nip44.Encrypt(strings.Repeat("a", 65536), ck)
	require.ErrorIs(t, err, nip44.ErrInvalidPlaintextSize)

	_, err = nip44.EncryptWithNonce("a", ck, []byte{1})
	require.ErrorIs(t, err, nip44.ErrInvalidNonce)

	_, err = nip44.Decrypt("#invalid", ck)
	require.ErrorIs(t, err, nip44.ErrUnsupportedVersion)

	_, err = nip44.Decrypt("AgAA", ck)
	require.ErrorIs(t, err, nip44.ErrInvalidPayload)

	payload, err := nip44.Encrypt("hello", ck)
	require.NoError(t, err)
	tampered := []byte(payload)
	tampered[50] ^= 1
	_, err = nip44.Decrypt(string(tampered), ck)
	require.Error(t, err)
}

func TestCalcPaddedLen(t *testing.T) {
	tests := []struct {
		size     int
		expected int
	}{
		{1, 32}, {16, 32}, {32, 32}, {33, 64}, {37, 64}, {45, 64}, {49, 64},
		{64, 64}, {65, 96}, {100, 128}, {111, 128}, {200, 224}, {250, 256},
		{320, 320}, {383, 384}, {384, 384}, {400, 448}, {500, 512}, {515, 640},
		{700, 768}, {800, 896}, {900, 1024}, {1020, 1024}, {65536, 65536},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, nip44.CalcPaddedLen(tt.size), tt.size)
	}
}
