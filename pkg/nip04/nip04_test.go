package nip04_test

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/pkg/nip04"
)

func TestEncryptDecrypt(t *testing.T) {
	alice, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	bob, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	aliceKey := nip04.SharedKey(alice, bob.PubKey())
	bobKey := nip04.SharedKey(bob, alice.PubKey())
	require.Equal(t, aliceKey, bobKey)

	for _, plaintext := range []string{"", "a", strings.Repeat("x", 16), "hello nostr"} {
		payload, err := nip04.Encrypt(plaintext, aliceKey)
		require.NoError(t, err)
		require.True(t, nip04.IsPayload(payload))

		decrypted, err := nip04.Decrypt(payload, bobKey)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	}
}

func TestDecryptInvalid(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	sharedKey := nip04.SharedKey(key, key.PubKey())

	payload, err := nip04.Encrypt("hello nostr", sharedKey)
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
		key     []byte
	}{
		{"missing_iv", strings.Split(payload, "?iv=")[0], sharedKey},
		{"bad_base64", "!!!?iv=AAAAAAAAAAAAAAAAAAAAAA==", sharedKey},
		{"short_iv", strings.Split(payload, "?iv=")[0] + "?iv=AAAA", sharedKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := nip04.Decrypt(tt.payload, tt.key)
			require.ErrorIs(t, err, nip04.ErrInvalidPayload)
		})
	}

	// A wrong key almost always breaks the padding, otherwise it yields
	// garbage.
	decrypted, err := nip04.Decrypt(payload, nip04.SharedKey(other, key.PubKey()))
	if err == nil {
		require.NotEqual(t, "hello nostr", decrypted)
	}
}
