package wallet

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	path "github.com/vulpemventures/cashew/pkg/wallet/derivation-path"
)

// Keychain derives every secret of the wallet from the working seed.
type Keychain struct {
	master *hdkeychain.ExtendedKey
}

// NewKeychain returns the keychain of the given seed, after canonicalizing
// it with WorkingSeed.
func NewKeychain(seed []byte) (*Keychain, error) {
	workingSeed, err := WorkingSeed(seed)
	if err != nil {
		return nil, err
	}
	master, err := hdkeychain.NewMaster(workingSeed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	return &Keychain{master}, nil
}

// DeriveKey returns the private key at the given path.
func (k *Keychain) DeriveKey(derivationPath path.DerivationPath) (*btcec.PrivateKey, error) {
	node := k.master
	for _, step := range derivationPath {
		var err error
		node, err = node.Derive(step)
		if err != nil {
			return nil, err
		}
	}
	return node.ECPrivKey()
}

// DeriveSecret returns the deterministic secret, in hex format, and blinding
// factor of the counter-th output of the given keyset.
func (k *Keychain) DeriveSecret(keysetID string, counter uint32) (string, []byte, error) {
	secretPath, err := path.Nut13Path(keysetID, counter, path.SecretBranch)
	if err != nil {
		return "", nil, err
	}
	blindingPath, err := path.Nut13Path(keysetID, counter, path.BlindingBranch)
	if err != nil {
		return "", nil, err
	}

	secretKey, err := k.DeriveKey(secretPath)
	if err != nil {
		return "", nil, err
	}
	blindingKey, err := k.DeriveKey(blindingPath)
	if err != nil {
		return "", nil, err
	}
	return hex.EncodeToString(secretKey.Serialize()), blindingKey.Serialize(), nil
}

// NostrKey returns the NIP-06 key of the given account.
func (k *Keychain) NostrKey(account uint32) (*btcec.PrivateKey, error) {
	return k.DeriveKey(path.Nip06Path(account))
}
