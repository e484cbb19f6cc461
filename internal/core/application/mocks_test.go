package application_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/application"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/internal/infrastructure/mint/simulator"
	"github.com/vulpemventures/cashew/internal/infrastructure/storage/db/inmemory"
)

var (
	ctx         = context.Background()
	password    = "password"
	newPassword = "newpassword"
	mnemonic    = strings.Split(
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		" ",
	)

	aliceSeed = h2b("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	bobSeed   = h2b("1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100")
)

const (
	mintA = "https://mint-a.cashew.test"
	mintB = "https://mint-b.cashew.test"
)

// domain.IMnemonicCypher
type mockMnemonicCypher struct {
	mock.Mock
}

func (m *mockMnemonicCypher) Encrypt(mnemonic, password []byte) ([]byte, error) {
	args := m.Called(mnemonic, password)
	var res []byte
	if a := args.Get(0); a != nil {
		res = a.([]byte)
	}
	return res, args.Error(1)
}

func (m *mockMnemonicCypher) Decrypt(encryptedMnemonic, password []byte) ([]byte, error) {
	args := m.Called(encryptedMnemonic, password)
	var res []byte
	if a := args.Get(0); a != nil {
		res = a.([]byte)
	}
	return res, args.Error(1)
}

func newMockedMnemonicCypher() *mockMnemonicCypher {
	m := &mockMnemonicCypher{}
	plaintext := []byte(strings.Join(mnemonic, " "))
	for _, p := range []string{password, newPassword} {
		ciphertext := []byte("encrypted with " + p)
		m.On("Encrypt", mock.Anything, []byte(p)).Return(ciphertext, nil)
		m.On("Decrypt", ciphertext, []byte(p)).Return(plaintext, nil)
	}
	m.On("Decrypt", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("invalid password"))
	return m
}

// domain.MintRepository whose reads never find the record, as if writes
// were silently lost.
type lossyMintRepository struct {
	domain.MintRepository
}

func (r lossyMintRepository) GetMint(context.Context, string) (*domain.MintRecord, error) {
	return nil, domain.ErrMintNotFound
}

// ports.RepoManager
type lossyRepoManager struct {
	ports.RepoManager
}

func (rm lossyRepoManager) MintRepository() domain.MintRepository {
	return lossyMintRepository{rm.RepoManager.MintRepository()}
}

type testWallet struct {
	repoManager ports.RepoManager
	registry    *application.MintRegistry
	quotes      *application.QuoteTracker
	wallet      *application.MultiMintWallet
}

func newTestWallet(
	t *testing.T, network *simulator.Network, seed []byte,
) *testWallet {
	return newTestWalletWithRepoManager(t, network, inmemory.NewRepoManager(), seed)
}

func newTestWalletWithRepoManager(
	t *testing.T, network *simulator.Network, repoManager ports.RepoManager,
	seed []byte,
) *testWallet {
	registry := application.NewMintRegistry(repoManager, network, nil, "")
	quotes := application.NewQuoteTracker(repoManager, registry, 0)
	w := application.NewMultiMintWallet(repoManager, registry, quotes)
	if seed != nil {
		require.NoError(t, w.Init(ctx, seed))
	}
	return &testWallet{repoManager, registry, quotes, w}
}

func newNetwork(t *testing.T, configs map[string]simulator.MintConfig) *simulator.Network {
	network := simulator.NewNetwork()
	for url, cfg := range configs {
		_, err := network.AddMint(url, cfg)
		require.NoError(t, err)
	}
	return network
}

func getMint(t *testing.T, network *simulator.Network, url string) *simulator.Mint {
	m, ok := network.Mint(url)
	require.True(t, ok)
	return m
}

// fund adds the given amount to the sat wallet of the mint through a paid
// mint quote.
func fund(
	t *testing.T, network *simulator.Network, w *application.MultiMintWallet,
	url string, amount uint64,
) {
	quote, err := w.CreateMintQuote(ctx, url, amount)
	require.NoError(t, err)
	require.NoError(t, getMint(t, network, url).PayMintQuote(quote.ID))

	minted, err := w.RedeemMintQuote(ctx, quote.ID)
	require.NoError(t, err)
	require.Equal(t, amount, minted)
}

func satKey(url string) domain.WalletKey {
	return domain.WalletKey{MintURL: url, Unit: domain.DefaultUnit}
}

func h2b(str string) []byte {
	buf, _ := hex.DecodeString(str)
	return buf
}
