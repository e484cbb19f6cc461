package db_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	dbbadger "github.com/vulpemventures/cashew/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/cashew/internal/infrastructure/storage/db/inmemory"
	postgresdb "github.com/vulpemventures/cashew/internal/infrastructure/storage/db/postgres"
)

var (
	ctx                   = context.Background()
	errSomethingWentWrong = fmt.Errorf("something went wrong")
	mintURL               = "https://mint.example.com"
	otherMintURL          = "https://other.example.com"
	walletKey             = domain.WalletKey{MintURL: mintURL, Unit: "sat"}
	usdWalletKey          = domain.WalletKey{MintURL: mintURL, Unit: "usd"}
)

// newRepoManagers returns a fresh repo manager for every supported backend.
// Postgres is included only if CASHEW_TEST_PG_HOST is set.
func newRepoManagers(t *testing.T) map[string]ports.RepoManager {
	t.Helper()

	badgerRepoManager, err := dbbadger.NewRepoManager("", nil)
	require.NoError(t, err)

	repoManagers := map[string]ports.RepoManager{
		"inmemory": inmemory.NewRepoManager(),
		"badger":   badgerRepoManager,
	}

	if host := os.Getenv("CASHEW_TEST_PG_HOST"); host != "" {
		pgRepoManager, err := postgresdb.NewRepoManager(postgresdb.DbConfig{
			DbUser:             "root",
			DbPassword:         "secret",
			DbHost:             host,
			DbPort:             5432,
			DbName:             "cashew-db-test",
			MigrationSourceURL: "file://../postgres/migration",
		})
		require.NoError(t, err)
		pgRepoManager.Reset()
		repoManagers["postgres"] = pgRepoManager
	}

	return repoManagers
}

func waitForEvent[T any](t *testing.T, ch chan T) T {
	t.Helper()

	select {
	case event := <-ch:
		return event
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timeout waiting for event")
	}
	var zero T
	return zero
}

// domain.IMnemonicCypher producing a distinct ciphertext per password.
type mockMnemonicCypher struct {
	mock.Mock
}

func newMockedMnemonicCypher(plaintext string, passwords ...string) *mockMnemonicCypher {
	m := &mockMnemonicCypher{}
	for _, p := range passwords {
		ciphertext := append([]byte(p), randomBytes(32)...)
		m.On("Encrypt", mock.Anything, []byte(p)).Return(ciphertext, nil)
		m.On("Decrypt", ciphertext, []byte(p)).Return([]byte(plaintext), nil)
	}
	m.On("Decrypt", mock.Anything, mock.Anything).Return(nil, errSomethingWentWrong)
	return m
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

func randomProofs(keysetID string, amounts ...uint64) domain.Proofs {
	proofs := make(domain.Proofs, 0, len(amounts))
	for _, amount := range amounts {
		proofs = append(proofs, domain.Proof{
			KeysetID: keysetID,
			Amount:   amount,
			Secret:   randomHex(32),
			C:        "02" + randomHex(32),
		})
	}
	return proofs
}

func randomHex(len int) string {
	return hex.EncodeToString(randomBytes(len))
}

func randomBytes(len int) []byte {
	b := make([]byte, len)
	// nolint
	rand.Read(b)
	return b
}
