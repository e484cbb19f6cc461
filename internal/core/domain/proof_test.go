package domain_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

func TestProofStore(t *testing.T) {
	t.Run("add and remove", func(t *testing.T) {
		t.Parallel()

		store, err := domain.NewProofStore()
		require.NoError(t, err)
		require.Zero(t, store.Balance())

		proofs := randomProofs(8, 64)
		for _, p := range proofs {
			err := store.Add(p)
			require.NoError(t, err)
		}
		require.Equal(t, proofs.Amount(), store.Balance())
		require.Equal(t, proofs, store.Unspent())

		require.True(t, store.Remove(proofs[3].Secret))
		require.False(t, store.Remove(proofs[3].Secret))
		require.Equal(t, proofs.Amount()-proofs[3].Amount, store.Balance())
		require.Len(t, store.Unspent(), 7)
		require.False(t, store.Has(proofs[3].Secret))
	})

	t.Run("duplicate proof", func(t *testing.T) {
		t.Parallel()

		proofs := randomProofs(3, 16)
		store, err := domain.NewProofStore(proofs...)
		require.NoError(t, err)
		balance := store.Balance()

		dup := proofs[1]
		dup.Amount = 1000
		err = store.Add(dup)
		require.ErrorIs(t, err, domain.ErrDuplicateProof)
		require.ErrorIs(t, err, domain.ErrInvalidInput)
		require.Equal(t, balance, store.Balance())
		require.Equal(t, proofs, store.Unspent())

		_, err = domain.NewProofStore(proofs[0], proofs[0])
		require.ErrorIs(t, err, domain.ErrDuplicateProof)
	})

	t.Run("balance invariant", func(t *testing.T) {
		t.Parallel()

		r := rand.New(rand.NewSource(42))
		store, err := domain.NewProofStore()
		require.NoError(t, err)

		pool := randomProofs(200, 128)
		for i := 0; i < 1000; i++ {
			p := pool[r.Intn(len(pool))]
			if r.Intn(2) == 0 {
				_ = store.Add(p)
			} else {
				store.Remove(p.Secret)
			}
			require.Equal(t, store.Unspent().Amount(), store.Balance())
			require.Equal(t, store.Len(), len(store.Unspent()))
		}
	})

	t.Run("unspent is a snapshot", func(t *testing.T) {
		t.Parallel()

		proofs := randomProofs(4, 8)
		store, err := domain.NewProofStore(proofs...)
		require.NoError(t, err)

		snapshot := store.Unspent()
		store.Remove(proofs[0].Secret)
		require.Len(t, snapshot, 4)
		require.Len(t, store.Unspent(), 3)
	})
}

func TestSplitAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount   uint64
		expected []uint64
	}{
		{0, []uint64{}},
		{1, []uint64{1}},
		{13, []uint64{1, 4, 8}},
		{400, []uint64{16, 128, 256}},
		{1000, []uint64{8, 32, 64, 128, 256, 512}},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, domain.SplitAmount(tt.amount))
	}
}

func randomProofs(n int, maxAmount int) domain.Proofs {
	proofs := make(domain.Proofs, 0, n)
	for i := 0; i < n; i++ {
		proofs = append(proofs, domain.Proof{
			KeysetID: "009a1f293253e41e",
			Amount:   uint64(rand.Intn(maxAmount) + 1),
			Secret:   fmt.Sprintf("secret-%d-%d", i, rand.Int63()),
			C:        "02698c4e2b5f9534cd0687d87513c759790cf829aa5739184a3e3735471fbda904",
		})
	}
	return proofs
}
