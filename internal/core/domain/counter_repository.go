package domain

import "context"

// CounterRepository persists, per keyset, the index of the next deterministic
// secret to derive.
type CounterRepository interface {
	// ReserveCounters atomically increments the counter of the keyset by n
	// and returns its previous value. Reserved indexes are never handed out
	// twice, even if the caller fails to use them.
	ReserveCounters(ctx context.Context, keysetID string, n uint32) (uint32, error)
	// GetCounter returns the current counter of the keyset.
	GetCounter(ctx context.Context, keysetID string) (uint32, error)
}
