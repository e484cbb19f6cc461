package domain

import (
	"context"
)

const (
	VaultCreated VaultEventType = iota
	VaultUpdated
)

var vaultTypeString = map[VaultEventType]string{
	VaultCreated: "VaultCreated",
	VaultUpdated: "VaultUpdated",
}

type VaultEventType int

func (t VaultEventType) String() string {
	return vaultTypeString[t]
}

type VaultEvent struct {
	EventType VaultEventType
}

// SeedVaultRepository persists the one and only seed vault.
type SeedVaultRepository interface {
	// CreateVault stores the vault unless one already exists.
	// Generates a VaultCreated event if successful.
	CreateVault(ctx context.Context, vault *SeedVault) error
	GetVault(ctx context.Context) (*SeedVault, error)
	// UpdateVault applies updateFn to the stored vault in a transactional way.
	// Generates a VaultUpdated event if successful.
	UpdateVault(
		ctx context.Context, updateFn func(v *SeedVault) (*SeedVault, error),
	) error
	GetEventChannel() chan VaultEvent
}
