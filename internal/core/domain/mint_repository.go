package domain

import (
	"context"
)

const (
	MintAdded MintEventType = iota
	MintUpdated
	MintRemoved
)

var (
	mintTypeString = map[MintEventType]string{
		MintAdded:   "MintAdded",
		MintUpdated: "MintUpdated",
		MintRemoved: "MintRemoved",
	}
)

type MintEventType int

func (t MintEventType) String() string {
	return mintTypeString[t]
}

// MintEvent holds info about an event occured within the repository.
type MintEvent struct {
	EventType MintEventType
	MintURL   string
}

// MintRepository is the abstraction for any kind of database intended to
// persist MintRecords. It's the source of truth of the mint registry.
type MintRepository interface {
	// AddMint stores a new MintRecord, failing with ErrMintAlreadyExists if
	// the url is already known.
	// Generates a MintAdded event if successful.
	AddMint(ctx context.Context, mint *MintRecord) error
	// GetMint returns the MintRecord with the given url or ErrMintNotFound.
	GetMint(ctx context.Context, url string) (*MintRecord, error)
	// GetAllMints returns all the stored MintRecords.
	GetAllMints(ctx context.Context) ([]*MintRecord, error)
	// UpdateMint allows to commit multiple changes to the same MintRecord in
	// a transactional way.
	// Generates a MintUpdated event if successful.
	UpdateMint(
		ctx context.Context, url string,
		updateFn func(m *MintRecord) (*MintRecord, error),
	) error
	// DeleteMint removes the MintRecord with the given url.
	// Generates a MintRemoved event if successful.
	DeleteMint(ctx context.Context, url string) error
	// GetEventChannel returns the channel of MintEvents.
	GetEventChannel() chan MintEvent
}
