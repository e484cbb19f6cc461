package ports

import (
	"context"

	"github.com/vulpemventures/cashew/pkg/nostr"
)

// Relay is the abstraction for any kind of service intended to store and
// return nostr events.
type Relay interface {
	// Publish stores the signed event.
	Publish(ctx context.Context, event *nostr.Event) error
	// Query returns all the stored events matching the filter.
	Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	// Close releases the connections of the relay.
	Close()
}
