// Package inmemoryrelay implements an in-process nostr relay.
package inmemoryrelay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/pkg/nostr"
)

var ErrRelayClosed = fmt.Errorf("relay is closed")

// Relay stores events in memory. Replaceable events (NIP-01) only keep the
// latest version for each author.
type Relay struct {
	lock   *sync.RWMutex
	events map[string]*nostr.Event
	closed bool
}

func NewRelay() *Relay {
	return &Relay{
		lock:   &sync.RWMutex{},
		events: make(map[string]*nostr.Event),
	}
}

func (r *Relay) Publish(_ context.Context, event *nostr.Event) error {
	if err := event.Verify(); err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return ErrRelayClosed
	}
	if _, ok := r.events[event.ID]; ok {
		return nil
	}
	if isReplaceable(event.Kind) {
		for id, e := range r.events {
			if e.Kind != event.Kind || e.PubKey != event.PubKey {
				continue
			}
			if e.CreatedAt > event.CreatedAt ||
				(e.CreatedAt == event.CreatedAt && e.ID < event.ID) {
				return nil
			}
			delete(r.events, id)
		}
	}

	ev := *event
	r.events[ev.ID] = &ev
	return nil
}

// Query returns the matching events, newest first as relays do.
func (r *Relay) Query(_ context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.closed {
		return nil, ErrRelayClosed
	}

	events := make([]*nostr.Event, 0)
	for _, e := range r.events {
		if filter.Matches(e) {
			ev := *e
			events = append(events, &ev)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

func (r *Relay) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.closed = true
}

func isReplaceable(kind int) bool {
	return kind == 0 || kind == 3 || (kind >= 10000 && kind < 20000)
}

var _ ports.Relay = (*Relay)(nil)
