// Package nostrrelay implements the ports.Relay over a pool of nostr relays
// reached through websockets.
package nostrrelay

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/pkg/nostr"
	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 10 * time.Second

var ErrPoolClosed = fmt.Errorf("relay pool is closed")

// Metrics counts the operations made on relays, by outcome.
type Metrics struct {
	ops *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashew",
			Subsystem: "relay",
			Name:      "operations_total",
			Help:      "Number of publish and query operations made on relays.",
		}, []string{"relay", "op", "outcome"}),
	}
	if err := reg.Register(m.ops); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(relay, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ops.WithLabelValues(relay, op, outcome).Inc()
}

type pool struct {
	urls    []string
	timeout time.Duration
	metrics *Metrics

	lock   *sync.Mutex
	conns  map[string]*relayConn
	closed bool

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

// NewPool returns a relay that publishes to and queries all the given
// relays. Connections are established lazily and re-established when
// dropped. metrics is optional.
func NewPool(
	urls []string, timeout time.Duration, metrics *Metrics,
) (ports.Relay, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("missing relay urls")
	}
	relays := make([]string, 0, len(urls))
	seen := make(map[string]struct{})
	for _, u := range urls {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
			return nil, fmt.Errorf("invalid relay url %q", u)
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		relays = append(relays, u)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("relay: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("relay: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	return &pool{
		urls:    relays,
		timeout: timeout,
		metrics: metrics,
		lock:    &sync.Mutex{},
		conns:   make(map[string]*relayConn),
		log:     logFn,
		warn:    warnFn,
	}, nil
}

// Publish sends the event to every relay and succeeds if at least one of
// them accepted it.
func (p *pool) Publish(ctx context.Context, event *nostr.Event) error {
	if err := event.Verify(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}

	errs := p.forEach(ctx, "publish", func(ctx context.Context, c *relayConn) error {
		return c.publish(ctx, event)
	})
	if len(errs) == len(p.urls) {
		return domain.NetworkError(fmt.Errorf(
			"event rejected by all relays: %s", strings.Join(errs, "; "),
		))
	}
	p.log("published event %s (kind %d)", event.ID, event.Kind)
	return nil
}

// Query returns the union of the valid events returned by the relays,
// newest first. It fails only if every relay failed.
func (p *pool) Query(
	ctx context.Context, filter nostr.Filter,
) ([]*nostr.Event, error) {
	lock := &sync.Mutex{}
	events := make(map[string]*nostr.Event)

	errs := p.forEach(ctx, "query", func(ctx context.Context, c *relayConn) error {
		result, err := c.query(ctx, filter)
		if err != nil {
			return err
		}
		lock.Lock()
		defer lock.Unlock()
		for _, e := range result {
			if _, ok := events[e.ID]; ok {
				continue
			}
			if err := e.Verify(); err != nil || !filter.Matches(e) {
				p.log("dropping invalid event %s from %s", e.ID, c.url)
				continue
			}
			events[e.ID] = e
		}
		return nil
	})
	if len(errs) == len(p.urls) {
		return nil, domain.NetworkError(fmt.Errorf(
			"all relays failed: %s", strings.Join(errs, "; "),
		))
	}

	list := make([]*nostr.Event, 0, len(events))
	for _, e := range events {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt > list[j].CreatedAt
		}
		return list[i].ID < list[j].ID
	})
	if filter.Limit > 0 && len(list) > filter.Limit {
		list = list[:filter.Limit]
	}
	return list, nil
}

func (p *pool) Close() {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.closed = true
	for relayURL, c := range p.conns {
		c.close()
		delete(p.conns, relayURL)
	}
}

// forEach runs fn against every relay in parallel and returns the errors
// of the failing ones.
func (p *pool) forEach(
	ctx context.Context, op string,
	fn func(ctx context.Context, c *relayConn) error,
) []string {
	lock := &sync.Mutex{}
	errs := make([]string, 0)

	g := &errgroup.Group{}
	for _, u := range p.urls {
		relayURL := u
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			c, err := p.conn(ctx, relayURL)
			if err == nil {
				err = fn(ctx, c)
			}
			p.metrics.observe(relayURL, op, err)
			if err != nil {
				p.warn(err, "%s on %s failed", op, relayURL)
				lock.Lock()
				errs = append(errs, fmt.Sprintf("%s: %s", relayURL, err))
				lock.Unlock()
			}
			return nil
		})
	}
	// nolint
	g.Wait()
	return errs
}

func (p *pool) conn(ctx context.Context, relayURL string) (*relayConn, error) {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil, ErrPoolClosed
	}
	if c, ok := p.conns[relayURL]; ok && c.isAlive() {
		p.lock.Unlock()
		return c, nil
	}
	p.lock.Unlock()

	c, err := dial(ctx, relayURL, p.log, p.warn)
	if err != nil {
		return nil, err
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		c.close()
		return nil, ErrPoolClosed
	}
	if existing, ok := p.conns[relayURL]; ok && existing.isAlive() {
		c.close()
		return existing, nil
	}
	p.conns[relayURL] = c
	p.log("connected to %s", relayURL)
	return c, nil
}
