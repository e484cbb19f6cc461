// Package transport selects the network path used to reach mints: clearnet
// mints are dialed directly, hidden service mints through a Tor SOCKS5 proxy.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"golang.org/x/net/proxy"
)

var ErrTorNotConfigured = fmt.Errorf(
	"%w: tor proxy is required to reach hidden service mints",
	domain.ErrNetworkFailure,
)

type transport struct {
	clearnet *http.Client
	tor      *http.Client
	torOnly  bool
}

// NewTransport returns a transport reaching mints directly. If torProxy is
// given, hidden service mints are reached through it and, when torOnly is
// set, clearnet mints too.
func NewTransport(torProxy string, torOnly bool) (ports.Transport, error) {
	t := &transport{
		clearnet: &http.Client{Transport: newHTTPTransport(nil)},
	}
	if torProxy == "" {
		if torOnly {
			return nil, fmt.Errorf("tor only mode requires a tor proxy address")
		}
		return t, nil
	}

	dialer, err := proxy.SOCKS5("tcp", torProxy, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("invalid tor proxy %s: %s", torProxy, err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("tor proxy dialer does not support contexts")
	}
	t.tor = &http.Client{Transport: newHTTPTransport(contextDialer.DialContext)}
	t.torOnly = torOnly

	log.Debugf("transport: using tor proxy %s (tor only: %t)", torProxy, torOnly)
	return t, nil
}

func (t *transport) Client(mintURL string) (*http.Client, error) {
	u, err := url.Parse(mintURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidMintURL, err)
	}
	if domain.IsOnionHost(u.Host) {
		if t.tor == nil {
			return nil, ErrTorNotConfigured
		}
		return t.tor, nil
	}
	if t.torOnly {
		return t.tor, nil
	}
	return t.clearnet, nil
}

func newHTTPTransport(
	dial func(ctx context.Context, network, addr string) (net.Conn, error),
) *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 4
	tr.IdleConnTimeout = 90 * time.Second
	if dial != nil {
		tr.DialContext = dial
		tr.Proxy = nil
	}
	return tr
}
