package transport_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/infrastructure/transport"
)

const (
	clearnetURL = "https://mint.example.com"
	onionURL    = "http://mintabcdefghijklmnop.onion"
)

func TestTransport(t *testing.T) {
	t.Run("clearnet only", func(t *testing.T) {
		tr, err := transport.NewTransport("", false)
		require.NoError(t, err)

		client, err := tr.Client(clearnetURL)
		require.NoError(t, err)
		require.NotNil(t, client)

		client, err = tr.Client(onionURL)
		require.ErrorIs(t, err, transport.ErrTorNotConfigured)
		require.ErrorIs(t, err, domain.ErrNetworkFailure)
		require.Nil(t, client)
	})

	t.Run("with tor", func(t *testing.T) {
		tr, err := transport.NewTransport("127.0.0.1:9050", false)
		require.NoError(t, err)

		clearnet, err := tr.Client(clearnetURL)
		require.NoError(t, err)
		tor, err := tr.Client(onionURL)
		require.NoError(t, err)
		require.NotSame(t, clearnet, tor)

		httpTransport, ok := tor.Transport.(*http.Transport)
		require.True(t, ok)
		require.NotNil(t, httpTransport.DialContext)
		require.Nil(t, httpTransport.Proxy)
	})

	t.Run("tor only", func(t *testing.T) {
		_, err := transport.NewTransport("", true)
		require.Error(t, err)

		tr, err := transport.NewTransport("127.0.0.1:9050", true)
		require.NoError(t, err)
		clearnet, err := tr.Client(clearnetURL)
		require.NoError(t, err)
		tor, err := tr.Client(onionURL)
		require.NoError(t, err)
		require.Same(t, clearnet, tor)
	})
}
