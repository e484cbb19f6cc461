package ports

import (
	"context"
	"net/http"
)

// Transport selects the network path used to reach a mint.
type Transport interface {
	// Client returns the http client to use for the given mint url.
	Client(mintURL string) (*http.Client, error)
}

// AuthProvider supplies the credentials of auth gated mints.
type AuthProvider interface {
	// Token returns the clear auth token for the mint, or an empty string if
	// none is configured.
	Token(ctx context.Context, mintURL string) (string, error)
}
