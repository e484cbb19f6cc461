package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// WalletKey identifies a wallet instance, ie. the pair of a mint and an
// accounting unit.
type WalletKey struct {
	MintURL string
	Unit    string
}

func (k WalletKey) String() string {
	return fmt.Sprintf("%s|%s", k.MintURL, k.Unit)
}

// NormalizeMintURL returns the canonical form of a mint url: http(s) scheme,
// lower-cased host, no trailing slash, no query nor fragment.
// Hidden service addresses are always reached over plain http.
func NormalizeMintURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrInvalidMintURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidMintURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidMintURL, u.Scheme)
	}
	if u.Host == "" || u.User != nil {
		return "", ErrInvalidMintURL
	}

	host := strings.ToLower(u.Host)
	if IsOnionHost(host) {
		scheme = "http"
	}

	normalized := &url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   strings.TrimRight(u.Path, "/"),
	}
	return normalized.String(), nil
}

// IsOnionHost returns whether host, with or without port, is a Tor hidden
// service address.
func IsOnionHost(host string) bool {
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	return strings.HasSuffix(strings.ToLower(host), ".onion")
}
