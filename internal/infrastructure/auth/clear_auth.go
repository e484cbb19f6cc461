// Package auth provides the credentials sent to auth gated mints.
package auth

import (
	"context"
	"sync"

	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/core/ports"
)

// ClearAuthProvider serves static clear auth tokens (NUT-21).
type ClearAuthProvider struct {
	lock         *sync.RWMutex
	defaultToken string
	tokens       map[string]string
}

// NewClearAuthProvider returns a provider of clear auth tokens.
// Mints without a specific token get the default one, if any.
func NewClearAuthProvider(defaultToken string) *ClearAuthProvider {
	return &ClearAuthProvider{
		lock:         &sync.RWMutex{},
		defaultToken: defaultToken,
		tokens:       make(map[string]string),
	}
}

// SetToken sets the token for the given mint.
func (p *ClearAuthProvider) SetToken(mintURL, token string) error {
	url, err := domain.NormalizeMintURL(mintURL)
	if err != nil {
		return err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if token == "" {
		delete(p.tokens, url)
		return nil
	}
	p.tokens[url] = token
	return nil
}

func (p *ClearAuthProvider) Token(_ context.Context, mintURL string) (string, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if token, ok := p.tokens[mintURL]; ok {
		return token, nil
	}
	return p.defaultToken, nil
}

var _ ports.AuthProvider = (*ClearAuthProvider)(nil)
