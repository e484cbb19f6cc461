package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/infrastructure/auth"
)

func TestClearAuthProvider(t *testing.T) {
	ctx := context.Background()
	provider := auth.NewClearAuthProvider("default")

	token, err := provider.Token(ctx, "https://mint.example.com")
	require.NoError(t, err)
	require.Equal(t, "default", token)

	require.NoError(t, provider.SetToken("https://MINT.example.com/", "specific"))
	token, err = provider.Token(ctx, "https://mint.example.com")
	require.NoError(t, err)
	require.Equal(t, "specific", token)

	require.NoError(t, provider.SetToken("https://mint.example.com", ""))
	token, err = provider.Token(ctx, "https://mint.example.com")
	require.NoError(t, err)
	require.Equal(t, "default", token)

	err = provider.SetToken("mint", "x")
	require.ErrorIs(t, err, domain.ErrInvalidMintURL)
}
