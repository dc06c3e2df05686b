package lifeevent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifeline/internal/platform/logger"
	"lifeline/internal/registry"
	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
	"lifeline/pkg/testutil"
)

// failingIdentityClient simulates an unreachable identifier service.
type failingIdentityClient struct{}

func (failingIdentityClient) Resolve(context.Context, string) (registry.ResolvedIdentifier, error) {
	return registry.ResolvedIdentifier{}, sentinel.ErrUnavailable
}

func TestResolve(t *testing.T) {
	ctx := testutil.Context(t)

	t.Run("permanent identifier resolves to person id", func(t *testing.T) {
		resolver := NewResolver(registry.MockIdentityClient{
			Resolutions: map[string]registry.ResolvedIdentifier{
				"evt-ident-1": {Ident: "12345678901", Kind: registry.IdentPermanent},
			},
		}, logger.NewNop())

		id, ok, err := resolver.Resolve(ctx, "evt-ident-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain.PersonID("12345678901"), id)
	})

	t.Run("alternate identifier drops the event", func(t *testing.T) {
		resolver := NewResolver(registry.MockIdentityClient{
			Resolutions: map[string]registry.ResolvedIdentifier{
				"d-number": {Ident: "41015712345", Kind: registry.IdentAlternate},
			},
		}, logger.NewNop())

		_, ok, err := resolver.Resolve(ctx, "d-number")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed permanent identifier drops the event", func(t *testing.T) {
		resolver := NewResolver(registry.MockIdentityClient{
			Resolutions: map[string]registry.ResolvedIdentifier{
				"bad": {Ident: "not-a-number", Kind: registry.IdentPermanent},
			},
		}, logger.NewNop())

		_, ok, err := resolver.Resolve(ctx, "bad")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("transport failure surfaces as error", func(t *testing.T) {
		resolver := NewResolver(failingIdentityClient{}, logger.NewNop())

		_, _, err := resolver.Resolve(ctx, "anything")
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}
