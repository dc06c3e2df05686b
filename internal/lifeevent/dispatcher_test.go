package lifeevent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifeline/internal/platform/logger"
	"lifeline/pkg/platform/sentinel"
	"lifeline/pkg/testutil"
)

func TestDispatch(t *testing.T) {
	ctx := testutil.Context(t)
	ev := LifeEvent{SourceEventID: "evt-1", Subject: "12345678901", Category: CategoryDeath}

	t.Run("routes to the registered handler", func(t *testing.T) {
		dispatcher := NewDispatcher(logger.NewNop())
		var handled []LifeEvent
		dispatcher.Register(CategoryDeath, HandlerFunc(func(_ context.Context, ev LifeEvent) error {
			handled = append(handled, ev)
			return nil
		}))

		require.NoError(t, dispatcher.Dispatch(ctx, ev))
		require.Len(t, handled, 1)
		assert.Equal(t, "evt-1", handled[0].SourceEventID)
	})

	t.Run("category without handler is a no-op", func(t *testing.T) {
		dispatcher := NewDispatcher(logger.NewNop())
		other := ev
		other.Category = CategoryGuardianship
		assert.NoError(t, dispatcher.Dispatch(ctx, other))
	})

	t.Run("business errors are swallowed", func(t *testing.T) {
		dispatcher := NewDispatcher(logger.NewNop())
		dispatcher.Register(CategoryDeath, HandlerFunc(func(context.Context, LifeEvent) error {
			return errors.New("affected party lookup produced garbage")
		}))

		assert.NoError(t, dispatcher.Dispatch(ctx, ev))
	})

	t.Run("transport errors propagate for redelivery", func(t *testing.T) {
		dispatcher := NewDispatcher(logger.NewNop())
		dispatcher.Register(CategoryDeath, HandlerFunc(func(context.Context, LifeEvent) error {
			return fmt.Errorf("re-fetch person: %w", sentinel.ErrUnavailable)
		}))

		err := dispatcher.Dispatch(ctx, ev)
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("handler panic is contained", func(t *testing.T) {
		dispatcher := NewDispatcher(logger.NewNop())
		dispatcher.Register(CategoryDeath, HandlerFunc(func(context.Context, LifeEvent) error {
			panic("nil map write")
		}))

		assert.NoError(t, dispatcher.Dispatch(ctx, ev))
	})
}
