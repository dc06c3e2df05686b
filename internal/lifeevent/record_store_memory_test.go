package lifeevent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
)

func guardianshipRecord(sourceEventID string) Record {
	return Record{
		SourceEventID: sourceEventID,
		Subject:       domain.PersonID("01011012345"),
		Category:      CategoryGuardianship,
		ChangeType:    ChangeCreated,
		Status:        RecordReceived,
		ReceivedAt:    time.Date(2026, 6, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestMemoryRecordStore_Insert(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()

	t.Run("first delivery is stored", func(t *testing.T) {
		created, err := store.Insert(ctx, guardianshipRecord("evt-1"))
		require.NoError(t, err)
		assert.True(t, created)

		rec, err := store.GetBySourceEvent(ctx, "evt-1")
		require.NoError(t, err)
		assert.Equal(t, CategoryGuardianship, rec.Category)
		assert.Equal(t, RecordReceived, rec.Status)
		assert.NotZero(t, rec.ID)
	})

	t.Run("redelivery of the same event id is a no-op", func(t *testing.T) {
		created, err := store.Insert(ctx, guardianshipRecord("evt-1"))
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("a different event id gets its own row", func(t *testing.T) {
		created, err := store.Insert(ctx, guardianshipRecord("evt-2"))
		require.NoError(t, err)
		assert.True(t, created)
	})
}

func TestMemoryRecordStore_MarkOutcome(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 21, 8, 0, 0, 0, time.UTC)
	store := NewMemoryRecordStore(WithMemoryRecordClock(func() time.Time { return now }))

	_, err := store.Insert(ctx, guardianshipRecord("evt-1"))
	require.NoError(t, err)
	_, err = store.Insert(ctx, guardianshipRecord("evt-2"))
	require.NoError(t, err)

	t.Run("processed marker is terminal and timestamped", func(t *testing.T) {
		require.NoError(t, store.MarkOutcome(ctx, "evt-1", RecordProcessed))

		rec, err := store.GetBySourceEvent(ctx, "evt-1")
		require.NoError(t, err)
		assert.Equal(t, RecordProcessed, rec.Status)
		require.NotNil(t, rec.ProcessedAt)
		assert.Equal(t, now, *rec.ProcessedAt)
	})

	t.Run("a terminal record never changes again", func(t *testing.T) {
		err := store.MarkOutcome(ctx, "evt-1", RecordDiscarded)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("discarded is the other terminal marker", func(t *testing.T) {
		require.NoError(t, store.MarkOutcome(ctx, "evt-2", RecordDiscarded))

		rec, err := store.GetBySourceEvent(ctx, "evt-2")
		require.NoError(t, err)
		assert.Equal(t, RecordDiscarded, rec.Status)
	})

	t.Run("unknown event id", func(t *testing.T) {
		err := store.MarkOutcome(ctx, "evt-missing", RecordProcessed)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestMemoryRecordStore_GetBySourceEvent_Unknown(t *testing.T) {
	_, err := NewMemoryRecordStore().GetBySourceEvent(context.Background(), "evt-missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
