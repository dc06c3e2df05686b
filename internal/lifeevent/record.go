package lifeevent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lifeline/pkg/domain"
)

// RecordStatus marks how far a persisted life event got. RECEIVED rows are
// still in flight; PROCESSED and DISCARDED are terminal.
type RecordStatus string

const (
	RecordReceived  RecordStatus = "RECEIVED"
	RecordProcessed RecordStatus = "PROCESSED"
	RecordDiscarded RecordStatus = "DISCARDED"
)

// Terminal reports whether the record may still change.
func (s RecordStatus) Terminal() bool {
	return s == RecordProcessed || s == RecordDiscarded
}

// Record is the persisted envelope of one recognized life event. Immutable
// once stored, except for the terminal processed/discarded marker.
type Record struct {
	ID            uuid.UUID
	SourceEventID string
	Subject       domain.PersonID
	Category      Category
	ChangeType    ChangeType
	Status        RecordStatus
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
}

// RecordStore persists life-event envelopes, deduplicated on the source event
// id so redelivered Kafka records never produce a second row.
type RecordStore interface {
	// Insert stores the record unless its source event id was already seen;
	// false means a duplicate delivery, not an error.
	Insert(ctx context.Context, rec Record) (bool, error)

	// MarkOutcome sets the terminal processed/discarded marker. Returns
	// sentinel.ErrNotFound for an unknown source event id and
	// sentinel.ErrInvalidState when the record is already terminal.
	MarkOutcome(ctx context.Context, sourceEventID string, status RecordStatus) error

	// GetBySourceEvent returns the stored record, or sentinel.ErrNotFound.
	GetBySourceEvent(ctx context.Context, sourceEventID string) (Record, error)
}
