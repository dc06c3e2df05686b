package lifeevent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifeline/pkg/platform/sentinel"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// MemoryRecordStore is an in-memory RecordStore for unit tests and local
// development.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[string]*Record
	clock   Clock
}

// MemoryRecordStoreOption configures a MemoryRecordStore.
type MemoryRecordStoreOption func(*MemoryRecordStore)

// WithMemoryRecordClock sets the clock function for testability.
func WithMemoryRecordClock(clock Clock) MemoryRecordStoreOption {
	return func(s *MemoryRecordStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewMemoryRecordStore(opts ...MemoryRecordStoreOption) *MemoryRecordStore {
	s := &MemoryRecordStore{
		records: make(map[string]*Record),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryRecordStore) Insert(ctx context.Context, rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.SourceEventID]; ok {
		return false, nil
	}

	stored := rec
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Status == "" {
		stored.Status = RecordReceived
	}
	s.records[rec.SourceEventID] = &stored
	return true, nil
}

func (s *MemoryRecordStore) MarkOutcome(ctx context.Context, sourceEventID string, status RecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sourceEventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if rec.Status.Terminal() {
		return sentinel.ErrInvalidState
	}

	now := s.clock()
	rec.Status = status
	rec.ProcessedAt = &now
	return nil
}

func (s *MemoryRecordStore) GetBySourceEvent(ctx context.Context, sourceEventID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sourceEventID]
	if !ok {
		return Record{}, sentinel.ErrNotFound
	}
	return *rec, nil
}
