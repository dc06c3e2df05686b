package death

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// MemoryStore is an in-memory Store for unit tests and local development.
// WithinTx runs the callback directly without simulating atomicity; the
// per-method mutex is all the consistency tests need.
type MemoryStore struct {
	mu         sync.Mutex
	events     map[uuid.UUID]*Event
	unresolved map[domain.PersonID]UnresolvedParties
	clock      Clock
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryClock sets the clock function for testability.
func WithMemoryClock(clock Clock) MemoryStoreOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		events:     make(map[uuid.UUID]*Event),
		unresolved: make(map[domain.PersonID]UnresolvedParties),
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) UpsertObservation(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for _, existing := range s.events {
		if existing.DeceasedID == ev.DeceasedID && existing.AffectedID == ev.AffectedID && !existing.Status.Terminal() {
			existing.Relation = ev.Relation
			existing.DateOfDeath = ev.DateOfDeath
			existing.SourceEventID = ev.SourceEventID
			existing.Status = StatusUpdated
			existing.UpdatedAt = now
			return nil
		}
	}

	id := ev.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	s.events[id] = &Event{
		ID:            id,
		DeceasedID:    ev.DeceasedID,
		AffectedID:    ev.AffectedID,
		Relation:      ev.Relation,
		DateOfDeath:   ev.DateOfDeath,
		SourceEventID: ev.SourceEventID,
		Status:        StatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return nil
}

func (s *MemoryStore) ReplaceUnresolved(ctx context.Context, parties UnresolvedParties) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parties.UpdatedAt = s.clock()
	s.unresolved[parties.DeceasedID] = parties
	return nil
}

func (s *MemoryStore) GetUnresolved(ctx context.Context, deceased domain.PersonID) (UnresolvedParties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parties, ok := s.unresolved[deceased]
	if !ok {
		return UnresolvedParties{}, sentinel.ErrNotFound
	}
	return parties, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, ev := range s.events {
		if ev.Status == status {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkStatus(ctx context.Context, id uuid.UUID, status Status, outcome *Outcome, ref *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !ev.Status.CanTransitionTo(status) {
		return sentinel.ErrInvalidState
	}

	ev.Status = status
	ev.UpdatedAt = s.clock()
	if outcome != nil {
		ev.Outcome = outcome
	}
	if ref != nil {
		switch status {
		case StatusDone:
			ev.CaseRef = ref
		default:
		}
	}
	return nil
}

func (s *MemoryStore) CancelOpen(ctx context.Context, deceased domain.PersonID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := OutcomeCancelled
	count := 0
	for _, ev := range s.events {
		if ev.DeceasedID == deceased && !ev.Status.Terminal() {
			ev.Status = StatusCancelled
			ev.Outcome = &cancelled
			ev.UpdatedAt = s.clock()
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SetLetterOutcome(ctx context.Context, affected domain.PersonID, letterRef string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	letter := OutcomeLetter
	count := 0
	for _, ev := range s.events {
		if ev.AffectedID == affected && ev.Status == StatusDone && ev.LetterRef == nil {
			ev.LetterRef = &letterRef
			ev.Outcome = &letter
			ev.UpdatedAt = at
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Get returns a copy of one row; test helper.
func (s *MemoryStore) Get(id uuid.UUID) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return Event{}, false
	}
	return *ev, true
}

// All returns copies of every row; test helper.
func (s *MemoryStore) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, *ev)
	}
	return out
}
