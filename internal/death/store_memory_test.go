package death

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 6, 20, 10, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore(WithMemoryClock(func() time.Time { return s.now }))
}

func (s *MemoryStoreSuite) observation(deceased, affected string) Event {
	return Event{
		DeceasedID:  domain.PersonID(deceased),
		AffectedID:  domain.PersonID(affected),
		Relation:    RelationChild,
		DateOfDeath: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
	}
}

func (s *MemoryStoreSuite) mustUpsert(ev Event) Event {
	s.T().Helper()
	s.Require().NoError(s.store.UpsertObservation(context.Background(), ev))
	rows := s.store.All()
	for _, row := range rows {
		if row.DeceasedID == ev.DeceasedID && row.AffectedID == ev.AffectedID && !row.Status.Terminal() {
			return row
		}
	}
	s.T().Fatal("no open row after upsert")
	return Event{}
}

// =============================================================================
// Upsert Tests (one open row per pair)
// =============================================================================

func (s *MemoryStoreSuite) TestUpsertObservation() {
	ctx := context.Background()

	s.Run("first observation creates a NEW row", func() {
		row := s.mustUpsert(s.observation("15055912345", "01011012345"))
		s.Equal(StatusNew, row.Status)
		s.Equal(s.now, row.CreatedAt)
		s.Equal(s.now, row.UpdatedAt)
	})

	s.Run("second observation refreshes it to UPDATED", func() {
		s.now = s.now.Add(time.Hour)
		corrected := s.observation("15055912345", "01011012345")
		corrected.DateOfDeath = time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC)

		row := s.mustUpsert(corrected)
		s.Equal(StatusUpdated, row.Status)
		s.Equal(corrected.DateOfDeath, row.DateOfDeath)
		s.Len(s.store.All(), 1, "refresh must not create a second row")
	})

	s.Run("a terminal row does not block a fresh observation", func() {
		open := s.mustUpsert(s.observation("15055912345", "01011012345"))
		s.Require().NoError(s.store.MarkStatus(ctx, open.ID, StatusFailed, nil, nil))

		row := s.mustUpsert(s.observation("15055912345", "01011012345"))
		s.Equal(StatusNew, row.Status)
		s.Len(s.store.All(), 2, "terminal rows stay as audit trail")
	})
}

// =============================================================================
// Status Machine Tests
// =============================================================================

func (s *MemoryStoreSuite) TestMarkStatus() {
	ctx := context.Background()
	outcome := OutcomeCase
	ref := "corr-123"

	s.Run("NEW promotes to DONE with outcome and case ref", func() {
		row := s.mustUpsert(s.observation("15055912345", "01011012345"))
		s.Require().NoError(s.store.MarkStatus(ctx, row.ID, StatusDone, &outcome, &ref))

		got, ok := s.store.Get(row.ID)
		s.Require().True(ok)
		s.Equal(StatusDone, got.Status)
		s.Equal(&outcome, got.Outcome)
		s.Require().NotNil(got.CaseRef)
		s.Equal(ref, *got.CaseRef)
	})

	s.Run("terminal rows never regress", func() {
		row := s.mustUpsert(s.observation("15055912345", "02021212345"))
		s.Require().NoError(s.store.MarkStatus(ctx, row.ID, StatusDone, &outcome, &ref))

		err := s.store.MarkStatus(ctx, row.ID, StatusUpdated, nil, nil)
		s.ErrorIs(err, sentinel.ErrInvalidState)
		err = s.store.MarkStatus(ctx, row.ID, StatusFailed, nil, nil)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown id reports not found", func() {
		err := s.store.MarkStatus(ctx, uuid.New(), StatusDone, &outcome, &ref)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestCancelOpen() {
	ctx := context.Background()
	one := s.mustUpsert(s.observation("15055912345", "01011012345"))
	two := s.mustUpsert(s.observation("15055912345", "02021212345"))
	done := s.mustUpsert(s.observation("15055912345", "20066012345"))
	outcome := OutcomeCase
	s.Require().NoError(s.store.MarkStatus(ctx, done.ID, StatusDone, &outcome, nil))

	count, err := s.store.CancelOpen(ctx, "15055912345")
	s.Require().NoError(err)
	s.Equal(2, count, "only open rows are cancelled")

	for _, id := range []uuid.UUID{one.ID, two.ID} {
		row, ok := s.store.Get(id)
		s.Require().True(ok)
		s.Equal(StatusCancelled, row.Status)
	}
	row, _ := s.store.Get(done.ID)
	s.Equal(StatusDone, row.Status, "promoted rows are untouched by cancellation")
}

func (s *MemoryStoreSuite) TestSetLetterOutcome() {
	ctx := context.Background()
	affected := domain.PersonID("01011012345")
	row := s.mustUpsert(s.observation("15055912345", string(affected)))
	outcome := OutcomeCase
	s.Require().NoError(s.store.MarkStatus(ctx, row.ID, StatusDone, &outcome, nil))

	at := s.now.Add(48 * time.Hour)
	count, err := s.store.SetLetterOutcome(ctx, affected, "letter-9", at)
	s.Require().NoError(err)
	s.Equal(1, count)

	got, _ := s.store.Get(row.ID)
	s.Require().NotNil(got.LetterRef)
	s.Equal("letter-9", *got.LetterRef)
	s.Equal(OutcomeLetter, *got.Outcome)

	s.Run("a second callback for the same letter matches nothing", func() {
		count, err := s.store.SetLetterOutcome(ctx, affected, "letter-9", at)
		s.Require().NoError(err)
		s.Zero(count)
	})
}

func (s *MemoryStoreSuite) TestUnresolved() {
	ctx := context.Background()

	_, err := s.store.GetUnresolved(ctx, "15055912345")
	s.ErrorIs(err, sentinel.ErrNotFound)

	first := UnresolvedParties{
		DeceasedID: "15055912345",
		Children:   []PartialIdentity{{Name: "partial child", BirthYear: 2012}},
	}
	s.Require().NoError(s.store.ReplaceUnresolved(ctx, first))

	got, err := s.store.GetUnresolved(ctx, "15055912345")
	s.Require().NoError(err)
	s.Len(got.Children, 1)
	s.Equal(s.now, got.UpdatedAt)

	s.Run("replacement is wholesale", func() {
		s.Require().NoError(s.store.ReplaceUnresolved(ctx, UnresolvedParties{DeceasedID: "15055912345"}))
		got, err := s.store.GetUnresolved(ctx, "15055912345")
		s.Require().NoError(err)
		s.Empty(got.Children)
	})
}
