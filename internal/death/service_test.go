package death

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"lifeline/internal/lifeevent"
	"lifeline/internal/platform/logger"
	"lifeline/internal/platform/metrics"
	"lifeline/internal/registry"
	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
	"lifeline/pkg/testutil"
)

// =============================================================================
// Death Service Test Suite
// =============================================================================
// The affected-party property (children + spouse resolved into independent
// rows, redelivery never duplicating them) is the heart of the pipeline and
// is exercised here against the in-memory store.

const (
	deceasedIdent = "15055912345"
	childIdent1   = "01011012345"
	childIdent2   = "02021212345"
	spouseIdent   = "20066012345"
)

type ServiceSuite struct {
	suite.Suite
	store   *MemoryStore
	persons registry.MockPersonClient
	service *Service
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 6, 20, 10, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore(WithMemoryClock(func() time.Time { return s.now }))
	s.persons = registry.MockPersonClient{Persons: map[domain.PersonID]registry.PersonRecord{}}
	s.service = NewService(s.persons, s.store, 20, metrics.NewWith(prometheus.NewRegistry()), logger.NewNop())
}

func (s *ServiceSuite) deathEvent(changeType lifeevent.ChangeType) lifeevent.LifeEvent {
	return lifeevent.LifeEvent{
		SourceEventID: "evt-death-1",
		Subject:       domain.PersonID(deceasedIdent),
		Category:      lifeevent.CategoryDeath,
		ChangeType:    changeType,
		ReceivedAt:    s.now,
	}
}

// deceasedRecord is a person who died mid-June 2026 leaving two dependent
// children and a spouse.
func (s *ServiceSuite) deceasedRecord() registry.PersonRecord {
	died := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	born1 := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	born2 := time.Date(2012, 2, 2, 0, 0, 0, 0, time.UTC)
	married := time.Date(2005, 6, 1, 0, 0, 0, 0, time.UTC)
	return registry.PersonRecord{
		Ident:       domain.PersonID(deceasedIdent),
		DateOfDeath: &died,
		Children: []registry.ChildRelation{
			{Ident: childIdent1, DateOfBirth: &born1},
			{Ident: childIdent2, DateOfBirth: &born2},
		},
		MaritalHistory: []registry.MaritalStatus{
			{Status: registry.MaritalMarried, EffectiveDate: &married, RelatedIdent: spouseIdent},
		},
	}
}

func (s *ServiceSuite) TestHandle_AffectedPartyRows() {
	ctx := context.Background()
	s.persons.Persons[deceasedIdent] = s.deceasedRecord()

	s.Run("two children and a spouse become three NEW rows", func() {
		s.Require().NoError(s.service.Handle(ctx, s.deathEvent(lifeevent.ChangeCreated)))

		rows := s.store.All()
		s.Require().Len(rows, 3)
		byAffected := map[domain.PersonID]Event{}
		for _, row := range rows {
			s.Equal(StatusNew, row.Status)
			s.Equal(domain.PersonID(deceasedIdent), row.DeceasedID)
			s.Equal("evt-death-1", row.SourceEventID)
			byAffected[row.AffectedID] = row
		}
		s.Equal(RelationChild, byAffected[childIdent1].Relation)
		s.Equal(RelationChild, byAffected[childIdent2].Relation)
		s.Equal(RelationSpouseOrPartner, byAffected[spouseIdent].Relation)
	})

	s.Run("redelivery refreshes the same three rows", func() {
		ev := s.deathEvent(lifeevent.ChangeCreated)
		ev.SourceEventID = "evt-death-2"
		s.Require().NoError(s.service.Handle(ctx, ev))

		rows := s.store.All()
		s.Require().Len(rows, 3)
		for _, row := range rows {
			s.Equal(StatusUpdated, row.Status)
			s.Equal("evt-death-2", row.SourceEventID, "the refresh re-attributes the rows")
		}
	})
}

func (s *ServiceSuite) TestHandle_UnresolvedParties() {
	ctx := context.Background()
	rec := s.deceasedRecord()
	rec.Children[1].Ident = "" // registry only has partial identity
	rec.Children[1].Name = "partial child"
	rec.Children[1].BirthYear = 2012
	s.persons.Persons[deceasedIdent] = rec

	s.Require().NoError(s.service.Handle(ctx, s.deathEvent(lifeevent.ChangeCreated)))

	s.Len(s.store.All(), 2)
	unresolved, err := s.store.GetUnresolved(ctx, deceasedIdent)
	s.Require().NoError(err)
	s.Require().Len(unresolved.Children, 1)
	s.Equal("partial child", unresolved.Children[0].Name)
	s.Equal(2012, unresolved.Children[0].BirthYear)

	s.Run("a later full resolution replaces the unresolved row", func() {
		s.persons.Persons[deceasedIdent] = s.deceasedRecord()
		s.Require().NoError(s.service.Handle(ctx, s.deathEvent(lifeevent.ChangeCorrected)))

		unresolved, err := s.store.GetUnresolved(ctx, deceasedIdent)
		s.Require().NoError(err)
		s.Empty(unresolved.Children)
		s.Empty(unresolved.Spouses)
	})
}

func (s *ServiceSuite) TestHandle_RetractedDeath() {
	ctx := context.Background()
	rec := s.deceasedRecord()
	rec.DateOfDeath = nil
	s.persons.Persons[deceasedIdent] = rec

	s.Require().NoError(s.service.Handle(ctx, s.deathEvent(lifeevent.ChangeCreated)))
	s.Empty(s.store.All(), "no rows may be persisted for a living person")
}

func (s *ServiceSuite) TestHandle_UnknownPerson() {
	// MockPersonClient answers ErrNotFound for unknown idents; the event is
	// dropped without error so the offset commits.
	s.NoError(s.service.Handle(context.Background(), s.deathEvent(lifeevent.ChangeCreated)))
	s.Empty(s.store.All())
}

func (s *ServiceSuite) TestHandle_TransportFailure() {
	service := NewService(unavailablePersonClient{}, s.store, 20, metrics.NewWith(prometheus.NewRegistry()), logger.NewNop())
	err := service.Handle(context.Background(), s.deathEvent(lifeevent.ChangeCreated))
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrUnavailable)
}

func (s *ServiceSuite) TestHandle_Cancellation() {
	ctx := testutil.Context(s.T())
	s.persons.Persons[deceasedIdent] = s.deceasedRecord()
	s.Require().NoError(s.service.Handle(ctx, s.deathEvent(lifeevent.ChangeCreated)))

	s.Require().NoError(s.service.Handle(ctx, s.deathEvent(lifeevent.ChangeCancelled)))

	for _, row := range s.store.All() {
		s.Equal(StatusCancelled, row.Status)
		s.Require().NotNil(row.Outcome)
		s.Equal(OutcomeCancelled, *row.Outcome)
	}
}

type unavailablePersonClient struct{}

func (unavailablePersonClient) GetPerson(context.Context, domain.PersonID) (registry.PersonRecord, error) {
	return registry.PersonRecord{}, sentinel.ErrUnavailable
}
