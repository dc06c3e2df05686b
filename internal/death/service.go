package death

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lifeline/internal/lifeevent"
	"lifeline/internal/platform/metrics"
	"lifeline/internal/registry"
	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
	"lifeline/pkg/requestcontext"
)

// Service is the death-notification handler: it validates a death against the
// registry's current record, resolves the affected relations, and persists
// the observations atomically per deceased person.
type Service struct {
	persons       registry.PersonClient
	store         Store
	ageLimitYears int
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func NewService(persons registry.PersonClient, store Store, ageLimitYears int, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		persons:       persons,
		store:         store,
		ageLimitYears: ageLimitYears,
		metrics:       m,
		logger:        logger,
	}
}

// Handle implements lifeevent.Handler for the DEATH category.
func (s *Service) Handle(ctx context.Context, ev lifeevent.LifeEvent) error {
	logger := s.logger.With(
		"deceased", ev.Subject.Masked(),
		"event_id", ev.SourceEventID,
		"correlation_id", requestcontext.CorrelationID(ctx),
	)

	if ev.ChangeType == lifeevent.ChangeCancelled {
		count, err := s.store.CancelOpen(ctx, ev.Subject)
		if err != nil {
			return fmt.Errorf("cancel open death events: %w", err)
		}
		logger.Info("death event retracted by registry, open rows cancelled",
			"cancelled_rows", count,
		)
		return nil
	}

	// Defensive re-validation: a later correction may have already retracted
	// the death by the time this record is processed.
	record, err := s.persons.GetPerson(ctx, ev.Subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			logger.Warn("deceased person not found in registry, dropping event")
			return nil
		}
		// Transport failure: retryable; bubbles to the consumer so the
		// offset stays put.
		return fmt.Errorf("re-fetch deceased person: %w", err)
	}

	if record.DateOfDeath == nil {
		logger.Info("registry no longer shows a death date, dropping event")
		return nil
	}
	dateOfDeath := *record.DateOfDeath

	resolved, unresolved := s.resolveAffected(ev.SourceEventID, record, dateOfDeath)

	// The unresolved row is replaced even when empty: it must reflect the
	// latest resolution attempt, not an accumulation of earlier ones.
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		for _, observation := range resolved {
			if err := s.store.UpsertObservation(ctx, observation); err != nil {
				return err
			}
		}
		return s.store.ReplaceUnresolved(ctx, unresolved)
	})
	if err != nil {
		return fmt.Errorf("persist death observations: %w", err)
	}

	s.metrics.DeathEventsUpserts.Add(float64(len(resolved)))
	logger.Info("death event persisted",
		"affected_rows", len(resolved),
		"unresolved_children", len(unresolved.Children),
		"unresolved_spouses", len(unresolved.Spouses),
	)
	return nil
}

// resolveAffected splits the deceased's relations into observations keyed by
// canonical identifier and partial identities for later reconciliation. Pure
// over the fetched record.
func (s *Service) resolveAffected(sourceEventID string, record registry.PersonRecord, dateOfDeath time.Time) ([]Event, UnresolvedParties) {
	unresolved := UnresolvedParties{DeceasedID: record.Ident}
	var resolved []Event

	for _, child := range EligibleChildren(record, dateOfDeath, s.ageLimitYears) {
		id, err := domain.ParsePersonID(child.Ident)
		if err != nil {
			unresolved.Children = append(unresolved.Children, PartialIdentity{
				Name:      child.Name,
				BirthYear: child.BirthYear,
			})
			continue
		}
		resolved = append(resolved, Event{
			DeceasedID:    record.Ident,
			AffectedID:    id,
			Relation:      RelationChild,
			DateOfDeath:   dateOfDeath,
			SourceEventID: sourceEventID,
		})
	}

	if spouse, ok := SelectSpouse(record.MaritalHistory); ok {
		id, err := domain.ParsePersonID(spouse.RelatedIdent)
		if err != nil {
			unresolved.Spouses = append(unresolved.Spouses, PartialIdentity{
				Name: spouse.RelatedName,
			})
		} else {
			resolved = append(resolved, Event{
				DeceasedID:    record.Ident,
				AffectedID:    id,
				Relation:      RelationSpouseOrPartner,
				DateOfDeath:   dateOfDeath,
				SourceEventID: sourceEventID,
			})
		}
	}

	return resolved, unresolved
}
