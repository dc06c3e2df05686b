// Package reconcile promotes settled death events into downstream case
// triggers. The job runs on a fixed schedule, only on the replica holding
// the leadership lease, and treats every candidate independently: one
// failing deceased person never blocks the rest quietly waiting their turn.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"lifeline/internal/death"
	"lifeline/internal/leader"
	"lifeline/internal/platform/config"
	"lifeline/internal/platform/metrics"
	"lifeline/internal/registry"
	"lifeline/internal/trigger"
	"lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
)

// Job is the leader-elected periodic reconciliation task.
type Job struct {
	store     death.Store
	publisher trigger.Publisher
	elector   leader.Elector
	persons   registry.PersonClient
	cfg       config.ReconcileConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clock     death.Clock
}

// Option configures the Job.
type Option func(*Job)

// WithClock sets the clock function for testability.
func WithClock(clock death.Clock) Option {
	return func(j *Job) {
		if clock != nil {
			j.clock = clock
		}
	}
}

func NewJob(store death.Store, publisher trigger.Publisher, elector leader.Elector, persons registry.PersonClient, cfg config.ReconcileConfig, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Job {
	j := &Job{
		store:     store,
		publisher: publisher,
		elector:   elector,
		persons:   persons,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	return j
}

// Run ticks until ctx is cancelled. Non-leading replicas stay idle but keep
// checking, so promotion resumes within one interval of a leadership change.
func (j *Job) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !j.elector.IsLeader() {
				continue
			}
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("reconciliation run failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single reconciliation pass. Only the candidate listing
// can fail the run as a whole; per-candidate errors are logged and the rows
// stay NEW for the next pass.
func (j *Job) RunOnce(ctx context.Context) error {
	start := time.Now()
	j.metrics.ReconcileRuns.Inc()
	defer func() {
		j.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	// Both open statuses are candidates: a corrected row (UPDATED) settles
	// through the same staleness filter, counted from the correction.
	rows, err := j.store.ListByStatus(ctx, death.StatusNew)
	if err != nil {
		return err
	}
	updated, err := j.store.ListByStatus(ctx, death.StatusUpdated)
	if err != nil {
		return err
	}
	rows = append(rows, updated...)

	now := j.clock()
	byDeceased := make(map[domain.PersonID][]death.Event)
	for _, row := range rows {
		// Late corrections reset updated_at, so a freshly corrected row
		// waits the full settling period again.
		if now.Sub(row.UpdatedAt) < j.cfg.PromotionMinAge {
			continue
		}
		byDeceased[row.DeceasedID] = append(byDeceased[row.DeceasedID], row)
	}

	deceasedIDs := make([]domain.PersonID, 0, len(byDeceased))
	for id := range byDeceased {
		deceasedIDs = append(deceasedIDs, id)
	}
	sort.Slice(deceasedIDs, func(a, b int) bool { return deceasedIDs[a] < deceasedIDs[b] })

	for _, deceased := range deceasedIDs {
		j.promote(ctx, deceased, byDeceased[deceased])
	}
	return nil
}

// promote publishes one trigger per deceased person and marks that person's
// rows DONE. Each downstream call carries its own short timeout so a slow
// candidate cannot stall the run.
func (j *Job) promote(ctx context.Context, deceased domain.PersonID, rows []death.Event) {
	logger := j.logger.With("deceased", deceased.Masked(), "rows", len(rows))

	fetchCtx, cancel := context.WithTimeout(ctx, j.cfg.CallTimeout)
	record, err := j.persons.GetPerson(fetchCtx, deceased)
	cancel()
	if errors.Is(err, sentinel.ErrNotFound) {
		// Mirrors the intake path: a person the registry no longer knows can
		// never produce a case.
		for _, row := range rows {
			j.markStatus(ctx, row, death.StatusFailed, nil, nil, logger)
		}
		logger.Info("deceased person no longer in registry, candidate failed")
		return
	}
	if err != nil {
		logger.Warn("registry re-validation unavailable, candidate deferred", "error", err)
		return
	}

	if record.DateOfDeath == nil {
		// The death was retracted after ingestion; the rows must never
		// produce a trigger.
		for _, row := range rows {
			j.markStatus(ctx, row, death.StatusFailed, nil, nil, logger)
		}
		logger.Info("death no longer present in registry, candidate failed")
		return
	}

	// The trigger correlates back to the registry event behind the newest
	// observation, so a late correction wins over the original notification.
	correlationID := latestSourceEvent(rows)
	if correlationID == "" {
		// Rows persisted before the event id was recorded.
		correlationID = uuid.NewString()
	}
	pubCtx, cancel := context.WithTimeout(ctx, j.cfg.CallTimeout)
	err = j.publisher.Publish(pubCtx, trigger.CaseTrigger{
		PersonIdent:   deceased,
		TriggerType:   trigger.TypeEvaluateCase,
		CorrelationID: correlationID,
		OccurredAt:    j.clock(),
	})
	cancel()
	if err != nil {
		// Rows stay NEW; the next run retries. Duplicate triggers after a
		// partial failure are acceptable - delivery is at-least-once.
		logger.Warn("trigger publish failed, candidate retried next run", "error", err)
		return
	}
	j.metrics.TriggersPublished.Inc()

	outcome := death.OutcomeCase
	for _, row := range rows {
		j.markStatus(ctx, row, death.StatusDone, &outcome, &correlationID, logger)
	}
	logger.Info("death event promoted", "correlation_id", correlationID)
}

// latestSourceEvent returns the source event id of the most recently updated
// row in the candidate set.
func latestSourceEvent(rows []death.Event) string {
	var (
		sourceEvent string
		updatedAt   time.Time
	)
	for _, row := range rows {
		if row.SourceEventID != "" && !row.UpdatedAt.Before(updatedAt) {
			sourceEvent = row.SourceEventID
			updatedAt = row.UpdatedAt
		}
	}
	return sourceEvent
}

func (j *Job) markStatus(ctx context.Context, row death.Event, status death.Status, outcome *death.Outcome, ref *string, logger *slog.Logger) {
	updCtx, cancel := context.WithTimeout(ctx, j.cfg.CallTimeout)
	defer cancel()
	if err := j.store.MarkStatus(updCtx, row.ID, status, outcome, ref); err != nil {
		logger.Warn("status transition failed",
			"row_id", row.ID,
			"target_status", status,
			"error", err,
		)
	}
}
