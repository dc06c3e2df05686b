package lifeevent

import (
	"context"
	"fmt"
	"log/slog"

	"lifeline/internal/platform/metrics"
)

// Recorder is the handler for categories without a dedicated pipeline. It
// persists the envelope so the event survives as a durable, deduplicated
// record instead of vanishing after classification.
type Recorder struct {
	store   RecordStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRecorder(store RecordStore, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// Handle implements Handler. Recording is the whole processing for these
// categories, so a freshly inserted record is marked PROCESSED right away.
func (r *Recorder) Handle(ctx context.Context, ev LifeEvent) error {
	created, err := r.store.Insert(ctx, Record{
		SourceEventID: ev.SourceEventID,
		Subject:       ev.Subject,
		Category:      ev.Category,
		ChangeType:    ev.ChangeType,
		Status:        RecordReceived,
		ReceivedAt:    ev.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("insert life event record: %w", err)
	}
	if !created {
		r.logger.Info("life event already recorded, duplicate delivery skipped",
			"event_id", ev.SourceEventID,
			"category", ev.Category,
		)
		return nil
	}

	if err := r.store.MarkOutcome(ctx, ev.SourceEventID, RecordProcessed); err != nil {
		return fmt.Errorf("mark life event processed: %w", err)
	}

	r.metrics.LifeEventsRecorded.WithLabelValues(string(ev.Category)).Inc()
	r.logger.Info("life event recorded",
		"event_id", ev.SourceEventID,
		"category", ev.Category,
		"subject", ev.Subject.Masked(),
	)
	return nil
}
