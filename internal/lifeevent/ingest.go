package lifeevent

import (
	"context"
	"encoding/json"
	"log/slog"

	"lifeline/internal/platform/kafka/consumer"
	"lifeline/internal/platform/metrics"
	"lifeline/pkg/requestcontext"
)

// Ingest is the Kafka-facing entry point of the pipeline: it decodes a change
// record, classifies it, resolves the subject identifier, and dispatches the
// resulting life event. Its error return is the offset-commit contract: nil
// commits the record, non-nil leaves it for redelivery.
type Ingest struct {
	classifier *Classifier
	resolver   *Resolver
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewIngest(classifier *Classifier, resolver *Resolver, dispatcher *Dispatcher, m *metrics.Metrics, logger *slog.Logger) *Ingest {
	return &Ingest{
		classifier: classifier,
		resolver:   resolver,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
	}
}

const discardMalformed = "malformed_record"

// Handle processes one inbound record.
func (i *Ingest) Handle(ctx context.Context, msg *consumer.Message) error {
	i.metrics.RecordsConsumed.Inc()

	var rec ChangeRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		// Unrecoverable decode error: log and skip so the partition keeps
		// moving.
		i.logger.Error("skipping undecodable record",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		i.metrics.RecordsDiscarded.WithLabelValues(discardMalformed).Inc()
		return nil
	}

	ev, discard := i.classifier.Classify(rec, msg.Timestamp)
	if discard != "" {
		i.metrics.RecordsDiscarded.WithLabelValues(discard).Inc()
		return nil
	}

	subject, ok, err := i.resolver.Resolve(ctx, rec.PersonIdent)
	if err != nil {
		// Retryable: the lookup service was unreachable. No commit.
		return err
	}
	if !ok {
		i.logger.Info("discarding event without canonical identifier",
			"event_id", rec.EventID,
			"category", ev.Category,
		)
		i.metrics.ResolverDrops.Inc()
		return nil
	}
	ev.Subject = subject

	ctx = requestcontext.WithCorrelationID(ctx, rec.EventID)
	ctx = requestcontext.WithSourceEventID(ctx, rec.EventID)

	if err := i.dispatcher.Dispatch(ctx, ev); err != nil {
		return err
	}
	i.metrics.RecordsDispatched.WithLabelValues(string(ev.Category)).Inc()
	return nil
}
