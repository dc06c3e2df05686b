// Package trigger publishes downstream case triggers onto the shared event
// log. Delivery is at-least-once; consumers deduplicate on the correlation
// id.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"lifeline/internal/platform/kafka/producer"
	"lifeline/pkg/domain"
)

// Type distinguishes downstream trigger intents.
type Type string

const (
	// TypeEvaluateCase instructs case processing to create or re-evaluate a
	// case for the subject.
	TypeEvaluateCase Type = "EVALUATE_CASE"
)

// CaseTrigger is the outbound message instructing another service to act on
// a person's case.
type CaseTrigger struct {
	PersonIdent   domain.PersonID `json:"personIdent"`
	TriggerType   Type            `json:"triggerType"`
	CorrelationID string          `json:"correlationId"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// Publisher delivers one trigger and returns once the log acknowledged it. A
// returned error means the caller must treat the corresponding state
// transition as not-yet-performed.
type Publisher interface {
	Publish(ctx context.Context, t CaseTrigger) error
}

// KafkaPublisher publishes triggers to the outbound topic, keyed by person
// identifier so all triggers for one person land on one partition.
type KafkaPublisher struct {
	producer *producer.Producer
	topic    string
	logger   *slog.Logger
}

func NewKafkaPublisher(p *producer.Producer, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, t CaseTrigger) error {
	value, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal case trigger: %w", err)
	}

	ack, err := p.producer.Publish(ctx, p.topic, []byte(t.PersonIdent.String()), value)
	if err != nil {
		return fmt.Errorf("publish case trigger: %w", err)
	}

	p.logger.Debug("case trigger published",
		"person", t.PersonIdent.Masked(),
		"correlation_id", t.CorrelationID,
		"partition", ack.Partition,
		"offset", ack.Offset,
	)
	return nil
}

// MemoryPublisher collects triggers for tests. FailFor makes publishes for
// specific persons fail, exercising per-candidate isolation.
type MemoryPublisher struct {
	Published []CaseTrigger
	FailFor   map[domain.PersonID]error
}

func (p *MemoryPublisher) Publish(_ context.Context, t CaseTrigger) error {
	if err, ok := p.FailFor[t.PersonIdent]; ok {
		return err
	}
	p.Published = append(p.Published, t)
	return nil
}
