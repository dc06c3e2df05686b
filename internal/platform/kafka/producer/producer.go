// Package producer wraps a franz-go client for synchronous, acknowledged
// publishes. The outbound publisher needs the broker ack (or the error)
// before a death event row may transition to DONE.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"lifeline/internal/platform/config"
)

// Ack reports where a published record landed.
type Ack struct {
	Partition int32
	Offset    int64
}

// Producer publishes records with all-broker acks.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// New builds a producer client against the configured brokers.
func New(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, err
	}
	return &Producer{client: client, logger: logger}, nil
}

// Publish produces one record synchronously and returns the broker ack.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) (Ack, error) {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	res := p.client.ProduceSync(ctx, rec)
	if err := res.FirstErr(); err != nil {
		return Ack{}, fmt.Errorf("produce to %s: %w", topic, err)
	}
	return Ack{Partition: rec.Partition, Offset: rec.Offset}, nil
}

// EnsureTopics creates the given topics if they do not exist yet. Broker-side
// defaults are used for partition count when the broker supports it.
func (p *Producer) EnsureTopics(ctx context.Context, topics ...string) error {
	adm := kadm.NewClient(p.client)
	resps, err := adm.CreateTopics(ctx, -1, -1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, resp := range resps.Sorted() {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
		p.logger.Debug("topic ensured", "topic", resp.Topic)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close() {
	p.client.Close()
}
