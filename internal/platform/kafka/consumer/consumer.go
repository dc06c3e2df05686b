// Package consumer wraps a franz-go consumer group with the commit discipline
// this pipeline needs: a record's offset is committed only after the handler
// returned nil, and a handler failure rewinds the partition to the failed
// record, so a crash or a retryable downstream failure results in redelivery
// instead of a lost event (at-least-once).
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"lifeline/internal/platform/config"
)

// Message is one decoded record from the inbound topic.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes one message. Returning an error stops the partition at
// the failed record: its offset stays uncommitted, the partition is rewound
// to it, and the next poll delivers it again.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// groupClient is the slice of kgo.Client the poll loop needs. Tests substitute
// a scripted fake.
type groupClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	SetOffsets(setOffsets map[string]map[int32]kgo.EpochOffset)
	Close()
}

// Consumer runs a blocking poll loop against the inbound topic. One consumer
// per process; partition assignment across replicas is handled by the group
// coordinator.
type Consumer struct {
	client       groupClient
	handler      Handler
	logger       *slog.Logger
	pollTimeout  time.Duration
	retryBackoff time.Duration
}

// New connects a consumer group client for the configured inbound topic.
func New(cfg config.KafkaConfig, handler Handler, logger *slog.Logger) (*Consumer, error) {
	resetOffset := kgo.NewOffset().AtEnd()
	if cfg.StartAtOldest {
		resetOffset = kgo.NewOffset().AtStart()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.InboundTopic),
		kgo.ConsumeResetOffset(resetOffset),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		client:       client,
		handler:      handler,
		logger:       logger,
		pollTimeout:  cfg.PollTimeout,
		retryBackoff: time.Second,
	}, nil
}

// Run polls until ctx is cancelled. Records are processed sequentially within
// a partition to preserve per-subject ordering; partitions are independent.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.retryBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
		fetches := c.client.PollFetches(pollCtx)
		cancel()

		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}

		transientErr := false
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return
			}
			transientErr = true
			c.logger.Warn("fetch error, backing off",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		if transientErr {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		var committable []*kgo.Record
		failed := make(map[string]map[int32]kgo.EpochOffset)
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			for _, rec := range p.Records {
				msg := &Message{
					Topic:     rec.Topic,
					Partition: rec.Partition,
					Offset:    rec.Offset,
					Key:       rec.Key,
					Value:     rec.Value,
					Timestamp: rec.Timestamp,
				}
				if err := c.handler.Handle(ctx, msg); err != nil {
					c.logger.Warn("handler failed, partition rewound for redelivery",
						"topic", rec.Topic,
						"partition", rec.Partition,
						"offset", rec.Offset,
						"error", err,
					)
					if failed[rec.Topic] == nil {
						failed[rec.Topic] = make(map[int32]kgo.EpochOffset)
					}
					failed[rec.Topic][rec.Partition] = kgo.EpochOffset{
						Epoch:  rec.LeaderEpoch,
						Offset: rec.Offset,
					}
					return
				}
				committable = append(committable, rec)
			}
		})

		if len(committable) > 0 {
			if err := c.client.CommitRecords(ctx, committable...); err != nil {
				// Redelivery of already-handled records is fine; the
				// pipeline is idempotent under natural business keys.
				c.logger.Warn("offset commit failed", "error", err)
			}
		}

		if len(failed) > 0 {
			// The client's own consume position has already moved past the
			// fetched batch, so an uncommitted group offset alone does not
			// bring the record back. Rewinding the failed partitions makes
			// the next poll re-fetch from the failed record; later records
			// of those partitions are re-fetched with it, keeping order.
			c.client.SetOffsets(failed)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = c.retryBackoff
	}
}

// Close leaves the group cleanly.
func (c *Consumer) Close() {
	c.client.Close()
}
