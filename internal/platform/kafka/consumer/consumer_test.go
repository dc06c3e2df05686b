package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"lifeline/internal/platform/logger"
	"lifeline/pkg/testutil"
)

// scriptedClient serves pre-built fetches in order and records every commit
// and rewind. Once the script is drained it behaves like a closed client so
// Run terminates.
type scriptedClient struct {
	fetches []kgo.Fetches
	commits [][]*kgo.Record
	rewinds []map[string]map[int32]kgo.EpochOffset
}

func (c *scriptedClient) PollFetches(context.Context) kgo.Fetches {
	if len(c.fetches) == 0 {
		return closedFetches()
	}
	next := c.fetches[0]
	c.fetches = c.fetches[1:]
	return next
}

func (c *scriptedClient) CommitRecords(_ context.Context, rs ...*kgo.Record) error {
	c.commits = append(c.commits, rs)
	return nil
}

func (c *scriptedClient) SetOffsets(setOffsets map[string]map[int32]kgo.EpochOffset) {
	c.rewinds = append(c.rewinds, setOffsets)
}

func (c *scriptedClient) Close() {}

// closedFetches mirrors the single injected fetch kgo returns from polls on a
// closed client.
func closedFetches() kgo.Fetches {
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Partitions: []kgo.FetchPartition{{Err: kgo.ErrClientClosed}},
	}}}}
}

type handlerFunc func(ctx context.Context, msg *Message) error

func (f handlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

func newTestConsumer(client *scriptedClient, h Handler) *Consumer {
	return &Consumer{
		client:       client,
		handler:      h,
		logger:       logger.NewNop(),
		pollTimeout:  10 * time.Millisecond,
		retryBackoff: time.Millisecond,
	}
}

func record(topic string, partition int32, offset int64, value string) *kgo.Record {
	return &kgo.Record{Topic: topic, Partition: partition, Offset: offset, Value: []byte(value)}
}

func fetchOf(topic string, partition int32, recs ...*kgo.Record) kgo.Fetches {
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      topic,
		Partitions: []kgo.FetchPartition{{Partition: partition, Records: recs}},
	}}}}
}

func committedOffsets(commit []*kgo.Record) []int64 {
	offsets := make([]int64, 0, len(commit))
	for _, rec := range commit {
		offsets = append(offsets, rec.Offset)
	}
	return offsets
}

func TestRun_FailedRecordIsRewoundAndRedelivered(t *testing.T) {
	const topic = "life-events"

	r0 := record(topic, 0, 0, "r0")
	r1 := record(topic, 0, 1, "r1")
	r2 := record(topic, 0, 2, "r2")

	var (
		client *scriptedClient
		cons   *Consumer
		seen   []string
	)

	testutil.Given(t, "a batch whose second record fails once with a transient error", func(t *testing.T) {
		client = &scriptedClient{fetches: []kgo.Fetches{
			fetchOf(topic, 0, r0, r1, r2),
			// What the broker serves again after the rewind to offset 1.
			fetchOf(topic, 0, r1, r2),
		}}
		failures := 1
		cons = newTestConsumer(client, handlerFunc(func(_ context.Context, msg *Message) error {
			seen = append(seen, string(msg.Value))
			if string(msg.Value) == "r1" && failures > 0 {
				failures--
				return errors.New("registry unreachable")
			}
			return nil
		}))
	})

	testutil.When(t, "the consumer drains the scripted fetches", func(t *testing.T) {
		err := cons.Run(context.Background())
		require.EqualError(t, err, "kafka client closed")
	})

	testutil.Then(t, "the partition was rewound to the failed record", func(t *testing.T) {
		require.Len(t, client.rewinds, 1)
		require.Contains(t, client.rewinds[0], topic)
		assert.Equal(t, int64(1), client.rewinds[0][topic][0].Offset)
	})

	testutil.Then(t, "every record was handled, the failed one twice and in order", func(t *testing.T) {
		assert.Equal(t, []string{"r0", "r1", "r1", "r2"}, seen)
	})

	testutil.Then(t, "offsets were never committed past the failed record", func(t *testing.T) {
		require.Len(t, client.commits, 2)
		assert.Equal(t, []int64{0}, committedOffsets(client.commits[0]))
		assert.Equal(t, []int64{1, 2}, committedOffsets(client.commits[1]))
	})
}

func TestRun_FailureOnOnePartitionDoesNotBlockOthers(t *testing.T) {
	const topic = "life-events"

	a0 := record(topic, 0, 0, "a0")
	b0 := record(topic, 1, 0, "b0")

	client := &scriptedClient{fetches: []kgo.Fetches{
		{{Topics: []kgo.FetchTopic{{
			Topic: topic,
			Partitions: []kgo.FetchPartition{
				{Partition: 0, Records: []*kgo.Record{a0}},
				{Partition: 1, Records: []*kgo.Record{b0}},
			},
		}}}},
	}}
	cons := newTestConsumer(client, handlerFunc(func(_ context.Context, msg *Message) error {
		if msg.Partition == 0 {
			return errors.New("registry unreachable")
		}
		return nil
	}))

	err := cons.Run(context.Background())
	require.EqualError(t, err, "kafka client closed")

	require.Len(t, client.commits, 1)
	assert.Equal(t, []int64{0}, committedOffsets(client.commits[0]))
	assert.Equal(t, int32(1), client.commits[0][0].Partition, "the healthy partition still commits")

	require.Len(t, client.rewinds, 1)
	rewound := client.rewinds[0][topic]
	require.Contains(t, rewound, int32(0))
	assert.NotContains(t, rewound, int32(1))
}
