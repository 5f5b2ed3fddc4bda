package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docstream/internal/config"
)

func testQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	q, err := New(config.QueueConfig{
		RedisURL:        "redis://" + mr.Addr(),
		Stream:          "docstream:events",
		Group:           "ingest-workers",
		DLQStream:       "docstream:events:dlq",
		MaxMessageCount: 10,
		MaxWaitTime:     10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func TestPublishFetchAck(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, []byte(`{"id":"evt-1"}`)))
	require.NoError(t, q.Publish(ctx, []byte(`{"id":"evt-2"}`)))

	batch, err := q.Fetch(ctx, "worker-1")
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, `{"id":"evt-1"}`, string(batch[0].Payload))
	assert.Equal(t, `{"id":"evt-2"}`, string(batch[1].Payload))

	for _, msg := range batch {
		require.NoError(t, q.Ack(ctx, msg.ID))
	}

	// Acked messages are not redelivered.
	batch, err = q.Fetch(ctx, "worker-1")
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestFetchEmptyStream(t *testing.T) {
	q, _ := testQueue(t)
	batch, err := q.Fetch(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestEventsBeforeGroupCreationAreDelivered(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.QueueConfig{
		RedisURL:        "redis://" + mr.Addr(),
		Stream:          "docstream:events",
		Group:           "ingest-workers",
		DLQStream:       "docstream:events:dlq",
		MaxMessageCount: 10,
		MaxWaitTime:     10 * time.Millisecond,
	}

	// The publisher side (prepare CLI) may run before the consumer exists.
	publisher, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), []byte("early")))
	require.NoError(t, publisher.Close())

	consumer, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })

	batch, err := consumer.Fetch(context.Background(), "worker-1")
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "early", string(batch[0].Payload))
}

func TestConsumerGroupRecreationTolerated(t *testing.T) {
	q, mr := testQueue(t)

	// Second connect against the same stream and group must not fail.
	q2, err := New(config.QueueConfig{
		RedisURL:        "redis://" + mr.Addr(),
		Stream:          q.cfg.Stream,
		Group:           q.cfg.Group,
		DLQStream:       q.cfg.DLQStream,
		MaxMessageCount: 10,
		MaxWaitTime:     10 * time.Millisecond,
	})
	require.NoError(t, err)
	q2.Close()
}

func TestDeadLetter(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	require.NoError(t, q.DeadLetter(ctx, []byte("broken event"), "parse error"))

	entries, err := q.client.XRange(ctx, "docstream:events:dlq", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "parse error", entries[0].Values["reason"])
}
