package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/docstream/internal/config"
	"github.com/local/docstream/internal/metrics"
)

// Message is one raw event read from the stream.
type Message struct {
	ID      string
	Payload []byte
}

// Queue is the blob-created event stream: Redis Streams with a consumer
// group on the read side and a dead-letter stream for events that could not
// be parsed or processed.
type Queue struct {
	client *redis.Client
	cfg    config.QueueConfig
}

// New connects to Redis and ensures the stream and consumer group exist.
func New(cfg config.QueueConfig) (*Queue, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	// Start the group at 0 so events published before the service came up
	// are still delivered. MKSTREAM creates the stream when missing.
	if err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err(); err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &Queue{client: client, cfg: cfg}, nil
}

func isBusyGroup(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.ErrBusyGroup) {
		return true
	}
	return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

func (q *Queue) Close() error { return q.client.Close() }

// Ping checks connectivity for health probes.
func (q *Queue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// Publish appends one event to the stream as a single-field entry.
func (q *Queue) Publish(ctx context.Context, payload []byte) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]any{"data": string(payload)},
	}).Err()
}

// Fetch reads up to MaxMessageCount pending events for this consumer,
// blocking up to MaxWaitTime. An empty batch is not an error.
func (q *Queue) Fetch(ctx context.Context, consumer string) ([]Message, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    int64(q.cfg.MaxMessageCount),
		Block:    q.cfg.MaxWaitTime,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var batch []Message
	for _, stream := range res {
		for _, msg := range stream.Messages {
			batch = append(batch, Message{ID: msg.ID, Payload: payloadOf(msg)})
		}
	}
	return batch, nil
}

func payloadOf(msg redis.XMessage) []byte {
	switch v := msg.Values["data"].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}

// Ack marks one event as handled. Events are acked regardless of processing
// outcome; failures go to the dead-letter stream instead of being retried.
func (q *Queue) Ack(ctx context.Context, msgID string) error {
	if msgID == "" {
		return nil
	}
	return q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, msgID).Err()
}

// DeadLetter records an event that could not be processed.
func (q *Queue) DeadLetter(ctx context.Context, payload []byte, reason string) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.DLQStream,
		Values: map[string]any{"data": string(payload), "reason": reason},
	}).Err()
	if err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("dead-letter write failed")
	}
	return err
}

// ReportDepths pushes current stream lengths to the metrics registry.
func (q *Queue) ReportDepths(ctx context.Context) {
	pipe := q.client.Pipeline()
	xlen := pipe.XLen(ctx, q.cfg.Stream)
	dlq := pipe.XLen(ctx, q.cfg.DLQStream)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return
	}
	metrics.SetQueueDepth("events", xlen.Val())
	metrics.SetQueueDepth("dead_letter", dlq.Val())
}
