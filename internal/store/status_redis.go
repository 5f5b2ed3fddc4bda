package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Status is the externally visible processing state of one document.
type Status struct {
	State          string     `json:"state"`
	ProcessedPages int        `json:"processed_pages"`
	TotalPages     int        `json:"total_pages"`
	Message        string     `json:"message"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

const (
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// Status entries outlive the job by a week so late readers still see the outcome.
const statusTTL = 7 * 24 * time.Hour

// RedisStatus keeps per-document progress in Redis hashes so any instance
// can answer status queries for jobs running elsewhere.
type RedisStatus struct {
	client *redis.Client
}

func NewRedisStatus(redisURL string) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStatus{client: c}, nil
}

func (s *RedisStatus) key(documentID string) string {
	return "docstream:status:" + documentID
}

func (s *RedisStatus) Set(ctx context.Context, documentID string, st Status) error {
	now := time.Now().UTC()
	m := map[string]interface{}{
		"state":           st.State,
		"processed_pages": st.ProcessedPages,
		"total_pages":     st.TotalPages,
		"message":         st.Message,
		"updated_at":      now.Format(time.RFC3339Nano),
	}
	key := s.key(documentID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, m)
	pipe.Expire(ctx, key, statusTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, documentID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(documentID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	st := Status{
		State:   res["state"],
		Message: res["message"],
	}
	st.ProcessedPages, _ = strconv.Atoi(res["processed_pages"])
	st.TotalPages, _ = strconv.Atoi(res["total_pages"])
	if v := res["updated_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.UpdatedAt = &t
		}
	}
	return st, true, nil
}

// Report implements the pipeline progress callback. A write failure only
// degrades the status endpoint, so it is logged and swallowed.
func (s *RedisStatus) Report(ctx context.Context, documentID string, processed, total int, message string) {
	state := StateProcessing
	if total > 0 && processed >= total {
		state = StateCompleted
	}
	st := Status{
		State:          state,
		ProcessedPages: processed,
		TotalPages:     total,
		Message:        message,
	}
	if err := s.Set(ctx, documentID, st); err != nil {
		log.Warn().Err(err).Str("document_id", documentID).Msg("status update failed")
	}
}

// MarkFailed records a terminal failure for the document.
func (s *RedisStatus) MarkFailed(ctx context.Context, documentID, message string) {
	cur, ok, err := s.Get(ctx, documentID)
	if err != nil || !ok {
		cur = Status{}
	}
	cur.State = StateFailed
	cur.Message = message
	if err := s.Set(ctx, documentID, cur); err != nil {
		log.Warn().Err(err).Str("document_id", documentID).Msg("status update failed")
	}
}

func (s *RedisStatus) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStatus) Close() error { return s.client.Close() }
