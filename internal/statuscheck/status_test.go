package statuscheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubBlobs struct{ err error }

func (s stubBlobs) ListContainers(context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []string{"output"}, nil
}

func TestSummaryAllHealthy(t *testing.T) {
	c := New(Options{
		Redis:     stubPinger{},
		Blobs:     stubBlobs{},
		Manifest:  stubPinger{},
		Search:    stubPinger{},
		OpenAIKey: "",
	})

	s := c.Summary(context.Background())
	assert.True(t, s.Redis.OK)
	assert.True(t, s.BlobStorage.OK)
	assert.True(t, s.DocumentDB.OK)
	assert.True(t, s.SearchIndex.OK)
	assert.False(t, s.OpenAI.OK)
	assert.Equal(t, "API key missing", s.OpenAI.Message)
	assert.False(t, s.Healthy())
}

func TestSummaryReportsFailures(t *testing.T) {
	c := New(Options{
		Redis:    stubPinger{err: errors.New("connection refused")},
		Blobs:    stubBlobs{err: errors.New("NoSuchBucket")},
		Manifest: stubPinger{},
		Search:   nil,
	})

	s := c.Summary(context.Background())
	assert.False(t, s.Redis.OK)
	assert.Equal(t, "connection refused", s.Redis.Message)
	assert.False(t, s.BlobStorage.OK)
	assert.Equal(t, "NoSuchBucket", s.BlobStorage.Message)
	assert.True(t, s.DocumentDB.OK)
	assert.False(t, s.SearchIndex.OK)
	assert.Equal(t, "client unavailable", s.SearchIndex.Message)
	assert.False(t, s.Healthy())
}
