package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/local/docstream/internal/config"
	"github.com/local/docstream/internal/llm"
	"github.com/local/docstream/internal/metrics"
	"github.com/local/docstream/internal/models"
)

const uploadBatchSize = 100

// ConfigurationError reports a contradiction between the configured models
// and the live index that no retry can fix.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "search index configuration: " + e.Reason }

// BatchItemError is one rejected document of a batch upload.
type BatchItemError struct {
	Key        string `json:"key"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"errorMessage"`
}

// PartialBatch reports a batch upload where some documents were rejected.
// The accepted documents are indexed; callers decide whether to continue.
type PartialBatch struct {
	Failed []BatchItemError
}

func (e *PartialBatch) Error() string {
	return fmt.Sprintf("search upload: %d documents rejected", len(e.Failed))
}

// Gateway is the slice of the LLM gateway the search client needs:
// embeddings for upload and query expansion for wide search.
type Gateway interface {
	Embed(ctx context.Context, d *models.Descriptor, text string) ([]float32, error)
	ExpandQuery(ctx context.Context, d *models.Descriptor, query string) (*llm.SearchExpansion, error)
}

// Client talks to the search service over its REST surface: index
// management, document upload and retrieval. All calls run through a
// circuit breaker so a dead search back-end fails fast instead of hanging
// every ingestion job.
type Client struct {
	cfg     config.SearchConfig
	gw      Gateway
	embed   *models.Descriptor
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a search client. The embedding descriptor drives both the
// vector field dimensionality and the server-side vectorizer configuration.
func NewClient(cfg config.SearchConfig, gw Gateway, embed *models.Descriptor) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "search",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("search circuit breaker state change")
		},
	})
	return &Client{
		cfg:     cfg,
		gw:      gw,
		embed:   embed,
		http:    &http.Client{Timeout: 60 * time.Second},
		breaker: breaker,
	}
}

// do runs one REST call through the breaker and returns status and body.
// Only transport failures and 5xx answers count against the breaker.
func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	url := strings.TrimSuffix(c.cfg.Endpoint, "/") + path
	if strings.Contains(path, "?") {
		url += "&api-version=" + c.cfg.APIVersion
	} else {
		url += "?api-version=" + c.cfg.APIVersion
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	type result struct {
		status int
		body   []byte
	}
	out, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("search service %s %s: status %d: %s", method, path, resp.StatusCode, truncate(data))
		}
		return result{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		return 0, nil, err
	}
	r := out.(result)
	return r.status, r.body, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

// CreateOrUpdateIndex pushes the SearchUnit schema to the service. The call
// is idempotent, but a vector dimension that contradicts an existing index
// is rejected up front: the service would otherwise fail every upload.
func (c *Client) CreateOrUpdateIndex(ctx context.Context) error {
	def := buildIndexDefinition(c.cfg.IndexName, c.embed)

	status, body, err := c.do(ctx, http.MethodGet, "/indexes/"+c.cfg.IndexName, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		var existing indexDefinition
		if err := json.Unmarshal(body, &existing); err != nil {
			return fmt.Errorf("parse existing index: %w", err)
		}
		if dims := vectorDimensions(existing); dims != 0 && dims != vectorDimensions(def) {
			return &ConfigurationError{Reason: fmt.Sprintf(
				"index %s has %d-dimensional vectors but model %s produces %d",
				c.cfg.IndexName, dims, c.embed.ModelName, vectorDimensions(def))}
		}
	}

	status, body, err = c.do(ctx, http.MethodPut, "/indexes/"+c.cfg.IndexName, def)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusNoContent {
		return fmt.Errorf("create index %s: status %d: %s", c.cfg.IndexName, status, truncate(body))
	}
	log.Info().Str("index", c.cfg.IndexName).Msg("search index created or updated")
	return nil
}

// Ping checks that the search service answers at all. A 404 for the index
// still counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/indexes/"+c.cfg.IndexName, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("search service: status %d: %s", status, truncate(body))
	}
	return nil
}

func vectorDimensions(def indexDefinition) int {
	for _, f := range def.Fields {
		if f.Name == "text_vector" {
			return f.Dimensions
		}
	}
	return 0
}

// UploadUnits embeds and uploads units in batches. Units without an index_id
// get a fresh random one. Rejected documents of a batch are collected into a
// PartialBatch error; accepted documents stay indexed either way.
func (c *Client) UploadUnits(ctx context.Context, units []SearchUnit) error {
	var failed []BatchItemError

	for start := 0; start < len(units); start += uploadBatchSize {
		end := start + uploadBatchSize
		if end > len(units) {
			end = len(units)
		}

		actions := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			unit := &units[i]
			vec, err := c.gw.Embed(ctx, c.embed, unit.Text)
			if err != nil {
				return fmt.Errorf("embed unit %d: %w", i, err)
			}
			unit.TextVector = vec
			if unit.IndexID == "" {
				unit.IndexID = uuid.NewString()
			}
			action, err := uploadAction(unit)
			if err != nil {
				return err
			}
			actions = append(actions, action)
		}

		status, body, err := c.do(ctx, http.MethodPost, "/indexes/"+c.cfg.IndexName+"/docs/index", map[string]any{"value": actions})
		if err != nil {
			metrics.IncSearch("upload", "error")
			return err
		}
		// 207 means some documents of the batch were rejected.
		if status != http.StatusOK && status != http.StatusMultiStatus {
			metrics.IncSearch("upload", "error")
			return fmt.Errorf("upload batch: status %d: %s", status, truncate(body))
		}

		var resp struct {
			Value []struct {
				Key        string `json:"key"`
				Status     bool   `json:"status"`
				Message    string `json:"errorMessage"`
				StatusCode int    `json:"statusCode"`
			} `json:"value"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("parse upload response: %w", err)
		}
		for _, item := range resp.Value {
			if !item.Status {
				failed = append(failed, BatchItemError{Key: item.Key, StatusCode: item.StatusCode, Message: item.Message})
			}
		}
	}

	if len(failed) > 0 {
		metrics.IncSearch("upload", "partial")
		return &PartialBatch{Failed: failed}
	}
	metrics.IncSearch("upload", "ok")
	log.Info().Int("units", len(units)).Str("index", c.cfg.IndexName).Msg("search units uploaded")
	return nil
}

func uploadAction(unit *SearchUnit) (map[string]any, error) {
	data, err := json.Marshal(unit)
	if err != nil {
		return nil, fmt.Errorf("marshal unit %s: %w", unit.IndexID, err)
	}
	action := map[string]any{}
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, err
	}
	action["@search.action"] = "mergeOrUpload"
	return action, nil
}

// DeleteUnits removes documents by key in one batch.
func (c *Client) DeleteUnits(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	actions := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		actions = append(actions, map[string]any{
			"@search.action": "delete",
			keyFieldName:     id,
		})
	}
	status, body, err := c.do(ctx, http.MethodPost, "/indexes/"+c.cfg.IndexName+"/docs/index", map[string]any{"value": actions})
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusMultiStatus {
		return fmt.Errorf("delete batch: status %d: %s", status, truncate(body))
	}
	return nil
}
