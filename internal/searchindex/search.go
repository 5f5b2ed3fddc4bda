package searchindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/docstream/internal/metrics"
	"github.com/local/docstream/internal/models"
)

// The service vectorizes the query string itself; k is how many nearest
// neighbors feed the fused ranking.
const vectorKNearest = 50

type vectorQuery struct {
	Kind       string `json:"kind"`
	Text       string `json:"text"`
	Fields     string `json:"fields"`
	K          int    `json:"k"`
	Exhaustive bool   `json:"exhaustive"`
}

type searchRequest struct {
	Search                string        `json:"search"`
	Top                   int           `json:"top"`
	VectorQueries         []vectorQuery `json:"vectorQueries"`
	Filter                string        `json:"filter,omitempty"`
	QueryType             string        `json:"queryType,omitempty"`
	SemanticConfiguration string        `json:"semanticConfiguration,omitempty"`
}

type searchHit struct {
	Score float64 `json:"@search.score"`
	SearchUnit
}

// HybridSearch runs one retrieval combining the keyword query with a
// server-vectorized nearest-neighbor query, semantically re-ranked when
// params ask for it. Results arrive in the service's relevance order.
func (c *Client) HybridSearch(ctx context.Context, query string, params SearchParams) ([]SearchResult, error) {
	req := searchRequest{
		Search: query,
		Top:    params.Top,
		VectorQueries: []vectorQuery{{
			Kind:       "text",
			Text:       query,
			Fields:     params.VectorFields,
			K:          vectorKNearest,
			Exhaustive: params.Exhaustive,
		}},
	}
	if params.QueryType == QueryTypeSemantic {
		req.QueryType = QueryTypeSemantic
		req.SemanticConfiguration = semanticConfigName
	}
	if params.UnitType != "" {
		req.Filter = fmt.Sprintf("unit_type eq '%s'", params.UnitType)
	}

	status, body, err := c.do(ctx, http.MethodPost, "/indexes/"+c.cfg.IndexName+"/docs/search", req)
	if err != nil {
		metrics.IncSearch("hybrid", "error")
		return nil, err
	}
	if status != http.StatusOK {
		metrics.IncSearch("hybrid", "error")
		return nil, fmt.Errorf("search: status %d: %s", status, truncate(body))
	}

	var resp struct {
		Value []searchHit `json:"value"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Value))
	for _, hit := range resp.Value {
		results = append(results, SearchResult{Unit: hit.SearchUnit, Score: hit.Score})
	}
	metrics.IncSearch("hybrid", "ok")
	return results, nil
}

// WideSearch expands the query with the text model, fans the expanded query
// set out as concurrent keyword and semantic passes, and merges the hits in
// pass order, deduplicated by index_id.
func (c *Client) WideSearch(ctx context.Context, query string, params SearchParams, textModel *models.Descriptor) ([]SearchResult, error) {
	expansion, err := c.gw.ExpandQuery(ctx, textModel, query)
	if err != nil {
		return nil, fmt.Errorf("expand query: %w", err)
	}

	k := params.TopWideSearch
	queries := []string{query}
	seenQueries := map[string]struct{}{query: {}}
	for _, list := range [][]string{firstK(expansion.ExpandedTerms, k), firstK(expansion.RelatedAreas, k)} {
		for _, q := range list {
			if _, dup := seenQueries[q]; dup {
				continue
			}
			seenQueries[q] = struct{}{}
			queries = append(queries, q)
		}
	}

	// One slot per (query, query type) pass; slot order keeps the merge
	// deterministic regardless of completion order.
	type pass struct {
		query     string
		queryType string
	}
	passes := make([]pass, 0, 2*len(queries))
	for _, q := range queries {
		passes = append(passes, pass{query: q, queryType: QueryTypeKeyword})
		passes = append(passes, pass{query: q, queryType: QueryTypeSemantic})
	}

	concurrency := c.cfg.WideConcurrency
	if concurrency <= 0 {
		concurrency = 25
	}
	sem := make(chan struct{}, concurrency)
	slots := make([][]SearchResult, len(passes))

	var wg sync.WaitGroup
	for i, p := range passes {
		wg.Add(1)
		go func(i int, p pass) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			passParams := params
			passParams.QueryType = p.queryType
			hits, err := c.HybridSearch(ctx, p.query, passParams)
			if err != nil {
				log.Error().Err(err).Str("query", p.query).Str("query_type", p.queryType).Msg("wide search pass failed")
				return
			}
			slots[i] = hits
		}(i, p)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var merged []SearchResult
	for _, hits := range slots {
		for _, hit := range hits {
			if _, dup := seen[hit.Unit.IndexID]; dup {
				continue
			}
			seen[hit.Unit.IndexID] = struct{}{}
			merged = append(merged, hit)
		}
	}
	metrics.IncSearch("wide", "ok")
	return merged, nil
}

func firstK(items []string, k int) []string {
	if len(items) <= k {
		return items
	}
	return items[:k]
}
