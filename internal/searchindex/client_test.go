package searchindex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docstream/internal/config"
	"github.com/local/docstream/internal/docmodel"
	"github.com/local/docstream/internal/llm"
	"github.com/local/docstream/internal/models"
)

type fakeGW struct {
	expansion llm.SearchExpansion
	embedErr  error
}

func (f *fakeGW) Embed(_ context.Context, _ *models.Descriptor, _ string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeGW) ExpandQuery(_ context.Context, _ *models.Descriptor, _ string) (*llm.SearchExpansion, error) {
	out := f.expansion
	return &out, nil
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.SearchConfig{
		Endpoint:        srv.URL,
		APIKey:          "test-key",
		IndexName:       "document-index",
		APIVersion:      "2024-07-01",
		WideConcurrency: 4,
	}
	return NewClient(cfg, &fakeGW{}, testEmbedding()), srv
}

func TestCreateOrUpdateIndexFresh(t *testing.T) {
	var putBody indexDefinition
	mux := http.NewServeMux()
	mux.HandleFunc("GET /indexes/document-index", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("api-key"))
		assert.Equal(t, "2024-07-01", r.URL.Query().Get("api-version"))
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("PUT /indexes/document-index", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&putBody))
		w.WriteHeader(http.StatusCreated)
	})

	c, _ := testClient(t, mux)
	require.NoError(t, c.CreateOrUpdateIndex(context.Background()))

	assert.Equal(t, "document-index", putBody.Name)
	assert.Equal(t, 3072, vectorDimensions(putBody))
	require.NotNil(t, putBody.VectorSearch)
	assert.Equal(t, "myVectorizer", putBody.VectorSearch.Vectorizers[0].Name)
}

func TestCreateOrUpdateIndexDimensionMismatch(t *testing.T) {
	existing := buildIndexDefinition("document-index", testEmbedding())
	for i := range existing.Fields {
		if existing.Fields[i].Name == "text_vector" {
			existing.Fields[i].Dimensions = 1536
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /indexes/document-index", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(existing)
	})
	mux.HandleFunc("PUT /indexes/document-index", func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("index must not be updated on a dimension mismatch")
	})

	c, _ := testClient(t, mux)
	err := c.CreateOrUpdateIndex(context.Background())
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "1536")
	assert.Contains(t, cfgErr.Reason, "3072")
}

func uploadResponse(actions []map[string]any, failKeys map[string]bool) map[string]any {
	var value []map[string]any
	for _, a := range actions {
		key := a["index_id"].(string)
		item := map[string]any{"key": key, "status": !failKeys[key], "statusCode": 200}
		if failKeys[key] {
			item["statusCode"] = 422
			item["errorMessage"] = "rejected"
		}
		value = append(value, item)
	}
	return map[string]any{"value": value}
}

func TestUploadUnitsFillsVectorsAndIDs(t *testing.T) {
	var received []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /indexes/document-index/docs/index", func(w http.ResponseWriter, r *http.Request) {
		var batch struct {
			Value []map[string]any `json:"value"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		received = batch.Value
		json.NewEncoder(w).Encode(uploadResponse(batch.Value, nil))
	})

	c, _ := testClient(t, mux)
	units := []SearchUnit{
		{UnitType: UnitTypeText, Text: "alpha", Metadata: &docmodel.PDFMetadata{DocumentID: "doc_1"}},
		{UnitType: UnitTypeTable, Text: "beta", IndexID: "fixed-id", Metadata: &docmodel.PDFMetadata{DocumentID: "doc_1"}},
	}
	require.NoError(t, c.UploadUnits(context.Background(), units))

	// The caller's slice is updated in place.
	assert.NotEmpty(t, units[0].IndexID)
	assert.Equal(t, "fixed-id", units[1].IndexID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, units[0].TextVector)

	require.Len(t, received, 2)
	for _, action := range received {
		assert.Equal(t, "mergeOrUpload", action["@search.action"])
		assert.NotEmpty(t, action["index_id"])
		assert.NotEmpty(t, action["text_vector"])
	}
}

func TestUploadUnitsPartialBatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /indexes/document-index/docs/index", func(w http.ResponseWriter, r *http.Request) {
		var batch struct {
			Value []map[string]any `json:"value"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		w.WriteHeader(http.StatusMultiStatus)
		json.NewEncoder(w).Encode(uploadResponse(batch.Value, map[string]bool{"bad-id": true}))
	})

	c, _ := testClient(t, mux)
	units := []SearchUnit{
		{UnitType: UnitTypeText, Text: "good", IndexID: "good-id", Metadata: &docmodel.PDFMetadata{}},
		{UnitType: UnitTypeText, Text: "bad", IndexID: "bad-id", Metadata: &docmodel.PDFMetadata{}},
	}
	err := c.UploadUnits(context.Background(), units)
	var partial *PartialBatch
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Failed, 1)
	assert.Equal(t, "bad-id", partial.Failed[0].Key)
	assert.Equal(t, 422, partial.Failed[0].StatusCode)
}

func TestUploadUnitsEmbedFailureAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /indexes/document-index/docs/index", func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("no batch should be sent when embedding fails")
	})
	c, _ := testClient(t, mux)
	c.gw = &fakeGW{embedErr: errors.New("embedding backend down")}

	err := c.UploadUnits(context.Background(), []SearchUnit{{Text: "x", Metadata: &docmodel.PDFMetadata{}}})
	require.ErrorContains(t, err, "embedding backend down")
}

func searchResponse(ids ...string) map[string]any {
	var value []map[string]any
	for i, id := range ids {
		value = append(value, map[string]any{
			"@search.score": float64(len(ids) - i),
			"index_id":      id,
			"unit_type":     "text",
			"text":          "content of " + id,
			"page_number":   1,
		})
	}
	return map[string]any{"value": value}
}

func TestHybridSearchSemantic(t *testing.T) {
	var req searchRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /indexes/document-index/docs/search", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(searchResponse("u1", "u2", "u3"))
	})

	c, _ := testClient(t, mux)
	params := DefaultSearchParams()
	params.UnitType = UnitTypeTable

	results, err := c.HybridSearch(context.Background(), "quarterly revenue growth", params)
	require.NoError(t, err)

	assert.Equal(t, "quarterly revenue growth", req.Search)
	assert.Equal(t, 3, req.Top)
	require.Len(t, req.VectorQueries, 1)
	assert.Equal(t, "text", req.VectorQueries[0].Kind)
	assert.Equal(t, "quarterly revenue growth", req.VectorQueries[0].Text)
	assert.Equal(t, "text_vector", req.VectorQueries[0].Fields)
	assert.Equal(t, 50, req.VectorQueries[0].K)
	assert.Equal(t, "semantic", req.QueryType)
	assert.Equal(t, "my-semantic-config", req.SemanticConfiguration)
	assert.Equal(t, "unit_type eq 'table'", req.Filter)

	require.Len(t, results, 3)
	assert.Equal(t, "u1", results[0].Unit.IndexID)
	assert.Equal(t, float64(3), results[0].Score)
	assert.Equal(t, "content of u1", results[0].Unit.Text)
}

func TestHybridSearchKeywordOmitsSemantic(t *testing.T) {
	var req searchRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /indexes/document-index/docs/search", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(searchResponse("u1"))
	})

	c, _ := testClient(t, mux)
	params := DefaultSearchParams()
	params.QueryType = QueryTypeKeyword

	_, err := c.HybridSearch(context.Background(), "revenue", params)
	require.NoError(t, err)
	assert.Empty(t, req.QueryType)
	assert.Empty(t, req.SemanticConfiguration)
	assert.Empty(t, req.Filter)
}

func TestWideSearchDedup(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /indexes/document-index/docs/search", func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		queries = append(queries, req.Search)
		mu.Unlock()
		// Every pass returns the same overlapping pair plus a query-specific hit.
		json.NewEncoder(w).Encode(searchResponse("shared-1", "shared-2", "hit-"+req.Search))
	})

	c, _ := testClient(t, mux)
	c.gw = &fakeGW{expansion: llm.SearchExpansion{
		ExpandedTerms: []string{"income", "income", "earnings", "turnover"},
		RelatedAreas:  []string{"finance"},
	}}
	params := DefaultSearchParams()
	params.TopWideSearch = 2

	results, err := c.WideSearch(context.Background(), "revenue", params, models.NewText(models.ProviderOpenAI, "gpt-4o-mini"))
	require.NoError(t, err)

	// Query set: original, income (repeat dropped), finance.
	mu.Lock()
	assert.Len(t, queries, 6) // 3 distinct queries (dup expansion dropped) x keyword+semantic
	mu.Unlock()

	seen := map[string]int{}
	for _, r := range results {
		seen[r.Unit.IndexID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "duplicate result %s", id)
	}
	// First-seen order: the original query's keyword pass leads.
	assert.Equal(t, "shared-1", results[0].Unit.IndexID)
	assert.Equal(t, "shared-2", results[1].Unit.IndexID)
	assert.Equal(t, "hit-revenue", results[2].Unit.IndexID)
	assert.LessOrEqual(t, len(results), params.Top*2*(1+2*params.TopWideSearch))
}
