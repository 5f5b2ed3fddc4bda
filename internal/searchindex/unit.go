package searchindex

import "github.com/local/docstream/internal/docmodel"

// Unit types a search unit can carry.
const (
	UnitTypeText  = "text"
	UnitTypeImage = "image"
	UnitTypeTable = "table"
)

// Reserved synthetic page numbers for document-level units.
const (
	PageCondensedText   = -1
	PageTableOfContents = -2
	PageFullText        = -3
)

// SearchUnit is the atomic indexable record: one text-bearing fragment of a
// document together with its provenance. The JSON field names double as the
// index field names.
type SearchUnit struct {
	IndexID                   string                `json:"index_id,omitempty"`
	Metadata                  *docmodel.PDFMetadata `json:"metadata"`
	PageNumber                int64                 `json:"page_number"`
	PageImagePath             string                `json:"page_image_path"`
	UnitType                  string                `json:"unit_type"`
	TextFileCloudStoragePath  string                `json:"text_file_cloud_storage_path,omitempty"`
	PageImageCloudStoragePath string                `json:"page_image_cloud_storage_path,omitempty"`
	Text                      string                `json:"text"`
	TextVector                []float32             `json:"text_vector,omitempty"`
}

// QueryType selects how the service ranks a hybrid search.
const (
	QueryTypeSemantic = "semantic"
	QueryTypeKeyword  = "keyword"
)

// SearchParams tune one retrieval call.
type SearchParams struct {
	VectorFields  string `json:"vector_fields"`
	UnitType      string `json:"unit_type,omitempty"`
	Top           int    `json:"top"`
	TopWideSearch int    `json:"top_wide_search"`
	Exhaustive    bool   `json:"exhaustive"`
	QueryType     string `json:"query_type"`
}

// DefaultSearchParams mirrors the upstream defaults: semantic ranking, three
// results, three expansions per list.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		VectorFields:  "text_vector",
		Top:           3,
		TopWideSearch: 3,
		QueryType:     QueryTypeSemantic,
	}
}

// SearchResult is one hit with the service's native relevance score.
type SearchResult struct {
	Unit  SearchUnit
	Score float64
}
