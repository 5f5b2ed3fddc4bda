package searchindex

import (
	"github.com/local/docstream/internal/models"
)

// Search service field and index shapes, serialized straight into the REST
// index definition.
type indexField struct {
	Name                string       `json:"name"`
	Type                string       `json:"type"`
	Key                 bool         `json:"key,omitempty"`
	Searchable          *bool        `json:"searchable,omitempty"`
	Filterable          *bool        `json:"filterable,omitempty"`
	Facetable           *bool        `json:"facetable,omitempty"`
	Sortable            *bool        `json:"sortable,omitempty"`
	Dimensions          int          `json:"dimensions,omitempty"`
	VectorSearchProfile string       `json:"vectorSearchProfile,omitempty"`
	Fields              []indexField `json:"fields,omitempty"`
}

type indexDefinition struct {
	Name           string          `json:"name"`
	Fields         []indexField    `json:"fields"`
	VectorSearch   *vectorSearch   `json:"vectorSearch,omitempty"`
	SemanticConfig *semanticSearch `json:"semantic,omitempty"`
}

type vectorSearch struct {
	Algorithms  []vectorAlgorithm  `json:"algorithms"`
	Profiles    []vectorProfile    `json:"profiles"`
	Vectorizers []vectorVectorizer `json:"vectorizers"`
}

type vectorAlgorithm struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type vectorProfile struct {
	Name       string `json:"name"`
	Algorithm  string `json:"algorithm"`
	Vectorizer string `json:"vectorizer"`
}

type vectorVectorizer struct {
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	Parameters openAIembedParams `json:"azureOpenAIParameters"`
}

type openAIembedParams struct {
	ResourceURI  string `json:"resourceUri"`
	DeploymentID string `json:"deploymentId"`
	ModelName    string `json:"modelName"`
	APIKey       string `json:"apiKey"`
}

type semanticSearch struct {
	Configurations []semanticConfiguration `json:"configurations"`
}

type semanticConfiguration struct {
	Name              string         `json:"name"`
	PrioritizedFields semanticFields `json:"prioritizedFields"`
}

type semanticFields struct {
	TitleField    semanticField   `json:"titleField"`
	ContentFields []semanticField `json:"prioritizedContentFields"`
}

type semanticField struct {
	FieldName string `json:"fieldName"`
}

// Vector and semantic configuration names are fixed; the index carries
// exactly one of each.
const (
	vectorProfileName    = "myHnswProfile"
	vectorAlgorithmName  = "myHnsw"
	vectorVectorizerName = "myVectorizer"
	semanticConfigName   = "my-semantic-config"
	keyFieldName         = "index_id"
)

func boolp(v bool) *bool { return &v }

// searchableString follows the service rules for plain strings: searchable,
// filterable, sortable unless multi-valued.
func searchableString(name string, inCollection bool) indexField {
	return indexField{
		Name:       name,
		Type:       "Edm.String",
		Searchable: boolp(true),
		Filterable: boolp(true),
		Facetable:  boolp(false),
		Sortable:   boolp(!inCollection),
	}
}

// simpleScalar covers numeric and boolean fields.
func simpleScalar(name, edmType string, inCollection bool) indexField {
	return indexField{
		Name:       name,
		Type:       edmType,
		Filterable: boolp(true),
		Facetable:  boolp(true),
		Sortable:   boolp(!inCollection),
	}
}

// metadataFields enumerates docmodel.PDFMetadata. Subfields of a complex
// field keep the scalar rules of their own types.
func metadataFields() []indexField {
	return []indexField{
		searchableString("document_id", false),
		searchableString("document_path", false),
		searchableString("filename", false),
		simpleScalar("total_pages", "Edm.Int64", false),
		simpleScalar("processed_pages", "Edm.Int64", false),
		searchableString("output_directory", false),
		searchableString("cloud_storage_path", false),
	}
}

// buildIndexDefinition produces the full index schema for SearchUnit. The
// vector field takes its dimensionality from the embedding descriptor, and
// the vectorizer is configured with the descriptor's endpoint so the service
// can vectorize query strings itself.
func buildIndexDefinition(indexName string, embed *models.Descriptor) indexDefinition {
	dims := embed.Dimensions
	if dims == 0 {
		dims = models.EmbeddingDims(embed.ModelName)
	}

	fields := []indexField{
		{
			Name:       keyFieldName,
			Type:       "Edm.String",
			Key:        true,
			Filterable: boolp(false),
			Facetable:  boolp(false),
			Sortable:   boolp(false),
		},
		{Name: "metadata", Type: "Edm.ComplexType", Fields: metadataFields()},
		simpleScalar("page_number", "Edm.Int64", false),
		searchableString("page_image_path", false),
		searchableString("unit_type", false),
		searchableString("text_file_cloud_storage_path", false),
		searchableString("page_image_cloud_storage_path", false),
		searchableString("text", false),
		{
			Name:                "text_vector",
			Type:                "Collection(Edm.Single)",
			Searchable:          boolp(true),
			Filterable:          boolp(false),
			Facetable:           boolp(false),
			Sortable:            boolp(false),
			Dimensions:          dims,
			VectorSearchProfile: vectorProfileName,
		},
	}

	return indexDefinition{
		Name:   indexName,
		Fields: fields,
		VectorSearch: &vectorSearch{
			Algorithms: []vectorAlgorithm{{Name: vectorAlgorithmName, Kind: "hnsw"}},
			Profiles: []vectorProfile{{
				Name:       vectorProfileName,
				Algorithm:  vectorAlgorithmName,
				Vectorizer: vectorVectorizerName,
			}},
			Vectorizers: []vectorVectorizer{{
				Name: vectorVectorizerName,
				Kind: "azureOpenAI",
				Parameters: openAIembedParams{
					ResourceURI:  embed.Endpoint,
					DeploymentID: embed.Deployment,
					ModelName:    embed.ModelName,
					APIKey:       embed.Key,
				},
			}},
		},
		SemanticConfig: &semanticSearch{
			Configurations: []semanticConfiguration{{
				Name: semanticConfigName,
				PrioritizedFields: semanticFields{
					TitleField:    semanticField{FieldName: "text"},
					ContentFields: []semanticField{{FieldName: "text"}},
				},
			}},
		},
	}
}
