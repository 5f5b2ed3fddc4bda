package llm

import "github.com/sashabaranov/go-openai/jsonschema"

// SchemaProvider lets a response type carry its own JSON schema. Types that
// do not implement it get a schema reflected from their fields.
type SchemaProvider interface {
	SchemaName() string
	Schema() jsonschema.Definition
}

// VisualAnalysis is one detected visual on a page.
type VisualAnalysis struct {
	VisualDescription   string `json:"visual_description"`
	ContextualRelevance string `json:"contextual_relevance"`
	Analysis            string `json:"analysis"`
	VisualType          string `json:"visual_type"`
}

// VisualAnalysisList is the structured response of the image analysis step.
type VisualAnalysisList struct {
	DetectedVisuals []VisualAnalysis `json:"detected_visuals"`
}

func (VisualAnalysisList) SchemaName() string { return "detected_visuals" }

func (VisualAnalysisList) Schema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"detected_visuals": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"visual_description":   {Type: jsonschema.String},
						"contextual_relevance": {Type: jsonschema.String},
						"analysis":             {Type: jsonschema.String},
						"visual_type":          {Type: jsonschema.String, Enum: VisualTypes},
					},
					Required:             []string{"visual_description", "contextual_relevance", "analysis", "visual_type"},
					AdditionalProperties: false,
				},
			},
		},
		Required:             []string{"detected_visuals"},
		AdditionalProperties: false,
	}
}

// TableAnalysis is one detected table on a page.
type TableAnalysis struct {
	Markdown            string `json:"markdown"`
	ContextualRelevance string `json:"contextual_relevance"`
	Analysis            string `json:"analysis"`
}

// TableAnalysisList is the structured response of the table analysis step.
type TableAnalysisList struct {
	DetectedTables []TableAnalysis `json:"detected_tables"`
}

func (TableAnalysisList) SchemaName() string { return "detected_tables" }

func (TableAnalysisList) Schema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"detected_tables": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"markdown":             {Type: jsonschema.String},
						"contextual_relevance": {Type: jsonschema.String},
						"analysis":             {Type: jsonschema.String},
					},
					Required:             []string{"markdown", "contextual_relevance", "analysis"},
					AdditionalProperties: false,
				},
			},
		},
		Required:             []string{"detected_tables"},
		AdditionalProperties: false,
	}
}

// SearchExpansion is the structured response of the query expansion step.
type SearchExpansion struct {
	ExpandedTerms []string `json:"expanded_terms"`
	RelatedAreas  []string `json:"related_areas"`
}

func (SearchExpansion) SchemaName() string { return "search_expansion" }

func (SearchExpansion) Schema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"expanded_terms": {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
			"related_areas":  {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
		},
		Required:             []string{"expanded_terms", "related_areas"},
		AdditionalProperties: false,
	}
}
