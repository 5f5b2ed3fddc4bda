package docmodel

import (
	"encoding/json"

	"github.com/local/docstream/internal/models"
)

// CustomProcessingStep is one user-declared LLM step, run per page or per
// document. DataModel, when present, is a JSON schema for structured output;
// Model overrides the configured descriptor for this step only.
type CustomProcessingStep struct {
	Name      string             `json:"name"`
	Prompt    string             `json:"prompt"`
	DataModel json.RawMessage    `json:"data_model,omitempty"`
	Model     *models.Descriptor `json:"model,omitempty"`
}

// PipelineConfiguration is the recipe for one document run. It is the
// persisted contract of the upload-JSON container: client handles never
// serialize, and LoadPipelineConfiguration rebuilds typed descriptors.
type PipelineConfiguration struct {
	PDFPath         string `json:"pdf_path"`
	OutputDirectory string `json:"output_directory,omitempty"`

	MultimodalModel *models.Descriptor `json:"multimodal_model,omitempty"`
	TextModel       *models.Descriptor `json:"text_model,omitempty"`

	ProcessPagesAsJPG             bool `json:"process_pages_as_jpg"`
	ProcessText                   bool `json:"process_text"`
	ProcessImages                 bool `json:"process_images"`
	ProcessTables                 bool `json:"process_tables"`
	SaveTextFiles                 bool `json:"save_text_files"`
	GenerateCondensedText         bool `json:"generate_condensed_text"`
	GenerateTableOfContents       bool `json:"generate_table_of_contents"`
	ResumeProcessingIfInterrupted bool `json:"resume_processing_if_interrupted"`

	TranslateFullText      []string `json:"translate_full_text,omitempty"`
	TranslateCondensedText []string `json:"translate_condensed_text,omitempty"`

	CustomPageProcessingSteps     []CustomProcessingStep `json:"custom_page_processing_steps,omitempty"`
	CustomDocumentProcessingSteps []CustomProcessingStep `json:"custom_document_processing_steps,omitempty"`
}

// DefaultPipelineConfiguration returns the configuration the prepare helper
// emits: every stage on, resume on, no translations or custom steps.
func DefaultPipelineConfiguration(pdfPath string) *PipelineConfiguration {
	return &PipelineConfiguration{
		PDFPath:                       pdfPath,
		MultimodalModel:               models.NewMultimodal("", ""),
		TextModel:                     models.NewText("", ""),
		ProcessText:                   true,
		ProcessImages:                 true,
		ProcessTables:                 true,
		SaveTextFiles:                 true,
		GenerateCondensedText:         true,
		GenerateTableOfContents:       true,
		ResumeProcessingIfInterrupted: true,
	}
}

// SaveToJSON persists the configuration. Descriptor client handles are
// excluded from serialization, so the file is safe to hand to the queue.
func (c *PipelineConfiguration) SaveToJSON(path string) error {
	return SaveJSON(path, c)
}

// LoadPipelineConfiguration reads a configuration file and rebuilds the
// descriptor families: the structural slots fix the multimodal and text
// descriptors, and per-step descriptors are classified by model name, since
// reasoning models are text-only.
func LoadPipelineConfiguration(path string) (*PipelineConfiguration, error) {
	c := &PipelineConfiguration{}
	if err := LoadJSON(path, c); err != nil {
		return nil, err
	}
	c.normalize()
	return c, nil
}

// ParsePipelineConfiguration is LoadPipelineConfiguration for in-memory JSON.
func ParsePipelineConfiguration(data []byte) (*PipelineConfiguration, error) {
	c := &PipelineConfiguration{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	c.normalize()
	return c, nil
}

func (c *PipelineConfiguration) normalize() {
	if c.MultimodalModel == nil {
		c.MultimodalModel = models.NewMultimodal("", "")
	}
	c.MultimodalModel.Family = models.FamilyMultimodal
	if c.TextModel == nil {
		c.TextModel = models.NewText("", "")
	}
	c.TextModel.Family = models.FamilyText
	classify := func(steps []CustomProcessingStep) {
		for i := range steps {
			d := steps[i].Model
			if d == nil {
				continue
			}
			if d.IsReasoning() {
				d.Family = models.FamilyText
			} else {
				d.Family = models.FamilyMultimodal
			}
		}
	}
	classify(c.CustomPageProcessingSteps)
	classify(c.CustomDocumentProcessingSteps)
}
