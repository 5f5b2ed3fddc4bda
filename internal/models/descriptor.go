package models

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Provider identifies an LLM back-end vendor.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
)

// Family identifies what a descriptor is used for.
const (
	FamilyMultimodal = "chat-multimodal"
	FamilyText       = "chat-text"
	FamilyEmbedding  = "embedding"
)

// Descriptor identifies one LLM or embedding back-end. A freshly built
// descriptor carries only provider/model selection; Registry.Resolve fills
// endpoint, key and deployment and binds the client exactly once.
type Descriptor struct {
	Provider        string `json:"provider"`
	Family          string `json:"family,omitempty"`
	ModelName       string `json:"model_name"`
	ReasoningEffort string `json:"reasoning_efforts,omitempty"`

	Endpoint   string `json:"endpoint,omitempty"`
	Key        string `json:"key,omitempty"`
	Deployment string `json:"model,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`

	Client *openai.Client `json:"-"`
}

// NewMultimodal returns a multimodal chat descriptor with upstream defaults.
func NewMultimodal(provider, modelName string) *Descriptor {
	if provider == "" {
		provider = ProviderAzure
	}
	if modelName == "" {
		modelName = "gpt-4o"
	}
	d := &Descriptor{Provider: provider, Family: FamilyMultimodal, ModelName: modelName}
	if d.IsReasoning() {
		d.ReasoningEffort = "medium"
	}
	return d
}

// NewText returns a text chat descriptor with upstream defaults.
func NewText(provider, modelName string) *Descriptor {
	if provider == "" {
		provider = ProviderAzure
	}
	if modelName == "" {
		modelName = "gpt-4o"
	}
	d := &Descriptor{Provider: provider, Family: FamilyText, ModelName: modelName}
	if d.IsReasoning() {
		d.ReasoningEffort = "medium"
	}
	return d
}

// NewEmbedding returns an embedding descriptor with upstream defaults.
func NewEmbedding(provider, modelName string) *Descriptor {
	if provider == "" {
		provider = ProviderAzure
	}
	if modelName == "" {
		modelName = "text-embedding-3-small"
	}
	return &Descriptor{Provider: provider, Family: FamilyEmbedding, ModelName: modelName}
}

// IsReasoning reports whether the model takes a reasoning effort instead of
// temperature (o1/o3/o4 families).
func (d *Descriptor) IsReasoning() bool {
	n := strings.ToLower(d.ModelName)
	return strings.HasPrefix(n, "o1") || strings.HasPrefix(n, "o3") || strings.HasPrefix(n, "o4")
}

// IsEmbedding reports whether the descriptor names an embedding model.
func (d *Descriptor) IsEmbedding() bool {
	return strings.HasPrefix(strings.ToLower(d.ModelName), "text-embedding")
}

// Normalize backfills the family tag on descriptors loaded from JSON that was
// written before the field existed. Configuration blobs choose multimodal vs
// text slots structurally, so only embeddings need detection.
func (d *Descriptor) Normalize() {
	if d.Family != "" {
		return
	}
	if d.IsEmbedding() {
		d.Family = FamilyEmbedding
		return
	}
	d.Family = FamilyText
}

// EmbeddingDims maps a known embedding model to its vector dimension.
func EmbeddingDims(modelName string) int {
	if modelName == "text-embedding-3-large" {
		return 3072
	}
	return 1536
}
