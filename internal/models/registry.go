package models

import (
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/local/docstream/internal/config"
)

var (
	// ErrUnknownModel means the descriptor names a model the registry has no
	// credentials block for.
	ErrUnknownModel = errors.New("unknown model")
	// ErrMissingCredentials means the model is known but its key or endpoint
	// is not configured.
	ErrMissingCredentials = errors.New("missing model credentials")
)

// Registry resolves descriptors against configured credentials and binds API
// clients. It is safe to share; Resolve mutates only the descriptor passed in.
type Registry struct {
	cfg config.ModelsConfig
}

func NewRegistry(cfg config.ModelsConfig) *Registry {
	return &Registry{cfg: cfg}
}

// Resolve fills endpoint, key, deployment and API version for the
// descriptor's provider and model, then binds an openai client. Calling it on
// an already-resolved descriptor is a no-op, so callers can resolve lazily at
// every use site.
func (r *Registry) Resolve(d *Descriptor) error {
	if d.Client != nil {
		return nil
	}
	d.Normalize()
	switch d.Provider {
	case ProviderAzure:
		return r.resolveAzure(d)
	case ProviderOpenAI:
		return r.resolveOpenAI(d)
	default:
		return fmt.Errorf("%w: provider %q", ErrUnknownModel, d.Provider)
	}
}

func (r *Registry) resolveAzure(d *Descriptor) error {
	dep, ok := r.azureDeployment(d.ModelName)
	if !ok {
		return fmt.Errorf("%w: azure model %q", ErrUnknownModel, d.ModelName)
	}
	if dep.Resource == "" || dep.Key == "" {
		return fmt.Errorf("%w: azure model %q", ErrMissingCredentials, d.ModelName)
	}
	d.Endpoint = azureEndpoint(dep.Resource)
	d.Key = dep.Key
	d.Deployment = dep.Deployment
	if d.Deployment == "" {
		d.Deployment = d.ModelName
	}
	d.APIVersion = r.cfg.AzureAPIVersion
	if d.IsEmbedding() {
		d.Dimensions = EmbeddingDims(d.ModelName)
	}

	cc := openai.DefaultAzureConfig(d.Key, d.Endpoint)
	if d.APIVersion != "" {
		cc.APIVersion = d.APIVersion
	}
	// Deployments are resolved here; the request model field already carries
	// the deployment name verbatim.
	cc.AzureModelMapperFunc = func(model string) string { return model }
	d.Client = openai.NewClientWithConfig(cc)
	return nil
}

func (r *Registry) resolveOpenAI(d *Descriptor) error {
	name, ok := r.openAIModel(d.ModelName)
	if !ok {
		return fmt.Errorf("%w: openai model %q", ErrUnknownModel, d.ModelName)
	}
	if r.cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: openai model %q", ErrMissingCredentials, d.ModelName)
	}
	d.Key = r.cfg.OpenAIAPIKey
	d.Deployment = name
	if d.IsEmbedding() {
		d.Dimensions = EmbeddingDims(name)
	}
	d.Client = openai.NewClient(d.Key)
	return nil
}

func (r *Registry) azureDeployment(modelName string) (config.AzureDeployment, bool) {
	switch modelName {
	case "gpt-4o":
		return r.cfg.AzureGPT4o, true
	case "o1":
		return r.cfg.AzureO1, true
	case "o1-mini":
		return r.cfg.AzureO1Mini, true
	case "text-embedding-ada-002":
		return r.cfg.AzureEmbeddingAda, true
	case "text-embedding-3-small":
		return r.cfg.AzureEmbeddingSmall, true
	case "text-embedding-3-large":
		return r.cfg.AzureEmbeddingLarge, true
	}
	return config.AzureDeployment{}, false
}

func (r *Registry) openAIModel(modelName string) (string, bool) {
	switch modelName {
	case "gpt-4o":
		return pick(r.cfg.OpenAIGPT4o, "gpt-4o"), true
	case "o1":
		return pick(r.cfg.OpenAIO1, "o1"), true
	case "o1-mini":
		return pick(r.cfg.OpenAIO1Mini, "o1-mini"), true
	case "text-embedding-ada-002", "text-embedding-3-small", "text-embedding-3-large":
		return pick(r.cfg.OpenAIEmbedding, modelName), true
	}
	return "", false
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// azureEndpoint derives the service endpoint from a resource name. Values
// that are already full URLs pass through untouched.
func azureEndpoint(resource string) string {
	if strings.HasPrefix(resource, "https://") {
		return strings.TrimSuffix(resource, "/")
	}
	return fmt.Sprintf("https://%s.openai.azure.com", resource)
}
