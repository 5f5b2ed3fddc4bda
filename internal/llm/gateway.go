package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/local/docstream/internal/config"
	"github.com/local/docstream/internal/metrics"
	"github.com/local/docstream/internal/models"
)

const defaultTemperature = 0.2

// Gateway is the single LLM entry point. It resolves descriptors lazily,
// shapes messages for each model family and retries transient failures with
// exponential backoff. Responses are never cached.
type Gateway struct {
	reg *models.Registry
	cfg config.GatewayConfig
}

func NewGateway(reg *models.Registry, cfg config.GatewayConfig) *Gateway {
	return &Gateway{reg: reg, cfg: cfg}
}

// Chat sends a prompt with optional image attachments and returns the
// completion text at the default temperature.
func (g *Gateway) Chat(ctx context.Context, d *models.Descriptor, prompt string, images ...string) (string, error) {
	return g.ChatTemp(ctx, d, prompt, defaultTemperature, images...)
}

// ChatTemp is Chat with an explicit temperature. Reasoning models ignore it.
func (g *Gateway) ChatTemp(ctx context.Context, d *models.Descriptor, prompt string, temperature float32, images ...string) (string, error) {
	if err := g.reg.Resolve(d); err != nil {
		return "", err
	}
	msgs, err := chatMessages(prompt, images)
	if err != nil {
		return "", err
	}
	req := openai.ChatCompletionRequest{Model: d.Deployment, Messages: msgs}
	tuneChat(&req, d, temperature)

	var content string
	err = g.withRetry(ctx, d, "chat", func(cctx context.Context) error {
		resp, err := d.Client.CreateChatCompletion(cctx, req)
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyCompletion
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

// ChatStructured sends a prompt with optional images and parses the response
// into T under a strict JSON schema. T may implement SchemaProvider to supply
// a hand-built schema; otherwise one is reflected from its fields.
func ChatStructured[T any](ctx context.Context, g *Gateway, d *models.Descriptor, prompt string, images ...string) (T, error) {
	var out T
	name, def, err := schemaFor(out)
	if err != nil {
		return out, err
	}
	raw, err := g.chatStructured(ctx, d, prompt, images, name, def)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrSchemaViolation, name, err)
	}
	return out, nil
}

// ChatStructuredRaw runs a structured call against a caller-supplied JSON
// schema and returns the raw JSON body. Custom processing steps declare their
// schemas this way.
func (g *Gateway) ChatStructuredRaw(ctx context.Context, d *models.Descriptor, prompt, schemaName string, schema json.RawMessage, images ...string) (json.RawMessage, error) {
	var def jsonschema.Definition
	if err := json.Unmarshal(schema, &def); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", schemaName, err)
	}
	return g.chatStructured(ctx, d, prompt, images, schemaName, &def)
}

// Embed returns the embedding vector for one text.
func (g *Gateway) Embed(ctx context.Context, d *models.Descriptor, text string) ([]float32, error) {
	if err := g.reg.Resolve(d); err != nil {
		return nil, err
	}
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(d.Deployment),
	}
	var vec []float32
	err := g.withRetry(ctx, d, "embed", func(cctx context.Context) error {
		resp, err := d.Client.CreateEmbeddings(cctx, req)
		if err != nil {
			return classify(err)
		}
		if len(resp.Data) == 0 {
			return ErrEmptyCompletion
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	return vec, err
}

// ExpandQuery asks the text model for search expansions of a query.
func (g *Gateway) ExpandQuery(ctx context.Context, d *models.Descriptor, query string) (*SearchExpansion, error) {
	out, err := ChatStructured[SearchExpansion](ctx, g, d, BuildSearchExpansionPrompt(query))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gateway) chatStructured(ctx context.Context, d *models.Descriptor, prompt string, images []string, name string, def *jsonschema.Definition) (json.RawMessage, error) {
	if err := g.reg.Resolve(d); err != nil {
		return nil, err
	}
	msgs, err := structuredMessages(prompt, images)
	if err != nil {
		return nil, err
	}
	req := openai.ChatCompletionRequest{
		Model:    d.Deployment,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: def,
				Strict: true,
			},
		},
	}
	tuneStructured(&req, d)

	var content string
	err = g.withRetry(ctx, d, "chat_structured", func(cctx context.Context) error {
		resp, err := d.Client.CreateChatCompletion(cctx, req)
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyCompletion
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(content)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s: response is not valid JSON", ErrSchemaViolation, name)
	}
	return raw, nil
}

// chatMessages builds the two user-role messages of a plain call. Attached
// images turn the second message into a multi-part body.
func chatMessages(prompt string, images []string) ([]openai.ChatCompletionMessage, error) {
	if len(images) == 0 {
		return []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: chatPreamble},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		}, nil
	}
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	imgs, err := imageParts(images)
	if err != nil {
		return nil, err
	}
	parts = append(parts, imgs...)
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: chatPreamble},
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	}, nil
}

// structuredMessages always uses a multi-part second message, with the prompt
// first and images after.
func structuredMessages(prompt string, images []string) ([]openai.ChatCompletionMessage, error) {
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	imgs, err := imageParts(images)
	if err != nil {
		return nil, err
	}
	parts = append(parts, imgs...)
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: structuredPreamble},
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	}, nil
}

func schemaFor(v any) (string, *jsonschema.Definition, error) {
	if sp, ok := v.(SchemaProvider); ok {
		def := sp.Schema()
		return sp.SchemaName(), &def, nil
	}
	def, err := jsonschema.GenerateSchemaForType(v)
	if err != nil {
		return "", nil, fmt.Errorf("generate schema: %w", err)
	}
	return "response", def, nil
}

// tuneChat applies per-family request knobs: temperature for chat models,
// reasoning effort for o1/o3/o4, nothing at all for o1-mini.
func tuneChat(req *openai.ChatCompletionRequest, d *models.Descriptor, temperature float32) {
	if isO1Mini(d) {
		return
	}
	if d.IsReasoning() {
		req.ReasoningEffort = reasoningEffort(d)
		return
	}
	req.Temperature = temperature
}

// tuneStructured never sets temperature; structured calls run at back-end
// defaults.
func tuneStructured(req *openai.ChatCompletionRequest, d *models.Descriptor) {
	if isO1Mini(d) {
		return
	}
	if d.IsReasoning() {
		req.ReasoningEffort = reasoningEffort(d)
	}
}

func isO1Mini(d *models.Descriptor) bool {
	return strings.EqualFold(d.ModelName, "o1-mini")
}

func reasoningEffort(d *models.Descriptor) string {
	if d.ReasoningEffort == "" {
		return "medium"
	}
	return d.ReasoningEffort
}

func classify(err error) error {
	if code, ok := statusCode(err); ok && code == 429 {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRateLimited(err):
		return "rate_limited"
	default:
		return "error"
	}
}

// withRetry runs fn under the per-request timeout, retrying transient
// failures with doubling backoff plus jitter until the elapsed budget runs
// out.
func (g *Gateway) withRetry(ctx context.Context, d *models.Descriptor, op string, fn func(context.Context) error) error {
	deadline := time.Now().Add(g.cfg.RetryMaxElapsed)
	delay := g.cfg.RetryBaseDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	for attempt := 1; ; attempt++ {
		cctx := ctx
		cancel := context.CancelFunc(func() {})
		if g.cfg.RequestTimeout > 0 {
			cctx, cancel = context.WithTimeout(ctx, g.cfg.RequestTimeout)
		}
		callStart := time.Now()
		err := fn(cctx)
		cancel()
		metrics.ObserveLLM(d.Provider, d.Family, resultLabel(err), time.Since(callStart))

		if err == nil {
			return nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return err
		}
		if g.cfg.RetryMaxElapsed > 0 && time.Now().Add(delay).After(deadline) {
			return fmt.Errorf("%s: retries exhausted: %w", op, err)
		}

		wait := delay
		if g.cfg.RetryJitter > 0 {
			wait += time.Duration(rand.Int63n(int64(g.cfg.RetryJitter)))
		}
		log.Warn().
			Str("op", op).
			Str("model", d.ModelName).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Err(err).
			Msg("llm call failed; retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > time.Minute {
			delay = time.Minute
		}
	}
}
