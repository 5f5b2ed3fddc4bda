package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom log forwarding configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// AzureDeployment identifies one Azure OpenAI deployment.
type AzureDeployment struct {
	Resource   string
	Key        string
	Deployment string
}

// ModelsConfig carries credentials and deployment names for every registered
// back-end. Azure deployments are addressed per model family, matching the
// upstream resource layout; plain OpenAI uses one key and per-family models.
type ModelsConfig struct {
	AzureAPIVersion string

	AzureGPT4o  AzureDeployment
	AzureO1     AzureDeployment
	AzureO1Mini AzureDeployment

	AzureEmbeddingAda   AzureDeployment
	AzureEmbeddingSmall AzureDeployment
	AzureEmbeddingLarge AzureDeployment

	OpenAIAPIKey    string
	OpenAIGPT4o     string
	OpenAIO1        string
	OpenAIO1Mini    string
	OpenAIEmbedding string

	// Process-wide embedding selection; the index schema binds one
	// dimensionality, so this is not per-document.
	EmbeddingProvider string
	EmbeddingModel    string
}

// StorageConfig defines the object store layout.
type StorageConfig struct {
	Bucket                  string
	Endpoint                string // custom S3 endpoint, empty for AWS
	Region                  string
	AccessKey               string // static credentials, empty for the ambient chain
	SecretKey               string
	UploadDocumentContainer string
	UploadJSONContainer     string
	OutputContainer         string
	DecryptPassword         string
	SASDuration             time.Duration
}

// QueueConfig defines broker connectivity and consumer knobs.
type QueueConfig struct {
	RedisURL        string
	Stream          string
	Group           string
	DLQStream       string
	MaxMessageCount int
	MaxWaitTime     time.Duration
}

// SearchConfig defines the search service connection.
type SearchConfig struct {
	Endpoint        string
	APIKey          string
	IndexName       string
	APIVersion      string
	WideConcurrency int
}

// ManifestConfig defines the document database.
type ManifestConfig struct {
	URI        string
	Database   string
	Collection string
}

// GatewayConfig bounds LLM calls.
type GatewayConfig struct {
	RequestTimeout  time.Duration
	RetryMaxElapsed time.Duration
	RetryBaseDelay  time.Duration
	RetryJitter     time.Duration
}

// PipelineConfig carries process-wide pipeline defaults.
type PipelineConfig struct {
	WorkDir     string
	RenderDPI   int
	JPEGQuality int
}

// Config is the top-level configuration.
type Config struct {
	HTTPAddr string
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Models   ModelsConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Search   SearchConfig
	Manifest ManifestConfig
	Gateway  GatewayConfig
	Pipeline PipelineConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.HTTPAddr = ":" + getEnv("PORT", "8080")

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/docstream.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_docstream",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Models = ModelsConfig{
		AzureAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-12-01-preview"),
		AzureGPT4o: AzureDeployment{
			Resource:   getEnv("AZURE_OPENAI_RESOURCE_4O", ""),
			Key:        getEnv("AZURE_OPENAI_KEY_4O", ""),
			Deployment: getEnv("AZURE_OPENAI_MODEL_4O", "gpt-4o"),
		},
		AzureO1: AzureDeployment{
			Resource:   getEnv("AZURE_OPENAI_RESOURCE_O1", ""),
			Key:        getEnv("AZURE_OPENAI_KEY_O1", ""),
			Deployment: getEnv("AZURE_OPENAI_MODEL_O1", "o1"),
		},
		AzureO1Mini: AzureDeployment{
			Resource:   getEnv("AZURE_OPENAI_RESOURCE_O1_MINI", ""),
			Key:        getEnv("AZURE_OPENAI_KEY_O1_MINI", ""),
			Deployment: getEnv("AZURE_OPENAI_MODEL_O1_MINI", "o1-mini"),
		},
		AzureEmbeddingAda: AzureDeployment{
			Resource:   getEnv("AZURE_OPENAI_RESOURCE_EMBEDDING_ADA", ""),
			Key:        getEnv("AZURE_OPENAI_KEY_EMBEDDING_ADA", ""),
			Deployment: getEnv("AZURE_OPENAI_MODEL_EMBEDDING_ADA", "text-embedding-ada-002"),
		},
		AzureEmbeddingSmall: AzureDeployment{
			Resource:   getEnv("AZURE_OPENAI_RESOURCE_EMBEDDING_SMALL", ""),
			Key:        getEnv("AZURE_OPENAI_KEY_EMBEDDING_SMALL", ""),
			Deployment: getEnv("AZURE_OPENAI_MODEL_EMBEDDING_SMALL", "text-embedding-3-small"),
		},
		AzureEmbeddingLarge: AzureDeployment{
			Resource:   getEnv("AZURE_OPENAI_RESOURCE_EMBEDDING_LARGE", ""),
			Key:        getEnv("AZURE_OPENAI_KEY_EMBEDDING_LARGE", ""),
			Deployment: getEnv("AZURE_OPENAI_MODEL_EMBEDDING_LARGE", "text-embedding-3-large"),
		},
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIGPT4o:     getEnv("OPENAI_MODEL_4O", "gpt-4o"),
		OpenAIO1:        getEnv("OPENAI_MODEL_O1", "o1"),
		OpenAIO1Mini:    getEnv("OPENAI_MODEL_O1_MINI", "o1-mini"),
		OpenAIEmbedding: getEnv("OPENAI_MODEL_EMBEDDING", "text-embedding-3-large"),

		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", ""),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),
	}

	cfg.Storage = StorageConfig{
		Bucket:                  getEnv("STORAGE_BUCKET", "docstream"),
		Endpoint:                getEnv("STORAGE_ENDPOINT", ""),
		Region:                  getEnv("STORAGE_REGION", ""),
		AccessKey:               getEnv("STORAGE_ACCESS_KEY", ""),
		SecretKey:               getEnv("STORAGE_SECRET_KEY", ""),
		UploadDocumentContainer: getEnv("STORAGE_UPLOAD_DOCUMENT_CONTAINER", "data"),
		UploadJSONContainer:     getEnv("STORAGE_UPLOAD_JSON_CONTAINER", "data"),
		OutputContainer:         getEnv("STORAGE_OUTPUT_CONTAINER", "processed"),
		DecryptPassword:         getEnv("STORAGE_DECRYPT_PASSWORD", ""),
		SASDuration:             parseDuration(getEnv("STORAGE_SAS_DURATION", "168h"), 168*time.Hour),
	}

	cfg.Queue = QueueConfig{
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:          getEnv("QUEUE_STREAM", "docstream:events"),
		Group:           getEnv("QUEUE_GROUP", "ingest-workers"),
		DLQStream:       getEnv("QUEUE_DLQ_STREAM", "docstream:events:dlq"),
		MaxMessageCount: parseInt(getEnv("QUEUE_MAX_MESSAGE_COUNT", "20"), 20),
		MaxWaitTime:     parseDuration(getEnv("QUEUE_MAX_WAIT_TIME", "5s"), 5*time.Second),
	}

	cfg.Search = SearchConfig{
		Endpoint:        getEnv("SEARCH_ENDPOINT", ""),
		APIKey:          getEnv("SEARCH_API_KEY", ""),
		IndexName:       getEnv("SEARCH_INDEX_NAME", "document-index"),
		APIVersion:      getEnv("SEARCH_API_VERSION", "2024-07-01"),
		WideConcurrency: parseInt(getEnv("SEARCH_WIDE_CONCURRENCY", "25"), 25),
	}

	cfg.Manifest = ManifestConfig{
		URI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		Database:   getEnv("MONGO_DATABASE", "docstream"),
		Collection: getEnv("MONGO_COLLECTION", "documents"),
	}

	cfg.Gateway = GatewayConfig{
		RequestTimeout:  parseDuration(getEnv("LLM_REQUEST_TIMEOUT", "300s"), 300*time.Second),
		RetryMaxElapsed: parseDuration(getEnv("LLM_RETRY_MAX_ELAPSED", "300s"), 300*time.Second),
		RetryBaseDelay:  parseDuration(getEnv("LLM_RETRY_BASE_DELAY", "2s"), 2*time.Second),
		RetryJitter:     parseDuration(getEnv("LLM_RETRY_JITTER", "500ms"), 500*time.Millisecond),
	}

	cfg.Pipeline = PipelineConfig{
		WorkDir:     getEnv("WORK_DIR", "work"),
		RenderDPI:   parseInt(getEnv("RENDER_DPI", "300"), 300),
		JPEGQuality: parseInt(getEnv("JPEG_QUALITY", "90"), 90),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
