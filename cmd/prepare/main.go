package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/local/docstream/internal/blobstore"
	"github.com/local/docstream/internal/config"
	"github.com/local/docstream/internal/consumer"
	"github.com/local/docstream/internal/docmodel"
	"github.com/local/docstream/internal/filetype"
	"github.com/local/docstream/internal/models"
	"github.com/local/docstream/internal/queue"
)

var (
	provider  string
	modelName string
	noEvent   bool
)

func main() {
	root := &cobra.Command{
		Use:   "prepare <pdf>",
		Short: "Upload a PDF and its pipeline configuration, then queue it for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), args[0])
		},
	}
	root.Flags().StringVar(&provider, "provider", "", "LLM provider for extraction (azure or openai)")
	root.Flags().StringVar(&modelName, "model", "", "multimodal model name")
	root.Flags().BoolVar(&noEvent, "no-event", false, "upload only, do not publish the blob-created event")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, pdfPath string) error {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	if err := filetype.New().ValidatePDF(pdfPath); err != nil {
		return err
	}

	blobs, err := blobstore.NewStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("blob storage: %w", err)
	}

	pdfBlob := filepath.Base(pdfPath)
	pdfURL, err := blobs.UploadBlob(ctx, cfg.Storage.UploadDocumentContainer, pdfBlob, pdfPath)
	if err != nil {
		return fmt.Errorf("upload pdf: %w", err)
	}
	fmt.Println("uploaded:", pdfURL)

	pc := docmodel.DefaultPipelineConfiguration(pdfURL)
	if provider != "" || modelName != "" {
		pc.MultimodalModel = models.NewMultimodal(provider, modelName)
		pc.TextModel = models.NewText(provider, modelName)
	}

	stem := strings.TrimSuffix(pdfBlob, filepath.Ext(pdfBlob))
	configBlob := stem + "_config.json"
	configPath := filepath.Join(filepath.Dir(pdfPath), configBlob)
	if err := pc.SaveToJSON(configPath); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}

	configURL, err := blobs.UploadBlob(ctx, cfg.Storage.UploadJSONContainer, configBlob, configPath)
	if err != nil {
		return fmt.Errorf("upload configuration: %w", err)
	}
	fmt.Println("uploaded:", configURL)

	if noEvent {
		return nil
	}

	events, err := queue.New(cfg.Queue)
	if err != nil {
		return fmt.Errorf("event queue: %w", err)
	}
	defer events.Close()

	evt := consumer.BlobCreatedEvent{
		Topic:           "/storage/" + cfg.Storage.Bucket,
		Subject:         fmt.Sprintf("/containers/%s/blobs/%s", cfg.Storage.UploadJSONContainer, configBlob),
		EventType:       "Microsoft.Storage.BlobCreated",
		ID:              uuid.NewString(),
		EventTime:       time.Now().UTC().Format(time.RFC3339),
		Data:            consumer.BlobEventData{URL: configURL, API: "PutBlob", ContentType: "application/json"},
		DataVersion:     "1.0",
		MetadataVersion: "1",
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := events.Publish(ctx, payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	fmt.Println("queued:", evt.ID)
	return nil
}
