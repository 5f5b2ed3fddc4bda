package consumer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docstream/internal/config"
	"github.com/local/docstream/internal/docmodel"
	"github.com/local/docstream/internal/metrics"
	"github.com/local/docstream/internal/queue"
)

// Events is the queue side the consumer drives.
type Events interface {
	Fetch(ctx context.Context, consumer string) ([]queue.Message, error)
	Ack(ctx context.Context, msgID string) error
	DeadLetter(ctx context.Context, payload []byte, reason string) error
	ReportDepths(ctx context.Context)
}

// Blobs is the download side of the object store.
type Blobs interface {
	DownloadBlob(ctx context.Context, container, blob, localPath string) error
}

// JobRunner executes one ingestion for a loaded configuration. The service
// entrypoint wires the full pipeline behind this.
type JobRunner interface {
	RunJob(ctx context.Context, pc *docmodel.PipelineConfiguration) error
}

// Consumer is the long-lived event loop: it fetches blob-created events,
// resolves each to a pipeline configuration, runs the ingestion job and acks
// the event regardless of outcome. Failures land in the dead-letter stream.
type Consumer struct {
	events  Events
	blobs   Blobs
	runner  JobRunner
	storage config.StorageConfig
	workDir string
	name    string
}

func New(events Events, blobs Blobs, runner JobRunner, storage config.StorageConfig, workDir, name string) *Consumer {
	if name == "" {
		host, _ := os.Hostname()
		name = "worker-" + host
	}
	return &Consumer{
		events:  events,
		blobs:   blobs,
		runner:  runner,
		storage: storage,
		workDir: workDir,
		name:    name,
	}
}

// Run loops until the context is cancelled. Fetch blocks up to the queue's
// wait time, so an idle loop costs one Redis round-trip per interval.
func (c *Consumer) Run(ctx context.Context) error {
	log.Info().Str("consumer", c.name).Msg("event consumer started")
	for {
		if err := ctx.Err(); err != nil {
			log.Info().Str("consumer", c.name).Msg("event consumer stopped")
			return err
		}

		batch, err := c.events.Fetch(ctx, c.name)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("fetch events failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range batch {
			c.handle(ctx, msg)
		}
		c.events.ReportDepths(ctx)
	}
}

// handle processes one event end to end. The event is acked no matter what:
// re-running a broken configuration would fail the same way, so failures are
// recorded in the dead-letter stream instead of being redelivered.
func (c *Consumer) handle(ctx context.Context, msg queue.Message) {
	defer func() {
		if err := c.events.Ack(ctx, msg.ID); err != nil {
			log.Error().Err(err).Str("msg_id", msg.ID).Msg("ack failed")
		}
	}()

	if err := c.ingest(ctx, msg); err != nil {
		metrics.IncEvent("failed")
		log.Error().Err(err).Str("msg_id", msg.ID).Msg("event processing failed")
		_ = c.events.DeadLetter(ctx, msg.Payload, err.Error())
		return
	}
	metrics.IncEvent("ok")
}

func (c *Consumer) ingest(ctx context.Context, msg queue.Message) error {
	evt, err := ParseBlobCreatedEvent(msg.Payload)
	if err != nil {
		return err
	}
	configBlob, err := evt.BlobName()
	if err != nil {
		return err
	}
	log.Info().Str("event_id", evt.ID).Str("config_blob", configBlob).Msg("blob-created event received")

	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	configPath := filepath.Join(c.workDir, configBlob)
	if err := c.blobs.DownloadBlob(ctx, c.storage.UploadJSONContainer, configBlob, configPath); err != nil {
		return fmt.Errorf("download configuration %s: %w", configBlob, err)
	}

	pc, err := docmodel.LoadPipelineConfiguration(configPath)
	if err != nil {
		return fmt.Errorf("load configuration %s: %w", configBlob, err)
	}

	// The job directory is keyed on the source reference, so a redelivery of
	// the same document lands where the interrupted run left its resume state.
	jobDir := filepath.Join(c.workDir, docmodel.DocumentID(pc.PDFPath))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	if isBlobURL(pc.PDFPath) {
		pdfBlob, err := blobNameOf(pc.PDFPath)
		if err != nil {
			return err
		}
		localPDF := filepath.Join(jobDir, pdfBlob)
		if err := c.blobs.DownloadBlob(ctx, c.storage.UploadDocumentContainer, pdfBlob, localPDF); err != nil {
			return fmt.Errorf("download pdf %s: %w", pdfBlob, err)
		}
		pc.PDFPath = localPDF
	}

	if pc.OutputDirectory == "" {
		stem := strings.TrimSuffix(filepath.Base(pc.PDFPath), filepath.Ext(pc.PDFPath))
		pc.OutputDirectory = filepath.Join(jobDir, stem)
	}

	return c.runner.RunJob(ctx, pc)
}
