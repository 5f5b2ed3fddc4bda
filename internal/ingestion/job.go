package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/docstream/internal/docmodel"
	"github.com/local/docstream/internal/metrics"
	"github.com/local/docstream/internal/searchindex"
)

// Processor runs the page pipeline for one document.
type Processor interface {
	ProcessPDF(ctx context.Context) (*docmodel.DocumentContent, error)
}

// Indexer manages the search index. *searchindex.Client satisfies it.
type Indexer interface {
	CreateOrUpdateIndex(ctx context.Context) error
	UploadUnits(ctx context.Context, units []searchindex.SearchUnit) error
}

// ManifestRecorder persists the final document tree.
type ManifestRecorder interface {
	RecordManifest(ctx context.Context, doc *docmodel.DocumentContent) error
}

// Job composes one full ingestion: process the PDF, mirror every artifact to
// blob storage, index the search units and record the manifest.
type Job struct {
	processor Processor
	store     docmodel.BlobStore
	container string
	indexer   Indexer
	manifest  ManifestRecorder
}

func NewJob(processor Processor, store docmodel.BlobStore, container string, indexer Indexer, manifest ManifestRecorder) *Job {
	return &Job{
		processor: processor,
		store:     store,
		container: container,
		indexer:   indexer,
		manifest:  manifest,
	}
}

// ExecuteJob runs the stages in order and returns the document tree. A
// partially rejected search batch is logged but does not fail the job; the
// manifest still records which units carry cloud paths.
func (j *Job) ExecuteJob(ctx context.Context) (*docmodel.DocumentContent, error) {
	doc, err := j.processor.ProcessPDF(ctx)
	if err != nil {
		metrics.IncJob("failed")
		return nil, fmt.Errorf("process pdf: %w", err)
	}
	docID := doc.Metadata.DocumentID
	log.Info().Str("document_id", docID).Int("pages", len(doc.Pages)).Msg("pdf processed")

	if err := doc.UploadToBlob(ctx, j.store, j.container, docID); err != nil {
		metrics.IncJob("failed")
		return nil, fmt.Errorf("upload artifacts: %w", err)
	}
	log.Info().Str("document_id", docID).Str("container", j.container).Msg("artifacts uploaded")

	if err := j.indexer.CreateOrUpdateIndex(ctx); err != nil {
		metrics.IncJob("failed")
		return nil, fmt.Errorf("create index: %w", err)
	}

	units := searchindex.DocumentToSearchUnits(doc, true)
	if err := j.indexer.UploadUnits(ctx, units); err != nil {
		var partial *searchindex.PartialBatch
		if !errors.As(err, &partial) {
			metrics.IncJob("failed")
			return nil, fmt.Errorf("index units: %w", err)
		}
		log.Warn().Str("document_id", docID).Int("rejected", len(partial.Failed)).Msg("some search units were rejected")
	}
	log.Info().Str("document_id", docID).Int("units", len(units)).Msg("search units indexed")

	if err := j.manifest.RecordManifest(ctx, doc); err != nil {
		metrics.IncJob("failed")
		return nil, fmt.Errorf("record manifest: %w", err)
	}

	metrics.IncJob("ok")
	return doc, nil
}
