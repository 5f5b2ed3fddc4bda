package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/docstream/internal/analyzer"
	"github.com/local/docstream/internal/blobstore"
	"github.com/local/docstream/internal/config"
	"github.com/local/docstream/internal/consumer"
	"github.com/local/docstream/internal/docmodel"
	"github.com/local/docstream/internal/ingestion"
	"github.com/local/docstream/internal/llm"
	"github.com/local/docstream/internal/logger"
	"github.com/local/docstream/internal/manifest"
	"github.com/local/docstream/internal/metrics"
	"github.com/local/docstream/internal/models"
	"github.com/local/docstream/internal/pipeline"
	"github.com/local/docstream/internal/queue"
	"github.com/local/docstream/internal/searchindex"
	"github.com/local/docstream/internal/statuscheck"
	"github.com/local/docstream/internal/store"
	"github.com/local/docstream/internal/web"
)

// jobRunner assembles a fresh pipeline per configuration; the long-lived
// clients are shared across jobs.
type jobRunner struct {
	analyzer *analyzer.Analyzer
	gateway  *llm.Gateway
	blobs    *blobstore.Store
	search   *searchindex.Client
	manifest *manifest.Store
	status   *store.RedisStatus
	storage  config.StorageConfig
}

func (r *jobRunner) RunJob(ctx context.Context, pc *docmodel.PipelineConfiguration) error {
	pl := pipeline.New(pc, r.analyzer, r.gateway, pipeline.WithProgress(r.status))
	job := ingestion.NewJob(pl, r.blobs, r.storage.OutputContainer, r.search, r.manifest)
	_, err := job.ExecuteJob(ctx)
	return err
}

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	if err := logger.Init(logger.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}); err != nil {
		log.Warn().Err(err).Msg("logger init incomplete")
	}
	defer logger.Close()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := models.NewRegistry(cfg.Models)
	gateway := llm.NewGateway(reg, cfg.Gateway)
	an := analyzer.New(gateway,
		analyzer.WithDPI(cfg.Pipeline.RenderDPI),
		analyzer.WithJPEGQuality(cfg.Pipeline.JPEGQuality))

	blobs, err := blobstore.NewStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("blob storage init failed")
	}

	events, err := queue.New(cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("event queue init failed")
	}
	defer events.Close()

	status, err := store.NewRedisStatus(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("status store init failed")
	}
	defer status.Close()

	docs, err := manifest.Connect(ctx, cfg.Manifest)
	if err != nil {
		log.Fatal().Err(err).Msg("document db init failed")
	}
	defer docs.Close(context.Background())

	embedding := models.NewEmbedding(cfg.Models.EmbeddingProvider, cfg.Models.EmbeddingModel)
	search := searchindex.NewClient(cfg.Search, gateway, embedding)

	runner := &jobRunner{
		analyzer: an,
		gateway:  gateway,
		blobs:    blobs,
		search:   search,
		manifest: docs,
		status:   status,
		storage:  cfg.Storage,
	}
	cons := consumer.New(events, blobs, runner, cfg.Storage, cfg.Pipeline.WorkDir, "")

	checker := statuscheck.New(statuscheck.Options{
		Redis:     status,
		Blobs:     blobs,
		Manifest:  docs,
		Search:    search,
		OpenAIKey: cfg.Models.OpenAIAPIKey,
	})

	mux := http.NewServeMux()
	web.New(status, checker).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := cons.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("consumer stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-consumerDone
	log.Info().Msg("shutdown complete")
}
