// Package kbd implements the kbd command: the knowledge base daemon and its maintenance
// subcommands.
package kbd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/config"
	"github.com/cloo-solutions/crmkb/internal/database"
	"github.com/cloo-solutions/crmkb/internal/extract"
	"github.com/cloo-solutions/crmkb/internal/logging"
	"github.com/cloo-solutions/crmkb/internal/openai"
	"github.com/cloo-solutions/crmkb/internal/repository"
	"github.com/cloo-solutions/crmkb/internal/service"
	"github.com/cloo-solutions/crmkb/internal/storage"
	"github.com/cloo-solutions/crmkb/internal/telemetry"
)

var errOpenAINotConfigured = errors.New("embedding provider not configured: KB_OPENAI_API_KEY is required")

type appOptions struct {
	migrate bool
}

// app holds the shared wiring every subcommand builds on.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	pool      *pgxpool.Pool
	embedder  *openai.Client
	extractor *extract.Registry
	blobs     service.BlobStore
	knowledge *service.KnowledgeService
	search    *service.SearchService
	records   *service.RecordEmbeddingService

	closers []func()
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return nil, errOpenAINotConfigured
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}
	a.onClose(func() { _ = logger.Sync() })

	if cfg.HasSentry() {
		shutdown, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: cfg.TracesSampleRate(),
			Debug:            cfg.Debug,
			Logger:           logger,
		})
		if err != nil {
			logger.Warn("telemetry init failed, continuing without error reporting", zap.Error(err))
		} else {
			a.onClose(shutdown)
		}
	}

	if opts.migrate {
		if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.pool = pool
	a.onClose(pool.Close)
	logger.Info("connected to database")

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.blobs = blobs

	a.embedder = openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		Timeout:             cfg.EmbeddingTimeout,
		MaxRetries:          cfg.EmbeddingMaxRetries,
		Logger:              logger.Named("embedding"),
	})
	a.extractor = extract.NewRegistry()

	a.knowledge = service.NewKnowledgeService(service.KnowledgeDeps{
		Documents:   repository.NewDocumentRepository(pool),
		Chunks:      repository.NewKnowledgeChunkRepository(pool),
		TxRunner:    repository.NewTxRunner(pool),
		Extractor:   a.extractor,
		Embedder:    a.embedder,
		Blobs:       blobs,
		Logger:      logger.Named("knowledge"),
		ChunkConfig: cfg.ChunkConfig(),
		Dimensions:  cfg.EmbeddingDimensions,
	})
	a.search = service.NewSearchService(a.embedder, repository.NewMatchRepository(pool), cfg.SearchDefaultTopK, logger.Named("search"))
	a.records = service.NewRecordEmbeddingService(
		repository.NewRecordEmbeddingRepository(pool),
		a.embedder,
		cfg.EmbeddingDimensions,
		cfg.BackfillDelay,
		logger.Named("records"),
	)

	return a, nil
}

// newBlobStore returns the S3 store when configured and retention is on. Otherwise uploads are
// discarded once their text is extracted.
func newBlobStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.BlobStore, error) {
	if !cfg.HasS3() || !cfg.S3RetainFiles {
		logger.Info("original files will not be retained")
		return storage.DiscardStore{}, nil
	}

	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	logger.Info("S3 bucket ready", zap.String("bucket", cfg.S3Bucket))
	return client, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
