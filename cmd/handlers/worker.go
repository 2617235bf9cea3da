package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"curio/internal/config"
	"curio/internal/embedding"
	"curio/internal/extract"
	"curio/internal/fetch"
	"curio/internal/ingest"
	"curio/internal/persistence"
	"curio/internal/recommend"
	"curio/internal/scheduler"
	"curio/internal/state"
	"curio/internal/vectorstore"
)

// runtime bundles every wired component of the worker. Commands build one,
// use the pieces they need, and Close it.
type runtime struct {
	cfg       *config.Config
	db        *persistence.PostgresDB
	state     *state.Store
	index     vectorstore.Index
	ingestion *ingest.Job
	reindexer *ingest.Reindexer
	generator *recommend.Generator
	feeds     *recommend.Job
}

// newRuntime loads configuration and wires the full pipeline: database,
// worker state, vector index, Gemini clients, and both jobs.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg := config.Get()

	db, err := persistence.NewPostgresDB(cfg.Database.URL, persistence.Pool{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.Database.ConnMaxLifetime, 5*time.Minute),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	stateStore, err := state.NewStore(cfg.App.DataDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	index := vectorstore.NewPgVector(db.DB(), cfg.Embedding.Dimensions)
	if err := index.Initialize(ctx); err != nil {
		_ = stateStore.Close()
		_ = db.Close()
		return nil, fmt.Errorf("initialize vector index: %w", err)
	}

	extractor, err := extract.NewClient(ctx, cfg.Gemini.APIKey, extract.Options{
		Model:             cfg.Gemini.Model,
		Temperature:       cfg.Gemini.Temperature,
		MaxTokens:         cfg.Gemini.MaxTokens,
		MaxCandidates:     cfg.Ingest.MaxCandidates,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
	})
	if err != nil {
		_ = stateStore.Close()
		_ = db.Close()
		return nil, fmt.Errorf("create extraction client: %w", err)
	}

	embedder, err := embedding.NewClient(ctx, cfg.Gemini.APIKey, embedding.Options{
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		BatchSize:         cfg.Embedding.BatchSize,
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
	})
	if err != nil {
		_ = stateStore.Close()
		_ = db.Close()
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	fetcher := fetch.NewFetcher(fetch.Options{
		Timeout:      config.Duration(cfg.Fetch.Timeout, fetch.DefaultTimeout),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		UserAgent:    cfg.Fetch.UserAgent,
	})

	var validators ingest.ValidatorStore
	if cfg.Ingest.ConditionalGet {
		validators = stateStore
	}

	ingestion := ingest.NewJob(
		db.Sources(), db.Resources(), fetcher, extractor, embedder, index, validators,
		ingest.Options{
			BatchSize:              cfg.Ingest.BatchSize,
			SourceTimeout:          config.Duration(cfg.Ingest.SourceTimeout, ingest.DefaultSourceTimeout),
			PageTextLimit:          cfg.Ingest.ContentWindow,
			MaxCandidatesPerSource: cfg.Ingest.MaxCandidates,
			DisableFeedFastPath:    !cfg.Ingest.FeedFastPath,
		})

	profiles := recommend.NewProfileBuilder(db.Votes(), embedder)
	engine := recommend.NewEngine(index, db.Resources(), recommend.EngineOptions{
		VectorWeight:      cfg.Feeds.VectorWeight,
		RetrievalFactor:   cfg.Feeds.RetrievalFactor,
		RecencyWindowDays: cfg.Feeds.RecencyWindowDays,
		MaxPerSource:      cfg.Feeds.MaxPerSource,
	})
	generator := recommend.NewGenerator(db.Votes(), db.Recommendations(), profiles, engine, cfg.Feeds.ExclusionDays)

	return &runtime{
		cfg:       cfg,
		db:        db,
		state:     stateStore,
		index:     index,
		ingestion: ingestion,
		reindexer: ingest.NewReindexer(db.Resources(), embedder, index, cfg.Ingest.ReindexChunk),
		generator: generator,
		feeds:     recommend.NewJob(db.Users(), generator, cfg.Feeds.PerFeedCount),
	}, nil
}

func (r *runtime) Close() {
	if err := r.state.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close state store")
	}
	if err := r.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}

// runIngestion executes one ingestion pass and records it in the run history.
func (r *runtime) runIngestion(ctx context.Context, _ time.Time) error {
	started := time.Now().UTC()
	stats, err := r.ingestion.Run(ctx)
	r.recordRun("ingestion", started, err == nil, stats.Counters())
	return err
}

// runFeeds executes one feed generation pass for now's civil day and records
// it in the run history.
func (r *runtime) runFeeds(ctx context.Context, now time.Time) error {
	started := time.Now().UTC()
	stats, err := r.feeds.Run(ctx, now)
	r.recordRun("feed", started, err == nil, stats.Counters())
	return err
}

func (r *runtime) recordRun(job string, started time.Time, success bool, counters map[string]int) {
	err := r.state.RecordRun(state.Run{
		Job:        job,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Success:    success,
		Counters:   counters,
	})
	if err != nil {
		log.Warn().Err(err).Str("job", job).Msg("Failed to record run")
	}
}

// runWorker starts the scheduler loop and blocks until SIGINT or SIGTERM.
func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg
	sched := scheduler.New(rt.state, rt.runIngestion, rt.runFeeds, scheduler.Options{
		TickInterval:      config.Duration(cfg.Scheduler.TickInterval, scheduler.DefaultTickInterval),
		IngestionInterval: config.Duration(cfg.Scheduler.IngestionInterval, scheduler.DefaultIngestionInterval),
		FeedHourUTC:       cfg.Scheduler.FeedHourUTC,
		RunOnStartup:      cfg.Scheduler.RunOnStartup,
		StartupDelay:      config.Duration(cfg.Scheduler.StartupDelay, scheduler.DefaultStartupDelay),
	})

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
