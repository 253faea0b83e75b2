package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxcrm/relay/internal/data/db"
	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/evidence"
	"github.com/luxcrm/relay/internal/extraction"
	"github.com/luxcrm/relay/internal/memory"
	"github.com/luxcrm/relay/internal/news"
	"github.com/luxcrm/relay/internal/ontology"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
	"github.com/luxcrm/relay/internal/platform/openai"
	"github.com/luxcrm/relay/internal/platform/redisq"
	"github.com/luxcrm/relay/internal/processor"
	"github.com/luxcrm/relay/internal/resolution"
	"github.com/luxcrm/relay/internal/scoring"
	"github.com/luxcrm/relay/internal/summarycache"
	"github.com/luxcrm/relay/internal/workers"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed, graph projection disabled", "error", err)
		neo = nil
	}
	llm, err := openai.NewFromEnv(log)
	if err != nil {
		log.Warn("OpenAI init failed, falling back to local backends", "error", err)
		llm = nil
	}

	// Repos
	contactRepo := repos.NewContactRepo(thePG, log)
	rawEventRepo := repos.NewRawEventRepo(thePG, log)
	interactionRepo := repos.NewInteractionRepo(thePG, log)
	chunkRepo := repos.NewChunkRepo(thePG, log)
	draftRepo := repos.NewDraftRepo(thePG, log)
	taskRepo := repos.NewResolutionTaskRepo(thePG, log)
	snapshotRepo := repos.NewScoreSnapshotRepo(thePG, log)

	// Processing stack
	embedder := evidence.NewEmbedder(llm, log)
	store := evidence.NewStore(thePG, chunkRepo, embedder, log)
	extractor, err := extraction.NewFromEnv(log)
	if err != nil {
		log.Fatal("Extraction init failed", "error", err)
	}
	proposer, err := memory.NewFromEnv(log)
	if err != nil {
		log.Fatal("Memory proposer init failed", "error", err)
	}
	resolutionService, err := resolution.NewService(log, taskRepo, contactRepo, neo)
	if err != nil {
		log.Fatal("Resolution init failed", "error", err)
	}
	signals := scoring.NewWarmthDepthSignals(log, llm, chunkRepo)
	scoringService, err := scoring.NewService(log, interactionRepo, snapshotRepo, signals, neo, store)
	if err != nil {
		log.Fatal("Scoring init failed", "error", err)
	}
	matcher, err := news.NewMatcher(log, contactRepo, interactionRepo, embedder, neo)
	if err != nil {
		log.Fatal("News matcher init failed", "error", err)
	}
	summaries, err := summarycache.NewFromEnv(log, llm, interactionRepo, chunkRepo)
	if err != nil {
		log.Fatal("Summary cache init failed", "error", err)
	}
	processorService, err := processor.NewService(
		log,
		contactRepo,
		interactionRepo,
		rawEventRepo,
		chunkRepo,
		store,
		extractor,
		proposer,
		resolutionService,
		scoringService,
		matcher,
		summaries,
		neo,
		ontology.Load(log),
	)
	if err != nil {
		log.Fatal("Processor init failed", "error", err)
	}

	queue, err := redisq.New(log)
	if err != nil {
		log.Fatal("Queue init failed", "error", err)
	}
	defer queue.Close()
	runner, err := workers.NewRunner(log, queue, processorService, draftRepo)
	if err != nil {
		log.Fatal("Worker runner init failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler, err := runner.StartScheduler(ctx)
	if err != nil {
		log.Fatal("Scheduler init failed", "error", err)
	}
	defer scheduler.Stop()

	log.Info("Worker started", "inline_queue", queue.Inline())
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("Worker loop exited", "error", err)
	}
	log.Info("Worker stopped")
}
