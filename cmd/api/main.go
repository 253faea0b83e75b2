package main

import (
	"fmt"
	"os"

	"github.com/luxcrm/relay/internal/contacts"
	"github.com/luxcrm/relay/internal/data/db"
	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/drafting"
	"github.com/luxcrm/relay/internal/evidence"
	"github.com/luxcrm/relay/internal/extraction"
	relayhttp "github.com/luxcrm/relay/internal/http"
	"github.com/luxcrm/relay/internal/http/handlers"
	"github.com/luxcrm/relay/internal/http/middleware"
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
	"github.com/luxcrm/relay/internal/utils"
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

	// Optional platform clients. Neo4j and OpenAI degrade to nil when not
	// configured and every consumer tolerates that.
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
	log.Info("Setting up Repos from main...")
	contactRepo := repos.NewContactRepo(thePG, log)
	rawEventRepo := repos.NewRawEventRepo(thePG, log)
	interactionRepo := repos.NewInteractionRepo(thePG, log)
	chunkRepo := repos.NewChunkRepo(thePG, log)
	draftRepo := repos.NewDraftRepo(thePG, log)
	taskRepo := repos.NewResolutionTaskRepo(thePG, log)
	snapshotRepo := repos.NewScoreSnapshotRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
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
	onto := ontology.Load(log)
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
		onto,
	)
	if err != nil {
		log.Fatal("Processor init failed", "error", err)
	}

	// Queue and job runner. The runner registers handlers up front so that
	// inline mode can execute jobs synchronously when Redis is absent.
	queue, err := redisq.New(log)
	if err != nil {
		log.Fatal("Queue init failed", "error", err)
	}
	defer queue.Close()
	runner, err := workers.NewRunner(log, queue, processorService, draftRepo)
	if err != nil {
		log.Fatal("Worker runner init failed", "error", err)
	}

	contactsService, err := contacts.NewService(log, contactRepo, nil, nil, neo)
	if err != nil {
		log.Fatal("Contacts init failed", "error", err)
	}

	style, err := drafting.NewStyleGuideFromEnv(log, llm)
	if err != nil {
		log.Fatal("Style guide init failed", "error", err)
	}
	retriever, err := drafting.NewRetriever(log, contactRepo, interactionRepo, snapshotRepo, store, neo)
	if err != nil {
		log.Fatal("Draft retriever init failed", "error", err)
	}
	composer, err := drafting.NewComposerFromEnv(log, llm, style)
	if err != nil {
		log.Fatal("Draft composer init failed", "error", err)
	}
	draftingService, err := drafting.NewService(log, draftRepo, retriever, composer, style)
	if err != nil {
		log.Fatal("Drafting init failed", "error", err)
	}

	// Handlers
	log.Info("Setting up Handlers from main...")
	webhookAuth := middleware.NewWebhookAuth(log)
	ingestHandler := handlers.NewIngestHandler(log, rawEventRepo, interactionRepo, runner)
	contactsHandler := handlers.NewContactsHandler(log, contactsService, contactRepo, draftRepo, taskRepo, snapshotRepo, resolutionService, summaries, neo)
	draftsHandler := handlers.NewDraftsHandler(log, draftingService)
	scoresHandler := handlers.NewScoresHandler(log, contactRepo, interactionRepo, snapshotRepo, summaries)
	resolutionHandler := handlers.NewResolutionHandler(log, resolutionService)
	newsHandler := handlers.NewNewsHandler(log, matcher)
	adminHandler := handlers.NewAdminHandler(log, runner, processorService, interactionRepo, draftRepo)

	router := relayhttp.NewRouter(relayhttp.RouterConfig{
		WebhookAuth:       webhookAuth,
		IngestHandler:     ingestHandler,
		ContactsHandler:   contactsHandler,
		DraftsHandler:     draftsHandler,
		ScoresHandler:     scoresHandler,
		ResolutionHandler: resolutionHandler,
		NewsHandler:       newsHandler,
		AdminHandler:      adminHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting API server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
