package http

import (
	"github.com/gin-gonic/gin"

	"github.com/luxcrm/relay/internal/http/handlers"
	"github.com/luxcrm/relay/internal/http/middleware"
)

type RouterConfig struct {
	WebhookAuth       *middleware.WebhookAuth
	IngestHandler     *handlers.IngestHandler
	ContactsHandler   *handlers.ContactsHandler
	DraftsHandler     *handlers.DraftsHandler
	ScoresHandler     *handlers.ScoresHandler
	ResolutionHandler *handlers.ResolutionHandler
	NewsHandler       *handlers.NewsHandler
	AdminHandler      *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.GET("/health", handlers.HealthCheck)

	// Webhook-facing surface: ingest, sync, admin.
	hooked := router.Group("/")
	hooked.Use(cfg.WebhookAuth.RequireSecret())
	hooked.POST("/ingest/interaction_event", cfg.IngestHandler.InteractionEvent)
	hooked.POST("/ingest/news_item", cfg.IngestHandler.NewsItem)
	hooked.POST("/contacts/sync", cfg.ContactsHandler.Sync)
	hooked.POST("/admin/reprocess", cfg.AdminHandler.Reprocess)
	hooked.POST("/admin/recompute_scores", cfg.AdminHandler.RecomputeScores)
	hooked.POST("/admin/cleanup", cfg.AdminHandler.Cleanup)

	// Contacts
	router.GET("/contacts/lookup", cfg.ContactsHandler.Lookup)
	router.DELETE("/contacts/:id", cfg.ContactsHandler.Delete)

	// Drafts
	router.POST("/drafts", cfg.DraftsHandler.Create)
	router.GET("/drafts/latest", cfg.DraftsHandler.Latest)
	router.GET("/drafts/objective_suggestion", cfg.DraftsHandler.ObjectiveSuggestion)
	router.GET("/drafts/:id", cfg.DraftsHandler.Get)
	router.POST("/drafts/:id/status", cfg.DraftsHandler.SetStatus)
	router.POST("/drafts/:id/revise", cfg.DraftsHandler.Revise)
	router.POST("/drafts/:id/update_writing_style", cfg.DraftsHandler.UpdateWritingStyle)

	// Scores
	router.GET("/scores/today", cfg.ScoresHandler.Today)
	router.GET("/scores/contact/:id", cfg.ScoresHandler.ContactDetail)
	router.POST("/scores/contact/:id/refresh_summary", cfg.ScoresHandler.RefreshSummary)

	// Resolution queue
	router.GET("/resolution/tasks", cfg.ResolutionHandler.ListTasks)
	router.POST("/resolution/tasks/:id/resolve", cfg.ResolutionHandler.Resolve)

	// News
	router.POST("/news/match", cfg.NewsHandler.Match)

	return router
}
