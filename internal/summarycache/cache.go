package summarycache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/openai"
	"github.com/luxcrm/relay/internal/utils"
)

const (
	summaryMaxChars  = 420
	nextStepMaxChars = 260
	maxExcerpts      = 8
	excerptChars     = 280
)

const summarySystem = "You summarize CRM interaction context using only email/message excerpt content " +
	"provided by the user. Do not use or infer from email subject lines. " +
	"Return strict JSON with keys: summary, recent_topics, priority_next_step.\n" +
	"- summary: <= 420 characters, plain text.\n" +
	"- recent_topics: array of 1-4 concise topic phrases.\n" +
	"- priority_next_step: <= 260 characters, plain text and MUST begin with 'Stub:'. " +
	"Treat this as a provisional recommendation until opportunity sync is available."

var summarySchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"summary", "recent_topics", "priority_next_step"},
	"properties": map[string]any{
		"summary":            map[string]any{"type": "string"},
		"recent_topics":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"priority_next_step": map[string]any{"type": "string"},
	},
}

// Summary is the cached per-contact interaction digest.
type Summary struct {
	ContactID        string    `json:"contact_id"`
	Summary          string    `json:"summary"`
	RecentTopics     []string  `json:"recent_topics"`
	PriorityNextStep string    `json:"priority_next_step"`
	Source           string    `json:"source"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// Cache holds interaction summaries per contact with a TTL. Reads bypass
// the cache entirely when the feature flag is off.
type Cache struct {
	log          *logger.Logger
	store        *gocache.Cache
	llm          openai.Client
	interactions repos.InteractionRepo
	chunks       repos.ChunkRepo
	enabled      bool
}

func New(baseLog *logger.Logger, llm openai.Client, interactions repos.InteractionRepo, chunks repos.ChunkRepo, ttl time.Duration, enabled bool) (*Cache, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("summarycache: nil logger")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{
		log:          baseLog.With("service", "SummaryCache"),
		store:        gocache.New(ttl, 2*ttl),
		llm:          llm,
		interactions: interactions,
		chunks:       chunks,
		enabled:      enabled,
	}, nil
}

func NewFromEnv(baseLog *logger.Logger, llm openai.Client, interactions repos.InteractionRepo, chunks repos.ChunkRepo) (*Cache, error) {
	ttl := time.Duration(utils.GetEnvAsInt("SUMMARY_CACHE_TTL_SECONDS", 900, baseLog)) * time.Second
	enabled := utils.GetEnvAsBool("SUMMARY_CACHE_ENABLED", true, baseLog)
	return New(baseLog, llm, interactions, chunks, ttl, enabled)
}

func (c *Cache) Enabled() bool { return c.enabled }

// Get returns the cached summary if present and the flag is on.
func (c *Cache) Get(contactID string) (*Summary, bool) {
	if !c.enabled {
		return nil, false
	}
	if v, ok := c.store.Get(contactID); ok {
		if summary, ok := v.(*Summary); ok {
			return summary, true
		}
	}
	return nil, false
}

// Invalidate drops the contact's cached summary.
func (c *Cache) Invalidate(contactID string) {
	c.store.Delete(contactID)
}

func (c *Cache) contactRows(ctx context.Context, contactID string) ([]*domain.Interaction, error) {
	all, err := c.interactions.ListRecent(ctx, nil, 500)
	if err != nil {
		return nil, err
	}
	var rows []*domain.Interaction
	for _, row := range all {
		for _, id := range repos.ContactIDsOf(row) {
			if id == contactID {
				rows = append(rows, row)
				break
			}
		}
		if len(rows) >= maxExcerpts {
			break
		}
	}
	return rows, nil
}

type excerptItem struct {
	InteractionID string `json:"interaction_id"`
	Timestamp     string `json:"timestamp"`
	Direction     string `json:"direction"`
	Excerpt       string `json:"excerpt"`
}

func (c *Cache) buildExcerpts(ctx context.Context, rows []*domain.Interaction) []excerptItem {
	items := make([]excerptItem, 0, len(rows))
	for _, row := range rows {
		excerpt := ""
		if c.chunks != nil {
			if chunks, err := c.chunks.ListByInteraction(ctx, nil, row.ID); err == nil && len(chunks) > 0 {
				excerpt = strings.Join(strings.Fields(chunks[0].Text), " ")
				if len(excerpt) > excerptChars {
					excerpt = excerpt[:excerptChars]
				}
			}
		}
		if excerpt == "" {
			continue
		}
		items = append(items, excerptItem{
			InteractionID: row.ID.String(),
			Timestamp:     row.Timestamp.UTC().Format(time.RFC3339),
			Direction:     row.Direction,
			Excerpt:       excerpt,
		})
	}
	return items
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return strings.TrimRight(s[:max-3], " ") + "..."
}

// heuristicSummary digests subjects when no LLM is configured or the call
// fails. The next step keeps the provisional Stub: prefix.
func heuristicSummary(contactID string, rows []*domain.Interaction) *Summary {
	var subjects []string
	seen := map[string]struct{}{}
	for _, row := range rows {
		subject := strings.TrimSpace(row.Subject)
		if subject == "" {
			continue
		}
		key := strings.ToLower(subject)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		subjects = append(subjects, subject)
		if len(subjects) >= 4 {
			break
		}
	}

	summary := "No recent interactions on record."
	nextStep := "Stub: Reach out to restart the conversation."
	if len(subjects) > 0 {
		summary = "Recent threads: " + strings.Join(subjects, "; ") + "."
		nextStep = "Stub: Follow up on \"" + subjects[0] + "\"."
	}
	return &Summary{
		ContactID:        contactID,
		Summary:          truncate(summary, summaryMaxChars),
		RecentTopics:     subjects,
		PriorityNextStep: truncate(nextStep, nextStepMaxChars),
		Source:           "heuristic",
		GeneratedAt:      time.Now().UTC(),
	}
}

// Refresh rebuilds the summary for one contact and caches it. The LLM path
// degrades to the subject heuristic on any failure.
func (c *Cache) Refresh(ctx context.Context, contactID string) (*Summary, error) {
	rows, err := c.contactRows(ctx, contactID)
	if err != nil {
		return nil, err
	}

	summary := heuristicSummary(contactID, rows)
	if c.llm != nil {
		if generated := c.llmSummary(ctx, contactID, rows); generated != nil {
			summary = generated
		}
	}
	if c.enabled {
		c.store.SetDefault(contactID, summary)
	}
	return summary, nil
}

func (c *Cache) llmSummary(ctx context.Context, contactID string, rows []*domain.Interaction) *Summary {
	items := c.buildExcerpts(ctx, rows)
	if len(items) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"contact_id":          contactID,
		"recent_interactions": items,
	})
	if err != nil {
		return nil
	}
	user := "Generate CRM interaction insights from this JSON payload:\n" + string(payload)
	out, err := c.llm.GenerateJSON(ctx, summarySystem, user, "interaction_summary", summarySchema)
	if err != nil {
		c.log.Warn("llm summary failed, using heuristic", "contact_id", contactID, "error", err)
		return nil
	}

	text, _ := out["summary"].(string)
	nextStep, _ := out["priority_next_step"].(string)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !strings.HasPrefix(nextStep, "Stub:") {
		nextStep = "Stub: " + strings.TrimSpace(nextStep)
	}
	var topics []string
	if raw, ok := out["recent_topics"].([]any); ok {
		for _, item := range raw {
			if topic, ok := item.(string); ok && strings.TrimSpace(topic) != "" {
				topics = append(topics, strings.TrimSpace(topic))
			}
			if len(topics) >= 4 {
				break
			}
		}
	}
	return &Summary{
		ContactID:        contactID,
		Summary:          truncate(text, summaryMaxChars),
		RecentTopics:     topics,
		PriorityNextStep: truncate(nextStep, nextStepMaxChars),
		Source:           "llm",
		GeneratedAt:      time.Now().UTC(),
	}
}
