package scoring

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/openai"
	"github.com/luxcrm/relay/internal/utils"
)

const warmthDepthSystem = "You assess professional relationships from interaction history. " +
	"Given recent interactions with one contact, return JSON with warmth_delta " +
	"(-10 to 10, how warm the relationship trends) and depth_count (0 to 10, " +
	"how many distinct substantive threads exist). Judge only from the provided context."

var warmthDepthSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"warmth_delta", "depth_count"},
	"properties": map[string]any{
		"warmth_delta": map[string]any{"type": "number"},
		"depth_count":  map[string]any{"type": "number"},
	},
}

// WarmthDepthSignals selects between the heuristic and an optional LLM read
// of warmth and depth.
type WarmthDepthSignals struct {
	log             *logger.Logger
	llm             openai.Client
	chunks          repos.ChunkRepo
	enabled         bool
	maxInteractions int
	snippetChars    int
}

func NewWarmthDepthSignals(log *logger.Logger, llm openai.Client, chunks repos.ChunkRepo) *WarmthDepthSignals {
	return &WarmthDepthSignals{
		log:             log.With("service", "warmth_depth"),
		llm:             llm,
		chunks:          chunks,
		enabled:         utils.GetEnvAsBool("SCORING_USE_LLM_WARMTH_DEPTH", false, log),
		maxInteractions: utils.GetEnvAsInt("SCORING_LLM_MAX_INTERACTIONS", 8, log),
		snippetChars:    utils.GetEnvAsInt("SCORING_LLM_SNIPPET_CHARS", 280, log),
	}
}

type contextItem struct {
	InteractionID string `json:"interaction_id"`
	Timestamp     string `json:"timestamp"`
	Direction     string `json:"direction"`
	Subject       string `json:"subject"`
	Excerpt       string `json:"excerpt"`
}

func (s *WarmthDepthSignals) buildContext(ctx context.Context, rows []*domain.Interaction) []contextItem {
	if len(rows) > s.maxInteractions {
		rows = rows[:s.maxInteractions]
	}
	items := make([]contextItem, 0, len(rows))
	for _, row := range rows {
		excerpt := row.Subject
		if s.chunks != nil {
			if chunks, err := s.chunks.ListByInteraction(ctx, nil, row.ID); err == nil && len(chunks) > 0 {
				text := strings.Join(strings.Fields(chunks[0].Text), " ")
				if len(text) > s.snippetChars {
					text = text[:s.snippetChars]
				}
				if text != "" {
					excerpt = text
				}
			}
		}
		items = append(items, contextItem{
			InteractionID: row.ID.String(),
			Timestamp:     row.Timestamp.UTC().Format(time.RFC3339),
			Direction:     row.Direction,
			Subject:       row.Subject,
			Excerpt:       excerpt,
		})
	}
	return items
}

// Derive returns (warmth_delta, depth_count, source). The heuristic values
// win whenever the LLM path is disabled, unavailable or fails.
func (s *WarmthDepthSignals) Derive(ctx context.Context, rows []*domain.Interaction, heuristicWarmth float64, heuristicDepth int) (float64, int, string) {
	if !s.enabled || s.llm == nil || len(rows) == 0 {
		return heuristicWarmth, heuristicDepth, "heuristic"
	}
	items := s.buildContext(ctx, rows)
	raw, err := json.Marshal(items)
	if err != nil {
		return heuristicWarmth, heuristicDepth, "heuristic"
	}
	payload, err := s.llm.GenerateJSON(ctx, warmthDepthSystem, string(raw), "warmth_depth", warmthDepthSchema)
	if err != nil {
		s.log.Warn("llm warmth/depth failed, using heuristic", "error", err)
		return heuristicWarmth, heuristicDepth, "heuristic_llm_failure"
	}
	warmth := heuristicWarmth
	if v, ok := payload["warmth_delta"].(float64); ok {
		warmth = clamp(v, -10, 10)
	}
	depth := heuristicDepth
	if v, ok := payload["depth_count"].(float64); ok {
		depth = int(clamp(math.Round(v), 0, 10))
	}
	return warmth, depth, "llm"
}
