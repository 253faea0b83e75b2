package drafting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/openai"
	"github.com/luxcrm/relay/internal/utils"
)

const defaultStyleGuide = `# Writing Style Guide

## Voice
- Direct and warm; short sentences over long ones.
- Lead with the reason for writing, not pleasantries.

## Structure
- One idea per paragraph. Two or three paragraphs total.
- End with a single concrete next step.

## Phrasing
- Avoid filler openers ("Just circling back").
- Prefer plain verbs over corporate phrasing.
`

const styleUpdateSystemPrompt = "You are a writing-style analyst for CRM email drafting. " +
	"Given sample drafts and an existing style guide, produce an updated writing-style guide in markdown. " +
	"Keep it concise, practical, and grounded in observed writing behavior. " +
	"Do not include explanations outside the markdown guide."

// StyleGuide holds the user's baseline writing style as a markdown file,
// rewritten by the LLM from approved and edited drafts.
type StyleGuide struct {
	log  *logger.Logger
	llm  openai.Client
	path string

	mu sync.RWMutex
}

func NewStyleGuide(baseLog *logger.Logger, llm openai.Client, path string) (*StyleGuide, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("drafting: nil logger")
	}
	if strings.TrimSpace(path) == "" {
		path = "data/writing_style.md"
	}
	return &StyleGuide{
		log:  baseLog.With("service", "StyleGuide"),
		llm:  llm,
		path: path,
	}, nil
}

func NewStyleGuideFromEnv(baseLog *logger.Logger, llm openai.Client) (*StyleGuide, error) {
	return NewStyleGuide(baseLog, llm, utils.GetEnv("WRITING_STYLE_GUIDE_PATH", "", baseLog))
}

func (g *StyleGuide) Path() string { return g.path }

// Instructions returns the current guide markdown, falling back to the
// built-in default when no file exists yet.
func (g *StyleGuide) Instructions() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	raw, err := os.ReadFile(g.path)
	if err != nil || strings.TrimSpace(string(raw)) == "" {
		return defaultStyleGuide
	}
	return string(raw)
}

func formatDraftSample(draft *domain.Draft) string {
	subject := strings.TrimSpace(draft.Subject)
	if subject == "" {
		subject = "No subject"
	}
	return "Draft ID: " + draft.ID.String() + "\n" +
		"Status: " + draft.Status + "\n" +
		"Subject: " + subject + "\n" +
		"Body:\n" + strings.TrimSpace(draft.DraftText) + "\n"
}

// UpdateResult reports one style-guide refresh.
type UpdateResult struct {
	Updated     bool   `json:"updated"`
	SamplesUsed int    `json:"samples_used"`
	GuidePath   string `json:"guide_path"`
}

// UpdateFromDrafts regenerates the guide from recent approved/edited drafts
// plus the triggering draft. Requires the LLM backend.
func (g *StyleGuide) UpdateFromDrafts(ctx context.Context, draftsRepo repos.DraftRepo, current *domain.Draft, maxSamples int) (*UpdateResult, error) {
	if g.llm == nil {
		return nil, fmt.Errorf("drafting: style guide updates require the LLM backend")
	}
	if maxSamples <= 0 {
		maxSamples = 24
	}

	rows, err := draftsRepo.ListByStatuses(ctx, nil, []string{domain.DraftStatusEdited, domain.DraftStatusApproved}, maxSamples)
	if err != nil {
		return nil, err
	}
	samples := make([]*domain.Draft, 0, len(rows)+1)
	seen := map[string]struct{}{}
	if current != nil {
		samples = append(samples, current)
		seen[current.ID.String()] = struct{}{}
	}
	for _, row := range rows {
		if _, dup := seen[row.ID.String()]; dup {
			continue
		}
		seen[row.ID.String()] = struct{}{}
		samples = append(samples, row)
		if len(samples) >= maxSamples {
			break
		}
	}

	var parts []string
	for _, sample := range samples {
		if strings.TrimSpace(sample.DraftText) == "" {
			continue
		}
		parts = append(parts, formatDraftSample(sample))
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("drafting: no draft text samples available for style guide update")
	}

	user := "Update the user writing style guide using the samples below.\n\n" +
		"Requirements:\n" +
		"- Preserve clear sections and actionable bullets.\n" +
		"- Capture stable style tendencies (voice, structure, tone, phrasing).\n" +
		"- Avoid contact-specific facts; this is a reusable global style guide.\n" +
		"- Keep markdown under ~220 lines.\n\n" +
		"Existing style guide markdown:\n" + g.Instructions() + "\n\n" +
		"Sample revised/approved drafts:\n" + strings.Join(parts, "\n\n---\n\n")

	updated, err := g.llm.GenerateText(ctx, styleUpdateSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	updated = strings.TrimSpace(updated)
	if updated == "" {
		return nil, fmt.Errorf("drafting: style guide generation returned empty content")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if dir := filepath.Dir(g.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(g.path, []byte(updated+"\n"), 0o644); err != nil {
		return nil, err
	}
	g.log.Info("writing style guide updated", "samples", len(samples), "path", g.path)
	return &UpdateResult{Updated: true, SamplesUsed: len(samples), GuidePath: g.path}, nil
}
