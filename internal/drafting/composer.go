package drafting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/openai"
	"github.com/luxcrm/relay/internal/utils"
)

const (
	ComposerBackendLLM      = "llm"
	ComposerBackendTemplate = "template"

	subjectMaxChars = 90
)

const composerSystemPrompt = "You are an executive communication assistant. Write a concise outbound " +
	"email draft that sounds natural, follows the requested tone, and does not invent facts. " +
	"Return plain text only."

// Composer turns a retrieval bundle plus tone band into draft text. The LLM
// backend falls back to the deterministic template on any failure.
type Composer struct {
	log     *logger.Logger
	llm     openai.Client
	style   *StyleGuide
	backend string
}

func NewComposer(baseLog *logger.Logger, llm openai.Client, style *StyleGuide, backend string) (*Composer, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("drafting: nil logger")
	}
	backend = strings.ToLower(strings.TrimSpace(backend))
	switch backend {
	case "":
		backend = ComposerBackendTemplate
		if llm != nil {
			backend = ComposerBackendLLM
		}
	case ComposerBackendLLM, ComposerBackendTemplate:
	default:
		return nil, fmt.Errorf("drafting: unknown composer backend %q", backend)
	}
	return &Composer{
		log:     baseLog.With("service", "DraftComposer"),
		llm:     llm,
		style:   style,
		backend: backend,
	}, nil
}

func NewComposerFromEnv(baseLog *logger.Logger, llm openai.Client, style *StyleGuide) (*Composer, error) {
	return NewComposer(baseLog, llm, style, utils.GetEnv("DRAFT_COMPOSER_BACKEND", "", baseLog))
}

func (c *Composer) Backend() string { return c.backend }

// Compose returns the draft body and the backend that actually produced it.
func (c *Composer) Compose(ctx context.Context, bundle *Bundle, tone ToneBand) (string, string) {
	if c.backend == ComposerBackendLLM && c.llm != nil {
		text, err := c.composeLLM(ctx, bundle, tone)
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), ComposerBackendLLM
		}
		c.log.Warn("llm composition failed, using template", "error", err)
	}
	return composeTemplate(bundle, tone), ComposerBackendTemplate
}

func (c *Composer) composeLLM(ctx context.Context, bundle *Bundle, tone ToneBand) (string, error) {
	styleInstructions := ""
	if c.style != nil {
		styleInstructions = c.style.Instructions()
	}
	toneJSON, _ := json.Marshal(tone)
	system := composerSystemPrompt +
		"\n\nApply the writing-style instructions below. The user baseline style always applies; " +
		"the tone band adjusts it for relationship maturity.\n" +
		styleInstructions +
		"\nTone band: " + string(toneJSON)

	contextPayload := map[string]any{
		"contact":                bundle.Contact,
		"objective":              bundle.Objective,
		"proposed_next_action":   bundle.ProposedNextAction,
		"recent_interactions":    bundle.RecentInteractions,
		"email_context_snippets": bundle.EmailContextSnippets,
		"graph_claim_snippets":   bundle.GraphClaimSnippets,
		"graph_path_snippets":    bundle.GraphPathSnippets,
		"motivator_signals":      bundle.MotivatorSignals,
	}
	contextJSON, err := json.Marshal(contextPayload)
	if err != nil {
		return "", err
	}
	user := "Generate a single email draft using this JSON context. " +
		"Include greeting and sign-off with [Your Name].\n\n" + string(contextJSON)
	return c.llm.GenerateText(ctx, system, user)
}

func displayNameOf(bundle *Bundle) string {
	if name, ok := bundle.Contact["display_name"].(string); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return "there"
}

// composeTemplate stitches greeting, contextual bridge lines, the objective,
// an optional next-step line, and a closer.
func composeTemplate(bundle *Bundle, tone ToneBand) string {
	name := displayNameOf(bundle)
	objective := bundle.Objective
	if objective == "" {
		objective = "check in"
	}

	var opener, lead string
	switch tone.Band {
	case ToneCoolProfessional:
		opener = "Hello " + name + ","
		lead = "I wanted to reach out regarding: " + objective + "."
	case ToneWarmProfessional:
		opener = "Hi " + name + ","
		lead = "Hope you are doing well. I wanted to follow up on: " + objective + "."
	default:
		opener = "Hey " + name + ","
		lead = "Hope all is good on your side. I wanted to reconnect on: " + objective + "."
	}

	var bridges []string
	if len(bundle.RecentInteractions) > 0 {
		if subject := cleanPhrase(bundle.RecentInteractions[0].Subject, 80); subject != "" {
			bridges = append(bridges, "Following our recent thread on \""+subject+"\".")
		}
	}
	if len(bundle.GraphClaimSnippets) > 0 {
		bridges = append(bridges, "I kept in mind: "+bundle.GraphClaimSnippets[0]+".")
	}
	if len(bridges) == 0 && len(bundle.EmailContextSnippets) > 0 {
		bridges = append(bridges, "Picking up from where we left off: "+cleanPhrase(bundle.EmailContextSnippets[0], 120)+".")
	}

	var nextStep string
	if bundle.ProposedNextAction != "" {
		nextStep = "Suggested next step: " + bundle.ProposedNextAction + "."
	}

	closer := "Best,\n[Your Name]"
	paragraphs := []string{opener, lead}
	if len(bridges) > 0 {
		paragraphs = append(paragraphs, strings.Join(bridges, " "))
	}
	if nextStep != "" {
		paragraphs = append(paragraphs, nextStep)
	}
	paragraphs = append(paragraphs, closer)
	return strings.Join(paragraphs, "\n\n")
}

// ComposeSubject derives the subject line from the latest thread subject or
// the objective, truncated to a sane header length.
func ComposeSubject(bundle *Bundle, tone ToneBand) string {
	var base string
	for _, item := range bundle.RecentInteractions {
		if subject := cleanPhrase(item.Subject, subjectMaxChars); subject != "" {
			lower := strings.ToLower(subject)
			if !strings.HasPrefix(lower, "re:") && !strings.HasPrefix(lower, "fwd:") {
				subject = "Re: " + subject
			}
			base = subject
			break
		}
	}
	if base == "" && bundle.Objective != "" {
		base = cleanPhrase(bundle.Objective, subjectMaxChars)
	}
	if base == "" {
		switch tone.Band {
		case ToneCoolProfessional:
			base = "Following up"
		case ToneWarmProfessional:
			base = "Checking in"
		default:
			base = "Quick hello"
		}
	}
	if len(base) > subjectMaxChars {
		base = strings.TrimRight(base[:subjectMaxChars-3], " ") + "..."
	}
	return base
}
