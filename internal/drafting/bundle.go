package drafting

import (
	"strings"

	"github.com/luxcrm/relay/internal/data/graph"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/evidence"
)

// PolicyFlags control what evidence may surface in external text.
type PolicyFlags struct {
	AllowSensitive                     bool `json:"allow_sensitive"`
	AllowUncertainContext              bool `json:"allow_uncertain_context"`
	AllowProposedChangesInExternalText bool `json:"allow_proposed_changes_in_external_text"`
}

// EffectiveAllowUncertainForExternal reports whether proposed or uncertain
// assertions may appear in outbound text.
func (f PolicyFlags) EffectiveAllowUncertainForExternal() bool {
	return f.AllowUncertainContext || f.AllowProposedChangesInExternalText
}

// Assertion is one graph claim flattened for the composer and the policy
// gate. ObjectName is the phrase the gate scans the draft for.
type Assertion struct {
	AssertionID string  `json:"assertion_id"`
	ClaimType   string  `json:"claim_type"`
	ObjectName  string  `json:"object_name"`
	Status      string  `json:"status"`
	Confidence  float64 `json:"confidence"`
	Sensitive   bool    `json:"sensitive"`
}

// InteractionRef is the slim interaction shape carried in the bundle.
type InteractionRef struct {
	InteractionID string `json:"interaction_id"`
	Timestamp     string `json:"timestamp"`
	Subject       string `json:"subject"`
	Direction     string `json:"direction"`
	ThreadID      string `json:"thread_id"`
}

// ThreadCandidate is one scored conversation thread; the best one becomes
// the active thread the draft continues.
type ThreadCandidate struct {
	ThreadID        string   `json:"thread_id"`
	Subjects        []string `json:"subjects"`
	Count           int      `json:"count"`
	LatestDirection string   `json:"latest_direction"`
	RecencyDays     float64  `json:"recency_days"`
	Score           float64  `json:"score"`
}

// Bundle is everything retrieval assembled for one draft.
type Bundle struct {
	Contact              map[string]any          `json:"contact"`
	Objective            string                  `json:"objective"`
	ProposedNextAction   string                  `json:"proposed_next_action"`
	RecentInteractions   []InteractionRef        `json:"recent_interactions"`
	ActiveThread         *ThreadCandidate        `json:"active_thread,omitempty"`
	RelevantChunks       []evidence.SearchResult `json:"relevant_chunks"`
	EmailContextSnippets []string                `json:"email_context_snippets"`
	GraphClaimSnippets   []string                `json:"graph_claim_snippets"`
	GraphPathSnippets    []string                `json:"graph_path_snippets"`
	GraphPaths           []*graph.Path           `json:"graph_paths"`
	GraphMetrics         *graph.Metrics          `json:"graph_metrics,omitempty"`
	FocusTerms           []string                `json:"focus_terms"`
	MotivatorSignals     []string                `json:"motivator_signals"`
	AssertionTrace       []Assertion             `json:"assertion_evidence_trace"`
	InternalTrace        []Assertion             `json:"internal_assertion_evidence_trace"`
	HybridQuery          string                  `json:"hybrid_graph_query"`
	RelationshipHint     *float64                `json:"relationship_score_hint,omitempty"`
	PolicyFlags          PolicyFlags             `json:"policy_flags"`
}

func cleanPhrase(value string, maxChars int) string {
	normalized := strings.TrimSpace(strings.Join(strings.Fields(value), " "))
	if normalized == "" || len(normalized) <= maxChars {
		return normalized
	}
	return strings.TrimRight(normalized[:maxChars-3], " ") + "..."
}

// claimFocus strips the "Label:" prefix a claim snippet carries so the text
// reads naturally inside an objective sentence.
func claimFocus(snippet string) string {
	cleaned := cleanPhrase(snippet, 70)
	if cleaned == "" {
		return ""
	}
	if idx := strings.Index(cleaned, ":"); idx >= 0 {
		if rest := strings.TrimSpace(cleaned[idx+1:]); rest != "" {
			return rest
		}
	}
	return cleaned
}

// claimSnippet renders a claim as a short human-readable line, or "" when
// the claim has nothing presentable.
func claimSnippet(claim domain.Claim) string {
	if claim.ClaimType == domain.ClaimTypeEmployment {
		company := claim.StringValue("company", "employer", "organization")
		title := claim.StringValue("title", "role")
		if company != "" {
			if title != "" {
				return "Current role: " + title + " at " + company
			}
			return "Current company: " + company
		}
	}
	for _, key := range []string{"location", "timezone", "focus_area", "priority", "goal", "label", "object"} {
		if v := claim.StringValue(key); v != "" {
			return snippetLabel(key) + ": " + v
		}
	}
	return ""
}

func snippetLabel(key string) string {
	words := strings.Split(key, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// assertionObject picks the phrase the policy gate matches against.
func assertionObject(claim domain.Claim) string {
	return claim.StringValue("object", "label", "company", "value", "target", "topic", "name")
}
