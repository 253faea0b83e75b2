package drafting

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/errors"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

// CreateRequest asks for one draft for one contact.
type CreateRequest struct {
	ContactID        string      `json:"contact_id"`
	Objective        string      `json:"objective"`
	Flags            PolicyFlags `json:"policy_flags"`
	OverwriteDraftID string      `json:"overwrite_draft_id,omitempty"`
}

// CreateResult is the persisted draft plus the context it was built from.
type CreateResult struct {
	Draft          *domain.Draft  `json:"draft"`
	ContextSummary map[string]any `json:"context_summary"`
	Backend        string         `json:"composer_backend"`
}

// Service owns the draft lifecycle: retrieval, composition, the policy
// gate, citations, and persistence.
type Service struct {
	log       *logger.Logger
	drafts    repos.DraftRepo
	retriever *Retriever
	composer  *Composer
	style     *StyleGuide
}

func NewService(baseLog *logger.Logger, drafts repos.DraftRepo, retriever *Retriever, composer *Composer, style *StyleGuide) (*Service, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("drafting: nil logger")
	}
	if drafts == nil || retriever == nil || composer == nil {
		return nil, fmt.Errorf("drafting: drafts repo, retriever, and composer are required")
	}
	return &Service{
		log:       baseLog.With("service", "DraftingService"),
		drafts:    drafts,
		retriever: retriever,
		composer:  composer,
		style:     style,
	}, nil
}

// EstimateRelationshipScore prefers the latest snapshot; without one it
// approximates from how much context retrieval found.
func EstimateRelationshipScore(bundle *Bundle) float64 {
	if bundle.RelationshipHint != nil {
		return math.Max(0, math.Min(100, *bundle.RelationshipHint))
	}
	interactionCount := len(bundle.RecentInteractions)
	chunkCount := len(bundle.RelevantChunks)
	if interactionCount == 0 && chunkCount == 0 {
		return 0
	}
	claimCount := len(bundle.GraphClaimSnippets)
	pathCount := len(bundle.GraphPaths)
	reach := 0
	if bundle.GraphMetrics != nil {
		reach = bundle.GraphMetrics.EntityReach2Hop
	}
	return math.Min(100,
		float64(interactionCount)*16.0+
			float64(chunkCount)*6.0+
			float64(claimCount)*2.5+
			float64(pathCount)*3.5+
			float64(reach)*0.8)
}

func retrievalTrace(bundle *Bundle) map[string]any {
	chunks := make([]map[string]any, 0, 5)
	for i, chunk := range bundle.RelevantChunks {
		if i >= 5 {
			break
		}
		chunks = append(chunks, map[string]any{
			"chunk_id":       chunk.ChunkID.String(),
			"interaction_id": chunk.InteractionID.String(),
			"score":          chunk.Score,
			"snippet":        citationSnippet(chunk.Text),
		})
	}
	pathTraces := make([]map[string]any, 0, 6)
	for i, p := range bundle.GraphPaths {
		if i >= 6 {
			break
		}
		pathTraces = append(pathTraces, map[string]any{
			"path_text":      cleanPhrase(p.PathText, 260),
			"hops":           p.Hops,
			"avg_confidence": p.AvgConfidence,
			"uncertain_hops": p.UncertainHops,
			"predicates":     p.Predicates,
		})
	}
	return map[string]any{
		"objective_query":      bundle.Objective,
		"proposed_next_action": bundle.ProposedNextAction,
		"recent_interactions":  bundle.RecentInteractions,
		"vector_chunks":        chunks,
		"graph_claim_snippets": bundle.GraphClaimSnippets,
		"graph_paths":          pathTraces,
		"focus_terms":          bundle.FocusTerms,
		"hybrid_graph_query":   bundle.HybridQuery,
		"graph_metrics":        bundle.GraphMetrics,
		"active_thread":        bundle.ActiveThread,
	}
}

// Create builds the bundle, composes the draft, enforces the policy gate,
// and writes the row. Overwrites reuse the prior draft id when requested.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if strings.TrimSpace(req.ContactID) == "" {
		return nil, fmt.Errorf("%w: contact_id is required", errors.ErrInvalidArgument)
	}

	bundle, err := s.retriever.BuildBundle(ctx, req.ContactID, req.Objective, req.Flags)
	if err != nil {
		return nil, err
	}

	relationship := EstimateRelationshipScore(bundle)
	tone := ResolveToneBand(relationship)
	draftText, backend := s.composer.Compose(ctx, bundle, tone)

	if violations := CheckPolicy(draftText, bundle.InternalTrace); len(violations) > 0 {
		s.log.Warn("draft rejected by policy gate",
			"contact_id", req.ContactID, "violations", len(violations))
		return nil, &PolicyError{Violations: violations, Flags: bundle.PolicyFlags}
	}

	subject := ComposeSubject(bundle, tone)
	citations := BuildCitations(draftText, bundle.RelevantChunks)

	prompt, err := json.Marshal(map[string]any{
		"objective":       bundle.Objective,
		"policy_flags":    bundle.PolicyFlags,
		"draft_subject":   subject,
		"retrieval_trace": retrievalTrace(bundle),
		"composer":        backend,
	})
	if err != nil {
		return nil, err
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return nil, err
	}

	var draft *domain.Draft
	if req.OverwriteDraftID != "" {
		id, err := uuid.Parse(req.OverwriteDraftID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad overwrite_draft_id", errors.ErrInvalidArgument)
		}
		draft, err = s.drafts.GetByID(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		if draft == nil || draft.ContactID != req.ContactID {
			return nil, fmt.Errorf("%w: draft to overwrite", errors.ErrNotFound)
		}
		draft.Prompt = datatypes.JSON(prompt)
		draft.Subject = subject
		draft.DraftText = draftText
		draft.Citations = datatypes.JSON(citationsJSON)
		draft.ToneBand = tone.Band
		draft.Status = domain.DraftStatusProposed
		if err := s.drafts.Update(ctx, nil, draft); err != nil {
			return nil, err
		}
	} else {
		draft = &domain.Draft{
			ID:        uuid.New(),
			ContactID: req.ContactID,
			CreatedAt: time.Now().UTC(),
			Prompt:    datatypes.JSON(prompt),
			Subject:   subject,
			DraftText: draftText,
			Citations: datatypes.JSON(citationsJSON),
			ToneBand:  tone.Band,
			Status:    domain.DraftStatusProposed,
		}
		if err := s.drafts.Create(ctx, nil, draft); err != nil {
			return nil, err
		}
	}

	contextSummary := map[string]any{
		"display_name":         bundle.Contact["display_name"],
		"primary_email":        bundle.Contact["primary_email"],
		"recent_interactions":  len(bundle.RecentInteractions),
		"relevant_chunks":      len(bundle.RelevantChunks),
		"graph_claim_snippets": len(bundle.GraphClaimSnippets),
		"graph_paths":          len(bundle.GraphPaths),
		"relationship_score":   relationship,
	}
	return &CreateResult{Draft: draft, ContextSummary: contextSummary, Backend: backend}, nil
}

// SuggestObjective builds a bundle without an objective and reports what
// the retriever would pursue, plus where each piece of context came from.
func (s *Service) SuggestObjective(ctx context.Context, contactID string, flags PolicyFlags) (string, map[string]any, error) {
	bundle, err := s.retriever.BuildBundle(ctx, contactID, "", flags)
	if err != nil {
		return "", nil, err
	}
	objective, sources := DeriveObjective(bundle)
	return objective, sources, nil
}

// Latest returns the newest draft for a contact.
func (s *Service) Latest(ctx context.Context, contactID string) (*domain.Draft, error) {
	draft, err := s.drafts.LatestByContact(ctx, nil, contactID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, fmt.Errorf("%w: no saved draft for contact", errors.ErrNotFound)
	}
	return draft, nil
}

// Get fetches a draft by id.
func (s *Service) Get(ctx context.Context, draftID string) (*domain.Draft, error) {
	id, err := uuid.Parse(draftID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad draft id", errors.ErrInvalidArgument)
	}
	draft, err := s.drafts.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, fmt.Errorf("%w: draft", errors.ErrNotFound)
	}
	return draft, nil
}

var validDraftStatuses = map[string]struct{}{
	domain.DraftStatusProposed:  {},
	domain.DraftStatusApproved:  {},
	domain.DraftStatusEdited:    {},
	domain.DraftStatusDiscarded: {},
}

// SetStatus moves a draft through its lifecycle.
func (s *Service) SetStatus(ctx context.Context, draftID, status string) (*domain.Draft, error) {
	if _, ok := validDraftStatuses[status]; !ok {
		return nil, fmt.Errorf("%w: unknown draft status %q", errors.ErrInvalidArgument, status)
	}
	draft, err := s.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	draft.Status = status
	if err := s.drafts.Update(ctx, nil, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Revise replaces the draft body and subject with the user's edits.
func (s *Service) Revise(ctx context.Context, draftID, subject, body, status string) (*domain.Draft, error) {
	if _, ok := validDraftStatuses[status]; !ok {
		return nil, fmt.Errorf("%w: unknown draft status %q", errors.ErrInvalidArgument, status)
	}
	draft, err := s.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	draft.DraftText = body
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "(No subject)"
	}
	draft.Subject = subject
	draft.Status = status

	var prompt map[string]any
	if len(draft.Prompt) > 0 {
		_ = json.Unmarshal(draft.Prompt, &prompt)
	}
	if prompt == nil {
		prompt = map[string]any{}
	}
	prompt["draft_subject"] = subject
	prompt["last_revised_at"] = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.Marshal(prompt)
	if err != nil {
		return nil, err
	}
	draft.Prompt = datatypes.JSON(raw)

	if err := s.drafts.Update(ctx, nil, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// UpdateWritingStyle refreshes the style guide from this draft. Only drafts
// the user has already revised or approved qualify.
func (s *Service) UpdateWritingStyle(ctx context.Context, draftID string) (*UpdateResult, error) {
	draft, err := s.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status != domain.DraftStatusEdited && draft.Status != domain.DraftStatusApproved {
		return nil, fmt.Errorf("%w: revise and save the draft before updating the style guide", errors.ErrInvalidArgument)
	}
	if s.style == nil {
		return nil, fmt.Errorf("drafting: no style guide configured")
	}
	return s.style.UpdateFromDrafts(ctx, s.drafts, draft, 24)
}
