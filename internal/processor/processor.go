package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/luxcrm/relay/internal/data/graph"
	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/evidence"
	"github.com/luxcrm/relay/internal/extraction"
	"github.com/luxcrm/relay/internal/memory"
	"github.com/luxcrm/relay/internal/news"
	"github.com/luxcrm/relay/internal/ontology"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
	"github.com/luxcrm/relay/internal/resolution"
	"github.com/luxcrm/relay/internal/scoring"
	"github.com/luxcrm/relay/internal/summarycache"
	"github.com/luxcrm/relay/internal/utils"
)

const (
	interactionSummaryChars = 280
	defaultEvidenceChunks   = 3
	newsMatchLimit          = 10
	uncertainRelationFloor  = 0.8
)

// Service runs the per-interaction pipeline: contact resolution, graph
// merge, chunking, extraction, memory ops, contradiction tasks, relation
// triples, and score snapshots. Each contact is a separate subtask boundary
// so one contact's failure never blocks the rest of the interaction.
type Service struct {
	log          *logger.Logger
	contacts     repos.ContactRepo
	interactions repos.InteractionRepo
	rawEvents    repos.RawEventRepo
	chunks       repos.ChunkRepo
	store        *evidence.Store
	extractor    *extraction.Service
	proposer     *memory.Service
	resolution   *resolution.Service
	scoring      *scoring.Service
	matcher      *news.Matcher
	summaries    *summarycache.Cache
	neo          *neo4jdb.Client
	onto         *ontology.Config
	threshold    float64
	agentID      string
}

func NewService(
	log *logger.Logger,
	contacts repos.ContactRepo,
	interactions repos.InteractionRepo,
	rawEvents repos.RawEventRepo,
	chunks repos.ChunkRepo,
	store *evidence.Store,
	extractor *extraction.Service,
	proposer *memory.Service,
	resolutionSvc *resolution.Service,
	scoringSvc *scoring.Service,
	matcher *news.Matcher,
	summaries *summarycache.Cache,
	neo *neo4jdb.Client,
	onto *ontology.Config,
) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("processor: logger is required")
	}
	if contacts == nil || interactions == nil || rawEvents == nil || chunks == nil {
		return nil, fmt.Errorf("processor: contact, interaction, raw event and chunk repos are required")
	}
	if onto == nil {
		onto = ontology.Load(log)
	}
	svc := &Service{
		log:          log.With("service", "processor"),
		contacts:     contacts,
		interactions: interactions,
		rawEvents:    rawEvents,
		chunks:       chunks,
		store:        store,
		extractor:    extractor,
		proposer:     proposer,
		resolution:   resolutionSvc,
		scoring:      scoringSvc,
		matcher:      matcher,
		summaries:    summaries,
		neo:          neo,
		onto:         onto,
		threshold:    utils.GetEnvAsFloat("AUTO_ACCEPT_THRESHOLD", memory.DefaultAutoAcceptThr, log),
		agentID:      utils.GetEnv("MEMORY_AGENT_ID", "relay_agent", log),
	}
	return svc, nil
}

// rawBody returns the body_plain of the raw event behind an interaction.
// Missing raw events are not an error: webhook-less backfills may insert
// interactions directly.
func (s *Service) rawBody(ctx context.Context, row *domain.Interaction) string {
	event, err := s.rawEvents.GetBySourceExternal(ctx, nil, row.SourceSystem, row.ExternalID)
	if err != nil || event == nil {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return ""
	}
	body, _ := payload["body_plain"].(string)
	return body
}

// resolveContacts matches lowercased participant emails against the contact
// registry. Returns sorted matched contact ids and the emails that matched
// nothing.
func (s *Service) resolveContacts(ctx context.Context, row *domain.Interaction) ([]string, []string, error) {
	set := repos.ParticipantsOf(row)
	seen := map[string]struct{}{}
	var emails []string
	for _, bucket := range [][]domain.Participant{set.From, set.To, set.CC} {
		for _, p := range bucket {
			email := strings.ToLower(strings.TrimSpace(p.Email))
			if email == "" {
				continue
			}
			if _, ok := seen[email]; ok {
				continue
			}
			seen[email] = struct{}{}
			emails = append(emails, email)
		}
	}
	if len(emails) == 0 {
		return nil, nil, nil
	}
	sort.Strings(emails)

	rows, err := s.contacts.GetByEmails(ctx, nil, emails)
	if err != nil {
		return nil, nil, err
	}
	matched := map[string]struct{}{}
	var contactIDs []string
	for _, c := range rows {
		matched[strings.ToLower(c.PrimaryEmail)] = struct{}{}
		contactIDs = append(contactIDs, c.ContactID)
	}
	sort.Strings(contactIDs)

	var unresolved []string
	for _, email := range emails {
		if _, ok := matched[email]; !ok {
			unresolved = append(unresolved, email)
		}
	}
	return contactIDs, unresolved, nil
}

// ensureChunks returns the interaction's chunks, creating and embedding them
// from the body text when none exist yet. Reprocessing reuses existing rows
// so chunk ids stay stable across runs.
func (s *Service) ensureChunks(ctx context.Context, row *domain.Interaction, body string) ([]*domain.Chunk, error) {
	existing, err := s.chunks.ListByInteraction(ctx, nil, row.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}
	if s.store == nil || strings.TrimSpace(body) == "" {
		return nil, nil
	}
	specs := evidence.ChunkInteractionText(row.Type, body)
	return s.store.PutChunks(ctx, row.ID, specs)
}

func chunkSpanMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var span map[string]any
	if err := json.Unmarshal(raw, &span); err != nil {
		return nil
	}
	return span
}

// defaultEvidenceRefs takes the first chunks of the interaction as the
// provenance attached to claims whose extractor emitted none.
func defaultEvidenceRefs(interactionID string, chunkRows []*domain.Chunk) []domain.EvidenceRef {
	refs := make([]domain.EvidenceRef, 0, defaultEvidenceChunks)
	for _, chunk := range chunkRows {
		if len(refs) >= defaultEvidenceChunks {
			break
		}
		refs = append(refs, domain.EvidenceRef{
			InteractionID: interactionID,
			ChunkID:       chunk.ID.String(),
			Span:          chunkSpanMap(chunk.Span),
			QuoteHash:     fmt.Sprintf("%s:%d", chunk.ID.String(), len(chunk.Text)),
		})
	}
	return refs
}

// claimsFromOps folds proposer ops into writable claims. REJECT ops keep the
// claim with rejected status so the graph retains an audit trail; unknown op
// codes are dropped.
func claimsFromOps(ops []domain.MemoryOp, defaults []domain.EvidenceRef) []domain.Claim {
	var out []domain.Claim
	for _, op := range ops {
		if op.Claim.ClaimID == "" {
			continue
		}
		claim := op.Claim.Clone()
		switch op.Op {
		case domain.MemoryOpReject:
			claim.Status = domain.ClaimStatusRejected
		case domain.MemoryOpAdd, domain.MemoryOpUpdate, domain.MemoryOpSupersede:
		default:
			continue
		}
		if len(claim.EvidenceRefs) == 0 {
			claim.EvidenceRefs = append([]domain.EvidenceRef(nil), defaults...)
		}
		out = append(out, claim)
	}
	return out
}

// writeRelations mirrors non-rejected claims into graph triples. Uncertain or
// conflicting high-value triples open a review task instead of failing.
func (s *Service) writeRelations(ctx context.Context, contact *domain.Contact, row *domain.Interaction, claims []domain.Claim) error {
	if !s.neo.Enabled() {
		return nil
	}
	var firstErr error
	for i := range claims {
		claim := &claims[i]
		if claim.Status == domain.ClaimStatusRejected {
			continue
		}
		payload := s.onto.RelationPayloadFromClaim(claim)
		if payload == nil {
			continue
		}
		uncertain := claim.Status != domain.ClaimStatusAccepted || claim.Confidence < uncertainRelationFloor
		var evidenceIDs []string
		for _, ref := range claim.EvidenceRefs {
			if ref.ChunkID != "" {
				evidenceIDs = append(evidenceIDs, ref.ChunkID)
			}
		}
		res, err := graph.UpsertRelation(ctx, s.neo, contact, graph.RelationInput{
			ContactID:     contact.ContactID,
			InteractionID: row.ID.String(),
			Subject:       payload.SubjectName,
			SubjectKind:   payload.SubjectKind,
			Predicate:     payload.Predicate,
			Object:        payload.ObjectName,
			ObjectKind:    payload.ObjectKind,
			ClaimID:       claim.ClaimID,
			Confidence:    claim.Confidence,
			Status:        claim.Status,
			Uncertain:     uncertain,
			HighValue:     payload.HighValue,
			SeenAt:        row.Timestamp,
			EvidenceIDs:   evidenceIDs,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if payload.HighValue && (uncertain || res.Conflict != nil) && s.resolution != nil {
			taskPayload := map[string]any{
				"interaction_id": row.ID.String(),
				"subject":        payload.SubjectName,
				"predicate":      payload.Predicate,
				"object":         payload.ObjectName,
				"confidence":     claim.Confidence,
				"status":         claim.Status,
				"uncertain":      uncertain,
			}
			currentClaimID := ""
			if res.Conflict != nil {
				currentClaimID = res.Conflict.ClaimID
				taskPayload["conflict_object"] = res.Conflict.ObjectName
				taskPayload["conflict_confidence"] = res.Conflict.Confidence
			}
			if _, err := s.resolution.CreateTask(ctx, contact.ContactID, domain.TaskTypeGraphRelationReview, claim.ClaimID, currentClaimID, taskPayload); err != nil {
				s.log.Warn("graph relation review task failed", "contact_id", contact.ContactID, "claim_id", claim.ClaimID, "error", err)
			}
		}
	}
	return firstErr
}

// processContact is the per-contact subtask. Anything it returns goes into
// processing_error for the interaction but does not abort other contacts.
func (s *Service) processContact(ctx context.Context, row *domain.Interaction, contactID, body string, proposed []domain.Claim, defaults []domain.EvidenceRef) error {
	contact, err := s.contacts.GetByID(ctx, nil, contactID)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	if contact == nil {
		return fmt.Errorf("contact %s missing from registry", contactID)
	}

	var existing []domain.Claim
	if s.neo.Enabled() {
		existing, err = graph.GetContactClaims(ctx, s.neo, contactID, domain.ClaimStatusAccepted)
		if err != nil {
			s.log.Warn("reading accepted claims failed", "contact_id", contactID, "error", err)
			existing = nil
		}
	}

	candidates := make([]domain.Claim, 0, len(proposed))
	for _, claim := range proposed {
		c := claim.Clone()
		c.ContactID = contactID
		c.EvidenceRefs = append([]domain.EvidenceRef(nil), defaults...)
		candidates = append(candidates, c)
	}

	summary := body
	if len(summary) > interactionSummaryChars {
		summary = summary[:interactionSummaryChars]
	}
	bundle := memory.NewBundle(summary, existing, candidates, s.threshold, map[string]string{
		"user_id":        contactID,
		"agent_id":       s.agentID,
		"run_id":         row.ID.String(),
		"contact_id":     contactID,
		"interaction_id": row.ID.String(),
	})

	var newClaims []domain.Claim
	if s.proposer != nil {
		ops, err := s.proposer.ProposeOps(ctx, bundle)
		if err != nil {
			return fmt.Errorf("memory ops: %w", err)
		}
		newClaims = claimsFromOps(ops, defaults)
	}

	if s.neo.Enabled() {
		for i := range newClaims {
			if err := graph.WriteClaimWithEvidence(ctx, s.neo, contactID, row.ID.String(), &newClaims[i]); err != nil {
				return fmt.Errorf("write claim %s: %w", newClaims[i].ClaimID, err)
			}
		}
	}

	if s.resolution != nil {
		for _, issue := range memory.DetectContradictions(existing, newClaims) {
			if _, err := s.resolution.CreateContradictionTask(ctx, contactID, issue); err != nil {
				s.log.Warn("contradiction task failed", "contact_id", contactID, "task_type", issue.TaskType, "error", err)
			}
		}
	}

	if err := s.writeRelations(ctx, contact, row, newClaims); err != nil {
		return fmt.Errorf("relations: %w", err)
	}

	if s.scoring != nil {
		if _, err := s.scoring.ComputeContact(ctx, contact); err != nil {
			return fmt.Errorf("scoring: %w", err)
		}
	}

	if s.summaries != nil {
		s.summaries.Invalidate(contactID)
		if _, err := s.summaries.Refresh(ctx, contactID); err != nil {
			s.log.Warn("summary refresh failed", "contact_id", contactID, "error", err)
		}
	}
	return nil
}

// ProcessInteraction runs the full pipeline for one interaction. Per-contact
// subtask failures are joined into processing_error; the interaction still
// advances to processed so it is never stranded in the queue.
func (s *Service) ProcessInteraction(ctx context.Context, interactionID uuid.UUID) error {
	row, err := s.interactions.GetByID(ctx, nil, interactionID)
	if err != nil {
		return err
	}
	if row == nil {
		s.log.Warn("interaction missing, dropping job", "interaction_id", interactionID.String())
		return nil
	}
	if row.Type == domain.InteractionTypeNews {
		return s.ProcessNews(ctx, interactionID)
	}

	body := s.rawBody(ctx, row)

	contactIDs, unresolved, err := s.resolveContacts(ctx, row)
	if err != nil {
		_ = s.interactions.SetStatus(ctx, nil, row.ID, domain.InteractionStatusError, fmt.Sprintf("contact resolution: %v", err))
		return err
	}
	if err := s.interactions.SetContactIDs(ctx, nil, row.ID, contactIDs); err != nil {
		return err
	}
	ids, _ := json.Marshal(contactIDs)
	row.ContactIDs = ids

	var failures []string
	if err := graph.MergeInteraction(ctx, s.neo, row, contactIDs); err != nil {
		failures = append(failures, fmt.Sprintf("graph merge: %v", err))
	}

	if s.resolution != nil {
		for _, email := range unresolved {
			_, _, err := s.resolution.CreateIdentityTask(ctx, email, map[string]any{
				"interaction_id": row.ID.String(),
				"source_system":  row.SourceSystem,
			})
			if err != nil {
				s.log.Warn("identity task failed", "email", email, "error", err)
			}
		}
	}

	chunkRows, err := s.ensureChunks(ctx, row, body)
	if err != nil {
		_ = s.interactions.SetStatus(ctx, nil, row.ID, domain.InteractionStatusError, fmt.Sprintf("chunking: %v", err))
		return err
	}

	var proposed []domain.Claim
	if s.extractor != nil {
		cands, err := s.extractor.Extract(ctx, row.ID.String(), body)
		if err != nil {
			failures = append(failures, fmt.Sprintf("extraction: %v", err))
		} else {
			for _, claim := range extraction.ClaimsFromCandidates(s.onto, cands) {
				if claim != nil {
					proposed = append(proposed, *claim)
				}
			}
		}
	}
	defaults := defaultEvidenceRefs(row.ID.String(), chunkRows)

	for _, contactID := range contactIDs {
		if err := s.processContact(ctx, row, contactID, body, proposed, defaults); err != nil {
			s.log.Error("contact subtask failed", "interaction_id", row.ID.String(), "contact_id", contactID, "error", err)
			failures = append(failures, fmt.Sprintf("contact %s: %v", contactID, err))
		}
	}

	return s.interactions.SetStatus(ctx, nil, row.ID, domain.InteractionStatusProcessed, strings.Join(failures, "; "))
}

// ProcessNews chunks and embeds a news article. Contact matching runs so its
// cost is visible at processing time, but matches are computed on demand by
// the API and intentionally not persisted.
func (s *Service) ProcessNews(ctx context.Context, interactionID uuid.UUID) error {
	row, err := s.interactions.GetByID(ctx, nil, interactionID)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}

	body := s.rawBody(ctx, row)
	if _, err := s.ensureChunks(ctx, row, body); err != nil {
		_ = s.interactions.SetStatus(ctx, nil, row.ID, domain.InteractionStatusError, fmt.Sprintf("chunking: %v", err))
		return err
	}

	if s.matcher != nil && strings.TrimSpace(body) != "" {
		if _, err := s.matcher.MatchContacts(ctx, body, newsMatchLimit); err != nil {
			s.log.Warn("news match failed", "interaction_id", row.ID.String(), "error", err)
		}
	}
	return s.interactions.SetStatus(ctx, nil, row.ID, domain.InteractionStatusProcessed, "")
}

// RecomputeScores refreshes the snapshot of every registered contact.
// Returns how many snapshots were written.
func (s *Service) RecomputeScores(ctx context.Context) (int, error) {
	if s.scoring == nil {
		return 0, fmt.Errorf("processor: scoring service not configured")
	}
	rows, err := s.contacts.ListAll(ctx, nil)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, contact := range rows {
		if _, err := s.scoring.ComputeContact(ctx, contact); err != nil {
			s.log.Warn("score recompute failed", "contact_id", contact.ContactID, "error", err)
			continue
		}
		written++
	}
	return written, nil
}

// CleanupResult reports rows removed by a retention sweep.
type CleanupResult struct {
	Enabled          bool  `json:"enabled"`
	RawEventsDeleted int64 `json:"raw_events_deleted"`
	ChunksDeleted    int64 `json:"chunks_deleted"`
	DraftsDeleted    int64 `json:"drafts_deleted"`
}

// Cleanup deletes raw events, chunks and terminal drafts past their
// retention windows. Proposed drafts are kept regardless of age.
func (s *Service) Cleanup(ctx context.Context, drafts repos.DraftRepo) (*CleanupResult, error) {
	if !utils.GetEnvAsBool("DATA_CLEANUP_ENABLED", true, s.log) {
		return &CleanupResult{Enabled: false}, nil
	}
	now := time.Now().UTC()
	rawCutoff := now.AddDate(0, 0, -utils.GetEnvAsInt("DATA_RETENTION_RAW_DAYS", 180, s.log))
	chunkCutoff := now.AddDate(0, 0, -utils.GetEnvAsInt("DATA_RETENTION_CHUNKS_DAYS", 365, s.log))
	draftCutoff := now.AddDate(0, 0, -utils.GetEnvAsInt("DATA_RETENTION_DRAFTS_DAYS", 365, s.log))

	result := &CleanupResult{Enabled: true}
	var err error
	if result.RawEventsDeleted, err = s.rawEvents.DeleteReceivedBefore(ctx, nil, rawCutoff); err != nil {
		return nil, err
	}
	if result.ChunksDeleted, err = s.chunks.DeleteCreatedBefore(ctx, nil, chunkCutoff); err != nil {
		return nil, err
	}
	statuses := []string{domain.DraftStatusApproved, domain.DraftStatusDiscarded, domain.DraftStatusEdited}
	if result.DraftsDeleted, err = drafts.DeleteCreatedBefore(ctx, nil, draftCutoff, statuses); err != nil {
		return nil, err
	}
	s.log.Info("retention cleanup finished",
		"raw_events_deleted", result.RawEventsDeleted,
		"chunks_deleted", result.ChunksDeleted,
		"drafts_deleted", result.DraftsDeleted)
	return result, nil
}
