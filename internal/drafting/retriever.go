package drafting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/luxcrm/relay/internal/data/graph"
	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/evidence"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
)

const (
	candidateInteractionLimit = 700
	graphPathLimit            = 14
	graphPathMaxHops          = 3
	graphPathLookbackDays     = 365
	hybridQueryMaxChars       = 900
	hybridTopK                = 24
	threadTopK                = 14
	rerankedChunkLimit        = 6
	claimSnippetLimit         = 5
)

// Retriever assembles the evidence bundle a draft is composed from.
type Retriever struct {
	log          *logger.Logger
	contacts     repos.ContactRepo
	interactions repos.InteractionRepo
	snapshots    repos.ScoreSnapshotRepo
	store        *evidence.Store
	neo          *neo4jdb.Client
}

func NewRetriever(
	baseLog *logger.Logger,
	contacts repos.ContactRepo,
	interactions repos.InteractionRepo,
	snapshots repos.ScoreSnapshotRepo,
	store *evidence.Store,
	neo *neo4jdb.Client,
) (*Retriever, error) {
	if baseLog == nil {
		return nil, fmt.Errorf("drafting: nil logger")
	}
	return &Retriever{
		log:          baseLog.With("service", "DraftRetriever"),
		contacts:     contacts,
		interactions: interactions,
		snapshots:    snapshots,
		store:        store,
		neo:          neo,
	}, nil
}

func interactionAgeDays(ts time.Time, now time.Time) float64 {
	days := now.Sub(ts).Hours() / 24.0
	if days < 0 {
		return 0
	}
	return days
}

// buildThreadCandidates buckets candidate interactions by thread and scores
// each thread on recency, volume, opportunity keywords, graph focus overlap,
// and whether the last message is still unanswered.
func buildThreadCandidates(rows []*domain.Interaction, focusTerms []string, graphHasOpportunity bool, now time.Time) []*ThreadCandidate {
	type bucket struct {
		candidate *ThreadCandidate
		latest    time.Time
		oppHits   int
	}
	focusSet := map[string]struct{}{}
	for _, term := range focusTerms {
		focusSet[strings.ToLower(term)] = struct{}{}
	}
	buckets := map[string]*bucket{}
	var order []string
	for _, row := range rows {
		threadID := strings.TrimSpace(row.ThreadID)
		if threadID == "" {
			threadID = row.ID.String()
		}
		b, ok := buckets[threadID]
		if !ok {
			b = &bucket{candidate: &ThreadCandidate{ThreadID: threadID}}
			buckets[threadID] = b
			order = append(order, threadID)
		}
		b.candidate.Count++
		if subject := strings.TrimSpace(row.Subject); subject != "" && len(b.candidate.Subjects) < 4 {
			b.candidate.Subjects = append(b.candidate.Subjects, subject)
		}
		subjectLower := strings.ToLower(row.Subject)
		for term := range opportunityTerms {
			if strings.Contains(subjectLower, term) {
				b.oppHits++
			}
		}
		// rows arrive newest-first; the first row in a thread is its latest.
		if b.candidate.LatestDirection == "" {
			b.candidate.LatestDirection = row.Direction
			b.latest = row.Timestamp
			b.candidate.RecencyDays = interactionAgeDays(row.Timestamp, now)
		}
	}

	out := make([]*ThreadCandidate, 0, len(order))
	for _, threadID := range order {
		b := buckets[threadID]
		c := b.candidate

		graphHit := 0.0
		subjectTerms := termSet(strings.Join(c.Subjects, " "), 3)
		for term := range focusSet {
			if _, ok := subjectTerms[term]; ok {
				graphHit = 1.0
				break
			}
		}
		graphOpp := 0.0
		if graphHasOpportunity && b.oppHits > 0 {
			graphOpp = 1.0
		}
		openLoop := 0.0
		if c.LatestDirection == "in" {
			openLoop = 1.0
		}
		c.Score = 0.34*math.Exp(-c.RecencyDays/45.0) +
			0.20*math.Min(1, float64(c.Count)/6.0) +
			0.22*math.Min(1, float64(b.oppHits)/5.0) +
			0.12*graphHit +
			0.12*graphOpp +
			0.12*openLoop
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func buildHybridQuery(objective string, paths []*graph.Path, activeThread *ThreadCandidate, focusTerms []string) string {
	parts := []string{strings.TrimSpace(objective)}
	for i, p := range paths {
		if i >= 3 {
			break
		}
		parts = append(parts, cleanPhrase(p.PathText, 180))
	}
	if activeThread != nil {
		for i, subject := range activeThread.Subjects {
			if i >= 2 {
				break
			}
			parts = append(parts, subject)
		}
	}
	if len(focusTerms) > 0 {
		limit := len(focusTerms)
		if limit > 6 {
			limit = 6
		}
		parts = append(parts, strings.Join(focusTerms[:limit], " "))
	}
	var nonEmpty []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(part))
		}
	}
	query := strings.Join(nonEmpty, " ")
	if len(query) > hybridQueryMaxChars {
		query = query[:hybridQueryMaxChars]
	}
	return query
}

func mergeChunksByMaxScore(lists ...[]evidence.SearchResult) []evidence.SearchResult {
	merged := map[string]evidence.SearchResult{}
	var order []string
	for _, list := range lists {
		for _, chunk := range list {
			key := chunk.ChunkID.String()
			existing, ok := merged[key]
			if !ok {
				merged[key] = chunk
				order = append(order, key)
				continue
			}
			if chunk.Score > existing.Score {
				merged[key] = chunk
			}
		}
	}
	out := make([]evidence.SearchResult, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// rerankChunks rescores merged vector hits with recency, objective overlap,
// graph focus overlap, and an active-thread bonus, keeping the top few.
func rerankChunks(
	chunks []evidence.SearchResult,
	objective string,
	focusTerms []string,
	activeThread *ThreadCandidate,
	interactionTimes map[string]time.Time,
	threadOf map[string]string,
	now time.Time,
) []evidence.SearchResult {
	objectiveTerms := termSet(objective, 3)
	focusSet := map[string]struct{}{}
	for _, term := range focusTerms {
		focusSet[strings.ToLower(term)] = struct{}{}
	}
	type scored struct {
		chunk evidence.SearchResult
		score float64
	}
	rescored := make([]scored, 0, len(chunks))
	for _, chunk := range chunks {
		chunkTerms := termSet(chunk.Text, 3)
		recency := 0.0
		if ts, ok := interactionTimes[chunk.InteractionID.String()]; ok {
			recency = math.Exp(-interactionAgeDays(ts, now) / 60.0)
		}
		threadBonus := 0.0
		if activeThread != nil {
			if threadID, ok := threadOf[chunk.InteractionID.String()]; ok && threadID == activeThread.ThreadID {
				threadBonus = 1.0
			}
		}
		score := 0.45*chunk.Score +
			0.25*recency +
			0.20*overlapFraction(objectiveTerms, chunkTerms) +
			0.10*overlapFraction(focusSet, chunkTerms) +
			0.20*threadBonus
		chunk.Score = score
		rescored = append(rescored, scored{chunk: chunk, score: score})
	}
	sort.SliceStable(rescored, func(i, j int) bool { return rescored[i].score > rescored[j].score })
	out := make([]evidence.SearchResult, 0, rerankedChunkLimit)
	for _, item := range rescored {
		out = append(out, item.chunk)
		if len(out) >= rerankedChunkLimit {
			break
		}
	}
	return out
}

func emailContextSnippets(chunks []evidence.SearchResult) []string {
	var snippets []string
	for _, chunk := range chunks {
		normalized := strings.Join(strings.Fields(chunk.Text), " ")
		if normalized == "" {
			continue
		}
		if len(normalized) > 220 {
			normalized = normalized[:220]
		}
		snippets = append(snippets, normalized)
		if len(snippets) >= 3 {
			break
		}
	}
	return snippets
}

// proposeNextAction phrases the concrete follow-up the draft should drive,
// based on the active thread state and the strongest opportunity path.
func proposeNextAction(activeThread *ThreadCandidate, paths []*graph.Path) string {
	subject := ""
	if activeThread != nil && len(activeThread.Subjects) > 0 {
		subject = cleanPhrase(activeThread.Subjects[0], 80)
	}
	var opportunityFocus string
	for _, p := range paths {
		if p.OpportunityHits > 0 {
			opportunityFocus = claimFocus(p.PathText)
			break
		}
	}

	if activeThread != nil && activeThread.LatestDirection == "in" && subject != "" {
		return "Reply on \"" + subject + "\" and answer the open question"
	}
	if opportunityFocus != "" {
		return "Advance " + opportunityFocus + " toward the next milestone"
	}
	if subject != "" {
		return "Follow up on \"" + subject + "\" and propose next steps"
	}
	if activeThread != nil && activeThread.RecencyDays > 30 {
		return "Reconnect after the quiet stretch and restart the conversation"
	}
	return ""
}

// DeriveObjective builds an objective when the caller did not supply one.
func DeriveObjective(bundle *Bundle) (string, map[string]any) {
	var recentSubject string
	for _, item := range bundle.RecentInteractions {
		if s := cleanPhrase(item.Subject, 80); s != "" {
			recentSubject = s
			break
		}
	}
	var vectorContext string
	if len(bundle.EmailContextSnippets) > 0 {
		vectorContext = cleanPhrase(bundle.EmailContextSnippets[0], 110)
	}
	var graphContext string
	if len(bundle.GraphPathSnippets) > 0 {
		graphContext = claimFocus(bundle.GraphPathSnippets[0])
	}
	if graphContext == "" && len(bundle.GraphClaimSnippets) > 0 {
		graphContext = claimFocus(bundle.GraphClaimSnippets[0])
	}

	var objective string
	switch {
	case bundle.ProposedNextAction != "" && recentSubject != "" && !strings.Contains(bundle.ProposedNextAction, recentSubject):
		objective = bundle.ProposedNextAction + " on \"" + recentSubject + "\""
	case bundle.ProposedNextAction != "":
		objective = bundle.ProposedNextAction
	case recentSubject != "" && graphContext != "":
		objective = "Follow up on \"" + recentSubject + "\" and align next steps around " + graphContext
	case recentSubject != "":
		objective = "Follow up on \"" + recentSubject + "\" and propose next steps"
	case graphContext != "":
		objective = "Reconnect and move forward on " + graphContext
	case vectorContext != "":
		objective = "Reconnect using recent email context and define clear next steps"
	default:
		objective = "Reconnect on current priorities and confirm next steps"
	}
	objective = cleanPhrase(objective, 140)
	if objective == "" {
		objective = "Reconnect on current priorities and confirm next steps"
	}
	return objective, map[string]any{
		"recent_subject":         recentSubject,
		"vector_context_snippet": vectorContext,
		"graph_context_snippet":  graphContext,
		"proposed_next_action":   bundle.ProposedNextAction,
	}
}

// BuildBundle runs the retrieval pipeline for one contact.
func (r *Retriever) BuildBundle(ctx context.Context, contactID, objective string, flags PolicyFlags) (*Bundle, error) {
	now := time.Now().UTC()

	contact, err := r.contacts.GetByID(ctx, nil, contactID)
	if err != nil {
		return nil, err
	}

	all, err := r.interactions.ListRecent(ctx, nil, candidateInteractionLimit)
	if err != nil {
		return nil, err
	}
	var candidates []*domain.Interaction
	interactionTimes := map[string]time.Time{}
	threadOf := map[string]string{}
	for _, row := range all {
		matched := false
		for _, id := range repos.ContactIDsOf(row) {
			if id == contactID {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		candidates = append(candidates, row)
		interactionTimes[row.ID.String()] = row.Timestamp
		threadID := strings.TrimSpace(row.ThreadID)
		if threadID == "" {
			threadID = row.ID.String()
		}
		threadOf[row.ID.String()] = threadID
	}

	query := strings.TrimSpace(objective)
	if query == "" {
		if contact != nil && contact.DisplayName != "" {
			query = contact.DisplayName
		} else {
			query = "follow up"
		}
	}

	var paths []*graph.Path
	var metrics *graph.Metrics
	if r.neo.Enabled() {
		paths, err = graph.GetGraphPaths(ctx, r.neo, contactID, query, graphPathMaxHops, graphPathLimit, flags.AllowSensitive, graphPathLookbackDays)
		if err != nil {
			r.log.Warn("graph path retrieval failed", "contact_id", contactID, "error", err)
			paths = nil
		}
		metrics, err = graph.GetGraphMetrics(ctx, r.neo, contactID, 90)
		if err != nil {
			r.log.Warn("graph metrics retrieval failed", "contact_id", contactID, "error", err)
			metrics = nil
		}
	}
	paths = rankGraphPaths(paths, query, now.Unix())
	focusTerms := extractFocusTerms(paths, 6)
	graphHasOpportunity := false
	for _, p := range paths {
		if p.OpportunityHits > 0 {
			graphHasOpportunity = true
			break
		}
	}

	threads := buildThreadCandidates(candidates, focusTerms, graphHasOpportunity, now)
	var activeThread *ThreadCandidate
	if len(threads) > 0 {
		activeThread = threads[0]
	}

	hybridQuery := buildHybridQuery(query, paths, activeThread, focusTerms)
	var vectorChunks, threadChunks []evidence.SearchResult
	if r.store != nil {
		vectorChunks, err = r.store.SimilaritySearch(ctx, hybridQuery, contactID, hybridTopK)
		if err != nil {
			r.log.Warn("vector retrieval failed", "contact_id", contactID, "error", err)
		}
		if activeThread != nil && len(activeThread.Subjects) > 0 {
			threadQuery := strings.Join(activeThread.Subjects, " ")
			threadChunks, err = r.store.SimilaritySearch(ctx, threadQuery, contactID, threadTopK)
			if err != nil {
				r.log.Warn("thread vector retrieval failed", "contact_id", contactID, "error", err)
			}
		}
	}
	merged := mergeChunksByMaxScore(vectorChunks, threadChunks)
	relevant := rerankChunks(merged, query, focusTerms, activeThread, interactionTimes, threadOf, now)

	var claims []domain.Claim
	if r.neo.Enabled() {
		claims, err = graph.GetContactClaims(ctx, r.neo, contactID, "")
		if err != nil {
			r.log.Warn("claim retrieval failed", "contact_id", contactID, "error", err)
			claims = nil
		}
	}

	var claimSnippets, motivators []string
	var publicTrace, internalTrace []Assertion
	for _, claim := range claims {
		assertion := Assertion{
			AssertionID: claim.ClaimID,
			ClaimType:   claim.ClaimType,
			ObjectName:  assertionObject(claim),
			Status:      claim.Status,
			Confidence:  claim.Confidence,
			Sensitive:   claim.Sensitive,
		}
		accepted := claim.Status == domain.ClaimStatusAccepted
		sensitiveOK := !claim.Sensitive || flags.AllowSensitive
		uncertainOK := accepted || flags.EffectiveAllowUncertainForExternal()
		if sensitiveOK && uncertainOK {
			publicTrace = append(publicTrace, assertion)
			if assertion.ObjectName != "" {
				motivators = append(motivators, assertion.ObjectName)
			}
		} else {
			internalTrace = append(internalTrace, assertion)
		}
		if accepted && sensitiveOK && len(claimSnippets) < claimSnippetLimit {
			if snippet := claimSnippet(claim); snippet != "" {
				claimSnippets = append(claimSnippets, snippet)
			}
		}
	}

	var pathSnippets []string
	for _, p := range paths {
		if text := cleanPhrase(p.PathText, 180); text != "" {
			pathSnippets = append(pathSnippets, text)
		}
		if len(pathSnippets) >= 6 {
			break
		}
	}

	var relationshipHint *float64
	if r.snapshots != nil {
		snapshot, err := r.snapshots.GetLatestByContact(ctx, nil, contactID)
		if err != nil {
			r.log.Warn("snapshot lookup failed", "contact_id", contactID, "error", err)
		} else if snapshot != nil {
			v := snapshot.RelationshipScore
			relationshipHint = &v
		}
	}

	recentRefs := make([]InteractionRef, 0, 3)
	for _, row := range candidates {
		recentRefs = append(recentRefs, InteractionRef{
			InteractionID: row.ID.String(),
			Timestamp:     row.Timestamp.UTC().Format(time.RFC3339),
			Subject:       row.Subject,
			Direction:     row.Direction,
			ThreadID:      row.ThreadID,
		})
		if len(recentRefs) >= 3 {
			break
		}
	}

	contactInfo := map[string]any{"contact_id": contactID}
	if contact != nil {
		contactInfo["display_name"] = contact.DisplayName
		contactInfo["primary_email"] = contact.PrimaryEmail
		contactInfo["company"] = contact.Company
	}

	bundle := &Bundle{
		Contact:              contactInfo,
		Objective:            strings.TrimSpace(objective),
		ProposedNextAction:   proposeNextAction(activeThread, paths),
		RecentInteractions:   recentRefs,
		ActiveThread:         activeThread,
		RelevantChunks:       relevant,
		EmailContextSnippets: emailContextSnippets(relevant),
		GraphClaimSnippets:   claimSnippets,
		GraphPathSnippets:    pathSnippets,
		GraphPaths:           paths,
		GraphMetrics:         metrics,
		FocusTerms:           focusTerms,
		MotivatorSignals:     motivators,
		AssertionTrace:       publicTrace,
		InternalTrace:        internalTrace,
		HybridQuery:          hybridQuery,
		RelationshipHint:     relationshipHint,
		PolicyFlags:          flags,
	}
	if bundle.Objective == "" {
		derived, _ := DeriveObjective(bundle)
		bundle.Objective = derived
	}
	return bundle, nil
}
