package drafting

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/luxcrm/relay/internal/data/graph"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/evidence"
)

func TestResolveToneBandBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{20, ToneCoolProfessional},
		{35, ToneCoolProfessional},
		{36, ToneWarmProfessional},
		{55, ToneWarmProfessional},
		{70, ToneWarmProfessional},
		{71, ToneFriendlyPersonal},
		{90, ToneFriendlyPersonal},
	}
	for _, tc := range cases {
		if got := ResolveToneBand(tc.score); got.Band != tc.want {
			t.Errorf("ResolveToneBand(%v) = %q, want %q", tc.score, got.Band, tc.want)
		}
	}
}

func TestRankGraphPathsDownweightsNoise(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-4 * 24 * time.Hour)
	noisy := &graph.Path{
		PathText:      "Jamie -[related_to]-> update",
		AvgConfidence: 0.99,
		LatestSeenAt:  &now,
		NoisePenalty:  0.24,
	}
	useful := &graph.Path{
		PathText:        "Jamie -[opportunity]-> Pricing Pilot Proposal (Acme)",
		AvgConfidence:   0.85,
		OpportunityHits: 1,
		LatestSeenAt:    &recent,
	}
	ranked := rankGraphPaths([]*graph.Path{noisy, useful}, "proposal pricing", now.Unix())
	if ranked[0].PathText != useful.PathText {
		t.Fatalf("expected opportunity path first, got %q", ranked[0].PathText)
	}

	focus := extractFocusTerms(ranked, 6)
	joined := strings.Join(focus, " ")
	if !strings.Contains(joined, "pricing") && !strings.Contains(joined, "proposal") {
		t.Errorf("focus terms missing opportunity vocabulary: %v", focus)
	}
	for _, term := range focus {
		if term == "update" {
			t.Errorf("stopword leaked into focus terms: %v", focus)
		}
	}
}

func TestRankGraphPathsNullTimestampsRankLast(t *testing.T) {
	now := time.Now().UTC()
	dated := &graph.Path{PathText: "a -[knows]-> b", AvgConfidence: 0.5, LatestSeenAt: &now}
	undated := &graph.Path{PathText: "a -[knows]-> c", AvgConfidence: 0.5}
	ranked := rankGraphPaths([]*graph.Path{undated, dated}, "", now.Unix())
	if ranked[0] != dated {
		t.Fatal("path with a timestamp should rank above a null-timestamp path")
	}
}

func TestUncertainHopPenaltyIsCapped(t *testing.T) {
	now := time.Now().UTC().Unix()
	p := &graph.Path{AvgConfidence: 1.0, UncertainHops: 10}
	score := pathRetrievalScore(p, nil, now)
	// 0.35·1.0 − 0.35 cap; recency term for a nil timestamp is e^(−365/90).
	want := 0.35 - 0.35 + 0.30*0.017
	if score < want-0.01 || score > want+0.01 {
		t.Errorf("score = %v, want ≈ %v", score, want)
	}
}

func TestBuildThreadCandidatesOpenLoopAndOpportunity(t *testing.T) {
	now := time.Now().UTC()
	rows := []*domain.Interaction{
		{ID: uuid.New(), ThreadID: "t1", Subject: "Pricing proposal question", Direction: "in", Timestamp: now.Add(-24 * time.Hour)},
		{ID: uuid.New(), ThreadID: "t1", Subject: "Pricing proposal", Direction: "out", Timestamp: now.Add(-48 * time.Hour)},
		{ID: uuid.New(), ThreadID: "t2", Subject: "Lunch sometime", Direction: "out", Timestamp: now.Add(-24 * time.Hour)},
	}
	threads := buildThreadCandidates(rows, []string{"pricing"}, true, now)
	if len(threads) != 2 {
		t.Fatalf("threads = %d, want 2", len(threads))
	}
	if threads[0].ThreadID != "t1" {
		t.Fatalf("opportunity thread should rank first, got %q", threads[0].ThreadID)
	}
	if threads[0].LatestDirection != "in" {
		t.Errorf("latest direction = %q, want in", threads[0].LatestDirection)
	}
	if threads[0].Count != 2 {
		t.Errorf("count = %d, want 2", threads[0].Count)
	}
}

func TestBuildHybridQueryTruncates(t *testing.T) {
	paths := []*graph.Path{{PathText: strings.Repeat("alpha beta ", 60)}}
	thread := &ThreadCandidate{Subjects: []string{strings.Repeat("subject ", 40)}}
	query := buildHybridQuery(strings.Repeat("objective ", 40), paths, thread, []string{"pricing", "pilot"})
	if len(query) > hybridQueryMaxChars {
		t.Fatalf("query length = %d, want <= %d", len(query), hybridQueryMaxChars)
	}
	if !strings.HasPrefix(query, "objective") {
		t.Errorf("objective should lead the query: %q", query[:40])
	}
}

func TestMergeChunksByMaxScore(t *testing.T) {
	id := uuid.New()
	a := []evidence.SearchResult{{ChunkID: id, Score: 0.3}}
	b := []evidence.SearchResult{{ChunkID: id, Score: 0.7}, {ChunkID: uuid.New(), Score: 0.4}}
	merged := mergeChunksByMaxScore(a, b)
	if len(merged) != 2 {
		t.Fatalf("merged = %d, want 2", len(merged))
	}
	if merged[0].ChunkID != id || merged[0].Score != 0.7 {
		t.Errorf("max score should win: %+v", merged[0])
	}
}

func TestCheckPolicyClassification(t *testing.T) {
	draft := "We can move on the revised pricing concession and I heard about the marathon training going well."
	trace := []Assertion{
		{AssertionID: "a-1", ClaimType: domain.ClaimTypeCommitment, ObjectName: "revised pricing concession", Status: domain.ClaimStatusProposed, Confidence: 0.91},
		{AssertionID: "a-2", ClaimType: domain.ClaimTypePersonalDetail, ObjectName: "marathon training", Status: domain.ClaimStatusAccepted, Confidence: 0.92},
		{AssertionID: "a-3", ClaimType: domain.ClaimTypeTopic, ObjectName: "pricing", Status: domain.ClaimStatusProposed, Confidence: 0.5},
		{AssertionID: "a-4", ClaimType: domain.ClaimTypeOpportunity, ObjectName: "zz", Status: domain.ClaimStatusProposed, Confidence: 0.5},
		{AssertionID: "a-5", ClaimType: domain.ClaimTypeOpportunity, ObjectName: "acme renewal", Status: domain.ClaimStatusAccepted, Confidence: 0.95},
	}
	violations := CheckPolicy(draft, trace)
	if len(violations) != 2 {
		t.Fatalf("violations = %d, want 2: %+v", len(violations), violations)
	}
	byID := map[string]Violation{}
	for _, v := range violations {
		byID[v.AssertionID] = v
	}
	if byID["a-1"].Type != ViolationUncertainLeak {
		t.Errorf("a-1 type = %q, want %q", byID["a-1"].Type, ViolationUncertainLeak)
	}
	if byID["a-2"].Type != ViolationSensitiveLeak {
		t.Errorf("a-2 type = %q, want %q", byID["a-2"].Type, ViolationSensitiveLeak)
	}
}

func TestCheckPolicyWholePhraseBoundary(t *testing.T) {
	trace := []Assertion{
		{AssertionID: "a-1", ClaimType: domain.ClaimTypeCommitment, ObjectName: "ship", Status: domain.ClaimStatusProposed, Confidence: 0.9},
	}
	if got := CheckPolicy("We discussed shipping timelines.", trace); len(got) != 0 {
		t.Errorf("substring inside a longer word should not match: %+v", got)
	}
	if got := CheckPolicy("Will you ship the build?", trace); len(got) != 1 {
		t.Errorf("whole word should match: %+v", got)
	}
}

func TestCheckPolicyDeduplicates(t *testing.T) {
	trace := []Assertion{
		{AssertionID: "a-1", ClaimType: domain.ClaimTypeCommitment, ObjectName: "Pilot Review", Status: domain.ClaimStatusProposed, Confidence: 0.9},
		{AssertionID: "a-1", ClaimType: domain.ClaimTypeCommitment, ObjectName: "pilot review", Status: domain.ClaimStatusProposed, Confidence: 0.9},
	}
	got := CheckPolicy("Scheduling the pilot review for Tuesday.", trace)
	if len(got) != 1 {
		t.Fatalf("violations = %d, want 1 after dedupe", len(got))
	}
}

func TestBuildCitationsByParagraphOverlap(t *testing.T) {
	pricingChunk := evidence.SearchResult{
		ChunkID: uuid.New(), InteractionID: uuid.New(),
		Text: "We reviewed the pricing proposal for the pilot rollout",
	}
	lunchChunk := evidence.SearchResult{
		ChunkID: uuid.New(), InteractionID: uuid.New(),
		Text: "Lunch was great, thanks again",
	}
	draft := "Hi Dana,\n\nFollowing up on the pricing proposal for the pilot.\n\nBest,\n[Your Name]"
	citations := BuildCitations(draft, []evidence.SearchResult{pricingChunk, lunchChunk})
	if len(citations) == 0 {
		t.Fatal("expected at least one citation")
	}
	for _, c := range citations {
		if c.Paragraph == 2 && c.ChunkID != pricingChunk.ChunkID.String() {
			t.Errorf("paragraph 2 should cite the pricing chunk, got %q", c.ChunkID)
		}
	}
}

func TestBuildCitationsFallbackWithoutBody(t *testing.T) {
	chunks := []evidence.SearchResult{
		{ChunkID: uuid.New(), InteractionID: uuid.New(), Text: "one"},
		{ChunkID: uuid.New(), InteractionID: uuid.New(), Text: "two"},
		{ChunkID: uuid.New(), InteractionID: uuid.New(), Text: "three"},
		{ChunkID: uuid.New(), InteractionID: uuid.New(), Text: "four"},
	}
	citations := BuildCitations("", chunks)
	if len(citations) != 3 {
		t.Fatalf("citations = %d, want 3", len(citations))
	}
}

func TestComposeTemplatePerToneBand(t *testing.T) {
	bundle := &Bundle{
		Contact:            map[string]any{"display_name": "Dana"},
		Objective:          "confirm the pilot timeline",
		ProposedNextAction: "Advance the pilot toward signature",
		RecentInteractions: []InteractionRef{{Subject: "Pilot kickoff"}},
	}
	cool := composeTemplate(bundle, ResolveToneBand(10))
	if !strings.HasPrefix(cool, "Hello Dana,") {
		t.Errorf("cool draft opener wrong: %q", cool[:20])
	}
	warm := composeTemplate(bundle, ResolveToneBand(50))
	if !strings.HasPrefix(warm, "Hi Dana,") {
		t.Errorf("warm draft opener wrong: %q", warm[:20])
	}
	personal := composeTemplate(bundle, ResolveToneBand(90))
	if !strings.HasPrefix(personal, "Hey Dana,") {
		t.Errorf("personal draft opener wrong: %q", personal[:20])
	}
	if !strings.Contains(warm, "Pilot kickoff") {
		t.Error("bridge line should reference the recent subject")
	}
	if !strings.Contains(warm, "Suggested next step") {
		t.Error("next-step line missing")
	}
	if !strings.HasSuffix(warm, "[Your Name]") {
		t.Error("closer missing")
	}
}

func TestComposeSubject(t *testing.T) {
	bundle := &Bundle{
		Contact:            map[string]any{},
		RecentInteractions: []InteractionRef{{Subject: "Pilot kickoff plan"}},
	}
	if got := ComposeSubject(bundle, ResolveToneBand(50)); got != "Re: Pilot kickoff plan" {
		t.Errorf("subject = %q", got)
	}

	bundle.RecentInteractions = []InteractionRef{{Subject: "Re: renewal terms"}}
	if got := ComposeSubject(bundle, ResolveToneBand(50)); got != "Re: renewal terms" {
		t.Errorf("existing reply prefix should be kept: %q", got)
	}

	long := &Bundle{
		Contact:            map[string]any{},
		RecentInteractions: []InteractionRef{{Subject: strings.Repeat("very long subject ", 20)}},
	}
	if got := ComposeSubject(long, ResolveToneBand(50)); len(got) > subjectMaxChars {
		t.Errorf("subject length = %d, want <= %d", len(got), subjectMaxChars)
	}

	empty := &Bundle{Contact: map[string]any{}}
	if got := ComposeSubject(empty, ResolveToneBand(10)); got != "Following up" {
		t.Errorf("fallback subject = %q", got)
	}
}

func TestDeriveObjectivePrefersNextAction(t *testing.T) {
	bundle := &Bundle{
		Contact:            map[string]any{},
		ProposedNextAction: "Reply on \"Pilot kickoff\" and answer the open question",
		RecentInteractions: []InteractionRef{{Subject: "Pilot kickoff"}},
	}
	objective, sources := DeriveObjective(bundle)
	if !strings.Contains(objective, "Pilot kickoff") {
		t.Errorf("objective = %q", objective)
	}
	if sources["recent_subject"] != "Pilot kickoff" {
		t.Errorf("sources = %+v", sources)
	}

	empty := &Bundle{Contact: map[string]any{}}
	objective, _ = DeriveObjective(empty)
	if objective != "Reconnect on current priorities and confirm next steps" {
		t.Errorf("empty-bundle objective = %q", objective)
	}
}

func TestEstimateRelationshipScore(t *testing.T) {
	hint := 82.0
	if got := EstimateRelationshipScore(&Bundle{RelationshipHint: &hint}); got != 82 {
		t.Errorf("hint score = %v, want 82", got)
	}
	if got := EstimateRelationshipScore(&Bundle{}); got != 0 {
		t.Errorf("empty bundle score = %v, want 0", got)
	}
	bundle := &Bundle{
		RecentInteractions: []InteractionRef{{}, {}},
		RelevantChunks:     []evidence.SearchResult{{}},
		GraphMetrics:       &graph.Metrics{EntityReach2Hop: 5},
	}
	// 2·16 + 1·6 + 5·0.8 = 42
	if got := EstimateRelationshipScore(bundle); got != 42 {
		t.Errorf("heuristic score = %v, want 42", got)
	}
}

func TestClaimSnippet(t *testing.T) {
	employment := domain.Claim{
		ClaimType: domain.ClaimTypeEmployment,
		Value:     map[string]any{"company": "Initech", "title": "CTO"},
	}
	if got := claimSnippet(employment); got != "Current role: CTO at Initech" {
		t.Errorf("snippet = %q", got)
	}
	location := domain.Claim{
		ClaimType: domain.ClaimTypeLocation,
		Value:     map[string]any{"location": "Lisbon"},
	}
	if got := claimSnippet(location); got != "Location: Lisbon" {
		t.Errorf("snippet = %q", got)
	}
	empty := domain.Claim{ClaimType: domain.ClaimTypeTopic, Value: map[string]any{}}
	if got := claimSnippet(empty); got != "" {
		t.Errorf("snippet = %q, want empty", got)
	}
}
