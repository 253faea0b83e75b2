package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

func claim(id, claimType string, confidence float64, status string, value map[string]any) domain.Claim {
	return domain.Claim{
		ClaimID:    id,
		ClaimType:  claimType,
		Confidence: confidence,
		Status:     status,
		Value:      value,
	}
}

func TestNewBundleTruncatesSummary(t *testing.T) {
	long := strings.Repeat("x", 500)
	b := NewBundle(long, nil, nil, 0, nil)
	if len(b.InteractionSummary) != 280 {
		t.Fatalf("summary length = %d, want 280", len(b.InteractionSummary))
	}
	if b.AutoAcceptThreshold != 0.90 {
		t.Fatalf("threshold = %v, want default 0.90", b.AutoAcceptThreshold)
	}
	if b.RecentClaims == nil || b.CandidateClaims == nil || b.ScopeIDs == nil {
		t.Fatal("nil collections should be initialized")
	}
}

func TestRulesProposerAutoAccepts(t *testing.T) {
	svc, err := NewService(logger.NewNop(), BackendRules, "", time.Second, true)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	bundle := NewBundle("summary", nil, []domain.Claim{
		claim("c1", domain.ClaimTypeEmployment, 0.95, domain.ClaimStatusProposed, map[string]any{"company": "Initech"}),
		claim("c2", domain.ClaimTypeTopic, 0.55, domain.ClaimStatusProposed, map[string]any{"label": "pricing"}),
	}, 0.9, nil)

	ops, err := svc.ProposeOps(context.Background(), bundle)
	if err != nil {
		t.Fatalf("ProposeOps: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("ops = %d, want 2", len(ops))
	}
	if ops[0].Op != domain.MemoryOpAdd || ops[0].Claim.Status != domain.ClaimStatusAccepted {
		t.Errorf("high-confidence claim should be auto-accepted: %+v", ops[0])
	}
	if ops[1].Claim.Status != domain.ClaimStatusProposed {
		t.Errorf("low-confidence claim should stay proposed: %+v", ops[1])
	}
}

func TestNormalizeOpsRejectAndDedupe(t *testing.T) {
	ops := normalizeOps([]domain.MemoryOp{
		{Op: domain.MemoryOpReject, Claim: claim("c1", domain.ClaimTypeTopic, 0.99, domain.ClaimStatusProposed, map[string]any{"label": "Pricing"})},
		{Op: domain.MemoryOpAdd, Claim: claim("c2", domain.ClaimTypeTopic, 0.4, "", map[string]any{"label": "pricing"})},
		{Op: domain.MemoryOpAdd, Claim: claim("c3", domain.ClaimTypeTopic, 0.4, "", map[string]any{"label": "PRICING"})},
	}, 0.9)
	if len(ops) != 2 {
		t.Fatalf("ops = %d, want 2 (duplicate ADD collapsed)", len(ops))
	}
	if ops[0].Claim.Status != domain.ClaimStatusRejected {
		t.Errorf("REJECT should mark the claim rejected even above threshold, got %q", ops[0].Claim.Status)
	}
	if ops[1].Claim.Status != domain.ClaimStatusProposed {
		t.Errorf("empty status should normalize to proposed, got %q", ops[1].Claim.Status)
	}
}

func TestHTTPProposerFallsBackToRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, err := NewService(logger.NewNop(), BackendHTTP, srv.URL, time.Second, true)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	bundle := NewBundle("s", nil, []domain.Claim{
		claim("c1", domain.ClaimTypeTopic, 0.5, domain.ClaimStatusProposed, map[string]any{"label": "a"}),
	}, 0.9, nil)
	ops, err := svc.ProposeOps(context.Background(), bundle)
	if err != nil {
		t.Fatalf("ProposeOps: %v", err)
	}
	if len(ops) != 1 || ops[0].Op != domain.MemoryOpAdd {
		t.Fatalf("expected rules fallback ADD, got %+v", ops)
	}
}

func TestHTTPProposerNormalizesRemoteOps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var bundle Bundle
		if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
			t.Errorf("decode bundle: %v", err)
		}
		json.NewEncoder(w).Encode([]domain.MemoryOp{
			{Op: domain.MemoryOpUpdate, Claim: claim("c1", domain.ClaimTypeEmployment, 0.97, domain.ClaimStatusProposed, map[string]any{"company": "Initech"}), TargetClaimID: "old"},
		})
	}))
	defer srv.Close()

	svc, err := NewService(logger.NewNop(), BackendHTTP, srv.URL, time.Second, false)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ops, err := svc.ProposeOps(context.Background(), NewBundle("s", nil, nil, 0.9, nil))
	if err != nil {
		t.Fatalf("ProposeOps: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("ops = %d, want 1", len(ops))
	}
	if ops[0].Claim.Status != domain.ClaimStatusAccepted {
		t.Errorf("remote op above threshold should be accepted, got %q", ops[0].Claim.Status)
	}
	if ops[0].TargetClaimID != "old" {
		t.Errorf("target claim id lost: %+v", ops[0])
	}
}

func TestDetectEmploymentContradiction(t *testing.T) {
	existing := []domain.Claim{
		claim("cur", domain.ClaimTypeEmployment, 0.9, domain.ClaimStatusAccepted, map[string]any{"company": "Initech"}),
		claim("other", domain.ClaimTypeTopic, 0.9, domain.ClaimStatusAccepted, map[string]any{"label": "pricing"}),
	}
	proposed := []domain.Claim{
		claim("new", domain.ClaimTypeEmployment, 0.8, domain.ClaimStatusProposed, map[string]any{"company": "Globex"}),
	}
	got := DetectContradictions(existing, proposed)
	if len(got) != 1 {
		t.Fatalf("contradictions = %d, want 1", len(got))
	}
	if got[0].TaskType != domain.TaskTypeEmploymentDiscrepancy {
		t.Errorf("task type = %q", got[0].TaskType)
	}
	if got[0].CurrentClaim.ClaimID != "cur" || got[0].ProposedClaim.ClaimID != "new" {
		t.Errorf("wrong claim pair: %+v", got[0])
	}

	same := []domain.Claim{
		claim("new2", domain.ClaimTypeEmployment, 0.8, domain.ClaimStatusProposed, map[string]any{"company": "initech"}),
	}
	if got := DetectContradictions(existing, same); len(got) != 0 {
		t.Errorf("case-insensitive same company should not conflict: %+v", got)
	}
}

func TestDetectOpportunityAndCommitmentConflicts(t *testing.T) {
	existing := []domain.Claim{
		claim("o1", domain.ClaimTypeOpportunity, 0.9, domain.ClaimStatusAccepted, map[string]any{"label": "EMEA expansion", "stage": "evaluation"}),
		claim("k1", domain.ClaimTypeCommitment, 0.9, domain.ClaimStatusAccepted, map[string]any{"object": "send proposal", "due_date": "2026-09-01", "owner": "me"}),
	}
	proposed := []domain.Claim{
		claim("o2", domain.ClaimTypeOpportunity, 0.8, domain.ClaimStatusProposed, map[string]any{"label": "EMEA expansion", "stage": "negotiation"}),
		claim("o3", domain.ClaimTypeOpportunity, 0.8, domain.ClaimStatusProposed, map[string]any{"label": "APAC launch", "stage": "negotiation"}),
		claim("k2", domain.ClaimTypeCommitment, 0.8, domain.ClaimStatusProposed, map[string]any{"object": "send proposal", "due_date": "2026-09-15", "owner": "me"}),
	}
	got := DetectContradictions(existing, proposed)
	if len(got) != 2 {
		t.Fatalf("contradictions = %d, want 2 (stage change + due date change)", len(got))
	}
	types := map[string]bool{}
	for _, c := range got {
		types[c.TaskType] = true
	}
	if !types[domain.TaskTypeOpportunityDiscrepancy] || !types[domain.TaskTypeCommitmentDiscrepancy] {
		t.Errorf("unexpected task types: %v", types)
	}
}

func TestDetectDetailConflictAndDedupe(t *testing.T) {
	existing := []domain.Claim{
		claim("p1", domain.ClaimTypePreference, 0.9, domain.ClaimStatusAccepted, map[string]any{"predicate": "has_preference", "object": "morning meetings"}),
	}
	proposed := []domain.Claim{
		claim("p2", domain.ClaimTypePreference, 0.8, domain.ClaimStatusProposed, map[string]any{"predicate": "has_preference", "object": "afternoon meetings"}),
		claim("p2", domain.ClaimTypePreference, 0.8, domain.ClaimStatusProposed, map[string]any{"predicate": "has_preference", "object": "afternoon meetings"}),
	}
	got := DetectContradictions(existing, proposed)
	if len(got) != 1 {
		t.Fatalf("contradictions = %d, want 1 after dedupe", len(got))
	}
	if got[0].TaskType != domain.TaskTypePreferenceConflict {
		t.Errorf("task type = %q", got[0].TaskType)
	}
}

func TestApplyOps(t *testing.T) {
	existing := []domain.Claim{
		claim("a", domain.ClaimTypeTopic, 0.9, domain.ClaimStatusAccepted, map[string]any{"label": "x"}),
	}
	ops := []domain.MemoryOp{
		{Op: domain.MemoryOpAdd, Claim: claim("b", domain.ClaimTypeTopic, 0.5, domain.ClaimStatusProposed, map[string]any{"label": "y"})},
		{Op: domain.MemoryOpReject, Claim: claim("c", domain.ClaimTypeTopic, 0.5, domain.ClaimStatusProposed, map[string]any{"label": "z"})},
	}
	updated := ApplyOps(existing, ops)
	if len(updated) != 2 {
		t.Fatalf("claims = %d, want 2 (reject dropped)", len(updated))
	}
	if updated[1].ClaimID != "b" {
		t.Errorf("unexpected appended claim: %+v", updated[1])
	}
}
