package memory

import (
	"strings"

	"github.com/luxcrm/relay/internal/domain"
)

const (
	summaryMaxChars      = 280
	DefaultAutoAcceptThr = 0.90
)

// Bundle is the proposer input. Scope ids carry the user/agent/run identity
// so external proposers can partition their stores.
type Bundle struct {
	InteractionSummary  string            `json:"new_interaction_summary"`
	RecentClaims        []domain.Claim    `json:"recent_claims"`
	CandidateClaims     []domain.Claim    `json:"candidate_claims"`
	AutoAcceptThreshold float64           `json:"auto_accept_threshold"`
	ScopeIDs            map[string]string `json:"scope_ids"`
}

// NewBundle truncates the interaction summary to its first 280 characters and
// defaults the auto-accept threshold when unset.
func NewBundle(summary string, recent, candidates []domain.Claim, threshold float64, scopeIDs map[string]string) *Bundle {
	summary = strings.TrimSpace(summary)
	if len(summary) > summaryMaxChars {
		summary = summary[:summaryMaxChars]
	}
	if threshold <= 0 {
		threshold = DefaultAutoAcceptThr
	}
	if recent == nil {
		recent = []domain.Claim{}
	}
	if candidates == nil {
		candidates = []domain.Claim{}
	}
	if scopeIDs == nil {
		scopeIDs = map[string]string{}
	}
	return &Bundle{
		InteractionSummary:  summary,
		RecentClaims:        recent,
		CandidateClaims:     candidates,
		AutoAcceptThreshold: threshold,
		ScopeIDs:            scopeIDs,
	}
}

// ApplyOps folds proposer operations into a claim list. Rejected claims are
// dropped; the remaining ops append their claim.
func ApplyOps(existing []domain.Claim, ops []domain.MemoryOp) []domain.Claim {
	updated := append([]domain.Claim(nil), existing...)
	for _, op := range ops {
		switch op.Op {
		case domain.MemoryOpAdd, domain.MemoryOpUpdate, domain.MemoryOpSupersede:
			updated = append(updated, op.Claim.Clone())
		}
	}
	return updated
}
