package domain

// Claims live in the graph store, not in Postgres. These are the wire/value
// shapes shared by the extractor, proposer, contradiction detector, graph
// writer, and the drafting retriever.

const (
	ClaimStatusProposed   = "proposed"
	ClaimStatusAccepted   = "accepted"
	ClaimStatusRejected   = "rejected"
	ClaimStatusSuperseded = "superseded"

	ClaimTypeTopic          = "topic"
	ClaimTypeEmployment     = "employment"
	ClaimTypeOpportunity    = "opportunity"
	ClaimTypePreference     = "preference"
	ClaimTypeCommitment     = "commitment"
	ClaimTypePersonalDetail = "personal_detail"
	ClaimTypeFamily         = "family"
	ClaimTypeEducation      = "education"
	ClaimTypeLocation       = "location"
)

// EvidenceRef is chunk-scoped provenance for a claim. Accepted claims must
// carry at least one ref with a non-empty chunk id.
type EvidenceRef struct {
	InteractionID string         `json:"interaction_id"`
	ChunkID       string         `json:"chunk_id"`
	Span          map[string]any `json:"span_json,omitempty"`
	QuoteHash     string         `json:"quote_hash,omitempty"`
}

// Claim is a typed assertion about a contact.
type Claim struct {
	ClaimID      string         `json:"claim_id"`
	ContactID    string         `json:"contact_id,omitempty"`
	ClaimType    string         `json:"claim_type"`
	Value        map[string]any `json:"value_json"`
	Status       string         `json:"status"`
	Sensitive    bool           `json:"sensitive"`
	Confidence   float64        `json:"confidence"`
	SourceSystem string         `json:"source_system"`
	ValidFrom    string         `json:"valid_from,omitempty"`
	ValidTo      string         `json:"valid_to,omitempty"`
	EvidenceRefs []EvidenceRef  `json:"evidence_refs,omitempty"`
}

// Clone returns a deep-enough copy: the value map and evidence slice are
// copied so callers can mutate without aliasing.
func (c Claim) Clone() Claim {
	out := c
	if c.Value != nil {
		out.Value = make(map[string]any, len(c.Value))
		for k, v := range c.Value {
			out.Value[k] = v
		}
	}
	if c.EvidenceRefs != nil {
		out.EvidenceRefs = append([]EvidenceRef(nil), c.EvidenceRefs...)
	}
	return out
}

// StringValue returns a trimmed string field from the claim value, or "".
func (c Claim) StringValue(keys ...string) string {
	for _, key := range keys {
		if v, ok := c.Value[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

const (
	MemoryOpAdd       = "ADD"
	MemoryOpUpdate    = "UPDATE"
	MemoryOpSupersede = "SUPERSEDE"
	MemoryOpReject    = "REJECT"
)

// MemoryOp is one operation emitted by the memory proposer.
type MemoryOp struct {
	Op            string        `json:"op"`
	Claim         Claim         `json:"claim"`
	TargetClaimID string        `json:"target_claim_id,omitempty"`
	EvidenceRefs  []EvidenceRef `json:"evidence_refs,omitempty"`
}

// Contradiction pairs a proposed claim against an accepted one.
type Contradiction struct {
	TaskType      string `json:"task_type"`
	CurrentClaim  Claim  `json:"current_claim"`
	ProposedClaim Claim  `json:"proposed_claim"`
}
