package drafting

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/errors"
)

const (
	ViolationSensitiveLeak  = "sensitive_assertion_leak"
	ViolationUncertainLeak  = "uncertain_assertion_leak"
	ViolationDisallowedLeak = "disallowed_assertion_leak"

	minPolicyObjectChars     = 3
	uncertainConfidenceFloor = 0.8
)

// Violation is one internal assertion that leaked into outbound text.
type Violation struct {
	Type        string  `json:"type"`
	AssertionID string  `json:"assertion_id"`
	ClaimType   string  `json:"claim_type"`
	Object      string  `json:"object"`
	Status      string  `json:"status"`
	Confidence  float64 `json:"confidence"`
}

// PolicyError rejects a draft write; it carries the full violation list so
// the transport layer can surface it verbatim.
type PolicyError struct {
	Violations []Violation `json:"violations"`
	Flags      PolicyFlags `json:"policy_flags"`
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("draft rejected by policy gate: %d violation(s)", len(e.Violations))
}

func (e *PolicyError) Unwrap() error { return errors.ErrPolicyViolation }

// low-signal claim types the gate never fires on
var policySkipTypes = map[string]struct{}{
	domain.ClaimTypeTopic: {},
	"relationship_signal": {},
}

func wholePhraseMatch(draft, phrase string) bool {
	pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
	if err != nil {
		return false
	}
	return pattern.MatchString(draft)
}

func classifyViolation(a Assertion) string {
	switch a.ClaimType {
	case domain.ClaimTypePersonalDetail, domain.ClaimTypeFamily:
		return ViolationSensitiveLeak
	}
	if (a.Status != domain.ClaimStatusAccepted && a.Status != "verified") ||
		a.Confidence < uncertainConfidenceFloor {
		return ViolationUncertainLeak
	}
	return ViolationDisallowedLeak
}

// CheckPolicy scans the draft for whole-phrase matches of internal-only
// assertion objects. A non-empty result means the draft must not be written.
func CheckPolicy(draftText string, internalTrace []Assertion) []Violation {
	var violations []Violation
	seen := map[string]struct{}{}
	for _, assertion := range internalTrace {
		if _, skip := policySkipTypes[assertion.ClaimType]; skip {
			continue
		}
		object := strings.TrimSpace(assertion.ObjectName)
		if len(object) < minPolicyObjectChars {
			continue
		}
		if !wholePhraseMatch(draftText, object) {
			continue
		}
		violationType := classifyViolation(assertion)
		key := violationType + "|" + assertion.AssertionID + "|" + strings.ToLower(object)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		violations = append(violations, Violation{
			Type:        violationType,
			AssertionID: assertion.AssertionID,
			ClaimType:   assertion.ClaimType,
			Object:      object,
			Status:      assertion.Status,
			Confidence:  assertion.Confidence,
		})
	}
	return violations
}
