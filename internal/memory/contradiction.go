package memory

import (
	"strings"

	"github.com/luxcrm/relay/internal/domain"
)

func canon(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// opportunityTarget identifies which opportunity a claim is about.
func opportunityTarget(c *domain.Claim) string {
	return canon(c.StringValue("opportunity_id", "thread", "object", "label"))
}

func commitmentTarget(c *domain.Claim) string {
	return canon(c.StringValue("commitment_id", "object", "label"))
}

func detailField(c *domain.Claim) string {
	return canon(c.StringValue("predicate", "field"))
}

func detailValue(c *domain.Claim) string {
	return canon(c.StringValue("object", "value", "label"))
}

func conflicts(current, proposed *domain.Claim) bool {
	switch proposed.ClaimType {
	case domain.ClaimTypeEmployment:
		return canon(current.StringValue("company")) != canon(proposed.StringValue("company"))
	case domain.ClaimTypeOpportunity:
		if opportunityTarget(current) == "" || opportunityTarget(current) != opportunityTarget(proposed) {
			return false
		}
		return canon(current.StringValue("stage")) != canon(proposed.StringValue("stage")) ||
			canon(current.StringValue("status_label", "state")) != canon(proposed.StringValue("status_label", "state"))
	case domain.ClaimTypeCommitment:
		if commitmentTarget(current) == "" || commitmentTarget(current) != commitmentTarget(proposed) {
			return false
		}
		return canon(current.StringValue("due_date")) != canon(proposed.StringValue("due_date")) ||
			canon(current.StringValue("owner")) != canon(proposed.StringValue("owner"))
	case domain.ClaimTypePersonalDetail, domain.ClaimTypePreference:
		if detailField(current) == "" || detailField(current) != detailField(proposed) {
			return false
		}
		return detailValue(current) != detailValue(proposed)
	default:
		return false
	}
}

func taskTypeFor(claimType string) string {
	switch claimType {
	case domain.ClaimTypeEmployment:
		return domain.TaskTypeEmploymentDiscrepancy
	case domain.ClaimTypeOpportunity:
		return domain.TaskTypeOpportunityDiscrepancy
	case domain.ClaimTypeCommitment:
		return domain.TaskTypeCommitmentDiscrepancy
	case domain.ClaimTypePreference:
		return domain.TaskTypePreferenceConflict
	default:
		return domain.TaskTypePersonalDetailConflict
	}
}

// DetectContradictions compares each new claim against accepted claims of the
// same type and reports type-specific conflicts. Output is deduplicated on
// (task_type, current claim id, proposed claim id).
func DetectContradictions(existing, proposed []domain.Claim) []domain.Contradiction {
	acceptedByType := map[string][]*domain.Claim{}
	for i := range existing {
		c := &existing[i]
		if c.Status != domain.ClaimStatusAccepted {
			continue
		}
		acceptedByType[c.ClaimType] = append(acceptedByType[c.ClaimType], c)
	}

	var out []domain.Contradiction
	seen := map[string]struct{}{}
	for i := range proposed {
		next := &proposed[i]
		for _, current := range acceptedByType[next.ClaimType] {
			if current.ClaimID == next.ClaimID || !conflicts(current, next) {
				continue
			}
			taskType := taskTypeFor(next.ClaimType)
			key := taskType + "|" + current.ClaimID + "|" + next.ClaimID
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, domain.Contradiction{
				TaskType:      taskType,
				CurrentClaim:  current.Clone(),
				ProposedClaim: next.Clone(),
			})
		}
	}
	return out
}
