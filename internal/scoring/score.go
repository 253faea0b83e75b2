package scoring

import (
	"math"
	"time"

	"github.com/luxcrm/relay/internal/data/graph"
)

func clamp(v, low, high float64) float64 {
	return math.Max(low, math.Min(high, v))
}

// RelationshipInputs are the raw signals behind a relationship score. Graph
// bonuses are folded into WarmthDelta and DepthCount before calling.
type RelationshipInputs struct {
	Now               time.Time
	LastInteractionAt *time.Time
	Count30d          int
	Count90d          int
	WarmthDelta       float64
	DepthCount        float64
}

// RelationshipScore returns the 0..100 relationship score and a component
// breakdown recording every input.
func RelationshipScore(in RelationshipInputs) (float64, map[string]any) {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	daysSince := -1.0
	recency := 0.0
	if in.LastInteractionAt != nil {
		daysSince = math.Max(0, now.Sub(*in.LastInteractionAt).Hours()/24)
		recency = math.Max(0, 45-0.25*math.Min(daysSince, 180))
	}

	extra90 := float64(in.Count90d - in.Count30d)
	if extra90 < 0 {
		extra90 = 0
	}
	frequency := math.Min(45, 4*float64(in.Count30d)+1.5*extra90)
	warmth := clamp(in.WarmthDelta, -10, 10)
	depth := clamp(in.DepthCount, 0, 10)
	total := clamp(recency+frequency+warmth+depth, 0, 100)

	components := map[string]any{
		"days_since_last": daysSince,
		"recency":         recency,
		"frequency":       frequency,
		"warmth":          warmth,
		"depth":           depth,
		"count_30d":       in.Count30d,
		"count_90d":       in.Count90d,
	}
	return total, components
}

// PriorityInputs are the raw signals behind a priority score.
type PriorityInputs struct {
	Relationship      float64
	InactivityDays    float64
	OpenLoops         int
	TriggerScore      float64
	GraphTriggerBonus float64
}

// PriorityScore returns the 0..100 outreach priority and its components.
// Inactivity contributes nothing for contacts with a zero relationship score
// so cold records do not float to the top.
func PriorityScore(in PriorityInputs) (float64, map[string]any) {
	relationship := math.Min(40, 0.4*in.Relationship)
	inactivity := 0.0
	if in.Relationship > 0 {
		inactivity = math.Min(30, math.Max(0, 0.35*(in.InactivityDays-7)))
	}
	loops := math.Min(20, 5*float64(in.OpenLoops))
	triggers := math.Min(15, in.TriggerScore+in.GraphTriggerBonus)
	total := clamp(relationship+inactivity+loops+triggers, 0, 100)

	components := map[string]any{
		"relationship_component": relationship,
		"inactivity_component":   inactivity,
		"open_loops_component":   loops,
		"triggers_component":     triggers,
		"inactivity_days":        in.InactivityDays,
		"open_loops":             in.OpenLoops,
		"trigger_score":          in.TriggerScore,
		"graph_trigger_bonus":    in.GraphTriggerBonus,
	}
	return total, components
}

// GraphWarmthBonus rewards recent graph activity and semantic alignment
// between the contact's claims and their recent interactions.
func GraphWarmthBonus(m *graph.Metrics, vectorAlignment float64) float64 {
	if m == nil {
		return 0
	}
	return math.Min(5, 0.35*float64(m.RecentRelationCount)+4*clamp(vectorAlignment, 0, 1))
}

// GraphDepthBonus rewards how far the contact's entity neighborhood reaches.
func GraphDepthBonus(m *graph.Metrics) float64 {
	if m == nil {
		return 0
	}
	return math.Min(10, math.Round(0.4*float64(m.EntityReach2Hop)+0.2*float64(m.PathCount2Hop)))
}

// GraphTriggerBonus surfaces contacts whose graph shows live opportunities
// or unresolved uncertainty.
func GraphTriggerBonus(m *graph.Metrics) float64 {
	if m == nil {
		return 0
	}
	return math.Min(8, 1.5*float64(m.OpportunityEdgeCount)+0.25*float64(m.RecentRelationCount)+0.35*float64(m.UncertainRelationCount))
}
