package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/luxcrm/relay/internal/data/graph"
	"github.com/luxcrm/relay/internal/domain"
)

func daysAgo(now time.Time, d int) time.Time {
	return now.Add(-time.Duration(d) * 24 * time.Hour)
}

func TestRelationshipScoreRecency(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	fresh := daysAgo(now, 0)
	total, components := RelationshipScore(RelationshipInputs{Now: now, LastInteractionAt: &fresh})
	if components["recency"].(float64) != 45 {
		t.Errorf("same-day recency = %v, want 45", components["recency"])
	}
	if total != 45 {
		t.Errorf("total = %v, want 45", total)
	}

	old := daysAgo(now, 400)
	_, components = RelationshipScore(RelationshipInputs{Now: now, LastInteractionAt: &old})
	if components["recency"].(float64) != 0 {
		t.Errorf("180d-capped recency = %v, want 0", components["recency"])
	}

	total, components = RelationshipScore(RelationshipInputs{Now: now})
	if total != 0 || components["recency"].(float64) != 0 {
		t.Errorf("no interactions should score 0, got %v", total)
	}
}

func TestRelationshipScoreFrequencyAndClamps(t *testing.T) {
	now := time.Now().UTC()
	_, components := RelationshipScore(RelationshipInputs{Now: now, Count30d: 3, Count90d: 7})
	// 4*3 + 1.5*(7-3) = 18
	if components["frequency"].(float64) != 18 {
		t.Errorf("frequency = %v, want 18", components["frequency"])
	}

	_, components = RelationshipScore(RelationshipInputs{Now: now, Count30d: 50, Count90d: 90})
	if components["frequency"].(float64) != 45 {
		t.Errorf("frequency cap = %v, want 45", components["frequency"])
	}

	_, components = RelationshipScore(RelationshipInputs{Now: now, WarmthDelta: 25, DepthCount: 30})
	if components["warmth"].(float64) != 10 || components["depth"].(float64) != 10 {
		t.Errorf("warmth/depth clamps: %v / %v", components["warmth"], components["depth"])
	}

	_, components = RelationshipScore(RelationshipInputs{Now: now, WarmthDelta: -25})
	if components["warmth"].(float64) != -10 {
		t.Errorf("warmth floor = %v, want -10", components["warmth"])
	}
}

func TestPriorityScore(t *testing.T) {
	total, components := PriorityScore(PriorityInputs{
		Relationship:   80,
		InactivityDays: 17,
		OpenLoops:      2,
		TriggerScore:   10,
	})
	if components["relationship_component"].(float64) != 32 {
		t.Errorf("relationship component = %v, want 32", components["relationship_component"])
	}
	// 0.35*(17-7) = 3.5
	if components["inactivity_component"].(float64) != 3.5 {
		t.Errorf("inactivity component = %v, want 3.5", components["inactivity_component"])
	}
	if components["open_loops_component"].(float64) != 10 {
		t.Errorf("loops component = %v, want 10", components["open_loops_component"])
	}
	if components["triggers_component"].(float64) != 10 {
		t.Errorf("triggers component = %v, want 10", components["triggers_component"])
	}
	want := 32 + 3.5 + 10 + 10.0
	if math.Abs(total-want) > 1e-9 {
		t.Errorf("total = %v, want %v", total, want)
	}
}

func TestPriorityScoreZeroRelationshipSkipsInactivity(t *testing.T) {
	_, components := PriorityScore(PriorityInputs{Relationship: 0, InactivityDays: 400})
	if components["inactivity_component"].(float64) != 0 {
		t.Errorf("cold contacts must not earn inactivity priority, got %v", components["inactivity_component"])
	}
}

func TestGraphBonuses(t *testing.T) {
	m := &graph.Metrics{
		RecentRelationCount:    4,
		EntityReach2Hop:        12,
		PathCount2Hop:          10,
		OpportunityEdgeCount:   2,
		UncertainRelationCount: 3,
	}
	// 0.35*4 + 4*0.5 = 3.4
	if got := GraphWarmthBonus(m, 0.5); math.Abs(got-3.4) > 1e-9 {
		t.Errorf("warmth bonus = %v, want 3.4", got)
	}
	if got := GraphWarmthBonus(m, 1.0); got != 5 {
		t.Errorf("warmth bonus cap = %v, want 5", got)
	}
	// round(0.4*12 + 0.2*10) = round(6.8) = 7
	if got := GraphDepthBonus(m); got != 7 {
		t.Errorf("depth bonus = %v, want 7", got)
	}
	// 1.5*2 + 0.25*4 + 0.35*3 = 5.05
	if got := GraphTriggerBonus(m); math.Abs(got-5.05) > 1e-9 {
		t.Errorf("trigger bonus = %v, want 5.05", got)
	}
	if GraphWarmthBonus(nil, 1) != 0 || GraphDepthBonus(nil) != 0 || GraphTriggerBonus(nil) != 0 {
		t.Error("nil metrics must contribute nothing")
	}
}

func interactionRow(ts time.Time, direction, subject, thread string) *domain.Interaction {
	return &domain.Interaction{
		ID:        uuid.New(),
		Timestamp: ts,
		Direction: direction,
		Subject:   subject,
		ThreadID:  thread,
	}
}

func TestTriggerScore(t *testing.T) {
	now := time.Now().UTC()
	rows := []*domain.Interaction{
		interactionRow(daysAgo(now, 2), domain.DirectionIn, "URGENT: contract deadline", "t1"),
		interactionRow(daysAgo(now, 5), domain.DirectionIn, "quick follow-up", "t2"),
		interactionRow(daysAgo(now, 30), domain.DirectionIn, "urgent old thing", "t3"),
		interactionRow(daysAgo(now, 1), domain.DirectionIn, "lunch?", "t4"),
	}
	// "urgent" + "deadline" in row 1, "follow-up" in row 2; row 3 is stale.
	if got := TriggerScore(rows, now); got != 15 {
		t.Errorf("trigger score = %v, want 15", got)
	}
}

func TestOpenLoopsAndHeuristics(t *testing.T) {
	now := time.Now().UTC()
	rows := []*domain.Interaction{
		interactionRow(daysAgo(now, 1), domain.DirectionIn, "a", "t1"),
		interactionRow(daysAgo(now, 2), domain.DirectionOut, "b", "t1"),
		interactionRow(daysAgo(now, 3), domain.DirectionOut, "c", "t2"),
		interactionRow(daysAgo(now, 4), domain.DirectionIn, "d", "t3"),
	}
	if got := OpenLoops(rows); got != 2 {
		t.Errorf("open loops = %d, want 2 (t1 and t3 end inbound)", got)
	}
	// 2 out, 2 in.
	if got := HeuristicWarmthDelta(rows); got != 0 {
		t.Errorf("warmth delta = %v, want 0", got)
	}
	if got := HeuristicDepthCount(rows); got != 3 {
		t.Errorf("depth count = %d, want 3", got)
	}

	outHeavy := []*domain.Interaction{
		interactionRow(daysAgo(now, 1), domain.DirectionOut, "a", "t1"),
		interactionRow(daysAgo(now, 2), domain.DirectionOut, "b", "t2"),
		interactionRow(daysAgo(now, 3), domain.DirectionIn, "c", "t3"),
		interactionRow(daysAgo(now, 4), domain.DirectionOut, "d", "t4"),
	}
	// (3-1)/4 * 5 = 2.5
	if got := HeuristicWarmthDelta(outHeavy); got != 2.5 {
		t.Errorf("warmth delta = %v, want 2.5", got)
	}
}

func TestCountsWithin(t *testing.T) {
	now := time.Now().UTC()
	rows := []*domain.Interaction{
		interactionRow(daysAgo(now, 5), domain.DirectionIn, "", "t1"),
		interactionRow(daysAgo(now, 45), domain.DirectionIn, "", "t2"),
		interactionRow(daysAgo(now, 120), domain.DirectionIn, "", "t3"),
	}
	c30, c90 := CountsWithin(rows, now)
	if c30 != 1 || c90 != 2 {
		t.Errorf("counts = (%d, %d), want (1, 2)", c30, c90)
	}
}
