package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/luxcrm/relay/internal/platform/neo4jdb"
)

// Path is one ranked walk out of the contact's entity.
type Path struct {
	PathText        string     `json:"path_text"`
	Hops            int        `json:"hops"`
	UncertainHops   int        `json:"uncertain_hops"`
	AvgConfidence   float64    `json:"avg_confidence"`
	LatestSeenAt    *time.Time `json:"latest_seen_at,omitempty"`
	NoisePenalty    float64    `json:"noise_penalty"`
	OpportunityHits int        `json:"opportunity_hits"`
	Predicates      []string   `json:"predicates"`
	NodeNames       []string   `json:"node_names"`
}

// Metrics summarizes the contact's neighborhood for scoring.
type Metrics struct {
	DirectRelationCount    int `json:"direct_relation_count"`
	AcceptedRelationCount  int `json:"accepted_relation_count"`
	UncertainRelationCount int `json:"uncertain_relation_count"`
	RecentRelationCount    int `json:"recent_relation_count"`
	EntityReach2Hop        int `json:"entity_reach_2hop"`
	PathCount2Hop          int `json:"path_count_2hop"`
	OpportunityEdgeCount   int `json:"opportunity_edge_count"`
}

var opportunityMarkers = []string{"opportun", "proposal", "deal"}

var pathStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "about": {}, "from": {},
	"that": {}, "this": {}, "their": {}, "your": {}, "our": {}, "has": {},
	"have": {}, "was": {}, "are": {}, "were": {}, "will": {}, "would": {},
	"been": {}, "into": {}, "over": {}, "they": {}, "them": {},
}

func hasOpportunityMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range opportunityMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// pathNoisePenalty charges generic related_to hops, hardest when they point
// at a single-token target.
func pathNoisePenalty(predicates, nodeNames []string) float64 {
	var penalty float64
	for i, pred := range predicates {
		if pred != "related_to" {
			continue
		}
		target := ""
		if i+1 < len(nodeNames) {
			target = strings.TrimSpace(nodeNames[i+1])
		}
		if target == "" || len(strings.Fields(target)) <= 1 {
			penalty += 0.2
		} else {
			penalty += 0.05
		}
	}
	return penalty
}

// pathLess is the ranking order: certain before uncertain, timed before
// untimed, then confidence, hop count, recency, and noise.
func pathLess(a, b *Path) bool {
	if a.UncertainHops != b.UncertainHops {
		return a.UncertainHops < b.UncertainHops
	}
	aTimed, bTimed := a.LatestSeenAt != nil, b.LatestSeenAt != nil
	if aTimed != bTimed {
		return aTimed
	}
	if a.AvgConfidence != b.AvgConfidence {
		return a.AvgConfidence > b.AvgConfidence
	}
	if a.Hops != b.Hops {
		return a.Hops < b.Hops
	}
	if aTimed && bTimed && !a.LatestSeenAt.Equal(*b.LatestSeenAt) {
		return a.LatestSeenAt.After(*b.LatestSeenAt)
	}
	return a.NoisePenalty < b.NoisePenalty
}

func sortPaths(paths []*Path) {
	sort.SliceStable(paths, func(i, j int) bool { return pathLess(paths[i], paths[j]) })
}

// objectiveKeywords extracts 3+ char tokens minus stopwords.
func objectiveKeywords(objective string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(objective)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if len(tok) < 3 {
			continue
		}
		if _, stop := pathStopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func pathMatchesKeywords(p *Path, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	text := strings.ToLower(p.PathText)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func parseGraphTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z07:00[UTC]", "2006-01-02T15:04:05.000000000Z07:00[UTC]"} {
		if t, err := time.Parse(layout, strings.SplitN(v, "[", 2)[0]); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func buildPathText(nodeNames, predicates []string) string {
	var b strings.Builder
	for i, name := range nodeNames {
		if i > 0 {
			b.WriteString(" -[")
			b.WriteString(predicates[i-1])
			b.WriteString("]-> ")
		}
		b.WriteString(name)
	}
	return b.String()
}

// GetGraphPaths walks 1..maxHops from the contact entity over non-rejected
// relations, ranks the walks, and keeps those intersecting the objective's
// keywords (all of them when no objective is given).
func GetGraphPaths(ctx context.Context, client *neo4jdb.Client, contactID, objective string, maxHops, limit int, includeUncertain bool, lookbackDays int) ([]*Path, error) {
	if !client.Enabled() {
		return nil, nil
	}
	if maxHops < 1 {
		maxHops = 1
	}
	if maxHops > 3 {
		maxHops = 3
	}
	if limit <= 0 {
		limit = 10
	}
	if lookbackDays <= 0 {
		lookbackDays = 365
	}
	since := time.Now().UTC().AddDate(0, 0, -lookbackDays).Format(time.RFC3339)
	scanLimit := limit * 6

	session := client.ReadSession(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
MATCH (c:Contact {contact_id: $contact_id})-[:HAS_ENTITY]->(root:Entity)
MATCH p = (root)-[:RELATES_TO*1..%d]->(target:Entity)
WHERE all(r IN relationships(p) WHERE r.status <> 'rejected')
  AND ($include_uncertain OR all(r IN relationships(p) WHERE coalesce(r.uncertain, false) = false))
  AND any(r IN relationships(p) WHERE r.last_seen >= datetime($since))
RETURN [n IN nodes(p) | coalesce(n.name, '')] AS names,
       [r IN relationships(p) | coalesce(r.predicate_norm, 'related_to')] AS predicates,
       [r IN relationships(p) | coalesce(r.confidence, 0.0)] AS confidences,
       [r IN relationships(p) | coalesce(r.uncertain, false)] AS uncertains,
       [r IN relationships(p) | toString(r.last_seen)] AS last_seens
LIMIT $scan_limit
`, maxHops)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"contact_id":        contactID,
			"include_uncertain": includeUncertain,
			"since":             since,
			"scan_limit":        scanLimit,
		})
		if err != nil {
			return nil, err
		}
		var paths []*Path
		for res.Next(ctx) {
			rec := res.Record().AsMap()
			names := stringSliceOf(rec["names"])
			predicates := stringSliceOf(rec["predicates"])
			confidences := floatSliceOf(rec["confidences"])
			uncertains := boolSliceOf(rec["uncertains"])
			lastSeens := stringSliceOf(rec["last_seens"])
			if len(predicates) == 0 || len(names) != len(predicates)+1 {
				continue
			}

			p := &Path{
				NodeNames:  names,
				Predicates: predicates,
				Hops:       len(predicates),
				PathText:   buildPathText(names, predicates),
			}
			var confSum float64
			for i := range predicates {
				if i < len(confidences) {
					confSum += confidences[i]
				}
				if i < len(uncertains) && uncertains[i] {
					p.UncertainHops++
				}
				if i < len(lastSeens) {
					if ts := parseGraphTime(lastSeens[i]); ts != nil {
						if p.LatestSeenAt == nil || ts.After(*p.LatestSeenAt) {
							p.LatestSeenAt = ts
						}
					}
				}
				if hasOpportunityMarker(predicates[i]) || hasOpportunityMarker(names[i+1]) {
					p.OpportunityHits++
				}
			}
			p.AvgConfidence = confSum / float64(len(predicates))
			p.NoisePenalty = pathNoisePenalty(predicates, names)
			paths = append(paths, p)
		}
		return paths, res.Err()
	})
	if err != nil {
		return nil, err
	}
	paths, _ := out.([]*Path)

	sortPaths(paths)
	keywords := objectiveKeywords(objective)
	var kept []*Path
	for _, p := range paths {
		if pathMatchesKeywords(p, keywords) {
			kept = append(kept, p)
		}
		if len(kept) >= limit {
			break
		}
	}
	return kept, nil
}

// GetGraphMetrics counts the contact's relation neighborhood.
func GetGraphMetrics(ctx context.Context, client *neo4jdb.Client, contactID string, lookbackDays int) (*Metrics, error) {
	if !client.Enabled() {
		return &Metrics{}, nil
	}
	if lookbackDays <= 0 {
		lookbackDays = 90
	}
	since := time.Now().UTC().AddDate(0, 0, -lookbackDays).Format(time.RFC3339)

	session := client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		m := &Metrics{}

		res, err := tx.Run(ctx, `
MATCH (c:Contact {contact_id: $contact_id})-[:HAS_ENTITY]->(root:Entity)
OPTIONAL MATCH (root)-[r:RELATES_TO]->(o:Entity)
WHERE r.status <> 'rejected'
RETURN count(r) AS direct,
       count(CASE WHEN r.status = 'accepted' THEN 1 END) AS accepted,
       count(CASE WHEN coalesce(r.uncertain, false) THEN 1 END) AS uncertain,
       count(CASE WHEN r.last_seen >= datetime($since) THEN 1 END) AS recent
`, map[string]any{"contact_id": contactID, "since": since})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			rec := res.Record().AsMap()
			m.DirectRelationCount = intOf(rec["direct"])
			m.AcceptedRelationCount = intOf(rec["accepted"])
			m.UncertainRelationCount = intOf(rec["uncertain"])
			m.RecentRelationCount = intOf(rec["recent"])
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
MATCH (c:Contact {contact_id: $contact_id})-[:HAS_ENTITY]->(root:Entity)
MATCH p = (root)-[:RELATES_TO*1..2]->(e:Entity)
WHERE all(r IN relationships(p) WHERE r.status <> 'rejected')
RETURN count(DISTINCT e) AS reach, count(p) AS path_count
`, map[string]any{"contact_id": contactID})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			rec := res.Record().AsMap()
			m.EntityReach2Hop = intOf(rec["reach"])
			m.PathCount2Hop = intOf(rec["path_count"])
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `
MATCH (c:Contact {contact_id: $contact_id})-[:HAS_ENTITY]->(root:Entity)
MATCH (root)-[:RELATES_TO*0..1]->()-[r:RELATES_TO]->(o:Entity)
WHERE r.status <> 'rejected'
  AND (any(marker IN $markers WHERE toLower(coalesce(r.predicate_norm, '')) CONTAINS marker)
    OR any(marker IN $markers WHERE toLower(coalesce(o.name, '')) CONTAINS marker))
RETURN count(DISTINCT r) AS opportunity_edges
`, map[string]any{"contact_id": contactID, "markers": opportunityMarkers})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			m.OpportunityEdgeCount = intOf(res.Record().AsMap()["opportunity_edges"])
		}
		return m, res.Err()
	})
	if err != nil {
		return nil, err
	}
	m, _ := out.(*Metrics)
	return m, nil
}

func stringSliceOf(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, _ := item.(string)
		out = append(out, s)
	}
	return out
}

func floatSliceOf(v any) []float64 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, item := range raw {
		f, _ := item.(float64)
		out = append(out, f)
	}
	return out
}

func boolSliceOf(v any) []bool {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]bool, 0, len(raw))
	for _, item := range raw {
		b, _ := item.(bool)
		out = append(out, b)
	}
	return out
}

func intOf(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
