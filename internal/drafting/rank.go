package drafting

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/luxcrm/relay/internal/data/graph"
)

var termPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_-]{1,}`)

var rankStopwords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "agree": {}, "ahead": {},
	"along": {}, "around": {}, "before": {}, "being": {}, "below": {},
	"between": {}, "could": {}, "doing": {}, "during": {},
	"every": {}, "first": {}, "going": {}, "great": {}, "having": {},
	"hello": {}, "might": {}, "other": {}, "please": {}, "quick": {},
	"really": {}, "regards": {}, "should": {}, "since": {}, "their": {},
	"there": {}, "these": {}, "thing": {}, "think": {}, "those": {},
	"through": {}, "today": {}, "under": {}, "until": {}, "where": {},
	"which": {}, "while": {}, "would": {}, "your": {}, "yours": {},
	"thanks": {}, "thank": {}, "update": {}, "still": {},
}

var opportunityTerms = map[string]struct{}{
	"opportunity": {}, "proposal": {}, "pricing": {}, "contract": {},
	"renewal": {}, "pilot": {}, "budget": {}, "quote": {}, "deal": {},
	"procurement": {}, "expansion": {}, "evaluation": {},
}

var actionTerms = map[string]struct{}{
	"schedule": {}, "review": {}, "deadline": {}, "deliver": {},
	"confirm": {}, "decide": {}, "signature": {}, "approve": {},
	"timeline": {}, "milestone": {}, "followup": {}, "follow-up": {},
}

// termsOf tokenizes to lowercase terms with at least minLen characters,
// dropping stopwords.
func termsOf(text string, minLen int) []string {
	var out []string
	for _, raw := range termPattern.FindAllString(strings.ToLower(text), -1) {
		if len(raw) < minLen {
			continue
		}
		if _, skip := rankStopwords[raw]; skip {
			continue
		}
		out = append(out, raw)
	}
	return out
}

func termSet(text string, minLen int) map[string]struct{} {
	set := map[string]struct{}{}
	for _, term := range termsOf(text, minLen) {
		set[term] = struct{}{}
	}
	return set
}

// overlapFraction is |a∩b| / |a|, zero when a is empty.
func overlapFraction(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return 0
	}
	hits := 0
	for term := range a {
		if _, ok := b[term]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}

func pathAgeDays(p *graph.Path, nowUnix int64) float64 {
	if p.LatestSeenAt == nil {
		return 365
	}
	days := float64(nowUnix-p.LatestSeenAt.Unix()) / 86400.0
	if days < 0 {
		return 0
	}
	return days
}

// pathRetrievalScore weighs confidence, recency, semantic overlap with the
// objective, and opportunity signal, and penalizes uncertain hops and noisy
// single-token walks.
func pathRetrievalScore(p *graph.Path, objectiveTerms map[string]struct{}, nowUnix int64) float64 {
	recency := math.Exp(-pathAgeDays(p, nowUnix) / 90.0)
	semantic := overlapFraction(objectiveTerms, termSet(p.PathText, 3))
	opportunity := math.Min(1, float64(p.OpportunityHits))
	uncertainPenalty := math.Min(0.35, 0.14*float64(p.UncertainHops))
	return 0.35*p.AvgConfidence +
		0.30*recency +
		0.20*semantic +
		0.15*opportunity -
		uncertainPenalty -
		p.NoisePenalty
}

// rankGraphPaths reorders paths by retrieval score, best first. Ties keep
// newer latest_seen_at first; null timestamps rank last.
func rankGraphPaths(paths []*graph.Path, objective string, nowUnix int64) []*graph.Path {
	objectiveTerms := termSet(objective, 3)
	ranked := append([]*graph.Path(nil), paths...)
	sort.SliceStable(ranked, func(i, j int) bool {
		si := pathRetrievalScore(ranked[i], objectiveTerms, nowUnix)
		sj := pathRetrievalScore(ranked[j], objectiveTerms, nowUnix)
		if si != sj {
			return si > sj
		}
		ti, tj := ranked[i].LatestSeenAt, ranked[j].LatestSeenAt
		if (ti != nil) != (tj != nil) {
			return ti != nil
		}
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.After(*tj)
		}
		return false
	})
	return ranked
}

// extractFocusTerms counts terms of at least five characters across the top
// six paths. Opportunity terms count triple and action terms double.
func extractFocusTerms(paths []*graph.Path, maxTerms int) []string {
	if maxTerms <= 0 {
		maxTerms = 6
	}
	counts := map[string]float64{}
	order := map[string]int{}
	next := 0
	limit := len(paths)
	if limit > 6 {
		limit = 6
	}
	for _, p := range paths[:limit] {
		for _, term := range termsOf(p.PathText, 5) {
			weight := 1.0
			if _, ok := opportunityTerms[term]; ok {
				weight = 3.0
			} else if _, ok := actionTerms[term]; ok {
				weight = 2.0
			}
			if _, seen := counts[term]; !seen {
				order[term] = next
				next++
			}
			counts[term] += weight
		}
	}
	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return order[terms[i]] < order[terms[j]]
	})
	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}
	return terms
}
