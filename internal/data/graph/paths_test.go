package graph

import (
	"sort"
	"testing"
	"time"
)

func ts(v string) *time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		panic(err)
	}
	return &t
}

func rank(paths ...*Path) []*Path {
	out := append([]*Path(nil), paths...)
	sort.SliceStable(out, func(i, j int) bool { return pathLess(out[i], out[j]) })
	return out
}

func TestPathRankPrefersNewerWhenOtherFactorsEqual(t *testing.T) {
	older := &Path{PathText: "older", AvgConfidence: 0.9, Hops: 1, LatestSeenAt: ts("2026-01-01T12:00:00Z")}
	newer := &Path{PathText: "newer", AvgConfidence: 0.9, Hops: 1, LatestSeenAt: ts("2026-02-01T12:00:00Z")}

	ranked := rank(older, newer)
	if ranked[0].PathText != "newer" || ranked[1].PathText != "older" {
		t.Fatalf("order = %q, %q", ranked[0].PathText, ranked[1].PathText)
	}
}

func TestPathRankPutsNullTimestampsLast(t *testing.T) {
	timed := &Path{PathText: "timed", AvgConfidence: 0.4, Hops: 2, LatestSeenAt: ts("2026-02-10T10:00:00Z")}
	untimed := &Path{PathText: "untimed", AvgConfidence: 0.95, Hops: 1}

	ranked := rank(untimed, timed)
	if ranked[0].PathText != "timed" || ranked[1].PathText != "untimed" {
		t.Fatalf("order = %q, %q", ranked[0].PathText, ranked[1].PathText)
	}
}

func TestPathRankPrefersLowerNoisePenalty(t *testing.T) {
	noisy := &Path{PathText: "contact -[related_to]-> update", AvgConfidence: 0.9, Hops: 1,
		LatestSeenAt: ts("2026-02-10T10:00:00Z"), NoisePenalty: 0.22}
	useful := &Path{PathText: "contact -[commitment]-> send proposal", AvgConfidence: 0.9, Hops: 1,
		LatestSeenAt: ts("2026-02-10T10:00:00Z"), NoisePenalty: 0.02}

	ranked := rank(noisy, useful)
	if ranked[0].PathText != useful.PathText {
		t.Fatalf("order = %q first", ranked[0].PathText)
	}
}

func TestPathRankCertainBeforeUncertain(t *testing.T) {
	uncertain := &Path{PathText: "uncertain", UncertainHops: 1, AvgConfidence: 0.99, Hops: 1, LatestSeenAt: ts("2026-02-10T10:00:00Z")}
	certain := &Path{PathText: "certain", AvgConfidence: 0.3, Hops: 3, LatestSeenAt: ts("2025-02-10T10:00:00Z")}

	ranked := rank(uncertain, certain)
	if ranked[0].PathText != "certain" {
		t.Fatalf("uncertain hop must rank below any certain path")
	}
}

func TestNoisePenaltyChargesGenericSingleTokenHops(t *testing.T) {
	generic := pathNoisePenalty([]string{"related_to"}, []string{"Ana", "update"})
	specific := pathNoisePenalty([]string{"committed_to"}, []string{"Ana", "send proposal"})
	if generic <= specific {
		t.Fatalf("related_to single-token penalty %v must exceed %v", generic, specific)
	}
	multi := pathNoisePenalty([]string{"related_to"}, []string{"Ana", "series b funding"})
	if multi >= generic {
		t.Fatalf("multi-token related_to %v must be cheaper than single-token %v", multi, generic)
	}
}

func TestObjectiveKeywordsDropShortAndStopTokens(t *testing.T) {
	got := objectiveKeywords("Follow up about the revised pricing, ok?")
	want := map[string]bool{"follow": true, "revised": true, "pricing": true}
	for _, kw := range got {
		if !want[kw] {
			t.Fatalf("unexpected keyword %q in %v", kw, got)
		}
		delete(want, kw)
	}
	if len(want) != 0 {
		t.Fatalf("missing keywords: %v (got %v)", want, got)
	}
}

func TestPathMatchesKeywords(t *testing.T) {
	p := &Path{PathText: "Ana -[works_at]-> Northwind Robotics"}
	if !pathMatchesKeywords(p, []string{"northwind"}) {
		t.Fatalf("expected match")
	}
	if pathMatchesKeywords(p, []string{"pricing"}) {
		t.Fatalf("expected no match")
	}
	if !pathMatchesKeywords(p, nil) {
		t.Fatalf("no keywords means accept")
	}
}

func TestEntityIDIsStableAcrossSpellings(t *testing.T) {
	a := EntityID("Company", "Acme  Robotics")
	b := EntityID("company", "acme robotics")
	if a != b {
		t.Fatalf("entity ids differ: %s vs %s", a, b)
	}
	c := EntityID("company", "acme")
	if a == c {
		t.Fatalf("different names must hash differently")
	}
}

func TestPredicateNorm(t *testing.T) {
	cases := map[string]string{
		"Works At":     "works_at",
		"works-at":     "works_at",
		"  Discussed!": "discussed",
		"???":          "related_to",
		"":             "related_to",
	}
	for in, want := range cases {
		if got := PredicateNorm(in); got != want {
			t.Errorf("PredicateNorm(%q) = %q, want %q", in, got, want)
		}
	}
}
