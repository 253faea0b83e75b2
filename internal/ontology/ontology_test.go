package ontology

import (
	"testing"

	"github.com/luxcrm/relay/internal/domain"
)

func TestCanonicalPredicateResolvesAliases(t *testing.T) {
	cfg := defaultConfig()

	cases := map[string]string{
		"employment_change": "works_at",
		"Employed-By":       "works_at",
		"talked about":      "discussed_topic",
		"works_at":          "works_at",
		"custom_predicate":  "custom_predicate",
		"":                  "",
	}
	for in, want := range cases {
		if got := cfg.CanonicalPredicate(in); got != want {
			t.Errorf("CanonicalPredicate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClaimTypeForPredicate(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.ClaimTypeFor("current_employer"); got != "employment" {
		t.Fatalf("current_employer -> %q", got)
	}
	if got := cfg.ClaimTypeFor("committed_to"); got != "commitment" {
		t.Fatalf("committed_to -> %q", got)
	}
	if got := cfg.ClaimTypeFor("never_seen_before"); got != "topic" {
		t.Fatalf("unknown predicate should fall back to topic, got %q", got)
	}
}

func TestSensitiveAndHighValueFlags(t *testing.T) {
	cfg := defaultConfig()

	if !cfg.IsSensitive("personal_detail") || !cfg.IsSensitive("family") {
		t.Fatalf("personal_detail and family must be sensitive")
	}
	if cfg.IsSensitive("topic") {
		t.Fatalf("topic must not be sensitive")
	}
	if !cfg.IsHighValue("topic", "works_at") {
		t.Fatalf("works_at is a high-value predicate regardless of claim type")
	}
	if cfg.IsHighValue("topic", "discussed_topic") {
		t.Fatalf("topic discussion is not high value")
	}
}

func TestMapRelationToClaimEmployment(t *testing.T) {
	cfg := defaultConfig()

	conf := 0.91
	claim := cfg.MapRelationToClaim(RawRelation{
		Subject:    "contact",
		Predicate:  "employment_change",
		Object:     "Northwind Robotics",
		Confidence: &conf,
	}, "heuristic", 0.5)
	if claim == nil {
		t.Fatal("expected claim")
	}
	if claim.ClaimType != domain.ClaimTypeEmployment {
		t.Fatalf("claim type = %q", claim.ClaimType)
	}
	if claim.Value["predicate"] != "works_at" {
		t.Fatalf("predicate = %v", claim.Value["predicate"])
	}
	if claim.Value["company"] != "Northwind Robotics" {
		t.Fatalf("employment claims must carry company: %v", claim.Value)
	}
	if claim.Confidence != 0.91 {
		t.Fatalf("confidence = %v", claim.Confidence)
	}
	if claim.Status != domain.ClaimStatusProposed {
		t.Fatalf("status = %q", claim.Status)
	}
	if claim.Sensitive {
		t.Fatalf("employment is not sensitive by default")
	}
}

func TestMapRelationToClaimRejectsEmptyObject(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.MapRelationToClaim(RawRelation{Subject: "contact", Predicate: "works_at"}, "x", 0.5); got != nil {
		t.Fatalf("expected nil for empty object, got %+v", got)
	}
}

func TestMapTopicToClaim(t *testing.T) {
	cfg := defaultConfig()
	claim := cfg.MapTopicToClaim("  series B   funding ", 0.6, "heuristic")
	if claim == nil {
		t.Fatal("expected claim")
	}
	if claim.Value["label"] != "series B funding" {
		t.Fatalf("label not whitespace-normalized: %v", claim.Value["label"])
	}
	if claim.Value["predicate"] != "discussed_topic" {
		t.Fatalf("predicate = %v", claim.Value["predicate"])
	}
}

func TestRelationPayloadFromClaim(t *testing.T) {
	cfg := defaultConfig()

	payload := cfg.RelationPayloadFromClaim(&domain.Claim{
		ClaimID:   "cl_1",
		ClaimType: domain.ClaimTypeEmployment,
		Value: map[string]any{
			"subject":   "contact",
			"predicate": "employed_by",
			"object":    "Acme",
		},
	})
	if payload == nil {
		t.Fatal("expected payload")
	}
	if payload.Predicate != "works_at" || payload.ObjectKind != "Company" || payload.SubjectKind != "Contact" {
		t.Fatalf("payload = %+v", payload)
	}
	if !payload.HighValue {
		t.Fatalf("works_at edge must be high value")
	}

	selfRef := cfg.RelationPayloadFromClaim(&domain.Claim{
		ClaimType: domain.ClaimTypeTopic,
		Value:     map[string]any{"subject": "Acme", "object": "acme"},
	})
	if selfRef != nil {
		t.Fatalf("self-referential relation must be dropped, got %+v", selfRef)
	}
}
