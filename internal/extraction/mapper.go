package extraction

import (
	"encoding/json"
	"strings"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/ontology"
)

const sourceSystem = "extractor"

var entityTypeClaimType = map[string]string{
	"opportunity":      domain.ClaimTypeOpportunity,
	"deal":             domain.ClaimTypeOpportunity,
	"pipeline":         domain.ClaimTypeOpportunity,
	"preference":       domain.ClaimTypePreference,
	"interest":         domain.ClaimTypePreference,
	"motivator":        domain.ClaimTypePreference,
	"driver":           domain.ClaimTypePreference,
	"commitment":       domain.ClaimTypeCommitment,
	"promise":          domain.ClaimTypeCommitment,
	"action_item":      domain.ClaimTypeCommitment,
	"personal_detail":  domain.ClaimTypePersonalDetail,
	"family":           domain.ClaimTypeFamily,
	"education":        domain.ClaimTypeEducation,
	"school":           domain.ClaimTypeEducation,
	"location":         domain.ClaimTypeLocation,
	"geography":        domain.ClaimTypeLocation,
	"city":             domain.ClaimTypeLocation,
	"region":           domain.ClaimTypeLocation,
	"country":          domain.ClaimTypeLocation,
	"industry":         domain.ClaimTypeTopic,
	"company":          domain.ClaimTypeTopic,
	"organization":     domain.ClaimTypeTopic,
	"business_context": domain.ClaimTypeTopic,
	"title":            domain.ClaimTypeTopic,
	"role":             domain.ClaimTypeTopic,
	"technology":       domain.ClaimTypeTopic,
	"tech_stack":       domain.ClaimTypeTopic,
	"risk":             domain.ClaimTypeTopic,
	"need":             domain.ClaimTypeTopic,
	"pain_point":       domain.ClaimTypeTopic,
	"use_case":         domain.ClaimTypeTopic,
	"competitor":       domain.ClaimTypeTopic,
}

func entityClaimType(entityType string) string {
	if ct, ok := entityTypeClaimType[entityType]; ok {
		return ct
	}
	switch {
	case strings.Contains(entityType, "opportun"), strings.Contains(entityType, "deal"):
		return domain.ClaimTypeOpportunity
	case strings.Contains(entityType, "prefer"), strings.Contains(entityType, "motiv"), strings.Contains(entityType, "driver"):
		return domain.ClaimTypePreference
	case strings.Contains(entityType, "commit"), strings.Contains(entityType, "action"):
		return domain.ClaimTypeCommitment
	case strings.Contains(entityType, "family"):
		return domain.ClaimTypeFamily
	case strings.Contains(entityType, "educat"), strings.Contains(entityType, "school"):
		return domain.ClaimTypeEducation
	case strings.Contains(entityType, "location"), strings.Contains(entityType, "geo"), strings.Contains(entityType, "region"):
		return domain.ClaimTypeLocation
	case strings.Contains(entityType, "personal"), strings.Contains(entityType, "bio"):
		return domain.ClaimTypePersonalDetail
	default:
		return domain.ClaimTypeTopic
	}
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func entityToClaim(cfg *ontology.Config, ent Entity) *domain.Claim {
	name := ontology.NormalizeText(ent.Name)
	if name == "" {
		return nil
	}
	entityType := ontology.NormalizeToken(ent.Type)
	claimType := entityClaimType(entityType)
	conf := ent.Confidence
	if conf == 0 {
		conf = 0.45
	}
	if claimType == domain.ClaimTypeTopic {
		return cfg.MapTopicToClaim(name, conf, sourceSystem)
	}

	conf = clampConfidence(conf)
	sensitive := claimType == domain.ClaimTypePersonalDetail || claimType == domain.ClaimTypeFamily
	mapped := cfg.MapRelationToClaim(ontology.RawRelation{
		Subject:    "contact",
		Predicate:  cfg.ClaimTypeConfigFor(claimType).DefaultPredicate,
		Object:     name,
		ClaimType:  claimType,
		Confidence: &conf,
		Sensitive:  &sensitive,
	}, sourceSystem, conf)
	if mapped == nil {
		return nil
	}
	if entityType != "" {
		mapped.Value["object_type"] = entityType
	}
	return mapped
}

// claimFingerprint keys dedup on claim type plus canonicalized value. Topic
// labels compare case-insensitively so "Pricing" and "pricing" collapse.
func claimFingerprint(claim *domain.Claim) string {
	claimType := strings.ToLower(strings.TrimSpace(claim.ClaimType))
	if claimType == "" {
		claimType = domain.ClaimTypeTopic
	}
	payload := make(map[string]any, len(claim.Value))
	for k, v := range claim.Value {
		payload[k] = v
	}
	if claimType == domain.ClaimTypeTopic {
		for _, key := range []string{"label", "object"} {
			if s, ok := payload[key].(string); ok {
				payload[key] = strings.ToLower(strings.Join(strings.Fields(s), " "))
			}
		}
	}
	serialized, err := json.Marshal(payload)
	if err != nil {
		serialized = []byte(claim.ClaimID)
	}
	return claimType + ":" + string(serialized)
}

// ClaimsFromCandidates maps extractor output into canonical claims. Entities
// are capped at 24 and topics at 5 per interaction; duplicates by claim
// fingerprint are dropped, first writer wins.
func ClaimsFromCandidates(cfg *ontology.Config, cands *Candidates) []*domain.Claim {
	if cands == nil {
		return nil
	}
	var claims []*domain.Claim
	for _, rel := range cands.Relations {
		var conf *float64
		if rel.Confidence > 0 {
			c := clampConfidence(rel.Confidence)
			conf = &c
		}
		mapped := cfg.MapRelationToClaim(ontology.RawRelation{
			Subject:       rel.Subject,
			Predicate:     rel.Predicate,
			Object:        rel.Object,
			Confidence:    conf,
			EvidenceSpans: rel.EvidenceSpans,
		}, sourceSystem, 0.5)
		if mapped == nil {
			continue
		}
		claims = append(claims, mapped)
	}

	entities := cands.Entities
	if len(entities) > 24 {
		entities = entities[:24]
	}
	for _, ent := range entities {
		mapped := entityToClaim(cfg, ent)
		if mapped == nil {
			continue
		}
		claims = append(claims, mapped)
	}

	topics := cands.Topics
	if len(topics) > 5 {
		topics = topics[:5]
	}
	for _, topic := range topics {
		mapped := cfg.MapTopicToClaim(topic.Label, topic.Confidence, sourceSystem)
		if mapped == nil {
			continue
		}
		claims = append(claims, mapped)
	}

	seen := map[string]struct{}{}
	deduped := claims[:0]
	for _, claim := range claims {
		fp := claimFingerprint(claim)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		deduped = append(deduped, claim)
	}
	return deduped
}
