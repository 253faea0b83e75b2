package ontology

import (
	"github.com/google/uuid"

	"github.com/luxcrm/relay/internal/domain"
)

// RawRelation is the loose relation shape extractors emit before canonical
// mapping. Alternate key spellings from different backends are folded in by
// the caller.
type RawRelation struct {
	Subject       string
	Predicate     string
	Object        string
	SubjectType   string
	ObjectType    string
	ClaimType     string
	ClaimID       string
	Status        string
	Confidence    *float64
	Sensitive     *bool
	EvidenceSpans []map[string]any
}

// MapRelationToClaim turns an extracted relation into a canonical claim.
// Returns nil when the relation has no object to assert about.
func (c *Config) MapRelationToClaim(rel RawRelation, sourceSystem string, defaultConfidence float64) *domain.Claim {
	subject := NormalizeText(rel.Subject)
	if subject == "" {
		subject = "contact"
	}
	object := NormalizeText(rel.Object)
	if object == "" {
		return nil
	}

	predicate := c.CanonicalPredicate(rel.Predicate)
	claimType := NormalizeToken(rel.ClaimType)
	if claimType == "" {
		claimType = c.ClaimTypeFor(predicate)
	}
	typeCfg := c.ClaimTypeConfigFor(claimType)
	if predicate == "" {
		predicate = NormalizeToken(typeCfg.DefaultPredicate)
		if predicate == "" {
			predicate = "related_to"
		}
	}

	value := map[string]any{
		"subject":   subject,
		"predicate": predicate,
		"object":    object,
	}
	if claimType == domain.ClaimTypeEmployment {
		value["company"] = object
	}
	if st := NormalizeText(rel.SubjectType); st != "" {
		value["subject_type"] = st
	}
	if ot := NormalizeText(rel.ObjectType); ot != "" {
		value["object_type"] = ot
	}
	if len(rel.EvidenceSpans) > 0 {
		value["evidence_spans"] = rel.EvidenceSpans
	}

	status := NormalizeToken(rel.Status)
	switch status {
	case domain.ClaimStatusProposed, domain.ClaimStatusAccepted, domain.ClaimStatusRejected, domain.ClaimStatusSuperseded:
	default:
		status = domain.ClaimStatusProposed
	}

	claimID := NormalizeText(rel.ClaimID)
	if claimID == "" {
		claimID = uuid.NewString()
	}
	confidence := defaultConfidence
	if rel.Confidence != nil {
		confidence = *rel.Confidence
	}
	sensitive := typeCfg.Sensitive
	if rel.Sensitive != nil {
		sensitive = *rel.Sensitive
	}

	return &domain.Claim{
		ClaimID:      claimID,
		ClaimType:    claimType,
		Value:        value,
		Status:       status,
		Sensitive:    sensitive,
		Confidence:   confidence,
		SourceSystem: sourceSystem,
	}
}

// MapTopicToClaim turns a bare topic label into a topic claim.
func (c *Config) MapTopicToClaim(label string, confidence float64, sourceSystem string) *domain.Claim {
	label = NormalizeText(label)
	if label == "" {
		return nil
	}
	typeCfg := c.ClaimTypeConfigFor(domain.ClaimTypeTopic)
	predicate := NormalizeToken(typeCfg.DefaultPredicate)
	if predicate == "" {
		predicate = "discussed_topic"
	}
	return &domain.Claim{
		ClaimID:   uuid.NewString(),
		ClaimType: domain.ClaimTypeTopic,
		Value: map[string]any{
			"label":     label,
			"subject":   "contact",
			"predicate": predicate,
			"object":    label,
		},
		Status:       domain.ClaimStatusProposed,
		Sensitive:    typeCfg.Sensitive,
		Confidence:   confidence,
		SourceSystem: sourceSystem,
	}
}

// RelationPayload is what the graph writer materializes as a typed edge.
type RelationPayload struct {
	SubjectName string
	Predicate   string
	ObjectName  string
	SubjectKind string
	ObjectKind  string
	HighValue   bool
}

// RelationPayloadFromClaim derives the graph edge for a claim. Returns nil
// for claims with no usable object or a self-referential one.
func (c *Config) RelationPayloadFromClaim(claim *domain.Claim) *RelationPayload {
	if claim == nil || claim.Value == nil {
		return nil
	}
	claimType := NormalizeToken(claim.ClaimType)
	if claimType == "" {
		claimType = domain.ClaimTypeTopic
	}
	typeCfg := c.ClaimTypeConfigFor(claimType)

	subject := NormalizeText(claim.StringValue("subject"))
	if subject == "" {
		subject = "contact"
	}
	predicate := c.CanonicalPredicate(claim.StringValue("predicate"))
	if predicate == "" {
		predicate = NormalizeToken(typeCfg.DefaultPredicate)
		if predicate == "" {
			predicate = "related_to"
		}
	}
	object := NormalizeText(claim.StringValue("object", "company", "destination", "target", "label"))
	if object == "" {
		return nil
	}
	if NormalizeToken(object) == NormalizeToken(subject) {
		return nil
	}

	subjectKind := NormalizeText(claim.StringValue("subject_type"))
	if subjectKind == "" {
		subjectKind = NormalizeText(typeCfg.SubjectKind)
	}
	if subjectKind == "" {
		if NormalizeToken(subject) == "contact" {
			subjectKind = "Contact"
		} else {
			subjectKind = "Entity"
		}
	}
	objectKind := NormalizeText(claim.StringValue("object_type"))
	if objectKind == "" {
		objectKind = NormalizeText(typeCfg.ObjectKind)
	}
	if objectKind == "" {
		objectKind = "Entity"
	}

	return &RelationPayload{
		SubjectName: subject,
		Predicate:   predicate,
		ObjectName:  object,
		SubjectKind: subjectKind,
		ObjectKind:  objectKind,
		HighValue:   c.IsHighValue(claimType, predicate),
	}
}
