package graph

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
)

// contactAliases are subject/object spellings that always resolve to the
// contact's own entity.
var contactAliases = map[string]struct{}{
	"contact":       {},
	"this contact":  {},
	"the contact":   {},
	"recipient":     {},
	"the recipient": {},
	"them":          {},
	"they":          {},
}

var employmentPredicates = map[string]struct{}{
	"works_at":         {},
	"employed_by":      {},
	"current_employer": {},
	"works_for":        {},
}

// RelationInput is one subject-predicate-object triple to materialize.
type RelationInput struct {
	ContactID     string
	InteractionID string
	Subject       string
	SubjectKind   string
	Predicate     string
	Object        string
	ObjectKind    string
	ClaimID       string
	Confidence    float64
	Status        string
	Uncertain     bool
	HighValue     bool
	SeenAt        time.Time
	EvidenceIDs   []string
}

// RelationConflict is the strongest accepted relation that disagrees with the
// one just written: same subject and predicate_norm, different object.
type RelationConflict struct {
	RelationID string
	ClaimID    string
	ObjectName string
	Confidence float64
}

// RelationResult reports what the upsert wrote.
type RelationResult struct {
	RelationID string
	SubjectID  string
	ObjectID   string
	Conflict   *RelationConflict
}

// PredicateNorm lowercases and snake-cases a predicate, falling back to
// related_to when nothing survives.
func PredicateNorm(predicate string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(strings.TrimSpace(predicate)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastSep = false
			continue
		}
		if !lastSep {
			b.WriteRune('_')
			lastSep = true
		}
	}
	norm := strings.Trim(b.String(), "_")
	if norm == "" {
		return "related_to"
	}
	return norm
}

// resolveEndpoint maps a relation endpoint onto an entity id. Contact
// aliases, the contact's email, and the contact's display name resolve to the
// contact entity; anything else hashes by (kind, name).
func resolveEndpoint(name, kind, predicateNorm string, contact *domain.Contact, isObject bool) (entityID, resolvedName, resolvedKind string, isContact bool) {
	norm := strings.ToLower(strings.TrimSpace(name))
	if contact != nil {
		if _, ok := contactAliases[norm]; ok ||
			(contact.PrimaryEmail != "" && norm == strings.ToLower(contact.PrimaryEmail)) ||
			(contact.DisplayName != "" && norm == strings.ToLower(strings.TrimSpace(contact.DisplayName))) {
			display := strings.TrimSpace(contact.DisplayName)
			if display == "" {
				display = contact.PrimaryEmail
			}
			return ContactEntityID(contact.ContactID), display, "Contact", true
		}
	}
	if kind == "" {
		kind = "Entity"
	}
	if isObject {
		if _, ok := employmentPredicates[predicateNorm]; ok {
			kind = "Company"
		}
	}
	return EntityID(kind, name), strings.TrimSpace(name), kind, false
}

// relationID is claim_id when present, else a deterministic hash of the
// triple in its interaction context.
func relationID(in RelationInput, predicateNorm, subjectID, objectID string) string {
	if in.ClaimID != "" {
		return in.ClaimID
	}
	key := "relation:" + in.ContactID + ":" + in.InteractionID + ":" + subjectID + ":" + predicateNorm + ":" + objectID
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// UpsertRelation writes the triple and returns its highest-confidence
// accepted conflict, if any. Accepting a relation supersedes any other
// accepted relation on the same (contact, subject, predicate_norm) so at most
// one accepted triple survives per key.
func UpsertRelation(ctx context.Context, client *neo4jdb.Client, contact *domain.Contact, in RelationInput) (*RelationResult, error) {
	if !client.Enabled() {
		return nil, nil
	}
	predicateNorm := PredicateNorm(in.Predicate)
	subjectID, subjectName, subjectKind, _ := resolveEndpoint(in.Subject, in.SubjectKind, predicateNorm, contact, false)
	objectID, objectName, objectKind, objectIsContact := resolveEndpoint(in.Object, in.ObjectKind, predicateNorm, contact, true)
	if objectIsContact && subjectID == objectID {
		return nil, nil
	}
	relID := relationID(in, predicateNorm, subjectID, objectID)
	seenAt := in.SeenAt.UTC().Format(time.RFC3339)

	session := client.WriteSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (s:Entity {entity_id: $subject_id})
ON CREATE SET s.name = $subject_name, s.normalized_name = $subject_norm, s.kind = $subject_kind
MERGE (o:Entity {entity_id: $object_id})
ON CREATE SET o.name = $object_name, o.normalized_name = $object_norm, o.kind = $object_kind
MERGE (s)-[r:RELATES_TO {relation_id: $relation_id}]->(o)
ON CREATE SET r.first_seen = datetime($seen_at)
SET r.predicate = $predicate,
    r.predicate_norm = $predicate_norm,
    r.status = $status,
    r.confidence = $confidence,
    r.uncertain = $uncertain,
    r.high_value = $high_value,
    r.contact_id = $contact_id,
    r.interaction_id = $interaction_id,
    r.claim_id = $claim_id,
    r.evidence_ids = $evidence_ids,
    r.first_seen = CASE WHEN r.first_seen <= datetime($seen_at) THEN r.first_seen ELSE datetime($seen_at) END,
    r.last_seen = CASE WHEN r.last_seen IS NULL OR r.last_seen < datetime($seen_at) THEN datetime($seen_at) ELSE r.last_seen END
`, map[string]any{
			"subject_id":     subjectID,
			"subject_name":   subjectName,
			"subject_norm":   NormalizeName(subjectName),
			"subject_kind":   subjectKind,
			"object_id":      objectID,
			"object_name":    objectName,
			"object_norm":    NormalizeName(objectName),
			"object_kind":    objectKind,
			"relation_id":    relID,
			"predicate":      strings.TrimSpace(in.Predicate),
			"predicate_norm": predicateNorm,
			"status":         in.Status,
			"confidence":     in.Confidence,
			"uncertain":      in.Uncertain,
			"high_value":     in.HighValue,
			"contact_id":     in.ContactID,
			"interaction_id": in.InteractionID,
			"claim_id":       in.ClaimID,
			"evidence_ids":   in.EvidenceIDs,
			"seen_at":        seenAt,
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		// Highest-confidence accepted disagreement on the same key.
		res, err = tx.Run(ctx, `
MATCH (s:Entity {entity_id: $subject_id})-[other:RELATES_TO]->(oo:Entity)
WHERE other.predicate_norm = $predicate_norm
  AND other.status = 'accepted'
  AND other.contact_id = $contact_id
  AND other.relation_id <> $relation_id
  AND oo.entity_id <> $object_id
RETURN other.relation_id AS relation_id,
       other.claim_id AS claim_id,
       other.confidence AS confidence,
       oo.name AS object_name
ORDER BY other.confidence DESC
LIMIT 1
`, map[string]any{
			"subject_id":     subjectID,
			"predicate_norm": predicateNorm,
			"contact_id":     in.ContactID,
			"relation_id":    relID,
			"object_id":      objectID,
		})
		if err != nil {
			return nil, err
		}
		var conflict *RelationConflict
		if res.Next(ctx) {
			rec := res.Record().AsMap()
			conflict = &RelationConflict{
				RelationID: stringOf(rec["relation_id"]),
				ClaimID:    stringOf(rec["claim_id"]),
				ObjectName: stringOf(rec["object_name"]),
			}
			if c, ok := rec["confidence"].(float64); ok {
				conflict.Confidence = c
			}
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		if in.Status == domain.ClaimStatusAccepted {
			res, err = tx.Run(ctx, `
MATCH (s:Entity {entity_id: $subject_id})-[other:RELATES_TO]->(oo:Entity)
WHERE other.predicate_norm = $predicate_norm
  AND other.status = 'accepted'
  AND other.contact_id = $contact_id
  AND other.relation_id <> $relation_id
SET other.status = 'superseded'
`, map[string]any{
				"subject_id":     subjectID,
				"predicate_norm": predicateNorm,
				"contact_id":     in.ContactID,
				"relation_id":    relID,
			})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return conflict, nil
	})
	if err != nil {
		return nil, err
	}
	conflict, _ := out.(*RelationConflict)
	return &RelationResult{
		RelationID: relID,
		SubjectID:  subjectID,
		ObjectID:   objectID,
		Conflict:   conflict,
	}, nil
}
