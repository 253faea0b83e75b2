package graph

import (
	"context"
	"encoding/json"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
)

// WriteClaimWithEvidence merges the claim node, wires it to the contact and
// interaction, and attaches every evidence ref. Idempotent on claim_id and
// evidence ids.
func WriteClaimWithEvidence(ctx context.Context, client *neo4jdb.Client, contactID, interactionID string, claim *domain.Claim) error {
	if !client.Enabled() || claim == nil || claim.ClaimID == "" {
		return nil
	}
	valueJSON, err := json.Marshal(claim.Value)
	if err != nil {
		return err
	}
	session := client.WriteSession(ctx)
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Contact {contact_id: $contact_id})
MATCH (i:Interaction {interaction_id: $interaction_id})
MERGE (cl:Claim {claim_id: $claim_id})
SET cl.claim_type = $claim_type,
    cl.value_json = $value_json,
    cl.status = $status,
    cl.sensitive = $sensitive,
    cl.valid_from = $valid_from,
    cl.valid_to = $valid_to,
    cl.confidence = $confidence,
    cl.created_at = coalesce(cl.created_at, datetime($now)),
    cl.source_system = $source_system
MERGE (i)-[:HAS_CLAIM]->(cl)
MERGE (c)-[:HAS_CLAIM]->(cl)
`, map[string]any{
			"contact_id":     contactID,
			"interaction_id": interactionID,
			"claim_id":       claim.ClaimID,
			"claim_type":     claim.ClaimType,
			"value_json":     string(valueJSON),
			"status":         claim.Status,
			"sensitive":      claim.Sensitive,
			"valid_from":     claim.ValidFrom,
			"valid_to":       claim.ValidTo,
			"confidence":     claim.Confidence,
			"now":            now,
			"source_system":  claim.SourceSystem,
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		for _, ref := range claim.EvidenceRefs {
			spanJSON, _ := json.Marshal(ref.Span)
			evidenceID := claim.ClaimID + ":" + ref.ChunkID
			res, err := tx.Run(ctx, `
MATCH (cl:Claim {claim_id: $claim_id})
MERGE (e:Evidence {evidence_id: $evidence_id})
SET e.interaction_id = $interaction_id,
    e.chunk_id = $chunk_id,
    e.span_json = $span_json,
    e.quote_hash = $quote_hash
MERGE (cl)-[:SUPPORTED_BY]->(e)
`, map[string]any{
				"claim_id":       claim.ClaimID,
				"evidence_id":    evidenceID,
				"interaction_id": ref.InteractionID,
				"chunk_id":       ref.ChunkID,
				"span_json":      string(spanJSON),
				"quote_hash":     ref.QuoteHash,
			})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func claimFromRecord(values map[string]any) domain.Claim {
	claim := domain.Claim{
		ClaimID:      stringOf(values["claim_id"]),
		ClaimType:    stringOf(values["claim_type"]),
		Status:       stringOf(values["status"]),
		SourceSystem: stringOf(values["source_system"]),
		ValidFrom:    stringOf(values["valid_from"]),
		ValidTo:      stringOf(values["valid_to"]),
	}
	if v, ok := values["sensitive"].(bool); ok {
		claim.Sensitive = v
	}
	if v, ok := values["confidence"].(float64); ok {
		claim.Confidence = v
	}
	claim.Value = map[string]any{}
	if raw := stringOf(values["value_json"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &claim.Value)
	}
	if cid := stringOf(values["contact_id"]); cid != "" {
		claim.ContactID = cid
	}
	return claim
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

// GetContactClaims returns the contact's claims newest-first, optionally
// filtered by status.
func GetContactClaims(ctx context.Context, client *neo4jdb.Client, contactID, status string) ([]domain.Claim, error) {
	if !client.Enabled() {
		return nil, nil
	}
	session := client.ReadSession(ctx)
	defer session.Close(ctx)

	query := `
MATCH (c:Contact {contact_id: $contact_id})-[:HAS_CLAIM]->(cl:Claim)
WHERE $status = '' OR cl.status = $status
OPTIONAL MATCH (cl)-[:SUPPORTED_BY]->(e:Evidence)
RETURN cl.claim_id AS claim_id,
       cl.claim_type AS claim_type,
       cl.value_json AS value_json,
       cl.status AS status,
       cl.sensitive AS sensitive,
       cl.valid_from AS valid_from,
       cl.valid_to AS valid_to,
       cl.confidence AS confidence,
       cl.source_system AS source_system,
       collect({interaction_id: e.interaction_id, chunk_id: e.chunk_id, span_json: e.span_json, quote_hash: e.quote_hash}) AS evidence
ORDER BY cl.created_at DESC
`
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"contact_id": contactID, "status": status})
		if err != nil {
			return nil, err
		}
		var claims []domain.Claim
		for res.Next(ctx) {
			rec := res.Record().AsMap()
			claim := claimFromRecord(rec)
			claim.ContactID = contactID
			if rows, ok := rec["evidence"].([]any); ok {
				for _, raw := range rows {
					ev, ok := raw.(map[string]any)
					if !ok {
						continue
					}
					chunkID := stringOf(ev["chunk_id"])
					if chunkID == "" {
						continue
					}
					ref := domain.EvidenceRef{
						InteractionID: stringOf(ev["interaction_id"]),
						ChunkID:       chunkID,
						QuoteHash:     stringOf(ev["quote_hash"]),
					}
					if spanRaw := stringOf(ev["span_json"]); spanRaw != "" {
						_ = json.Unmarshal([]byte(spanRaw), &ref.Span)
					}
					claim.EvidenceRefs = append(claim.EvidenceRefs, ref)
				}
			}
			claims = append(claims, claim)
		}
		return claims, res.Err()
	})
	if err != nil {
		return nil, err
	}
	claims, _ := out.([]domain.Claim)
	return claims, nil
}

// GetClaimByID fetches one claim with its owning contact id, or nil.
func GetClaimByID(ctx context.Context, client *neo4jdb.Client, claimID string) (*domain.Claim, error) {
	if !client.Enabled() {
		return nil, nil
	}
	session := client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (cl:Claim {claim_id: $claim_id})
OPTIONAL MATCH (c:Contact)-[:HAS_CLAIM]->(cl)
RETURN cl.claim_id AS claim_id,
       cl.claim_type AS claim_type,
       cl.value_json AS value_json,
       cl.status AS status,
       cl.sensitive AS sensitive,
       cl.valid_from AS valid_from,
       cl.valid_to AS valid_to,
       cl.confidence AS confidence,
       cl.source_system AS source_system,
       c.contact_id AS contact_id
LIMIT 1
`, map[string]any{"claim_id": claimID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		claim := claimFromRecord(res.Record().AsMap())
		return &claim, nil
	})
	if err != nil {
		return nil, err
	}
	claim, _ := out.(*domain.Claim)
	return claim, nil
}

// UpdateClaimStatus sets the status and optionally replaces the value payload
// and stamps resolved_at.
func UpdateClaimStatus(ctx context.Context, client *neo4jdb.Client, claimID, status string, value map[string]any, resolvedAt *time.Time) error {
	if !client.Enabled() || claimID == "" {
		return nil
	}
	var valueJSON any
	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		valueJSON = string(raw)
	}
	var resolvedAtISO any
	if resolvedAt != nil {
		resolvedAtISO = resolvedAt.UTC().Format(time.RFC3339)
	}

	session := client.WriteSession(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (cl:Claim {claim_id: $claim_id})
SET cl.status = $status,
    cl.resolved_at = CASE WHEN $resolved_at IS NULL THEN cl.resolved_at ELSE datetime($resolved_at) END,
    cl.value_json = CASE WHEN $value_json IS NULL THEN cl.value_json ELSE $value_json END
`, map[string]any{
			"claim_id":    claimID,
			"status":      status,
			"resolved_at": resolvedAtISO,
			"value_json":  valueJSON,
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

// SetCurrentEmployer repoints the contact's CURRENT_EMPLOYER edge at the
// named company. Exactly one such edge survives.
func SetCurrentEmployer(ctx context.Context, client *neo4jdb.Client, contactID, companyName, claimID string, resolvedAt time.Time) error {
	if !client.Enabled() || contactID == "" || companyName == "" {
		return nil
	}
	session := client.WriteSession(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Contact {contact_id: $contact_id})
OPTIONAL MATCH (c)-[existing:CURRENT_EMPLOYER]->(:Company)
DELETE existing
MERGE (co:Company {name: $company_name})
MERGE (c)-[rel:CURRENT_EMPLOYER]->(co)
SET rel.claim_id = $claim_id,
    rel.updated_at = datetime($resolved_at)
`, map[string]any{
			"contact_id":   contactID,
			"company_name": companyName,
			"claim_id":     claimID,
			"resolved_at":  resolvedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

// DeleteContactGraph removes the contact's subtree: the contact node, its
// root entity, its claims and their evidence, and every relation it owns.
// Shared entity nodes referenced by other contacts survive.
func DeleteContactGraph(ctx context.Context, client *neo4jdb.Client, contactID string) error {
	if !client.Enabled() || contactID == "" {
		return nil
	}
	session := client.WriteSession(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		stmts := []string{
			`MATCH ()-[r:RELATES_TO {contact_id: $contact_id}]-() DELETE r`,
			`MATCH (c:Contact {contact_id: $contact_id})-[:HAS_CLAIM]->(cl:Claim)
OPTIONAL MATCH (cl)-[:SUPPORTED_BY]->(e:Evidence)
DETACH DELETE cl, e`,
			`MATCH (c:Contact {contact_id: $contact_id})-[:HAS_ENTITY]->(en:Entity)
DETACH DELETE en`,
			`MATCH (c:Contact {contact_id: $contact_id}) DETACH DELETE c`,
		}
		for _, stmt := range stmts {
			res, err := tx.Run(ctx, stmt, map[string]any{"contact_id": contactID})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}
