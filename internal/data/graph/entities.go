package graph

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
)

// NormalizeName lowercases and collapses an entity name so the same thing
// spelled differently hashes to the same entity id.
func NormalizeName(name string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace && b.Len() > 0 {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// EntityID derives the stable id as a UUID-v5 over "entity:{kind}:{normalized_name}".
func EntityID(kind, name string) string {
	norm := NormalizeName(name)
	key := "entity:" + strings.ToLower(strings.TrimSpace(kind)) + ":" + norm
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// ContactEntityID is the id of the contact's own entity node.
func ContactEntityID(contactID string) string {
	return EntityID("contact", contactID)
}

// MergeContact upserts the contact node and its root entity.
func MergeContact(ctx context.Context, client *neo4jdb.Client, contact *domain.Contact) error {
	if !client.Enabled() || contact == nil {
		return nil
	}
	session := client.WriteSession(ctx)
	defer session.Close(ctx)

	name := strings.TrimSpace(contact.DisplayName)
	if name == "" {
		name = contact.PrimaryEmail
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (c:Contact {contact_id: $contact_id})
SET c.primary_email = $primary_email,
    c.display_name = $display_name,
    c.owner_user_id = $owner_user_id
MERGE (e:Entity {entity_id: $entity_id})
SET e.name = $name,
    e.normalized_name = $normalized_name,
    e.kind = 'Contact'
MERGE (c)-[:HAS_ENTITY]->(e)
`, map[string]any{
			"contact_id":      contact.ContactID,
			"primary_email":   contact.PrimaryEmail,
			"display_name":    contact.DisplayName,
			"owner_user_id":   contact.OwnerUserID,
			"entity_id":       ContactEntityID(contact.ContactID),
			"name":            name,
			"normalized_name": NormalizeName(name),
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

// MergeInteraction upserts the interaction node and attaches participants.
func MergeInteraction(ctx context.Context, client *neo4jdb.Client, row *domain.Interaction, contactIDs []string) error {
	if !client.Enabled() || row == nil {
		return nil
	}
	session := client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (i:Interaction {interaction_id: $interaction_id})
SET i.type = $type,
    i.timestamp = datetime($timestamp),
    i.source_system = $source_system,
    i.direction = $direction
`, map[string]any{
			"interaction_id": row.ID.String(),
			"type":           row.Type,
			"timestamp":      row.Timestamp.UTC().Format(time.RFC3339),
			"source_system":  row.SourceSystem,
			"direction":      row.Direction,
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if len(contactIDs) > 0 {
			res, err = tx.Run(ctx, `
UNWIND $contact_ids AS cid
MATCH (c:Contact {contact_id: cid})
MATCH (i:Interaction {interaction_id: $interaction_id})
MERGE (c)-[:PARTICIPATED_IN]->(i)
`, map[string]any{
				"contact_ids":    contactIDs,
				"interaction_id": row.ID.String(),
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

// UpsertEntity merges one named entity node by its stable id.
func UpsertEntity(ctx context.Context, client *neo4jdb.Client, kind, name string) (string, error) {
	if !client.Enabled() {
		return "", nil
	}
	entityID := EntityID(kind, name)
	session := client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (e:Entity {entity_id: $entity_id})
SET e.name = $name,
    e.normalized_name = $normalized_name,
    e.kind = $kind
`, map[string]any{
			"entity_id":       entityID,
			"name":            strings.TrimSpace(name),
			"normalized_name": NormalizeName(name),
			"kind":            strings.TrimSpace(kind),
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return "", err
	}
	return entityID, nil
}
