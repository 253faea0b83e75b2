package graph

import (
	"context"

	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
)

var schemaStatements = []string{
	`CREATE CONSTRAINT contact_id_unique IF NOT EXISTS FOR (c:Contact) REQUIRE c.contact_id IS UNIQUE`,
	`CREATE CONSTRAINT interaction_id_unique IF NOT EXISTS FOR (i:Interaction) REQUIRE i.interaction_id IS UNIQUE`,
	`CREATE CONSTRAINT claim_id_unique IF NOT EXISTS FOR (cl:Claim) REQUIRE cl.claim_id IS UNIQUE`,
	`CREATE CONSTRAINT evidence_id_unique IF NOT EXISTS FOR (e:Evidence) REQUIRE e.evidence_id IS UNIQUE`,
	`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.entity_id IS UNIQUE`,
	`CREATE INDEX contact_primary_email IF NOT EXISTS FOR (c:Contact) ON (c.primary_email)`,
	`CREATE INDEX entity_normalized_name IF NOT EXISTS FOR (e:Entity) ON (e.normalized_name)`,
	`CREATE INDEX relation_predicate_norm IF NOT EXISTS FOR ()-[r:RELATES_TO]-() ON (r.predicate_norm)`,
}

// EnsureSchema applies constraints and indexes. Best-effort: failures are
// logged and skipped so startup never blocks on schema drift.
func EnsureSchema(ctx context.Context, client *neo4jdb.Client, log *logger.Logger) {
	if !client.Enabled() {
		return
	}
	session := client.WriteSession(ctx)
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			if log != nil {
				log.Warn("graph schema init failed (continuing)", "error", err)
			}
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}
