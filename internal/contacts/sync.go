package contacts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/luxcrm/relay/internal/data/graph"
	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
)

const (
	ModePush = "push"
	ModePull = "pull"
)

// SyncResult reports what one registry sync did.
type SyncResult struct {
	Mode     string `json:"mode"`
	Upserted int    `json:"upserted"`
	Deduped  int    `json:"deduped"`
	Purged   int    `json:"purged"`
}

// Service owns the contact registry: sync, dedupe, internal purge.
type Service struct {
	log      *logger.Logger
	contacts repos.ContactRepo
	source   RowSource
	identity *InternalIdentity
	neo      *neo4jdb.Client
}

func NewService(log *logger.Logger, contacts repos.ContactRepo, source RowSource, identity *InternalIdentity, neo *neo4jdb.Client) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("contacts: logger is required")
	}
	if contacts == nil {
		return nil, fmt.Errorf("contacts: contact repo is required")
	}
	if identity == nil {
		identity = NewInternalIdentityFromEnv()
	}
	return &Service{
		log:      log.With("service", "contacts"),
		contacts: contacts,
		source:   source,
		identity: identity,
		neo:      neo,
	}, nil
}

// dedupeRows collapses rows sharing a lowercased email. The surviving row is
// the one with a company set; among those, the one with the most complete
// name wins. Earlier rows win ties.
func dedupeRows(rows []ContactRow) ([]ContactRow, int) {
	better := func(a, b ContactRow) bool {
		if (a.Company != "") != (b.Company != "") {
			return a.Company != ""
		}
		return len(a.DisplayName) > len(b.DisplayName)
	}
	byEmail := map[string]int{}
	var out []ContactRow
	dropped := 0
	for _, row := range rows {
		email := strings.ToLower(strings.TrimSpace(row.PrimaryEmail))
		if email == "" {
			dropped++
			continue
		}
		row.PrimaryEmail = email
		if idx, ok := byEmail[email]; ok {
			dropped++
			if better(row, out[idx]) {
				out[idx] = row
			}
			continue
		}
		byEmail[email] = len(out)
		out = append(out, row)
	}
	return out, dropped
}

// Sync upserts registry rows. Pull mode reads rows from the configured
// source; push mode takes them from the request. Internal rows are skipped
// and any previously cached internal contacts are purged.
func (s *Service) Sync(ctx context.Context, mode string, rows []ContactRow) (*SyncResult, error) {
	switch mode {
	case ModePush:
	case ModePull:
		if s.source == nil {
			return nil, fmt.Errorf("contacts: pull mode requires a configured row source")
		}
		var err error
		rows, err = s.source.FetchRows(ctx)
		if err != nil {
			return nil, fmt.Errorf("contacts: fetch rows: %w", err)
		}
	default:
		return nil, fmt.Errorf("contacts: unknown sync mode %q", mode)
	}

	deduped, droppedDupes := dedupeRows(rows)
	result := &SyncResult{Mode: mode, Deduped: droppedDupes}

	var internalEmails []string
	for _, row := range deduped {
		if s.identity.IsInternalEmail(row.PrimaryEmail) {
			internalEmails = append(internalEmails, row.PrimaryEmail)
			continue
		}
		contact := &domain.Contact{
			ContactID:            row.ContactID,
			PrimaryEmail:         row.PrimaryEmail,
			DisplayName:          row.DisplayName,
			Company:              row.Company,
			OwnerUserID:          row.OwnerUserID,
			UseSensitiveInDrafts: row.UseSensitiveInDrafts,
			UpdatedAt:            time.Now().UTC(),
		}
		if err := s.contacts.Upsert(ctx, nil, contact); err != nil {
			return nil, err
		}
		if s.neo.Enabled() {
			if err := graph.MergeContact(ctx, s.neo, contact); err != nil {
				s.log.Warn("graph contact merge failed", "contact_id", contact.ContactID, "error", err)
			}
		}
		result.Upserted++
	}

	purged, err := s.PurgeInternal(ctx, internalEmails)
	if err != nil {
		return nil, err
	}
	result.Purged = purged

	s.log.Info("contacts sync complete", "mode", mode,
		"upserted", result.Upserted, "deduped", result.Deduped, "purged", result.Purged)
	return result, nil
}

// PurgeInternal removes cached contacts whose email is internal. Extra
// emails force-purge rows seen during the current sync.
func (s *Service) PurgeInternal(ctx context.Context, extraEmails []string) (int, error) {
	all, err := s.contacts.ListAll(ctx, nil)
	if err != nil {
		return 0, err
	}
	targets := append([]string(nil), extraEmails...)
	for _, contact := range all {
		if s.identity.IsInternalEmail(contact.PrimaryEmail) {
			targets = append(targets, contact.PrimaryEmail)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}
	n, err := s.contacts.DeleteByEmails(ctx, nil, targets)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Lookup finds a contact by email. Nil contact means no match; callers open
// an identity task in that case.
func (s *Service) Lookup(ctx context.Context, email string) (*domain.Contact, error) {
	return s.contacts.GetByEmail(ctx, nil, strings.ToLower(strings.TrimSpace(email)))
}
