package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/luxcrm/relay/internal/data/graph"
	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/evidence"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
)

const interactionScanLimit = 500

// Service computes relationship and priority scores and persists one
// snapshot per contact per UTC date.
type Service struct {
	log          *logger.Logger
	interactions repos.InteractionRepo
	snapshots    repos.ScoreSnapshotRepo
	signals      *WarmthDepthSignals
	neo          *neo4jdb.Client
	store        *evidence.Store
}

func NewService(
	log *logger.Logger,
	interactions repos.InteractionRepo,
	snapshots repos.ScoreSnapshotRepo,
	signals *WarmthDepthSignals,
	neo *neo4jdb.Client,
	store *evidence.Store,
) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("scoring: logger is required")
	}
	if interactions == nil || snapshots == nil {
		return nil, fmt.Errorf("scoring: interaction and snapshot repos are required")
	}
	return &Service{
		log:          log.With("service", "scoring"),
		interactions: interactions,
		snapshots:    snapshots,
		signals:      signals,
		neo:          neo,
		store:        store,
	}, nil
}

func contactInteractions(rows []*domain.Interaction, contactID string) []*domain.Interaction {
	out := make([]*domain.Interaction, 0, len(rows))
	for _, row := range rows {
		for _, id := range repos.ContactIDsOf(row) {
			if id == contactID {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// vectorAlignment measures how semantically close the contact's recent
// subjects sit to their indexed evidence. Zero when search is unavailable.
func (s *Service) vectorAlignment(ctx context.Context, contact *domain.Contact, rows []*domain.Interaction) float64 {
	if s.store == nil || len(rows) == 0 {
		return 0
	}
	query := contact.DisplayName + " " + contact.Company
	for i, row := range rows {
		if i == 3 {
			break
		}
		query += " " + row.Subject
	}
	results, err := s.store.SimilaritySearch(ctx, query, contact.ContactID, 5)
	if err != nil || len(results) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range results {
		sum += r.Score
	}
	return clamp(sum/float64(len(results)), 0, 1)
}

// ComputeContact scores one contact and upserts today's snapshot.
func (s *Service) ComputeContact(ctx context.Context, contact *domain.Contact) (*domain.ScoreSnapshot, error) {
	if contact == nil {
		return nil, fmt.Errorf("scoring: contact is required")
	}
	now := time.Now().UTC()

	all, err := s.interactions.ListRecent(ctx, nil, interactionScanLimit)
	if err != nil {
		return nil, err
	}
	rows := contactInteractions(all, contact.ContactID)

	count30, count90 := CountsWithin(rows, now)
	var last *time.Time
	if len(rows) > 0 {
		ts := rows[0].Timestamp
		last = &ts
	}

	warmth := HeuristicWarmthDelta(rows)
	depth := HeuristicDepthCount(rows)
	source := "heuristic"
	if s.signals != nil {
		warmth, depth, source = s.signals.Derive(ctx, rows, warmth, depth)
	}

	var metrics *graph.Metrics
	if s.neo.Enabled() {
		metrics, err = graph.GetGraphMetrics(ctx, s.neo, contact.ContactID, 90)
		if err != nil {
			s.log.Warn("graph metrics unavailable", "contact_id", contact.ContactID, "error", err)
			metrics = nil
		}
	}
	alignment := s.vectorAlignment(ctx, contact, rows)

	relationship, relComponents := RelationshipScore(RelationshipInputs{
		Now:               now,
		LastInteractionAt: last,
		Count30d:          count30,
		Count90d:          count90,
		WarmthDelta:       warmth + GraphWarmthBonus(metrics, alignment),
		DepthCount:        float64(depth) + GraphDepthBonus(metrics),
	})

	inactivityDays := 999.0
	if last != nil {
		inactivityDays = now.Sub(*last).Hours() / 24
	}
	priority, prioComponents := PriorityScore(PriorityInputs{
		Relationship:      relationship,
		InactivityDays:    inactivityDays,
		OpenLoops:         OpenLoops(rows),
		TriggerScore:      TriggerScore(rows, now),
		GraphTriggerBonus: GraphTriggerBonus(metrics),
	})

	components := map[string]any{
		"relationship":        relComponents,
		"priority":            prioComponents,
		"warmth_depth_source": source,
		"vector_alignment":    alignment,
	}
	if metrics != nil {
		components["graph_metrics"] = metrics
	}
	raw, err := json.Marshal(components)
	if err != nil {
		return nil, fmt.Errorf("scoring: encode components: %w", err)
	}

	snapshot := &domain.ScoreSnapshot{
		ID:                uuid.New(),
		ContactID:         contact.ContactID,
		AsOf:              now.Format("2006-01-02"),
		RelationshipScore: relationship,
		PriorityScore:     priority,
		Components:        datatypes.JSON(raw),
	}
	if err := s.snapshots.Upsert(ctx, nil, snapshot); err != nil {
		return nil, err
	}
	s.log.Info("scored contact", "contact_id", contact.ContactID,
		"relationship", relationship, "priority", priority, "asof", snapshot.AsOf)
	return snapshot, nil
}

// LatestForContact returns the most recent snapshot, if any.
func (s *Service) LatestForContact(ctx context.Context, contactID string) (*domain.ScoreSnapshot, error) {
	return s.snapshots.GetLatestByContact(ctx, nil, contactID)
}
