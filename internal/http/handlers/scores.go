package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/http/response"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/summarycache"
)

const inactivityWhyNowDays = 30

type ContactScoreItem struct {
	ContactID         string         `json:"contact_id"`
	DisplayName       string         `json:"display_name"`
	RelationshipScore float64        `json:"relationship_score"`
	PriorityScore     float64        `json:"priority_score"`
	WhyNow            string         `json:"why_now"`
	AsOf              string         `json:"asof,omitempty"`
	Components        map[string]any `json:"components,omitempty"`
}

type ScoresHandler struct {
	log          *logger.Logger
	contacts     repos.ContactRepo
	interactions repos.InteractionRepo
	snapshots    repos.ScoreSnapshotRepo
	summaries    *summarycache.Cache
}

func NewScoresHandler(
	log *logger.Logger,
	contacts repos.ContactRepo,
	interactions repos.InteractionRepo,
	snapshots repos.ScoreSnapshotRepo,
	summaries *summarycache.Cache,
) *ScoresHandler {
	return &ScoresHandler{
		log:          log.With("handler", "scores"),
		contacts:     contacts,
		interactions: interactions,
		snapshots:    snapshots,
		summaries:    summaries,
	}
}

func componentsOf(snapshot *domain.ScoreSnapshot) map[string]any {
	if snapshot == nil || len(snapshot.Components) == 0 {
		return nil
	}
	var components map[string]any
	if err := json.Unmarshal(snapshot.Components, &components); err != nil {
		return nil
	}
	return components
}

// inactivityDays scans recent interactions for the contact's newest
// timestamp. Contacts with no interactions report a full year.
func inactivityDays(rows []*domain.Interaction, contactID string, now time.Time) float64 {
	for _, row := range rows {
		for _, id := range repos.ContactIDsOf(row) {
			if id == contactID {
				return now.Sub(row.Timestamp).Hours() / 24
			}
		}
	}
	return 365
}

func (h *ScoresHandler) scoreItems(c *gin.Context) ([]ContactScoreItem, error) {
	ctx := c.Request.Context()
	contactRows, err := h.contacts.ListAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(contactRows))
	for _, contact := range contactRows {
		ids = append(ids, contact.ContactID)
	}
	latest, err := h.snapshots.LatestByContacts(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	recent, err := h.interactions.ListRecent(ctx, nil, 1000)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	items := make([]ContactScoreItem, 0, len(contactRows))
	for _, contact := range contactRows {
		item := ContactScoreItem{
			ContactID:   contact.ContactID,
			DisplayName: contact.DisplayName,
		}
		snapshot := latest[contact.ContactID]
		if snapshot == nil {
			item.WhyNow = "No score snapshot exists yet; ingest an interaction or recompute scores"
			items = append(items, item)
			continue
		}
		item.RelationshipScore = snapshot.RelationshipScore
		item.PriorityScore = snapshot.PriorityScore
		item.AsOf = snapshot.AsOf
		item.Components = componentsOf(snapshot)
		if inactivityDays(recent, contact.ContactID, now) >= inactivityWhyNowDays {
			item.WhyNow = "No recent interaction"
		} else {
			item.WhyNow = "Maintain momentum from recent activity"
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PriorityScore > items[j].PriorityScore
	})
	return items, nil
}

func (h *ScoresHandler) Today(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	items, err := h.scoreItems(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if len(items) > limit {
		items = items[:limit]
	}
	response.OK(c, gin.H{
		"asof":  time.Now().UTC().Format(time.RFC3339),
		"items": items,
	})
}

func (h *ScoresHandler) ContactDetail(c *gin.Context) {
	contactID := c.Param("id")
	ctx := c.Request.Context()

	contact, err := h.contacts.GetByID(ctx, nil, contactID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if contact == nil {
		response.Error(c, http.StatusNotFound, "not_found", fmt.Errorf("contact %s not found", contactID))
		return
	}

	snapshot, err := h.snapshots.GetLatestByContact(ctx, nil, contactID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if snapshot == nil {
		response.OK(c, gin.H{
			"contact_id": contactID,
			"trend":      []any{},
			"current":    nil,
		})
		return
	}

	current := ContactScoreItem{
		ContactID:         contactID,
		DisplayName:       contact.DisplayName,
		RelationshipScore: snapshot.RelationshipScore,
		PriorityScore:     snapshot.PriorityScore,
		AsOf:              snapshot.AsOf,
		Components:        componentsOf(snapshot),
	}
	recent, err := h.interactions.ListRecent(ctx, nil, 1000)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if inactivityDays(recent, contactID, time.Now().UTC()) >= inactivityWhyNowDays {
		current.WhyNow = "No recent interaction"
	} else {
		current.WhyNow = "Maintain momentum from recent activity"
	}

	response.OK(c, gin.H{
		"contact_id": contactID,
		"trend": []gin.H{{
			"asof":               snapshot.AsOf,
			"relationship_score": snapshot.RelationshipScore,
			"priority_score":     snapshot.PriorityScore,
			"components":         current.Components,
		}},
		"current": current,
	})
}

func (h *ScoresHandler) RefreshSummary(c *gin.Context) {
	contactID := c.Param("id")
	if h.summaries == nil {
		response.Error(c, http.StatusNotFound, "not_found", fmt.Errorf("summary cache is not configured"))
		return
	}
	h.summaries.Invalidate(contactID)
	summary, err := h.summaries.Refresh(c.Request.Context(), contactID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, summary)
}
