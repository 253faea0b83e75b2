package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luxcrm/relay/internal/contacts"
	"github.com/luxcrm/relay/internal/data/graph"
	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/http/response"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/neo4jdb"
	"github.com/luxcrm/relay/internal/resolution"
	"github.com/luxcrm/relay/internal/summarycache"
)

type ContactsSyncRequest struct {
	Mode string                `json:"mode" binding:"required"`
	Rows []contacts.ContactRow `json:"rows"`
}

type ContactLookupResponse struct {
	ContactID        string `json:"contact_id,omitempty"`
	PrimaryEmail     string `json:"primary_email"`
	DisplayName      string `json:"display_name,omitempty"`
	ResolutionTaskID string `json:"resolution_task_id,omitempty"`
}

type ContactsHandler struct {
	log        *logger.Logger
	sync       *contacts.Service
	registry   repos.ContactRepo
	drafts     repos.DraftRepo
	tasks      repos.ResolutionTaskRepo
	snapshots  repos.ScoreSnapshotRepo
	resolution *resolution.Service
	summaries  *summarycache.Cache
	neo        *neo4jdb.Client
}

func NewContactsHandler(
	log *logger.Logger,
	sync *contacts.Service,
	registry repos.ContactRepo,
	drafts repos.DraftRepo,
	tasks repos.ResolutionTaskRepo,
	snapshots repos.ScoreSnapshotRepo,
	resolutionSvc *resolution.Service,
	summaries *summarycache.Cache,
	neo *neo4jdb.Client,
) *ContactsHandler {
	return &ContactsHandler{
		log:        log.With("handler", "contacts"),
		sync:       sync,
		registry:   registry,
		drafts:     drafts,
		tasks:      tasks,
		snapshots:  snapshots,
		resolution: resolutionSvc,
		summaries:  summaries,
		neo:        neo,
	}
}

func (h *ContactsHandler) Sync(c *gin.Context) {
	var req ContactsSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	result, err := h.sync.Sync(c.Request.Context(), req.Mode, req.Rows)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, result)
}

// Lookup returns the matching contact, or opens (or reuses) an identity
// resolution task when the email is unknown.
func (h *ContactsHandler) Lookup(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		response.Error(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("email query parameter is required"))
		return
	}
	ctx := c.Request.Context()
	contact, err := h.sync.Lookup(ctx, email)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if contact != nil {
		response.OK(c, ContactLookupResponse{
			ContactID:    contact.ContactID,
			PrimaryEmail: contact.PrimaryEmail,
			DisplayName:  contact.DisplayName,
		})
		return
	}

	task, _, err := h.resolution.CreateIdentityTask(ctx, email, map[string]any{"lookup_source": "contacts.lookup"})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, ContactLookupResponse{
		PrimaryEmail:     email,
		ResolutionTaskID: task.ID.String(),
	})
}

// Delete cascades over everything keyed by the contact: drafts, resolution
// tasks, score snapshots, the summary cache entry, and the graph subtree.
func (h *ContactsHandler) Delete(c *gin.Context) {
	contactID := c.Param("id")
	ctx := c.Request.Context()

	contact, err := h.registry.GetByID(ctx, nil, contactID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if contact == nil {
		response.Error(c, http.StatusNotFound, "not_found", fmt.Errorf("contact %s not found", contactID))
		return
	}

	draftsDeleted, err := h.drafts.DeleteByContact(ctx, nil, contactID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	tasksDeleted, err := h.tasks.DeleteByContact(ctx, nil, contactID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	snapshotsDeleted, err := h.snapshots.DeleteByContact(ctx, nil, contactID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if err := graph.DeleteContactGraph(ctx, h.neo, contactID); err != nil {
		h.log.Warn("graph cascade failed", "contact_id", contactID, "error", err)
	}
	if h.summaries != nil {
		h.summaries.Invalidate(contactID)
	}
	if err := h.registry.Delete(ctx, nil, contactID); err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, gin.H{
		"contact_id":        contactID,
		"drafts_deleted":    draftsDeleted,
		"tasks_deleted":     tasksDeleted,
		"snapshots_deleted": snapshotsDeleted,
	})
}
