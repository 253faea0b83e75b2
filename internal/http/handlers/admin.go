package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/http/response"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/processor"
	"github.com/luxcrm/relay/internal/workers"
)

type ReprocessRequest struct {
	InteractionID string `json:"interaction_id" binding:"required"`
}

type AdminHandler struct {
	log          *logger.Logger
	runner       *workers.Runner
	proc         *processor.Service
	interactions repos.InteractionRepo
	drafts       repos.DraftRepo
}

func NewAdminHandler(log *logger.Logger, runner *workers.Runner, proc *processor.Service, interactions repos.InteractionRepo, drafts repos.DraftRepo) *AdminHandler {
	return &AdminHandler{
		log:          log.With("handler", "admin"),
		runner:       runner,
		proc:         proc,
		interactions: interactions,
		drafts:       drafts,
	}
}

func (h *AdminHandler) Reprocess(c *gin.Context) {
	var req ReprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	id, err := uuid.Parse(req.InteractionID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	ctx := c.Request.Context()
	row, err := h.interactions.GetByID(ctx, nil, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if row == nil {
		response.Error(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err := h.runner.EnqueueInteraction(ctx, row.ID, row.Type); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"interaction_id": row.ID.String(), "status": "enqueued"})
}

func (h *AdminHandler) RecomputeScores(c *gin.Context) {
	if err := h.runner.EnqueueRecomputeScores(c.Request.Context()); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"status": "enqueued"})
}

// Cleanup runs the retention sweep synchronously so the caller sees counts.
func (h *AdminHandler) Cleanup(c *gin.Context) {
	result, err := h.proc.Cleanup(c.Request.Context(), h.drafts)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, result)
}
