package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luxcrm/relay/internal/http/response"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/resolution"
)

type ResolveTaskRequest struct {
	Action      string         `json:"action" binding:"required"`
	EditedValue map[string]any `json:"edited_value_json"`
}

type ResolutionHandler struct {
	log *logger.Logger
	svc *resolution.Service
}

func NewResolutionHandler(log *logger.Logger, svc *resolution.Service) *ResolutionHandler {
	return &ResolutionHandler{log: log.With("handler", "resolution"), svc: svc}
}

func (h *ResolutionHandler) ListTasks(c *gin.Context) {
	status := c.DefaultQuery("status", "open")
	tasks, err := h.svc.ListTasks(c.Request.Context(), status, 200)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"tasks": tasks})
}

func (h *ResolutionHandler) Resolve(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	var req ResolveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	task, err := h.svc.Resolve(c.Request.Context(), taskID, req.Action, req.EditedValue)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"task_id": task.ID.String(), "status": task.Status})
}
