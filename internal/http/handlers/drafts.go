package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luxcrm/relay/internal/drafting"
	"github.com/luxcrm/relay/internal/http/response"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

type DraftStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type DraftReviseRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body" binding:"required"`
	Status  string `json:"status"`
}

type DraftsHandler struct {
	log *logger.Logger
	svc *drafting.Service
}

func NewDraftsHandler(log *logger.Logger, svc *drafting.Service) *DraftsHandler {
	return &DraftsHandler{log: log.With("handler", "drafts"), svc: svc}
}

func (h *DraftsHandler) Create(c *gin.Context) {
	var req drafting.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	result, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		var policyErr *drafting.PolicyError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": response.APIError{
					Message: policyErr.Error(),
					Code:    "policy_violation",
				},
				"violations":   policyErr.Violations,
				"policy_flags": policyErr.Flags,
			})
			return
		}
		response.FromError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *DraftsHandler) Latest(c *gin.Context) {
	contactID := c.Query("contact_id")
	draft, err := h.svc.Latest(c.Request.Context(), contactID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, draft)
}

func (h *DraftsHandler) Get(c *gin.Context) {
	draft, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, draft)
}

func (h *DraftsHandler) SetStatus(c *gin.Context) {
	var req DraftStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	draft, err := h.svc.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, draft)
}

func (h *DraftsHandler) Revise(c *gin.Context) {
	var req DraftReviseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	draft, err := h.svc.Revise(c.Request.Context(), c.Param("id"), req.Subject, req.Body, req.Status)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, draft)
}

func (h *DraftsHandler) UpdateWritingStyle(c *gin.Context) {
	result, err := h.svc.UpdateWritingStyle(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *DraftsHandler) ObjectiveSuggestion(c *gin.Context) {
	contactID := c.Query("contact_id")
	objective, sources, err := h.svc.SuggestObjective(c.Request.Context(), contactID, drafting.PolicyFlags{})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{
		"contact_id": contactID,
		"objective":  objective,
		"sources":    sources,
	})
}
