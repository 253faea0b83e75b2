package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/luxcrm/relay/internal/http/response"
	"github.com/luxcrm/relay/internal/news"
	"github.com/luxcrm/relay/internal/pkg/logger"
)

type NewsHandler struct {
	log     *logger.Logger
	matcher *news.Matcher
}

func NewNewsHandler(log *logger.Logger, matcher *news.Matcher) *NewsHandler {
	return &NewsHandler{log: log.With("handler", "news"), matcher: matcher}
}

// Match scores contacts against an article on demand. Matches are computed
// fresh per request and never stored.
func (h *NewsHandler) Match(c *gin.Context) {
	var in NewsItemIn
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	maxResults := 10
	if raw := c.Query("max_results"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			maxResults = parsed
		}
	}
	matches, err := h.matcher.MatchContacts(c.Request.Context(), in.BodyPlain, maxResults)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{
		"title":   in.Title,
		"url":     in.URL,
		"matches": matches,
		"storage": "skipped",
	})
}
