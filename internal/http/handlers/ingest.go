package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/domain"
	"github.com/luxcrm/relay/internal/http/response"
	"github.com/luxcrm/relay/internal/news"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/workers"
)

// eventTypeToInteractionType normalizes webhook event types onto interaction
// types. Unknown event types degrade to note rather than rejecting the event.
var eventTypeToInteractionType = map[string]string{
	"email_received":     domain.InteractionTypeEmail,
	"email_sent":         domain.InteractionTypeEmail,
	"meeting_transcript": domain.InteractionTypeMeeting,
	"news_item":          domain.InteractionTypeNews,
	"note":               domain.InteractionTypeNote,
}

type InteractionEventIn struct {
	SourceSystem string                `json:"source_system" binding:"required"`
	EventType    string                `json:"event_type" binding:"required"`
	ExternalID   string                `json:"external_id" binding:"required"`
	Timestamp    time.Time             `json:"timestamp" binding:"required"`
	ThreadID     string                `json:"thread_id"`
	Direction    string                `json:"direction"`
	Subject      string                `json:"subject"`
	Participants domain.ParticipantSet `json:"participants"`
	BodyPlain    string                `json:"body_plain" binding:"required"`
}

type NewsItemIn struct {
	Title       string     `json:"title" binding:"required"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at"`
	BodyPlain   string     `json:"body_plain" binding:"required"`
}

type IngestResponse struct {
	RawEventID    string `json:"raw_event_id"`
	InteractionID string `json:"interaction_id"`
	Status        string `json:"status"`
}

type IngestHandler struct {
	log          *logger.Logger
	rawEvents    repos.RawEventRepo
	interactions repos.InteractionRepo
	runner       *workers.Runner
}

func NewIngestHandler(log *logger.Logger, rawEvents repos.RawEventRepo, interactions repos.InteractionRepo, runner *workers.Runner) *IngestHandler {
	return &IngestHandler{
		log:          log.With("handler", "ingest"),
		rawEvents:    rawEvents,
		interactions: interactions,
		runner:       runner,
	}
}

// store persists the raw event and its normalized interaction, then queues
// processing for newly created rows. Existing rows short-circuit to a
// duplicate response so webhook retries are harmless.
func (h *IngestHandler) store(c *gin.Context, event *domain.RawEvent, row *domain.Interaction) {
	ctx := c.Request.Context()
	event, _, err := h.rawEvents.GetOrCreate(ctx, nil, event)
	if err != nil {
		response.FromError(c, err)
		return
	}
	row, created, err := h.interactions.GetOrCreate(ctx, nil, row)
	if err != nil {
		response.FromError(c, err)
		return
	}

	status := "duplicate"
	if created {
		status = "enqueued"
		if err := h.runner.EnqueueInteraction(ctx, row.ID, row.Type); err != nil {
			h.log.Error("enqueue failed", "interaction_id", row.ID.String(), "error", err)
			response.FromError(c, err)
			return
		}
	}
	response.OK(c, IngestResponse{
		RawEventID:    event.ID.String(),
		InteractionID: row.ID.String(),
		Status:        status,
	})
}

func (h *IngestHandler) InteractionEvent(c *gin.Context) {
	var in InteractionEventIn
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}

	payload, err := json.Marshal(in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	participants, err := json.Marshal(in.Participants)
	if err != nil {
		response.FromError(c, err)
		return
	}

	interactionType, ok := eventTypeToInteractionType[in.EventType]
	if !ok {
		interactionType = domain.InteractionTypeNote
	}
	direction := in.Direction
	if direction == "" {
		direction = domain.DirectionNA
	}
	threadID := in.ThreadID
	if threadID == "" {
		threadID = in.ExternalID
	}

	event := &domain.RawEvent{
		SourceSystem: in.SourceSystem,
		EventType:    in.EventType,
		ExternalID:   in.ExternalID,
		Payload:      datatypes.JSON(payload),
		ReceivedAt:   time.Now().UTC(),
	}
	row := &domain.Interaction{
		SourceSystem: in.SourceSystem,
		ExternalID:   in.ExternalID,
		Type:         interactionType,
		Timestamp:    in.Timestamp.UTC(),
		Direction:    direction,
		Subject:      in.Subject,
		ThreadID:     threadID,
		Participants: datatypes.JSON(participants),
		Status:       domain.InteractionStatusNew,
	}
	h.store(c, event, row)
}

func (h *IngestHandler) NewsItem(c *gin.Context) {
	var in NewsItemIn
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	externalID := news.DedupeKey(in.URL, in.Title)
	if externalID == "" {
		response.Error(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("news item needs a url or title"))
		return
	}

	payload, err := json.Marshal(in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	participants, _ := json.Marshal(domain.ParticipantSet{})

	now := time.Now().UTC()
	timestamp := now
	if in.PublishedAt != nil {
		timestamp = in.PublishedAt.UTC()
	}

	event := &domain.RawEvent{
		SourceSystem: "news",
		EventType:    "news_item",
		ExternalID:   externalID,
		Payload:      datatypes.JSON(payload),
		ReceivedAt:   now,
	}
	row := &domain.Interaction{
		SourceSystem: "news",
		ExternalID:   externalID,
		Type:         domain.InteractionTypeNews,
		Timestamp:    timestamp,
		Direction:    domain.DirectionNA,
		Subject:      in.Title,
		ThreadID:     in.URL,
		Participants: datatypes.JSON(participants),
		Status:       domain.InteractionStatusNew,
	}
	h.store(c, event, row)
}
