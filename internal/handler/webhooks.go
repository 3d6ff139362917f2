package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/audit"
	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/service"
)

// groupMeCallback is the body GroupMe posts to a bot's callback URL.
type groupMeCallback struct {
	ID          string              `json:"id"`
	GroupID     string              `json:"group_id"`
	Name        string              `json:"name"`
	SenderID    string              `json:"sender_id"`
	SenderType  string              `json:"sender_type"`
	UserID      string              `json:"user_id"`
	Text        string              `json:"text"`
	CreatedAt   int64               `json:"created_at"`
	SourceGUID  string              `json:"source_guid"`
	Attachments []groupMeAttachment `json:"attachments"`
}

type groupMeAttachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

func (c *groupMeCallback) toInbound(secret string) model.InboundMessage {
	var attachment string
	for _, a := range c.Attachments {
		if a.Type == "image" && a.URL != "" {
			attachment = a.URL
			break
		}
	}

	ts := time.Now().UTC()
	if c.CreatedAt > 0 {
		ts = time.Unix(c.CreatedAt, 0).UTC()
	}

	return model.InboundMessage{
		ExternalMessageID: c.ID,
		SenderID:          c.SenderID,
		SenderName:        c.Name,
		Text:              c.Text,
		AttachmentURL:     attachment,
		Timestamp:         ts,
		ExternalGroupID:   c.GroupID,
		Kind:              c.SenderType,
		FromBot:           c.SenderType == "bot",
		WebhookSecret:     secret,
	}
}

type WebhookHandler struct {
	messaging MessagingService
	teams     TeamsBridgeService
}

func NewWebhookHandler(messaging MessagingService, teams TeamsBridgeService) *WebhookHandler {
	return &WebhookHandler{messaging: messaging, teams: teams}
}

// GroupMeRoutes are public; GroupMe cannot send custom headers, so the
// per-mapping secret travels in the callback URL. perRoute middlewares run
// after routing, so they can read {mappingId}.
func (h *WebhookHandler) GroupMeRoutes(perRoute ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.With(perRoute...).Post("/{mappingId}", h.GroupMe)
	return r
}

// TeamsRoutes expect the bot's API key.
func (h *WebhookHandler) TeamsRoutes(perRoute ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.With(perRoute...).Post("/conversations/{conversationId}", h.TeamsUnmapped)
	r.With(perRoute...).Post("/{mappingId}", h.Teams)
	return r
}

// POST /api/webhooks/groupme/{mappingId}?secret=
func (h *WebhookHandler) GroupMe(w http.ResponseWriter, r *http.Request) {
	mappingID := pathParam(r, "mappingId")

	var body groupMeCallback
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	h.process(w, r, mappingID, body.toInbound(r.URL.Query().Get("secret")))
}

// POST /api/webhooks/teams/{mappingId}
func (h *WebhookHandler) Teams(w http.ResponseWriter, r *http.Request) {
	mappingID := pathParam(r, "mappingId")

	var payload cobraapi.WebhookPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	h.process(w, r, mappingID, payload.ToInbound())
}

// POST /api/webhooks/teams/conversations/{conversationId}
// 404 tells the bot the conversation is not connected to any event yet.
func (h *WebhookHandler) TeamsUnmapped(w http.ResponseWriter, r *http.Request) {
	conversationID := pathParam(r, "conversationId")

	var payload cobraapi.WebhookPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if payload.ConversationID == "" {
		payload.ConversationID = conversationID
	}

	mapping, err := h.teams.LookupMapping(r.Context(), conversationID)
	if err != nil {
		writeError(w, err)
		return
	}
	if mapping == nil || !mapping.LinkedToEvent() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No mapping for conversation"})
		return
	}

	h.process(w, r, mapping.ID, payload.ToInbound())
}

func (h *WebhookHandler) process(w http.ResponseWriter, r *http.Request, mappingID string, msg model.InboundMessage) {
	result, err := h.messaging.ProcessInboundWebhook(r.Context(), mappingID, msg)
	if err != nil {
		log.Error().Err(err).Str("mappingId", mappingID).Msg("failed to process inbound webhook")
		writeError(w, err)
		return
	}

	if result.Outcome == service.InboundRejectedSecret {
		audit.LogFromRequest(r, audit.Event{
			Type:      audit.EventWebhookRejected,
			MappingID: mappingID,
			Details:   map[string]interface{}{"reason": "secret mismatch"},
		})
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid webhook secret"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"outcome":    result.Outcome,
		"stored":     len(result.Messages),
		"duplicates": result.Duplicates,
	})
}
