package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	apperrors "github.com/cobra-poc/messaging-bridge/internal/errors"
)

// TeamsHandler serves the endpoints the Teams bot uses to keep the server's
// copy of conversation state current.
type TeamsHandler struct {
	teams TeamsBridgeService
}

func NewTeamsHandler(teams TeamsBridgeService) *TeamsHandler {
	return &TeamsHandler{teams: teams}
}

func (h *TeamsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/mappings/{conversationId}", h.LookupMapping)
	r.Put("/conversation-references/{conversationId}", h.StoreReference)
	r.Get("/conversation-references/{conversationId}", h.GetReference)

	return r
}

// GET /api/teams/mappings/{conversationId}
func (h *TeamsHandler) LookupMapping(w http.ResponseWriter, r *http.Request) {
	mapping, err := h.teams.LookupMapping(r.Context(), pathParam(r, "conversationId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if mapping == nil || !mapping.LinkedToEvent() {
		writeError(w, apperrors.NotFound("Mapping"))
		return
	}
	writeJSON(w, http.StatusOK, cobraapi.MappingLookupResponse{MappingID: mapping.ID})
}

// PUT /api/teams/conversation-references/{conversationId}
func (h *TeamsHandler) StoreReference(w http.ResponseWriter, r *http.Request) {
	conversationID := pathParam(r, "conversationId")

	var envelope cobraapi.ReferenceEnvelope
	if err := decodeJSON(r, &envelope); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	actor := actorFromRequest(r)
	if actor == "" {
		actor = "teams-bot"
	}

	result, err := h.teams.StoreConversationReference(r.Context(), conversationID, envelope.ConversationReference, envelope.ConversationName, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, cobraapi.StoreReferenceResponse{MappingID: result.Mapping.ID, Created: result.Created})
}

// GET /api/teams/conversation-references/{conversationId}
func (h *TeamsHandler) GetReference(w http.ResponseWriter, r *http.Request) {
	conversationID := pathParam(r, "conversationId")

	mapping, ref, err := h.teams.GetConversationReference(r.Context(), conversationID)
	if err != nil {
		writeError(w, err)
		return
	}
	if ref == nil {
		writeError(w, apperrors.NotFound("Conversation reference"))
		return
	}

	envelope := cobraapi.ReferenceEnvelope{
		ConversationID:        conversationID,
		ConversationReference: ref,
	}
	if mapping != nil {
		envelope.ConversationName = mapping.ExternalGroupName
	}
	writeJSON(w, http.StatusOK, envelope)
}
