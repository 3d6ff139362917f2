package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/cobra-poc/messaging-bridge/internal/errors"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/service"
)

// ChannelHandler manages external channel mappings for one event. Mounted
// under /api/events/{eventId}.
type ChannelHandler struct {
	messaging MessagingService
	chat      ChatService
}

func NewChannelHandler(messaging MessagingService, chat ChatService) *ChannelHandler {
	return &ChannelHandler{messaging: messaging, chat: chat}
}

func (h *ChannelHandler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register adds the routes to r, which may be shared with other handlers
// serving the same event prefix.
func (h *ChannelHandler) Register(r chi.Router) {
	r.Get("/external-channels", h.ListMappings)
	r.Post("/external-channels", h.CreateChannel)
	r.Delete("/external-channels/{mappingId}", h.Deactivate)
	r.Get("/channels", h.ListChannels)
	r.Post("/channels/{channelId}/link", h.LinkChannel)
	r.Delete("/channels/{channelId}/link", h.UnlinkChannel)
}

type createChannelRequest struct {
	Platform        string `json:"platform"`
	GroupName       string `json:"groupName"`
	ChannelName     string `json:"channelName"`
	ExternalGroupID string `json:"externalGroupId"`
}

// POST /api/events/{eventId}/external-channels
func (h *ChannelHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	platform, ok := model.ParsePlatform(req.Platform)
	if !ok {
		writeError(w, apperrors.PlatformUnsupported(req.Platform))
		return
	}

	result, err := h.messaging.CreateChannel(r.Context(), service.CreateChannelParams{
		EventID:         chi.URLParam(r, "eventId"),
		Platform:        platform,
		GroupName:       req.GroupName,
		ChannelName:     req.ChannelName,
		ExternalGroupID: req.ExternalGroupID,
		CreatedBy:       actorFromRequest(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// GET /api/events/{eventId}/external-channels
func (h *ChannelHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.messaging.ListMappings(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if mappings == nil {
		mappings = []model.ChannelMapping{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": mappings})
}

// DELETE /api/events/{eventId}/external-channels/{mappingId}?archive=true
func (h *ChannelHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	archive, _ := strconv.ParseBool(r.URL.Query().Get("archive"))

	if err := h.messaging.Deactivate(r.Context(), chi.URLParam(r, "eventId"), chi.URLParam(r, "mappingId"), archive, actorFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/events/{eventId}/channels
func (h *ChannelHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.chat.ListChannels(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if channels == nil {
		channels = []model.ChatChannel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

// POST /api/events/{eventId}/channels/{channelId}/link
func (h *ChannelHandler) LinkChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MappingID string `json:"mappingId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.MappingID == "" {
		writeError(w, apperrors.MissingRequired("mappingId"))
		return
	}

	if err := h.messaging.LinkChannel(r.Context(), chi.URLParam(r, "eventId"), chi.URLParam(r, "channelId"), req.MappingID, actorFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

// DELETE /api/events/{eventId}/channels/{channelId}/link
func (h *ChannelHandler) UnlinkChannel(w http.ResponseWriter, r *http.Request) {
	result, err := h.messaging.UnlinkChannel(r.Context(), chi.URLParam(r, "eventId"), chi.URLParam(r, "channelId"), actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
