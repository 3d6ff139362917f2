package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cobra-poc/messaging-bridge/internal/service"
)

type ChatHandler struct {
	chat ChatService
}

func NewChatHandler(chat ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *ChatHandler) Register(r chi.Router) {
	r.Get("/channels/{channelId}/messages", h.ListMessages)
	r.Post("/channels/{channelId}/messages", h.SendMessage)
}

type sendMessageRequest struct {
	SenderName    string `json:"senderName"`
	Text          string `json:"text"`
	AttachmentURL string `json:"attachmentUrl"`
}

// POST /api/events/{eventId}/channels/{channelId}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	actor := actorFromRequest(r)
	if req.SenderName == "" {
		req.SenderName = actor
	}

	msg, err := h.chat.SendMessage(r.Context(), service.SendMessageParams{
		EventID:       chi.URLParam(r, "eventId"),
		ChannelID:     chi.URLParam(r, "channelId"),
		SenderName:    req.SenderName,
		Text:          req.Text,
		AttachmentURL: req.AttachmentURL,
		CreatedBy:     actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// GET /api/events/{eventId}/channels/{channelId}/messages?limit=&offset=
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r)

	result, err := h.chat.ListMessages(r.Context(), chi.URLParam(r, "eventId"), chi.URLParam(r, "channelId"), page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
