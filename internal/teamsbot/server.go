package teamsbot

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	"github.com/cobra-poc/messaging-bridge/internal/convref"
	"github.com/cobra-poc/messaging-bridge/internal/httputil"
	"github.com/cobra-poc/messaging-bridge/internal/middleware"
)

type ServerOptions struct {
	InternalAPIKey    string
	ActivityRateLimit int
	Limiter           middleware.Limiter
}

// Server exposes the Bot Framework messaging endpoint and the internal API
// the bridge server uses for outbound delivery.
type Server struct {
	bot    *Bot
	sender *ProactiveSender
	store  convref.Store
	opts   ServerOptions
}

func NewServer(bot *Bot, sender *ProactiveSender, store convref.Store, opts ServerOptions) *Server {
	return &Server{bot: bot, sender: sender, store: store, opts: opts}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.Health)

	activityLimit := middleware.NewRateLimitMiddleware(s.opts.Limiter, "teams-activity", s.opts.ActivityRateLimit, middleware.ByRemoteAddr)
	r.With(activityLimit.Handler).Post("/api/messages", s.Messages)

	r.Route("/api/internal", func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(s.opts.InternalAPIKey).Handler)
		r.Post("/send", s.Send)
		r.Get("/conversations", s.ListConversations)
		r.Delete("/conversations/{conversationId}", s.RemoveConversation)
	})

	return r
}

// POST /api/messages
func (s *Server) Messages(w http.ResponseWriter, r *http.Request) {
	var activity Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid activity"})
		return
	}
	if activity.Conversation.ID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Activity has no conversation"})
		return
	}

	log.Debug().
		Str("type", activity.Type).
		Str("activityId", activity.ID).
		Str("conversationId", activity.Conversation.ID).
		Msg("activity received")

	s.bot.Dispatch(&activity)
	w.WriteHeader(http.StatusOK)
}

// POST /api/internal/send
func (s *Server) Send(w http.ResponseWriter, r *http.Request) {
	var req cobraapi.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	resp, err := s.sender.Send(r.Context(), &req)
	if err != nil {
		log.Error().Err(err).Str("conversationId", req.ConversationID).Msg("proactive send failed")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// GET /api/internal/conversations
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	refs, err := s.store.GetAll(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"count":         len(refs),
		"conversations": refs,
	})
}

// DELETE /api/internal/conversations/{conversationId}
func (s *Server) RemoveConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	if v, err := url.PathUnescape(conversationID); err == nil {
		conversationID = v
	}

	if err := s.store.Remove(r.Context(), conversationID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /health
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}
