package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cobra-poc/messaging-bridge/internal/middleware"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/service"
)

const groupMeBody = `{
	"id": "1700000000123",
	"group_id": "gm-42",
	"name": "Pat",
	"sender_id": "u-7",
	"sender_type": "user",
	"text": "water rising",
	"created_at": 1700000000,
	"attachments": [{"type": "image", "url": "https://i.groupme.com/x.png"}]
}`

func TestGroupMeCallback_toInbound(t *testing.T) {
	t.Run("normalizes a user message", func(t *testing.T) {
		cb := groupMeCallback{ID: "m1", GroupID: "g1", Name: "Pat", SenderID: "u1", SenderType: "user", Text: "hi", CreatedAt: 1700000000,
			Attachments: []groupMeAttachment{{Type: "location"}, {Type: "image", URL: "https://img"}}}

		msg := cb.toInbound("s3cret")

		assert.Equal(t, "m1", msg.ExternalMessageID)
		assert.Equal(t, "g1", msg.ExternalGroupID)
		assert.Equal(t, "https://img", msg.AttachmentURL)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp)
		assert.Equal(t, "s3cret", msg.WebhookSecret)
		assert.False(t, msg.FromBot)
	})

	t.Run("bot messages are flagged", func(t *testing.T) {
		cb := groupMeCallback{SenderID: "bot-9", SenderType: "bot"}
		msg := cb.toInbound("")

		assert.True(t, msg.FromBot)
		assert.Equal(t, "bot-9", msg.SenderID)
	})

	t.Run("system notices keep their kind", func(t *testing.T) {
		cb := groupMeCallback{SenderType: "system"}
		msg := cb.toInbound("")

		assert.False(t, msg.FromBot)
		assert.Equal(t, model.InboundKindSystem, msg.Kind)
	})
}

func TestWebhookHandler_GroupMe(t *testing.T) {
	t.Run("passes the normalized message and secret", func(t *testing.T) {
		messaging := new(mockMessaging)
		h := NewWebhookHandler(messaging, new(mockTeams))

		messaging.On("ProcessInboundWebhook", mock.Anything, "map-1", mock.MatchedBy(func(m model.InboundMessage) bool {
			return m.ExternalMessageID == "1700000000123" && m.ExternalGroupID == "gm-42" && m.WebhookSecret == "abc"
		})).Return(&service.InboundResult{Outcome: service.InboundDelivered, Messages: []model.ChatMessage{{ID: "x"}}}, nil)

		req := httptest.NewRequest(http.MethodPost, "/map-1?secret=abc", strings.NewReader(groupMeBody))
		rec := httptest.NewRecorder()
		h.GroupMeRoutes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"outcome":"delivered"`)
		messaging.AssertExpectations(t)
	})

	t.Run("rejected secret is 401", func(t *testing.T) {
		messaging := new(mockMessaging)
		h := NewWebhookHandler(messaging, new(mockTeams))
		messaging.On("ProcessInboundWebhook", mock.Anything, "map-1", mock.Anything).Return(&service.InboundResult{Outcome: service.InboundRejectedSecret}, nil)

		req := httptest.NewRequest(http.MethodPost, "/map-1?secret=nope", strings.NewReader(groupMeBody))
		rec := httptest.NewRecorder()
		h.GroupMeRoutes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ignored outcomes are still 200", func(t *testing.T) {
		messaging := new(mockMessaging)
		h := NewWebhookHandler(messaging, new(mockTeams))
		messaging.On("ProcessInboundWebhook", mock.Anything, "map-1", mock.Anything).Return(&service.InboundResult{Outcome: service.InboundIgnoredOwnBot}, nil)

		req := httptest.NewRequest(http.MethodPost, "/map-1", strings.NewReader(`{"sender_type":"bot"}`))
		rec := httptest.NewRecorder()
		h.GroupMeRoutes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ignored_own_bot")
	})

	t.Run("malformed body", func(t *testing.T) {
		h := NewWebhookHandler(new(mockMessaging), new(mockTeams))

		req := httptest.NewRequest(http.MethodPost, "/map-1", strings.NewReader(`{`))
		rec := httptest.NewRecorder()
		h.GroupMeRoutes().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWebhookHandler_Teams(t *testing.T) {
	body := `{"messageId":"a1","conversationId":"19:abc@thread.tacv2","senderId":"29:u","senderName":"Lee","text":"on my way"}`

	t.Run("mapped conversation", func(t *testing.T) {
		messaging := new(mockMessaging)
		h := NewWebhookHandler(messaging, new(mockTeams))
		messaging.On("ProcessInboundWebhook", mock.Anything, "map-t", mock.MatchedBy(func(m model.InboundMessage) bool {
			return m.ExternalGroupID == "19:abc@thread.tacv2" && m.SenderName == "Lee"
		})).Return(&service.InboundResult{Outcome: service.InboundDelivered}, nil)

		rec := httptest.NewRecorder()
		h.TeamsRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/map-t", strings.NewReader(body)))

		assert.Equal(t, http.StatusOK, rec.Code)
		messaging.AssertExpectations(t)
	})

	t.Run("unmapped conversation resolves the mapping", func(t *testing.T) {
		messaging := new(mockMessaging)
		teams := new(mockTeams)
		h := NewWebhookHandler(messaging, teams)
		teams.On("LookupMapping", mock.Anything, "19:abc@thread.tacv2").Return(linkedMapping("map-t"), nil)
		messaging.On("ProcessInboundWebhook", mock.Anything, "map-t", mock.Anything).Return(&service.InboundResult{Outcome: service.InboundDelivered}, nil)

		rec := httptest.NewRecorder()
		h.TeamsRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/19%3Aabc%40thread.tacv2", strings.NewReader(body)))

		assert.Equal(t, http.StatusOK, rec.Code)
		messaging.AssertExpectations(t)
	})

	t.Run("unknown conversation is 404", func(t *testing.T) {
		teams := new(mockTeams)
		h := NewWebhookHandler(new(mockMessaging), teams)
		teams.On("LookupMapping", mock.Anything, "19:new").Return(nil, nil)

		rec := httptest.NewRecorder()
		h.TeamsRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/conversations/19:new", strings.NewReader(body)))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

type recordingLimiter struct {
	mu   sync.Mutex
	keys []string
}

func (l *recordingLimiter) Check(_ context.Context, key string, limit int) (bool, int, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return true, limit - 1, 0
}

func TestWebhookHandler_RateLimitBuckets(t *testing.T) {
	messaging := new(mockMessaging)
	teams := new(mockTeams)
	h := NewWebhookHandler(messaging, teams)
	messaging.On("ProcessInboundWebhook", mock.Anything, mock.Anything, mock.Anything).Return(&service.InboundResult{Outcome: service.InboundDelivered}, nil)
	teams.On("LookupMapping", mock.Anything, "19:abc@thread.tacv2").Return(linkedMapping("map-t"), nil)

	limiter := &recordingLimiter{}
	limit := middleware.NewRateLimitMiddleware(limiter, "webhook", 10, middleware.ByURLParam("mappingId", "conversationId"))

	r := chi.NewRouter()
	r.Route("/api/webhooks", func(r chi.Router) {
		r.Mount("/groupme", h.GroupMeRoutes(limit.Handler))
		r.Route("/teams", func(r chi.Router) {
			r.Mount("/", h.TeamsRoutes(limit.Handler))
		})
	})

	for _, path := range []string{
		"/api/webhooks/groupme/map-a?secret=s",
		"/api/webhooks/groupme/map-b?secret=s",
		"/api/webhooks/teams/map-t",
		"/api/webhooks/teams/conversations/19%3Aabc%40thread.tacv2",
	} {
		body := groupMeBody
		if strings.Contains(path, "/teams/") {
			body = `{"messageId":"a1","conversationId":"19:abc@thread.tacv2","senderName":"Lee","text":"on my way"}`
		}
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	assert.Equal(t, []string{
		"webhook:mappingId:map-a",
		"webhook:mappingId:map-b",
		"webhook:mappingId:map-t",
		"webhook:conversationId:19%3Aabc%40thread.tacv2",
	}, limiter.keys)
}
