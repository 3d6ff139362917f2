package teamsbot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cobra-poc/messaging-bridge/internal/cobraapi"
	"github.com/cobra-poc/messaging-bridge/internal/convref"
	"github.com/cobra-poc/messaging-bridge/internal/retry"
)

const internalKey = "internal-secret"

func newTestServer(store convref.Store, api BridgeClient, limit int) *Server {
	bot := NewBot(store, api, "")
	sender := NewProactiveSender(store, api, nil, instantPolicy(), "")
	return NewServer(bot, sender, store, ServerOptions{InternalAPIKey: internalKey, ActivityRateLimit: limit})
}

func do(t *testing.T, h http.Handler, method, path, body string, key string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if key != "" {
		req.Header.Set("X-Api-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Messages(t *testing.T) {
	t.Run("accepts an activity and refreshes the reference", func(t *testing.T) {
		store := convref.NewMemoryStore()
		api := new(mockBridge)
		api.On("StoreConversationReference", mock.Anything, mock.Anything).Return(retry.Result[bool]{Success: true})
		srv := newTestServer(store, api, 0)

		body := `{"type":"conversationUpdate","id":"a1","serviceUrl":"https://smba/","channelId":"msteams",
			"from":{"id":"29:u"},"recipient":{"id":"28:bot"},"conversation":{"id":"19:ops"}}`
		rec := do(t, srv.Routes(), http.MethodPost, "/api/messages", body, "")
		srv.bot.Wait()

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("rejects activities without a conversation", func(t *testing.T) {
		srv := newTestServer(convref.NewMemoryStore(), new(mockBridge), 0)

		rec := do(t, srv.Routes(), http.MethodPost, "/api/messages", `{"type":"message"}`, "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rate limited per client", func(t *testing.T) {
		srv := newTestServer(convref.NewMemoryStore(), new(mockBridge), 1)
		routes := srv.Routes()

		first := do(t, routes, http.MethodPost, "/api/messages", `{}`, "")
		second := do(t, routes, http.MethodPost, "/api/messages", `{}`, "")

		assert.Equal(t, http.StatusBadRequest, first.Code)
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
	})
}

func TestServer_Internal(t *testing.T) {
	ctx := context.Background()

	t.Run("requires the api key", func(t *testing.T) {
		srv := newTestServer(convref.NewMemoryStore(), new(mockBridge), 0)

		assert.Equal(t, http.StatusUnauthorized, do(t, srv.Routes(), http.MethodGet, "/api/internal/conversations", "", "").Code)
		assert.Equal(t, http.StatusUnauthorized, do(t, srv.Routes(), http.MethodGet, "/api/internal/conversations", "", "wrong").Code)
	})

	t.Run("lists and removes conversations", func(t *testing.T) {
		store := convref.NewMemoryStore()
		require.NoError(t, store.AddOrUpdate(ctx, "19:ops@thread.tacv2", userRef()))
		srv := newTestServer(store, new(mockBridge), 0)
		routes := srv.Routes()

		rec := do(t, routes, http.MethodGet, "/api/internal/conversations", "", internalKey)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":1`)

		rec = do(t, routes, http.MethodDelete, "/api/internal/conversations/19%3Aops%40thread.tacv2", "", internalKey)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("send without a reference is 404", func(t *testing.T) {
		api := new(mockBridge)
		api.On("GetConversationReference", mock.Anything, "19:none").Return(retry.Result[*cobraapi.ReferenceEnvelope]{Success: true})
		srv := newTestServer(convref.NewMemoryStore(), api, 0)

		rec := do(t, srv.Routes(), http.MethodPost, "/api/internal/send", `{"conversationId":"19:none","text":"hi","senderName":"Dana"}`, internalKey)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("connector rejection is not reported as a gateway error", func(t *testing.T) {
		c := newConnector(t, 10)
		c.failStatus = http.StatusForbidden
		store := convref.NewMemoryStore()
		require.NoError(t, store.AddOrUpdate(context.Background(), "19:ops@thread.tacv2", c.reference()))
		bot := NewBot(store, new(mockBridge), "")
		sender := NewProactiveSender(store, nil, c.server.Client(), instantPolicy(), "")
		srv := NewServer(bot, sender, store, ServerOptions{InternalAPIKey: internalKey})

		rec := do(t, srv.Routes(), http.MethodPost, "/api/internal/send", `{"conversationId":"19:ops@thread.tacv2","text":"hi"}`, internalKey)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.False(t, retry.IsTransientStatus(rec.Code))
		assert.Equal(t, int32(1), c.calls.Load())
	})

	t.Run("health is public", func(t *testing.T) {
		srv := newTestServer(convref.NewMemoryStore(), new(mockBridge), 0)

		rec := do(t, srv.Routes(), http.MethodGet, "/health", "", "")

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
