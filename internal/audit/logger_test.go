package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = original })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLog(t)

	Log(context.Background(), Event{
		Type:      EventMappingCreated,
		Actor:     "alice",
		EventID:   "evt-1",
		MappingID: "map-1",
		Platform:  "groupme",
		Details:   map[string]interface{}{"externalGroupId": "g-1", "reactivated": false},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "bridge", entry["audit"])
	assert.Equal(t, "mapping_created", entry["event_type"])
	assert.Equal(t, "alice", entry["actor"])
	assert.Equal(t, "map-1", entry["mapping_id"])
	assert.Equal(t, "g-1", entry["externalGroupId"])
	assert.Equal(t, false, entry["reactivated"])
	assert.NotContains(t, entry, "channel_id")
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLog(t)

	req := httptest.NewRequest("POST", "/api/webhooks/groupme/map-1", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.Header.Set("User-Agent", "GroupMe")

	LogFromRequest(req, Event{Type: EventWebhookRejected, MappingID: "map-1"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "203.0.113.9", entry["ip"])
	assert.Equal(t, "GroupMe", entry["user_agent"])
}
