package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventMappingCreated     EventType = "mapping_created"
	EventMappingReactivated EventType = "mapping_reactivated"
	EventMappingDeactivated EventType = "mapping_deactivated"
	EventChannelLinked      EventType = "channel_linked"
	EventChannelUnlinked    EventType = "channel_unlinked"
	EventReferenceStored    EventType = "reference_stored"
	EventWebhookRejected    EventType = "webhook_rejected"
	EventRateLimitExceed    EventType = "rate_limit_exceeded"
	EventAuthFailure        EventType = "auth_failure"
)

type Event struct {
	Type      EventType
	Actor     string
	EventID   string
	MappingID string
	ChannelID string
	Platform  string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "bridge").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Actor != "" {
		logger = logger.With().Str("actor", event.Actor).Logger()
	}
	if event.EventID != "" {
		logger = logger.With().Str("event_id", event.EventID).Logger()
	}
	if event.MappingID != "" {
		logger = logger.With().Str("mapping_id", event.MappingID).Logger()
	}
	if event.ChannelID != "" {
		logger = logger.With().Str("channel_id", event.ChannelID).Logger()
	}
	if event.Platform != "" {
		logger = logger.With().Str("platform", event.Platform).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("bridge audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
