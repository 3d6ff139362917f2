package cobraapi

import (
	"time"

	"github.com/cobra-poc/messaging-bridge/internal/model"
)

// WebhookPayload is a Teams message normalized by the bot before it is
// forwarded to the server.
type WebhookPayload struct {
	MessageID             string                       `json:"messageId"`
	ConversationID        string                       `json:"conversationId"`
	ConversationName      string                       `json:"conversationName,omitempty"`
	TenantID              string                       `json:"tenantId,omitempty"`
	SenderID              string                       `json:"senderId"`
	SenderName            string                       `json:"senderName"`
	Text                  string                       `json:"text"`
	AttachmentURL         string                       `json:"attachmentUrl,omitempty"`
	Timestamp             time.Time                    `json:"timestamp"`
	ActivityType          string                       `json:"activityType"`
	IsFromBot             bool                         `json:"isFromBot"`
	ConversationReference *model.ConversationReference `json:"conversationReference,omitempty"`
}

func (p *WebhookPayload) ToInbound() model.InboundMessage {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return model.InboundMessage{
		ExternalMessageID: p.MessageID,
		SenderID:          p.SenderID,
		SenderName:        p.SenderName,
		Text:              p.Text,
		AttachmentURL:     p.AttachmentURL,
		Timestamp:         ts,
		ExternalGroupID:   p.ConversationID,
		Kind:              p.ActivityType,
		FromBot:           p.IsFromBot,
	}
}

// ReferenceEnvelope is the body of the conversation-reference endpoints.
type ReferenceEnvelope struct {
	ConversationID        string                       `json:"conversationId,omitempty"`
	ConversationName      string                       `json:"conversationName,omitempty"`
	ConversationReference *model.ConversationReference `json:"conversationReference"`
}

type StoreReferenceResponse struct {
	MappingID string `json:"mappingId"`
	Created   bool   `json:"created"`
}

type MappingLookupResponse struct {
	MappingID string `json:"mappingId"`
}

// SendRequest is the body of the bot's internal outbound send endpoint.
type SendRequest struct {
	ConversationID        string                       `json:"conversationId"`
	ConversationReference *model.ConversationReference `json:"conversationReference,omitempty"`
	Text                  string                       `json:"text"`
	SenderName            string                       `json:"senderName"`
	EventName             string                       `json:"eventName,omitempty"`
	ChannelName           string                       `json:"channelName,omitempty"`
	MultiChannel          bool                         `json:"multiChannel"`
}

type SendResponse struct {
	ActivityID string `json:"activityId,omitempty"`
}
