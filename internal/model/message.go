package model

import (
	"encoding/json"
	"time"
)

type ChatMessage struct {
	ID                string    `db:"id" json:"id"`
	ChannelID         string    `db:"channel_id" json:"channelId"`
	EventID           string    `db:"event_id" json:"eventId"`
	SenderName        string    `db:"sender_name" json:"senderName"`
	Text              string    `db:"text" json:"text"`
	AttachmentURL     *string   `db:"attachment_url" json:"attachmentUrl,omitempty"`
	Source            string    `db:"source" json:"source"`
	ExternalMessageID *string   `db:"external_message_id" json:"externalMessageId,omitempty"`
	ExternalSenderID  *string   `db:"external_sender_id" json:"externalSenderId,omitempty"`
	SentAt            time.Time `db:"sent_at" json:"sentAt"`
	CreatedBy         string    `db:"created_by" json:"createdBy"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

// IsExternal reports whether the message arrived through a bridge.
func (m *ChatMessage) IsExternal() bool {
	return m.Source != MessageSourceLocal
}

// ToSSEEventData returns JSON data for SSE message events
func (m *ChatMessage) ToSSEEventData() json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"id":            m.ID,
		"channelId":     m.ChannelID,
		"eventId":       m.EventID,
		"senderName":    m.SenderName,
		"text":          m.Text,
		"attachmentUrl": m.AttachmentURL,
		"source":        m.Source,
		"sentAt":        m.SentAt,
	})
	return data
}

type CreateChatMessageParams struct {
	ChannelID         string
	EventID           string
	SenderName        string
	Text              string
	AttachmentURL     *string
	Source            string
	ExternalMessageID *string
	ExternalSenderID  *string
	SentAt            time.Time
	CreatedBy         string
}

// InboundMessage is a platform webhook payload normalized by the handler
// layer before it reaches the coordinator.
type InboundMessage struct {
	ExternalMessageID string    `json:"externalMessageId"`
	SenderID          string    `json:"senderId"`
	SenderName        string    `json:"senderName"`
	Text              string    `json:"text"`
	AttachmentURL     string    `json:"attachmentUrl,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	ExternalGroupID   string    `json:"externalGroupId"`
	Kind              string    `json:"kind"`
	FromBot           bool      `json:"fromBot"`
	WebhookSecret     string    `json:"-"`
}
