package model

import (
	"time"
)

// ChannelMapping binds one (event, platform) pair to an external group or
// conversation. Mappings are soft-deleted so a reconnect reuses the same
// external group.
type ChannelMapping struct {
	ID                        string     `db:"id" json:"id"`
	EventID                   *string    `db:"event_id" json:"eventId,omitempty"`
	Platform                  Platform   `db:"platform" json:"platform"`
	ExternalGroupID           string     `db:"external_group_id" json:"externalGroupId"`
	ExternalGroupName         string     `db:"external_group_name" json:"externalGroupName"`
	BotID                     *string    `db:"bot_id" json:"botId,omitempty"`
	WebhookSecret             *string    `db:"webhook_secret" json:"-"`
	ConversationReferenceJSON *string    `db:"conversation_reference_json" json:"-"`
	IsActive                  bool       `db:"is_active" json:"isActive"`
	CreatedBy                 string     `db:"created_by" json:"createdBy"`
	CreatedAt                 time.Time  `db:"created_at" json:"createdAt"`
	ModifiedBy                *string    `db:"modified_by" json:"modifiedBy,omitempty"`
	ModifiedAt                *time.Time `db:"modified_at" json:"modifiedAt,omitempty"`
}

func (m *ChannelMapping) LinkedToEvent() bool {
	return m.EventID != nil && *m.EventID != ""
}

func (m *ChannelMapping) HasConversationReference() bool {
	return m.ConversationReferenceJSON != nil && *m.ConversationReferenceJSON != ""
}

// BelongsTo reports whether the mapping is linked to eventID.
func (m *ChannelMapping) BelongsTo(eventID string) bool {
	return m.LinkedToEvent() && *m.EventID == eventID
}

// SentByOwnBot reports whether msg is an echo of this mapping's bot. Without
// a recorded bot id every bot-authored message counts.
func (m *ChannelMapping) SentByOwnBot(msg InboundMessage) bool {
	if !msg.FromBot {
		return false
	}
	return m.BotID == nil || *m.BotID == msg.SenderID
}

type CreateChannelMappingParams struct {
	ID                        string
	EventID                   *string
	Platform                  Platform
	ExternalGroupID           string
	ExternalGroupName         string
	BotID                     *string
	WebhookSecret             *string
	ConversationReferenceJSON *string
	CreatedBy                 string
}
