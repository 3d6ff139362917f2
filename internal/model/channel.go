package model

import (
	"time"
)

// ChatChannel is a conversation space inside an event. A channel linked to
// a ChannelMapping is bridged in both directions.
type ChatChannel struct {
	ID                string     `db:"id" json:"id"`
	EventID           string     `db:"event_id" json:"eventId"`
	Name              string     `db:"name" json:"name"`
	IsDefault         bool       `db:"is_default" json:"isDefault"`
	IsActive          bool       `db:"is_active" json:"isActive"`
	ExternalMappingID *string    `db:"external_mapping_id" json:"externalMappingId,omitempty"`
	CreatedBy         string     `db:"created_by" json:"createdBy"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	ModifiedBy        *string    `db:"modified_by" json:"modifiedBy,omitempty"`
	ModifiedAt        *time.Time `db:"modified_at" json:"modifiedAt,omitempty"`
}

func (c *ChatChannel) IsLinked() bool {
	return c.ExternalMappingID != nil && *c.ExternalMappingID != ""
}

type CreateChatChannelParams struct {
	EventID           string
	Name              string
	IsDefault         bool
	ExternalMappingID *string
	CreatedBy         string
}

type Event struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
