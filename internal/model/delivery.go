package model

import (
	"time"
)

// ExternalDelivery records one outbound send of a chat message to one
// mapping. Failed rows are picked up again by the redelivery job.
type ExternalDelivery struct {
	ID         string         `db:"id" json:"id"`
	MappingID  string         `db:"mapping_id" json:"mappingId"`
	EventID    string         `db:"event_id" json:"eventId"`
	ChannelID  *string        `db:"channel_id" json:"channelId,omitempty"`
	MessageID  *string        `db:"message_id" json:"messageId,omitempty"`
	SenderName string         `db:"sender_name" json:"senderName"`
	Text       string         `db:"text" json:"text"`
	Status     DeliveryStatus `db:"status" json:"status"`
	Attempts   int            `db:"attempts" json:"attempts"`
	LastError  *string        `db:"last_error" json:"lastError,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
	SentAt     *time.Time     `db:"sent_at" json:"sentAt,omitempty"`
}

type CreateExternalDeliveryParams struct {
	MappingID  string
	EventID    string
	ChannelID  *string
	MessageID  *string
	SenderName string
	Text       string
}
