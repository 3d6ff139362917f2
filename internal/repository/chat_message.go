package repository

import (
	"context"

	"github.com/cobra-poc/messaging-bridge/internal/database"
	"github.com/cobra-poc/messaging-bridge/internal/model"
)

type ChatMessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatMessage, error)
	FindByChannelID(ctx context.Context, channelID string, limit, offset int) ([]model.ChatMessage, error)
	CountByChannelID(ctx context.Context, channelID string) (int, error)
	// Create inserts the message unless the channel already holds one with
	// the same external message id, in which case it returns nil, nil.
	Create(ctx context.Context, params model.CreateChatMessageParams) (*model.ChatMessage, error)
}

type chatMessageRepo struct {
	db database.DBTX
}

func NewChatMessageRepository(db database.DBTX) ChatMessageRepository {
	return &chatMessageRepo{db: db}
}

func (r *chatMessageRepo) FindByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM chat_messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err)
}

func (r *chatMessageRepo) FindByChannelID(ctx context.Context, channelID string, limit, offset int) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM chat_messages
		WHERE channel_id = $1
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3
	`, channelID, limit, offset)
	return msgs, err
}

func (r *chatMessageRepo) CountByChannelID(ctx context.Context, channelID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM chat_messages WHERE channel_id = $1
	`, channelID)
	return count, err
}

func (r *chatMessageRepo) Create(ctx context.Context, params model.CreateChatMessageParams) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO chat_messages
			(channel_id, event_id, sender_name, text, attachment_url, source,
			 external_message_id, external_sender_id, sent_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (channel_id, external_message_id) WHERE external_message_id IS NOT NULL
		DO NOTHING
		RETURNING *
	`, params.ChannelID, params.EventID, params.SenderName, params.Text,
		params.AttachmentURL, params.Source, params.ExternalMessageID,
		params.ExternalSenderID, params.SentAt, params.CreatedBy)
	return HandleNotFound(&msg, err)
}
