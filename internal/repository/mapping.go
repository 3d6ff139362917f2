package repository

import (
	"context"

	"github.com/cobra-poc/messaging-bridge/internal/database"
	"github.com/cobra-poc/messaging-bridge/internal/model"
)

type ChannelMappingRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChannelMapping, error)
	FindActiveByEventAndPlatform(ctx context.Context, eventID string, platform model.Platform) (*model.ChannelMapping, error)
	FindInactiveByEventAndPlatform(ctx context.Context, eventID string, platform model.Platform) (*model.ChannelMapping, error)
	FindActiveByEventID(ctx context.Context, eventID string) ([]model.ChannelMapping, error)
	// FindActiveByExternalGroupID prefers a mapping linked to an event over
	// an unlinked one.
	FindActiveByExternalGroupID(ctx context.Context, platform model.Platform, externalGroupID string) (*model.ChannelMapping, error)
	FindInactiveByExternalGroupID(ctx context.Context, platform model.Platform, externalGroupID string) (*model.ChannelMapping, error)
	Create(ctx context.Context, params model.CreateChannelMappingParams) (*model.ChannelMapping, error)
	Reactivate(ctx context.Context, id string, modifiedBy string) (*model.ChannelMapping, error)
	Deactivate(ctx context.Context, id string, modifiedBy string) error
	SetEvent(ctx context.Context, id string, eventID string, modifiedBy string) error
	UpdateConversationReference(ctx context.Context, id string, referenceJSON string, modifiedBy string) error
}

type channelMappingRepo struct {
	db database.DBTX
}

func NewChannelMappingRepository(db database.DBTX) ChannelMappingRepository {
	return &channelMappingRepo{db: db}
}

func (r *channelMappingRepo) FindByID(ctx context.Context, id string) (*model.ChannelMapping, error) {
	var m model.ChannelMapping
	err := r.db.GetContext(ctx, &m, `SELECT * FROM channel_mappings WHERE id = $1`, id)
	return HandleNotFound(&m, err)
}

func (r *channelMappingRepo) FindActiveByEventAndPlatform(ctx context.Context, eventID string, platform model.Platform) (*model.ChannelMapping, error) {
	var m model.ChannelMapping
	err := r.db.GetContext(ctx, &m, `
		SELECT * FROM channel_mappings
		WHERE event_id = $1 AND platform = $2 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`, eventID, platform)
	return HandleNotFound(&m, err)
}

func (r *channelMappingRepo) FindInactiveByEventAndPlatform(ctx context.Context, eventID string, platform model.Platform) (*model.ChannelMapping, error) {
	var m model.ChannelMapping
	err := r.db.GetContext(ctx, &m, `
		SELECT * FROM channel_mappings
		WHERE event_id = $1 AND platform = $2 AND NOT is_active
		ORDER BY COALESCE(modified_at, created_at) DESC
		LIMIT 1
	`, eventID, platform)
	return HandleNotFound(&m, err)
}

func (r *channelMappingRepo) FindActiveByEventID(ctx context.Context, eventID string) ([]model.ChannelMapping, error) {
	var mappings []model.ChannelMapping
	err := r.db.SelectContext(ctx, &mappings, `
		SELECT * FROM channel_mappings
		WHERE event_id = $1 AND is_active
		ORDER BY created_at ASC
	`, eventID)
	return mappings, err
}

func (r *channelMappingRepo) FindActiveByExternalGroupID(ctx context.Context, platform model.Platform, externalGroupID string) (*model.ChannelMapping, error) {
	var m model.ChannelMapping
	err := r.db.GetContext(ctx, &m, `
		SELECT * FROM channel_mappings
		WHERE platform = $1 AND external_group_id = $2 AND is_active
		ORDER BY (event_id IS NOT NULL) DESC, created_at DESC
		LIMIT 1
	`, platform, externalGroupID)
	return HandleNotFound(&m, err)
}

func (r *channelMappingRepo) FindInactiveByExternalGroupID(ctx context.Context, platform model.Platform, externalGroupID string) (*model.ChannelMapping, error) {
	var m model.ChannelMapping
	err := r.db.GetContext(ctx, &m, `
		SELECT * FROM channel_mappings
		WHERE platform = $1 AND external_group_id = $2 AND NOT is_active
		ORDER BY COALESCE(modified_at, created_at) DESC
		LIMIT 1
	`, platform, externalGroupID)
	return HandleNotFound(&m, err)
}

func (r *channelMappingRepo) Create(ctx context.Context, params model.CreateChannelMappingParams) (*model.ChannelMapping, error) {
	var m model.ChannelMapping
	err := r.db.GetContext(ctx, &m, `
		INSERT INTO channel_mappings
			(id, event_id, platform, external_group_id, external_group_name,
			 bot_id, webhook_secret, conversation_reference_json, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING *
	`, params.ID, params.EventID, params.Platform, params.ExternalGroupID,
		params.ExternalGroupName, params.BotID, params.WebhookSecret,
		params.ConversationReferenceJSON, params.CreatedBy)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *channelMappingRepo) Reactivate(ctx context.Context, id string, modifiedBy string) (*model.ChannelMapping, error) {
	var m model.ChannelMapping
	err := r.db.GetContext(ctx, &m, `
		UPDATE channel_mappings SET
			is_active = TRUE,
			modified_by = $2,
			modified_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, modifiedBy)
	return HandleNotFound(&m, err)
}

func (r *channelMappingRepo) Deactivate(ctx context.Context, id string, modifiedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE channel_mappings SET
			is_active = FALSE,
			modified_by = $2,
			modified_at = NOW()
		WHERE id = $1
	`, id, modifiedBy)
	return err
}

func (r *channelMappingRepo) SetEvent(ctx context.Context, id string, eventID string, modifiedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE channel_mappings SET
			event_id = $2,
			modified_by = $3,
			modified_at = NOW()
		WHERE id = $1
	`, id, eventID, modifiedBy)
	return err
}

func (r *channelMappingRepo) UpdateConversationReference(ctx context.Context, id string, referenceJSON string, modifiedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE channel_mappings SET
			conversation_reference_json = $2,
			modified_by = $3,
			modified_at = NOW()
		WHERE id = $1
	`, id, referenceJSON, modifiedBy)
	return err
}
