package repository

import (
	"context"

	"github.com/cobra-poc/messaging-bridge/internal/database"
	"github.com/cobra-poc/messaging-bridge/internal/model"
)

type ChatChannelRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatChannel, error)
	FindByEventID(ctx context.Context, eventID string) ([]model.ChatChannel, error)
	FindDefaultByEventID(ctx context.Context, eventID string) (*model.ChatChannel, error)
	FindActiveByMappingID(ctx context.Context, mappingID string) ([]model.ChatChannel, error)
	CountActiveByMappingID(ctx context.Context, mappingID string) (int, error)
	Create(ctx context.Context, params model.CreateChatChannelParams) (*model.ChatChannel, error)
	ReactivateByMappingID(ctx context.Context, mappingID string, modifiedBy string) (int64, error)
	DeactivateByMappingID(ctx context.Context, mappingID string, modifiedBy string) (int64, error)
	LinkMapping(ctx context.Context, id string, mappingID string, modifiedBy string) error
	ClearMapping(ctx context.Context, id string, modifiedBy string) error
}

type chatChannelRepo struct {
	db database.DBTX
}

func NewChatChannelRepository(db database.DBTX) ChatChannelRepository {
	return &chatChannelRepo{db: db}
}

func (r *chatChannelRepo) FindByID(ctx context.Context, id string) (*model.ChatChannel, error) {
	var ch model.ChatChannel
	err := r.db.GetContext(ctx, &ch, `SELECT * FROM chat_channels WHERE id = $1`, id)
	return HandleNotFound(&ch, err)
}

func (r *chatChannelRepo) FindByEventID(ctx context.Context, eventID string) ([]model.ChatChannel, error) {
	var channels []model.ChatChannel
	err := r.db.SelectContext(ctx, &channels, `
		SELECT * FROM chat_channels
		WHERE event_id = $1 AND is_active
		ORDER BY is_default DESC, created_at ASC
	`, eventID)
	return channels, err
}

func (r *chatChannelRepo) FindDefaultByEventID(ctx context.Context, eventID string) (*model.ChatChannel, error) {
	var ch model.ChatChannel
	err := r.db.GetContext(ctx, &ch, `
		SELECT * FROM chat_channels
		WHERE event_id = $1 AND is_default AND is_active
		ORDER BY created_at ASC
		LIMIT 1
	`, eventID)
	return HandleNotFound(&ch, err)
}

func (r *chatChannelRepo) FindActiveByMappingID(ctx context.Context, mappingID string) ([]model.ChatChannel, error) {
	var channels []model.ChatChannel
	err := r.db.SelectContext(ctx, &channels, `
		SELECT * FROM chat_channels
		WHERE external_mapping_id = $1 AND is_active
		ORDER BY created_at ASC
	`, mappingID)
	return channels, err
}

func (r *chatChannelRepo) CountActiveByMappingID(ctx context.Context, mappingID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM chat_channels WHERE external_mapping_id = $1 AND is_active
	`, mappingID)
	return count, err
}

func (r *chatChannelRepo) Create(ctx context.Context, params model.CreateChatChannelParams) (*model.ChatChannel, error) {
	var ch model.ChatChannel
	err := r.db.GetContext(ctx, &ch, `
		INSERT INTO chat_channels
			(event_id, name, is_default, external_mapping_id, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.EventID, params.Name, params.IsDefault, params.ExternalMappingID, params.CreatedBy)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *chatChannelRepo) ReactivateByMappingID(ctx context.Context, mappingID string, modifiedBy string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_channels SET
			is_active = TRUE,
			modified_by = $2,
			modified_at = NOW()
		WHERE external_mapping_id = $1 AND NOT is_active
	`, mappingID, modifiedBy)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *chatChannelRepo) DeactivateByMappingID(ctx context.Context, mappingID string, modifiedBy string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_channels SET
			is_active = FALSE,
			modified_by = $2,
			modified_at = NOW()
		WHERE external_mapping_id = $1 AND is_active
	`, mappingID, modifiedBy)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *chatChannelRepo) LinkMapping(ctx context.Context, id string, mappingID string, modifiedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chat_channels SET
			external_mapping_id = $2,
			modified_by = $3,
			modified_at = NOW()
		WHERE id = $1
	`, id, mappingID, modifiedBy)
	return err
}

func (r *chatChannelRepo) ClearMapping(ctx context.Context, id string, modifiedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chat_channels SET
			external_mapping_id = NULL,
			modified_by = $2,
			modified_at = NOW()
		WHERE id = $1
	`, id, modifiedBy)
	return err
}
