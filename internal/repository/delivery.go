package repository

import (
	"context"
	"time"

	"github.com/cobra-poc/messaging-bridge/internal/database"
	"github.com/cobra-poc/messaging-bridge/internal/model"
)

type ExternalDeliveryRepository interface {
	Create(ctx context.Context, params model.CreateExternalDeliveryParams) (*model.ExternalDelivery, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errorMsg string) error
	MarkSkipped(ctx context.Context, id string, reason string) error
	// ClaimRetryable moves failed deliveries with fewer than maxAttempts
	// attempts, last updated more than minAge ago, to retrying and returns
	// them. Claims older than staleAfter are taken over. Concurrent sweeps
	// never receive the same row.
	ClaimRetryable(ctx context.Context, maxAttempts int, minAge, staleAfter time.Duration, limit int) ([]model.ExternalDelivery, error)
	// ReleaseClaim returns a claimed delivery to failed without counting an
	// attempt.
	ReleaseClaim(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, status model.DeliveryStatus) (int, error)
}

type externalDeliveryRepo struct {
	db database.DBTX
}

func NewExternalDeliveryRepository(db database.DBTX) ExternalDeliveryRepository {
	return &externalDeliveryRepo{db: db}
}

func (r *externalDeliveryRepo) Create(ctx context.Context, params model.CreateExternalDeliveryParams) (*model.ExternalDelivery, error) {
	var d model.ExternalDelivery
	err := r.db.GetContext(ctx, &d, `
		INSERT INTO external_deliveries
			(mapping_id, event_id, channel_id, message_id, sender_name, text)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.MappingID, params.EventID, params.ChannelID, params.MessageID,
		params.SenderName, params.Text)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *externalDeliveryRepo) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE external_deliveries SET
			status = 'sent',
			attempts = attempts + 1,
			last_error = NULL,
			sent_at = $2,
			updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *externalDeliveryRepo) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE external_deliveries SET
			status = 'failed',
			attempts = attempts + 1,
			last_error = $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, errorMsg)
	return err
}

func (r *externalDeliveryRepo) MarkSkipped(ctx context.Context, id string, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE external_deliveries SET
			status = 'skipped',
			last_error = $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	return err
}

func (r *externalDeliveryRepo) ClaimRetryable(ctx context.Context, maxAttempts int, minAge, staleAfter time.Duration, limit int) ([]model.ExternalDelivery, error) {
	now := time.Now()
	var deliveries []model.ExternalDelivery
	err := r.db.SelectContext(ctx, &deliveries, `
		UPDATE external_deliveries SET
			status = 'retrying',
			updated_at = NOW()
		WHERE id IN (
			SELECT id FROM external_deliveries
			WHERE attempts < $1
			  AND ((status = 'failed' AND updated_at < $2)
			    OR (status = 'retrying' AND updated_at < $3))
			ORDER BY updated_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, maxAttempts, now.Add(-minAge), now.Add(-staleAfter), limit)
	return deliveries, err
}

func (r *externalDeliveryRepo) ReleaseClaim(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE external_deliveries SET
			status = 'failed',
			updated_at = NOW()
		WHERE id = $1 AND status = 'retrying'
	`, id)
	return err
}

func (r *externalDeliveryRepo) CountByStatus(ctx context.Context, status model.DeliveryStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM external_deliveries WHERE status = $1
	`, status)
	return count, err
}
