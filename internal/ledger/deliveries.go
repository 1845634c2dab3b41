// internal/ledger/deliveries.go
package ledger

import (
	"context"
	"database/sql"
	"time"

	"courier-gateway/internal/models"
)

// DeliveryStore persists webhook delivery records.
type DeliveryStore struct {
	db *sql.DB
}

func NewDeliveryStore(db *sql.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

// Create inserts a pending delivery row before the first HTTP attempt.
func (s *DeliveryStore) Create(ctx context.Context, d *models.WebhookDelivery) error {
	const query = `
		INSERT INTO webhook_deliveries
			(id, webhook_id, event, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.WebhookID, d.Event, d.Payload, d.Status, d.Attempts, now,
	)
	return err
}

// MarkSuccess settles a delivery with the true attempt count and a
// size-bounded response snapshot.
func (s *DeliveryStore) MarkSuccess(ctx context.Context, deliveryID string, attempts int, responseBody string) error {
	const query = `
		UPDATE webhook_deliveries
		SET status = $2, attempts = $3, response_body = $4, updated_at = $5
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query,
		deliveryID, models.DeliveryStatusSuccess, attempts, responseBody, time.Now().UTC(),
	)
	return err
}

// MarkFailed settles a delivery as failed with the true attempt count.
func (s *DeliveryStore) MarkFailed(ctx context.Context, deliveryID string, attempts int, errorMessage string) error {
	const query = `
		UPDATE webhook_deliveries
		SET status = $2, attempts = $3, error_message = $4, updated_at = $5
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query,
		deliveryID, models.DeliveryStatusFailed, attempts, errorMessage, time.Now().UTC(),
	)
	return err
}

// Stats aggregates delivery outcomes for one webhook.
func (s *DeliveryStore) Stats(ctx context.Context, webhookID string) (*models.WebhookStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM webhook_deliveries
		WHERE webhook_id = $1`

	var stats models.WebhookStats
	err := s.db.QueryRowContext(ctx, query, webhookID).Scan(
		&stats.Total, &stats.Successful, &stats.Failed, &stats.Pending,
	)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return &stats, nil
}

// Cleanup purges deliveries older than the retention window. Runs off the hot
// path on a schedule.
func (s *DeliveryStore) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = 30
	}
	const query = `DELETE FROM webhook_deliveries WHERE created_at < $1`

	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
