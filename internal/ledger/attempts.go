// internal/ledger/attempts.go
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"courier-gateway/internal/models"
)

// AttemptStore persists per-target delivery attempts. All updates address rows
// by primary key; the bulk variant exists only for crash recovery.
type AttemptStore struct {
	db *sql.DB
}

func NewAttemptStore(db *sql.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

// Create inserts a pending attempt before the adapter is invoked, so a crash
// mid-send still leaves an auditable row.
func (s *AttemptStore) Create(ctx context.Context, a *models.DeliveryAttempt) error {
	const query = `
		INSERT INTO delivery_attempts
			(id, job_id, tenant_id, platform_id, platform_type, addressee_type, addressee_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.JobID, a.TenantID, a.PlatformID, a.PlatformType,
		a.AddresseeType, a.AddresseeID, a.Status, now,
	)
	return err
}

// MarkSent transitions an attempt to sent and records the provider message id.
func (s *AttemptStore) MarkSent(ctx context.Context, attemptID, providerMessageID string) error {
	const query = `
		UPDATE delivery_attempts
		SET status = $2, provider_message_id = $3, updated_at = $4
		WHERE id = $1 AND status = $5`

	_, err := s.db.ExecContext(ctx, query,
		attemptID, models.AttemptStatusSent, providerMessageID,
		time.Now().UTC(), models.AttemptStatusPending,
	)
	return err
}

// MarkFailed transitions an attempt to failed with the error message.
func (s *AttemptStore) MarkFailed(ctx context.Context, attemptID, errorMessage string) error {
	const query = `
		UPDATE delivery_attempts
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1 AND status = $5`

	_, err := s.db.ExecContext(ctx, query,
		attemptID, models.AttemptStatusFailed, errorMessage,
		time.Now().UTC(), models.AttemptStatusPending,
	)
	return err
}

// UpdateByJobTarget is the crash-recovery fallback: it settles pending rows
// matched by (jobID, platformID, addresseeID) when the attempt id was lost.
func (s *AttemptStore) UpdateByJobTarget(ctx context.Context, jobID, platformID, addresseeID, status, errorMessage string) (int64, error) {
	const query = `
		UPDATE delivery_attempts
		SET status = $4, error_message = $5, updated_at = $6
		WHERE job_id = $1 AND platform_id = $2 AND addressee_id = $3 AND status = $7`

	res, err := s.db.ExecContext(ctx, query,
		jobID, platformID, addresseeID, status, errorMessage,
		time.Now().UTC(), models.AttemptStatusPending,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindSent reports whether the target already has a sent attempt for this
// job. Used on job-level retries to avoid double delivery.
func (s *AttemptStore) FindSent(ctx context.Context, jobID, platformID, addresseeType, addresseeID string) (*models.DeliveryAttempt, error) {
	const query = `
		SELECT id, job_id, tenant_id, platform_id, platform_type, addressee_type, addressee_id,
			status, COALESCE(provider_message_id, ''), COALESCE(error_message, ''), created_at, updated_at
		FROM delivery_attempts
		WHERE job_id = $1 AND platform_id = $2 AND addressee_type = $3 AND addressee_id = $4 AND status = $5
		LIMIT 1`

	var a models.DeliveryAttempt
	err := s.db.QueryRowContext(ctx, query,
		jobID, platformID, addresseeType, addresseeID, models.AttemptStatusSent,
	).Scan(
		&a.ID, &a.JobID, &a.TenantID, &a.PlatformID, &a.PlatformType,
		&a.AddresseeType, &a.AddresseeID, &a.Status,
		&a.ProviderMessageID, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
