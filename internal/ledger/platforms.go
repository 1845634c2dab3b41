// internal/ledger/platforms.go
package ledger

import (
	"context"
	"database/sql"
	"errors"

	"courier-gateway/internal/models"
)

var (
	// ErrPlatformNotFound means no row exists for (id, tenant); a missing or
	// foreign-tenant platform looks identical to the caller.
	ErrPlatformNotFound = errors.New("platform configuration not found")
	// ErrPlatformInactive means the row exists but the platform is disabled.
	ErrPlatformInactive = errors.New("platform is disabled")
)

// PlatformStore reads tenant-scoped platform configuration rows.
type PlatformStore struct {
	db *sql.DB
}

func NewPlatformStore(db *sql.DB) *PlatformStore {
	return &PlatformStore{db: db}
}

// Get returns the platform scoped to (platformID, tenantID). Inactive rows
// are reported distinctly so dispatch can classify them.
func (s *PlatformStore) Get(ctx context.Context, platformID, tenantID string) (*models.Platform, error) {
	const query = `
		SELECT id, tenant_id, type, name, credentials, active, created_at, updated_at
		FROM platforms
		WHERE id = $1 AND tenant_id = $2`

	var p models.Platform
	err := s.db.QueryRowContext(ctx, query, platformID, tenantID).Scan(
		&p.ID, &p.TenantID, &p.Type, &p.Name, &p.Credentials, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlatformNotFound
	}
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPlatformInactive
	}
	return &p, nil
}
