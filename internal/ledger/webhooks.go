// internal/ledger/webhooks.go
package ledger

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"courier-gateway/internal/models"
)

// WebhookStore reads webhook subscriptions owned by the CRUD surface.
type WebhookStore struct {
	db *sql.DB
}

func NewWebhookStore(db *sql.DB) *WebhookStore {
	return &WebhookStore{db: db}
}

// ListActive returns the tenant's active webhooks subscribed to event.
func (s *WebhookStore) ListActive(ctx context.Context, tenantID, event string) ([]models.Webhook, error) {
	const query = `
		SELECT id, tenant_id, url, secret, events, active, created_at, updated_at
		FROM webhooks
		WHERE tenant_id = $1 AND active = TRUE AND $2 = ANY(events)
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, tenantID, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []models.Webhook
	for rows.Next() {
		var w models.Webhook
		if err := rows.Scan(
			&w.ID, &w.TenantID, &w.URL, &w.Secret, pq.Array(&w.Events),
			&w.Active, &w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}
