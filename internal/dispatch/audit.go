// internal/dispatch/audit.go
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"courier-gateway/internal/common/logger"
	"courier-gateway/internal/models"
)

const auditIndex = "delivery-attempts"

// ElasticAuditSink mirrors terminal delivery attempts into Elasticsearch so
// operators can search them by tenant, platform or addressee. Indexing is
// best effort: the attempt ledger in Postgres stays the source of truth and
// a sink failure never affects dispatch.
type ElasticAuditSink struct {
	client *elasticsearch.Client
	log    logger.Logger
}

func NewElasticAuditSink(client *elasticsearch.Client, log logger.Logger) *ElasticAuditSink {
	return &ElasticAuditSink{
		client: client,
		log:    log.WithFields(map[string]interface{}{"component": "audit-sink"}),
	}
}

// auditDocument is the indexed shape. Addressee ids are masked; the full id
// lives only in Postgres.
type auditDocument struct {
	AttemptID         string    `json:"attempt_id"`
	JobID             string    `json:"job_id"`
	TenantID          string    `json:"tenant_id"`
	PlatformID        string    `json:"platform_id"`
	PlatformType      string    `json:"platform_type"`
	AddresseeType     string    `json:"addressee_type"`
	AddresseeMasked   string    `json:"addressee_masked"`
	Status            string    `json:"status"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	IndexedAt         time.Time `json:"indexed_at"`
}

// Index writes one terminal attempt. Errors are logged and dropped.
func (s *ElasticAuditSink) Index(ctx context.Context, attempt *models.DeliveryAttempt) {
	doc := auditDocument{
		AttemptID:         attempt.ID,
		JobID:             attempt.JobID,
		TenantID:          attempt.TenantID,
		PlatformID:        attempt.PlatformID,
		PlatformType:      attempt.PlatformType,
		AddresseeType:     attempt.AddresseeType,
		AddresseeMasked:   maskIdentifier(attempt.AddresseeID),
		Status:            attempt.Status,
		ProviderMessageID: attempt.ProviderMessageID,
		ErrorMessage:      attempt.ErrorMessage,
		IndexedAt:         time.Now().UTC(),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		s.log.Error("audit document marshal failed", map[string]interface{}{"error": err})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.client.Index(
		auditIndex,
		bytes.NewReader(body),
		s.client.Index.WithDocumentID(attempt.ID),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		s.log.Warn("audit index request failed", map[string]interface{}{
			"attemptId": attempt.ID,
			"error":     err,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		s.log.Warn("audit index rejected", map[string]interface{}{
			"attemptId": attempt.ID,
			"status":    res.Status(),
		})
	}
}
