// internal/dispatch/processor.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	stderrors "courier-gateway/internal/common/errors"
	"courier-gateway/internal/common/logger"
	"courier-gateway/internal/common/metrics"
	"courier-gateway/internal/ledger"
	"courier-gateway/internal/models"
	"courier-gateway/internal/platforms"
)

// PlatformSource resolves tenant-scoped platform configuration.
type PlatformSource interface {
	Get(ctx context.Context, platformID, tenantID string) (*models.Platform, error)
}

// AttemptLedger persists per-target delivery attempts.
type AttemptLedger interface {
	Create(ctx context.Context, a *models.DeliveryAttempt) error
	MarkSent(ctx context.Context, attemptID, providerMessageID string) error
	MarkFailed(ctx context.Context, attemptID, errorMessage string) error
	FindSent(ctx context.Context, jobID, platformID, addresseeType, addresseeID string) (*models.DeliveryAttempt, error)
}

// Decryptor opens stored credential blobs.
type Decryptor interface {
	Decrypt(packed string) (string, error)
}

// AdapterRegistry hands out cached platform adapters.
type AdapterRegistry interface {
	GetOrCreate(tenantID, platformID, platformType string, creds platforms.Credentials) (platforms.Adapter, error)
}

// EventNotifier receives terminal per-target outcomes. Implementations must
// not block.
type EventNotifier interface {
	Notify(tenantID, event string, data interface{})
}

// AuditSink receives terminal attempts for operator search. Optional.
type AuditSink interface {
	Index(ctx context.Context, attempt *models.DeliveryAttempt)
}

// TargetResult is the outcome for one deduplicated target.
type TargetResult struct {
	Target            models.Target  `json:"target"`
	AttemptID         string         `json:"attemptId,omitempty"`
	Status            string         `json:"status"`
	ProviderMessageID string         `json:"providerMessageId,omitempty"`
	Error             string         `json:"error,omitempty"`
	Classification    string         `json:"classification,omitempty"`
	Skipped           bool           `json:"skipped,omitempty"` // already sent on a prior job attempt
}

// Result aggregates one job execution. Success means zero failures; a
// partially failed job is never reported as fully successful.
type Result struct {
	Success           bool           `json:"success"`
	TotalTargets      int            `json:"totalTargets"`
	UniqueTargets     int            `json:"uniqueTargets"`
	SuccessCount      int            `json:"successCount"`
	FailureCount      int            `json:"failureCount"`
	DuplicatesRemoved int            `json:"duplicatesRemoved"`
	Results           []TargetResult `json:"results"`
	Errors            []string       `json:"errors"`
}

// Processor expands one SendJob into per-target delivery attempts. Targets
// are processed strictly sequentially within a job: this bounds per-job load
// on a single downstream platform and keeps ordering deterministic.
type Processor struct {
	platforms PlatformSource
	attempts  AttemptLedger
	decryptor Decryptor
	registry  AdapterRegistry
	notifier  EventNotifier
	audit     AuditSink // may be nil
	log       logger.Logger

	// Progress, when set, receives per-target completion percentage.
	Progress func(jobID string, pct int)
}

func NewProcessor(
	platformSource PlatformSource,
	attempts AttemptLedger,
	decryptor Decryptor,
	registry AdapterRegistry,
	notifier EventNotifier,
	log logger.Logger,
) *Processor {
	return &Processor{
		platforms: platformSource,
		attempts:  attempts,
		decryptor: decryptor,
		registry:  registry,
		notifier:  notifier,
		log:       log.WithFields(map[string]interface{}{"component": "dispatch"}),
	}
}

// WithAuditSink attaches an optional audit sink for terminal attempts.
func (p *Processor) WithAuditSink(sink AuditSink) *Processor {
	p.audit = sink
	return p
}

// targetKey is the structural dedup key. Field comparison avoids the
// delimiter collisions of string concatenation.
type targetKey struct {
	platformID    string
	addresseeType string
	addresseeID   string
}

func keyFor(t models.Target) targetKey {
	return targetKey{
		platformID:    strings.TrimSpace(t.PlatformID),
		addresseeType: strings.TrimSpace(t.AddresseeType),
		addresseeID:   strings.TrimSpace(t.AddresseeID),
	}
}

// Process runs one SendJob to completion. Per-target failures are captured in
// the result and never returned as an error; only infrastructure failures
// that make the whole job unprocessable escape to the queue.
func (p *Processor) Process(ctx context.Context, job *models.SendJob) (*Result, error) {
	start := time.Now()
	log := p.log.WithFields(map[string]interface{}{
		"jobId":    job.ID,
		"tenantId": job.TenantID,
	})

	unique, duplicates := dedupeTargets(job.Targets)
	result := &Result{
		TotalTargets:      len(job.Targets),
		UniqueTargets:     len(unique),
		DuplicatesRemoved: duplicates,
		Results:           make([]TargetResult, 0, len(unique)),
	}
	if duplicates > 0 {
		log.Debug("duplicate targets removed", map[string]interface{}{"count": duplicates})
	}

	for i, target := range unique {
		tr := p.dispatchTarget(ctx, job, target)
		result.Results = append(result.Results, tr)

		if tr.Status == models.AttemptStatusSent {
			result.SuccessCount++
		} else {
			result.FailureCount++
			result.Errors = append(result.Errors, fmt.Sprintf(
				"%s/%s: %s", target.PlatformID, maskIdentifier(target.AddresseeID), tr.Error,
			))
		}

		if p.Progress != nil {
			p.Progress(job.ID, (i+1)*100/len(unique))
		}
	}

	result.Success = result.FailureCount == 0

	outcome := "complete"
	if !result.Success {
		outcome = "partial"
	}
	metrics.DispatchJobsProcessed.WithLabelValues(outcome).Inc()
	metrics.DispatchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	log.Info("job dispatched", map[string]interface{}{
		"uniqueTargets":     result.UniqueTargets,
		"successCount":      result.SuccessCount,
		"failureCount":      result.FailureCount,
		"duplicatesRemoved": result.DuplicatesRemoved,
	})
	return result, nil
}

// dedupeTargets keeps the first occurrence of each structural key, preserving
// order.
func dedupeTargets(targets []models.Target) ([]models.Target, int) {
	seen := make(map[targetKey]bool, len(targets))
	unique := make([]models.Target, 0, len(targets))
	for _, t := range targets {
		k := keyFor(t)
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, t)
	}
	return unique, len(targets) - len(unique)
}

// dispatchTarget runs one target to a terminal state. Panics and unexpected
// errors are contained here so one target can never abort its siblings.
func (p *Processor) dispatchTarget(ctx context.Context, job *models.SendJob, target models.Target) (tr TargetResult) {
	tr = TargetResult{Target: target}
	log := p.log.WithFields(map[string]interface{}{
		"jobId":      job.ID,
		"platformId": target.PlatformID,
		"addressee":  maskIdentifier(target.AddresseeID),
	})

	defer func() {
		if r := recover(); r != nil {
			tr.Status = models.AttemptStatusFailed
			tr.Error = fmt.Sprintf("unexpected error: %v", r)
			tr.Classification = string(stderrors.Transient)
			log.Error("target dispatch panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()

	// The whole handler re-runs on a job-level retry; targets that already
	// made it out must not be delivered twice.
	if prior, err := p.attempts.FindSent(ctx, job.ID, target.PlatformID, target.AddresseeType, target.AddresseeID); err == nil && prior != nil {
		tr.Status = models.AttemptStatusSent
		tr.AttemptID = prior.ID
		tr.ProviderMessageID = prior.ProviderMessageID
		tr.Skipped = true
		log.Debug("target already sent on prior attempt, skipping", nil)
		return tr
	}

	platform, sendErr := p.resolvePlatform(ctx, job.TenantID, target.PlatformID)
	var adapter platforms.Adapter
	if sendErr == nil {
		adapter, sendErr = p.resolveAdapter(job.TenantID, platform)
	}

	platformType := ""
	if platform != nil {
		platformType = platform.Type
	}

	attempt := &models.DeliveryAttempt{
		ID:            uuid.New().String(),
		JobID:         job.ID,
		TenantID:      job.TenantID,
		PlatformID:    target.PlatformID,
		PlatformType:  platformType,
		AddresseeType: strings.TrimSpace(target.AddresseeType),
		AddresseeID:   strings.TrimSpace(target.AddresseeID),
		Status:        models.AttemptStatusPending,
	}
	// Pending row goes in before the send so a crash mid-send stays auditable.
	if err := p.attempts.Create(ctx, attempt); err != nil {
		insertErr := stderrors.NewDatabaseInsertFailedError(err)
		tr.Status = models.AttemptStatusFailed
		tr.Error = insertErr.Error()
		tr.Classification = string(stderrors.Classify(insertErr))
		log.Error("attempt create failed", map[string]interface{}{"error": err})
		return tr
	}
	tr.AttemptID = attempt.ID

	var providerMessageID string
	if sendErr == nil {
		envelope := models.Envelope{
			TenantID:      job.TenantID,
			PlatformID:    target.PlatformID,
			AddresseeType: attempt.AddresseeType,
			AddresseeID:   attempt.AddresseeID,
			JobID:         job.ID,
		}
		providerMessageID, sendErr = adapter.SendMessage(ctx, envelope, job.Content)
		if sendErr != nil && errors.Is(sendErr, context.DeadlineExceeded) {
			sendErr = stderrors.NewSendTimeoutError(platformType)
		}
	}

	if sendErr == nil {
		tr.Status = models.AttemptStatusSent
		tr.ProviderMessageID = providerMessageID
		if err := p.attempts.MarkSent(ctx, attempt.ID, providerMessageID); err != nil {
			log.Error("attempt update failed", map[string]interface{}{"error": err})
		}
		attempt.Status = models.AttemptStatusSent
		attempt.ProviderMessageID = providerMessageID
		metrics.DispatchAttempts.WithLabelValues(platformType, models.AttemptStatusSent).Inc()
		p.emit(job, attempt, models.EventMessageSent, "")
		log.Info("message sent", map[string]interface{}{"providerMessageId": providerMessageID})
		return tr
	}

	classification := stderrors.Classify(sendErr)
	// Adapters and provider SDKs echo the raw addressee id in their error
	// strings; the id lives only in its dedicated, masked fields.
	errText := maskErrorText(sendErr.Error(), attempt.AddresseeID)
	tr.Status = models.AttemptStatusFailed
	tr.Error = errText
	tr.Classification = string(classification)
	if err := p.attempts.MarkFailed(ctx, attempt.ID, errText); err != nil {
		log.Error("attempt update failed", map[string]interface{}{"error": err})
	}
	attempt.Status = models.AttemptStatusFailed
	attempt.ErrorMessage = errText
	metrics.DispatchAttempts.WithLabelValues(platformType, models.AttemptStatusFailed).Inc()
	p.emit(job, attempt, models.EventMessageFailed, errText)
	log.Warn("message failed", map[string]interface{}{
		"error":          errText,
		"classification": string(classification),
	})
	return tr
}

func (p *Processor) resolvePlatform(ctx context.Context, tenantID, platformID string) (*models.Platform, error) {
	platform, err := p.platforms.Get(ctx, platformID, tenantID)
	switch {
	case err == ledger.ErrPlatformNotFound:
		return nil, stderrors.NewPlatformNotFoundError(platformID)
	case err == ledger.ErrPlatformInactive:
		return nil, stderrors.NewPlatformDisabledError(platformID)
	case err != nil:
		return nil, stderrors.NewDatabaseQueryFailedError(err)
	}
	return platform, nil
}

func (p *Processor) resolveAdapter(tenantID string, platform *models.Platform) (platforms.Adapter, error) {
	plaintext, err := p.decryptor.Decrypt(platform.Credentials)
	if err != nil {
		// Never include decryption internals that could echo key or
		// credential material.
		return nil, stderrors.NewCredentialsInvalidError("platformId: " + platform.ID)
	}
	creds, err := platforms.ParseCredentials(plaintext)
	if err != nil {
		return nil, stderrors.NewCredentialsInvalidError("platformId: " + platform.ID)
	}

	adapter, err := p.registry.GetOrCreate(tenantID, platform.ID, platform.Type, creds)
	if err != nil {
		if strings.Contains(err.Error(), "no provider registered") {
			return nil, stderrors.NewProviderNotFoundError(platform.Type)
		}
		return nil, err
	}
	return adapter, nil
}

func (p *Processor) emit(job *models.SendJob, attempt *models.DeliveryAttempt, event, errorMessage string) {
	if p.audit != nil {
		p.audit.Index(context.Background(), attempt)
	}
	if p.notifier == nil {
		return
	}
	data := map[string]interface{}{
		"job_id":         job.ID,
		"attempt_id":     attempt.ID,
		"platform_id":    attempt.PlatformID,
		"platform_type":  attempt.PlatformType,
		"addressee_type": attempt.AddresseeType,
		"addressee_id":   attempt.AddresseeID,
		"status":         attempt.Status,
	}
	if attempt.ProviderMessageID != "" {
		data["provider_message_id"] = attempt.ProviderMessageID
	}
	if errorMessage != "" {
		data["error"] = errorMessage
	}
	p.notifier.Notify(job.TenantID, event, data)
}

// maskIdentifier hides the middle of sensitive addressee ids, keeping the
// first and last two characters.
func maskIdentifier(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 4 {
		return "****"
	}
	return id[:2] + strings.Repeat("*", len(id)-4) + id[len(id)-2:]
}

// maskErrorText hides the raw addressee id wherever an error string echoed it.
func maskErrorText(text, addresseeID string) string {
	id := strings.TrimSpace(addresseeID)
	if id == "" {
		return text
	}
	return strings.ReplaceAll(text, id, maskIdentifier(id))
}
