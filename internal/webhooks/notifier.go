// internal/webhooks/notifier.go
package webhooks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	stderrors "courier-gateway/internal/common/errors"
	"courier-gateway/internal/common/logger"
	"courier-gateway/internal/common/metrics"
	"courier-gateway/internal/models"
)

// WebhookSource lists the subscriptions matching an event.
type WebhookSource interface {
	ListActive(ctx context.Context, tenantID, event string) ([]models.Webhook, error)
}

// DeliveryLedger persists webhook delivery records.
type DeliveryLedger interface {
	Create(ctx context.Context, d *models.WebhookDelivery) error
	MarkSuccess(ctx context.Context, deliveryID string, attempts int, responseBody string) error
	MarkFailed(ctx context.Context, deliveryID string, attempts int, errorMessage string) error
	Stats(ctx context.Context, webhookID string) (*models.WebhookStats, error)
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// URLPolicy validates destination URLs before any HTTP call.
type URLPolicy interface {
	Validate(rawURL string) error
}

// payload is the wire body shared by every subscriber of one event occurrence.
type payload struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	TenantID  string      `json:"tenant_id"`
	Data      interface{} `json:"data"`
}

// task is one delivery to one webhook.
type task struct {
	webhook   models.Webhook
	event     string
	timestamp string
	body      []byte
}

// Notifier fans events out to subscribed webhooks. Deliveries run on a
// process-wide bounded worker pool, fully decoupled from the event producer:
// Notify never blocks and delivery failures are logged and swallowed.
type Notifier struct {
	source  WebhookSource
	ledger  DeliveryLedger
	policy  URLPolicy
	sender  *Sender
	limiter *rate.Limiter
	log     logger.Logger

	tasks   chan task
	wg      sync.WaitGroup
	lookups sync.WaitGroup

	runCtx    context.Context
	runCancel context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
}

// NotifierOptions tune the pool; zero values get defaults.
type NotifierOptions struct {
	Concurrency int
	Timeout     time.Duration
	MaxAttempts int
	RatePerSec  float64
}

func NewNotifier(source WebhookSource, ledger DeliveryLedger, policy URLPolicy, opts NotifierOptions, log logger.Logger) *Notifier {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}

	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Concurrency)
	}

	n := &Notifier{
		source:  source,
		ledger:  ledger,
		policy:  policy,
		sender:  NewSender(opts.Timeout, opts.MaxAttempts),
		limiter: limiter,
		log:     log.WithFields(map[string]interface{}{"component": "webhook-notifier"}),
		tasks:   make(chan task, opts.Concurrency*8),
	}
	n.start(opts.Concurrency)
	return n
}

func (n *Notifier) start(concurrency int) {
	n.startOnce.Do(func() {
		n.runCtx, n.runCancel = context.WithCancel(context.Background())
		for i := 0; i < concurrency; i++ {
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				for {
					select {
					case <-n.runCtx.Done():
						return
					case t, ok := <-n.tasks:
						if !ok {
							return
						}
						metrics.WebhookQueueDepth.Dec()
						n.deliver(n.runCtx, t)
					}
				}
			}()
		}
	})
}

// Notify schedules delivery of an event to every matching webhook. It returns
// immediately; lookup and delivery happen asynchronously.
func (n *Notifier) Notify(tenantID, event string, data interface{}) {
	n.lookups.Add(1)
	go func() {
		defer n.lookups.Done()
		n.fanOut(tenantID, event, data)
	}()
}

func (n *Notifier) fanOut(tenantID, event string, data interface{}) {
	ctx, cancel := context.WithTimeout(n.runCtx, 10*time.Second)
	defer cancel()

	hooks, err := n.source.ListActive(ctx, tenantID, event)
	if err != nil {
		n.log.Error("webhook lookup failed", map[string]interface{}{
			"tenantId": tenantID,
			"event":    event,
			"error":    err,
		})
		return
	}
	if len(hooks) == 0 {
		return
	}

	// One payload per event occurrence: every subscriber sees the same
	// timestamp.
	timestamp := time.Now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(payload{
		Event:     event,
		Timestamp: timestamp,
		TenantID:  tenantID,
		Data:      data,
	})
	if err != nil {
		n.log.Error("payload marshal failed", map[string]interface{}{"event": event, "error": err})
		return
	}

	for _, hook := range hooks {
		select {
		case <-n.runCtx.Done():
			return
		case n.tasks <- task{webhook: hook, event: event, timestamp: timestamp, body: body}:
			metrics.WebhookQueueDepth.Inc()
		}
	}
}

// deliver runs one webhook delivery to a terminal state. Every outcome is
// recorded; nothing propagates.
func (n *Notifier) deliver(ctx context.Context, t task) {
	delivery := &models.WebhookDelivery{
		ID:        uuid.New().String(),
		WebhookID: t.webhook.ID,
		Event:     t.event,
		Payload:   string(t.body),
		Status:    models.DeliveryStatusPending,
	}
	if err := n.ledger.Create(ctx, delivery); err != nil {
		n.log.Error("delivery record create failed", map[string]interface{}{
			"webhookId": t.webhook.ID,
			"event":     t.event,
			"error":     err,
		})
		return
	}

	log := n.log.WithFields(map[string]interface{}{
		"webhookId":  t.webhook.ID,
		"deliveryId": delivery.ID,
		"event":      t.event,
	})

	// SSRF policy rejections are terminal with zero HTTP attempts.
	if err := n.policy.Validate(t.webhook.URL); err != nil {
		rejection := stderrors.NewWebhookURLRejectedError(err.Error())
		if markErr := n.ledger.MarkFailed(ctx, delivery.ID, 0, rejection.Error()); markErr != nil {
			log.Error("delivery settle failed", map[string]interface{}{"error": markErr})
		}
		metrics.WebhookDeliveries.WithLabelValues(t.event, models.DeliveryStatusFailed).Inc()
		log.Warn("webhook url rejected", map[string]interface{}{"error": err})
		return
	}

	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			if markErr := n.ledger.MarkFailed(ctx, delivery.ID, 0, err.Error()); markErr != nil {
				log.Error("delivery settle failed", map[string]interface{}{"error": markErr})
			}
			return
		}
	}

	result := n.sender.Send(ctx, t.webhook.URL, t.webhook.Secret, t.event, t.timestamp, t.body)
	metrics.WebhookAttempts.WithLabelValues(t.event).Observe(float64(result.Attempts))

	if result.Success {
		if err := n.ledger.MarkSuccess(ctx, delivery.ID, result.Attempts, result.Snapshot); err != nil {
			log.Error("delivery settle failed", map[string]interface{}{"error": err})
		}
		metrics.WebhookDeliveries.WithLabelValues(t.event, models.DeliveryStatusSuccess).Inc()
		log.Debug("webhook delivered", map[string]interface{}{"attempts": result.Attempts})
		return
	}

	if err := n.ledger.MarkFailed(ctx, delivery.ID, result.Attempts, result.Snapshot); err != nil {
		log.Error("delivery settle failed", map[string]interface{}{"error": err})
	}
	metrics.WebhookDeliveries.WithLabelValues(t.event, models.DeliveryStatusFailed).Inc()
	log.Warn("webhook delivery failed", map[string]interface{}{
		"attempts": result.Attempts,
		"error":    result.Snapshot,
	})
}

// Stats aggregates delivery outcomes for one webhook.
func (n *Notifier) Stats(ctx context.Context, webhookID string) (*models.WebhookStats, error) {
	return n.ledger.Stats(ctx, webhookID)
}

// Cleanup purges delivery records older than the retention window.
func (n *Notifier) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	purged, err := n.ledger.Cleanup(ctx, olderThanDays)
	if err != nil {
		return 0, err
	}
	n.log.Info("delivery retention sweep", map[string]interface{}{
		"olderThanDays": olderThanDays,
		"purged":        purged,
	})
	return purged, nil
}

// Drain waits for pending lookups and queued tasks to finish, then stops the
// pool. Used on shutdown and in tests.
func (n *Notifier) Drain() {
	n.stopOnce.Do(func() {
		n.lookups.Wait()
		close(n.tasks)
		n.wg.Wait()
		n.runCancel()
	})
}
