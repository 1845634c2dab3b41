// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_processed_total",
			Help: "Total number of send jobs processed",
		},
		[]string{"outcome"},
	)

	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Per-target delivery attempts by platform type and status",
		},
		[]string{"platform_type", "status"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dispatch_job_duration_seconds",
			Help: "Duration of full job dispatch in seconds",
		},
		[]string{"outcome"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery outcomes by event type and status",
		},
		[]string{"event", "status"},
	)

	WebhookAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_attempts",
			Help:    "HTTP attempts used per webhook delivery",
			Buckets: []float64{1, 2, 3},
		},
		[]string{"event"},
	)

	WebhookQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_pending_tasks",
			Help: "Webhook delivery tasks waiting for a worker",
		},
	)

	QueueJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_jobs_active",
			Help: "Send jobs currently being processed",
		},
	)
)
