// internal/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"courier-gateway/internal/common/logger"
	"courier-gateway/internal/models"
)

// Job states as exposed by GetStatus and Metrics.
const (
	StateQueued    = "queued"
	StateActive    = "active"
	StateDelayed   = "delayed"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Handler processes one SendJob. An error returned here triggers the queue's
// own job-level retry; per-target failures must be absorbed by the handler.
type Handler func(ctx context.Context, job *models.SendJob) error

// Options tune the queue's retry and retention policy.
type Options struct {
	Name              string
	Workers           int
	MaxAttempts       int
	BackoffBase       time.Duration
	CompletedRetained int64
	JobTimeout        time.Duration
}

func (o *Options) defaults() {
	if o.Name == "" {
		o.Name = "send-message"
	}
	if o.Workers <= 0 {
		o.Workers = 5
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 5 * time.Second
	}
	if o.CompletedRetained <= 0 {
		o.CompletedRetained = 100
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 2 * time.Minute
	}
}

// Queue is a durable, at-least-once Redis-backed work queue for SendJobs.
// Jobs survive process restarts; completed jobs are retained up to a cap for
// inspection, failed jobs until explicitly purged.
type Queue struct {
	rdb     *redis.Client
	opts    Options
	handler Handler
	log     logger.Logger
}

// JobStatus is the caller-visible view of one job. A failed state can coexist
// with a partially successful stored Result: jobs with transient target
// failures are re-run and marked failed once retries run out, while targets
// that already went out stay sent and are never delivered twice.
type JobStatus struct {
	ID           string          `json:"id"`
	State        string          `json:"state"`
	Progress     int             `json:"progress"`
	AttemptsMade int             `json:"attemptsMade"`
	FailedReason string          `json:"failedReason,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ProcessedOn  int64           `json:"processedOn,omitempty"`
	FinishedOn   int64           `json:"finishedOn,omitempty"`
}

func New(rdb *redis.Client, opts Options, handler Handler, log logger.Logger) *Queue {
	opts.defaults()
	return &Queue{
		rdb:     rdb,
		opts:    opts,
		handler: handler,
		log:     log.WithFields(map[string]interface{}{"queue": opts.Name}),
	}
}

func (q *Queue) key(parts ...string) string {
	key := "queue:" + q.opts.Name
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (q *Queue) jobKey(jobID string) string { return q.key("job", jobID) }

// Submit validates and enqueues a SendJob, returning its id. The job is
// immutable once accepted.
func (q *Queue) Submit(ctx context.Context, job *models.SendJob) (string, error) {
	if err := ValidateJob(job); err != nil {
		return "", err
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	now := time.Now().UTC()
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(job.ID), map[string]interface{}{
		"data":         string(data),
		"state":        StateQueued,
		"progress":     0,
		"attemptsMade": 0,
		"createdAt":    now.UnixMilli(),
	})
	pipe.LPush(ctx, q.key("pending"), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	q.log.Info("job queued", map[string]interface{}{
		"jobId":   job.ID,
		"targets": len(job.Targets),
	})
	return job.ID, nil
}

// GetStatus returns the state of a job, or nil when the job is unknown
// (never enqueued, or already purged).
func (q *Queue) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	status := &JobStatus{ID: jobID, State: fields["state"]}
	status.Progress, _ = strconv.Atoi(fields["progress"])
	status.AttemptsMade, _ = strconv.Atoi(fields["attemptsMade"])
	status.FailedReason = fields["failedReason"]
	status.ProcessedOn, _ = strconv.ParseInt(fields["processedOn"], 10, 64)
	status.FinishedOn, _ = strconv.ParseInt(fields["finishedOn"], 10, 64)
	if rv := fields["returnvalue"]; rv != "" {
		status.Result = json.RawMessage(rv)
	}
	return status, nil
}

// SetResult stores the handler's result on the job hash so GetStatus can
// return it after completion.
func (q *Queue) SetResult(ctx context.Context, jobID string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return q.rdb.HSet(ctx, q.jobKey(jobID), "returnvalue", string(data)).Err()
}

// SetProgress records handler progress (0-100) on the job hash.
func (q *Queue) SetProgress(ctx context.Context, jobID string, progress int) error {
	return q.rdb.HSet(ctx, q.jobKey(jobID), "progress", progress).Err()
}

// Metrics returns job counts per state.
func (q *Queue) Metrics(ctx context.Context) (map[string]int64, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, q.key("pending"))
	active := pipe.LLen(ctx, q.key("active"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	completed := pipe.LLen(ctx, q.key("completed"))
	failed := pipe.LLen(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return map[string]int64{
		StateQueued:    pending.Val(),
		StateActive:    active.Val(),
		StateDelayed:   delayed.Val(),
		StateCompleted: completed.Val(),
		StateFailed:    failed.Val(),
	}, nil
}

// PurgeFailed removes failed jobs and their hashes. Failed jobs are retained
// indefinitely until this is called.
func (q *Queue) PurgeFailed(ctx context.Context) (int64, error) {
	var purged int64
	for {
		jobID, err := q.rdb.RPop(ctx, q.key("failed")).Result()
		if err == redis.Nil {
			return purged, nil
		}
		if err != nil {
			return purged, err
		}
		if err := q.rdb.Del(ctx, q.jobKey(jobID)).Err(); err != nil {
			return purged, err
		}
		purged++
	}
}
