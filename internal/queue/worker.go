// internal/queue/worker.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"courier-gateway/internal/common/metrics"
	"courier-gateway/internal/models"
)

// Run starts the worker pool and the delayed-job promoter, blocking until ctx
// is cancelled and all workers have drained their in-flight job.
func (q *Queue) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		q.promoteDelayed(ctx)
	}()

	for i := 0; i < q.opts.Workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			q.worker(ctx, idx)
		}(i)
	}

	wg.Wait()
}

func (q *Queue) worker(ctx context.Context, idx int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := q.rdb.BLMove(ctx, q.key("pending"), q.key("active"), "RIGHT", "LEFT", time.Second).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Error("queue poll failed", map[string]interface{}{"error": err, "worker": idx})
			time.Sleep(time.Second)
			continue
		}

		q.process(ctx, jobID)
	}
}

// process runs the handler for one claimed job and settles its state. Only an
// error escaping the whole handler counts as a job failure.
func (q *Queue) process(ctx context.Context, jobID string) {
	metrics.QueueJobsActive.Inc()
	defer metrics.QueueJobsActive.Dec()

	now := time.Now().UTC()
	attempts, err := q.rdb.HIncrBy(ctx, q.jobKey(jobID), "attemptsMade", 1).Result()
	if err != nil {
		q.log.Error("job claim failed", map[string]interface{}{"jobId": jobID, "error": err})
		return
	}
	q.rdb.HSet(ctx, q.jobKey(jobID), "state", StateActive, "processedOn", now.UnixMilli())

	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		q.settleFailed(ctx, jobID, fmt.Sprintf("corrupt job data: %v", err))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, q.opts.JobTimeout)
	handlerErr := q.handler(jobCtx, job)
	cancel()

	if handlerErr == nil {
		q.settleCompleted(ctx, jobID)
		return
	}

	if int(attempts) < q.opts.MaxAttempts {
		q.scheduleRetry(ctx, jobID, int(attempts), handlerErr)
		return
	}
	q.settleFailed(ctx, jobID, handlerErr.Error())
}

func (q *Queue) loadJob(ctx context.Context, jobID string) (*models.SendJob, error) {
	data, err := q.rdb.HGet(ctx, q.jobKey(jobID), "data").Result()
	if err != nil {
		return nil, err
	}
	var job models.SendJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return &job, nil
}

func (q *Queue) settleCompleted(ctx context.Context, jobID string) {
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(jobID), "state", StateCompleted, "finishedOn", time.Now().UTC().UnixMilli())
	pipe.LRem(ctx, q.key("active"), 1, jobID)
	pipe.LPush(ctx, q.key("completed"), jobID)
	pipe.LTrim(ctx, q.key("completed"), 0, q.opts.CompletedRetained-1)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("job settle failed", map[string]interface{}{"jobId": jobID, "error": err})
	}
	q.log.Info("job completed", map[string]interface{}{"jobId": jobID})
}

func (q *Queue) settleFailed(ctx context.Context, jobID, reason string) {
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(jobID),
		"state", StateFailed,
		"failedReason", truncate(reason, 1024),
		"finishedOn", time.Now().UTC().UnixMilli(),
	)
	pipe.LRem(ctx, q.key("active"), 1, jobID)
	pipe.LPush(ctx, q.key("failed"), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("job settle failed", map[string]interface{}{"jobId": jobID, "error": err})
	}
	q.log.Warn("job failed permanently", map[string]interface{}{"jobId": jobID, "reason": reason})
}

// scheduleRetry parks the job in the delayed set with exponential backoff:
// base, base*2, base*4, ...
func (q *Queue) scheduleRetry(ctx context.Context, jobID string, attemptsMade int, cause error) {
	delay := q.opts.BackoffBase * time.Duration(1<<(attemptsMade-1))
	readyAt := time.Now().UTC().Add(delay)

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(jobID),
		"state", StateDelayed,
		"failedReason", truncate(cause.Error(), 1024),
	)
	pipe.LRem(ctx, q.key("active"), 1, jobID)
	pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(readyAt.UnixMilli()), Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("retry schedule failed", map[string]interface{}{"jobId": jobID, "error": err})
		return
	}

	q.log.Warn("job retry scheduled", map[string]interface{}{
		"jobId":        jobID,
		"attemptsMade": attemptsMade,
		"delay":        delay.String(),
		"error":        cause.Error(),
	})
}

// promoteDelayed moves due jobs from the delayed set back onto pending.
func (q *Queue) promoteDelayed(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.PromoteDue(ctx); err != nil && ctx.Err() == nil {
				q.log.Error("delayed promotion failed", map[string]interface{}{"error": err})
			}
		}
	}
}

// PromoteDue moves every delayed job whose backoff has elapsed to pending.
// Exported so tests can drive promotion without the ticker.
func (q *Queue) PromoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	jobIDs, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}

	for _, jobID := range jobIDs {
		removed, err := q.rdb.ZRem(ctx, q.key("delayed"), jobID).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another instance promoted it
		}
		pipe := q.rdb.TxPipeline()
		pipe.HSet(ctx, q.jobKey(jobID), "state", StateQueued)
		pipe.LPush(ctx, q.key("pending"), jobID)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
