// internal/queue/queue_test.go
package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-gateway/internal/common/logger"
	"courier-gateway/internal/models"
)

func newTestQueue(t *testing.T, opts Options, handler Handler) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, opts, handler, logger.NewTestLogger(t)), mr
}

func validJob() *models.SendJob {
	return &models.SendJob{
		TenantID: "tenant-1",
		Targets: []models.Target{
			{PlatformID: "pf-1", AddresseeType: "user", AddresseeID: "12345"},
		},
		Content: models.MessageContent{Text: "hello"},
	}
}

func TestSubmitAndGetStatus(t *testing.T) {
	q, _ := newTestQueue(t, Options{}, nil)
	ctx := context.Background()

	jobID, err := q.Submit(ctx, validJob())
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	status, err := q.GetStatus(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, StateQueued, status.State)
	assert.Equal(t, 0, status.AttemptsMade)
}

func TestSubmitRejectsInvalidJob(t *testing.T) {
	q, _ := newTestQueue(t, Options{}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		job  *models.SendJob
	}{
		{name: "nil job", job: nil},
		{
			name: "missing tenant",
			job: &models.SendJob{
				Targets: []models.Target{{PlatformID: "pf", AddresseeType: "user", AddresseeID: "1"}},
				Content: models.MessageContent{Text: "hi"},
			},
		},
		{
			name: "empty targets",
			job: &models.SendJob{
				TenantID: "t",
				Targets:  []models.Target{},
				Content:  models.MessageContent{Text: "hi"},
			},
		},
		{
			name: "bad addressee type",
			job: &models.SendJob{
				TenantID: "t",
				Targets:  []models.Target{{PlatformID: "pf", AddresseeType: "robot", AddresseeID: "1"}},
				Content:  models.MessageContent{Text: "hi"},
			},
		},
		{
			name: "empty text",
			job: &models.SendJob{
				TenantID: "t",
				Targets:  []models.Target{{PlatformID: "pf", AddresseeType: "user", AddresseeID: "1"}},
				Content:  models.MessageContent{Text: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Submit(ctx, tt.job)
			assert.Error(t, err)
		})
	}
}

func TestGetStatusUnknownJob(t *testing.T) {
	q, _ := newTestQueue(t, Options{}, nil)

	status, err := q.GetStatus(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestProcessCompletesJob(t *testing.T) {
	var handled *models.SendJob
	q, _ := newTestQueue(t, Options{}, func(ctx context.Context, job *models.SendJob) error {
		handled = job
		return nil
	})
	ctx := context.Background()

	jobID, err := q.Submit(ctx, validJob())
	require.NoError(t, err)

	q.process(ctx, jobID)

	require.NotNil(t, handled)
	assert.Equal(t, jobID, handled.ID)

	status, err := q.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 1, status.AttemptsMade)
	assert.NotZero(t, status.FinishedOn)
}

func TestProcessSchedulesRetryWithBackoff(t *testing.T) {
	q, _ := newTestQueue(t, Options{MaxAttempts: 3, BackoffBase: 100 * time.Millisecond},
		func(ctx context.Context, job *models.SendJob) error {
			return errors.New("downstream unavailable")
		})
	ctx := context.Background()

	jobID, err := q.Submit(ctx, validJob())
	require.NoError(t, err)

	q.process(ctx, jobID)

	status, err := q.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, status.State)
	assert.Equal(t, 1, status.AttemptsMade)
	assert.Contains(t, status.FailedReason, "downstream unavailable")

	// Not due yet.
	require.NoError(t, q.PromoteDue(ctx))
	assert.Equal(t, int64(1), mustMetric(t, q, StateDelayed))

	// Past the first backoff window the job is promoted back to pending.
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, q.PromoteDue(ctx))
	assert.Equal(t, int64(0), mustMetric(t, q, StateDelayed))
	assert.Equal(t, int64(1), mustMetric(t, q, StateQueued))
}

func TestProcessFailsAfterMaxAttempts(t *testing.T) {
	q, _ := newTestQueue(t, Options{MaxAttempts: 2, BackoffBase: time.Millisecond},
		func(ctx context.Context, job *models.SendJob) error {
			return errors.New("still broken")
		})
	ctx := context.Background()

	jobID, err := q.Submit(ctx, validJob())
	require.NoError(t, err)

	q.process(ctx, jobID) // attempt 1: delayed
	q.process(ctx, jobID) // attempt 2: exhausted

	status, err := q.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, 2, status.AttemptsMade)
	assert.Contains(t, status.FailedReason, "still broken")
	assert.Equal(t, int64(1), mustMetric(t, q, StateFailed))
}

func TestCompletedRetention(t *testing.T) {
	q, _ := newTestQueue(t, Options{CompletedRetained: 2},
		func(ctx context.Context, job *models.SendJob) error { return nil })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		jobID, err := q.Submit(ctx, validJob())
		require.NoError(t, err)
		q.process(ctx, jobID)
	}

	assert.Equal(t, int64(2), mustMetric(t, q, StateCompleted))
}

func TestPurgeFailed(t *testing.T) {
	q, _ := newTestQueue(t, Options{MaxAttempts: 1},
		func(ctx context.Context, job *models.SendJob) error {
			return errors.New("permanent")
		})
	ctx := context.Background()

	jobID, err := q.Submit(ctx, validJob())
	require.NoError(t, err)
	q.process(ctx, jobID)

	require.Equal(t, int64(1), mustMetric(t, q, StateFailed))

	purged, err := q.PurgeFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, int64(0), mustMetric(t, q, StateFailed))

	// The job hash is gone too.
	status, err := q.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestSetResultRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t, Options{}, nil)
	ctx := context.Background()

	jobID, err := q.Submit(ctx, validJob())
	require.NoError(t, err)

	require.NoError(t, q.SetResult(ctx, jobID, map[string]int{"successCount": 3}))

	status, err := q.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"successCount":3}`, string(status.Result))
}

func TestSetProgress(t *testing.T) {
	q, _ := newTestQueue(t, Options{}, nil)
	ctx := context.Background()

	jobID, err := q.Submit(ctx, validJob())
	require.NoError(t, err)

	require.NoError(t, q.SetProgress(ctx, jobID, 50))

	status, err := q.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 50, status.Progress)
}

func mustMetric(t *testing.T, q *Queue, state string) int64 {
	t.Helper()
	counts, err := q.Metrics(context.Background())
	require.NoError(t, err)
	return counts[state]
}
