// internal/api/server_test.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-gateway/internal/common/logger"
	"courier-gateway/internal/models"
	"courier-gateway/internal/queue"
)

type fakeJobQueue struct {
	submitted *models.SendJob
	submitErr error
	status    *queue.JobStatus
	counts    map[string]int64
	purged    int64
}

func (f *fakeJobQueue) Submit(ctx context.Context, job *models.SendJob) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = job
	return "job-123", nil
}

func (f *fakeJobQueue) GetStatus(ctx context.Context, jobID string) (*queue.JobStatus, error) {
	return f.status, nil
}

func (f *fakeJobQueue) Metrics(ctx context.Context) (map[string]int64, error) {
	return f.counts, nil
}

func (f *fakeJobQueue) PurgeFailed(ctx context.Context) (int64, error) {
	return f.purged, nil
}

type fakeStats struct {
	stats *models.WebhookStats
}

func (f *fakeStats) Stats(ctx context.Context, webhookID string) (*models.WebhookStats, error) {
	return f.stats, nil
}

func newTestMux(t *testing.T, q *fakeJobQueue, stats *fakeStats) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewServer(q, stats, logger.NewTestLogger(t)).Register(mux)
	return mux
}

func TestSubmitAccepted(t *testing.T) {
	q := &fakeJobQueue{}
	mux := newTestMux(t, q, &fakeStats{})

	body := `{
		"tenantId": "t1",
		"targets": [{"platformId": "pf-1", "addresseeType": "user", "addresseeId": "123"}],
		"content": {"text": "hello"}
	}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-123", resp["jobId"])
	require.NotNil(t, q.submitted)
	assert.Equal(t, "t1", q.submitted.TenantID)
}

func TestSubmitRejectsBadJSON(t *testing.T) {
	mux := newTestMux(t, &fakeJobQueue{}, &fakeStats{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRejectsInvalidJob(t *testing.T) {
	q := &fakeJobQueue{submitErr: errors.New("Job payload failed validation")}
	mux := newTestMux(t, q, &fakeStats{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestJobStatusFound(t *testing.T) {
	q := &fakeJobQueue{status: &queue.JobStatus{ID: "job-1", State: queue.StateCompleted, Progress: 100}}
	mux := newTestMux(t, q, &fakeStats{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status queue.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, queue.StateCompleted, status.State)
}

func TestJobStatusNotFound(t *testing.T) {
	mux := newTestMux(t, &fakeJobQueue{}, &fakeStats{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueMetrics(t *testing.T) {
	q := &fakeJobQueue{counts: map[string]int64{"queued": 3, "failed": 1}}
	mux := newTestMux(t, q, &fakeStats{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queue/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var counts map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, int64(3), counts["queued"])
}

func TestPurgeFailed(t *testing.T) {
	q := &fakeJobQueue{purged: 7}
	mux := newTestMux(t, q, &fakeStats{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/queue/failed/purge", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp["purged"])
}

func TestWebhookStats(t *testing.T) {
	stats := &fakeStats{stats: &models.WebhookStats{Total: 10, Successful: 9, SuccessRate: 0.9}}
	mux := newTestMux(t, &fakeJobQueue{}, stats)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/webhooks/wh-1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.WebhookStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(10), got.Total)
}

func TestHealth(t *testing.T) {
	mux := newTestMux(t, &fakeJobQueue{}, &fakeStats{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
