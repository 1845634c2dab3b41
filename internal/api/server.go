// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"courier-gateway/internal/common/logger"
	"courier-gateway/internal/models"
	"courier-gateway/internal/queue"
)

// JobQueue is the queue surface exposed over HTTP.
type JobQueue interface {
	Submit(ctx context.Context, job *models.SendJob) (string, error)
	GetStatus(ctx context.Context, jobID string) (*queue.JobStatus, error)
	Metrics(ctx context.Context) (map[string]int64, error)
	PurgeFailed(ctx context.Context) (int64, error)
}

// WebhookStats reports delivery outcomes per webhook.
type WebhookStats interface {
	Stats(ctx context.Context, webhookID string) (*models.WebhookStats, error)
}

// Server exposes the submission and operations API.
type Server struct {
	queue JobQueue
	stats WebhookStats
	log   logger.Logger
}

func NewServer(q JobQueue, stats WebhookStats, log logger.Logger) *Server {
	return &Server{
		queue: q,
		stats: stats,
		log:   log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// Register installs the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/messages", s.handleSubmit)
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("GET /v1/queue/metrics", s.handleQueueMetrics)
	mux.HandleFunc("POST /v1/queue/failed/purge", s.handlePurgeFailed)
	mux.HandleFunc("GET /v1/webhooks/{id}/stats", s.handleWebhookStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleHealth)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var job models.SendJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	jobID, err := s.queue.Submit(r.Context(), &job)
	if err != nil {
		s.log.Warn("job rejected", map[string]interface{}{"error": err})
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.queue.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error("job status lookup failed", map[string]interface{}{"error": err})
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleQueueMetrics(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queue.Metrics(r.Context())
	if err != nil {
		s.log.Error("queue metrics failed", map[string]interface{}{"error": err})
		writeError(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handlePurgeFailed(w http.ResponseWriter, r *http.Request) {
	purged, err := s.queue.PurgeFailed(r.Context())
	if err != nil {
		s.log.Error("failed-job purge failed", map[string]interface{}{"error": err})
		writeError(w, http.StatusInternalServerError, "purge failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"purged": purged})
}

func (s *Server) handleWebhookStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error("webhook stats failed", map[string]interface{}{"error": err})
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
