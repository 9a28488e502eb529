package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/akaeyuhi/SwiftE-commerce-sub007/internal/api/middleware"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/queue"
)

// CreateJobRequest is the POST body for enqueueing a job. Durations are
// given in milliseconds to keep the JSON shape flat.
type CreateJobRequest struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    string          `json:"priority,omitempty"`
	DelayMs     int64           `json:"delayMs,omitempty"`
	MaxAttempts int             `json:"maxAttempts,omitempty"`
	Backoff     *BackoffSpec    `json:"backoff,omitempty"`
	DedupeKey   string          `json:"dedupeKey,omitempty"`

	RetentionOnCompleteMs int64 `json:"retentionOnCompleteMs,omitempty"`
	RetentionOnFailMs     int64 `json:"retentionOnFailMs,omitempty"`
}

type BackoffSpec struct {
	Kind   string `json:"kind"`
	BaseMs int64  `json:"baseMs"`
}

// ScheduleRequest is the POST body for a recurring enqueue.
type ScheduleRequest struct {
	Type    string          `json:"type"`
	Cron    string          `json:"cron"`
	Payload json.RawMessage `json:"payload"`
}

// JobHandler exposes the job queue over HTTP.
type JobHandler struct {
	q      *queue.Queue
	logger *zap.Logger
}

func NewJobHandler(q *queue.Queue, logger *zap.Logger) *JobHandler {
	return &JobHandler{q: q, logger: logger}
}

// Create handles POST /api/v1/jobs
//
// @Summary  Enqueue a background job
// @Tags     jobs
// @Accept   json
// @Produce  json
// @Param    body  body      CreateJobRequest  true  "Job parameters"
// @Success  201   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Failure  503   {object}  map[string]string
// @Router   /api/v1/jobs [post]
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	opts := &queue.Options{
		Priority:    domain.Priority(req.Priority),
		Delay:       time.Duration(req.DelayMs) * time.Millisecond,
		MaxAttempts: req.MaxAttempts,
		DedupeKey:   req.DedupeKey,
	}
	if req.Backoff != nil {
		opts.Backoff = &domain.BackoffPolicy{
			Kind: domain.BackoffKind(req.Backoff.Kind),
			Base: time.Duration(req.Backoff.BaseMs) * time.Millisecond,
		}
	}
	if req.RetentionOnCompleteMs > 0 {
		opts.RetentionOnComplete = time.Duration(req.RetentionOnCompleteMs) * time.Millisecond
	}
	if req.RetentionOnFailMs > 0 {
		opts.RetentionOnFail = time.Duration(req.RetentionOnFailMs) * time.Millisecond
	}

	id, err := h.q.Enqueue(r.Context(), req.Type, req.Payload, opts)
	if err != nil {
		h.logger.Warn("enqueue failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("type", req.Type),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// GetByID handles GET /api/v1/jobs/{id}
//
// @Summary  Get a job's status
// @Tags     jobs
// @Produce  json
// @Param    id   path      string  true  "Job UUID"
// @Success  200  {object}  domain.Job
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/jobs/{id} [get]
func (h *JobHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j, err := h.q.GetStatus(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	if j == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, j)
}

// Cancel handles DELETE /api/v1/jobs/{id}
//
// @Summary  Cancel a job that has not started
// @Tags     jobs
// @Param    id   path  string  true  "Job UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/jobs/{id} [delete]
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.q.Cancel(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryFailed handles POST /api/v1/jobs/retry
//
// @Summary  Re-enqueue failed jobs, optionally filtered by type
// @Tags     jobs
// @Produce  json
// @Param    type  query     string  false  "Only retry jobs of this type"
// @Success  200   {object}  map[string]int
// @Router   /api/v1/jobs/retry [post]
func (h *JobHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.q.RetryFailed(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"retried": n})
}

// CreateSchedule handles POST /api/v1/schedules
//
// @Summary  Register a recurring enqueue on a cron schedule
// @Tags     schedules
// @Accept   json
// @Produce  json
// @Param    body  body      ScheduleRequest  true  "Schedule parameters"
// @Success  201   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/schedules [post]
func (h *JobHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := h.q.ScheduleRecurring(req.Type, req.Cron, req.Payload)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// DeleteSchedule handles DELETE /api/v1/schedules/{id}
//
// @Summary  Remove a recurring schedule
// @Tags     schedules
// @Param    id   path  string  true  "Schedule ID"
// @Success  204
// @Router   /api/v1/schedules/{id} [delete]
func (h *JobHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	h.q.CancelRecurring(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
