// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/bgapp-platform/bgapp/internal/audit"
	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/models"
	"github.com/bgapp-platform/bgapp/internal/tasks"
	"github.com/bgapp-platform/bgapp/internal/validation"
)

// SubmitPrediction is POST /async/ml/predictions. Submission is
// fire-and-forget: the handler returns 202 with the pending record and
// never waits for the worker. Results are polled via GET
// /async/tasks/{id} or pushed over the WebSocket.
func (h *Handler) SubmitPrediction(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "task queue is not available", nil)
		return
	}

	var req models.PredictionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), nil)
		return
	}

	queue := queueFor(req.Queue)

	payload, err := json.Marshal(&req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "could not encode payload", nil)
		return
	}

	rec, err := h.manager.Submit(r.Context(), tasks.TypeMLPredict, queue, payload)
	if err != nil {
		logging.Error().Err(err).Msg("Prediction submission failed")
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "could not enqueue prediction", nil)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastTaskEvent(rec.ID, rec.Type, string(rec.Queue), string(rec.Status), "")
	}
	h.auditAction(r, audit.EventTaskSubmitted, "submit prediction", map[string]interface{}{
		"task_id": rec.ID,
		"queue":   string(rec.Queue),
		"species": req.SpeciesID,
	})

	w.Header().Set("Location", "/async/tasks/"+rec.ID)
	respondJSON(w, http.StatusAccepted, rec, models.Metadata{})
}

// SubmitPredictionBatch is POST /async/ml/predictions/batch. One task is
// enqueued per species and the set is tracked as a group, polled via
// GET /async/groups/{id}. Group completion drops the cached dashboard
// aggregates so the prediction counts refresh.
func (h *Handler) SubmitPredictionBatch(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "task queue is not available", nil)
		return
	}

	var req models.PredictionBatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), nil)
		return
	}

	queue := queueFor(req.Queue)

	payloads := make([]json.RawMessage, 0, len(req.SpeciesIDs))
	for _, species := range req.SpeciesIDs {
		payload, err := json.Marshal(&models.PredictionRequest{
			SpeciesID: species,
			Model:     req.Model,
			Bounds:    req.Bounds,
			Features:  req.Features,
		})
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "could not encode payload", nil)
			return
		}
		payloads = append(payloads, payload)
	}

	groupID, records, err := h.manager.SubmitGroup(r.Context(), tasks.TypeMLPredict, queue, payloads,
		func([]*tasks.Record) { h.ClearCache() })
	if err != nil {
		logging.Error().Err(err).Msg("Prediction batch submission failed")
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "could not enqueue prediction batch", nil)
		return
	}

	h.auditAction(r, audit.EventTaskSubmitted, "submit prediction batch", map[string]interface{}{
		"group_id": groupID,
		"queue":    string(queue),
		"species":  len(records),
	})

	w.Header().Set("Location", "/async/groups/"+groupID)
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"group_id": groupID,
		"total":    len(records),
		"tasks":    records,
	}, models.Metadata{})
}

// ListPredictions is GET /async/ml/predictions: persisted model runs,
// newest first. Unlike /async/tasks this reads the database, so results
// survive queue restarts and record expiry.
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR", "database is not available", nil)
		return
	}
	start := time.Now()
	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	predictions, err := h.db.RecentPredictions(ctx, h.pageSize(r.URL.Query().Get("limit")))
	if err != nil {
		logging.Error().Err(err).Msg("Prediction listing failed")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "could not list predictions", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": predictions,
		"total":       len(predictions),
	}, models.Metadata{QueryTimeMS: elapsedMS(start)})
}

// GetTask is GET /async/tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "task queue is not available", nil)
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := h.manager.Get(id)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "task not found", map[string]interface{}{"id": id})
			return
		}
		respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "could not load task", nil)
		return
	}
	respondJSON(w, http.StatusOK, rec, models.Metadata{})
}

// ListTasks is GET /async/tasks with optional status, queue, type and
// limit query parameters.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "task queue is not available", nil)
		return
	}
	start := time.Now()

	filter := tasks.ListFilter{
		Status: tasks.Status(r.URL.Query().Get("status")),
		Queue:  tasks.Queue(r.URL.Query().Get("queue")),
		Type:   r.URL.Query().Get("type"),
		Limit:  h.pageSize(r.URL.Query().Get("limit")),
	}

	records, err := h.manager.List(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "could not list tasks", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": records,
		"total": len(records),
	}, models.Metadata{QueryTimeMS: elapsedMS(start)})
}

// RetryTask is POST /async/tasks/{id}/retry. Only failed or dead tasks
// can be requeued.
func (h *Handler) RetryTask(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "task queue is not available", nil)
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := h.manager.Requeue(r.Context(), id)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "task not found", map[string]interface{}{"id": id})
			return
		}
		respondError(w, http.StatusConflict, "QUEUE_ERROR", err.Error(), nil)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastTaskEvent(rec.ID, rec.Type, string(rec.Queue), string(rec.Status), "")
	}
	h.auditAction(r, audit.EventTaskRequeued, "retry task", map[string]interface{}{
		"task_id": rec.ID,
		"type":    rec.Type,
	})
	respondJSON(w, http.StatusAccepted, rec, models.Metadata{})
}

// QueueStats is GET /async/queues.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "task queue is not available", nil)
		return
	}
	start := time.Now()

	stats, err := h.manager.Stats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "could not compute queue stats", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"queues":          stats,
		"publisher_state": h.manager.PublisherBreakerState(),
	}, models.Metadata{QueryTimeMS: elapsedMS(start)})
}

// GroupStatus is GET /async/groups/{id}.
func (h *Handler) GroupStatus(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "task queue is not available", nil)
		return
	}

	id := chi.URLParam(r, "id")
	status, ok := h.manager.GroupStatus(id)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "group not found or already drained", map[string]interface{}{"id": id})
		return
	}
	respondJSON(w, http.StatusOK, status, models.Metadata{})
}

// DeadTasks is GET /async/dlq.
func (h *Handler) DeadTasks(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "task queue is not available", nil)
		return
	}

	records, err := h.manager.ListDead(h.pageSize(r.URL.Query().Get("limit")))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "could not list dead tasks", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": records,
		"total": len(records),
	}, models.Metadata{})
}

// PurgeDeadTasks is POST /async/dlq/purge. Admin only.
func (h *Handler) PurgeDeadTasks(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "task queue is not available", nil)
		return
	}

	purged, err := h.manager.PurgeDead()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUEUE_ERROR", "could not purge dead tasks", nil)
		return
	}
	logging.Info().Int("purged", purged).Msg("Dead letter queue purged")
	h.auditAction(r, audit.EventDLQPurged, "purge dead letter queue", map[string]interface{}{
		"purged": purged,
	})
	respondJSON(w, http.StatusOK, map[string]int{"purged": purged}, models.Metadata{})
}

// SchedulerJobs is GET /api/scheduler/jobs.
func (h *Handler) SchedulerJobs(w http.ResponseWriter, _ *http.Request) {
	if h.sched == nil {
		respondError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", "scheduler is not available", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": h.sched.Enabled(),
		"jobs":    h.sched.Jobs(),
	}, models.Metadata{})
}

// AdminPolicy is GET /api/admin/policy.
func (h *Handler) AdminPolicy(w http.ResponseWriter, _ *http.Request) {
	if h.policies == nil {
		respondError(w, http.StatusServiceUnavailable, "AUTHORIZATION_ERROR", "policy engine is not available", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"policies": h.policies.Policy(),
	}, models.Metadata{})
}

// queueFor maps the request queue name to a priority class. Predictions
// default to the high queue.
func queueFor(name string) tasks.Queue {
	switch name {
	case "default":
		return tasks.QueueDefault
	case "low":
		return tasks.QueueLow
	default:
		return tasks.QueueHigh
	}
}

// pageSize parses a limit query parameter against the configured caps.
func (h *Handler) pageSize(raw string) int {
	def, most := 50, 500
	if h.cfg != nil {
		if h.cfg.API.DefaultPageSize > 0 {
			def = h.cfg.API.DefaultPageSize
		}
		if h.cfg.API.MaxPageSize > 0 {
			most = h.cfg.API.MaxPageSize
		}
	}
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > most {
		return most
	}
	return n
}
