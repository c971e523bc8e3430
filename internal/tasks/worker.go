// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package tasks

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/metrics"
)

// Worker turns queue messages into executor runs and lifecycle updates
// on the result store.
type Worker struct {
	store    *ResultStore
	executor *Executor
}

// NewWorker builds a worker over the store and executor.
func NewWorker(store *ResultStore, executor *Executor) *Worker {
	return &Worker{store: store, executor: executor}
}

// Handle processes one queue message. A returned error sends the message
// through the retry middleware; permanent failures are recorded and
// acked so they never cycle.
func (w *Worker) Handle(msg *message.Message) error {
	t, err := UnmarshalTask(msg.Payload)
	if err != nil {
		// Undecodable envelope: nothing to retry, nothing to record.
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable task message")
		return nil
	}

	metrics.TasksConsumed.WithLabelValues(t.Type, string(t.Queue)).Inc()

	if _, err := w.store.MarkRunning(t.ID); err != nil {
		if !errors.Is(err, ErrTaskNotFound) {
			return err
		}
		// Record expired or was submitted by another instance; recreate
		// it so the result has somewhere to land.
		rec := recordFromTask(t)
		rec.Status = StatusRunning
		if err := w.store.Put(rec); err != nil {
			return err
		}
	}

	result, execErr := w.executor.Execute(msg.Context(), t)
	if execErr == nil {
		_, err := w.store.MarkSucceeded(t.ID, result)
		return err
	}

	if IsPermanent(execErr) {
		logging.Warn().Err(execErr).
			Str("task_id", t.ID).
			Str("task_type", t.Type).
			Msg("Task failed permanently")
		_, err := w.store.MarkFailed(t.ID, execErr)
		return err
	}

	logging.Warn().Err(execErr).
		Str("task_id", t.ID).
		Str("task_type", t.Type).
		Msg("Task attempt failed, will retry")
	if _, err := w.store.RecordAttempt(t.ID, execErr); err != nil {
		logging.Error().Err(err).Str("task_id", t.ID).Msg("Failed to record task attempt")
	}
	return execErr
}

// HandlePoison processes a message routed to the poison queue after the
// retry budget ran out. The record is parked as dead for operator
// inspection and manual requeue.
func (w *Worker) HandlePoison(msg *message.Message) error {
	t, err := UnmarshalTask(msg.Payload)
	if err != nil {
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable poison message")
		return nil
	}

	reason := msg.Metadata.Get(middleware.ReasonForPoisonedKey)
	metrics.TasksPoisoned.Inc()

	if _, err := w.store.MarkDead(t.ID, reason); err != nil && !errors.Is(err, ErrTaskNotFound) {
		return err
	}

	logging.Error().
		Str("task_id", t.ID).
		Str("task_type", t.Type).
		Str("reason", reason).
		Msg("Task parked in dead-letter queue")
	return nil
}
