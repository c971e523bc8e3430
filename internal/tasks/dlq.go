// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package tasks

import (
	"context"
	"fmt"

	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/metrics"
)

// ListDead returns the dead-letter set, newest first.
func (m *Manager) ListDead(limit int) ([]*Record, error) {
	return m.store.List(ListFilter{Status: StatusDead, Limit: limit})
}

// Requeue republishes a failed or dead task with a fresh attempt budget.
// The record returns to pending and flows through the normal queue; the
// task keeps its ID so the history stays in one place.
func (m *Manager) Requeue(ctx context.Context, id string) (*Record, error) {
	rec, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusDead && rec.Status != StatusFailed {
		return nil, fmt.Errorf("task %s is %s, only failed or dead tasks can be requeued", id, rec.Status)
	}

	t := &Task{
		ID:          rec.ID,
		Type:        rec.Type,
		Queue:       rec.Queue,
		Payload:     rec.Payload,
		GroupID:     rec.GroupID,
		SubmittedAt: rec.SubmittedAt,
		Retries:     rec.Retries + 1,
	}

	rec.Status = StatusPending
	rec.Error = ""
	rec.Result = nil
	rec.StartedAt = nil
	rec.FinishedAt = nil
	rec.Retries = t.Retries
	if err := m.store.Put(rec); err != nil {
		return nil, err
	}

	if err := m.publisher.PublishTask(ctx, t); err != nil {
		if _, markErr := m.store.MarkFailed(t.ID, err); markErr != nil {
			logging.Error().Err(markErr).Str("task_id", t.ID).Msg("Failed to mark requeued task")
		}
		return nil, err
	}

	metrics.TasksRequeued.Inc()
	logging.Info().
		Str("task_id", id).
		Str("task_type", rec.Type).
		Int("retries", t.Retries).
		Msg("Dead task requeued")
	return rec, nil
}

// PurgeDead deletes dead records, returning how many were removed.
func (m *Manager) PurgeDead() (int, error) {
	dead, err := m.store.List(ListFilter{Status: StatusDead})
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, rec := range dead {
		if err := m.store.Delete(rec.ID); err != nil {
			return purged, err
		}
		purged++
	}

	if purged > 0 {
		logging.Info().Int("purged", purged).Msg("Dead-letter queue purged")
	}
	return purged, nil
}
