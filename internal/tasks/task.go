// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package tasks implements the asynchronous task system: an embedded NATS
// JetStream broker, priority queues, a Watermill processing router with a
// poison queue, and a Badger-backed result store.
//
// Submission is fire-and-forget: handlers publish and return a task ID,
// results land in the store and are fetched by polling or over the
// websocket feed. There is no blocking wait anywhere in the request path.
package tasks

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Queue is a priority class. Each queue maps to its own JetStream subject
// and worker pool so a flood of low-priority work cannot starve
// high-priority tasks.
type Queue string

const (
	QueueHigh    Queue = "high"
	QueueDefault Queue = "default"
	QueueLow     Queue = "low"
)

// Queues lists all priority classes in descending priority order.
var Queues = []Queue{QueueHigh, QueueDefault, QueueLow}

// Subject returns the JetStream subject for the queue.
func (q Queue) Subject() string {
	return "tasks." + string(q)
}

// Valid reports whether q names a known priority class.
func (q Queue) Valid() bool {
	switch q {
	case QueueHigh, QueueDefault, QueueLow:
		return true
	}
	return false
}

// StreamName is the JetStream stream holding all task subjects.
const StreamName = "TASKS"

// StreamSubjects is the wildcard covering every task subject, including
// the poison queue.
const StreamSubjects = "tasks.>"

// PoisonSubject receives tasks that exhausted their retries.
const PoisonSubject = "tasks.poison"

// Task types.
const (
	TypeMLPredict   = "ml.predict"
	TypeIngest      = "ingest.observations"
	TypeReport      = "report.generate"
	TypeDataCleanup = "data.cleanup"
)

// KnownTypes lists every task type the executor can run.
var KnownTypes = []string{TypeMLPredict, TypeIngest, TypeReport, TypeDataCleanup}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead" // exhausted retries, parked in the poison queue
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusDead
}

// Task is the wire envelope published to the broker. The payload schema
// depends on Type.
type Task struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Queue       Queue           `json:"queue"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	GroupID     string          `json:"group_id,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Retries     int             `json:"retries"`
}

// NewTask builds a task envelope with a fresh UUID.
func NewTask(taskType string, queue Queue, payload json.RawMessage) *Task {
	return &Task{
		ID:          uuid.New().String(),
		Type:        taskType,
		Queue:       queue,
		Payload:     payload,
		SubmittedAt: time.Now().UTC(),
	}
}

// Marshal serializes the envelope for publishing.
func (t *Task) Marshal() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal task %s: %w", t.ID, err)
	}
	return data, nil
}

// UnmarshalTask parses a wire envelope.
func UnmarshalTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	if t.ID == "" {
		return nil, fmt.Errorf("task envelope missing id")
	}
	if !t.Queue.Valid() {
		return nil, fmt.Errorf("task %s has unknown queue %q", t.ID, t.Queue)
	}
	return &t, nil
}

// Record is the stored view of a task: the envelope plus lifecycle state
// and, once finished, the result or error.
type Record struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Queue       Queue           `json:"queue"`
	Status      Status          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	GroupID     string          `json:"group_id,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Retries     int             `json:"retries"`
}

// recordFromTask builds the initial pending record for a submitted task.
func recordFromTask(t *Task) *Record {
	return &Record{
		ID:          t.ID,
		Type:        t.Type,
		Queue:       t.Queue,
		Status:      StatusPending,
		Payload:     t.Payload,
		GroupID:     t.GroupID,
		SubmittedAt: t.SubmittedAt,
		Retries:     t.Retries,
	}
}

// Duration returns the run time for finished tasks, zero otherwise.
func (r *Record) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}
