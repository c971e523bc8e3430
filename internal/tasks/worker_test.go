// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package tasks

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/bgapp-platform/bgapp/internal/models"
)

var errTransient = errors.New("connection refused")

func taskMessage(t *testing.T, task *Task) *message.Message {
	t.Helper()
	data, err := task.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return message.NewMessage(task.ID, data)
}

func TestWorkerHandleSuccess(t *testing.T) {
	store := newTestStore(t)
	db := &fakeDB{}
	worker := NewWorker(store, newTestExecutor(db, nil))

	payload, _ := json.Marshal(models.PredictionRequest{SpeciesID: "SP-001"})
	task := NewTask(TypeMLPredict, QueueHigh, payload)
	if err := store.Put(recordFromTask(task)); err != nil {
		t.Fatal(err)
	}

	if err := worker.Handle(taskMessage(t, task)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	rec, err := store.Get(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusSucceeded {
		t.Errorf("status = %s, want succeeded", rec.Status)
	}
	if len(rec.Result) == 0 {
		t.Error("result payload missing")
	}
}

func TestWorkerHandlePermanentFailure(t *testing.T) {
	store := newTestStore(t)
	worker := NewWorker(store, newTestExecutor(&fakeDB{}, nil))

	task := NewTask(TypeMLPredict, QueueHigh, json.RawMessage(`garbage`))
	if err := store.Put(recordFromTask(task)); err != nil {
		t.Fatal(err)
	}

	// Permanent failures are acked, not retried.
	if err := worker.Handle(taskMessage(t, task)); err != nil {
		t.Fatalf("permanent failure should not propagate: %v", err)
	}

	rec, _ := store.Get(task.ID)
	if rec.Status != StatusFailed || rec.Error == "" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestWorkerHandleTransientFailure(t *testing.T) {
	store := newTestStore(t)
	db := &fakeDB{insertErr: errTransient}
	worker := NewWorker(store, newTestExecutor(db, nil))

	task := NewTask(TypeIngest, QueueDefault, nil)
	if err := store.Put(recordFromTask(task)); err != nil {
		t.Fatal(err)
	}

	// Transient failures propagate so the retry middleware redelivers.
	if err := worker.Handle(taskMessage(t, task)); err == nil {
		t.Fatal("transient failure must propagate")
	}

	rec, _ := store.Get(task.ID)
	if rec.Status != StatusRunning {
		t.Errorf("status = %s, transient failure must not finish the task", rec.Status)
	}
	if rec.Retries != 1 {
		t.Errorf("retries = %d, want 1", rec.Retries)
	}
}

func TestWorkerHandleUnknownRecord(t *testing.T) {
	store := newTestStore(t)
	db := &fakeDB{}
	worker := NewWorker(store, newTestExecutor(db, nil))

	// No pending record in the store: the worker recreates it so the
	// result still lands somewhere.
	payload, _ := json.Marshal(models.PredictionRequest{SpeciesID: "SP-002"})
	task := NewTask(TypeMLPredict, QueueHigh, payload)

	if err := worker.Handle(taskMessage(t, task)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	rec, err := store.Get(task.ID)
	if err != nil {
		t.Fatalf("record not recreated: %v", err)
	}
	if rec.Status != StatusSucceeded {
		t.Errorf("status = %s, want succeeded", rec.Status)
	}
}

func TestWorkerHandleUndecodable(t *testing.T) {
	store := newTestStore(t)
	worker := NewWorker(store, newTestExecutor(&fakeDB{}, nil))

	msg := message.NewMessage("junk", []byte(`{{{`))
	if err := worker.Handle(msg); err != nil {
		t.Errorf("undecodable message should be dropped, got %v", err)
	}
}

func TestWorkerHandlePoison(t *testing.T) {
	store := newTestStore(t)
	worker := NewWorker(store, newTestExecutor(&fakeDB{}, nil))

	task := NewTask(TypeIngest, QueueDefault, nil)
	if err := store.Put(recordFromTask(task)); err != nil {
		t.Fatal(err)
	}

	msg := taskMessage(t, task)
	msg.Metadata.Set(middleware.ReasonForPoisonedKey, "retries exhausted")

	if err := worker.HandlePoison(msg); err != nil {
		t.Fatalf("HandlePoison failed: %v", err)
	}

	rec, _ := store.Get(task.ID)
	if rec.Status != StatusDead {
		t.Errorf("status = %s, want dead", rec.Status)
	}
	if rec.Error != "retries exhausted" {
		t.Errorf("error = %q", rec.Error)
	}
}
