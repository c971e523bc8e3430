// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package tasks

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func newTestStore(t *testing.T) *ResultStore {
	t.Helper()
	store, err := NewResultStore("", time.Hour)
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func pendingRecord(t *testing.T, store *ResultStore, taskType string, queue Queue) *Record {
	t.Helper()
	task := NewTask(taskType, queue, nil)
	rec := recordFromTask(task)
	if err := store.Put(rec); err != nil {
		t.Fatalf("failed to store record: %v", err)
	}
	return rec
}

func TestRecordLifecycle(t *testing.T) {
	store := newTestStore(t)
	rec := pendingRecord(t, store, TypeMLPredict, QueueHigh)

	running, err := store.MarkRunning(rec.ID)
	if err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if running.Status != StatusRunning || running.StartedAt == nil {
		t.Errorf("unexpected running record: %+v", running)
	}

	done, err := store.MarkSucceeded(rec.ID, json.RawMessage(`{"suitability":0.7}`))
	if err != nil {
		t.Fatalf("MarkSucceeded failed: %v", err)
	}
	if done.Status != StatusSucceeded || done.FinishedAt == nil {
		t.Errorf("unexpected terminal record: %+v", done)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Result) != `{"suitability":0.7}` {
		t.Errorf("result not persisted: %s", got.Result)
	}
}

func TestGetUnknownTask(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Get("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestRecordAttemptKeepsStatus(t *testing.T) {
	store := newTestStore(t)
	rec := pendingRecord(t, store, TypeIngest, QueueDefault)

	if _, err := store.MarkRunning(rec.ID); err != nil {
		t.Fatal(err)
	}
	got, err := store.RecordAttempt(rec.ID, errors.New("connection refused"))
	if err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("status = %s, attempts must not change status", got.Status)
	}
	if got.Retries != 1 || got.Error == "" {
		t.Errorf("attempt not recorded: %+v", got)
	}
}

func TestTerminalListener(t *testing.T) {
	store := newTestStore(t)

	var seen []string
	store.OnTerminal(func(rec *Record) {
		seen = append(seen, rec.ID+":"+string(rec.Status))
	})

	rec := pendingRecord(t, store, TypeReport, QueueLow)
	if len(seen) != 0 {
		t.Fatal("pending write must not fire terminal listeners")
	}

	if _, err := store.MarkFailed(rec.ID, errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != rec.ID+":failed" {
		t.Errorf("listener calls = %v", seen)
	}
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)

	a := pendingRecord(t, store, TypeMLPredict, QueueHigh)
	pendingRecord(t, store, TypeIngest, QueueDefault)
	c := pendingRecord(t, store, TypeMLPredict, QueueDefault)
	if _, err := store.MarkRunning(c.ID); err != nil {
		t.Fatal(err)
	}

	byType, err := store.List(ListFilter{Type: TypeMLPredict})
	if err != nil {
		t.Fatal(err)
	}
	if len(byType) != 2 {
		t.Errorf("type filter returned %d records, want 2", len(byType))
	}

	byStatus, err := store.List(ListFilter{Status: StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if len(byStatus) != 2 {
		t.Errorf("status filter returned %d records, want 2", len(byStatus))
	}

	byQueue, err := store.List(ListFilter{Queue: QueueHigh})
	if err != nil {
		t.Fatal(err)
	}
	if len(byQueue) != 1 || byQueue[0].ID != a.ID {
		t.Errorf("queue filter returned %+v", byQueue)
	}

	limited, err := store.List(ListFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored, got %d records", len(limited))
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		pendingRecord(t, store, TypeMLPredict, QueueHigh)
	}
	rec := pendingRecord(t, store, TypeIngest, QueueDefault)
	if _, err := store.MarkRunning(rec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.MarkSucceeded(rec.ID, nil); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[QueueHigh].Pending != 3 {
		t.Errorf("high pending = %d, want 3", stats[QueueHigh].Pending)
	}
	if stats[QueueDefault].Succeeded != 1 {
		t.Errorf("default succeeded = %d, want 1", stats[QueueDefault].Succeeded)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	rec := pendingRecord(t, store, TypeMLPredict, QueueLow)

	if err := store.Delete(rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(rec.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("deleted record still readable: %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		task := NewTask(TypeIngest, QueueDefault, nil)
		task.SubmittedAt = task.SubmittedAt.Add(time.Duration(i) * time.Second)
		task.ID = fmt.Sprintf("task-%d", i)
		if err := store.Put(recordFromTask(task)); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.List(ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if records[0].ID != "task-4" {
		t.Errorf("first record = %s, want newest submission", records[0].ID)
	}
}
