// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package audit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSaveAndQuery(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	for _, e := range []*Event{
		{ID: "1", Timestamp: time.Now().Add(-2 * time.Hour), Type: EventLoginFailure, Outcome: OutcomeFailure, Actor: "mallory", Action: "login"},
		{ID: "2", Timestamp: time.Now().Add(-time.Hour), Type: EventLoginSuccess, Outcome: OutcomeSuccess, Actor: "admin", Action: "login"},
		{ID: "3", Timestamp: time.Now(), Type: EventDLQPurged, Outcome: OutcomeSuccess, Actor: "admin", Action: "purge dlq"},
	} {
		if err := store.Save(ctx, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	events, err := store.Query(ctx, QueryFilter{Actor: "admin"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events for admin, want 2", len(events))
	}
	if events[0].ID != "3" {
		t.Errorf("expected most recent event first, got %s", events[0].ID)
	}

	count, err := store.Count(ctx, QueryFilter{Types: []EventType{EventLoginFailure}})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("login failure count = %d, want 1", count)
	}
}

func TestMemoryStoreQueryLimit(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_ = store.Save(ctx, &Event{ID: string(rune('a' + i)), Timestamp: time.Now(), Type: EventAdminAction, Actor: "admin", Action: "x"})
	}

	events, err := store.Query(ctx, QueryFilter{Limit: 3})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want limit 3", len(events))
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()
	cutoff := time.Now()

	_ = store.Save(ctx, &Event{ID: "old", Timestamp: cutoff.Add(-time.Hour), Type: EventAdminAction, Actor: "a", Action: "x"})
	_ = store.Save(ctx, &Event{ID: "new", Timestamp: cutoff.Add(time.Hour), Type: EventAdminAction, Actor: "a", Action: "x"})

	deleted, err := store.Delete(ctx, cutoff)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 || store.Len() != 1 {
		t.Errorf("deleted = %d len = %d, want 1 and 1", deleted, store.Len())
	}
}

func TestMemoryStoreEvictsOldestWhenFull(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_ = store.Save(ctx, &Event{ID: "e", Timestamp: time.Now(), Type: EventAdminAction, Actor: "a", Action: "x"})
	}
	if store.Len() > 10 {
		t.Errorf("store grew past cap: %d", store.Len())
	}
}

func TestLoggerRecordFillsDefaults(t *testing.T) {
	store := NewMemoryStore(100)
	logger := NewLogger(store, DefaultConfig())

	logger.Record(&Event{Type: EventLoginSuccess, Outcome: OutcomeSuccess, Actor: "admin", Action: "login"})

	select {
	case event := <-logger.events:
		if event.ID == "" {
			t.Error("expected generated ID")
		}
		if event.Timestamp.IsZero() {
			t.Error("expected generated timestamp")
		}
		if event.Severity != SeverityInfo {
			t.Errorf("severity = %s, want info default", event.Severity)
		}
	default:
		t.Fatal("event was not buffered")
	}
}

func TestLoggerServeFlushesOnShutdown(t *testing.T) {
	store := NewMemoryStore(100)
	logger := NewLogger(store, Config{BufferSize: 10})

	logger.LoginSucceeded("admin", "jwt", "10.0.0.1", "req-1", []string{"admin"})
	logger.LoginFailed("mallory", "10.0.0.2", "req-2")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- logger.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for store.Len() < 2 {
		select {
		case <-deadline:
			t.Fatalf("events not persisted, store has %d", store.Len())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	events, _ := store.Query(context.Background(), QueryFilter{Types: []EventType{EventLoginFailure}})
	if len(events) != 1 || events[0].Actor != "mallory" {
		t.Errorf("unexpected failure events: %+v", events)
	}
}

func TestLoggerDropsWhenBufferFull(t *testing.T) {
	store := NewMemoryStore(100)
	logger := NewLogger(store, Config{BufferSize: 1})

	logger.Record(&Event{Type: EventAdminAction, Actor: "a", Action: "x"})
	logger.Record(&Event{Type: EventAdminAction, Actor: "b", Action: "y"}) // dropped, must not block

	if len(logger.events) != 1 {
		t.Errorf("buffer holds %d events, want 1", len(logger.events))
	}
}
