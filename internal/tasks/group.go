// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package tasks

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// GroupTracker follows sets of related tasks to completion. Completion
// is detected on the result-store write path when the last member
// reaches a terminal status; nothing ever blocks waiting on a member,
// so a worker can safely submit a group and move on.
type GroupTracker struct {
	mu     sync.Mutex
	groups map[string]*groupState
}

type groupState struct {
	id        string
	remaining map[string]struct{}
	records   []*Record
	createdAt time.Time
	onDone    func(records []*Record)
}

// GroupStatus is the queryable view of a tracked group.
type GroupStatus struct {
	ID        string    `json:"id"`
	Total     int       `json:"total"`
	Remaining int       `json:"remaining"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

// NewGroupTracker builds an empty tracker. Wire it to a store with
// store.OnTerminal(tracker.Observe).
func NewGroupTracker() *GroupTracker {
	return &GroupTracker{groups: make(map[string]*groupState)}
}

// Register starts tracking a set of task IDs as one group. The callback
// fires once, on the goroutine that completes the last member, with the
// terminal records in completion order. Returns the group ID.
func (g *GroupTracker) Register(taskIDs []string, onDone func(records []*Record)) string {
	id := uuid.New().String()

	state := &groupState{
		id:        id,
		remaining: make(map[string]struct{}, len(taskIDs)),
		createdAt: time.Now().UTC(),
		onDone:    onDone,
	}
	for _, tid := range taskIDs {
		state.remaining[tid] = struct{}{}
	}

	g.mu.Lock()
	g.groups[id] = state
	g.mu.Unlock()
	return id
}

// Observe is the TerminalListener hook. It records the member and fires
// the completion callback when the group drains.
func (g *GroupTracker) Observe(rec *Record) {
	if rec.GroupID == "" {
		return
	}

	g.mu.Lock()
	state, ok := g.groups[rec.GroupID]
	if !ok {
		g.mu.Unlock()
		return
	}
	if _, member := state.remaining[rec.ID]; !member {
		g.mu.Unlock()
		return
	}
	delete(state.remaining, rec.ID)
	state.records = append(state.records, rec)
	done := len(state.remaining) == 0
	if done {
		delete(g.groups, rec.GroupID)
	}
	g.mu.Unlock()

	if done && state.onDone != nil {
		state.onDone(state.records)
	}
}

// Status returns the current state of a group, or ok=false once the
// group has completed and been dropped.
func (g *GroupTracker) Status(id string) (GroupStatus, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.groups[id]
	if !ok {
		return GroupStatus{}, false
	}
	total := len(state.remaining) + len(state.records)
	return GroupStatus{
		ID:        id,
		Total:     total,
		Remaining: len(state.remaining),
		Done:      false,
		CreatedAt: state.createdAt,
	}, true
}

// Active returns the number of groups still tracked.
func (g *GroupTracker) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.groups)
}
