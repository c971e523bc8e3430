// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package audit records security-relevant events: logins, denied
// requests, and administrative actions on the task queue. Events are
// buffered in memory and flushed to a DuckDB table so operators can
// reconstruct who did what to the platform.
package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Authentication events.
	EventLoginSuccess EventType = "auth.login_success"
	EventLoginFailure EventType = "auth.login_failure"
	EventTokenRefresh EventType = "auth.token_refresh"

	// Authorization events.
	EventAccessDenied EventType = "authz.denied"

	// Task queue events.
	EventTaskSubmitted EventType = "task.submitted"
	EventTaskRequeued  EventType = "task.requeued"
	EventDLQPurged     EventType = "task.dlq_purged"

	// Administrative events.
	EventAdminAction EventType = "admin.action"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether the audited action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is a single audit trail entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Outcome   Outcome   `json:"outcome"`

	// Actor is the username or "anonymous".
	Actor    string   `json:"actor"`
	Roles    []string `json:"roles,omitempty"`
	AuthMode string   `json:"auth_mode,omitempty"`

	// SourceIP is the client address from the request.
	SourceIP string `json:"source_ip,omitempty"`

	// Action is a short verb phrase; Details carries event-specific
	// context such as the task ID or queue name.
	Action  string          `json:"action"`
	Details json.RawMessage `json:"details,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}

// Store persists audit events.
type Store interface {
	Save(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
	Count(ctx context.Context, filter QueryFilter) (int64, error)
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter narrows audit queries. Zero values match everything.
type QueryFilter struct {
	Types    []EventType `json:"types,omitempty"`
	Actor    string      `json:"actor,omitempty"`
	Outcome  Outcome     `json:"outcome,omitempty"`
	SourceIP string      `json:"source_ip,omitempty"`
	Since    *time.Time  `json:"since,omitempty"`
	Until    *time.Time  `json:"until,omitempty"`
	Limit    int         `json:"limit,omitempty"`
}

// DefaultQueryFilter returns the filter used when a query specifies
// nothing: the most recent hundred events.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: 100}
}

func (f *QueryFilter) matches(event *Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Actor != "" && event.Actor != f.Actor {
		return false
	}
	if f.Outcome != "" && event.Outcome != f.Outcome {
		return false
	}
	if f.SourceIP != "" && event.SourceIP != f.SourceIP {
		return false
	}
	if f.Since != nil && event.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && event.Timestamp.After(*f.Until) {
		return false
	}
	return true
}
