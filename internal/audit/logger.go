// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/bgapp-platform/bgapp/internal/logging"
)

// Config controls the asynchronous audit logger.
type Config struct {
	// BufferSize is the event channel capacity. Events are dropped
	// with a warning when the buffer is full; auditing must never
	// block a request.
	BufferSize int

	// Retention is how long events are kept. The cleanup loop runs
	// daily.
	Retention time.Duration

	// SaveTimeout bounds each store write.
	SaveTimeout time.Duration
}

// DefaultConfig returns production defaults: a 1000-event buffer and
// 90 days of retention.
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		Retention:   90 * 24 * time.Hour,
		SaveTimeout: 5 * time.Second,
	}
}

// Logger buffers audit events and writes them to the store from a
// single background goroutine. It runs under the supervisor tree via
// Serve.
type Logger struct {
	store  Store
	config Config
	events chan *Event
}

// NewLogger creates an audit logger over the given store.
func NewLogger(store Store, config Config) *Logger {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.Retention <= 0 {
		config.Retention = DefaultConfig().Retention
	}
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = DefaultConfig().SaveTimeout
	}
	return &Logger{
		store:  store,
		config: config,
		events: make(chan *Event, config.BufferSize),
	}
}

// Record enqueues an event. It fills in the ID and timestamp when
// missing and never blocks; a full buffer drops the event with a
// warning.
func (l *Logger) Record(event *Event) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	select {
	case l.events <- event:
	default:
		logging.Warn().Str("type", string(event.Type)).Msg("Audit buffer full, event dropped")
	}
}

// Query reads events back from the store.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Serve drains the event buffer into the store and enforces retention.
// It blocks until ctx is cancelled, then flushes whatever is queued.
func (l *Logger) Serve(ctx context.Context) error {
	cleanup := time.NewTicker(24 * time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case event := <-l.events:
			l.save(event)
		case <-cleanup.C:
			l.enforceRetention(ctx)
		case <-ctx.Done():
			l.flush()
			return ctx.Err()
		}
	}
}

func (l *Logger) save(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), l.config.SaveTimeout)
	defer cancel()
	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to persist audit event")
	}
}

func (l *Logger) flush() {
	for {
		select {
		case event := <-l.events:
			l.save(event)
		default:
			return
		}
	}
}

func (l *Logger) enforceRetention(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-l.config.Retention)
	deleted, err := l.store.Delete(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Audit retention cleanup failed")
		return
	}
	if deleted > 0 {
		logging.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Audit retention cleanup")
	}
}

// LoginSucceeded records a successful credential login.
func (l *Logger) LoginSucceeded(username, authMode, sourceIP, requestID string, roles []string) {
	l.Record(&Event{
		Type:      EventLoginSuccess,
		Outcome:   OutcomeSuccess,
		Actor:     username,
		Roles:     roles,
		AuthMode:  authMode,
		SourceIP:  sourceIP,
		Action:    "login",
		RequestID: requestID,
	})
}

// LoginFailed records a rejected credential login.
func (l *Logger) LoginFailed(username, sourceIP, requestID string) {
	l.Record(&Event{
		Type:      EventLoginFailure,
		Severity:  SeverityWarning,
		Outcome:   OutcomeFailure,
		Actor:     username,
		SourceIP:  sourceIP,
		Action:    "login",
		RequestID: requestID,
	})
}

// TaskAction records a task queue operation performed through the API.
func (l *Logger) TaskAction(eventType EventType, actor, action, sourceIP, requestID string, details map[string]interface{}) {
	var raw json.RawMessage
	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			raw = data
		}
	}
	l.Record(&Event{
		Type:      eventType,
		Outcome:   OutcomeSuccess,
		Actor:     actor,
		SourceIP:  sourceIP,
		Action:    action,
		Details:   raw,
		RequestID: requestID,
	})
}
