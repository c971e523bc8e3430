// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DuckDBStore implements Store on the platform database, giving the
// audit trail the same durability as the observation data.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore wraps an open DuckDB handle. Call CreateTable before
// the first Save.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_events table and its indexes.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			outcome TEXT NOT NULL,
			actor TEXT NOT NULL,
			roles JSON,
			auth_mode TEXT,
			source_ip TEXT,
			action TEXT NOT NULL,
			details JSON,
			request_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_events(actor)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create audit schema: %w", err)
		}
	}
	return nil
}

func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	roles := "[]"
	if len(event.Roles) > 0 {
		if data, err := json.Marshal(event.Roles); err == nil {
			roles = string(data)
		}
	}
	var details *string
	if len(event.Details) > 0 {
		d := string(event.Details)
		details = &d
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, timestamp, type, severity, outcome, actor, roles, auth_mode, source_ip, action, details, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp, string(event.Type), string(event.Severity), string(event.Outcome),
		event.Actor, roles, event.AuthMode, event.SourceIP, event.Action, details, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

// Query returns matching events, most recent first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	where, args := buildWhere(filter)
	query := `
		SELECT id, timestamp, type, severity, outcome, actor, roles, auth_mode, source_ip, action, details, request_id
		FROM audit_events` + where + ` ORDER BY timestamp DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			roles    sql.NullString
			authMode sql.NullString
			sourceIP sql.NullString
			details  sql.NullString
			reqID    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &e.Severity, &e.Outcome,
			&e.Actor, &roles, &authMode, &sourceIP, &e.Action, &details, &reqID); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if roles.Valid && roles.String != "" {
			_ = json.Unmarshal([]byte(roles.String), &e.Roles)
		}
		e.AuthMode = authMode.String
		e.SourceIP = sourceIP.String
		if details.Valid {
			e.Details = json.RawMessage(details.String)
		}
		e.RequestID = reqID.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := buildWhere(filter)
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < ?", olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return deleted, nil
}

func buildWhere(filter QueryFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conds = append(conds, "type IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.Actor != "" {
		conds = append(conds, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	if filter.SourceIP != "" {
		conds = append(conds, "source_ip = ?")
		args = append(args, filter.SourceIP)
	}
	if filter.Since != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, *filter.Until)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
