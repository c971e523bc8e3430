// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/bgapp-platform/bgapp/internal/metrics"
	"github.com/bgapp-platform/bgapp/internal/models"
)

// ListTables returns the catalog listing for one schema from
// information_schema, with per-table column counts and estimated row
// counts. Serves GET /database/tables/{schema}.
func (db *DB) ListTables(ctx context.Context, schema string) ([]models.TableInfo, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.table_name,
		       (SELECT count(*) FROM information_schema.columns c
		        WHERE c.table_schema = t.table_schema AND c.table_name = t.table_name),
		       coalesce(d.estimated_size, 0)
		FROM information_schema.tables t
		LEFT JOIN duckdb_tables() d
		       ON d.schema_name = t.table_schema AND d.table_name = t.table_name
		WHERE t.table_schema = ?
		ORDER BY t.table_name`, schema)
	metrics.RecordDBQuery("select", "information_schema", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query table catalog for schema %s: %w", schema, err)
	}
	defer closeQuietly(rows)

	var out []models.TableInfo
	for rows.Next() {
		info := models.TableInfo{Schema: schema}
		if err := rows.Scan(&info.Name, &info.ColumnCount, &info.EstimatedRows); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		out = append(out, info)
	}

	return out, rows.Err()
}

// FallbackTables is the static catalog served when the database is
// unreachable. Mirrors the bootstrap schema so the dashboard widget can
// still render.
func FallbackTables(schema string) []models.TableInfo {
	names := []string{"ml_predictions", "observations", "species", "stations"}
	out := make([]models.TableInfo, 0, len(names))
	for _, n := range names {
		out = append(out, models.TableInfo{Name: n, Schema: schema})
	}
	return out
}
