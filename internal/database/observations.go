// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bgapp-platform/bgapp/internal/metrics"
	"github.com/bgapp-platform/bgapp/internal/models"
)

// InsertObservations stores a batch of observations in one transaction.
// IDs are assigned when empty. Returns the number of rows written.
func (db *DB) InsertObservations(ctx context.Context, batch []models.Observation) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		metrics.RecordDBQuery("insert", "observations", time.Since(start), err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations
		 (id, station_id, parameter, value, unit, latitude, longitude, depth_meters, quality_flag, observed_at, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		metrics.RecordDBQuery("insert", "observations", time.Since(start), err)
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer closeQuietly(stmt)

	inserted := 0
	for i := range batch {
		obs := &batch[i]
		if obs.ID == "" {
			obs.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx,
			obs.ID, obs.StationID, obs.Parameter, obs.Value, obs.Unit,
			obs.Latitude, obs.Longitude, obs.DepthMeters, obs.QualityFlag,
			obs.ObservedAt, obs.Source); err != nil {
			metrics.RecordDBQuery("insert", "observations", time.Since(start), err)
			return inserted, fmt.Errorf("failed to insert observation %s: %w", obs.ID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordDBQuery("insert", "observations", time.Since(start), err)
		return 0, fmt.Errorf("failed to commit observation batch: %w", err)
	}

	metrics.RecordDBQuery("insert", "observations", time.Since(start), nil)
	return inserted, nil
}

// LatestObservations returns the most recent observations, newest first.
func (db *DB) LatestObservations(ctx context.Context, limit int) ([]models.Observation, error) {
	if limit <= 0 {
		limit = 50
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, station_id, parameter, value, unit, latitude, longitude,
		        depth_meters, quality_flag, observed_at, source
		 FROM observations
		 ORDER BY observed_at DESC
		 LIMIT ?`, limit)
	metrics.RecordDBQuery("select", "observations", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest observations: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Observation
	for rows.Next() {
		var obs models.Observation
		if err := rows.Scan(&obs.ID, &obs.StationID, &obs.Parameter, &obs.Value, &obs.Unit,
			&obs.Latitude, &obs.Longitude, &obs.DepthMeters, &obs.QualityFlag,
			&obs.ObservedAt, &obs.Source); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		out = append(out, obs)
	}

	return out, rows.Err()
}

// DashboardCounts holds the aggregate totals for the overview widget.
type DashboardCounts struct {
	Observations    int64
	Observations24h int64
	StationsActive  int
	StationsTotal   int
	Species         int
	Predictions     int64
}

// Counts returns the aggregate totals in a single round trip.
func (db *DB) Counts(ctx context.Context) (*DashboardCounts, error) {
	start := time.Now()

	var c DashboardCounts
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM observations),
			(SELECT count(*) FROM observations WHERE observed_at > now() - INTERVAL 24 HOUR),
			(SELECT count(*) FROM stations WHERE active),
			(SELECT count(*) FROM stations),
			(SELECT count(*) FROM species),
			(SELECT count(*) FROM ml_predictions)
	`).Scan(&c.Observations, &c.Observations24h, &c.StationsActive,
		&c.StationsTotal, &c.Species, &c.Predictions)
	metrics.RecordDBQuery("select", "dashboard_counts", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query dashboard counts: %w", err)
	}

	return &c, nil
}

// LatestConditions returns the most recent value per physical parameter,
// used by the real_time_data overview block. Missing parameters stay zero.
func (db *DB) LatestConditions(ctx context.Context) (*models.RealTimeData, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT parameter, value, station_id, observed_at
		FROM (
			SELECT parameter, value, station_id, observed_at,
			       row_number() OVER (PARTITION BY parameter ORDER BY observed_at DESC) AS rn
			FROM observations
			WHERE parameter IN ('sea_temperature', 'salinity', 'chlorophyll_a')
		)
		WHERE rn = 1`)
	metrics.RecordDBQuery("select", "observations", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest conditions: %w", err)
	}
	defer closeQuietly(rows)

	rt := &models.RealTimeData{}
	for rows.Next() {
		var (
			parameter, stationID string
			value                float64
			observedAt           time.Time
		)
		if err := rows.Scan(&parameter, &value, &stationID, &observedAt); err != nil {
			return nil, fmt.Errorf("failed to scan condition row: %w", err)
		}

		switch parameter {
		case "sea_temperature":
			rt.SeaTemperatureC = value
		case "salinity":
			rt.SalinityPSU = value
		case "chlorophyll_a":
			rt.ChlorophyllMgM3 = value
		}
		if observedAt.After(rt.SampledAt) {
			rt.SampledAt = observedAt
			rt.StationID = stationID
		}
	}

	return rt, rows.Err()
}

// Stations returns all stations.
func (db *DB) Stations(ctx context.Context) ([]models.Station, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, latitude, longitude, region, active, created_at
		 FROM stations ORDER BY id`)
	metrics.RecordDBQuery("select", "stations", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Station
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude, &s.Region, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

// PurgeObservationsBefore deletes observations older than the cutoff.
// Used by the retention cleanup job. Returns the number of deleted rows.
func (db *DB) PurgeObservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM observations WHERE observed_at < ?`, cutoff)
	metrics.RecordDBQuery("delete", "observations", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to purge observations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // row count is informational
	}
	return n, nil
}
