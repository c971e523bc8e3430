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
)

// PredictionResult is a persisted species-distribution model run.
type PredictionResult struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	SpeciesID   string    `json:"species_id"`
	Model       string    `json:"model"`
	MinLat      float64   `json:"min_lat"`
	MaxLat      float64   `json:"max_lat"`
	MinLon      float64   `json:"min_lon"`
	MaxLon      float64   `json:"max_lon"`
	Suitability float64   `json:"suitability"`
	CellCount   int       `json:"cell_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// SavePrediction persists one model run. The ID is assigned when empty.
func (db *DB) SavePrediction(ctx context.Context, p *PredictionResult) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ml_predictions
		 (id, task_id, species_id, model, min_lat, max_lat, min_lon, max_lon, suitability, cell_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TaskID, p.SpeciesID, p.Model,
		p.MinLat, p.MaxLat, p.MinLon, p.MaxLon,
		p.Suitability, p.CellCount, p.CreatedAt)
	metrics.RecordDBQuery("insert", "ml_predictions", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}
	return nil
}

// RecentPredictions returns the latest model runs, newest first.
func (db *DB) RecentPredictions(ctx context.Context, limit int) ([]PredictionResult, error) {
	if limit <= 0 {
		limit = 20
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, task_id, species_id, model, min_lat, max_lat, min_lon, max_lon,
		        suitability, cell_count, created_at
		 FROM ml_predictions
		 ORDER BY created_at DESC
		 LIMIT ?`, limit)
	metrics.RecordDBQuery("select", "ml_predictions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer closeQuietly(rows)

	var out []PredictionResult
	for rows.Next() {
		var p PredictionResult
		if err := rows.Scan(&p.ID, &p.TaskID, &p.SpeciesID, &p.Model,
			&p.MinLat, &p.MaxLat, &p.MinLon, &p.MaxLon,
			&p.Suitability, &p.CellCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, p)
	}

	return out, rows.Err()
}
