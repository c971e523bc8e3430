// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package database

import (
	"context"
	"fmt"
	"time"
)

// createTables bootstraps the analytical schema. All statements are
// idempotent so startup after an unclean shutdown is safe.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE SEQUENCE IF NOT EXISTS observations_seq`,
		`CREATE TABLE IF NOT EXISTS stations (
			id VARCHAR PRIMARY KEY,
			name VARCHAR NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			region VARCHAR NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS species (
			id VARCHAR PRIMARY KEY,
			scientific_name VARCHAR NOT NULL,
			common_name VARCHAR NOT NULL DEFAULT '',
			category VARCHAR NOT NULL DEFAULT '',
			protected BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			id VARCHAR PRIMARY KEY,
			station_id VARCHAR NOT NULL,
			parameter VARCHAR NOT NULL,
			value DOUBLE NOT NULL,
			unit VARCHAR NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			depth_meters DOUBLE NOT NULL DEFAULT 0,
			quality_flag INTEGER NOT NULL DEFAULT 0,
			observed_at TIMESTAMP NOT NULL,
			source VARCHAR NOT NULL DEFAULT '',
			ingested_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ml_predictions (
			id VARCHAR PRIMARY KEY,
			task_id VARCHAR NOT NULL,
			species_id VARCHAR NOT NULL,
			model VARCHAR NOT NULL,
			min_lat DOUBLE NOT NULL,
			max_lat DOUBLE NOT NULL,
			min_lon DOUBLE NOT NULL,
			max_lon DOUBLE NOT NULL,
			suitability DOUBLE NOT NULL,
			cell_count INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_station ON observations (station_id)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_observed_at ON observations (observed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_species ON ml_predictions (species_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}

// seedDemoData inserts a handful of stations and species so a fresh
// development install renders a non-empty dashboard.
func (db *DB) seedDemoData() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT count(*) FROM stations").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	stations := []struct {
		id, name, region string
		lat, lon         float64
	}{
		{"ST-LUA-001", "Luanda Bay", "Luanda", -8.804, 13.232},
		{"ST-BEN-001", "Benguela Coastal", "Benguela", -12.576, 13.405},
		{"ST-NAM-001", "Namibe Upwelling", "Namibe", -15.196, 12.152},
		{"ST-CAB-001", "Cabinda Offshore", "Cabinda", -5.55, 12.19},
	}
	for _, s := range stations {
		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO stations (id, name, latitude, longitude, region) VALUES (?, ?, ?, ?, ?)`,
			s.id, s.name, s.lat, s.lon, s.region); err != nil {
			return err
		}
	}

	species := []struct {
		id, scientific, common, category string
		protected                        bool
	}{
		{"SP-001", "Sardinella aurita", "Round sardinella", "pelagic", false},
		{"SP-002", "Trachurus capensis", "Cape horse mackerel", "pelagic", false},
		{"SP-003", "Merluccius polli", "Benguela hake", "demersal", false},
		{"SP-004", "Caretta caretta", "Loggerhead turtle", "reptile", true},
	}
	for _, s := range species {
		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO species (id, scientific_name, common_name, category, protected) VALUES (?, ?, ?, ?, ?)`,
			s.id, s.scientific, s.common, s.category, s.protected); err != nil {
			return err
		}
	}

	return nil
}
