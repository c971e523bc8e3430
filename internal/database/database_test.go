// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package database

import (
	"context"
	"testing"
	"time"

	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleObservations(n int) []models.Observation {
	now := time.Now().UTC()
	out := make([]models.Observation, 0, n)
	params := []struct {
		name, unit string
		value      float64
	}{
		{"sea_temperature", "celsius", 24.3},
		{"salinity", "psu", 35.2},
		{"chlorophyll_a", "mg/m3", 0.8},
	}
	for i := 0; i < n; i++ {
		p := params[i%len(params)]
		out = append(out, models.Observation{
			StationID:   "ST-LUA-001",
			Parameter:   p.name,
			Value:       p.value + float64(i)*0.01,
			Unit:        p.unit,
			Latitude:    -8.8,
			Longitude:   13.2,
			DepthMeters: 5,
			ObservedAt:  now.Add(-time.Duration(i) * time.Minute),
			Source:      "test",
		})
	}
	return out
}

func TestInsertAndQueryObservations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n, err := db.InsertObservations(ctx, sampleObservations(9))
	if err != nil {
		t.Fatalf("InsertObservations failed: %v", err)
	}
	if n != 9 {
		t.Errorf("inserted = %d, want 9", n)
	}

	latest, err := db.LatestObservations(ctx, 5)
	if err != nil {
		t.Fatalf("LatestObservations failed: %v", err)
	}
	if len(latest) != 5 {
		t.Fatalf("got %d observations, want 5", len(latest))
	}
	// Newest first.
	for i := 1; i < len(latest); i++ {
		if latest[i].ObservedAt.After(latest[i-1].ObservedAt) {
			t.Errorf("observations out of order at index %d", i)
		}
	}
}

func TestInsertEmptyBatch(t *testing.T) {
	db := newTestDB(t)

	n, err := db.InsertObservations(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch should not error: %v", err)
	}
	if n != 0 {
		t.Errorf("inserted = %d, want 0", n)
	}
}

func TestCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertObservations(ctx, sampleObservations(6)); err != nil {
		t.Fatal(err)
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.Observations != 6 {
		t.Errorf("observations = %d, want 6", counts.Observations)
	}
	if counts.Observations24h != 6 {
		t.Errorf("observations24h = %d, want 6", counts.Observations24h)
	}
}

func TestLatestConditions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertObservations(ctx, sampleObservations(3)); err != nil {
		t.Fatal(err)
	}

	rt, err := db.LatestConditions(ctx)
	if err != nil {
		t.Fatalf("LatestConditions failed: %v", err)
	}
	if rt.SeaTemperatureC == 0 {
		t.Error("sea temperature should be populated")
	}
	if rt.SalinityPSU == 0 {
		t.Error("salinity should be populated")
	}
	if rt.StationID == "" {
		t.Error("station ID should be populated")
	}
}

func TestListTables(t *testing.T) {
	db := newTestDB(t)

	tables, err := db.ListTables(context.Background(), "main")
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}

	found := map[string]models.TableInfo{}
	for _, tbl := range tables {
		found[tbl.Name] = tbl
	}
	for _, want := range []string{"observations", "stations", "species", "ml_predictions"} {
		info, ok := found[want]
		if !ok {
			t.Errorf("catalog missing table %s", want)
			continue
		}
		if info.ColumnCount == 0 {
			t.Errorf("table %s reports zero columns", want)
		}
	}
}

func TestSaveAndListPredictions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := &PredictionResult{
		TaskID:      "task-1",
		SpeciesID:   "SP-001",
		Model:       "maxent",
		MinLat:      -18,
		MaxLat:      -4,
		MinLon:      8,
		MaxLon:      14,
		Suitability: 0.72,
		CellCount:   1024,
	}
	if err := db.SavePrediction(ctx, p); err != nil {
		t.Fatalf("SavePrediction failed: %v", err)
	}
	if p.ID == "" {
		t.Error("SavePrediction should assign an ID")
	}

	got, err := db.RecentPredictions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentPredictions failed: %v", err)
	}
	if len(got) != 1 || got[0].SpeciesID != "SP-001" {
		t.Errorf("unexpected predictions: %+v", got)
	}
}

func TestPurgeObservationsBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertObservations(ctx, sampleObservations(4)); err != nil {
		t.Fatal(err)
	}

	n, err := db.PurgeObservationsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeObservationsBefore failed: %v", err)
	}
	if n != 4 {
		t.Errorf("purged = %d, want 4", n)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestFallbackTables(t *testing.T) {
	tables := FallbackTables("public")
	if len(tables) != 4 {
		t.Fatalf("fallback catalog has %d tables, want 4", len(tables))
	}
	for _, tbl := range tables {
		if tbl.Schema != "public" {
			t.Errorf("fallback table %s has schema %q", tbl.Name, tbl.Schema)
		}
	}
}
