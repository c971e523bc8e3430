// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package models

import (
	"time"
)

// Observation is a single oceanographic measurement taken at a station
// (or by a drifting platform) inside the Angola ZEE.
type Observation struct {
	ID          string    `json:"id"`
	StationID   string    `json:"station_id" validate:"required,max=64"`
	Parameter   string    `json:"parameter" validate:"required,oneof=sea_temperature salinity chlorophyll_a oxygen ph turbidity"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit" validate:"required,max=32"`
	Latitude    float64   `json:"latitude" validate:"min=-90,max=90"`
	Longitude   float64   `json:"longitude" validate:"min=-180,max=180"`
	DepthMeters float64   `json:"depth_meters" validate:"min=0"`
	QualityFlag int       `json:"quality_flag" validate:"min=0,max=9"`
	ObservedAt  time.Time `json:"observed_at" validate:"required"`
	Source      string    `json:"source,omitempty"`
}

// Station is a fixed monitoring station.
type Station struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Region    string    `json:"region"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Species is a monitored species record used by the distribution models.
type Species struct {
	ID             string `json:"id"`
	ScientificName string `json:"scientific_name"`
	CommonName     string `json:"common_name"`
	Category       string `json:"category"`
	Protected      bool   `json:"protected"`
}

// TableInfo describes one table in the analytics catalog, served by
// /database/tables/{schema}.
type TableInfo struct {
	Name          string `json:"name"`
	Schema        string `json:"schema"`
	ColumnCount   int    `json:"column_count"`
	EstimatedRows int64  `json:"estimated_rows"`
}

// TableListing wraps the catalog response.
type TableListing struct {
	Schema string      `json:"schema"`
	Tables []TableInfo `json:"tables"`
	Total  int         `json:"total"`
}

// BucketInfo describes one object-storage bucket, served by /storage/buckets.
type BucketInfo struct {
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	Objects    int64     `json:"objects"`
	SizeBytes  int64     `json:"size_bytes"`
	SizeCapped bool      `json:"size_capped,omitempty"`
}

// BucketListing wraps the storage response.
type BucketListing struct {
	Buckets []BucketInfo `json:"buckets"`
	Total   int          `json:"total"`
}

// ServiceStatus is one entry in the overview services block.
type ServiceStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// SystemStatus summarizes overall platform health for the dashboard.
type SystemStatus struct {
	Status       string  `json:"status"`
	UptimeSecond int64   `json:"uptime_seconds"`
	Version      string  `json:"version"`
	HealthScore  float64 `json:"health_score"`
}

// ZEESummary summarizes monitoring coverage of the Angola ZEE.
type ZEESummary struct {
	AreaKM2         float64 `json:"area_km2"`
	ActiveStations  int     `json:"active_stations"`
	TotalStations   int     `json:"total_stations"`
	SpeciesTracked  int     `json:"species_tracked"`
	ObservationsTot int64   `json:"observations_total"`
}

// RealTimeData carries the latest measurement snapshot for the overview
// widget and for data_update broadcasts.
type RealTimeData struct {
	SeaTemperatureC float64   `json:"sea_temperature_c"`
	SalinityPSU     float64   `json:"salinity_psu"`
	ChlorophyllMgM3 float64   `json:"chlorophyll_mg_m3"`
	SampledAt       time.Time `json:"sampled_at"`
	StationID       string    `json:"station_id,omitempty"`
}

// CopernicusStatus reports the upstream marine-data feed state.
type CopernicusStatus struct {
	Status      string    `json:"status"`
	LastFetchAt time.Time `json:"last_fetch_at,omitempty"`
	Fallback    bool      `json:"fallback,omitempty"`
}

// DashboardOverview is the payload of GET /api/dashboard/overview.
type DashboardOverview struct {
	SystemStatus SystemStatus     `json:"system_status"`
	ZEEAngola    ZEESummary       `json:"zee_angola"`
	RealTimeData RealTimeData     `json:"real_time_data"`
	Copernicus   CopernicusStatus `json:"copernicus_status"`
	Services     []ServiceStatus  `json:"services"`
}

// DashboardStats is the payload of GET /api/dashboard/stats.
type DashboardStats struct {
	Observations24h int64     `json:"observations_24h"`
	TasksQueued     int64     `json:"tasks_queued"`
	TasksSucceeded  int64     `json:"tasks_succeeded"`
	TasksFailed     int64     `json:"tasks_failed"`
	PredictionsRun  int64     `json:"predictions_run"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// PredictionRequest is the payload of POST /async/ml/predictions.
type PredictionRequest struct {
	SpeciesID string   `json:"species_id" validate:"required,max=64"`
	Model     string   `json:"model" validate:"omitempty,oneof=maxent random_forest ensemble"`
	Bounds    *GeoBox  `json:"bounds,omitempty"`
	Queue     string   `json:"queue" validate:"omitempty,oneof=high default low"`
	Features  []string `json:"features,omitempty" validate:"max=32,dive,max=64"`
}

// PredictionBatchRequest is the payload of POST /async/ml/predictions/batch.
// One model run is fanned out per species and tracked as a group.
type PredictionBatchRequest struct {
	SpeciesIDs []string `json:"species_ids" validate:"required,min=1,max=50,dive,required,max=64"`
	Model      string   `json:"model" validate:"omitempty,oneof=maxent random_forest ensemble"`
	Bounds     *GeoBox  `json:"bounds,omitempty"`
	Queue      string   `json:"queue" validate:"omitempty,oneof=high default low"`
	Features   []string `json:"features,omitempty" validate:"max=32,dive,max=64"`
}

// GeoBox is a latitude/longitude bounding box. Defaults to the Angola ZEE
// when omitted from a prediction request.
type GeoBox struct {
	MinLat float64 `json:"min_lat" validate:"min=-90,max=90"`
	MaxLat float64 `json:"max_lat" validate:"min=-90,max=90"`
	MinLon float64 `json:"min_lon" validate:"min=-180,max=180"`
	MaxLon float64 `json:"max_lon" validate:"min=-180,max=180"`
}

// AngolaZEE is the default bounding box for prediction and ingest jobs.
// Covers the mainland plus Cabinda exclave waters.
var AngolaZEE = GeoBox{MinLat: -18.02, MaxLat: -4.38, MinLon: 8.20, MaxLon: 13.85}
