// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package api

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bgapp-platform/bgapp/internal/database"
	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/metrics"
	"github.com/bgapp-platform/bgapp/internal/models"
	"github.com/bgapp-platform/bgapp/internal/storage"
)

var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// DatabaseTables is GET /database/tables/{schema}. When the catalog
// query fails the handler logs a warning and serves the static fallback
// listing so the dashboard keeps rendering.
func (h *Handler) DatabaseTables(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	schema := chi.URLParam(r, "schema")
	if !schemaNamePattern.MatchString(schema) {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid schema name", map[string]interface{}{
			"schema": schema,
		})
		return
	}

	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	fallback := false
	var tables []models.TableInfo
	if h.db != nil {
		var err error
		tables, err = h.db.ListTables(ctx, schema)
		if err != nil {
			logging.Warn().Err(err).Str("schema", schema).Msg("Catalog query failed, serving fallback table list")
			fallback = true
		}
	} else {
		fallback = true
	}
	if fallback {
		tables = database.FallbackTables(schema)
		metrics.APIFallbackResponses.WithLabelValues("/database/tables").Inc()
	}

	respondJSON(w, http.StatusOK, models.TableListing{
		Schema: schema,
		Tables: tables,
		Total:  len(tables),
	}, models.Metadata{
		QueryTimeMS: elapsedMS(start),
		Fallback:    fallback,
	})
}

// StorageBuckets is GET /storage/buckets. The gateway handles its own
// fallback; the handler only surfaces the flag and counts it.
func (h *Handler) StorageBuckets(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.buckets == nil {
		metrics.APIFallbackResponses.WithLabelValues("/storage/buckets").Inc()
		fallbackList := append([]models.BucketInfo(nil), storage.FallbackBuckets...)
		respondJSON(w, http.StatusOK, models.BucketListing{
			Buckets: fallbackList,
			Total:   len(fallbackList),
		}, models.Metadata{QueryTimeMS: elapsedMS(start), Fallback: true})
		return
	}

	ctx, cancel := contextWithTimeout(r, 15*time.Second)
	defer cancel()

	buckets, fallback := h.buckets.ListBuckets(ctx)
	if fallback {
		metrics.APIFallbackResponses.WithLabelValues("/storage/buckets").Inc()
	}

	respondJSON(w, http.StatusOK, models.BucketListing{
		Buckets: buckets,
		Total:   len(buckets),
	}, models.Metadata{
		QueryTimeMS: elapsedMS(start),
		Fallback:    fallback,
	})
}
