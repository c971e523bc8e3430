// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/models"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.UpstreamConfig{
		BaseURL:        srv.URL,
		Timeout:        5 * time.Second,
		RatePerSecond:  100,
		RateBurst:      10,
		BreakerMaxFail: 2,
		BreakerTimeout: time.Minute,
	}
	return NewWithHTTPClient(cfg, srv.Client())
}

func TestFetchConditions(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("min_lat") == "" {
			t.Error("bounding box query params missing")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sea_temperature_c": 25.1, "salinity_psu": 35.4, "chlorophyll_mg_m3": 1.2}`))
	})

	got, fallback := c.FetchConditions(context.Background(), models.AngolaZEE)
	if fallback {
		t.Fatal("healthy upstream should not fall back")
	}
	if got.SeaTemperatureC != 25.1 {
		t.Errorf("sea temperature = %g, want 25.1", got.SeaTemperatureC)
	}
	if got.Bounds != models.AngolaZEE {
		t.Errorf("bounds not propagated: %+v", got.Bounds)
	}
	if got.SampledAt.IsZero() {
		t.Error("SampledAt should be defaulted when upstream omits it")
	}

	if s := c.Status(); s.Status != "online" {
		t.Errorf("status = %s, want online", s.Status)
	}
}

func TestFetchConditionsFallbackOnError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	got, fallback := c.FetchConditions(context.Background(), models.AngolaZEE)
	if !fallback {
		t.Fatal("failing upstream must fall back")
	}
	if !got.Fallback {
		t.Error("fallback payload must be flagged")
	}
	if got.SeaTemperatureC != fallbackConditions.SeaTemperatureC {
		t.Errorf("fallback temperature = %g, want %g", got.SeaTemperatureC, fallbackConditions.SeaTemperatureC)
	}

	if s := c.Status(); s.Status != "degraded" && s.Status != "offline" {
		t.Errorf("status = %s, want degraded or offline", s.Status)
	}
}

func TestBreakerOpensAndServesFallback(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	})

	for i := 0; i < 5; i++ {
		c.FetchConditions(context.Background(), models.AngolaZEE)
	}

	// Breaker trips after 2 consecutive failures; later calls bypass HTTP.
	if calls > 3 {
		t.Errorf("breaker did not stop requests, %d calls reached upstream", calls)
	}

	if s := c.Status(); s.Status != "offline" {
		t.Errorf("status = %s, want offline with open breaker", s.Status)
	}
}

func TestStatusUnknownBeforeFirstFetch(t *testing.T) {
	cfg := &config.UpstreamConfig{
		BaseURL:        "http://copernicus.invalid",
		Timeout:        time.Second,
		RatePerSecond:  1,
		RateBurst:      1,
		BreakerMaxFail: 5,
		BreakerTimeout: time.Minute,
	}
	c := New(cfg)

	if s := c.Status(); s.Status != "unknown" {
		t.Errorf("status = %s, want unknown before first fetch", s.Status)
	}
}
