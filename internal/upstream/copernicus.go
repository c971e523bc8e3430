// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package upstream provides the Copernicus marine-data client used by the
// ingest task and the dashboard's copernicus_status block. Requests are
// rate limited and breaker protected; when the feed is unavailable the
// client serves the documented static payload for the Angola ZEE.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/metrics"
	"github.com/bgapp-platform/bgapp/internal/models"
)

// MarineConditions is one Copernicus sample set for a bounding box.
type MarineConditions struct {
	SeaTemperatureC float64       `json:"sea_temperature_c"`
	SalinityPSU     float64       `json:"salinity_psu"`
	ChlorophyllMgM3 float64       `json:"chlorophyll_mg_m3"`
	Bounds          models.GeoBox `json:"bounds"`
	SampledAt       time.Time     `json:"sampled_at"`
	Fallback        bool          `json:"fallback,omitempty"`
}

// fallbackConditions is served when the feed is unreachable. Values are
// long-term seasonal means for the Benguela/Angola current system.
var fallbackConditions = MarineConditions{
	SeaTemperatureC: 24.5,
	SalinityPSU:     35.2,
	ChlorophyllMgM3: 0.9,
	Bounds:          models.AngolaZEE,
	Fallback:        true,
}

// Client is the Copernicus marine API client.
type Client struct {
	cfg     *config.UpstreamConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*MarineConditions]

	mu          sync.RWMutex
	lastFetchAt time.Time
	lastErr     error
}

// New builds a client from config.
func New(cfg *config.UpstreamConfig) *Client {
	return NewWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout})
}

// NewWithHTTPClient builds a client with a caller-supplied http.Client.
// Used by tests to point at an httptest server.
func NewWithHTTPClient(cfg *config.UpstreamConfig, httpClient *http.Client) *Client {
	settings := gobreaker.Settings{
		Name:    "copernicus",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFail
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, to.String())
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	}

	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: gobreaker.NewCircuitBreaker[*MarineConditions](settings),
	}
}

// FetchConditions returns current marine conditions for the bounding box.
// The second return value reports whether the static fallback payload was
// served because the feed is unavailable.
func (c *Client) FetchConditions(ctx context.Context, box models.GeoBox) (*MarineConditions, bool) {
	conditions, err := c.breaker.Execute(func() (*MarineConditions, error) {
		return c.fetch(ctx, box)
	})

	c.mu.Lock()
	if err == nil {
		c.lastFetchAt = time.Now()
	}
	c.lastErr = err
	c.mu.Unlock()

	if err != nil {
		logging.Warn().Err(err).Msg("Copernicus unavailable, serving fallback conditions")
		metrics.UpstreamRequests.WithLabelValues("conditions", "fallback").Inc()
		fb := fallbackConditions
		fb.Bounds = box
		fb.SampledAt = time.Now().UTC()
		return &fb, true
	}

	return conditions, false
}

func (c *Client) fetch(ctx context.Context, box models.GeoBox) (*MarineConditions, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	start := time.Now()
	defer func() {
		metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
	}()

	endpoint, err := url.Parse(c.cfg.BaseURL + "/conditions")
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base URL: %w", err)
	}
	q := endpoint.Query()
	q.Set("min_lat", fmt.Sprintf("%g", box.MinLat))
	q.Set("max_lat", fmt.Sprintf("%g", box.MaxLat))
	q.Set("min_lon", fmt.Sprintf("%g", box.MinLon))
	q.Set("max_lon", fmt.Sprintf("%g", box.MaxLon))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("conditions", "error").Inc()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequests.WithLabelValues("conditions", "error").Inc()
		return nil, fmt.Errorf("unexpected status %d from upstream", resp.StatusCode)
	}

	var conditions MarineConditions
	if err := json.NewDecoder(resp.Body).Decode(&conditions); err != nil {
		metrics.UpstreamRequests.WithLabelValues("conditions", "error").Inc()
		return nil, fmt.Errorf("failed to decode conditions: %w", err)
	}
	conditions.Bounds = box
	if conditions.SampledAt.IsZero() {
		conditions.SampledAt = time.Now().UTC()
	}

	metrics.UpstreamRequests.WithLabelValues("conditions", "success").Inc()
	return &conditions, nil
}

// Status reports the feed state for the dashboard overview.
func (c *Client) Status() models.CopernicusStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "online"
	fallback := false
	switch {
	case c.breaker.State() == gobreaker.StateOpen:
		status = "offline"
		fallback = true
	case c.lastErr != nil:
		status = "degraded"
		fallback = true
	case c.lastFetchAt.IsZero():
		status = "unknown"
	}

	return models.CopernicusStatus{
		Status:      status,
		LastFetchAt: c.lastFetchAt,
		Fallback:    fallback,
	}
}
