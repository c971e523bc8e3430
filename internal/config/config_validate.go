// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package config

import (
	"fmt"
)

// Validate checks the configuration for internal consistency. It is
// called by Load after all layers are merged, so every error here refers
// to the effective configuration, not a partial layer.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("server.environment must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url must not be empty")
	}
	if c.NATS.WorkersHigh < 1 || c.NATS.WorkersDefault < 1 || c.NATS.WorkersLow < 1 {
		return fmt.Errorf("nats worker counts must be >= 1 (high=%d default=%d low=%d)",
			c.NATS.WorkersHigh, c.NATS.WorkersDefault, c.NATS.WorkersLow)
	}
	if c.NATS.RouterRetryCount < 0 {
		return fmt.Errorf("nats.router_retry_count must be >= 0, got %d", c.NATS.RouterRetryCount)
	}
	if c.NATS.RouterRetryMultiplier < 1 {
		return fmt.Errorf("nats.router_retry_multiplier must be >= 1, got %g", c.NATS.RouterRetryMultiplier)
	}
	if c.NATS.ResultTTL <= 0 {
		return fmt.Errorf("nats.result_ttl must be positive, got %s", c.NATS.ResultTTL)
	}
	return nil
}

// validateScheduler enforces the one-minute interval floor. A job firing
// faster than its configured interval is a configuration error, never a
// runtime surprise.
func (c *Config) validateScheduler() error {
	if !c.Scheduler.Enabled {
		return nil
	}
	if c.Scheduler.IngestInterval < MinInterval {
		return fmt.Errorf("scheduler.ingest_interval must be >= %s, got %s", MinInterval, c.Scheduler.IngestInterval)
	}
	if c.Scheduler.CleanupInterval < MinInterval {
		return fmt.Errorf("scheduler.cleanup_interval must be >= %s, got %s", MinInterval, c.Scheduler.CleanupInterval)
	}
	if c.Scheduler.ReportInterval < MinInterval {
		return fmt.Errorf("scheduler.report_interval must be >= %s, got %s", MinInterval, c.Scheduler.ReportInterval)
	}
	if c.Scheduler.JitterFraction < 0 || c.Scheduler.JitterFraction > 0.5 {
		return fmt.Errorf("scheduler.jitter_fraction must be in [0, 0.5], got %g", c.Scheduler.JitterFraction)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint must be set when storage is enabled")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return fmt.Errorf("storage.access_key and storage.secret_key must be set when storage is enabled")
	}
	if c.Storage.ObjectScanLimit < 0 {
		return fmt.Errorf("storage.object_scan_limit must be >= 0, got %d", c.Storage.ObjectScanLimit)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 bytes when auth_mode is jwt, got %d", len(c.Security.JWTSecret))
		}
		if c.Security.AdminUsername == "" || c.Security.AdminPassword == "" {
			return fmt.Errorf("security.admin_username and security.admin_password must be set when auth_mode is jwt")
		}
	case "oidc":
		if c.Security.OIDC.IssuerURL == "" {
			return fmt.Errorf("security.oidc.issuer_url must be set when auth_mode is oidc")
		}
		if c.Security.OIDC.ClientID == "" {
			return fmt.Errorf("security.oidc.client_id must be set when auth_mode is oidc")
		}
	case "basic":
		if c.Security.AdminUsername == "" || c.Security.AdminPassword == "" {
			return fmt.Errorf("security.admin_username and security.admin_password must be set when auth_mode is basic")
		}
	case "none":
		if c.IsProduction() {
			return fmt.Errorf("auth_mode none is not allowed in production")
		}
	default:
		return fmt.Errorf("security.auth_mode must be one of jwt, oidc, basic, none; got %q", c.Security.AuthMode)
	}

	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("security.rate_limit_reqs must be >= 1, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive, got %s", c.Security.RateLimitWindow)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "":
	default:
		return fmt.Errorf("logging.level %q is not a recognized level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console", "":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
