// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bgapp/config.yaml",
	"/etc/bgapp/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults are
// layered first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8085,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/bgapp.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = runtime.NumCPU()
			SeedDemo:  false,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			MaxMemory:      1 << 30,  // 1GB
			MaxStore:       10 << 30, // 10GB
			RetentionDays:  7,
			DurableName:    "bgapp-worker",
			QueueGroup:     "workers",
			ResultStoreDir: "/data/task-results",
			ResultTTL:      7 * 24 * time.Hour,

			WorkersHigh:    4,
			WorkersDefault: 4,
			WorkersLow:     2,

			RouterRetryCount:           3,
			RouterRetryInitialInterval: 100 * time.Millisecond,
			RouterRetryMaxInterval:     10 * time.Second,
			RouterRetryMultiplier:      2.0,
			RouterThrottlePerSecond:    0, // Unlimited
			RouterPoisonQueueEnabled:   true,
			RouterPoisonQueueTopic:     "tasks.poison",
			RouterCloseTimeout:         30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			IngestInterval:   6 * time.Hour,
			CleanupInterval:  24 * time.Hour,
			ReportInterval:   24 * time.Hour,
			JitterFraction:   0.05,
			RunIngestOnStart: false,
		},
		Storage: StorageConfig{
			Enabled:         false,
			Endpoint:        "",
			AccessKey:       "",
			SecretKey:       "",
			UseSSL:          false,
			Region:          "us-east-1",
			ReportBucket:    "bgapp-reports",
			ObjectScanLimit: 10000,
			RequestTimeout:  15 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:        "https://marine.copernicus.eu/api",
			APIKey:         "",
			Timeout:        20 * time.Second,
			RatePerSecond:  2,
			RateBurst:      4,
			BreakerMaxFail: 5,
			BreakerTimeout: 60 * time.Second,
		},
		Security: SecurityConfig{
			AuthMode:          "jwt",
			JWTSecret:         "",
			TokenTTL:          24 * time.Hour,
			RefreshTTL:        7 * 24 * time.Hour,
			AdminUsername:     "",
			AdminPassword:     "",
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
			TrustedProxies:    []string{},

			OIDC: OIDCConfig{
				IssuerURL:    "",
				ClientID:     "",
				ClientSecret: "",
				RolesClaim:   "roles",
				DefaultRoles: []string{"viewer"},
			},
			Casbin: CasbinConfig{
				ModelPath:   "",
				PolicyPath:  "",
				DefaultRole: "viewer",
			},
		},
		API: APIConfig{
			DefaultPageSize:  20,
			MaxPageSize:      100,
			OverviewCacheTTL: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with koanf using layered sources:
//
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if it exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values become slices for known slice fields.
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when sourced from env vars.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.trusted_proxies",
	"security.oidc.default_roles",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings but the config expects
// slices; YAML values are already slices and pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so random environment noise cannot
// pollute the configuration.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> database.path
//   - SCHEDULER_INGEST_INTERVAL -> scheduler.ingest_interval
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",
		"seed_demo_data":    "database.seed_demo_data",

		// NATS / task queue
		"nats_url":              "nats.url",
		"nats_embedded":         "nats.embedded_server",
		"nats_store_dir":        "nats.store_dir",
		"nats_max_memory":       "nats.max_memory",
		"nats_max_store":        "nats.max_store",
		"nats_retention_days":   "nats.stream_retention_days",
		"nats_durable_name":     "nats.durable_name",
		"nats_queue_group":      "nats.queue_group",
		"task_result_store_dir": "nats.result_store_dir",
		"task_result_ttl":       "nats.result_ttl",
		"task_workers_high":     "nats.workers_high",
		"task_workers_default":  "nats.workers_default",
		"task_workers_low":      "nats.workers_low",
		// Router configuration
		"nats_router_retry_count":    "nats.router_retry_count",
		"nats_router_retry_interval": "nats.router_retry_initial_interval",
		"nats_router_retry_max":      "nats.router_retry_max_interval",
		"nats_router_multiplier":     "nats.router_retry_multiplier",
		"nats_router_throttle":       "nats.router_throttle_per_second",
		"nats_router_poison_enabled": "nats.router_poison_queue_enabled",
		"nats_router_poison_topic":   "nats.router_poison_queue_topic",
		"nats_router_close_timeout":  "nats.router_close_timeout",

		// Scheduler
		"scheduler_enabled":          "scheduler.enabled",
		"scheduler_ingest_interval":  "scheduler.ingest_interval",
		"scheduler_cleanup_interval": "scheduler.cleanup_interval",
		"scheduler_report_interval":  "scheduler.report_interval",
		"scheduler_jitter_fraction":  "scheduler.jitter_fraction",
		"scheduler_ingest_on_start":  "scheduler.run_ingest_on_start",

		// Storage (MinIO)
		"minio_enabled":           "storage.enabled",
		"minio_endpoint":          "storage.endpoint",
		"minio_access_key":        "storage.access_key",
		"minio_secret_key":        "storage.secret_key",
		"minio_use_ssl":           "storage.use_ssl",
		"minio_region":            "storage.region",
		"minio_report_bucket":     "storage.report_bucket",
		"minio_object_scan_limit": "storage.object_scan_limit",
		"minio_request_timeout":   "storage.request_timeout",

		// Upstream (Copernicus)
		"copernicus_base_url":        "upstream.base_url",
		"copernicus_api_key":         "upstream.api_key",
		"copernicus_timeout":         "upstream.timeout",
		"copernicus_rate_per_second": "upstream.rate_per_second",
		"copernicus_rate_burst":      "upstream.rate_burst",
		"copernicus_breaker_max":     "upstream.breaker_max_failures",
		"copernicus_breaker_timeout": "upstream.breaker_timeout",

		// Security
		"auth_mode":           "security.auth_mode",
		"jwt_secret":          "security.jwt_secret",
		"token_ttl":           "security.token_ttl",
		"refresh_ttl":         "security.refresh_ttl",
		"admin_username":      "security.admin_username",
		"admin_password":      "security.admin_password",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",
		"trusted_proxies":     "security.trusted_proxies",

		// OIDC (Keycloak)
		"oidc_issuer_url":    "security.oidc.issuer_url",
		"oidc_client_id":     "security.oidc.client_id",
		"oidc_client_secret": "security.oidc.client_secret",
		"oidc_roles_claim":   "security.oidc.roles_claim",
		"oidc_default_roles": "security.oidc.default_roles",

		// Casbin
		"casbin_model_path":   "security.casbin.model_path",
		"casbin_policy_path":  "security.casbin.policy_path",
		"casbin_default_role": "security.casbin.default_role",

		// API
		"api_default_page_size":  "api.default_page_size",
		"api_max_page_size":      "api.max_page_size",
		"api_overview_cache_ttl": "api.overview_cache_ttl",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped.
	return ""
}
