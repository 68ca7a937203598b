// Package config provides the configuration schema for the boundary plane
// data plane: the enforcement HTTP surface, its embedding/anchor-repository
// backends, and the default operating parameters for the deployment
// manager, refresh scheduler, and telemetry recorder.
package config

import (
	"github.com/spf13/viper"
)

// PlaneConfig is the top-level configuration for the enforcement service.
type PlaneConfig struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Embedding configures the outbound call to the embedding service that
	// turns an IntentEvent into a 128-d vector.
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`

	// AnchorRepository configures where rule anchor definitions are loaded
	// from: in-memory (development/testing) or a durable sqlite store.
	AnchorRepository AnchorRepositoryConfig `yaml:"anchor_repository" mapstructure:"anchor_repository"`

	// Thresholds holds per-slot similarity thresholds, defaulted and
	// validated here. The enforcement path does not read them: a rule that
	// sets no thresholds of its own uses rule.DefaultThresholds.
	Thresholds ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`

	// Telemetry configures the decision recorder's segment rotation and
	// backpressure behavior.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Deployment holds health thresholds for rolled-out versions, validated
	// here. Deployments created through the HTTP API use
	// deployment.DefaultHealthThresholds; these values are not passed to them.
	Deployment DeploymentConfig `yaml:"deployment" mapstructure:"deployment"`

	// Refresh configures the scheduled anchor-repository refresh loop.
	Refresh RefreshConfig `yaml:"refresh" mapstructure:"refresh"`

	// RateLimit configures the in-memory GCRA limiter backing
	// rule.ClassRateLimit candidates.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Security configures the admin API surface's authentication and the
	// enforcement endpoint's CORS allowlist.
	Security SecurityConfig `yaml:"security" mapstructure:"security"`

	// FailOpen selects the Enforcement Engine's default-decision polarity
	// when no rule short-circuits: false (the default) blocks, true allows.
	FailOpen bool `yaml:"fail_open" mapstructure:"fail_open"`

	// DevMode enables development features (verbose logging, an in-memory
	// anchor repository regardless of AnchorRepository.Driver, etc).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// EmbeddingConfig configures the outbound embedding service call.
type EmbeddingConfig struct {
	// Endpoint is the base URL of the embedding service (e.g.,
	// "http://localhost:9100").
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"required,url"`

	// ConnectTimeout bounds the TCP/TLS handshake (e.g., "500ms").
	// Defaults to "500ms" if not specified.
	ConnectTimeout string `yaml:"connect_timeout" mapstructure:"connect_timeout" validate:"omitempty"`

	// RequestTimeout bounds the full request, including encode (e.g.,
	// "1500ms"). Defaults to "1500ms" if not specified.
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty"`
}

// AnchorRepositoryConfig configures the rule anchor storage backend.
type AnchorRepositoryConfig struct {
	// Driver selects the backend: "memory" or "sqlite".
	// Defaults to "memory" if empty.
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=memory sqlite"`

	// DSN is the sqlite data source name (e.g., "/var/lib/boundaryplane/anchors.db").
	// Required when Driver is "sqlite".
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// ThresholdsConfig configures the default per-slot similarity thresholds,
// in action/resource/data/risk slot order.
type ThresholdsConfig struct {
	Action   float32 `yaml:"action" mapstructure:"action" validate:"gte=0,lte=1"`
	Resource float32 `yaml:"resource" mapstructure:"resource" validate:"gte=0,lte=1"`
	Data     float32 `yaml:"data" mapstructure:"data" validate:"gte=0,lte=1"`
	Risk     float32 `yaml:"risk" mapstructure:"risk" validate:"gte=0,lte=1"`
}

// Array returns the thresholds in the [4]float32 slot order the kernel
// expects (action, resource, data, risk).
func (t ThresholdsConfig) Array() [4]float32 {
	return [4]float32{t.Action, t.Resource, t.Data, t.Risk}
}

// TelemetryConfig configures the decision recorder.
type TelemetryConfig struct {
	// MaxRecordsPerSegment is the record count at which a segment rotates.
	// Defaults to 50000 if zero.
	MaxRecordsPerSegment int `yaml:"max_records_per_segment" mapstructure:"max_records_per_segment" validate:"omitempty,min=1"`

	// Backpressure selects behavior once MaxBacklogSegments is exceeded:
	// "block_then_drop" or "spill_to_compact". Defaults to
	// "block_then_drop" if empty.
	Backpressure string `yaml:"backpressure" mapstructure:"backpressure" validate:"omitempty,oneof=block_then_drop spill_to_compact"`

	// MaxBacklogSegments is the number of retained segments before the
	// backpressure policy applies. 0 selects the recorder's default of ten
	// segments.
	MaxBacklogSegments int `yaml:"max_backlog_segments" mapstructure:"max_backlog_segments" validate:"omitempty,min=0"`
}

// DeploymentConfig configures the default health thresholds applied to a
// rolled-out rule version.
type DeploymentConfig struct {
	// MaxErrorRate is the fraction of failed evaluations, above which a
	// version is considered unhealthy (e.g., 0.05 for 5%).
	MaxErrorRate float64 `yaml:"max_error_rate" mapstructure:"max_error_rate" validate:"gte=0,lte=1"`

	// MaxP99Latency bounds the 99th-percentile decision latency (e.g., "750ms").
	MaxP99Latency string `yaml:"max_p99_latency" mapstructure:"max_p99_latency" validate:"omitempty"`

	// MinSuccessRate is the minimum fraction of non-erroring evaluations.
	MinSuccessRate float64 `yaml:"min_success_rate" mapstructure:"min_success_rate" validate:"gte=0,lte=1"`

	// SustainWindow is how long a breach must persist before an automatic
	// rollback fires (e.g., "30s").
	SustainWindow string `yaml:"sustain_window" mapstructure:"sustain_window" validate:"omitempty"`
}

// RefreshConfig configures the scheduled anchor-repository refresh loop.
type RefreshConfig struct {
	// Disabled turns off the scheduled refresh loop entirely. Event-driven
	// refresh (via the reload command/endpoint) is unaffected.
	Disabled bool `yaml:"disabled" mapstructure:"disabled"`

	// Interval is how often the scheduler refreshes every family from the
	// anchor repository (e.g., "6h"). Defaults to "6h" if empty.
	Interval string `yaml:"interval" mapstructure:"interval" validate:"omitempty"`
}

// RateLimitConfig switches the in-memory limiter for rule.ClassRateLimit
// candidates on and sets its idle-key cleanup. Admission parameters
// (rate/burst/period) come from each rule's FamilyParams, not from here.
type RateLimitConfig struct {
	// Enabled turns on the in-memory rate limiter. When false, rate-limit
	// class rules are treated as always-admitted (spec.md's unconfigured
	// fallback).
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// CleanupInterval is how often the limiter evicts idle keys (e.g., "5m").
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty"`

	// MaxTTL is the idle duration after which a key is evicted (e.g., "1h").
	MaxTTL string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty"`
}

// SecurityConfig configures the HTTP transport's auth and origin controls.
type SecurityConfig struct {
	// AdminAPIKeyHashes are argon2id hashes (as produced by
	// argon2id.CreateHash) authorized to call the Bundle CRUD surface. An
	// empty list leaves that surface unauthenticated (development only).
	AdminAPIKeyHashes []string `yaml:"admin_api_key_hashes" mapstructure:"admin_api_key_hashes"`

	// AllowedOrigins is the Origin allowlist enforced against browser
	// callers of the enforcement endpoint. Empty means no Origin header is
	// accepted (local-only mode).
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// SetDevDefaults applies permissive defaults for development mode. These
// are applied BEFORE validation so required fields are satisfied.
func (c *PlaneConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	if c.Embedding.Endpoint == "" {
		c.Embedding.Endpoint = "http://127.0.0.1:9100"
	}
	c.AnchorRepository.Driver = "memory"
	c.Server.LogLevel = "debug"
}

// SetDefaults applies sensible default values to the configuration.
func (c *PlaneConfig) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Embedding.ConnectTimeout == "" {
		c.Embedding.ConnectTimeout = "500ms"
	}
	if c.Embedding.RequestTimeout == "" {
		c.Embedding.RequestTimeout = "1500ms"
	}

	if c.AnchorRepository.Driver == "" {
		c.AnchorRepository.Driver = "memory"
	}

	if c.Thresholds == (ThresholdsConfig{}) {
		c.Thresholds = ThresholdsConfig{Action: 0.75, Resource: 0.75, Data: 0.75, Risk: 0.75}
	}

	if c.Telemetry.MaxRecordsPerSegment == 0 {
		c.Telemetry.MaxRecordsPerSegment = 50000
	}
	if c.Telemetry.Backpressure == "" {
		c.Telemetry.Backpressure = "block_then_drop"
	}

	if c.Deployment.MaxErrorRate == 0 {
		c.Deployment.MaxErrorRate = 0.05
	}
	if c.Deployment.MaxP99Latency == "" {
		c.Deployment.MaxP99Latency = "750ms"
	}
	if c.Deployment.MinSuccessRate == 0 {
		c.Deployment.MinSuccessRate = 0.95
	}
	if c.Deployment.SustainWindow == "" {
		c.Deployment.SustainWindow = "30s"
	}

	// Refresh interval default — only apply when the user hasn't explicitly
	// set disabled in YAML/env. viper.IsSet distinguishes "not set" (zero
	// value) from "explicitly false".
	if !viper.IsSet("refresh.disabled") {
		c.Refresh.Disabled = false
	}
	if c.Refresh.Interval == "" {
		c.Refresh.Interval = "6h"
	}

	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}
}
