// Package config provides configuration loading for the boundary plane
// data plane.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for boundaryplane.yaml/.yml
// in standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("boundaryplane")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: BOUNDARYPLANE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("BOUNDARYPLANE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a boundaryplane config
// file with an explicit YAML extension (.yaml or .yml). This prevents
// Viper from matching the binary "boundaryplane" (no extension) in the
// current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".boundaryplane"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "boundaryplane"))
		}
	} else {
		paths = append(paths, "/etc/boundaryplane")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for
// boundaryplane.yaml or .yml. Returns the full path of the first match, or
// empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "boundaryplane"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every PlaneConfig key for environment variable
// support. Example: BOUNDARYPLANE_SERVER_HTTP_ADDR overrides
// server.http_addr.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")

	_ = viper.BindEnv("embedding.endpoint")
	_ = viper.BindEnv("embedding.connect_timeout")
	_ = viper.BindEnv("embedding.request_timeout")

	_ = viper.BindEnv("anchor_repository.driver")
	_ = viper.BindEnv("anchor_repository.dsn")

	_ = viper.BindEnv("thresholds.action")
	_ = viper.BindEnv("thresholds.resource")
	_ = viper.BindEnv("thresholds.data")
	_ = viper.BindEnv("thresholds.risk")

	_ = viper.BindEnv("telemetry.max_records_per_segment")
	_ = viper.BindEnv("telemetry.backpressure")
	_ = viper.BindEnv("telemetry.max_backlog_segments")

	_ = viper.BindEnv("deployment.max_error_rate")
	_ = viper.BindEnv("deployment.max_p99_latency")
	_ = viper.BindEnv("deployment.min_success_rate")
	_ = viper.BindEnv("deployment.sustain_window")

	_ = viper.BindEnv("refresh.disabled")
	_ = viper.BindEnv("refresh.interval")

	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.cleanup_interval")
	_ = viper.BindEnv("rate_limit.max_ttl")

	_ = viper.BindEnv("security.admin_api_key_hashes")
	_ = viper.BindEnv("security.allowed_origins")

	_ = viper.BindEnv("fail_open")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the PlaneConfig.
func LoadConfig() (*PlaneConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg PlaneConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use this when CLI flags may override
// DevMode before validation.
func LoadConfigRaw() (*PlaneConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg PlaneConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found (env vars
// only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
