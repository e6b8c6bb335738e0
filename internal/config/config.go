// Package config loads lampcore's YAML configuration, adapted from nexus's
// internal/config package (env-var expansion + strict YAML decoding),
// trimmed to the sections this engine actually needs.
package config

import "time"

// Config is the top-level configuration for lampd.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	LLM       LLMConfig       `yaml:"llm"`
	APIs      APIExecConfig   `yaml:"apis"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the process-level bring-up knobs the core needs
// (everything below the physical device bring-up, which is out of scope).
type ServerConfig struct {
	// ShutdownGrace is decoded from the config file; no other package reads
	// it, and shutdown does not wait on it.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// StorageConfig points at the two JSON files the core persists (spec.md §6).
type StorageConfig struct {
	MemoryPath    string `yaml:"memory_path"`
	PipelinesPath string `yaml:"pipelines_path"`
}

// SchedulerConfig configures the trigger scheduler (spec.md §4.E).
type SchedulerConfig struct {
	// TickInterval is decoded from the config file; no other package reads
	// it (the scheduler arms one timer per rule and does not tick).
	TickInterval time.Duration `yaml:"tick_interval"`

	// DataSourceTimeout is decoded from the config file; no other package
	// reads it, so it does not change the data-source fetch timeout.
	DataSourceTimeout time.Duration `yaml:"data_source_timeout"`
}

// LLMConfig configures the Anthropic-backed LLM parser (spec.md §6).
type LLMConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`

	// RequestTimeout bounds a single parse() call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// APIExecConfig configures the preset API executor (spec.md §6).
type APIExecConfig struct {
	// Timeout bounds a single preset API call (spec.md §5, default 30s).
	Timeout time.Duration `yaml:"timeout"`

	// RatePerSecond and Burst configure the per-process rate limiter shared
	// across all preset API calls.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`

	// WeatherAPIKey is decoded but no other package reads it. GitHubToken
	// holds the credential for the github_repo preset.
	WeatherAPIKey string `yaml:"weather_api_key"`
	GitHubToken   string `yaml:"github_token"`
}

// LoggingConfig configures the observability logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns a Config with sensible defaults for local development.
func Default() Config {
	return Config{
		Server: ServerConfig{ShutdownGrace: 5 * time.Second},
		Storage: StorageConfig{
			MemoryPath:    "./storage/memory.json",
			PipelinesPath: "./storage/pipelines.json",
		},
		Scheduler: SchedulerConfig{
			TickInterval:      250 * time.Millisecond,
			DataSourceTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Model:          "claude-3-5-haiku-latest",
			RequestTimeout: 30 * time.Second,
		},
		APIs: APIExecConfig{
			Timeout:       30 * time.Second,
			RatePerSecond: 2,
			Burst:         5,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}
