// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for recall.
package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "memory.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Memory tunes the conversation buffer, the semantic store and the
	// answer pipeline. Zero values fall back to defaults.
	Memory MemoryConfig `yaml:"memory"`

	// Telemetry enables OTLP trace export when set.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// MemoryConfig groups the memory pipeline settings.
type MemoryConfig struct {
	Buffer      BufferConfig      `yaml:"buffer"`
	Store       StoreConfig       `yaml:"store"`
	Planner     PlannerConfig     `yaml:"planner"`
	Composer    ComposerConfig    `yaml:"composer"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// BufferConfig controls short-term conversation retention.
type BufferConfig struct {
	WindowSize int           `yaml:"window_size"`
	TTL        time.Duration `yaml:"ttl"`
}

// StoreConfig controls long-term memory search.
type StoreConfig struct {
	// MinScore drops search results that share no term with the question
	// and score below it. Range [0,1].
	MinScore *float64 `yaml:"min_score,omitempty"`
}

// PlannerConfig controls question classification.
type PlannerConfig struct {
	// Classifier enables the LLM classifier when a provider is loaded.
	Classifier bool          `yaml:"classifier"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ComposerConfig controls answer generation.
type ComposerConfig struct {
	// Generator enables LLM answer generation when a provider is loaded.
	Generator bool          `yaml:"generator"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

// MaintenanceConfig holds cron schedules for background jobs. An empty
// schedule keeps the default; "off" disables the job.
type MaintenanceConfig struct {
	SweepSchedule     string `yaml:"sweep_schedule"`
	ReconcileSchedule string `yaml:"reconcile_schedule"`
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}
