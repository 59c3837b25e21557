package chromem

import (
	"errors"
	"fmt"
)

const (
	embedderHash   = "hash"
	embedderOpenAI = "openai"

	defaultDir       = "index"
	defaultKeyEnv    = "OPENAI_API_KEY"
	defaultCacheSize = 10_000
)

// Config holds the YAML-decoded configuration of the index module.
type Config struct {
	// Path is the persistence directory. Defaults to {DataDir}/index.
	Path string `yaml:"path"`

	// InMemory skips persistence; the store rebuilds the index at startup.
	InMemory bool `yaml:"in_memory"`

	// Compress gzips persisted documents.
	Compress bool `yaml:"compress"`

	// Embedder is "hash" (default, offline) or "openai".
	Embedder string `yaml:"embedder"`

	// Dims is the vector size: hash buckets, or the openai dimensions
	// parameter when set.
	Dims int `yaml:"dims"`

	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`

	// CacheSize bounds the embedding cache in vectors. Negative disables it.
	CacheSize int64 `yaml:"cache_size"`
}

func (c *Config) defaults() {
	if c.Embedder == "" {
		c.Embedder = embedderHash
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultKeyEnv
	}
	if c.CacheSize == 0 {
		c.CacheSize = defaultCacheSize
	}
}

func (c *Config) validate() error {
	var errs []error
	switch c.Embedder {
	case embedderHash, embedderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("embedder must be %q or %q, got %q", embedderHash, embedderOpenAI, c.Embedder))
	}
	if c.Dims < 0 {
		errs = append(errs, fmt.Errorf("dims must not be negative, got %d", c.Dims))
	}
	if c.InMemory && c.Path != "" {
		errs = append(errs, errors.New("path and in_memory are mutually exclusive"))
	}
	return errors.Join(errs...)
}
