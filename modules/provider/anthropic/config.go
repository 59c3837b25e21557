package anthropic

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/recall/internal/provider"
)

// defaultModel is used when none is configured.
const defaultModel = "claude-haiku-4-5"

const (
	defaultMaxTokens = 1024
	defaultTimeout   = 30 * time.Second
	defaultKeyEnv    = "ANTHROPIC_API_KEY"
)

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`

	// Role selects which pipeline stage the provider serves: composer,
	// planner, or fallback (every stage). Defaults to fallback.
	Role        provider.Role         `yaml:"role"`
	FallbackFor []provider.Role       `yaml:"fallback_for"`
	Health      provider.HealthConfig `yaml:"health"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultKeyEnv
	}
	if c.Role == "" {
		c.Role = provider.RoleFallback
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if !c.Role.Valid() {
		errs = append(errs, fmt.Errorf("unknown role %q", c.Role))
	}
	for _, r := range c.FallbackFor {
		if r != provider.RoleComposer && r != provider.RolePlanner {
			errs = append(errs, fmt.Errorf("fallback_for: unknown role %q", r))
		}
	}
	return errors.Join(errs...)
}
