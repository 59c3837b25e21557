package config

import (
	"errors"
	"fmt"
	"net"
	"slices"

	"gopkg.in/yaml.v3"
)

// Choices accepted by Sample.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"

	EmbedderHash   = "hash"
	EmbedderOpenAI = "openai"

	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// SampleOptions are the answers `recall init` collects.
type SampleOptions struct {
	Storage  string
	Embedder string
	Provider string

	// Bind enables the HTTP gateway on this address when non-empty.
	Bind string

	// TokenEnv names the environment variable holding the gateway bearer
	// token. Empty leaves the API unauthenticated.
	TokenEnv string
}

// Validate reports unknown choices.
func (o SampleOptions) Validate() error {
	var errs []error
	if !slices.Contains([]string{StorageSQLite, StorageMemory}, o.Storage) {
		errs = append(errs, fmt.Errorf("config: unknown storage %q", o.Storage))
	}
	if !slices.Contains([]string{EmbedderHash, EmbedderOpenAI}, o.Embedder) {
		errs = append(errs, fmt.Errorf("config: unknown embedder %q", o.Embedder))
	}
	if !slices.Contains([]string{ProviderNone, ProviderAnthropic, ProviderOpenAI}, o.Provider) {
		errs = append(errs, fmt.Errorf("config: unknown provider %q", o.Provider))
	}
	if o.Bind != "" {
		if _, _, err := net.SplitHostPort(o.Bind); err != nil {
			errs = append(errs, fmt.Errorf("config: invalid bind address %q", o.Bind))
		}
	}
	return errors.Join(errs...)
}

type sampleFile struct {
	Version string         `yaml:"version"`
	Modules map[string]any `yaml:"modules,omitempty"`
	Memory  sampleMemory   `yaml:"memory"`
}

type sampleMemory struct {
	Buffer   map[string]any `yaml:"buffer"`
	Planner  map[string]any `yaml:"planner,omitempty"`
	Composer map[string]any `yaml:"composer,omitempty"`
}

// Sample renders a starter configuration file.
func Sample(o SampleOptions) ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	f := sampleFile{
		Version: "1",
		Modules: map[string]any{},
		Memory: sampleMemory{
			Buffer: map[string]any{"window_size": 20, "ttl": "24h"},
		},
	}

	if o.Storage == StorageSQLite {
		f.Modules["memory.sqlite"] = map[string]any{}
		idx := map[string]any{"embedder": o.Embedder}
		if o.Embedder == EmbedderOpenAI {
			idx["model"] = "text-embedding-3-small"
		}
		f.Modules["index.chromem"] = idx
	} else if o.Embedder == EmbedderOpenAI {
		f.Modules["index.chromem"] = map[string]any{"embedder": o.Embedder, "in_memory": true}
	}

	if o.Provider != ProviderNone {
		f.Modules["provider."+o.Provider] = map[string]any{"role": "fallback"}
		f.Memory.Planner = map[string]any{"classifier": true}
		f.Memory.Composer = map[string]any{"generator": true}
	}

	if o.Bind != "" {
		gw := map[string]any{"bind": o.Bind}
		if o.TokenEnv != "" {
			gw["auth"] = map[string]any{"bearer_token": "${" + o.TokenEnv + "}"}
		}
		f.Modules["gateway.http"] = gw
	}

	if len(f.Modules) == 0 {
		f.Modules = nil
	}
	out, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("config: rendering sample: %w", err)
	}
	return append([]byte("# recall configuration, generated by `recall init`.\n"), out...), nil
}
