// Package chromem provides the index.chromem module: the similarity index
// with its embedder, published as the memory.index service.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/embed"
	"github.com/flemzord/recall/internal/index"
	"github.com/flemzord/recall/internal/memory"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the index and the embedding cache.
type Module struct {
	config Config
	logger *slog.Logger
	index  *index.Chromem
	cache  *embed.CachedEmbedder
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "index.chromem",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("chromem: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if err := m.config.validate(); err != nil {
		return fmt.Errorf("chromem: %w", err)
	}
	if m.config.Path == "" && !m.config.InMemory {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDir)
	}

	embedder, err := m.newEmbedder()
	if err != nil {
		return err
	}
	if m.config.CacheSize > 0 {
		m.cache, err = embed.NewCached(embedder, m.config.CacheSize)
		if err != nil {
			return fmt.Errorf("chromem: %w", err)
		}
		embedder = m.cache
	}

	m.index, err = index.New(index.Config{
		Path:     m.config.Path,
		Compress: m.config.Compress,
		Logger:   m.logger,
	}, embedder)
	if err != nil {
		m.closeCache()
		return fmt.Errorf("chromem: %w", err)
	}

	ctx.RegisterService(memory.ServiceIndex, m.index)
	m.logger.Info("similarity index provisioned",
		"embedder", embedder.ModelID(),
		"path", m.config.Path,
		"documents", m.index.Count(),
	)
	return nil
}

func (m *Module) newEmbedder() (embed.Embedder, error) {
	if m.config.Embedder == embedderHash {
		return embed.NewHash(m.config.Dims), nil
	}
	key := m.config.APIKey
	if key == "" {
		key = os.Getenv(m.config.APIKeyEnv)
	}
	e, err := embed.NewOpenAI(embed.OpenAIConfig{
		APIKey:     key,
		BaseURL:    m.config.BaseURL,
		Model:      m.config.Model,
		Dimensions: m.config.Dims,
	})
	if err != nil {
		return nil, fmt.Errorf("chromem: %w (set %s)", err, m.config.APIKeyEnv)
	}
	return e, nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.index == nil {
		return errors.New("chromem: index not provisioned")
	}
	return m.config.validate()
}

// Stop implements core.Stopper. Persistent documents are written on every
// upsert, so only the cache needs releasing.
func (m *Module) Stop(_ context.Context) error {
	m.closeCache()
	return nil
}

func (m *Module) closeCache() {
	if m.cache != nil {
		m.cache.Close()
		m.cache = nil
	}
}
