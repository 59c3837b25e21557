// Package core provides the module system recall is assembled from.
package core

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// AppContext is what a module sees of the application: its logger, the
// data directory, its configuration and the shared service registry.
type AppContext struct {
	// Logger carries a "module" attribute once the context is scoped.
	Logger *slog.Logger

	// DataDir is where modules keep persistent files.
	DataDir string

	module   ModuleID
	root     *slog.Logger
	configs  map[string]yaml.Node
	services *services
}

// NewAppContext returns an unscoped context. A nil logger uses
// slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		root:     logger,
		services: newServices(),
	}
}

// WithModuleConfigs returns a copy of ctx that reads module sections from
// configs. The copy shares ctx's services.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.configs = configs
	return &cp
}

// ForModule returns a copy of ctx scoped to id.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.module = id
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// ModuleConfig returns the configuration section of the module ctx is
// scoped to.
func (ctx *AppContext) ModuleConfig() (*yaml.Node, bool) {
	node, ok := ctx.configs[string(ctx.module)]
	if !ok {
		return nil, false
	}
	return &node, true
}

// LoadModule builds the registered module id and takes it through
// Configure, Provision and Validate.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}
	scoped := ctx.ForModule(info.ID)
	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, ok := scoped.ModuleConfig(); ok {
			if err := c.Configure(node); err != nil {
				return nil, fmt.Errorf("configuring module %s: %w", id, err)
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(scoped); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}
	return mod, nil
}
