package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/internal/core"
)

// ErrModulesChanged is returned when the file names a different set of
// modules than the running application. Adding or removing a module needs
// a restart.
var ErrModulesChanged = errors.New("reload: module list changed, restart to apply")

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	App        *core.App
	Context    *core.AppContext
	ConfigPath string

	// Modules is the list the application was loaded with.
	Modules []string

	// Filter is applied to the module list read from the file, the same
	// way it was applied at startup. Nil keeps every module.
	Filter func(id string) bool

	Logger *slog.Logger
}

// Handler re-reads the configuration file and passes the new module
// settings to the running modules that implement core.Reloader.
type Handler struct {
	cfg HandlerConfig
	mu  sync.Mutex
}

// NewHandler creates a reload handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{cfg: cfg}
}

// Reload loads, validates and applies the configuration file. Nothing is
// applied when the file is invalid or names a different module list.
// Settings outside the modules section are read but only take effect on
// restart.
func (h *Handler) Reload(ctx context.Context) (*config.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}

	cfg, err := config.Load(h.cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}

	ids := config.Select(config.Resolve(cfg), h.cfg.Filter)
	if !slices.Equal(ids, h.cfg.Modules) {
		return nil, fmt.Errorf("%w: running %v, file lists %v", ErrModulesChanged, h.cfg.Modules, ids)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.cfg.App.ReloadModules(h.cfg.Context.WithModuleConfigs(cfg.Modules)); err != nil {
		return nil, err
	}
	h.cfg.Logger.Info("configuration reloaded", "path", h.cfg.ConfigPath)
	return cfg, nil
}
