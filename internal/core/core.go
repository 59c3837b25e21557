package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App runs a list of modules through their lifecycle.
type App struct {
	ctx     *AppContext
	logger  *slog.Logger
	modules []*instance
}

type instance struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp returns an App that loads modules through ctx.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules loads ids in order. When one fails, the modules loaded so
// far are stopped and dropped.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Discard()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.modules = append(a.modules, &instance{id: mod.ModuleInfo().ID, module: mod})
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// AppendModule adds an already-built module. It starts after every module
// loaded before it and stops before them.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.modules = append(a.modules, &instance{id: id, module: mod})
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, in := range a.modules {
		if string(in.id) == id {
			return in.module, true
		}
	}
	return nil, false
}

// Start starts the modules in order. If one fails, those already started
// are stopped again.
func (a *App) Start() error {
	for _, in := range a.modules {
		s, ok := in.module.(Starter)
		if !ok {
			continue
		}
		a.logger.Info("starting module", "module", string(in.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(in.id), "error", err)
			a.Stop()
			return fmt.Errorf("starting module %s: %w", in.id, err)
		}
		in.started = true
	}
	a.logger.Info("all modules started")
	return nil
}

// Stop stops the started modules in reverse order. Each Stop shares one
// shutdown deadline.
func (a *App) Stop() {
	a.stop(func(in *instance) bool { return in.started })
}

// Discard stops every loaded module, started or not, and forgets them. It
// is for setup that fails between LoadModules and Start.
func (a *App) Discard() {
	a.stop(func(*instance) bool { return true })
	a.modules = nil
}

func (a *App) stop(match func(*instance) bool) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.modules) - 1; i >= 0; i-- {
		in := a.modules[i]
		if !match(in) {
			continue
		}
		in.started = false
		s, ok := in.module.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping module", "module", string(in.id))
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(in.id), "error", err)
		}
	}
}

// ReloadModules hands ctx to every started module that implements Reloader.
// A failing module keeps its previous settings; the errors are joined.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for _, in := range a.modules {
		r, ok := in.module.(Reloader)
		if !ok || !in.started {
			continue
		}
		if err := r.Reload(ctx.ForModule(in.id)); err != nil {
			a.logger.Error("module reload failed", "module", string(in.id), "error", err)
			errs = append(errs, fmt.Errorf("reloading module %s: %w", in.id, err))
			continue
		}
		a.logger.Info("module reloaded", "module", string(in.id))
	}
	return errors.Join(errs...)
}
