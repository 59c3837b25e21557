// Package app provides the shared entry point of the recall binary: it
// loads the configuration, assembles the memory pipeline from the loaded
// modules and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/facade"
	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/provider"
	"github.com/flemzord/recall/internal/reload"
	"github.com/flemzord/recall/internal/security"
	"github.com/flemzord/recall/internal/telemetry"
)

// auditFileName is the JSONL audit trail inside the data directory.
const auditFileName = "audit.jsonl"

// secretEnv lists environment variables whose values never reach the logs.
var secretEnv = []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "RECALL_API_TOKEN", "RECALL_API_PASSWORD"}

// RunParams configures the application.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// Modules filters the configured module IDs to load. Nil loads all of
	// them. One-shot CLI commands use it to skip the HTTP gateway.
	Modules func(id string) bool

	// NoMaintenance leaves the cron jobs unscheduled.
	NoMaintenance bool

	// ReloadInterval is how often Watch polls the configuration file.
	// Zero uses reload.DefaultPollInterval; a negative value disables
	// polling and leaves SIGHUP as the only trigger.
	ReloadInterval time.Duration
}

// Runtime is a fully wired application, ready to Start.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Facade   *facade.Facade
	Chain    *provider.Chain // nil when no provider module is loaded
	Registry *prometheus.Registry
	Audit    *security.AuditLogger

	// ConfigPath is the file the configuration was read from.
	ConfigPath string

	app      *core.App
	reloader *reload.Handler
}

// Open loads and validates the configuration, provisions every module and
// wires the memory pipeline. Nothing runs until Start.
func Open(params RunParams) (*Runtime, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	redactor := security.NewRedactor()
	redactor.AddEnv(secretEnv...)
	logger := NewLogger(params.LogOutput, params.LogLevel, redactor)

	registry := telemetry.NewRegistry()

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("app: creating data dir: %w", err)
	}
	auditFile, err := os.OpenFile(filepath.Join(dataDir, auditFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("app: opening audit log: %w", err)
	}
	auditLogger := security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   auditFile,
		Redactor: redactor,
	})

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)

	// Modules resolve these during Provision.
	appCtx.RegisterService(memory.ServiceBufferConfig, memory.BufferConfig{
		WindowSize: cfg.Memory.Buffer.WindowSize,
		TTL:        cfg.Memory.Buffer.TTL,
	})
	appCtx.RegisterService(security.ServiceRedactor, redactor)
	appCtx.RegisterService(security.ServiceAuditLogger, auditLogger)
	appCtx.RegisterService(telemetry.ServiceRegistry, registry)

	ids := config.Select(config.Resolve(cfg), params.Modules)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(ids); err != nil {
		_ = auditFile.Close()
		return nil, err
	}

	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Registry:   registry,
		Audit:      auditLogger,
		ConfigPath: cfgPath,
		app:        application,
		reloader: reload.NewHandler(reload.HandlerConfig{
			App:        application,
			Context:    appCtx,
			ConfigPath: cfgPath,
			Modules:    slices.Clone(ids),
			Filter:     params.Modules,
			Logger:     logger,
		}),
	}
	if err := wireMemory(rt, appCtx, ids, params, auditFile); err != nil {
		application.Discard()
		_ = auditFile.Close()
		return nil, err
	}
	logger.Info("recall ready", "version", params.Version, "config", cfgPath, "data_dir", dataDir, "modules", len(ids))
	return rt, nil
}

// Start starts every module, then the memory lifecycle.
func (r *Runtime) Start() error {
	return r.app.Start()
}

// Stop stops everything in reverse start order.
func (r *Runtime) Stop() {
	r.app.Stop()
}

// Close releases a Runtime that was never started.
func (r *Runtime) Close() {
	r.app.Discard()
}

// Reload re-reads the configuration file and applies the module settings
// that can change while running.
func (r *Runtime) Reload(ctx context.Context) error {
	_, err := r.reloader.Reload(ctx)
	return err
}

// Watch reloads the configuration on SIGHUP and whenever the file changes,
// until ctx is done. A failed reload is logged and the running settings
// are kept.
func (r *Runtime) Watch(ctx context.Context, interval time.Duration) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var changes <-chan struct{}
	if interval >= 0 {
		changes = reload.Watch(ctx, r.ConfigPath, interval)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			r.Logger.Info("SIGHUP received, reloading configuration")
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			r.Logger.Info("configuration file changed, reloading", "path", r.ConfigPath)
		}
		if err := r.Reload(ctx); err != nil {
			r.Logger.Error("reload failed", "error", err)
		}
	}
}

// Run opens and starts the application, then blocks until SIGINT or
// SIGTERM, reloading the configuration as it changes.
func Run(params RunParams) error {
	rt, err := Open(params)
	if err != nil {
		return err
	}
	if err := rt.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go rt.Watch(ctx, params.ReloadInterval)
	<-ctx.Done()

	rt.Logger.Info("shutdown signal received")
	rt.Stop()
	rt.Logger.Info("shutdown complete")
	return nil
}

// NewLogger returns the process logger: text lines on out, with known
// secrets redacted.
func NewLogger(out io.Writer, level slog.Level, redactor *security.Redactor) *slog.Logger {
	if out == nil {
		out = os.Stderr
	}
	inner := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// ParseLogLevel maps "debug", "info", "warn" and "error" to a level.
func ParseLogLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("app: invalid log level %q", s)
	}
	return level, nil
}

// ErrNoConfig is returned when no configuration file exists in any of the
// searched locations.
var ErrNoConfig = errors.New("app: no configuration file found")

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/recall/recall.yaml, ~/.config/recall/recall.yaml, ./recall.yaml
func ResolveConfigPath() (string, error) {
	candidates := ConfigCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, candidates)
}

// ConfigCandidates returns the locations ResolveConfigPath checks, in
// order. The first one is where `recall init` writes by default.
func ConfigCandidates() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "recall", "recall.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "recall", "recall.yaml"))
	}
	return append(candidates, "recall.yaml")
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/recall if set, otherwise ~/.local/share/recall.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "recall")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "recall")
}
