package reload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/internal/core"
)

// echoModule records the name it was last configured with.
type echoModule struct {
	name    string
	started bool
}

func init() {
	core.RegisterModule(&echoModule{})
}

func (m *echoModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "reloadtest.echo", New: func() core.Module { return &echoModule{} }}
}

func (m *echoModule) Start() error {
	m.started = true
	return nil
}

func (m *echoModule) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig()
	if !ok {
		return errors.New("no config")
	}
	var cfg struct {
		Name string `yaml:"name"`
	}
	if err := node.Decode(&cfg); err != nil {
		return err
	}
	m.name = cfg.Name
	return nil
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

// startApp loads and starts the modules named in path.
func startApp(t *testing.T, path string) (*Handler, *echoModule) {
	t.Helper()
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	logger := slog.New(slog.DiscardHandler)
	appCtx := core.NewAppContext(logger, t.TempDir()).WithModuleConfigs(cfg.Modules)
	app := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := app.LoadModules(ids); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(app.Stop)

	mod, _ := app.Module("reloadtest.echo")
	h := NewHandler(HandlerConfig{
		App:        app,
		Context:    appCtx,
		ConfigPath: path,
		Modules:    ids,
		Logger:     logger,
	})
	return h, mod.(*echoModule)
}

func TestHandler_AppliesModuleSettings(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "recall.yaml")
	writeConfig(t, path, "version: \"1\"\nmodules:\n  reloadtest.echo:\n    name: first\n")
	h, mod := startApp(t, path)

	writeConfig(t, path, "version: \"1\"\nmodules:\n  reloadtest.echo:\n    name: second\n")
	cfg, err := h.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if mod.name != "second" {
		t.Errorf("module name = %q, want second", mod.name)
	}
	if cfg.Version != "1" {
		t.Errorf("returned config version = %q", cfg.Version)
	}
}

func TestHandler_RejectsWithoutApplying(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		target error
	}{
		{name: "module removed", body: "version: \"1\"\nmodules: {}\n", target: ErrModulesChanged},
		{name: "bad version", body: "version: \"2\"\nmodules:\n  reloadtest.echo:\n    name: x\n"},
		{name: "unknown module", body: "version: \"1\"\nmodules:\n  reloadtest.echo: {}\n  nope.mod: {}\n"},
		{name: "not yaml", body: "version: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "recall.yaml")
			writeConfig(t, path, "version: \"1\"\nmodules:\n  reloadtest.echo:\n    name: first\n")
			h, mod := startApp(t, path)

			writeConfig(t, path, tt.body)
			_, err := h.Reload(context.Background())
			if err == nil {
				t.Fatal("Reload succeeded")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
			if mod.name != "" {
				t.Errorf("module reloaded with %q", mod.name)
			}
		})
	}
}

func TestHandler_CancelledContext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "recall.yaml")
	writeConfig(t, path, "version: \"1\"\nmodules:\n  reloadtest.echo:\n    name: first\n")
	h, mod := startApp(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Reload(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Reload = %v, want context.Canceled", err)
	}
	if mod.name != "" {
		t.Errorf("module reloaded with %q", mod.name)
	}
}
