// Package sqlite persists the conversation buffer and the item snapshots in
// a single SQLite database using modernc.org/sqlite (pure Go, no CGO).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/core"
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

// Module opens memory.db and publishes its buffer and snapshot store.
type Module struct {
	config    Config
	db        *sql.DB
	logger    *slog.Logger
	buffer    *Buffer
	snapshots *Snapshots
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. Buffer bounds come from the
// memory.buffer_config service when the host published one.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	var bufCfg memory.BufferConfig
	if svc, ok := ctx.GetService(memory.ServiceBufferConfig); ok {
		cfg, ok := svc.(memory.BufferConfig)
		if !ok {
			return fmt.Errorf("sqlite: service %s has type %T", memory.ServiceBufferConfig, svc)
		}
		bufCfg = cfg
	}

	db, err := Open(context.Background(), m.config.Path, m.config)
	if err != nil {
		return err
	}
	buffer, err := NewBuffer(db, bufCfg)
	if err != nil {
		_ = db.Close()
		return err
	}

	m.db = db
	m.buffer = buffer
	m.snapshots = NewSnapshots(db)

	ctx.RegisterService(memory.ServiceBuffer, m.buffer)
	ctx.RegisterService(memory.ServiceSnapshots, m.snapshots)

	m.logger.Info("sqlite memory module provisioned",
		"path", m.config.Path,
		"journal", m.config.Journal,
		"window_size", buffer.cfg.WindowSize,
		"ttl", buffer.cfg.TTL,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if m.db == nil {
		return errors.New("sqlite: database not opened")
	}
	if err := m.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}
	m.logger.Info("sqlite memory module stopping")
	return m.db.Close()
}
