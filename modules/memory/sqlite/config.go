package sqlite

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const defaultDBFile = "memory.db"

// journalModes are the SQLite journal modes the module accepts.
var journalModes = []string{"wal", "delete", "truncate", "persist"}

// Config is the memory.sqlite section.
//
//	memory.sqlite:
//	  path: /var/lib/recall/memory.db  # default: <data dir>/memory.db
//	  journal: wal                     # wal, delete, truncate or persist
//	  busy_timeout: 5s
type Config struct {
	Path        string        `yaml:"path"`
	Journal     string        `yaml:"journal"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

func (c *Config) defaults() {
	c.Journal = strings.ToLower(c.Journal)
	if c.Journal == "" {
		c.Journal = "wal"
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if !slices.Contains(journalModes, c.Journal) {
		return fmt.Errorf("sqlite: journal must be one of %s, got %q", strings.Join(journalModes, ", "), c.Journal)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must not be negative, got %s", c.BusyTimeout)
	}
	return nil
}

// pragmas returns the statements applied to a fresh connection.
func (c *Config) pragmas() []string {
	return []string{
		"PRAGMA journal_mode=" + strings.ToUpper(c.Journal),
		fmt.Sprintf("PRAGMA busy_timeout=%d", c.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
}
