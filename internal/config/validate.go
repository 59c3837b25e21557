package config

import (
	"errors"
	"fmt"

	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/cron"
)

// Validate reports every problem in cfg at once: the version, module IDs
// missing from the registry, out-of-range memory settings, maintenance
// schedules that do not parse and an incomplete telemetry section.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateMemory(cfg.Memory)...)
	errs = append(errs, validateMaintenance(cfg.Memory.Maintenance)...)
	errs = append(errs, validateTelemetry(cfg.Telemetry)...)

	return errors.Join(errs...)
}

func validateMemory(m MemoryConfig) []error {
	var errs []error

	if m.Buffer.WindowSize < 0 {
		errs = append(errs, fmt.Errorf("config: memory.buffer.window_size must be positive, got %d", m.Buffer.WindowSize))
	}
	if m.Buffer.TTL < 0 {
		errs = append(errs, fmt.Errorf("config: memory.buffer.ttl must not be negative, got %s", m.Buffer.TTL))
	}
	if s := m.Store.MinScore; s != nil && (*s < 0 || *s > 1) {
		errs = append(errs, fmt.Errorf("config: memory.store.min_score must be within [0,1], got %v", *s))
	}
	if m.Planner.Timeout < 0 {
		errs = append(errs, errors.New("config: memory.planner.timeout must not be negative"))
	}
	if m.Composer.Timeout < 0 {
		errs = append(errs, errors.New("config: memory.composer.timeout must not be negative"))
	}
	if m.Composer.MaxTokens < 0 {
		errs = append(errs, errors.New("config: memory.composer.max_tokens must not be negative"))
	}

	return errs
}

func validateMaintenance(m MaintenanceConfig) []error {
	var errs []error
	check := func(key, expr string) {
		if err := cron.ValidateSchedule(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: memory.maintenance.%s: %w", key, err))
		}
	}
	check("sweep_schedule", m.SweepSchedule)
	check("reconcile_schedule", m.ReconcileSchedule)
	return errs
}

func validateTelemetry(t *TelemetryConfig) []error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.Endpoint == "" {
		errs = append(errs, errors.New("config: telemetry.endpoint is required when telemetry is set"))
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio must be within [0,1], got %v", t.SampleRatio))
	}
	return errs
}
