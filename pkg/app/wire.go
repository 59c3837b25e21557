package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/recall/internal/composer"
	"github.com/flemzord/recall/internal/config"
	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/cron"
	"github.com/flemzord/recall/internal/embed"
	"github.com/flemzord/recall/internal/facade"
	"github.com/flemzord/recall/internal/index"
	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/planner"
	"github.com/flemzord/recall/internal/provider"
	"github.com/flemzord/recall/internal/retriever"
	"github.com/flemzord/recall/internal/store"
	"github.com/flemzord/recall/internal/telemetry"
)

// memoryModule runs the parts of the pipeline that need a lifecycle: the
// startup reindex, the provider health probe, maintenance jobs and trace
// export. It is appended after every configured module, so it starts last
// and stops first.
type memoryModule struct {
	store     *store.Store
	chain     *provider.Chain
	scheduler *cron.Scheduler
	tracing   *config.TelemetryConfig
	closers   []io.Closer
	logger    *slog.Logger

	cancel          context.CancelFunc
	shutdownTracing func(context.Context) error
}

var (
	_ core.Starter = (*memoryModule)(nil)
	_ core.Stopper = (*memoryModule)(nil)
)

func (m *memoryModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "memory.runtime"}
}

// Start rebuilds the index when it disagrees with the snapshot store, then
// starts background work.
func (m *memoryModule) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	if m.tracing != nil {
		shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
			Endpoint:    m.tracing.Endpoint,
			Insecure:    m.tracing.Insecure,
			ServiceName: m.tracing.ServiceName,
			SampleRatio: m.tracing.SampleRatio,
		})
		if err != nil {
			cancel()
			return err
		}
		m.shutdownTracing = shutdown
		m.logger.Info("trace export enabled", "endpoint", m.tracing.Endpoint)
	}

	if err := m.reindexIfNeeded(ctx); err != nil {
		cancel()
		return err
	}

	if m.chain != nil {
		m.chain.Start(ctx)
	}
	if m.scheduler != nil {
		if err := m.scheduler.Start(); err != nil {
			cancel()
			return fmt.Errorf("memory: starting scheduler: %w", err)
		}
		m.logger.Info("maintenance scheduled", "jobs", m.scheduler.Jobs())
	}
	return nil
}

func (m *memoryModule) reindexIfNeeded(ctx context.Context) error {
	needs, err := m.store.NeedsReindex(ctx)
	if err != nil {
		return fmt.Errorf("memory: checking index: %w", err)
	}
	if !needs {
		return nil
	}
	m.logger.Info("index out of date, rebuilding")
	report, err := m.store.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("memory: startup reindex: %w", err)
	}
	m.logger.Info("index rebuilt",
		"upserted", report.Upserted, "removed", report.Removed, "skipped", report.Skipped)
	return nil
}

// Stop stops background work and releases owned resources.
func (m *memoryModule) Stop(ctx context.Context) error {
	var errs []error
	if m.scheduler != nil {
		errs = append(errs, m.scheduler.Stop(ctx))
	}
	if m.chain != nil {
		m.chain.Stop()
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.shutdownTracing != nil {
		errs = append(errs, m.shutdownTracing(ctx))
	}
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// wireMemory assembles the memory pipeline from the services the loaded
// modules registered, filling gaps with in-memory defaults, and appends the
// memory lifecycle to the app. Must be called after LoadModules and before
// Start.
func wireMemory(rt *Runtime, appCtx *core.AppContext, ids []string, params RunParams, closers ...io.Closer) error {
	cfg := rt.Config.Memory
	logger := rt.Logger
	reg := rt.Registry
	mod := &memoryModule{
		tracing: rt.Config.Telemetry,
		logger:  logger.With("module", "memory.runtime"),
	}

	bufCfg := memory.BufferConfig{WindowSize: cfg.Buffer.WindowSize, TTL: cfg.Buffer.TTL}
	buffer, err := service[memory.ConversationBuffer](appCtx, memory.ServiceBuffer)
	if err != nil {
		return err
	}
	if buffer == nil {
		buffer, err = memory.NewInMemoryBuffer(bufCfg)
		if err != nil {
			return fmt.Errorf("memory: %w", err)
		}
		logger.Warn("no persistent buffer configured, conversation turns are kept in memory only")
	}

	snapshots, err := service[memory.SnapshotStore](appCtx, memory.ServiceSnapshots)
	if err != nil {
		return err
	}
	if snapshots == nil {
		snapshots = memory.NewInMemorySnapshots()
		logger.Warn("no persistent store configured, memories are kept in memory only")
	}

	idx, err := service[memory.SimilarityIndex](appCtx, memory.ServiceIndex)
	if err != nil {
		return err
	}
	if idx == nil {
		cached, err := embed.NewCached(embed.NewHash(0), 10_000)
		if err != nil {
			return fmt.Errorf("memory: %w", err)
		}
		idx, err = index.New(index.Config{Logger: logger}, cached)
		if err != nil {
			cached.Close()
			return fmt.Errorf("memory: %w", err)
		}
		closers = append(closers, closerFunc(cached.Close))
		logger.Info("using in-memory similarity index", "embedder", cached.ModelID())
	}

	storeMetrics, err := store.NewMetrics(reg)
	if err != nil {
		return err
	}
	st, err := store.New(snapshots, idx, store.Config{
		MinScore: cfg.Store.MinScore,
		Logger:   logger.With("component", "store"),
		Metrics:  storeMetrics,
	})
	if err != nil {
		return err
	}
	mod.store = st

	chain, err := buildChain(rt, ids, logger)
	if err != nil {
		return err
	}
	if chain != nil {
		rt.Chain = chain
		mod.chain = chain
		appCtx.RegisterService(provider.ServiceChain, chain)
	}

	plannerMetrics, err := planner.NewMetrics(reg)
	if err != nil {
		return err
	}
	plannerCfg := planner.Config{
		People:  st,
		Timeout: cfg.Planner.Timeout,
		Logger:  logger.With("component", "planner"),
		Metrics: plannerMetrics,
	}
	if cfg.Planner.Classifier && chain != nil && chain.Has(provider.RolePlanner) {
		plannerCfg.Classifier = planner.NewLLMClassifier(chain, time.Now)
		logger.Info("llm question classifier enabled")
	}

	composerMetrics, err := composer.NewMetrics(reg)
	if err != nil {
		return err
	}
	composerCfg := composer.Config{
		Timeout:   cfg.Composer.Timeout,
		MaxTokens: cfg.Composer.MaxTokens,
		Logger:    logger.With("component", "composer"),
		Metrics:   composerMetrics,
	}
	if cfg.Composer.Generator && chain != nil && chain.Has(provider.RoleComposer) {
		composerCfg.Generator = composer.NewLLMGenerator(chain)
		logger.Info("llm answer generation enabled")
	}

	f, err := facade.New(facade.Config{
		Buffer:    buffer,
		Store:     st,
		Planner:   planner.New(plannerCfg),
		Retriever: retriever.New(st, logger.With("component", "retriever")),
		Composer:  composer.New(composerCfg),
		Logger:    logger.With("component", "facade"),
	})
	if err != nil {
		return err
	}
	rt.Facade = f
	appCtx.RegisterService(memory.ServiceFacade, f)

	if !params.NoMaintenance {
		mod.scheduler, err = buildScheduler(cfg.Maintenance, buffer, st, logger, reg)
		if err != nil {
			return err
		}
	}

	mod.closers = closers
	rt.app.AppendModule(mod.ModuleInfo().ID, mod)
	return nil
}

// buildChain collects every loaded module that joins the provider chain,
// in module order. It returns nil when there is none.
func buildChain(rt *Runtime, ids []string, logger *slog.Logger) (*provider.Chain, error) {
	var entries []provider.ChainEntry
	for _, id := range ids {
		mod, ok := rt.app.Module(id)
		if !ok {
			continue
		}
		if member, ok := mod.(provider.ChainMember); ok {
			entry := member.ChainEntry()
			entries = append(entries, entry)
			logger.Info("provider joined chain", "provider", entry.Name, "role", entry.Role)
		}
	}
	if len(entries) == 0 {
		logger.Info("no provider configured, answers use local paths only")
		return nil, nil
	}
	chain, err := provider.NewChain(entries,
		provider.WithLogger(logger.With("component", "provider.chain")),
		provider.WithRegisterer(rt.Registry),
	)
	if err != nil {
		return nil, fmt.Errorf("app: building provider chain: %w", err)
	}
	return chain, nil
}

func buildScheduler(cfg config.MaintenanceConfig, buffer memory.ConversationBuffer, st *store.Store, logger *slog.Logger, reg prometheus.Registerer) (*cron.Scheduler, error) {
	scheduler, err := cron.NewScheduler(
		cron.WithLogger(logger.With("component", "cron")),
		cron.WithRegisterer(reg),
	)
	if err != nil {
		return nil, err
	}
	var jobs []cron.Job
	if cfg.SweepSchedule != cron.Off {
		jobs = append(jobs, &cron.TurnSweepJob{
			Buffer:       buffer,
			Logger:       logger,
			ScheduleExpr: cfg.SweepSchedule,
		})
	}
	if cfg.ReconcileSchedule != cron.Off {
		jobs = append(jobs, &cron.IndexReconcileJob{
			Store:        st,
			ScheduleExpr: cfg.ReconcileSchedule,
		})
	}
	for _, j := range jobs {
		if err := scheduler.RegisterJob(j); err != nil {
			return nil, fmt.Errorf("app: scheduling %s: %w", j.Name(), err)
		}
	}
	return scheduler, nil
}

// service resolves a registered service as T. A missing service yields
// the zero T; a service of another type is an error.
func service[T any](appCtx *core.AppContext, name string) (T, error) {
	var zero T
	svc, ok := appCtx.GetService(name)
	if !ok {
		return zero, nil
	}
	v, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("app: service %s has type %T", name, svc)
	}
	return v, nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
