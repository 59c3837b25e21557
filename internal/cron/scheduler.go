package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/flemzord/recall/internal/telemetry"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger. Nil discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithRegisterer exports per-job run counters and durations to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Scheduler) { s.registerer = reg }
}

// Scheduler runs registered jobs on their cron schedules. A job never runs
// twice at once: a tick that finds the previous run still going is skipped.
type Scheduler struct {
	mu         sync.Mutex
	cron       *cron.Cron
	jobs       map[string]*entry
	order      []string
	logger     *slog.Logger
	registerer prometheus.Registerer
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	cancel     context.CancelFunc
}

type entry struct {
	job  Job
	lock sync.Mutex
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{jobs: make(map[string]*entry)}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = telemetry.NopLogger()
	}

	s.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_cron_runs_total",
		Help: "Maintenance job runs by job and result.",
	}, []string{"job", "result"})
	s.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recall_cron_run_duration_seconds",
		Help:    "Maintenance job run time.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"job"})
	if s.registerer != nil {
		var err error
		if s.runs, err = telemetry.Register(s.registerer, s.runs); err != nil {
			return nil, fmt.Errorf("cron: registering metrics: %w", err)
		}
		if s.duration, err = telemetry.Register(s.registerer, s.duration); err != nil {
			return nil, fmt.Errorf("cron: registering metrics: %w", err)
		}
	}
	return s, nil
}

// RegisterJob adds a job. It fails on a duplicate name or an invalid
// schedule.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	if _, err := parser.Parse(j.Schedule()); err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
	}
	s.jobs[name] = &entry{job: j}
	s.order = append(s.order, name)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start begins executing registered jobs. Calling Start twice is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithParser(parser))
	for _, name := range s.order {
		e := s.jobs[name]
		if _, err := c.AddFunc(e.job.Schedule(), func() { s.run(ctx, e) }); err != nil {
			cancel()
			return fmt.Errorf("cron: scheduling job %q: %w", name, err)
		}
	}
	s.cron, s.cancel = c, cancel
	c.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// RunNow runs the named job once, outside its schedule. It waits for the
// run to finish and reports its error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	return s.run(ctx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	name := e.job.Name()
	if !e.lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", name)
		s.runs.WithLabelValues(name, "skipped").Inc()
		return nil
	}
	defer e.lock.Unlock()

	started := time.Now()
	err := e.job.Run(ctx)
	s.duration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	if err != nil {
		s.runs.WithLabelValues(name, "error").Inc()
		s.logger.Error("cron: job failed", "job", name, "error", err)
		return err
	}
	s.runs.WithLabelValues(name, "ok").Inc()
	s.logger.Debug("cron: job completed", "job", name, "duration", time.Since(started))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
