package provider

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/recall/internal/telemetry"
)

// ServiceChain is the application context name of the *Chain built at
// startup.
const ServiceChain = "provider.chain"

// ChainEntry configures a single provider in the chain.
type ChainEntry struct {
	Name        string
	Provider    Provider
	Role        Role
	Health      HealthConfig
	FallbackFor []Role // empty = fallback for all roles
}

type chainEntry struct {
	ChainEntry
	health *healthTracker
}

// ChainOption configures optional Chain behavior.
type ChainOption func(*Chain)

// WithLogger injects a structured logger. When nil or omitted, log output
// is discarded.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// WithRegisterer exports per-provider request counters to reg.
func WithRegisterer(reg prometheus.Registerer) ChainOption {
	return func(c *Chain) { c.registerer = reg }
}

// Chain routes completions by role and fails over between providers. It is
// not itself a Provider.
type Chain struct {
	entries    []chainEntry
	logger     *slog.Logger
	registerer prometheus.Registerer
	requests   *prometheus.CounterVec

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewChain creates a chain from the given entries.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}

	internal := make([]chainEntry, len(entries))
	for i, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		if !e.Role.Valid() {
			return nil, fmt.Errorf("provider: entry %q has unknown role %q", e.Name, e.Role)
		}
		internal[i] = chainEntry{ChainEntry: e, health: newHealthTracker(e.Health)}
	}

	c := &Chain{entries: internal}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = telemetry.NopLogger()
	}

	c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recall_provider_requests_total",
		Help: "Completion requests by provider and result (ok or a failure reason).",
	}, []string{"provider", "result"})
	if c.registerer != nil {
		requests, err := telemetry.Register(c.registerer, c.requests)
		if err != nil {
			return nil, fmt.Errorf("provider: registering metrics: %w", err)
		}
		c.requests = requests
	}

	for i := range c.entries {
		e := &c.entries[i]
		e.health.onStateChange = func(from, to healthState) {
			state, failures, backoff := e.health.snapshot()
			switch to {
			case stateCooldown:
				c.logger.Warn("provider entered cooldown",
					"provider", e.Name, "backoff", backoff, "failures", failures)
			case stateDead:
				c.logger.Error("provider marked dead",
					"provider", e.Name, "failures", failures)
			case stateHealthy:
				c.logger.Info("provider revived",
					"provider", e.Name, "previous_state", from.String(), "state", state.String())
			}
		}
	}
	return c, nil
}

// Start launches background probing of unhealthy providers.
func (c *Chain) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	go c.probe(ctx, c.probeInterval())
}

// Stop cancels background probing.
func (c *Chain) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Has reports whether any entry can serve role.
func (c *Chain) Has(role Role) bool {
	return len(c.candidates(role)) > 0
}

// Complete sends req to the best available provider for role, failing over
// on retryable errors.
func (c *Chain) Complete(ctx context.Context, role Role, req CompletionRequest) (CompletionResponse, error) {
	candidates := c.candidates(role)
	if len(candidates) == 0 {
		return CompletionResponse{}, fmt.Errorf("%w for role %q", ErrNoProvider, role)
	}

	var lastErr error
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, err
		}
		if !e.health.available() {
			continue
		}

		resp, err := e.Provider.Complete(ctx, req)
		if err == nil {
			e.health.success()
			c.requests.WithLabelValues(e.Name, "ok").Inc()
			return resp, nil
		}
		lastErr = err

		c.requests.WithLabelValues(e.Name, Reason(err)).Inc()
		if !IsRetryable(err) {
			return CompletionResponse{}, err
		}
		e.health.failure()
		c.logger.Warn("provider failed, failing over", "provider", e.Name, "role", role, "error", err)
	}

	if lastErr != nil {
		c.logger.Error("all providers exhausted", "role", role, "last_error", lastErr)
		return CompletionResponse{}, fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	c.logger.Error("all providers exhausted", "role", role)
	return CompletionResponse{}, fmt.Errorf("%w for role %q: all candidates unavailable", ErrAllProviders, role)
}

// HealthReport returns the state of every entry in chain order.
func (c *Chain) HealthReport() []HealthStatus {
	out := make([]HealthStatus, len(c.entries))
	for i := range c.entries {
		e := &c.entries[i]
		state, failures, _ := e.health.snapshot()
		out[i] = HealthStatus{
			Name:     e.Name,
			Role:     e.Role,
			Model:    e.Provider.ModelName(),
			State:    state.String(),
			Failures: failures,
		}
	}
	return out
}

// candidates returns entries for role: direct matches first, then fallbacks.
func (c *Chain) candidates(role Role) []*chainEntry {
	var direct, fallbacks []*chainEntry
	for i := range c.entries {
		e := &c.entries[i]
		switch {
		case e.Role == role:
			direct = append(direct, e)
		case e.Role == RoleFallback && (len(e.FallbackFor) == 0 || slices.Contains(e.FallbackFor, role)):
			fallbacks = append(fallbacks, e)
		}
	}
	return append(direct, fallbacks...)
}

// probeInterval is the shortest configured check interval.
func (c *Chain) probeInterval() time.Duration {
	var interval time.Duration
	for i := range c.entries {
		d := c.entries[i].health.cfg.CheckInterval
		if interval == 0 || d < interval {
			interval = d
		}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return interval
}

func (c *Chain) probe(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probeOnce(ctx)
		}
	}
}

func (c *Chain) probeOnce(ctx context.Context) {
	for i := range c.entries {
		e := &c.entries[i]
		if !e.health.needsProbe() {
			continue
		}
		checker, ok := e.Provider.(HealthChecker)
		if !ok {
			continue
		}
		if err := checker.HealthCheck(ctx); err == nil {
			e.health.success()
		}
	}
}

// ChainMember is implemented by provider modules that join the chain built
// at startup.
type ChainMember interface {
	ChainEntry() ChainEntry
}
