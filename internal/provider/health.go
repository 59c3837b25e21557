package provider

import (
	"sync"
	"time"
)

type healthState int

const (
	stateHealthy  healthState = iota
	stateCooldown             // backing off after a transient failure
	stateDead                 // MaxFailures consecutive failures
)

func (s healthState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	case stateDead:
		return "dead"
	}
	return "unknown"
}

// HealthConfig controls backoff and probing for one chain entry.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure. Default: 1s.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the exponential backoff. Default: 60s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxFailures consecutive failures mark the provider dead. Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// CheckInterval is how often unhealthy providers are probed. Default: 10s.
	CheckInterval time.Duration `yaml:"check_interval"`
}

func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Second
	}
}

// HealthStatus is a point-in-time view of one chain entry.
type HealthStatus struct {
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Model    string `json:"model"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// healthTracker applies exponential backoff on failures and marks the
// provider dead after MaxFailures in a row.
type healthTracker struct {
	cfg HealthConfig

	// onStateChange runs outside the lock on every transition.
	onStateChange func(from, to healthState)

	mu              sync.Mutex
	state           healthState
	failures        int
	backoff         time.Duration
	cooldownExpires time.Time

	now func() time.Time
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	cfg.defaults()
	return &healthTracker{cfg: cfg, now: time.Now}
}

// available reports whether requests may be sent. A cooling-down provider
// becomes available again once its backoff has elapsed.
func (h *healthTracker) available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case stateHealthy:
		return true
	case stateCooldown:
		return !h.now().Before(h.cooldownExpires)
	}
	return false
}

// needsProbe reports whether an active health check should run.
func (h *healthTracker) needsProbe() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case stateDead:
		return true
	case stateCooldown:
		return !h.now().Before(h.cooldownExpires)
	}
	return false
}

func (h *healthTracker) success() {
	h.mu.Lock()
	prev := h.state
	h.state = stateHealthy
	h.failures = 0
	h.backoff = 0
	h.mu.Unlock()
	h.notify(prev, stateHealthy)
}

func (h *healthTracker) failure() {
	h.mu.Lock()
	prev := h.state
	h.failures++
	if h.failures >= h.cfg.MaxFailures {
		h.state = stateDead
	} else {
		h.state = stateCooldown
		if h.backoff == 0 {
			h.backoff = h.cfg.InitialBackoff
		} else {
			h.backoff = min(2*h.backoff, h.cfg.MaxBackoff)
		}
		h.cooldownExpires = h.now().Add(h.backoff)
	}
	next := h.state
	h.mu.Unlock()
	h.notify(prev, next)
}

func (h *healthTracker) notify(from, to healthState) {
	if from != to && h.onStateChange != nil {
		h.onStateChange(from, to)
	}
}

func (h *healthTracker) snapshot() (healthState, int, time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.failures, h.backoff
}
