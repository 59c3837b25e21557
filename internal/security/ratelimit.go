package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds its bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit buckets.
const (
	BucketAuth   = "auth"
	BucketAnswer = "answer"
	BucketWrite  = "write"
)

// RateLimitConfig holds per-minute limits. Zero takes the default; a
// negative value disables the bucket.
type RateLimitConfig struct {
	AuthPerMin   int `yaml:"auth_per_min"`
	AnswerPerMin int `yaml:"answer_per_min"`
	WritePerMin  int `yaml:"write_per_min"`
}

func (c *RateLimitConfig) defaults() {
	if c.AuthPerMin == 0 {
		c.AuthPerMin = 60
	}
	if c.AnswerPerMin == 0 {
		c.AnswerPerMin = 120
	}
	if c.WritePerMin == 0 {
		c.WritePerMin = 600
	}
}

// RateLimiter is a sliding-window limiter keyed by bucket name.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a limiter for the configured buckets.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg.defaults()
	rl := &RateLimiter{buckets: make(map[string]*bucket), now: time.Now}
	for name, limit := range map[string]int{
		BucketAuth:   cfg.AuthPerMin,
		BucketAnswer: cfg.AnswerPerMin,
		BucketWrite:  cfg.WritePerMin,
	} {
		if limit > 0 {
			rl.buckets[name] = &bucket{window: time.Minute, limit: limit}
		}
	}
	return rl
}

// Allow records one event in bucket kind, or returns ErrRateLimited when
// the bucket is full. Unknown or disabled buckets always allow.
func (rl *RateLimiter) Allow(kind string) error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}
	now := rl.now()
	b.evict(now)
	if len(b.events) >= b.limit {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}

// evict drops events outside the window. Events are in time order.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	b.events = b.events[i:]
}
