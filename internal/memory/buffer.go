package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Buffer defaults.
const (
	DefaultWindowSize = 50
	DefaultTTL        = 24 * time.Hour
)

// ConversationBuffer holds a bounded, time-evicted log of recent turns per
// conversation. Writes and eviction for one conversation are serialized;
// distinct conversations never share a lock.
type ConversationBuffer interface {
	// Record appends a turn and then evicts by age and window for that
	// conversation. It returns the turn as stored, with any assigned id and
	// timestamp.
	Record(ctx context.Context, turn ConversationTurn) (ConversationTurn, error)

	// History returns turns newest first.
	History(ctx context.Context, conversationID string, opts HistoryOptions) ([]ConversationTurn, error)

	// Clear deletes every turn of a conversation and returns how many were removed.
	Clear(ctx context.Context, conversationID string) (int, error)

	// Sweep applies age eviction to every conversation, including idle ones,
	// and returns how many turns were removed.
	Sweep(ctx context.Context) (int, error)
}

// HistoryOptions narrows a History call.
type HistoryOptions struct {
	// Limit caps the number of turns. Zero means the window size.
	Limit int

	// Since keeps only turns strictly after it when non-zero.
	Since time.Time
}

// BufferConfig configures eviction.
type BufferConfig struct {
	WindowSize int
	TTL        time.Duration

	// Now is the clock used for defaults and eviction. Defaults to time.Now.
	Now func() time.Time
}

// WithDefaults returns c with zero values replaced by defaults.
func (c BufferConfig) WithDefaults() BufferConfig {
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Validate checks the configured bounds.
func (c BufferConfig) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("memory: window size must be positive, got %d", c.WindowSize)
	}
	if c.TTL < 0 {
		return fmt.Errorf("memory: ttl must not be negative, got %s", c.TTL)
	}
	return nil
}

// Cutoff returns the instant before which turns are expired.
func (c BufferConfig) Cutoff(now time.Time) time.Time {
	return now.Add(-c.TTL)
}

// HistoryLimit resolves the effective limit of a History call.
func (c BufferConfig) HistoryLimit(opts HistoryOptions) int {
	if opts.Limit <= 0 || opts.Limit > c.WindowSize {
		return c.WindowSize
	}
	return opts.Limit
}

// PrepareTurn validates a turn and fills server-assigned fields.
func PrepareTurn(turn ConversationTurn, now time.Time) (ConversationTurn, error) {
	if strings.TrimSpace(turn.ConversationID) == "" {
		return ConversationTurn{}, fmt.Errorf("%w: conversation id is required", ErrInvalidTurn)
	}
	if !turn.Role.Valid() {
		return ConversationTurn{}, fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, turn.Role)
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}
	turn.Timestamp = canonicalTime(turn.Timestamp)
	if len(turn.Metadata) == 0 {
		turn.Metadata = nil
	} else {
		turn.Metadata = cloneMap(turn.Metadata)
	}
	return turn, nil
}
