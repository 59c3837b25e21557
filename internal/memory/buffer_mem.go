package memory

import (
	"context"
	"slices"
	"sync"
	"time"
)

// conversation is the log of one conversation, oldest turn first.
type conversation struct {
	turns []ConversationTurn
}

// InMemoryBuffer is a ConversationBuffer held in process memory.
type InMemoryBuffer struct {
	cfg   BufferConfig
	keys  KeyedMutex
	mu    sync.Mutex // guards convs; never held while a turn is processed
	convs map[string]*conversation
}

// Compile-time interface check.
var _ ConversationBuffer = (*InMemoryBuffer)(nil)

// NewInMemoryBuffer creates an empty buffer. Zero config values take defaults.
func NewInMemoryBuffer(cfg BufferConfig) (*InMemoryBuffer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &InMemoryBuffer{
		cfg:   cfg,
		convs: make(map[string]*conversation),
	}, nil
}

func (b *InMemoryBuffer) lookup(id string, create bool) *conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.convs[id]
	if !ok && create {
		c = &conversation{}
		b.convs[id] = c
	}
	return c
}

// Record appends a turn and evicts expired and excess turns.
func (b *InMemoryBuffer) Record(ctx context.Context, turn ConversationTurn) (ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return ConversationTurn{}, err
	}
	now := b.cfg.Now()
	turn, err := PrepareTurn(turn, now)
	if err != nil {
		return ConversationTurn{}, err
	}

	unlock := b.keys.Lock(turn.ConversationID)
	defer unlock()

	c := b.lookup(turn.ConversationID, true)
	c.turns = append(c.turns, turn)
	// Stable sort keeps insertion order among equal timestamps.
	slices.SortStableFunc(c.turns, func(a, b ConversationTurn) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	c.turns = evict(c.turns, b.cfg.Cutoff(now), b.cfg.WindowSize)
	if len(c.turns) == 0 {
		b.drop(turn.ConversationID, c)
	}
	return cloneTurn(turn), nil
}

// History returns up to the window size of turns, newest first.
func (b *InMemoryBuffer) History(ctx context.Context, conversationID string, opts HistoryOptions) ([]ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := b.keys.Lock(conversationID)
	defer unlock()

	c := b.lookup(conversationID, false)
	if c == nil {
		return nil, nil
	}

	limit := b.cfg.HistoryLimit(opts)
	cutoff := b.cfg.Cutoff(b.cfg.Now())
	var out []ConversationTurn
	for i := len(c.turns) - 1; i >= 0 && len(out) < limit; i-- {
		t := c.turns[i]
		if t.Timestamp.Before(cutoff) {
			break
		}
		if !opts.Since.IsZero() && !t.Timestamp.After(opts.Since) {
			break
		}
		out = append(out, cloneTurn(t))
	}
	return out, nil
}

// Clear removes a conversation and returns how many turns it held.
func (b *InMemoryBuffer) Clear(ctx context.Context, conversationID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	unlock := b.keys.Lock(conversationID)
	defer unlock()

	c := b.lookup(conversationID, false)
	if c == nil {
		return 0, nil
	}
	n := len(c.turns)
	b.drop(conversationID, c)
	return n, nil
}

// Sweep evicts expired turns from every conversation.
func (b *InMemoryBuffer) Sweep(ctx context.Context) (int, error) {
	b.mu.Lock()
	ids := make([]string, 0, len(b.convs))
	for id := range b.convs {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	cutoff := b.cfg.Cutoff(b.cfg.Now())
	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		removed += b.sweepOne(id, cutoff)
	}
	return removed, nil
}

func (b *InMemoryBuffer) sweepOne(id string, cutoff time.Time) int {
	unlock := b.keys.Lock(id)
	defer unlock()

	c := b.lookup(id, false)
	if c == nil {
		return 0
	}
	before := len(c.turns)
	c.turns = evict(c.turns, cutoff, b.cfg.WindowSize)
	if len(c.turns) == 0 {
		b.drop(id, c)
	}
	return before - len(c.turns)
}

func (b *InMemoryBuffer) drop(id string, c *conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.convs[id] == c {
		delete(b.convs, id)
	}
	c.turns = nil
}

// evict drops turns older than cutoff and then the oldest turns beyond
// window. turns must be sorted oldest first.
func evict(turns []ConversationTurn, cutoff time.Time, window int) []ConversationTurn {
	start := 0
	for start < len(turns) && turns[start].Timestamp.Before(cutoff) {
		start++
	}
	if excess := len(turns) - start - window; excess > 0 {
		start += excess
	}
	if start == 0 {
		return turns
	}
	return slices.Clone(turns[start:])
}

func cloneTurn(t ConversationTurn) ConversationTurn {
	t.Metadata = cloneMap(t.Metadata)
	return t
}
