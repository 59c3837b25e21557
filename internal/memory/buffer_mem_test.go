package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBuffer(t *testing.T, window int, ttl time.Duration) (*InMemoryBuffer, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)}
	b, err := NewInMemoryBuffer(BufferConfig{WindowSize: window, TTL: ttl, Now: clock.Now})
	if err != nil {
		t.Fatalf("NewInMemoryBuffer: %v", err)
	}
	return b, clock
}

func recordN(t *testing.T, b ConversationBuffer, clock *testClock, conv string, n int) []ConversationTurn {
	t.Helper()
	out := make([]ConversationTurn, 0, n)
	for i := range n {
		turn, err := b.Record(context.Background(), ConversationTurn{
			ConversationID: conv,
			Role:           RoleUser,
			Text:           fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("Record(%d): %v", i, err)
		}
		out = append(out, turn)
		clock.Advance(time.Second)
	}
	return out
}

func texts(turns []ConversationTurn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Text
	}
	return out
}

func TestNewInMemoryBuffer_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewInMemoryBuffer(BufferConfig{WindowSize: -1}); err == nil {
		t.Error("expected error for negative window")
	}
	if _, err := NewInMemoryBuffer(BufferConfig{TTL: -time.Second}); err == nil {
		t.Error("expected error for negative ttl")
	}
	b, err := NewInMemoryBuffer(BufferConfig{})
	if err != nil {
		t.Fatalf("NewInMemoryBuffer: %v", err)
	}
	if b.cfg.WindowSize != DefaultWindowSize || b.cfg.TTL != DefaultTTL {
		t.Errorf("defaults = %d/%s", b.cfg.WindowSize, b.cfg.TTL)
	}
}

func TestInMemoryBuffer_WindowKeepsNewest(t *testing.T) {
	t.Parallel()
	b, clock := newTestBuffer(t, 3, time.Hour)

	recordN(t, b, clock, "c1", 5)

	got, err := b.History(context.Background(), "c1", HistoryOptions{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []string{"message 4", "message 3", "message 2"}
	if fmt.Sprint(texts(got)) != fmt.Sprint(want) {
		t.Errorf("History = %v, want %v", texts(got), want)
	}

	got, _ = b.History(context.Background(), "c1", HistoryOptions{Limit: 13})
	if len(got) != 3 {
		t.Errorf("History(limit above window) returned %d turns, want 3", len(got))
	}
	got, _ = b.History(context.Background(), "c1", HistoryOptions{Limit: 2})
	if fmt.Sprint(texts(got)) != fmt.Sprint(want[:2]) {
		t.Errorf("History(limit 2) = %v", texts(got))
	}
}

func TestInMemoryBuffer_TTLEviction(t *testing.T) {
	t.Parallel()
	b, clock := newTestBuffer(t, 10, time.Minute)
	ctx := context.Background()

	recordN(t, b, clock, "c1", 2)
	clock.Advance(2 * time.Minute)

	got, _ := b.History(ctx, "c1", HistoryOptions{})
	if len(got) != 0 {
		t.Errorf("expired turns still visible: %v", texts(got))
	}

	recordN(t, b, clock, "c1", 1)
	got, _ = b.History(ctx, "c1", HistoryOptions{})
	if len(got) != 1 || got[0].Text != "message 0" {
		t.Errorf("History after new record = %v", texts(got))
	}
}

func TestInMemoryBuffer_OrderAndSince(t *testing.T) {
	t.Parallel()
	b, clock := newTestBuffer(t, 10, time.Hour)
	ctx := context.Background()

	base := clock.Now()
	// Recorded out of order; equal timestamps keep insertion order.
	for _, tc := range []struct {
		text   string
		offset time.Duration
	}{
		{"b", 2 * time.Second},
		{"a", time.Second},
		{"c1", 3 * time.Second},
		{"c2", 3 * time.Second},
	} {
		if _, err := b.Record(ctx, ConversationTurn{
			ConversationID: "c",
			Role:           RoleAssistant,
			Text:           tc.text,
			Timestamp:      base.Add(tc.offset),
		}); err != nil {
			t.Fatalf("Record(%s): %v", tc.text, err)
		}
	}

	got, _ := b.History(ctx, "c", HistoryOptions{})
	if want := "[c2 c1 b a]"; fmt.Sprint(texts(got)) != want {
		t.Errorf("History = %v, want %s", texts(got), want)
	}

	got, _ = b.History(ctx, "c", HistoryOptions{Since: base.Add(2 * time.Second)})
	if want := "[c2 c1]"; fmt.Sprint(texts(got)) != want {
		t.Errorf("History(since) = %v, want %s", texts(got), want)
	}
}

func TestInMemoryBuffer_RecordAssignsFields(t *testing.T) {
	t.Parallel()
	b, clock := newTestBuffer(t, 5, time.Hour)

	turn, err := b.Record(context.Background(), ConversationTurn{
		ConversationID: "c",
		Role:           RoleUser,
		Text:           "hi",
		Metadata:       map[string]string{},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if turn.ID == "" {
		t.Error("Record did not assign an id")
	}
	if !turn.Timestamp.Equal(clock.Now()) {
		t.Errorf("Timestamp = %v, want %v", turn.Timestamp, clock.Now())
	}
	if turn.Metadata != nil {
		t.Errorf("empty metadata not normalized: %v", turn.Metadata)
	}
}

func TestInMemoryBuffer_RejectsInvalidTurns(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuffer(t, 5, time.Hour)

	tests := []struct {
		name string
		turn ConversationTurn
	}{
		{"missing conversation", ConversationTurn{Role: RoleUser, Text: "x"}},
		{"unknown role", ConversationTurn{ConversationID: "c", Role: "tool", Text: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Record(context.Background(), tt.turn)
			if !errors.Is(err, ErrInvalidTurn) {
				t.Errorf("Record() error = %v, want ErrInvalidTurn", err)
			}
		})
	}
}

func TestInMemoryBuffer_ClearAndSweep(t *testing.T) {
	t.Parallel()
	b, clock := newTestBuffer(t, 10, time.Minute)
	ctx := context.Background()

	recordN(t, b, clock, "a", 3)
	recordN(t, b, clock, "b", 2)

	n, err := b.Clear(ctx, "a")
	if err != nil || n != 3 {
		t.Errorf("Clear(a) = %d, %v; want 3", n, err)
	}
	if n, _ := b.Clear(ctx, "a"); n != 0 {
		t.Errorf("second Clear(a) = %d, want 0", n)
	}

	clock.Advance(time.Hour)
	removed, err := b.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if got, _ := b.History(ctx, "b", HistoryOptions{}); len(got) != 0 {
		t.Errorf("History(b) after sweep = %v", texts(got))
	}
}

func TestInMemoryBuffer_ConversationsIsolated(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuffer(t, 100, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for c := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				_, err := b.Record(ctx, ConversationTurn{
					ConversationID: fmt.Sprintf("conv-%d", c),
					Role:           RoleUser,
					Text:           fmt.Sprint(i),
				})
				if err != nil {
					t.Errorf("Record: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	for c := range 4 {
		got, _ := b.History(ctx, fmt.Sprintf("conv-%d", c), HistoryOptions{})
		if len(got) != 25 {
			t.Errorf("conv-%d has %d turns, want 25", c, len(got))
		}
	}
	if b.keys.Len() != 0 {
		t.Errorf("keyed mutex leaked %d entries", b.keys.Len())
	}
}

func TestInMemoryBuffer_CanceledContext(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuffer(t, 5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Record(ctx, ConversationTurn{ConversationID: "c", Role: RoleUser}); !errors.Is(err, context.Canceled) {
		t.Errorf("Record() error = %v, want context.Canceled", err)
	}
	if _, err := b.History(ctx, "c", HistoryOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("History() error = %v, want context.Canceled", err)
	}
}
