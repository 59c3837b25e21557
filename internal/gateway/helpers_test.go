package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/recall/internal/facade"
	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/security"
)

// fakeMemory is an in-process Memory with just enough semantics for the
// handlers: ids are assigned in order and turns go through PrepareTurn.
type fakeMemory struct {
	mu     sync.Mutex
	nextID int
	items  map[string]memory.MemoryItem
	turns  map[string][]memory.ConversationTurn

	statsErr  error
	answerErr error
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{
		items: make(map[string]memory.MemoryItem),
		turns: make(map[string][]memory.ConversationTurn),
	}
}

func (f *fakeMemory) Record(_ context.Context, turn memory.ConversationTurn) (memory.ConversationTurn, error) {
	turn, err := memory.PrepareTurn(turn, time.Now())
	if err != nil {
		return memory.ConversationTurn{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns[turn.ConversationID] = append([]memory.ConversationTurn{turn}, f.turns[turn.ConversationID]...)
	return turn, nil
}

func (f *fakeMemory) History(_ context.Context, conversationID string, opts memory.HistoryOptions) ([]memory.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	turns := f.turns[conversationID]
	if opts.Limit > 0 && opts.Limit < len(turns) {
		turns = turns[:opts.Limit]
	}
	return turns, nil
}

func (f *fakeMemory) ClearConversation(_ context.Context, conversationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.turns[conversationID])
	delete(f.turns, conversationID)
	return n, nil
}

func (f *fakeMemory) Remember(_ context.Context, item memory.MemoryItem) (memory.MemoryItem, error) {
	if item.Title == "" && item.Content == "" {
		return memory.MemoryItem{}, fmt.Errorf("%w: title or content is required", memory.ErrInvalidItem)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if item.ID == "" {
		f.nextID++
		item.ID = fmt.Sprintf("m%d", f.nextID)
	}
	if _, ok := f.items[item.ID]; ok {
		return memory.MemoryItem{}, memory.ErrAlreadyExists
	}
	f.items[item.ID] = item
	return item, nil
}

func (f *fakeMemory) Recall(_ context.Context, id string) (memory.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return memory.MemoryItem{}, memory.ErrNotFound
	}
	return item, nil
}

func (f *fakeMemory) Update(_ context.Context, item memory.MemoryItem) (memory.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[item.ID]; !ok {
		return memory.MemoryItem{}, memory.ErrNotFound
	}
	f.items[item.ID] = item
	return item, nil
}

func (f *fakeMemory) Forget(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return memory.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeMemory) Answer(_ context.Context, question string, owner memory.OwnerScope) (memory.GroundedAnswer, error) {
	if f.answerErr != nil {
		return memory.GroundedAnswer{}, f.answerErr
	}
	if owner.IsZero() {
		return memory.GroundedAnswer{}, memory.ErrNoOwnerScope
	}
	return memory.GroundedAnswer{Query: question, Answer: "no idea"}, nil
}

func (f *fakeMemory) Stats(context.Context) (facade.Stats, error) {
	if f.statsErr != nil {
		return facade.Stats{}, f.statsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return facade.Stats{Items: len(f.items), Sections: map[memory.Section]int{}, IndexSize: len(f.items)}, nil
}

// newTestGateway returns a gateway wired to mem without listening.
func newTestGateway(t *testing.T, mem Memory, cfg Config, audit *security.AuditLogger) (*Gateway, http.Handler) {
	t.Helper()
	cfg.defaults()
	reg := prometheus.NewRegistry()
	metrics, err := newHTTPMetrics(reg)
	if err != nil {
		t.Fatalf("newHTTPMetrics: %v", err)
	}
	g := &Gateway{
		config:    cfg,
		logger:    slog.New(slog.DiscardHandler),
		startedAt: time.Now(),
		audit:     audit,
		memory:    mem,
		gatherer:  reg,
		metrics:   metrics,
	}
	g.live.Store(newSettings(cfg))
	return g, g.buildRouter()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
