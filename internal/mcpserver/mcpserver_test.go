package mcpserver_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/recall/internal/composer"
	"github.com/flemzord/recall/internal/embed"
	"github.com/flemzord/recall/internal/facade"
	"github.com/flemzord/recall/internal/index"
	"github.com/flemzord/recall/internal/mcpserver"
	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/planner"
	"github.com/flemzord/recall/internal/retriever"
	"github.com/flemzord/recall/internal/store"
)

func newServer(t *testing.T) *mcpserver.Server {
	t.Helper()
	idx, err := index.New(index.Config{}, embed.NewHash(0))
	if err != nil {
		t.Fatalf("index.New: %v", err)
	}
	st, err := store.New(memory.NewInMemorySnapshots(), idx, store.Config{})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	buf, err := memory.NewInMemoryBuffer(memory.BufferConfig{})
	if err != nil {
		t.Fatal(err)
	}
	f, err := facade.New(facade.Config{
		Buffer:    buf,
		Store:     st,
		Planner:   planner.New(planner.Config{}),
		Retriever: retriever.New(st, nil),
		Composer:  composer.New(composer.Config{}),
	})
	if err != nil {
		t.Fatalf("facade.New: %v", err)
	}
	return mcpserver.New(f, mcpserver.Config{DefaultOwner: "ana"})
}

func call(t *testing.T, s *mcpserver.Server, tool string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	st := s.MCPServer().GetTool(tool)
	if st == nil {
		t.Fatalf("tool %s is not registered", tool)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	res, err := st.Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("%s: %v", tool, err)
	}
	return res
}

func text(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestTools_Registered(t *testing.T) {
	t.Parallel()

	tools := newServer(t).MCPServer().ListTools()
	for _, name := range []string{
		mcpserver.ToolRemember, mcpserver.ToolRecall, mcpserver.ToolForget,
		mcpserver.ToolAnswer, mcpserver.ToolConversationRecord, mcpserver.ToolConversationHistory,
	} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s missing", name)
		}
	}
}

func TestTools_RememberRecallForget(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	res := call(t, s, mcpserver.ToolRemember, map[string]any{
		"title":       "Dinner with Juan",
		"content":     "Tacos at the night market",
		"section":     "event",
		"people":      []any{"Juan"},
		"occurred_at": "2025-05-14T20:00:00Z",
	})
	if res.IsError {
		t.Fatalf("remember failed: %s", text(res))
	}
	item, ok := res.StructuredContent.(memory.MemoryItem)
	if !ok {
		t.Fatalf("structured content = %T", res.StructuredContent)
	}
	if item.OwnerID != "ana" || !item.HasPerson("juan") || item.OccurredAt().Day() != 14 {
		t.Errorf("stored = %+v", item)
	}

	res = call(t, s, mcpserver.ToolRecall, map[string]any{"id": item.ID})
	if res.IsError || !strings.Contains(text(res), "Dinner with Juan (event, 2025-05-14)") {
		t.Errorf("recall = %q", text(res))
	}

	if res := call(t, s, mcpserver.ToolForget, map[string]any{"id": item.ID}); res.IsError {
		t.Errorf("forget failed: %s", text(res))
	}
	res = call(t, s, mcpserver.ToolRecall, map[string]any{"id": item.ID})
	if !res.IsError || text(res) != "not found" {
		t.Errorf("recall after forget = %v %q", res.IsError, text(res))
	}
}

func TestTools_ArgumentErrors(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	tests := []struct {
		tool string
		args map[string]any
	}{
		{mcpserver.ToolRemember, map[string]any{}},
		{mcpserver.ToolRemember, map[string]any{"title": "x", "occurred_at": "last tuesday"}},
		{mcpserver.ToolRemember, map[string]any{"title": "x", "section": "poem"}},
		{mcpserver.ToolRecall, map[string]any{}},
		{mcpserver.ToolForget, map[string]any{"id": "missing"}},
		{mcpserver.ToolAnswer, map[string]any{"question": " "}},
		{mcpserver.ToolConversationRecord, map[string]any{"conversation_id": "c", "role": "robot", "text": "hi"}},
		{mcpserver.ToolConversationRecord, map[string]any{"conversation_id": "c"}},
		{mcpserver.ToolConversationHistory, map[string]any{}},
	}
	for _, tt := range tests {
		if res := call(t, s, tt.tool, tt.args); !res.IsError {
			t.Errorf("%s(%v) succeeded: %s", tt.tool, tt.args, text(res))
		}
	}
}

func TestTools_Conversation(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	for _, turn := range []struct{ role, text string }{
		{"user", "hello"},
		{"assistant", "hi there"},
	} {
		res := call(t, s, mcpserver.ToolConversationRecord, map[string]any{
			"conversation_id": "c1", "role": turn.role, "text": turn.text,
		})
		if res.IsError {
			t.Fatalf("record failed: %s", text(res))
		}
	}

	res := call(t, s, mcpserver.ToolConversationHistory, map[string]any{"conversation_id": "c1", "limit": float64(1)})
	out := text(res)
	if res.IsError || !strings.Contains(out, "assistant: hi there") || strings.Contains(out, "hello") {
		t.Errorf("history = %q", out)
	}

	res = call(t, s, mcpserver.ToolConversationHistory, map[string]any{"conversation_id": "empty"})
	if text(res) != "No turns recorded." {
		t.Errorf("empty history = %q", text(res))
	}
}

func TestTools_AnswerWithoutEvidence(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	res := call(t, s, mcpserver.ToolAnswer, map[string]any{"question": "what did I eat with Juan?"})
	if res.IsError {
		t.Fatalf("answer failed: %s", text(res))
	}
	answer, ok := res.StructuredContent.(memory.GroundedAnswer)
	if !ok {
		t.Fatalf("structured content = %T", res.StructuredContent)
	}
	if answer.HasEvidence || len(answer.Citations) != 0 || answer.Confidence != 0 {
		t.Errorf("answer = %+v, want no evidence", answer)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe_Stdio(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"memory_remember","arguments":{"title":"Pizza lunch"}}}`,
	}, "\n") + "\n"

	var out syncBuffer
	if err := newServer(t).Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	got := out.String()
	for _, want := range []string{`"name":"recall"`, `"memory_answer"`, `Stored memory `} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %s:\n%s", want, got)
		}
	}
}
