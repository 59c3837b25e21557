// Package mcpserver exposes the memory facade as Model Context Protocol
// tools over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/telemetry"
)

// Tool names.
const (
	ToolRemember            = "memory_remember"
	ToolRecall              = "memory_recall"
	ToolForget              = "memory_forget"
	ToolAnswer              = "memory_answer"
	ToolConversationRecord  = "conversation_record"
	ToolConversationHistory = "conversation_history"
)

// Memory is the part of the facade the tools call.
type Memory interface {
	Record(ctx context.Context, turn memory.ConversationTurn) (memory.ConversationTurn, error)
	History(ctx context.Context, conversationID string, opts memory.HistoryOptions) ([]memory.ConversationTurn, error)
	Remember(ctx context.Context, item memory.MemoryItem) (memory.MemoryItem, error)
	Recall(ctx context.Context, id string) (memory.MemoryItem, error)
	Forget(ctx context.Context, id string) error
	Answer(ctx context.Context, question string, owner memory.OwnerScope) (memory.GroundedAnswer, error)
}

// Config configures a Server.
type Config struct {
	Version string

	// DefaultOwner scopes items and answers when a call names no owner.
	DefaultOwner string

	Logger *slog.Logger
}

// Server serves the memory tools.
type Server struct {
	mcp    *server.MCPServer
	mem    Memory
	owner  string
	logger *slog.Logger
}

// New registers every tool on a fresh MCP server.
func New(mem Memory, cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	s := &Server{
		mcp: server.NewMCPServer("recall", cfg.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions("Long-term and conversational memory. Store facts with memory_remember and ask questions with memory_answer; answers cite the stored memories they rely on."),
		),
		mem:    mem,
		owner:  cfg.DefaultOwner,
		logger: logger,
	}
	s.mcp.AddTools(s.tools()...)
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve speaks MCP over in and out until ctx is canceled or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolRemember,
				mcp.WithDescription("Store a memory: an event, note, diary entry or task."),
				mcp.WithString("title", mcp.Description("Short title")),
				mcp.WithString("content", mcp.Description("Full text")),
				mcp.WithString("section", mcp.Description("Kind of memory"), mcp.Enum(sectionNames()...)),
				mcp.WithArray("tags", mcp.WithStringItems()),
				mcp.WithArray("people", mcp.Description("People involved"), mcp.WithStringItems()),
				mcp.WithString("location"),
				mcp.WithString("occurred_at", mcp.Description("When it happened, RFC 3339")),
				mcp.WithString("owner_id"),
				mcp.WithString("conversation_id"),
			),
			Handler: s.handleRemember,
		},
		{
			Tool: mcp.NewTool(ToolRecall,
				mcp.WithDescription("Fetch a stored memory by id."),
				mcp.WithString("id", mcp.Required()),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: s.handleRecall,
		},
		{
			Tool: mcp.NewTool(ToolForget,
				mcp.WithDescription("Delete a stored memory by id."),
				mcp.WithString("id", mcp.Required()),
				mcp.WithDestructiveHintAnnotation(true),
			),
			Handler: s.handleForget,
		},
		{
			Tool: mcp.NewTool(ToolAnswer,
				mcp.WithDescription("Answer a question from stored memories, with citations. Says so when nothing relevant is stored."),
				mcp.WithString("question", mcp.Required()),
				mcp.WithString("owner_id"),
				mcp.WithString("conversation_id"),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: s.handleAnswer,
		},
		{
			Tool: mcp.NewTool(ToolConversationRecord,
				mcp.WithDescription("Append a turn to a conversation's short-term memory."),
				mcp.WithString("conversation_id", mcp.Required()),
				mcp.WithString("role", mcp.Required(), mcp.Enum(string(memory.RoleUser), string(memory.RoleAssistant), string(memory.RoleSystem))),
				mcp.WithString("text", mcp.Required()),
				mcp.WithString("speaker_id"),
			),
			Handler: s.handleRecord,
		},
		{
			Tool: mcp.NewTool(ToolConversationHistory,
				mcp.WithDescription("Recent turns of a conversation, newest first."),
				mcp.WithString("conversation_id", mcp.Required()),
				mcp.WithNumber("limit", mcp.Min(0)),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: s.handleHistory,
		},
	}
}

func (s *Server) handleRemember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	item := memory.MemoryItem{
		Source:         memory.SourceCapture,
		Title:          req.GetString("title", ""),
		Content:        req.GetString("content", ""),
		Section:        memory.Section(req.GetString("section", "")),
		Tags:           req.GetStringSlice("tags", nil),
		People:         req.GetStringSlice("people", nil),
		Location:       req.GetString("location", ""),
		OwnerID:        req.GetString("owner_id", s.owner),
		ConversationID: req.GetString("conversation_id", ""),
	}
	if at := req.GetString("occurred_at", ""); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return mcp.NewToolResultError("occurred_at must be RFC 3339"), nil
		}
		item.TemporalRange = &memory.TimeRange{Start: t}
	}

	stored, err := s.mem.Remember(ctx, item)
	if err != nil {
		return s.toolError(ToolRemember, err), nil
	}
	return mcp.NewToolResultStructured(stored, "Stored memory "+stored.ID), nil
}

func (s *Server) handleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.mem.Recall(ctx, id)
	if err != nil {
		return s.toolError(ToolRecall, err), nil
	}
	return mcp.NewToolResultStructured(item, formatItem(item)), nil
}

func (s *Server) handleForget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.mem.Forget(ctx, id); err != nil {
		return s.toolError(ToolForget, err), nil
	}
	return mcp.NewToolResultText("Forgot memory " + id), nil
}

func (s *Server) handleAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	answer, err := s.mem.Answer(ctx, question, memory.OwnerScope{
		OwnerID:        req.GetString("owner_id", s.owner),
		ConversationID: req.GetString("conversation_id", ""),
	})
	if err != nil {
		return s.toolError(ToolAnswer, err), nil
	}
	return mcp.NewToolResultStructured(answer, formatAnswer(answer)), nil
}

func (s *Server) handleRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := req.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	role, err := req.RequireString("role")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	turn, err := s.mem.Record(ctx, memory.ConversationTurn{
		ConversationID: conversationID,
		SpeakerID:      req.GetString("speaker_id", ""),
		Role:           memory.Role(role),
		Text:           text,
	})
	if err != nil {
		return s.toolError(ToolConversationRecord, err), nil
	}
	return mcp.NewToolResultStructured(turn, "Recorded turn "+turn.ID), nil
}

func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := req.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	turns, err := s.mem.History(ctx, conversationID, memory.HistoryOptions{Limit: req.GetInt("limit", 0)})
	if err != nil {
		return s.toolError(ToolConversationHistory, err), nil
	}

	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "[%s] %s: %s\n", t.Timestamp.Format(time.RFC3339), t.Role, t.Text)
	}
	if b.Len() == 0 {
		b.WriteString("No turns recorded.")
	}
	return mcp.NewToolResultStructured(map[string]any{"turns": turns}, b.String()), nil
}

// toolError reports err inside the result so the client model sees it.
// Store outages are logged; caller mistakes are not.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case memory.IsNotFound(err):
		return mcp.NewToolResultError("not found")
	case memory.IsStoreUnavailable(err):
		s.logger.Error("mcp tool failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("memory store is unavailable, try again later")
	case memory.IsDataIntegrity(err):
		s.logger.Error("mcp tool failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("stored memory is corrupt")
	}
	return mcp.NewToolResultErrorFromErr(tool+" failed", err)
}

func sectionNames() []string {
	out := make([]string, len(memory.Sections))
	for i, s := range memory.Sections {
		out[i] = string(s)
	}
	return out
}

func formatItem(item memory.MemoryItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, %s)", item.Title, item.Section, item.OccurredAt().Format(time.DateOnly))
	if item.Content != "" {
		b.WriteString("\n" + item.Content)
	}
	return b.String()
}

func formatAnswer(a memory.GroundedAnswer) string {
	var b strings.Builder
	b.WriteString(a.Answer)
	for i, c := range a.Citations {
		fmt.Fprintf(&b, "\n[%d] %s (%s, id %s)", i+1, c.Title, c.CreatedAt.Format(time.DateOnly), c.MemoryID)
	}
	return b.String()
}
