package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/recall/internal/facade"
	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/security"
)

var errBadRequest = errors.New("bad request")

// Memory is the part of the facade the gateway serves.
type Memory interface {
	Record(ctx context.Context, turn memory.ConversationTurn) (memory.ConversationTurn, error)
	History(ctx context.Context, conversationID string, opts memory.HistoryOptions) ([]memory.ConversationTurn, error)
	ClearConversation(ctx context.Context, conversationID string) (int, error)
	Remember(ctx context.Context, item memory.MemoryItem) (memory.MemoryItem, error)
	Recall(ctx context.Context, id string) (memory.MemoryItem, error)
	Update(ctx context.Context, item memory.MemoryItem) (memory.MemoryItem, error)
	Forget(ctx context.Context, id string) error
	Answer(ctx context.Context, question string, owner memory.OwnerScope) (memory.GroundedAnswer, error)
	Stats(ctx context.Context) (facade.Stats, error)
}

// AnswerRequest is the body of POST /api/answer.
type AnswerRequest struct {
	Question       string `json:"question"`
	OwnerID        string `json:"owner_id"`
	ConversationID string `json:"conversation_id"`
}

// ClearResponse is returned by DELETE /api/conversations/{id}/turns.
type ClearResponse struct {
	Deleted int `json:"deleted"`
}

func (g *Gateway) decode(r *http.Request, v any) error {
	return security.DecodeJSON(r.Body, g.live.Load().maxBodySize, v)
}

// fail writes err and logs responses the caller cannot fix.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := statusFor(err); status >= http.StatusInternalServerError {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, err)
}

// limit applies bucket to the wrapped handler.
func (g *Gateway) limit(bucket string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.live.Load().limiter.Allow(bucket); err != nil {
			g.audit.Log(security.AuditEvent{Type: security.EventRateLimit, RemoteAddr: r.RemoteAddr, Detail: bucket})
			g.fail(w, r, err)
			return
		}
		next(w, r)
	}
}

func (g *Gateway) handleRecordTurn(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	var turn memory.ConversationTurn
	if err := g.decode(r, &turn); err != nil {
		g.fail(w, r, err)
		return
	}
	if turn.ConversationID != "" && turn.ConversationID != conversationID {
		g.fail(w, r, fmt.Errorf("%w: conversation_id %q does not match path", errBadRequest, turn.ConversationID))
		return
	}
	turn.ConversationID = conversationID

	stored, err := g.memory.Record(r.Context(), turn)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	var opts memory.HistoryOptions
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			g.fail(w, r, fmt.Errorf("%w: invalid limit %q", errBadRequest, s))
			return
		}
		opts.Limit = n
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			g.fail(w, r, fmt.Errorf("%w: since must be RFC 3339", errBadRequest))
			return
		}
		opts.Since = since
	}

	turns, err := g.memory.History(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	if turns == nil {
		turns = []memory.ConversationTurn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

func (g *Gateway) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := g.memory.ClearConversation(r.Context(), id)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.audit.Log(security.AuditEvent{
		Type:           security.EventConversationClear,
		ConversationID: id,
		RemoteAddr:     r.RemoteAddr,
		Detail:         strconv.Itoa(n) + " turns",
	})
	writeJSON(w, http.StatusOK, ClearResponse{Deleted: n})
}

func (g *Gateway) handleRemember(w http.ResponseWriter, r *http.Request) {
	var item memory.MemoryItem
	if err := g.decode(r, &item); err != nil {
		g.fail(w, r, err)
		return
	}
	stored, err := g.memory.Remember(r.Context(), item)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.auditWrite(r, stored, "add")
	writeJSON(w, http.StatusCreated, stored)
}

func (g *Gateway) handleRecall(w http.ResponseWriter, r *http.Request) {
	item, err := g.memory.Recall(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (g *Gateway) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var item memory.MemoryItem
	if err := g.decode(r, &item); err != nil {
		g.fail(w, r, err)
		return
	}
	if item.ID != "" && item.ID != id {
		g.fail(w, r, fmt.Errorf("%w: id %q does not match path", errBadRequest, item.ID))
		return
	}
	item.ID = id

	stored, err := g.memory.Update(r.Context(), item)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.auditWrite(r, stored, "update")
	writeJSON(w, http.StatusOK, stored)
}

func (g *Gateway) handleForget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := g.memory.Forget(r.Context(), id); err != nil {
		g.fail(w, r, err)
		return
	}
	g.audit.Log(security.AuditEvent{Type: security.EventMemoryDelete, ItemID: id, RemoteAddr: r.RemoteAddr})
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := g.decode(r, &req); err != nil {
		g.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		g.fail(w, r, fmt.Errorf("%w: question is required", errBadRequest))
		return
	}

	answer, err := g.memory.Answer(r.Context(), req.Question, memory.OwnerScope{
		OwnerID:        req.OwnerID,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		g.fail(w, r, err)
		return
	}
	if answer.Citations == nil {
		answer.Citations = []memory.Citation{}
	}
	writeJSON(w, http.StatusOK, answer)
}

func (g *Gateway) auditWrite(r *http.Request, item memory.MemoryItem, op string) {
	g.audit.Log(security.AuditEvent{
		Type:           security.EventMemoryWrite,
		OwnerID:        item.OwnerID,
		ConversationID: item.ConversationID,
		ItemID:         item.ID,
		RemoteAddr:     r.RemoteAddr,
		Detail:         op,
		Metadata:       map[string]string{"section": string(item.Section)},
	})
}
