// Package facade is the single entry point to recall: short-term
// conversation memory, the long-term semantic store, and grounded
// question answering.
package facade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/flemzord/recall/internal/facade")

// MemoryStore is the long-term store the facade drives.
type MemoryStore interface {
	Add(ctx context.Context, item memory.MemoryItem) (memory.MemoryItem, error)
	Get(ctx context.Context, id string) (memory.MemoryItem, error)
	Update(ctx context.Context, item memory.MemoryItem) (memory.MemoryItem, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, section memory.Section) (int, error)
	IndexSize() int
}

// Planner turns a question into a query.
type Planner interface {
	Plan(ctx context.Context, text string) memory.Query
}

// Retriever runs a query within an owner scope.
type Retriever interface {
	Retrieve(ctx context.Context, q memory.Query, owner memory.OwnerScope) ([]memory.SearchResult, error)
}

// Composer builds an answer from retrieved results.
type Composer interface {
	Compose(ctx context.Context, q memory.Query, candidates []memory.SearchResult) (memory.GroundedAnswer, error)
}

// Config lists the facade's collaborators. All but Logger are required.
type Config struct {
	Buffer    memory.ConversationBuffer
	Store     MemoryStore
	Planner   Planner
	Retriever Retriever
	Composer  Composer
	Logger    *slog.Logger
}

// Facade wires the memory components together.
type Facade struct {
	buffer    memory.ConversationBuffer
	store     MemoryStore
	planner   Planner
	retriever Retriever
	composer  Composer
	logger    *slog.Logger
}

// New creates a Facade.
func New(cfg Config) (*Facade, error) {
	var errs []error
	if cfg.Buffer == nil {
		errs = append(errs, errors.New("buffer is required"))
	}
	if cfg.Store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	if cfg.Planner == nil {
		errs = append(errs, errors.New("planner is required"))
	}
	if cfg.Retriever == nil {
		errs = append(errs, errors.New("retriever is required"))
	}
	if cfg.Composer == nil {
		errs = append(errs, errors.New("composer is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("facade: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Facade{
		buffer:    cfg.Buffer,
		store:     cfg.Store,
		planner:   cfg.Planner,
		retriever: cfg.Retriever,
		composer:  cfg.Composer,
		logger:    logger,
	}, nil
}

// Record appends a turn to its conversation.
func (f *Facade) Record(ctx context.Context, turn memory.ConversationTurn) (memory.ConversationTurn, error) {
	return f.buffer.Record(ctx, turn)
}

// History returns a conversation's turns, newest first.
func (f *Facade) History(ctx context.Context, conversationID string, opts memory.HistoryOptions) ([]memory.ConversationTurn, error) {
	return f.buffer.History(ctx, conversationID, opts)
}

// ClearConversation forgets every turn of a conversation.
func (f *Facade) ClearConversation(ctx context.Context, conversationID string) (int, error) {
	return f.buffer.Clear(ctx, conversationID)
}

// Remember stores a new long-term memory item.
func (f *Facade) Remember(ctx context.Context, item memory.MemoryItem) (memory.MemoryItem, error) {
	return f.store.Add(ctx, item)
}

// Recall returns a stored item by id.
func (f *Facade) Recall(ctx context.Context, id string) (memory.MemoryItem, error) {
	return f.store.Get(ctx, id)
}

// Update replaces a stored item.
func (f *Facade) Update(ctx context.Context, item memory.MemoryItem) (memory.MemoryItem, error) {
	return f.store.Update(ctx, item)
}

// Forget deletes a stored item.
func (f *Facade) Forget(ctx context.Context, id string) error {
	return f.store.Delete(ctx, id)
}

// Count returns how many items are in section, or in total for "".
func (f *Facade) Count(ctx context.Context, section memory.Section) (int, error) {
	return f.store.Count(ctx, section)
}

// Answer plans, retrieves and composes an answer to question within
// owner's scope. A store failure is an error, never an empty answer.
func (f *Facade) Answer(ctx context.Context, question string, owner memory.OwnerScope) (_ memory.GroundedAnswer, err error) {
	ctx, span := tracer.Start(ctx, "memory.answer")
	started := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return memory.GroundedAnswer{}, err
	}
	q := f.planner.Plan(ctx, question)
	span.SetAttributes(attribute.String("memory.intent", string(q.Intent)))

	if err := ctx.Err(); err != nil {
		return memory.GroundedAnswer{}, err
	}
	results, err := f.retriever.Retrieve(ctx, q, owner)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return memory.GroundedAnswer{}, ctxErr
		}
		return memory.GroundedAnswer{}, fmt.Errorf("facade: answer: %w", err)
	}
	span.SetAttributes(attribute.Int("memory.results", len(results)))

	if err := ctx.Err(); err != nil {
		return memory.GroundedAnswer{}, err
	}
	answer, err := f.composer.Compose(ctx, q, results)
	if err != nil {
		return memory.GroundedAnswer{}, err
	}
	if err := ctx.Err(); err != nil {
		return memory.GroundedAnswer{}, err
	}

	f.logger.Debug("answered",
		"intent", q.Intent,
		"results", len(results),
		"has_evidence", answer.HasEvidence,
		"duration", time.Since(started))
	return answer, nil
}
