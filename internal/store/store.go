// Package store implements the semantic long-term memory store. Each item
// lives in two places: a lossless snapshot (the source of truth, plus the
// scalar projection used for filtering) and an entry in the similarity
// index. The store keeps both in step under a per-id lock.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/telemetry"
)

// DefaultMinScore is the score a search hit needs when it shares no content
// term with the query.
const DefaultMinScore = 0.6

var tracer = telemetry.Tracer("github.com/flemzord/recall/internal/store")

// Operation names used for spans and metrics.
const (
	opAdd     = "add"
	opGet     = "get"
	opUpdate  = "update"
	opDelete  = "delete"
	opSearch  = "search"
	opCount   = "count"
	opReindex = "reindex"
)

// Config configures a Store.
type Config struct {
	// MinScore drops search hits that share no content term with the query
	// and score below it. Nil selects DefaultMinScore; zero keeps every hit.
	MinScore *float64

	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *Metrics

	// Tracer overrides the package tracer.
	Tracer trace.Tracer
}

// Store is the semantic memory store.
type Store struct {
	snapshots memory.SnapshotStore
	index     memory.SimilarityIndex
	minScore  float64
	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer

	locks memory.KeyedMutex
}

// New creates a store over the given snapshot store and similarity index.
func New(snapshots memory.SnapshotStore, index memory.SimilarityIndex, cfg Config) (*Store, error) {
	if snapshots == nil {
		return nil, errors.New("store: snapshot store is required")
	}
	if index == nil {
		return nil, errors.New("store: similarity index is required")
	}
	minScore := DefaultMinScore
	if cfg.MinScore != nil {
		minScore = *cfg.MinScore
	}
	if minScore < 0 || minScore > 1 {
		return nil, fmt.Errorf("store: min score must be within [0,1], got %g", minScore)
	}
	s := &Store{
		snapshots: snapshots,
		index:     index,
		minScore:  minScore,
		now:       cfg.Now,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = telemetry.NopLogger()
	}
	if s.tracer == nil {
		s.tracer = tracer
	}
	return s, nil
}

// MinScore returns the active relevance floor.
func (s *Store) MinScore() float64 { return s.minScore }

// Add stores a new item. A blank id is assigned; an id already in use is
// rejected with memory.ErrAlreadyExists.
func (s *Store) Add(ctx context.Context, item memory.MemoryItem) (_ memory.MemoryItem, err error) {
	ctx, span := s.start(ctx, opAdd)
	defer s.finish(span, opAdd, time.Now(), &err)

	if err := validate(item); err != nil {
		return memory.MemoryItem{}, err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := s.clock()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	item = item.Canonical()
	span.SetAttributes(attribute.String("memory.id", item.ID), attribute.String("memory.section", string(item.Section)))

	unlock := s.locks.Lock(item.ID)
	defer unlock()

	_, err = s.snapshots.Get(ctx, item.ID)
	switch {
	case err == nil, memory.IsDataIntegrity(err):
		return memory.MemoryItem{}, fmt.Errorf("store: add %s: %w", item.ID, memory.ErrAlreadyExists)
	case !memory.IsNotFound(err):
		return memory.MemoryItem{}, unavailable("add", err)
	}

	if err := s.snapshots.Put(ctx, item); err != nil {
		return memory.MemoryItem{}, unavailable("add", err)
	}
	if err := s.index.Upsert(ctx, item.ID, memory.EmbeddingText(item), memory.Project(item)); err != nil {
		if _, cerr := s.snapshots.Delete(context.WithoutCancel(ctx), item.ID); cerr != nil {
			s.logger.Error("add compensation failed, snapshot left without index entry",
				"id", item.ID, "error", cerr)
		}
		return memory.MemoryItem{}, unavailable("add", err)
	}
	return item, nil
}

// Get returns the item stored under id.
func (s *Store) Get(ctx context.Context, id string) (_ memory.MemoryItem, err error) {
	ctx, span := s.start(ctx, opGet, attribute.String("memory.id", id))
	defer s.finish(span, opGet, time.Now(), &err)

	item, err := s.snapshots.Get(ctx, id)
	switch {
	case err == nil:
		return item, nil
	case memory.IsDataIntegrity(err):
		s.integrityError("corrupt snapshot", id, err)
		return memory.MemoryItem{}, fmt.Errorf("store: get %s: %w", id, err)
	case !memory.IsNotFound(err):
		return memory.MemoryItem{}, unavailable("get", err)
	}

	indexed, cerr := s.index.Contains(ctx, id)
	if cerr != nil {
		return memory.MemoryItem{}, unavailable("get", cerr)
	}
	if indexed {
		s.integrityError("index entry without snapshot", id, err)
		return memory.MemoryItem{}, fmt.Errorf("store: get %s: %w: snapshot missing", id, memory.ErrDataIntegrity)
	}
	return memory.MemoryItem{}, fmt.Errorf("store: get %s: %w", id, memory.ErrNotFound)
}

// Update replaces an existing item. CreatedAt is preserved and UpdatedAt
// never moves backwards.
func (s *Store) Update(ctx context.Context, item memory.MemoryItem) (_ memory.MemoryItem, err error) {
	ctx, span := s.start(ctx, opUpdate, attribute.String("memory.id", item.ID))
	defer s.finish(span, opUpdate, time.Now(), &err)

	if item.ID == "" {
		return memory.MemoryItem{}, fmt.Errorf("store: update: %w: id is required", memory.ErrInvalidItem)
	}
	if err := validate(item); err != nil {
		return memory.MemoryItem{}, err
	}

	unlock := s.locks.Lock(item.ID)
	defer unlock()

	prev, err := s.snapshots.Get(ctx, item.ID)
	switch {
	case memory.IsNotFound(err):
		return memory.MemoryItem{}, fmt.Errorf("store: update %s: %w", item.ID, memory.ErrNotFound)
	case memory.IsDataIntegrity(err):
		s.integrityError("corrupt snapshot", item.ID, err)
		return memory.MemoryItem{}, fmt.Errorf("store: update %s: %w", item.ID, err)
	case err != nil:
		return memory.MemoryItem{}, unavailable("update", err)
	}

	item.CreatedAt = prev.CreatedAt
	item.UpdatedAt = s.clock()
	if item.UpdatedAt.Before(prev.UpdatedAt) {
		item.UpdatedAt = prev.UpdatedAt
	}
	item = item.Canonical()
	span.SetAttributes(attribute.String("memory.section", string(item.Section)))

	if err := s.snapshots.Put(ctx, item); err != nil {
		return memory.MemoryItem{}, unavailable("update", err)
	}
	if err := s.index.Upsert(ctx, item.ID, memory.EmbeddingText(item), memory.Project(item)); err != nil {
		if cerr := s.snapshots.Put(context.WithoutCancel(ctx), prev); cerr != nil {
			s.logger.Error("update compensation failed, snapshot ahead of index",
				"id", item.ID, "error", cerr)
		}
		return memory.MemoryItem{}, unavailable("update", err)
	}
	return item, nil
}

// Delete removes an item from both the index and the snapshot store.
func (s *Store) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.start(ctx, opDelete, attribute.String("memory.id", id))
	defer s.finish(span, opDelete, time.Now(), &err)

	unlock := s.locks.Lock(id)
	defer unlock()

	prev, err := s.snapshots.Get(ctx, id)
	corrupt := memory.IsDataIntegrity(err)
	switch {
	case memory.IsNotFound(err):
		// Clear an orphaned index entry, but the item itself is gone.
		if derr := s.index.Delete(ctx, id); derr != nil {
			return unavailable("delete", derr)
		}
		return fmt.Errorf("store: delete %s: %w", id, memory.ErrNotFound)
	case err != nil && !corrupt:
		return unavailable("delete", err)
	}

	if err := s.index.Delete(ctx, id); err != nil {
		return unavailable("delete", err)
	}
	if _, err := s.snapshots.Delete(ctx, id); err != nil {
		if !corrupt {
			if uerr := s.index.Upsert(context.WithoutCancel(ctx), id, memory.EmbeddingText(prev), memory.Project(prev)); uerr != nil {
				s.logger.Error("delete compensation failed, snapshot left without index entry",
					"id", id, "error", uerr)
			}
		}
		return unavailable("delete", err)
	}
	return nil
}

// Count returns the number of stored items, restricted to section when set.
func (s *Store) Count(ctx context.Context, section memory.Section) (_ int, err error) {
	ctx, span := s.start(ctx, opCount, attribute.String("memory.section", string(section)))
	defer s.finish(span, opCount, time.Now(), &err)

	n, err := s.snapshots.Count(ctx, section)
	if err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// IndexSize returns the number of index entries.
func (s *Store) IndexSize() int {
	return s.index.Count()
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Round(0)
}

func (s *Store) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "memory.store."+op, trace.WithAttributes(attrs...))
}

func (s *Store) finish(span trace.Span, op string, started time.Time, errp *error) {
	err := *errp
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	s.metrics.observe(op, result(err), time.Since(started))
}

func (s *Store) integrityError(msg, id string, err error) {
	s.metrics.integrityError()
	s.logger.Error(msg, "id", id, "error", err)
}

// result labels an operation outcome for metrics.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case memory.IsNotFound(err):
		return "not_found"
	case errors.Is(err, memory.ErrInvalidItem):
		return "invalid"
	case errors.Is(err, memory.ErrAlreadyExists):
		return "conflict"
	case memory.IsDataIntegrity(err):
		return "integrity"
	case memory.IsStoreUnavailable(err):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

// unavailable wraps a collaborator failure. Context errors stay as they are
// so callers can tell cancellation from an outage.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	if memory.IsStoreUnavailable(err) {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return fmt.Errorf("store: %s: %w: %w", op, memory.ErrStoreUnavailable, err)
}

func validate(item memory.MemoryItem) error {
	if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.Content) == "" {
		return fmt.Errorf("store: %w: title or content is required", memory.ErrInvalidItem)
	}
	if item.Section != "" && !item.Section.Valid() {
		return fmt.Errorf("store: %w: unknown section %q", memory.ErrInvalidItem, item.Section)
	}
	switch item.Status {
	case "", memory.StatusActive, memory.StatusArchived, memory.StatusDeleted:
	default:
		return fmt.Errorf("store: %w: unknown status %q", memory.ErrInvalidItem, item.Status)
	}
	if item.TemporalRange != nil && item.TemporalRange.End != nil &&
		item.TemporalRange.End.Before(item.TemporalRange.Start) {
		return fmt.Errorf("store: %w: temporal range ends before it starts", memory.ErrInvalidItem)
	}
	return nil
}
