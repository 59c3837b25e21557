// Package index implements the similarity index on top of chromem-go, an
// embedded pure-Go vector database.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"
	"sync/atomic"

	chromem "github.com/philippgille/chromem-go"

	"github.com/flemzord/recall/internal/embed"
	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/telemetry"
)

const (
	defaultCollection = "memories"
	maxQueryAttempts  = 3
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Config configures a chromem index.
type Config struct {
	// Path enables persistence to this directory. Empty keeps the index in
	// memory only.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Collection is the collection name prefix. Defaults to "memories".
	Collection string

	Logger *slog.Logger
}

// Chromem is a memory.SimilarityIndex backed by a chromem-go collection.
// Each embedding model gets its own collection so vectors never mix.
type Chromem struct {
	db       *chromem.DB
	coll     *chromem.Collection
	embedder embed.Embedder
	logger   *slog.Logger
	dims     atomic.Int64
}

// Compile-time interface check.
var _ memory.SimilarityIndex = (*Chromem)(nil)

// New opens or creates the index.
func New(cfg Config, embedder embed.Embedder) (*Chromem, error) {
	if embedder == nil {
		return nil, errors.New("index: embedder is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	prefix := cfg.Collection
	if prefix == "" {
		prefix = defaultCollection
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("index: opening %s: %w", cfg.Path, err)
		}
	}

	name := prefix + "_" + unsafeName.ReplaceAllString(embedder.ModelID(), "_")
	for existing := range db.ListCollections() {
		if existing != name && strings.HasPrefix(existing, prefix+"_") {
			logger.Warn("dropping index built with another embedding model", "collection", existing)
			if err := db.DeleteCollection(existing); err != nil {
				return nil, fmt.Errorf("index: dropping stale collection %s: %w", existing, err)
			}
		}
	}

	c := &Chromem{db: db, embedder: embedder, logger: logger}
	coll, err := db.GetOrCreateCollection(name, map[string]string{"embedding_model": embedder.ModelID()}, c.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("index: opening collection %s: %w", name, err)
	}
	c.coll = coll
	logger.Info("similarity index ready", "collection", name, "documents", coll.Count(), "persistent", cfg.Path != "")
	return c, nil
}

func (c *Chromem) embedFunc(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.dims.Store(int64(len(vec)))
	return vec, nil
}

// Upsert implements memory.SimilarityIndex. chromem overwrites documents
// with the same id in place.
func (c *Chromem) Upsert(ctx context.Context, id, text string, projection map[string]string) error {
	vec, err := c.embedFunc(ctx, text)
	if err != nil {
		return fmt.Errorf("index: embedding %s: %w", id, err)
	}
	if embed.IsZero(vec) {
		return fmt.Errorf("index: embedding %s: %w", id, embed.ErrEmptyText)
	}
	doc := chromem.Document{
		ID:        id,
		Metadata:  maps.Clone(projection),
		Embedding: vec,
		Content:   text,
	}
	if err := c.coll.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index: adding %s: %w", id, err)
	}
	return nil
}

// Query implements memory.SimilarityIndex. Equality clauses are pushed down
// to chromem; set and range clauses are checked on the candidates, which
// then requires ranking every document passing the equality clauses.
func (c *Chromem) Query(ctx context.Context, text string, pred memory.Predicate, k int) ([]memory.Hit, error) {
	if k <= 0 || c.coll.Count() == 0 {
		return nil, nil
	}
	vec, err := c.embedFunc(ctx, text)
	if errors.Is(err, embed.ErrEmptyText) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: embedding query: %w", err)
	}
	if embed.IsZero(vec) {
		return nil, nil
	}

	postFilter := len(pred.AnyOf) > 0 || len(pred.Ranges) > 0
	results, err := c.queryAll(ctx, vec, k, postFilter, pred.Equals)
	if err != nil {
		return nil, err
	}

	hits := make([]memory.Hit, 0, min(k, len(results)))
	for _, r := range results {
		if postFilter && !pred.Matches(r.Metadata) {
			continue
		}
		hits = append(hits, memory.Hit{ID: r.ID, Distance: distance(r.Similarity)})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// queryAll asks chromem for up to want results, or for every document when
// all is set. chromem rejects n above the collection size, and the size can
// shrink between Count and the query, so the call is retried.
func (c *Chromem) queryAll(ctx context.Context, vec []float32, want int, all bool, where map[string]string) ([]chromem.Result, error) {
	var lastErr error
	for range maxQueryAttempts {
		total := c.coll.Count()
		if total == 0 {
			return nil, nil
		}
		n := want
		if all || n > total {
			n = total
		}
		res, err := c.coll.QueryEmbedding(ctx, vec, n, where, nil)
		if err == nil {
			return res, nil
		}
		if !isInsufficientDocsError(err) {
			return nil, fmt.Errorf("index: query: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("index: query: %w", lastErr)
}

// Delete implements memory.SimilarityIndex.
func (c *Chromem) Delete(ctx context.Context, id string) error {
	if err := c.coll.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("index: deleting %s: %w", id, err)
	}
	return nil
}

// Contains implements memory.SimilarityIndex.
func (c *Chromem) Contains(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	_, err := c.coll.GetByID(ctx, id)
	return err == nil, nil
}

// IDs implements memory.SimilarityIndex. chromem has no listing call, so
// every document is ranked against an arbitrary unit probe vector.
func (c *Chromem) IDs(ctx context.Context) ([]string, error) {
	if c.coll.Count() == 0 {
		return nil, nil
	}
	dims := int(c.dims.Load())
	if dims == 0 {
		vec, err := c.embedFunc(ctx, "recall index probe")
		if err != nil {
			return nil, fmt.Errorf("index: probing dimensions: %w", err)
		}
		dims = len(vec)
	}
	probe := make([]float32, dims)
	probe[0] = 1

	res, err := c.queryAll(ctx, probe, 0, true, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(res))
	for i, r := range res {
		ids[i] = r.ID
	}
	return ids, nil
}

// Count implements memory.SimilarityIndex.
func (c *Chromem) Count() int {
	return c.coll.Count()
}

// distance converts cosine similarity into a non-negative distance.
func distance(similarity float32) float64 {
	d := 1 - float64(similarity)
	if d < 0 {
		return 0
	}
	return d
}

func isInsufficientDocsError(err error) bool {
	return strings.Contains(err.Error(), "nResults must be <= the number of documents")
}
