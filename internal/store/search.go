package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flemzord/recall/internal/embed"
	"github.com/flemzord/recall/internal/memory"
)

// Search ranks stored items against q. Blank text yields no results. A hit
// is kept when it shares a content term with the query or, failing that,
// scores at least the store's minimum; the second rule lets a semantic
// embedder match paraphrases. Hits whose snapshot is missing or corrupt are
// logged and skipped.
func (s *Store) Search(ctx context.Context, q memory.Query) (_ []memory.SearchResult, err error) {
	ctx, span := s.start(ctx, opSearch, attribute.String("memory.intent", string(q.Intent)))
	defer s.finish(span, opSearch, time.Now(), &err)

	if strings.TrimSpace(q.Text) == "" {
		span.SetAttributes(attribute.Int("memory.results", 0))
		return []memory.SearchResult{}, nil
	}

	terms := uniqueTerms(q.Text)
	pred := memory.FiltersPredicate(q.Filters)
	limit := q.Limit()
	hits, err := s.index.Query(ctx, q.Text, pred, limit)
	if err != nil {
		return nil, unavailable("search", err)
	}
	if len(hits) == 0 {
		span.SetAttributes(attribute.Int("memory.results", 0))
		return []memory.SearchResult{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	snaps, err := s.snapshots.GetMany(ctx, ids)
	if err != nil {
		return nil, unavailable("search", err)
	}

	results := make([]memory.SearchResult, 0, len(hits))
	for _, h := range hits {
		snap, ok := snaps[h.ID]
		if !ok {
			s.integrityError("index hit without snapshot", h.ID, memory.ErrDataIntegrity)
			continue
		}
		if snap.Err != nil {
			s.integrityError("corrupt snapshot in search results", h.ID, snap.Err)
			continue
		}
		// The index filtered on the projection it was given at write
		// time; re-check against the snapshot itself.
		if !pred.IsEmpty() && !pred.Matches(memory.Project(snap.Item)) {
			s.logger.Warn("index projection out of date", "id", h.ID)
			continue
		}
		score := 1 / (1 + h.Distance)
		matched := highlights(terms, snap.Item)
		if len(matched) == 0 && score < s.minScore {
			continue
		}
		results = append(results, memory.SearchResult{
			Item:       snap.Item,
			Score:      score,
			Highlights: matched,
		})
	}

	memory.SortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	span.SetAttributes(attribute.Int("memory.results", len(results)))
	return results, nil
}

// KnowsPerson reports whether any stored item lists name among its people,
// for any owner.
func (s *Store) KnowsPerson(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}
	pred := memory.FiltersPredicate(memory.Filters{People: []string{name}})
	hits, err := s.index.Query(ctx, name, pred, 1)
	if err != nil {
		return false, unavailable("people lookup", err)
	}
	return len(hits) > 0, nil
}

func uniqueTerms(text string) []string {
	var out []string
	for _, t := range embed.Terms(text) {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// highlights returns the query terms that occur in the item text.
func highlights(terms []string, item memory.MemoryItem) []string {
	have := make(map[string]struct{})
	for _, t := range embed.Terms(memory.EmbeddingText(item)) {
		have[t] = struct{}{}
	}
	var out []string
	for _, t := range terms {
		if _, ok := have[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
