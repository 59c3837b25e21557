// Package retriever scopes planned queries to an owner and runs them
// against the semantic store.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/telemetry"
)

// Searcher is the part of the semantic store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, q memory.Query) ([]memory.SearchResult, error)
}

// Retriever applies owner scope and filter hygiene before searching.
type Retriever struct {
	store  Searcher
	logger *slog.Logger
}

// New creates a Retriever over store. logger may be nil.
func New(store Searcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Retriever{store: store, logger: logger}
}

// Retrieve searches within owner's scope. The scope always replaces any
// owner or conversation filter already on q.
func (r *Retriever) Retrieve(ctx context.Context, q memory.Query, owner memory.OwnerScope) ([]memory.SearchResult, error) {
	if owner.IsZero() {
		return nil, memory.ErrNoOwnerScope
	}

	q.Filters = clean(q.Filters)
	q.Filters.OwnerID = owner.OwnerID
	q.Filters.ConversationID = owner.ConversationID
	q.MaxResults = q.Limit()

	results, err := r.store.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("retriever: %w", err)
	}
	r.logger.Debug("retrieved", "intent", q.Intent, "results", len(results), "limit", q.MaxResults)
	return results, nil
}

// clean trims and deduplicates list filters and orders the date range.
func clean(f memory.Filters) memory.Filters {
	out := memory.Filters{
		People: dedupe(f.People),
		Places: dedupe(f.Places),
		Tags:   dedupe(f.Tags),
	}
	for _, s := range f.Sections {
		if s.Valid() && !slices.Contains(out.Sections, s) {
			out.Sections = append(out.Sections, s)
		}
	}
	if dr := f.DateRange; dr != nil && (!dr.From.IsZero() || !dr.To.IsZero()) {
		cp := *dr
		if !cp.From.IsZero() && !cp.To.IsZero() && cp.To.Before(cp.From) {
			cp.From, cp.To = cp.To, cp.From
		}
		out.DateRange = &cp
	}
	return out
}

func dedupe(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !slices.ContainsFunc(out, func(seen string) bool { return strings.EqualFold(seen, v) }) {
			out = append(out, v)
		}
	}
	return out
}
