package memory

import "context"

// Hit is one similarity match. Smaller distances are closer.
type Hit struct {
	ID       string
	Distance float64
}

// SimilarityIndex ranks items by semantic closeness to a text. Writes must
// be queryable once Upsert returns.
type SimilarityIndex interface {
	// Upsert embeds text and stores it under id, replacing any previous entry.
	Upsert(ctx context.Context, id, text string, projection map[string]string) error

	// Query returns up to k hits whose projection satisfies pred, closest first.
	Query(ctx context.Context, text string, pred Predicate, k int) ([]Hit, error)

	// Delete removes id. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error

	// Contains reports whether id is indexed.
	Contains(ctx context.Context, id string) (bool, error)

	// IDs lists every indexed id.
	IDs(ctx context.Context) ([]string, error)

	// Count returns the number of indexed entries.
	Count() int
}
