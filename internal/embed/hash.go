package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// DefaultHashDims is the vector size of the hash embedder.
const DefaultHashDims = 2048

// HashEmbedder is a dependency-free embedder that hashes content terms into
// signed buckets. Texts sharing terms get a positive cosine; texts sharing
// none stay near zero.
type HashEmbedder struct {
	dims int
}

// Compile-time interface check.
var _ Embedder = (*HashEmbedder)(nil)

// NewHash creates a hash embedder. dims <= 0 selects DefaultHashDims.
func NewHash(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDims
	}
	return &HashEmbedder{dims: dims}
}

// ModelID implements Embedder.
func (e *HashEmbedder) ModelID() string {
	return fmt.Sprintf("recall-hash-%d-v1", e.dims)
}

// Dimensions returns the vector size.
func (e *HashEmbedder) Dimensions() int { return e.dims }

// Embed implements Embedder. Text made only of stopwords falls back to all
// of its tokens, and text without tokens hashes as a whole.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	terms := Terms(text)
	if len(terms) == 0 {
		terms = Tokens(text)
	}
	if len(terms) == 0 {
		terms = []string{strings.ToLower(text)}
	}

	vec := make([]float32, e.dims)
	for _, term := range terms {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}
	Normalize(vec)
	return vec, nil
}
