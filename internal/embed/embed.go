// Package embed turns text into vectors for the similarity index.
package embed

import (
	"context"
	"errors"
	"math"
)

// ErrEmptyText is returned when there is nothing to embed.
var ErrEmptyText = errors.New("embed: empty text")

// Embedder converts text into a fixed-size vector.
type Embedder interface {
	// Embed returns the vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelID names the model so vectors from different models never mix.
	ModelID() string
}

// Normalize scales vec to unit length in place. A zero vector is left as is.
func Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= n
	}
}

// IsZero reports whether every component of vec is zero.
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
