package embed

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestTerms(t *testing.T) {
	t.Parallel()

	got := Terms("Tell me about programming and code reviews")
	want := []string{"programming", "code", "review"}
	if !slices.Equal(got, want) {
		t.Errorf("Terms = %v, want %v", got, want)
	}
}

func TestStem(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"reviews": "review",
		"class":   "class",
		"bus":     "bus",
		"cars":    "car",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	t.Parallel()

	e := NewHash(0)
	a, err := e.Embed(context.Background(), "Python Code Review")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(context.Background(), "Python Code Review")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !slices.Equal(a, b) {
		t.Error("same text should embed identically")
	}
	if len(a) != DefaultHashDims {
		t.Errorf("len = %d, want %d", len(a), DefaultHashDims)
	}
	if got := cosine(a, a); math.Abs(got-1) > 1e-5 {
		t.Errorf("self cosine = %v, want 1", got)
	}
}

func TestHashEmbedder_RelatedCloserThanUnrelated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := NewHash(0)
	query, _ := e.Embed(ctx, "Tell me about programming and code reviews")
	related, _ := e.Embed(ctx, "Python Code Review\nReviewed the parser changes\nprogramming")
	unrelated, _ := e.Embed(ctx, "Pizza Lunch\nMargherita with the team\nfood")

	if cosine(query, related) <= cosine(query, unrelated) {
		t.Errorf("related cosine %v should exceed unrelated %v",
			cosine(query, related), cosine(query, unrelated))
	}
}

func TestHashEmbedder_StopwordOnlyFallsBack(t *testing.T) {
	t.Parallel()

	vec, err := NewHash(64).Embed(context.Background(), "what is it")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if IsZero(vec) {
		t.Error("stopword-only text should still produce a vector")
	}
}

func TestHashEmbedder_Empty(t *testing.T) {
	t.Parallel()

	_, err := NewHash(0).Embed(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
}

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) ModelID() string { return "counting" }

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text)), 1}, nil
}

func TestCachedEmbedder(t *testing.T) {
	t.Parallel()

	next := &countingEmbedder{}
	c, err := NewCached(next, 100)
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	first, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	c.Wait()

	first[0] = 99 // callers own their copy

	second, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1", next.calls)
	}
	if second[0] != 5 {
		t.Errorf("cached vector was mutated: %v", second)
	}
	if c.ModelID() != "counting" {
		t.Errorf("ModelID = %q", c.ModelID())
	}
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
	e, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	if e.ModelID() != "openai/text-embedding-3-small" {
		t.Errorf("ModelID = %q", e.ModelID())
	}
}
