package composer_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flemzord/recall/internal/composer"
	"github.com/flemzord/recall/internal/composer/composertest"
	"github.com/flemzord/recall/internal/memory"
)

func result(id, title, content string, score float64, created time.Time) memory.SearchResult {
	return memory.SearchResult{
		Item:  memory.MemoryItem{ID: id, Title: title, Content: content, CreatedAt: created},
		Score: score,
	}
}

func candidates() []memory.SearchResult {
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	return []memory.SearchResult{
		result("old", "Pizza night", "Had pizza with Juan at Luigi's.", 0.8, base),
		result("top", "Pizza again", "Margherita at home.", 0.9, base),
		result("new", "Pizza place", "Found a new pizza place.", 0.8, base.Add(time.Hour)),
	}
}

func TestCompose_NoEvidence(t *testing.T) {
	t.Parallel()

	gen := composertest.Answer("made up [1]")
	c := composer.New(composer.Config{Generator: gen})
	for _, in := range [][]memory.SearchResult{nil, {}} {
		ans, err := c.Compose(context.Background(), memory.Query{Text: "quantum gravity"}, in)
		if err != nil {
			t.Fatalf("Compose: %v", err)
		}
		if ans.HasEvidence || ans.Confidence != 0 || ans.Citations == nil || len(ans.Citations) != 0 {
			t.Errorf("answer = %+v", ans)
		}
		if ans.Answer != composer.NoInformationAnswer || ans.Reasoning == "" || ans.Query != "quantum gravity" {
			t.Errorf("answer = %+v", ans)
		}
	}
	if len(gen.Prompts()) != 0 {
		t.Error("generator called without evidence")
	}
}

func TestCompose_Template(t *testing.T) {
	t.Parallel()

	ans, err := composer.New(composer.Config{}).Compose(context.Background(), memory.Query{Text: "pizza?"}, candidates())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !ans.HasEvidence || len(ans.Citations) != 3 {
		t.Fatalf("answer = %+v", ans)
	}
	ids := []string{ans.Citations[0].MemoryID, ans.Citations[1].MemoryID, ans.Citations[2].MemoryID}
	if ids[0] != "top" || ids[1] != "new" || ids[2] != "old" {
		t.Errorf("citation order = %v, want score desc then newest", ids)
	}
	want := "Here is what I found in your memories:\n" +
		"[1] Pizza again (2025-05-01): Margherita at home.\n" +
		"[2] Pizza place (2025-05-01): Found a new pizza place.\n" +
		"[3] Pizza night (2025-05-01): Had pizza with Juan at Luigi's."
	if ans.Answer != want {
		t.Errorf("Answer =\n%s\nwant\n%s", ans.Answer, want)
	}
	if got := composer.Confidence(0.9, 3); math.Abs(ans.Confidence-got) > 1e-9 || math.Abs(got-0.72) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.72", ans.Confidence)
	}
	if !strings.Contains(ans.Reasoning, "template") {
		t.Errorf("Reasoning = %q", ans.Reasoning)
	}
}

func TestCompose_CitesTopFive(t *testing.T) {
	t.Parallel()

	var in []memory.SearchResult
	for i := range 8 {
		in = append(in, result(string(rune('a'+i)), "t", "c", 0.6+float64(i)*0.01, time.Time{}))
	}
	ans, err := composer.New(composer.Config{}).Compose(context.Background(), memory.Query{}, in)
	if err != nil {
		t.Fatal(err)
	}
	if len(ans.Citations) != composer.MaxCitations || ans.Citations[0].MemoryID != "h" {
		t.Errorf("citations = %+v", ans.Citations)
	}
	if math.Abs(ans.Confidence-0.67) > 1e-9 {
		t.Errorf("Confidence = %v", ans.Confidence)
	}
	for _, c := range ans.Citations {
		found := false
		for _, r := range in {
			if r.Item.ID == c.MemoryID {
				found = true
			}
		}
		if !found {
			t.Errorf("citation %q not among candidates", c.MemoryID)
		}
	}
}

func TestCompose_Generator(t *testing.T) {
	t.Parallel()

	gen := composertest.Answer("  You had a Margherita at home [1] and tried a new place [2].  ")
	ans, err := composer.New(composer.Config{Generator: gen}).Compose(context.Background(), memory.Query{Text: "pizza?"}, candidates())
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "You had a Margherita at home [1] and tried a new place [2]." {
		t.Errorf("Answer = %q", ans.Answer)
	}
	prompt := gen.Prompts()[0]
	for _, want := range []string{"Question: pizza?", "[1] Pizza again (2025-05-01)", "Margherita at home.", "[3] Pizza night"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestCompose_GeneratorFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fn     func(ctx context.Context, prompt string, c composer.Constraints) (string, error)
		reason string
	}{
		{"error", func(context.Context, string, composer.Constraints) (string, error) {
			return "", errors.New("boom")
		}, "generator_failed"},
		{"timeout", func(ctx context.Context, _ string, _ composer.Constraints) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}, "generator_failed"},
		{"no markers", func(context.Context, string, composer.Constraints) (string, error) {
			return "You had pizza.", nil
		}, "rejected"},
		{"uncited sentence", func(context.Context, string, composer.Constraints) (string, error) {
			return "You had pizza [1]. You also met the mayor.", nil
		}, "rejected"},
		{"out of range marker", func(_ context.Context, _ string, c composer.Constraints) (string, error) {
			if c.Citations != 3 {
				t.Errorf("Constraints.Citations = %d", c.Citations)
			}
			return "Pizza [1] and sushi [4].", nil
		}, "rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := composer.New(composer.Config{
				Generator: &composertest.MockGenerator{GenerateFunc: tt.fn},
				Timeout:   20 * time.Millisecond,
			})
			ans, err := c.Compose(context.Background(), memory.Query{Text: "pizza?"}, candidates())
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(ans.Answer, "Here is what I found") {
				t.Errorf("Answer = %q, want template", ans.Answer)
			}
			if !strings.Contains(ans.Reasoning, tt.reason) {
				t.Errorf("Reasoning = %q, want %q", ans.Reasoning, tt.reason)
			}
		})
	}
}

func TestCompose_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	gen := &composertest.MockGenerator{GenerateFunc: func(ctx context.Context, _ string, _ composer.Constraints) (string, error) {
		cancel()
		return "", ctx.Err()
	}}
	ans, err := composer.New(composer.Config{Generator: gen}).Compose(ctx, memory.Query{}, candidates())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if ans.Answer != "" || ans.Citations != nil {
		t.Errorf("answer = %+v, want zero", ans)
	}

	if _, err := composer.New(composer.Config{}).Compose(ctx, memory.Query{}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("pre-canceled err = %v", err)
	}
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 60)
	got := composer.Excerpt(long, composer.ExcerptRunes)
	if !strings.HasSuffix(got, "word...") || utf8.RuneCountInString(got) > composer.ExcerptRunes+3 {
		t.Errorf("Excerpt = %q", got)
	}
	if got := composer.Excerpt("short\n\ntext", 200); got != "short text" {
		t.Errorf("Excerpt = %q", got)
	}
	if got := composer.Excerpt(strings.Repeat("é", 250), 200); utf8.RuneCountInString(got) != 203 {
		t.Errorf("unbroken text cut at %d runes", utf8.RuneCountInString(got))
	}
}

func TestGrounded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		n    int
		want bool
	}{
		{"see [1]", 1, true},
		{"[2] and [3]", 3, true},
		{"no markers", 3, false},
		{"[0]", 3, false},
		{"[1] and [9]", 3, false},
		{"You had pizza downtown [1]. The moon is made of cheese and you met Obama there.", 1, false},
		{"You had pizza [1]. You also had sushi [2].", 2, true},
		{"You had pizza. [1]", 1, true},
		{"Dinner cost 3.5 euros [1]!  ", 1, true},
		{"Pizza downtown [1]\nSushi at home", 1, false},
		{"Pizza downtown [1]\n- [1]", 1, true},
	}
	for _, tt := range tests {
		if got := composer.Grounded(tt.text, tt.n); got != tt.want {
			t.Errorf("Grounded(%q, %d) = %v, want %v", tt.text, tt.n, got, tt.want)
		}
	}
}

func TestCompose_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := composer.NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	c := composer.New(composer.Config{Metrics: m})
	_, _ = c.Compose(context.Background(), memory.Query{}, nil)
	_, _ = c.Compose(context.Background(), memory.Query{}, candidates())
	if n, err := testutil.GatherAndCount(reg, "recall_composer_answers_total"); err != nil || n != 2 {
		t.Errorf("GatherAndCount = %d, %v; want two paths", n, err)
	}
}
