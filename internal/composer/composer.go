// Package composer turns ranked search results into a grounded answer:
// every answer cites the stored items it is built from, and an empty
// result set always produces an explicit "nothing stored" reply.
package composer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/telemetry"
)

// NoInformationAnswer is returned when no stored item supports an answer.
const NoInformationAnswer = "I couldn't find any information about that in your memories."

const (
	// DefaultTimeout bounds a single generator call.
	DefaultTimeout = 10 * time.Second

	// MaxCitations is how many top results an answer cites.
	MaxCitations = 5

	// ExcerptRunes is the excerpt length before word-boundary truncation.
	ExcerptRunes = 200

	defaultMaxTokens = 512
)

// Constraints bound what a generator may produce.
type Constraints struct {
	MaxTokens int

	// Citations is the number of numbered items in the prompt. Output must
	// cite them as [1]..[Citations].
	Citations int
}

// TextGenerator writes an answer from a prompt. It may fail or time out;
// the composer then falls back to its template.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, c Constraints) (string, error)
}

// Config configures a Composer. Every field is optional.
type Config struct {
	Generator TextGenerator
	Timeout   time.Duration
	MaxTokens int
	Logger    *slog.Logger
	Metrics   *Metrics
}

// Composer builds grounded answers. It is safe for concurrent use.
type Composer struct {
	generator TextGenerator
	timeout   time.Duration
	maxTokens int
	logger    *slog.Logger
	metrics   *Metrics
}

// New creates a Composer.
func New(cfg Config) *Composer {
	c := &Composer{
		generator: cfg.Generator,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.logger == nil {
		c.logger = telemetry.NopLogger()
	}
	return c
}

// Compose answers q from candidates only. The sole error it returns is the
// context's.
func (c *Composer) Compose(ctx context.Context, q memory.Query, candidates []memory.SearchResult) (memory.GroundedAnswer, error) {
	if err := ctx.Err(); err != nil {
		return memory.GroundedAnswer{}, err
	}

	if len(candidates) == 0 {
		c.metrics.observe(pathNoEvidence)
		return memory.GroundedAnswer{
			Query:     q.Text,
			Answer:    NoInformationAnswer,
			Citations: []memory.Citation{},
			Reasoning: "no stored memory matched the question, so there is no evidence to answer from",
		}, nil
	}

	ranked := make([]memory.SearchResult, len(candidates))
	copy(ranked, candidates)
	memory.SortResults(ranked)
	cited := ranked[:min(len(ranked), MaxCitations)]

	citations := make([]memory.Citation, len(cited))
	for i, r := range cited {
		citations[i] = memory.Citation{
			MemoryID:  r.Item.ID,
			Title:     r.Item.Title,
			CreatedAt: r.Item.CreatedAt,
			Excerpt:   Excerpt(r.Item.Content, ExcerptRunes),
		}
	}

	answer, path, err := c.generate(ctx, q, cited, citations)
	if err != nil {
		return memory.GroundedAnswer{}, err
	}
	c.metrics.observe(path)

	return memory.GroundedAnswer{
		Query:       q.Text,
		Answer:      answer,
		Citations:   citations,
		Confidence:  Confidence(ranked[0].Score, len(ranked)),
		HasEvidence: true,
		Reasoning:   fmt.Sprintf("%d of %d results cited, answer from %s", len(citations), len(ranked), path),
	}, nil
}

func (c *Composer) generate(ctx context.Context, q memory.Query, cited []memory.SearchResult, citations []memory.Citation) (string, string, error) {
	if c.generator == nil {
		return Template(citations), pathTemplate, nil
	}

	gctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	text, err := c.generator.Generate(gctx, Prompt(q.Text, cited), Constraints{
		MaxTokens: c.maxTokens,
		Citations: len(citations),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		c.logger.Warn("generator failed, using template", "error", err)
		return Template(citations), pathGeneratorFailed, nil
	}
	text = strings.TrimSpace(text)
	if !Grounded(text, len(citations)) {
		c.logger.Warn("generated answer rejected, using template", "reason", "missing or invalid citation markers")
		return Template(citations), pathRejected, nil
	}
	return text, pathGenerated, nil
}

// Confidence is min(1, top*(0.5+0.1*min(n,5))).
func Confidence(top float64, n int) float64 {
	return min(1, top*(0.5+0.1*float64(min(n, MaxCitations))))
}

var (
	markerRe = regexp.MustCompile(`\[(\d+)\]`)
	// A sentence ends at ., ! or ? followed by space or the end of text,
	// keeping markers placed after the punctuation, or at a line break.
	sentenceEndRe = regexp.MustCompile(`[.!?]+(?:\s*\[\d+\])*(?:\s+|$)|\n+`)
)

// Grounded reports whether every sentence of text cites at least one of n
// items and no marker points outside [1, n].
func Grounded(text string, n int) bool {
	if !markerRe.MatchString(text) {
		return false
	}
	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		k, err := strconv.Atoi(m[1])
		if err != nil || k < 1 || k > n {
			return false
		}
	}
	for _, sentence := range sentences(text) {
		if !markerRe.MatchString(sentence) {
			return false
		}
	}
	return true
}

// sentences splits text into sentences, dropping fragments with no letter
// or digit outside citation markers.
func sentences(text string) []string {
	var out []string
	start := 0
	add := func(s string) {
		bare := markerRe.ReplaceAllString(s, "")
		if strings.IndexFunc(bare, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			out = append(out, strings.TrimSpace(s))
		}
	}
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		add(text[start:loc[1]])
		start = loc[1]
	}
	add(text[start:])
	return out
}

// Template renders the deterministic answer listing every citation.
func Template(citations []memory.Citation) string {
	var b strings.Builder
	b.WriteString("Here is what I found in your memories:")
	for i, c := range citations {
		fmt.Fprintf(&b, "\n[%d] %s (%s)", i+1, titleOf(c.Title), c.CreatedAt.Format(time.DateOnly))
		if c.Excerpt != "" {
			b.WriteString(": ")
			b.WriteString(c.Excerpt)
		}
	}
	return b.String()
}

// Prompt lists the question and the numbered items it may be answered from.
func Prompt(question string, cited []memory.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nMemories:", strings.TrimSpace(question))
	for i, r := range cited {
		fmt.Fprintf(&b, "\n[%d] %s (%s)", i+1, titleOf(r.Item.Title), r.Item.OccurredAt().Format(time.DateOnly))
		if content := strings.TrimSpace(r.Item.Content); content != "" {
			b.WriteString("\n")
			b.WriteString(content)
		}
	}
	return b.String()
}

// Excerpt collapses whitespace and truncates s to at most n runes, cutting
// on a word boundary when there is one.
func Excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := n
	for i := n; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "..."
}

func titleOf(title string) string {
	if title == "" {
		return "Untitled"
	}
	return title
}
