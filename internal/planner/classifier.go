package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/provider"
)

// Completer is the part of provider.Chain the classifier needs.
type Completer interface {
	Complete(ctx context.Context, role provider.Role, req provider.CompletionRequest) (provider.CompletionResponse, error)
}

const classifierPrompt = `You classify questions a user asks about their own stored memories.
Reply with a single JSON object and nothing else:
{"intent": "factual|temporal|list|summary|unknown",
 "people": [], "places": [], "tags": [],
 "sections": ["event|note|diary|task|list|reminder|conversation"],
 "date_from": "YYYY-MM-DD or empty", "date_to": "YYYY-MM-DD or empty",
 "max_results": 0, "reasoning": "one short sentence"}
Only fill a filter when the question states it explicitly. Today is %s.`

// LLMClassifier classifies questions with the provider chain's planner role.
type LLMClassifier struct {
	completer Completer
	now       func() time.Time
}

// NewLLMClassifier creates a classifier over c. now may be nil.
func NewLLMClassifier(c Completer, now func() time.Time) *LLMClassifier {
	if now == nil {
		now = time.Now
	}
	return &LLMClassifier{completer: c, now: now}
}

// Classify implements TextClassifier. Every failure, including malformed
// output, wraps memory.ErrCapabilityUnavailable.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	temp := 0.0
	resp, err := c.completer.Complete(ctx, provider.RolePlanner, provider.CompletionRequest{
		System:      fmt.Sprintf(classifierPrompt, c.now().Format(time.DateOnly)),
		Messages:    []provider.LLMMessage{{Role: provider.MessageRoleUser, Content: text}},
		MaxTokens:   256,
		Temperature: &temp,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("planner: classify: %w: %w", memory.ErrCapabilityUnavailable, err)
	}
	out, err := parseClassification(resp.Content)
	if err != nil {
		return Classification{}, fmt.Errorf("planner: classify: %w: %w", memory.ErrCapabilityUnavailable, err)
	}
	return out, nil
}

type classifierReply struct {
	Intent     string   `json:"intent"`
	People     []string `json:"people"`
	Places     []string `json:"places"`
	Tags       []string `json:"tags"`
	Sections   []string `json:"sections"`
	DateFrom   string   `json:"date_from"`
	DateTo     string   `json:"date_to"`
	MaxResults int      `json:"max_results"`
	Reasoning  string   `json:"reasoning"`
}

// parseClassification reads the first JSON object in content. Models
// sometimes wrap it in prose or a code fence.
func parseClassification(content string) (Classification, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return Classification{}, errors.New("no JSON object in reply")
	}
	var r classifierReply
	if err := json.Unmarshal([]byte(content[start:end+1]), &r); err != nil {
		return Classification{}, fmt.Errorf("decoding reply: %w", err)
	}

	intent := memory.Intent(strings.ToLower(strings.TrimSpace(r.Intent)))
	if !intent.Valid() {
		return Classification{}, fmt.Errorf("unknown intent %q", r.Intent)
	}

	out := Classification{
		Intent:     intent,
		MaxResults: r.MaxResults,
		Reasoning:  r.Reasoning,
		Filters: memory.Filters{
			People: r.People,
			Places: r.Places,
			Tags:   r.Tags,
		},
	}
	for _, s := range r.Sections {
		if sec := memory.Section(strings.ToLower(s)); sec.Valid() {
			out.Filters.Sections = append(out.Filters.Sections, sec)
		}
	}

	from, err := parseDay(r.DateFrom)
	if err != nil {
		return Classification{}, fmt.Errorf("date_from: %w", err)
	}
	to, err := parseDay(r.DateTo)
	if err != nil {
		return Classification{}, fmt.Errorf("date_to: %w", err)
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	if !from.IsZero() || !to.IsZero() {
		out.Filters.DateRange = &memory.DateRange{From: from, To: to}
	}
	return out, nil
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
