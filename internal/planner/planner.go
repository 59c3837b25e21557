// Package planner turns a natural-language question into a structured
// memory.Query. An optional TextClassifier is consulted first; the
// keyword rules in rules.go always back it up.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/telemetry"
)

// DefaultTimeout bounds a single classifier call.
const DefaultTimeout = 3 * time.Second

// Classification is what a TextClassifier extracts from a question.
type Classification struct {
	Intent     memory.Intent
	Filters    memory.Filters
	MaxResults int
	Reasoning  string
}

// TextClassifier is an external intent and filter extractor. It may fail or
// time out; the planner then falls back to its rules.
type TextClassifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// PeopleDirectory reports whether a name belongs to someone the store
// holds memories about.
type PeopleDirectory interface {
	KnowsPerson(ctx context.Context, name string) (bool, error)
}

// Config configures a Planner. Every field is optional.
type Config struct {
	Classifier TextClassifier

	// People confirms names the rules pick up from "with <Name>". Without
	// it the rules never filter on people.
	People PeopleDirectory

	Timeout time.Duration
	Now     func() time.Time

	// Location resolves relative dates such as "yesterday". Default: UTC.
	Location *time.Location
	Logger   *slog.Logger
	Metrics  *Metrics
}

// Planner produces queries. It is safe for concurrent use.
type Planner struct {
	classifier TextClassifier
	people     PeopleDirectory
	timeout    time.Duration
	now        func() time.Time
	loc        *time.Location
	logger     *slog.Logger
	metrics    *Metrics
}

// New creates a Planner.
func New(cfg Config) *Planner {
	p := &Planner{
		classifier: cfg.Classifier,
		people:     cfg.People,
		timeout:    cfg.Timeout,
		now:        cfg.Now,
		loc:        cfg.Location,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.logger == nil {
		p.logger = telemetry.NopLogger()
	}
	return p
}

// Plan never fails: classifier errors and timeouts degrade to the rules.
func (p *Planner) Plan(ctx context.Context, text string) memory.Query {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		p.metrics.observe(pathEmpty)
		return memory.Query{
			Text:       text,
			Intent:     memory.IntentUnknown,
			MaxResults: memory.DefaultMaxResults,
			Reasoning:  "empty question",
		}
	}

	if p.classifier != nil {
		q, err := p.classify(ctx, trimmed)
		if err == nil {
			p.metrics.observe(pathClassifier)
			return q
		}
		p.metrics.observe(pathFallback)
		p.logger.Warn("classifier failed, using rules", "error", err)
		q = p.rules(ctx, trimmed)
		q.Reasoning = "classifier unavailable, rule fallback: " + q.Reasoning
		return q
	}

	p.metrics.observe(pathRules)
	return p.rules(ctx, trimmed)
}

func (p *Planner) classify(ctx context.Context, text string) (memory.Query, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	c, err := p.classifier.Classify(ctx, text)
	if err != nil {
		return memory.Query{}, err
	}
	if !c.Intent.Valid() {
		return memory.Query{}, fmt.Errorf("planner: classifier returned intent %q: %w", c.Intent, memory.ErrCapabilityUnavailable)
	}

	filters := c.Filters
	// Owner scope is the retriever's to set.
	filters.OwnerID = ""
	filters.ConversationID = ""

	limit := c.MaxResults
	switch {
	case limit == 0:
		limit = defaultLimit(c.Intent)
	case limit < 1:
		limit = 1
	case limit > memory.HardMaxResults:
		limit = memory.HardMaxResults
	}

	reasoning := "classifier"
	if c.Reasoning != "" {
		reasoning += ": " + c.Reasoning
	}
	return memory.Query{
		Text:       text,
		Intent:     c.Intent,
		Filters:    filters,
		MaxResults: limit,
		Reasoning:  reasoning,
	}, nil
}

func defaultLimit(intent memory.Intent) int {
	if intent == memory.IntentList {
		return memory.ListMaxResults
	}
	return memory.DefaultMaxResults
}
