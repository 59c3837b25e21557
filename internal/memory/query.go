package memory

import (
	"cmp"
	"slices"
	"time"
)

// Intent is the planner's reading of what a question asks for.
type Intent string

// Query intents.
const (
	IntentFactual  Intent = "factual"
	IntentTemporal Intent = "temporal"
	IntentList     Intent = "list"
	IntentSummary  Intent = "summary"
	IntentUnknown  Intent = "unknown"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentFactual, IntentTemporal, IntentList, IntentSummary, IntentUnknown:
		return true
	}
	return false
}

// Result limits.
const (
	DefaultMaxResults = 10
	ListMaxResults    = 20
	HardMaxResults    = 100
)

// DateRange bounds OccurredAt. A zero bound is open.
type DateRange struct {
	From time.Time `json:"from,omitzero"`
	To   time.Time `json:"to,omitzero"`
}

// Filters narrow a search. All populated fields are AND-combined.
type Filters struct {
	People    []string   `json:"people,omitempty"`
	Places    []string   `json:"places,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	DateRange *DateRange `json:"date_range,omitempty"`
	Sections  []Section  `json:"sections,omitempty"`

	// OwnerID and ConversationID carry the owner scope. They are set by the
	// retriever, never taken from a planner or classifier.
	OwnerID        string `json:"-"`
	ConversationID string `json:"-"`
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return len(f.People) == 0 && len(f.Places) == 0 && len(f.Tags) == 0 &&
		f.DateRange == nil && len(f.Sections) == 0 &&
		f.OwnerID == "" && f.ConversationID == ""
}

// Query is a structured question.
type Query struct {
	Text       string  `json:"text"`
	Intent     Intent  `json:"intent"`
	Filters    Filters `json:"filters"`
	MaxResults int     `json:"max_results"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Limit returns MaxResults clamped to [1, HardMaxResults], with zero
// meaning DefaultMaxResults.
func (q Query) Limit() int {
	switch {
	case q.MaxResults <= 0:
		return DefaultMaxResults
	case q.MaxResults > HardMaxResults:
		return HardMaxResults
	}
	return q.MaxResults
}

// OwnerScope is the boundary search results must never cross.
type OwnerScope struct {
	OwnerID        string `json:"owner_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// IsZero reports whether the scope names nobody.
func (s OwnerScope) IsZero() bool {
	return s.OwnerID == "" && s.ConversationID == ""
}

// SearchResult is one ranked match.
type SearchResult struct {
	Item       MemoryItem `json:"item"`
	Score      float64    `json:"score"`
	Highlights []string   `json:"highlights,omitempty"`
}

// SortResults orders results by score, newest first among equal scores.
func SortResults(results []SearchResult) {
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return b.Item.CreatedAt.Compare(a.Item.CreatedAt)
	})
}

// Citation links an answer back to the item supporting it.
type Citation struct {
	MemoryID  string    `json:"memory_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Excerpt   string    `json:"excerpt"`
}

// GroundedAnswer is an answer whose claims are backed by citations.
// HasEvidence false implies no citations and zero confidence.
type GroundedAnswer struct {
	Query       string     `json:"query"`
	Answer      string     `json:"answer"`
	Citations   []Citation `json:"citations"`
	Confidence  float64    `json:"confidence"`
	HasEvidence bool       `json:"has_evidence"`
	Reasoning   string     `json:"reasoning"`
}
