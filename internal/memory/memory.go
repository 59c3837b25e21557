// Package memory defines the conversation and long-term memory model, the
// storage contracts both memories are built on, and in-memory
// implementations of those contracts.
package memory

import (
	"slices"
	"strings"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

// Turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ConversationTurn is one immutable entry in a conversation log.
type ConversationTurn struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	SpeakerID      string            `json:"speaker_id,omitempty"`
	Role           Role              `json:"role"`
	Text           string            `json:"text"`
	Timestamp      time.Time         `json:"timestamp"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Source records how a memory item entered the store.
type Source string

// Item sources.
const (
	SourceCapture Source = "capture"
	SourceDiary   Source = "diary"
	SourceImport  Source = "import"
	SourceSystem  Source = "system"
)

// Section classifies a memory item.
type Section string

// Item sections.
const (
	SectionEvent        Section = "event"
	SectionNote         Section = "note"
	SectionDiary        Section = "diary"
	SectionTask         Section = "task"
	SectionList         Section = "list"
	SectionReminder     Section = "reminder"
	SectionConversation Section = "conversation"
)

// Sections lists every known section in display order.
var Sections = []Section{
	SectionEvent, SectionNote, SectionDiary, SectionTask,
	SectionList, SectionReminder, SectionConversation,
}

// Valid reports whether s is a known section.
func (s Section) Valid() bool {
	return slices.Contains(Sections, s)
}

// Status is caller-managed lifecycle state. The store never interprets it.
type Status string

// Item statuses.
const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// LatLon is a geographic coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MediaRef points at an attached media file.
type MediaRef struct {
	Path string `json:"path"`
	Type string `json:"type,omitempty"`
}

// TimeRange is the period an item refers to.
type TimeRange struct {
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
	Timezone string     `json:"timezone,omitempty"`
}

// MemoryItem is a durable, searchable unit of long-term memory. ID is the
// only key shared by the snapshot store and the similarity index.
type MemoryItem struct {
	ID             string            `json:"id"`
	Source         Source            `json:"source,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Title          string            `json:"title,omitempty"`
	Content        string            `json:"content,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	People         []string          `json:"people,omitempty"`
	Location       string            `json:"location,omitempty"`
	Coordinates    *LatLon           `json:"coordinates,omitempty"`
	MediaRef       *MediaRef         `json:"media_ref,omitempty"`
	Section        Section           `json:"section,omitempty"`
	Status         Status            `json:"status,omitempty"`
	TemporalRange  *TimeRange        `json:"temporal_range,omitempty"`
	DueAt          *time.Time        `json:"due_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	ListName       string            `json:"list_name,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	OwnerID        string            `json:"owner_id,omitempty"`
	ExternalRef    string            `json:"external_ref,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// HasPerson reports whether name is among the item's people, ignoring case.
func (m MemoryItem) HasPerson(name string) bool {
	return containsFold(m.People, name)
}

// HasTag reports whether tag is among the item's tags, ignoring case.
func (m MemoryItem) HasTag(tag string) bool {
	return containsFold(m.Tags, tag)
}

// Canonical returns a copy of m in the shape the store persists: set fields
// deduplicated case-insensitively keeping first occurrence, empty
// collections as nil, and every timestamp in UTC without a monotonic
// reading.
func (m MemoryItem) Canonical() MemoryItem {
	m.Tags = dedupeFold(m.Tags)
	m.People = dedupeFold(m.People)
	if len(m.Metadata) == 0 {
		m.Metadata = nil
	} else {
		m.Metadata = cloneMap(m.Metadata)
	}
	m.CreatedAt = canonicalTime(m.CreatedAt)
	m.UpdatedAt = canonicalTime(m.UpdatedAt)
	m.DueAt = canonicalTimePtr(m.DueAt)
	m.CompletedAt = canonicalTimePtr(m.CompletedAt)
	if m.TemporalRange != nil {
		tr := *m.TemporalRange
		tr.Start = canonicalTime(tr.Start)
		tr.End = canonicalTimePtr(tr.End)
		m.TemporalRange = &tr
	}
	if m.Coordinates != nil {
		c := *m.Coordinates
		m.Coordinates = &c
	}
	if m.MediaRef != nil {
		r := *m.MediaRef
		m.MediaRef = &r
	}
	return m
}

// OccurredAt is the instant date filters compare against: the start of the
// temporal range when present, otherwise the creation time.
func (m MemoryItem) OccurredAt() time.Time {
	if m.TemporalRange != nil && !m.TemporalRange.Start.IsZero() {
		return m.TemporalRange.Start
	}
	return m.CreatedAt
}

func canonicalTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Round(0)
}

func canonicalTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := canonicalTime(*t)
	return &c
}

func dedupeFold(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
