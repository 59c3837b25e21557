package memory

import (
	"strconv"
	"strings"
	"time"
)

// Projection keys. Set-valued fields are flattened into one key per member
// so an equality predicate can test membership.
const (
	KeySection        = "section"
	KeyStatus         = "status"
	KeySource         = "source"
	KeyOwnerID        = "owner_id"
	KeyConversationID = "conversation_id"
	KeyListName       = "list_name"
	KeyLocation       = "location"
	KeyCreatedAt      = "created_at"
	KeyUpdatedAt      = "updated_at"
	KeyOccurredAt     = "occurred_at"
	KeyDueAt          = "due_at"

	personPrefix = "person:"
	tagPrefix    = "tag:"
	memberValue  = "1"
)

// PersonKey returns the projection key marking name as present.
func PersonKey(name string) string {
	return personPrefix + strings.ToLower(strings.TrimSpace(name))
}

// TagKey returns the projection key marking tag as present.
func TagKey(tag string) string {
	return tagPrefix + strings.ToLower(strings.TrimSpace(tag))
}

// Project derives the scalar projection of an item. The projection is a pure
// function of the snapshot and is never read back into an item.
func Project(item MemoryItem) map[string]string {
	p := make(map[string]string, 8+len(item.People)+len(item.Tags))
	put := func(k, v string) {
		if v != "" {
			p[k] = v
		}
	}
	put(KeySection, string(item.Section))
	put(KeyStatus, string(item.Status))
	put(KeySource, string(item.Source))
	put(KeyOwnerID, item.OwnerID)
	put(KeyConversationID, item.ConversationID)
	put(KeyListName, item.ListName)
	put(KeyLocation, strings.ToLower(strings.TrimSpace(item.Location)))
	putTime := func(k string, t time.Time) {
		if !t.IsZero() {
			p[k] = FormatMillis(t)
		}
	}
	putTime(KeyCreatedAt, item.CreatedAt)
	putTime(KeyUpdatedAt, item.UpdatedAt)
	putTime(KeyOccurredAt, item.OccurredAt())
	if item.DueAt != nil {
		putTime(KeyDueAt, *item.DueAt)
	}
	for _, name := range item.People {
		p[PersonKey(name)] = memberValue
	}
	for _, tag := range item.Tags {
		p[TagKey(tag)] = memberValue
	}
	return p
}

// FormatMillis renders t as unix milliseconds.
func FormatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// EmbeddingText is the text submitted to the similarity index for an item.
func EmbeddingText(item MemoryItem) string {
	parts := make([]string, 0, 5)
	for _, s := range []string{
		item.Title,
		item.Content,
		strings.Join(item.People, ", "),
		strings.Join(item.Tags, ", "),
		item.Location,
	} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
