package memory

import (
	"slices"
	"strconv"
	"strings"
)

// Range bounds a numeric projection field. Nil bounds are open; both are
// inclusive.
type Range struct {
	Key string
	Min *int64
	Max *int64
}

// Predicate is an AND-combined filter over an item projection.
type Predicate struct {
	// Equals requires projection[key] == value for every entry.
	Equals map[string]string

	// AnyOf requires projection[key] to be one of the listed values.
	AnyOf map[string][]string

	// Ranges requires projection[key] to parse as an integer within bounds.
	Ranges []Range
}

// IsEmpty reports whether the predicate matches everything.
func (p Predicate) IsEmpty() bool {
	return len(p.Equals) == 0 && len(p.AnyOf) == 0 && len(p.Ranges) == 0
}

// Matches evaluates the predicate against a projection.
func (p Predicate) Matches(projection map[string]string) bool {
	for k, v := range p.Equals {
		if projection[k] != v {
			return false
		}
	}
	for k, values := range p.AnyOf {
		got, ok := projection[k]
		if !ok || !slices.Contains(values, got) {
			return false
		}
	}
	for _, r := range p.Ranges {
		raw, ok := projection[r.Key]
		if !ok {
			return false
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false
		}
		if r.Min != nil && n < *r.Min {
			return false
		}
		if r.Max != nil && n > *r.Max {
			return false
		}
	}
	return true
}

// FiltersPredicate translates query filters into a projection predicate.
// People and tags must all be present; sections and places match any of the
// listed values; the date range bounds occurred_at.
func FiltersPredicate(f Filters) Predicate {
	var p Predicate
	eq := func(k, v string) {
		if p.Equals == nil {
			p.Equals = make(map[string]string)
		}
		p.Equals[k] = v
	}

	for _, name := range f.People {
		if strings.TrimSpace(name) != "" {
			eq(PersonKey(name), memberValue)
		}
	}
	for _, tag := range f.Tags {
		if strings.TrimSpace(tag) != "" {
			eq(TagKey(tag), memberValue)
		}
	}
	if f.OwnerID != "" {
		eq(KeyOwnerID, f.OwnerID)
	}
	if f.ConversationID != "" {
		eq(KeyConversationID, f.ConversationID)
	}

	anyOf := func(k string, values []string) {
		if len(values) == 0 {
			return
		}
		if len(values) == 1 {
			eq(k, values[0])
			return
		}
		if p.AnyOf == nil {
			p.AnyOf = make(map[string][]string)
		}
		p.AnyOf[k] = values
	}

	var sections []string
	for _, s := range f.Sections {
		if s != "" && !slices.Contains(sections, string(s)) {
			sections = append(sections, string(s))
		}
	}
	anyOf(KeySection, sections)

	var places []string
	for _, pl := range f.Places {
		pl = strings.ToLower(strings.TrimSpace(pl))
		if pl != "" && !slices.Contains(places, pl) {
			places = append(places, pl)
		}
	}
	anyOf(KeyLocation, places)

	if dr := f.DateRange; dr != nil && (!dr.From.IsZero() || !dr.To.IsZero()) {
		r := Range{Key: KeyOccurredAt}
		if !dr.From.IsZero() {
			v := dr.From.UnixMilli()
			r.Min = &v
		}
		if !dr.To.IsZero() {
			v := dr.To.UnixMilli()
			r.Max = &v
		}
		p.Ranges = append(p.Ranges, r)
	}

	return p
}
