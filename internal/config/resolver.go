package config

import (
	"cmp"
	"slices"
	"strings"
)

// loadOrder ranks module namespaces. Storage loads first so it is stopped
// last; the gateway loads last so it stops accepting requests first.
var loadOrder = map[string]int{
	"memory":   0,
	"index":    1,
	"provider": 2,
	"gateway":  9,
}

// Resolve returns the configured module IDs in load order: by namespace
// rank, then by ID.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(rank(a), rank(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

// Select returns the IDs keep accepts, in order. A nil keep returns ids
// unchanged.
func Select(ids []string, keep func(id string) bool) []string {
	if keep == nil {
		return ids
	}
	return slices.DeleteFunc(ids, func(id string) bool { return !keep(id) })
}

func rank(id string) int {
	ns, _, _ := strings.Cut(id, ".")
	if r, ok := loadOrder[ns]; ok {
		return r
	}
	return 5
}
