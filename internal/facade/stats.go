package facade

import (
	"context"
	"fmt"

	"github.com/flemzord/recall/internal/memory"
)

// Stats summarizes the long-term store.
type Stats struct {
	Items     int                    `json:"items"`
	Sections  map[memory.Section]int `json:"sections"`
	IndexSize int                    `json:"index_size"`
}

// Stats counts items per section. Sections with no items are omitted.
func (f *Facade) Stats(ctx context.Context) (Stats, error) {
	total, err := f.store.Count(ctx, "")
	if err != nil {
		return Stats{}, fmt.Errorf("facade: stats: %w", err)
	}
	st := Stats{
		Items:     total,
		Sections:  make(map[memory.Section]int),
		IndexSize: f.store.IndexSize(),
	}
	for _, s := range memory.Sections {
		n, err := f.store.Count(ctx, s)
		if err != nil {
			return Stats{}, fmt.Errorf("facade: stats: %w", err)
		}
		if n > 0 {
			st.Sections[s] = n
		}
	}
	return st, nil
}
