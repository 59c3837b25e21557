package store

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flemzord/recall/internal/memory"
)

// ReindexReport summarizes a Reindex run.
type ReindexReport struct {
	Upserted int `json:"upserted"`
	Removed  int `json:"removed"`
	Skipped  int `json:"skipped"`
}

// NeedsReindex reports whether the index and the snapshot store disagree on
// the number of items.
func (s *Store) NeedsReindex(ctx context.Context) (bool, error) {
	n, err := s.snapshots.Count(ctx, "")
	if err != nil {
		return false, unavailable("reindex", err)
	}
	return n != s.index.Count(), nil
}

// Reindex brings the index back in line with the snapshots: items missing
// from the index are embedded again and index entries without a snapshot
// are removed. Corrupt snapshots are skipped.
func (s *Store) Reindex(ctx context.Context) (_ ReindexReport, err error) {
	ctx, span := s.start(ctx, opReindex)
	defer s.finish(span, opReindex, time.Now(), &err)

	var report ReindexReport
	ids, err := s.snapshots.IDs(ctx)
	if err != nil {
		return report, unavailable("reindex", err)
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
		outcome, err := s.reindexOne(ctx, id)
		if err != nil {
			return report, err
		}
		switch outcome {
		case reindexUpserted:
			report.Upserted++
		case reindexSkipped:
			report.Skipped++
		}
	}

	indexed, err := s.index.IDs(ctx)
	if err != nil {
		return report, unavailable("reindex", err)
	}
	for _, id := range indexed {
		if _, ok := known[id]; ok {
			continue
		}
		removed, err := s.removeOrphan(ctx, id)
		if err != nil {
			return report, err
		}
		if removed {
			report.Removed++
		}
	}

	span.SetAttributes(
		attribute.Int("memory.reindex.upserted", report.Upserted),
		attribute.Int("memory.reindex.removed", report.Removed),
		attribute.Int("memory.reindex.skipped", report.Skipped),
	)
	if report != (ReindexReport{}) {
		s.logger.Info("index reconciled",
			"upserted", report.Upserted,
			"removed", report.Removed,
			"skipped", report.Skipped,
		)
	}
	return report, nil
}

type reindexOutcome int

const (
	reindexUnchanged reindexOutcome = iota
	reindexUpserted
	reindexSkipped
)

func (s *Store) reindexOne(ctx context.Context, id string) (reindexOutcome, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	indexed, err := s.index.Contains(ctx, id)
	if err != nil {
		return reindexUnchanged, unavailable("reindex", err)
	}
	if indexed {
		return reindexUnchanged, nil
	}
	item, err := s.snapshots.Get(ctx, id)
	switch {
	case memory.IsNotFound(err):
		// Deleted since the listing.
		return reindexUnchanged, nil
	case memory.IsDataIntegrity(err):
		s.integrityError("skipping corrupt snapshot during reindex", id, err)
		return reindexSkipped, nil
	case err != nil:
		return reindexUnchanged, unavailable("reindex", err)
	}
	if err := s.index.Upsert(ctx, id, memory.EmbeddingText(item), memory.Project(item)); err != nil {
		return reindexUnchanged, unavailable("reindex", err)
	}
	return reindexUpserted, nil
}

func (s *Store) removeOrphan(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	_, err := s.snapshots.Get(ctx, id)
	switch {
	case err == nil, memory.IsDataIntegrity(err):
		// Added since the listing.
		return false, nil
	case !memory.IsNotFound(err):
		return false, unavailable("reindex", err)
	}
	if err := s.index.Delete(ctx, id); err != nil {
		return false, unavailable("reindex", err)
	}
	return true, nil
}
