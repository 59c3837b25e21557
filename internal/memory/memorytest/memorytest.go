// Package memorytest provides test doubles for the memory storage contracts.
package memorytest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/flemzord/recall/internal/embed"
	"github.com/flemzord/recall/internal/memory"
)

// ErrInjected is the default failure returned by the failing wrappers.
var ErrInjected = errors.New("memorytest: injected failure")

// FakeIndex is a brute-force memory.SimilarityIndex over an embedder.
// Safe for concurrent use.
type FakeIndex struct {
	embedder embed.Embedder

	mu      sync.RWMutex
	entries map[string]fakeEntry
}

type fakeEntry struct {
	vec        []float32
	projection map[string]string
}

// Compile-time interface check.
var _ memory.SimilarityIndex = (*FakeIndex)(nil)

// NewFakeIndex creates an empty index. A nil embedder selects the hash
// embedder.
func NewFakeIndex(e embed.Embedder) *FakeIndex {
	if e == nil {
		e = embed.NewHash(0)
	}
	return &FakeIndex{embedder: e, entries: make(map[string]fakeEntry)}
}

// Upsert implements memory.SimilarityIndex.
func (f *FakeIndex) Upsert(ctx context.Context, id, text string, projection map[string]string) error {
	vec, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = fakeEntry{vec: vec, projection: maps.Clone(projection)}
	return nil
}

// Query implements memory.SimilarityIndex.
func (f *FakeIndex) Query(ctx context.Context, text string, pred memory.Predicate, k int) ([]memory.Hit, error) {
	vec, err := f.embedder.Embed(ctx, text)
	if errors.Is(err, embed.ErrEmptyText) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var hits []memory.Hit
	for id, e := range f.entries {
		if !pred.Matches(e.projection) {
			continue
		}
		var dot float64
		for i := range vec {
			dot += float64(vec[i]) * float64(e.vec[i])
		}
		hits = append(hits, memory.Hit{ID: id, Distance: max(0, 1-dot)})
	}
	slices.SortFunc(hits, func(a, b memory.Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete implements memory.SimilarityIndex.
func (f *FakeIndex) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
	return nil
}

// Contains implements memory.SimilarityIndex.
func (f *FakeIndex) Contains(_ context.Context, id string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.entries[id]
	return ok, nil
}

// IDs implements memory.SimilarityIndex.
func (f *FakeIndex) IDs(context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.entries)), nil
}

// Count implements memory.SimilarityIndex.
func (f *FakeIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// FailingIndex wraps an index and fails selected operations. Set the error
// fields before use; a nil field passes the call through.
type FailingIndex struct {
	memory.SimilarityIndex

	UpsertErr error
	QueryErr  error
	DeleteErr error
}

// Upsert fails with UpsertErr when set.
func (f *FailingIndex) Upsert(ctx context.Context, id, text string, projection map[string]string) error {
	if f.UpsertErr != nil {
		return f.UpsertErr
	}
	return f.SimilarityIndex.Upsert(ctx, id, text, projection)
}

// Query fails with QueryErr when set.
func (f *FailingIndex) Query(ctx context.Context, text string, pred memory.Predicate, k int) ([]memory.Hit, error) {
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	return f.SimilarityIndex.Query(ctx, text, pred, k)
}

// Delete fails with DeleteErr when set.
func (f *FailingIndex) Delete(ctx context.Context, id string) error {
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	return f.SimilarityIndex.Delete(ctx, id)
}

// FailingSnapshots wraps a snapshot store, failing selected operations and
// reporting chosen ids as corrupt.
type FailingSnapshots struct {
	memory.SnapshotStore

	PutErr    error
	GetErr    error
	DeleteErr error

	mu      sync.Mutex
	corrupt map[string]bool
}

// Corrupt makes reads of id fail with memory.ErrDataIntegrity.
func (f *FailingSnapshots) Corrupt(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.corrupt == nil {
		f.corrupt = make(map[string]bool)
	}
	f.corrupt[id] = true
}

func (f *FailingSnapshots) isCorrupt(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.corrupt[id]
}

func corruptErr(id string) error {
	return fmt.Errorf("%w: snapshot %s: unexpected end of JSON input", memory.ErrDataIntegrity, id)
}

// Put fails with PutErr when set.
func (f *FailingSnapshots) Put(ctx context.Context, item memory.MemoryItem) error {
	if f.PutErr != nil {
		return f.PutErr
	}
	return f.SnapshotStore.Put(ctx, item)
}

// Get fails with GetErr when set and reports corrupt ids.
func (f *FailingSnapshots) Get(ctx context.Context, id string) (memory.MemoryItem, error) {
	if f.GetErr != nil {
		return memory.MemoryItem{}, f.GetErr
	}
	item, err := f.SnapshotStore.Get(ctx, id)
	if err == nil && f.isCorrupt(id) {
		return memory.MemoryItem{}, corruptErr(id)
	}
	return item, err
}

// GetMany fails with GetErr when set and reports corrupt ids per entry.
func (f *FailingSnapshots) GetMany(ctx context.Context, ids []string) (map[string]memory.SnapshotResult, error) {
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	out, err := f.SnapshotStore.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id := range out {
		if f.isCorrupt(id) {
			out[id] = memory.SnapshotResult{Err: corruptErr(id)}
		}
	}
	return out, nil
}

// Delete fails with DeleteErr when set.
func (f *FailingSnapshots) Delete(ctx context.Context, id string) (bool, error) {
	if f.DeleteErr != nil {
		return false, f.DeleteErr
	}
	return f.SnapshotStore.Delete(ctx, id)
}
