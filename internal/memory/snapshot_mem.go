package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

type storedSnapshot struct {
	data    []byte
	section Section
}

// InMemorySnapshots is a SnapshotStore held in process memory. Snapshots are
// kept encoded so reads return independent copies.
type InMemorySnapshots struct {
	mu    sync.RWMutex
	items map[string]storedSnapshot
}

// Compile-time interface check.
var _ SnapshotStore = (*InMemorySnapshots)(nil)

// NewInMemorySnapshots creates an empty snapshot store.
func NewInMemorySnapshots() *InMemorySnapshots {
	return &InMemorySnapshots{items: make(map[string]storedSnapshot)}
}

// Put inserts or replaces a snapshot.
func (s *InMemorySnapshots) Put(_ context.Context, item MemoryItem) error {
	if item.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidItem)
	}
	data, err := EncodeSnapshot(item)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = storedSnapshot{data: data, section: item.Section}
	return nil
}

// Get returns a decoded snapshot.
func (s *InMemorySnapshots) Get(_ context.Context, id string) (MemoryItem, error) {
	s.mu.RLock()
	st, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return MemoryItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return DecodeSnapshot(id, st.data)
}

// GetMany returns the snapshots that exist among ids.
func (s *InMemorySnapshots) GetMany(_ context.Context, ids []string) (map[string]SnapshotResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]SnapshotResult, len(ids))
	for _, id := range ids {
		st, ok := s.items[id]
		if !ok {
			continue
		}
		item, err := DecodeSnapshot(id, st.data)
		out[id] = SnapshotResult{Item: item, Err: err}
	}
	return out, nil
}

// Delete removes a snapshot.
func (s *InMemorySnapshots) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

// Count returns the number of snapshots in section, or all when empty.
func (s *InMemorySnapshots) Count(_ context.Context, section Section) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if section == "" {
		return len(s.items), nil
	}
	n := 0
	for _, st := range s.items {
		if st.section == section {
			n++
		}
	}
	return n, nil
}

// IDs lists stored ids in sorted order.
func (s *InMemorySnapshots) IDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
