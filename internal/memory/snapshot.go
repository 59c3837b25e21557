package memory

import (
	"context"
	"encoding/json"
	"fmt"
)

// SnapshotStore persists the lossless snapshot of every item together with
// its scalar projection. It is the source of truth for item contents.
type SnapshotStore interface {
	// Put inserts or replaces the snapshot of item.
	Put(ctx context.Context, item MemoryItem) error

	// Get returns ErrNotFound when no snapshot exists and ErrDataIntegrity
	// when it cannot be decoded.
	Get(ctx context.Context, id string) (MemoryItem, error)

	// GetMany loads several snapshots at once. Ids without a snapshot are
	// absent from the result; undecodable ones carry a per-id error.
	GetMany(ctx context.Context, ids []string) (map[string]SnapshotResult, error)

	// Delete removes a snapshot and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Count returns the number of snapshots, restricted to section when set.
	Count(ctx context.Context, section Section) (int, error)

	// IDs lists every stored id.
	IDs(ctx context.Context) ([]string, error)
}

// SnapshotResult is one entry of a GetMany batch.
type SnapshotResult struct {
	Item MemoryItem
	Err  error
}

// snapshotVersion tags the encoded form so older rows stay decodable when
// the item shape grows.
const snapshotVersion = 1

type snapshotEnvelope struct {
	Version int             `json:"v"`
	Item    json.RawMessage `json:"item"`
}

// EncodeSnapshot serializes an item into its lossless stored form.
func EncodeSnapshot(item MemoryItem) ([]byte, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("memory: encoding snapshot %s: %w", item.ID, err)
	}
	return json.Marshal(snapshotEnvelope{Version: snapshotVersion, Item: raw})
}

// DecodeSnapshot restores an item from its stored form. Any failure wraps
// ErrDataIntegrity.
func DecodeSnapshot(id string, data []byte) (MemoryItem, error) {
	if len(data) == 0 {
		return MemoryItem{}, fmt.Errorf("%w: empty snapshot for %s", ErrDataIntegrity, id)
	}
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return MemoryItem{}, fmt.Errorf("%w: snapshot %s: %v", ErrDataIntegrity, id, err)
	}
	if env.Version != snapshotVersion {
		return MemoryItem{}, fmt.Errorf("%w: snapshot %s has unsupported version %d", ErrDataIntegrity, id, env.Version)
	}
	var item MemoryItem
	if err := json.Unmarshal(env.Item, &item); err != nil {
		return MemoryItem{}, fmt.Errorf("%w: snapshot %s: %v", ErrDataIntegrity, id, err)
	}
	if item.ID != id {
		return MemoryItem{}, fmt.Errorf("%w: snapshot %s holds id %q", ErrDataIntegrity, id, item.ID)
	}
	return item.Canonical(), nil
}
