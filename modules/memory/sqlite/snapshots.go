package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/recall/internal/memory"
)

// maxBatch bounds the ids bound into one IN clause.
const maxBatch = 500

// Snapshots is a memory.SnapshotStore stored in the items table. The
// snapshot column is authoritative; the other columns are derived from it
// on every write.
type Snapshots struct {
	db *sql.DB
}

var _ memory.SnapshotStore = (*Snapshots)(nil)

// NewSnapshots returns a snapshot store over an opened database.
func NewSnapshots(db *sql.DB) *Snapshots {
	return &Snapshots{db: db}
}

// Put inserts or replaces the snapshot of item.
func (s *Snapshots) Put(ctx context.Context, item memory.MemoryItem) error {
	if item.ID == "" {
		return fmt.Errorf("%w: id is required", memory.ErrInvalidItem)
	}
	data, err := memory.EncodeSnapshot(item)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, section, status, owner_id, conversation_id, occurred_at, created_at, updated_at, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			section = excluded.section,
			status = excluded.status,
			owner_id = excluded.owner_id,
			conversation_id = excluded.conversation_id,
			occurred_at = excluded.occurred_at,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			snapshot = excluded.snapshot`,
		item.ID, string(item.Section), string(item.Status), item.OwnerID, item.ConversationID,
		item.OccurredAt().UnixMilli(), item.CreatedAt.UnixMilli(), item.UpdatedAt.UnixMilli(), data,
	)
	if err != nil {
		return unavailable("put snapshot "+item.ID, err)
	}
	return nil
}

// Get loads and decodes one snapshot.
func (s *Snapshots) Get(ctx context.Context, id string) (memory.MemoryItem, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM items WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.MemoryItem{}, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return memory.MemoryItem{}, unavailable("get snapshot "+id, err)
	}
	return memory.DecodeSnapshot(id, data)
}

// GetMany loads the snapshots that exist among ids.
func (s *Snapshots) GetMany(ctx context.Context, ids []string) (map[string]memory.SnapshotResult, error) {
	out := make(map[string]memory.SnapshotResult, len(ids))
	for start := 0; start < len(ids); start += maxBatch {
		batch := ids[start:min(start+maxBatch, len(ids))]
		if err := s.getBatch(ctx, batch, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Snapshots) getBatch(ctx context.Context, ids []string, out map[string]memory.SnapshotResult) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, snapshot FROM items WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return unavailable("get snapshots", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return unavailable("scan snapshot", err)
		}
		item, err := memory.DecodeSnapshot(id, data)
		out[id] = memory.SnapshotResult{Item: item, Err: err}
	}
	if err := rows.Err(); err != nil {
		return unavailable("snapshot rows", err)
	}
	return nil
}

// Delete removes a snapshot and reports whether one existed.
func (s *Snapshots) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, unavailable("delete snapshot "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("delete snapshot "+id, err)
	}
	return n > 0, nil
}

// Count returns the number of snapshots, restricted to section when set.
func (s *Snapshots) Count(ctx context.Context, section memory.Section) (int, error) {
	var (
		n   int
		err error
	)
	if section == "" {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM items`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM items WHERE section = ?`, string(section)).Scan(&n)
	}
	if err != nil {
		return 0, unavailable("count snapshots", err)
	}
	return n, nil
}

// IDs lists stored ids in sorted order.
func (s *Snapshots) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM items ORDER BY id`)
	if err != nil {
		return nil, unavailable("list ids", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("id rows", err)
	}
	return ids, nil
}
