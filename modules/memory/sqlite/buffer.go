package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/recall/internal/memory"
)

// Buffer is a memory.ConversationBuffer stored in the turns table. A turn's
// insert and the eviction it triggers commit in one transaction.
type Buffer struct {
	db   *sql.DB
	cfg  memory.BufferConfig
	keys memory.KeyedMutex
}

var _ memory.ConversationBuffer = (*Buffer)(nil)

// NewBuffer returns a buffer over an opened database. Zero config values
// take the memory package defaults.
func NewBuffer(db *sql.DB, cfg memory.BufferConfig) (*Buffer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Buffer{db: db, cfg: cfg}, nil
}

// Record inserts a turn and evicts expired and excess turns of its
// conversation.
func (b *Buffer) Record(ctx context.Context, turn memory.ConversationTurn) (memory.ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return memory.ConversationTurn{}, err
	}
	now := b.cfg.Now()
	turn, err := memory.PrepareTurn(turn, now)
	if err != nil {
		return memory.ConversationTurn{}, err
	}
	meta, err := encodeMetadata(turn.Metadata)
	if err != nil {
		return memory.ConversationTurn{}, fmt.Errorf("%w: %v", memory.ErrInvalidTurn, err)
	}

	unlock := b.keys.Lock(turn.ConversationID)
	defer unlock()

	err = withTx(ctx, b.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM turns WHERE id = ?`, turn.ID).Scan(&exists)
		switch {
		case err == nil:
			return fmt.Errorf("%w: turn %s already recorded", memory.ErrInvalidTurn, turn.ID)
		case !errors.Is(err, sql.ErrNoRows):
			return unavailable("lookup turn", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO turns (id, conversation_id, speaker_id, role, text, ts, correlation_id, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			turn.ID, turn.ConversationID, turn.SpeakerID, string(turn.Role), turn.Text,
			turn.Timestamp.UnixNano(), turn.CorrelationID, meta,
		); err != nil {
			return unavailable("insert turn", err)
		}
		return evict(ctx, tx, turn.ConversationID, b.cfg.Cutoff(now), b.cfg.WindowSize)
	})
	if err != nil {
		return memory.ConversationTurn{}, err
	}
	return turn, nil
}

// evict deletes turns before cutoff and then every turn beyond the newest
// window.
func evict(ctx context.Context, tx *sql.Tx, conversationID string, cutoff time.Time, window int) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM turns WHERE conversation_id = ? AND ts < ?`,
		conversationID, cutoff.UnixNano(),
	); err != nil {
		return unavailable("evict expired turns", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM turns
		WHERE conversation_id = ? AND seq NOT IN (
			SELECT seq FROM turns WHERE conversation_id = ?
			ORDER BY ts DESC, seq DESC
			LIMIT ?
		)`,
		conversationID, conversationID, window,
	); err != nil {
		return unavailable("evict excess turns", err)
	}
	return nil
}

// History returns unexpired turns newest first.
func (b *Buffer) History(ctx context.Context, conversationID string, opts memory.HistoryOptions) ([]memory.ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Since is exclusive; a zero Since collapses to the cutoff.
	after := b.cfg.Cutoff(b.cfg.Now()).UnixNano() - 1
	if !opts.Since.IsZero() {
		after = max(after, opts.Since.UnixNano())
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, conversation_id, speaker_id, role, text, ts, correlation_id, metadata
		FROM turns
		WHERE conversation_id = ? AND ts > ?
		ORDER BY ts DESC, seq DESC
		LIMIT ?`,
		conversationID, after, b.cfg.HistoryLimit(opts),
	)
	if err != nil {
		return nil, unavailable("query history", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []memory.ConversationTurn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("history rows", err)
	}
	return turns, nil
}

// Clear deletes every turn of a conversation.
func (b *Buffer) Clear(ctx context.Context, conversationID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	unlock := b.keys.Lock(conversationID)
	defer unlock()

	res, err := b.db.ExecContext(ctx, `DELETE FROM turns WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return 0, unavailable("clear conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("clear conversation", err)
	}
	return int(n), nil
}

// Sweep deletes expired turns across all conversations in one statement.
func (b *Buffer) Sweep(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := b.cfg.Cutoff(b.cfg.Now())
	res, err := b.db.ExecContext(ctx, `DELETE FROM turns WHERE ts < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, unavailable("sweep turns", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("sweep turns", err)
	}
	return int(n), nil
}

func scanTurn(rows *sql.Rows) (memory.ConversationTurn, error) {
	var (
		t    memory.ConversationTurn
		role string
		ts   int64
		meta string
	)
	if err := rows.Scan(&t.ID, &t.ConversationID, &t.SpeakerID, &role, &t.Text, &ts, &t.CorrelationID, &meta); err != nil {
		return memory.ConversationTurn{}, unavailable("scan turn", err)
	}
	t.Role = memory.Role(role)
	t.Timestamp = time.Unix(0, ts).UTC()
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
			return memory.ConversationTurn{}, fmt.Errorf("%w: turn %s metadata: %v", memory.ErrDataIntegrity, t.ID, err)
		}
	}
	return t, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unavailable wraps a database failure so callers can classify it.
func unavailable(op string, err error) error {
	return fmt.Errorf("sqlite: %s: %w: %w", op, memory.ErrStoreUnavailable, err)
}
