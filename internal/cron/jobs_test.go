package cron_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/recall/internal/cron"
	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/memory/memorytest"
	"github.com/flemzord/recall/internal/store"
)

func TestTurnSweepJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	buf, err := memory.NewInMemoryBuffer(memory.BufferConfig{WindowSize: 10, TTL: time.Hour, Now: clock})
	if err != nil {
		t.Fatal(err)
	}
	for _, conv := range []string{"a", "b"} {
		if _, err := buf.Record(ctx, memory.ConversationTurn{ConversationID: conv, Role: memory.RoleUser, Text: "hi"}); err != nil {
			t.Fatal(err)
		}
	}

	job := &cron.TurnSweepJob{Buffer: buf}
	if job.Name() != cron.TurnSweepJobName || job.Schedule() != "*/5 * * * *" {
		t.Errorf("job = %s %s", job.Name(), job.Schedule())
	}

	now = now.Add(2 * time.Hour)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, conv := range []string{"a", "b"} {
		if turns, _ := buf.History(ctx, conv, memory.HistoryOptions{}); len(turns) != 0 {
			t.Errorf("conversation %s kept %d expired turns", conv, len(turns))
		}
	}
}

type reconcilerFunc func(ctx context.Context) (store.ReindexReport, error)

func (f reconcilerFunc) Reindex(ctx context.Context) (store.ReindexReport, error) { return f(ctx) }

func TestIndexReconcileJob(t *testing.T) {
	t.Parallel()

	job := &cron.IndexReconcileJob{Store: reconcilerFunc(func(context.Context) (store.ReindexReport, error) {
		return store.ReindexReport{}, memory.ErrStoreUnavailable
	})}
	if job.Name() != cron.IndexReconcileJobName || job.Schedule() != "0 * * * *" {
		t.Errorf("job = %s %s", job.Name(), job.Schedule())
	}
	if err := job.Run(context.Background()); !errors.Is(err, memory.ErrStoreUnavailable) {
		t.Errorf("Run = %v, want ErrStoreUnavailable", err)
	}

	custom := &cron.IndexReconcileJob{ScheduleExpr: "*/30 * * * *"}
	if custom.Schedule() != "*/30 * * * *" {
		t.Errorf("Schedule = %s", custom.Schedule())
	}
}

func TestIndexReconcileJob_RestoresIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := memorytest.NewFakeIndex(nil)
	st, err := store.New(memory.NewInMemorySnapshots(), idx, store.Config{})
	if err != nil {
		t.Fatal(err)
	}
	item, err := st.Add(ctx, memory.MemoryItem{Title: "Dinner with Juan", Section: memory.SectionEvent})
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(ctx, item.ID); err != nil {
		t.Fatal(err)
	}

	if err := (&cron.IndexReconcileJob{Store: st}).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.IndexSize() != 1 {
		t.Errorf("IndexSize = %d after reconcile, want 1", st.IndexSize())
	}
}
