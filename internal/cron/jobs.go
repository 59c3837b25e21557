package cron

import (
	"context"
	"log/slog"

	"github.com/flemzord/recall/internal/store"
)

// Job names.
const (
	TurnSweepJobName      = "stm_sweep"
	IndexReconcileJobName = "index_reconcile"
)

// Sweeper evicts expired turns from every conversation.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Reconciler realigns the similarity index with the snapshot store.
type Reconciler interface {
	Reindex(ctx context.Context) (store.ReindexReport, error)
}

// TurnSweepJob applies TTL eviction to idle conversations, which never see
// the eviction that runs on write.
type TurnSweepJob struct {
	Buffer       Sweeper
	Logger       *slog.Logger
	ScheduleExpr string // empty = "*/5 * * * *"
}

var _ Job = (*TurnSweepJob)(nil)

// Name implements Job.
func (j *TurnSweepJob) Name() string { return TurnSweepJobName }

// Schedule implements Job.
func (j *TurnSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run implements Job.
func (j *TurnSweepJob) Run(ctx context.Context) error {
	n, err := j.Buffer.Sweep(ctx)
	if err != nil {
		return err
	}
	if n > 0 && j.Logger != nil {
		j.Logger.Info("cron: swept expired turns", "count", n)
	}
	return nil
}

// IndexReconcileJob re-embeds items missing from the index and removes
// index entries whose snapshot is gone.
type IndexReconcileJob struct {
	Store        Reconciler
	ScheduleExpr string // empty = "0 * * * *"
}

var _ Job = (*IndexReconcileJob)(nil)

// Name implements Job.
func (j *IndexReconcileJob) Name() string { return IndexReconcileJobName }

// Schedule implements Job.
func (j *IndexReconcileJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run implements Job. The store logs the report when anything changed.
func (j *IndexReconcileJob) Run(ctx context.Context) error {
	_, err := j.Store.Reindex(ctx)
	return err
}
