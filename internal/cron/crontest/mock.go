// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync/atomic"

	"github.com/flemzord/recall/internal/cron"
)

// Job is a cron.Job whose behaviour is set per test. The zero schedule runs
// every minute.
type Job struct {
	ID    string
	Expr  string
	RunFn func(ctx context.Context) error

	runs atomic.Int64
}

var _ cron.Job = (*Job)(nil)

func (j *Job) Name() string { return j.ID }

func (j *Job) Schedule() string {
	if j.Expr == "" {
		return "* * * * *"
	}
	return j.Expr
}

func (j *Job) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.RunFn == nil {
		return nil
	}
	return j.RunFn(ctx)
}

// Runs returns how many times Run was called.
func (j *Job) Runs() int { return int(j.runs.Load()) }
