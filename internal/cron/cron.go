// Package cron runs recall's periodic maintenance: sweeping expired
// conversation turns and reconciling the similarity index with the
// snapshot store.
package cron

import (
	"context"
	"fmt"
)

// Off disables a job in place of a schedule.
const Off = "off"

// Job is one periodic task. Schedule is a five-field cron expression in
// local time; Run should return promptly once ctx is done.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// ValidateSchedule checks expr the way the scheduler will parse it. The
// empty string and Off are accepted.
func ValidateSchedule(expr string) error {
	if expr == "" || expr == Off {
		return nil
	}
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return nil
}
