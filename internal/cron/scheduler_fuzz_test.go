package cron

import "testing"

func FuzzSchedule(f *testing.F) {
	for _, seed := range []string{"*/5 * * * *", "0 * * * *", "0 0 1 1 *", "invalid", "", "60 * * * *", "0 25 * * *"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, expr string) {
		job := &TurnSweepJob{ScheduleExpr: expr}
		s, err := NewScheduler()
		if err != nil {
			t.Fatal(err)
		}
		// Registration either accepts the expression or rejects it; it
		// must not panic.
		_ = s.RegisterJob(job)
	})
}
