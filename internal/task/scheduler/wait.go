package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Wait blocks until the next trigger of sched after now, or until ctx is done.
// It returns the trigger time it waited for.
func Wait(ctx context.Context, sched cron.Schedule, now time.Time) (time.Time, error) {
	next := sched.Next(now)
	if next.IsZero() {
		// cron returns zero time for schedules that can never fire.
		<-ctx.Done()
		return time.Time{}, ctx.Err()
	}
	d := next.Sub(now)
	if d <= 0 {
		return next, ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case <-t.C:
		return next, nil
	}
}
