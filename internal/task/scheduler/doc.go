// Package scheduler turns schedule strings (cron/interval) into robfig/cron
// schedules and provides a cancellable wait for the next trigger.
package scheduler
