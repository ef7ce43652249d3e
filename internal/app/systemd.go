package app

import (
	"context"
	"time"

	"hwbot/internal/eventbus"
	"hwbot/internal/poller"
	"hwbot/pkg/logx"
	"hwbot/pkg/systemd"
)

type sdState int

const (
	sdReady sdState = iota
	sdStopping
)

func notifySystemd(log logx.Logger, st sdState) {
	var (
		sent bool
		err  error
	)
	switch st {
	case sdReady:
		sent, err = systemd.Ready()
	case sdStopping:
		sent, err = systemd.Stopping()
	}
	if err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.Int("state", int(st)))
	}
}

// startSystemd reports readiness and, when WatchdogSec is set, keeps the
// watchdog fed while the poll loop makes progress.
func (a *App) startSystemd() {
	notifySystemd(a.log, sdReady)

	interval := systemd.WatchdogInterval()
	if interval <= 0 {
		return
	}
	// A healthy loop finishes a cycle at least once per schedule period; the
	// bound below leaves room for a slow cycle on top of that.
	stall := 3 * interval
	if s, err := parseSchedule(a.cfgm.Get()); err == nil {
		now := time.Now()
		if period := s.Next(now).Sub(now); period > 0 {
			stall += 2 * period
		}
	}
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval), logx.Duration("stall_after", stall))
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, interval, func() bool {
			return time.Since(a.poll.LastCycle()) < stall
		})
	})
}

// reportCycle shows the outcome of the latest poll cycle in systemctl status.
func (a *App) reportCycle(e eventbus.Event) {
	if e.Type != eventbus.TypeCycleDone {
		return
	}
	res, ok := e.Data.(poller.Result)
	if !ok {
		return
	}
	if _, err := systemd.Status(cycleStatus(res)); err != nil {
		a.log.Debug("sd_notify status failed", logx.Err(err))
	}
}

func cycleStatus(res poller.Result) string {
	s := "last cycle: " + res.Outcome.String()
	if res.Outcome == poller.OutcomeFailed && res.Err != nil {
		s += " (" + res.Err.Error() + ")"
	}
	return s
}
