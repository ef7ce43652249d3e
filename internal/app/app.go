package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"hwbot/internal/config"
	"hwbot/internal/eventbus"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	"hwbot/internal/practicum"
	"hwbot/internal/runtime/supervisor"
	"hwbot/internal/storage"
	"hwbot/internal/task/scheduler"
	kit "hwbot/internal/transport"
	telegram "hwbot/internal/transport/telegram/adapter"
	logx "hwbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	notif   *notifier.Service
	poll    *poller.Poller
}

// NewApp loads the config and builds every component. Nothing runs until Start.
func NewApp(cfgPath, envPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath, envPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	sched, err := parseSchedule(cfg)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:   cfg.Telegram.Token,
		APIURL:  cfg.Telegram.APIURL,
		Timeout: config.DurationOr(cfg.Telegram.Timeout, 10*time.Second),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	client := practicum.NewClient(practicum.Config{
		Endpoint:  cfg.Practicum.Endpoint,
		Token:     cfg.Practicum.Token,
		Timeout:   config.DurationOr(cfg.Practicum.Timeout, 30*time.Second),
		UserAgent: cfg.Practicum.UserAgent,
	}, log.With(logx.String("comp", "practicum")))

	notif := notifier.New(notifier.Config{
		Target:      chatTarget(cfg),
		RatePerSec:  cfg.Telegram.RatePerSec,
		SendTimeout: config.DurationOr(cfg.Telegram.Timeout, 10*time.Second),
	}, ad, log.With(logx.String("comp", "notifier")))

	poll := poller.New(poller.Config{
		Schedule:      sched,
		ReportErrors:  cfg.Poller.ReportErrors,
		InitialCursor: cfg.Poller.FromDate,
	}, client, notif, store, bus, log.With(logx.String("comp", "poller")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		notif:   notif,
		poll:    poll,
	}, nil
}

func parseSchedule(cfg *config.Config) (cron.Schedule, error) {
	spec, err := scheduler.ParseSchedule(cfg.Poller.Schedule)
	if err != nil {
		return nil, fmt.Errorf("poller.schedule: %w", err)
	}
	return spec.Schedule()
}

func chatTarget(cfg *config.Config) kit.ChatTarget {
	return kit.ChatTarget{
		ChatID:   cfg.Telegram.ChatID,
		Username: cfg.Telegram.ChatUsername,
		ThreadID: cfg.Telegram.ThreadID,
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:      cfg.Logging.Telegram.Enabled,
			ChatID:       cfg.Telegram.ChatID,
			ChatUsername: cfg.Telegram.ChatUsername,
			ThreadID:     cfg.Logging.Telegram.ThreadID,
			MinLevel:     cfg.Logging.Telegram.MinLevel,
			RatePerSec:   cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.poll.Restore(a.sup.Context()); err != nil {
		return err
	}
	a.logLastDelivery(a.sup.Context())

	a.sup.GoRestart("poller", a.poll.Run)

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.consume", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
					a.recordHistory(c, e)
					a.reportCycle(e)
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg := <-sub:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		if err := a.cfgm.Watch(c); err != nil && !errors.Is(err, context.Canceled) {
			// Hot reload is optional; the relay keeps running without it.
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
		return nil
	})

	a.startSystemd()

	a.log.Info("app started",
		logx.String("schedule", a.cfgm.Get().Poller.Schedule),
		logx.Int64("chat_id", a.cfgm.Get().Telegram.ChatID),
		logx.String("chat_username", a.cfgm.Get().Telegram.ChatUsername),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

// recordHistory appends delivered status changes to the store.
func (a *App) recordHistory(ctx context.Context, e eventbus.Event) {
	if a.store == nil || e.Type != eventbus.TypeStatusChanged {
		return
	}
	sc, ok := e.Data.(poller.StatusChange)
	if !ok {
		return
	}
	err := a.store.AppendHistory(ctx, storage.HistoryEntry{
		At:           sc.At,
		HomeworkName: sc.HomeworkName,
		Status:       sc.Status,
		Message:      sc.Message,
	})
	if err != nil {
		a.log.Warn("history append failed", logx.Err(err))
	}
}

func (a *App) logLastDelivery(ctx context.Context) {
	if a.store == nil {
		return
	}
	hist, err := a.store.History(ctx, 1)
	if err != nil {
		a.log.Warn("history read failed", logx.Err(err))
		return
	}
	if len(hist) == 0 {
		return
	}
	last := hist[0]
	a.log.Info("last delivered status",
		logx.String("homework", last.HomeworkName),
		logx.String("status", last.Status),
		logx.Time("at", last.At),
	)
}

// applyConfig applies a reloaded config. Logging changes take effect live;
// everything else needs a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	if newCfg == nil {
		return
	}
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))

	var restart []string
	for _, s := range sections {
		if s != "logging" {
			restart = append(restart, s)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifySystemd(a.log, sdStopping)

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// The poll loop finishes its in-flight cycle before the store closes.
	step("supervisor", 5*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped",
		logx.Int("messages_sent", len(a.notif.Snapshot())),
		logx.Int64("restarts", int64(a.sup.Restarts())),
		logx.Int64("events_dropped", int64(a.bus.Dropped())),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
