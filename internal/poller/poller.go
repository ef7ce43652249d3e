// Package poller drives the relay: fetch statuses, validate, format,
// notify, sleep, repeat.
package poller

import (
	"context"
	"fmt"
	"hwbot/pkg/logx"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"hwbot/internal/eventbus"
	"hwbot/internal/homework"
	"hwbot/internal/storage"
	"hwbot/internal/task/scheduler"
)

// Fetcher is the homework status API. *practicum.Client implements it.
type Fetcher interface {
	Statuses(ctx context.Context, from int64) (any, error)
}

// Notifier delivers a message and reports whether it got through.
// *notifier.Service implements it.
type Notifier interface {
	Send(ctx context.Context, text string) bool
}

type Config struct {
	Schedule cron.Schedule
	// ReportErrors relays failed-cycle errors to the chat.
	ReportErrors bool
	// InitialCursor seeds the cursor when no state is stored. 0 means now.
	InitialCursor int64
}

// Outcome is the result of one cycle.
type Outcome int

const (
	OutcomeNotified Outcome = iota + 1
	// OutcomeUnchanged: the message equals the last delivered one.
	OutcomeUnchanged
	// OutcomeIdle: no homework updates since the cursor.
	OutcomeIdle
	// OutcomeUndelivered: a new message could not be delivered. The cursor
	// stays put so the next fetch returns the same homework again.
	OutcomeUndelivered
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotified:
		return "notified"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeIdle:
		return "idle"
	case OutcomeUndelivered:
		return "undelivered"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome Outcome
	// Cursor is the cursor the next cycle will use.
	Cursor  int64
	Message string
	Err     error
}

// StatusChange is the payload of eventbus.TypeStatusChanged.
type StatusChange struct {
	HomeworkName string
	Status       string
	Message      string
	At           time.Time
}

const errorPrefix = "Сбой в работе программы: "

type Poller struct {
	cfg    Config
	fetch  Fetcher
	notify Notifier
	store  storage.Store
	bus    eventbus.Bus
	log    logx.Logger

	now  func() time.Time
	wait func(ctx context.Context) error

	mu        sync.Mutex
	state     storage.State
	lastError string
	lastCycle time.Time
}

// New builds a poller. store and bus may be nil.
func New(cfg Config, fetch Fetcher, notify Notifier, store storage.Store, bus eventbus.Bus, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Poller{
		cfg:    cfg,
		fetch:  fetch,
		notify: notify,
		store:  store,
		bus:    bus,
		log:    log,
		now:    time.Now,
	}
	p.wait = func(ctx context.Context) error {
		_, err := scheduler.Wait(ctx, p.cfg.Schedule, p.now())
		return err
	}
	p.state.Cursor = cfg.InitialCursor
	return p
}

// Restore seeds the state: the stored state when present, otherwise
// InitialCursor or the current time.
func (p *Poller) Restore(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store != nil {
		st, ok, err := p.store.LoadState(ctx)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		if ok && st.Cursor > 0 {
			p.state = st
			p.log.Info("state restored", logx.Int64("cursor", st.Cursor), logx.Bool("has_last_message", st.LastMessage != ""))
			return nil
		}
	}
	if p.cfg.InitialCursor > 0 {
		p.state.Cursor = p.cfg.InitialCursor
	} else {
		p.state.Cursor = p.now().Unix()
	}
	return nil
}

// Snapshot returns the current state.
func (p *Poller) Snapshot() storage.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastCycle returns when the loop last started or finished a cycle.
func (p *Poller) LastCycle() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCycle
}

func (p *Poller) markCycle() {
	p.mu.Lock()
	p.lastCycle = p.now()
	p.mu.Unlock()
}

// Run loops until ctx is done. Every cycle is followed by a wait for the
// next schedule tick, whether the cycle succeeded or not.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poll loop started", logx.Int64("cursor", p.Snapshot().Cursor))
	p.markCycle()
	for {
		res := p.Cycle(ctx)
		p.markCycle()
		if Classify(res.Err) == ActionStop || ctx.Err() != nil {
			p.log.Info("poll loop stopped")
			return nil
		}
		if err := p.wait(ctx); err != nil {
			p.log.Info("poll loop stopped")
			return nil
		}
	}
}

// Cycle runs one fetch-validate-format-notify pass.
func (p *Poller) Cycle(ctx context.Context) Result {
	p.mu.Lock()
	cursor := p.state.Cursor
	p.mu.Unlock()

	res := p.cycle(ctx, cursor)

	switch Classify(res.Err) {
	case ActionIdle:
		res.Outcome = OutcomeIdle
		p.clearLastError()
		p.log.Debug("no homework updates", logx.Int64("cursor", res.Cursor))
	case ActionLogAndContinue:
		res.Outcome = OutcomeFailed
		p.log.Error("poll cycle failed", logx.String("kind", errorKind(res.Err)), logx.Err(res.Err))
		p.reportError(ctx, res.Err)
	case ActionStop:
		res.Outcome = OutcomeFailed
		return res
	case ActionNone:
		p.clearLastError()
	}

	p.publish(eventbus.TypeCycleDone, res)
	if res.Outcome == OutcomeFailed {
		p.publish(eventbus.TypeCycleFailed, res)
	}
	return res
}

func (p *Poller) cycle(ctx context.Context, cursor int64) Result {
	res := Result{Cursor: cursor}

	body, err := p.fetch.Statuses(ctx, cursor)
	if err != nil {
		res.Err = err
		return res
	}

	next := cursor
	if d, ok := homework.CurrentDate(body); ok {
		next = d
	}

	rec, err := homework.CheckResponse(body)
	if err != nil {
		res.Err = err
		return p.advance(ctx, res, next)
	}
	msg, err := homework.ParseStatus(rec)
	if err != nil {
		res.Err = err
		return p.advance(ctx, res, next)
	}
	res.Message = msg

	p.mu.Lock()
	unchanged := msg == p.state.LastMessage
	p.mu.Unlock()
	if unchanged {
		res.Outcome = OutcomeUnchanged
		p.log.Debug("status unchanged; not notifying", logx.String("homework", rec.Name()))
		return p.advance(ctx, res, next)
	}

	if !p.notify.Send(ctx, msg) {
		res.Outcome = OutcomeUndelivered
		p.log.Warn("status not delivered; keeping cursor", logx.String("homework", rec.Name()), logx.Int64("cursor", cursor))
		return res
	}
	res.Outcome = OutcomeNotified
	res.Cursor = next
	p.updateState(ctx, func(st *storage.State) {
		st.Cursor = next
		st.LastMessage = msg
	})

	change := StatusChange{HomeworkName: rec.Name(), Status: string(rec.Status()), Message: msg, At: p.now()}
	p.log.Info("homework status changed", logx.String("homework", change.HomeworkName), logx.String("status", change.Status))
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: eventbus.TypeStatusChanged, Time: change.At, Data: change})
	}
	return res
}

// advance moves the cursor to next and returns res pointing at it.
func (p *Poller) advance(ctx context.Context, res Result, next int64) Result {
	if next != res.Cursor {
		res.Cursor = next
		p.updateState(ctx, func(st *storage.State) { st.Cursor = next })
	}
	return res
}

// updateState mutates the state and mirrors it to the store (best-effort).
func (p *Poller) updateState(ctx context.Context, fn func(st *storage.State)) {
	p.mu.Lock()
	fn(&p.state)
	p.state.UpdatedAt = p.now()
	st := p.state
	p.mu.Unlock()

	if p.store == nil {
		return
	}
	if err := p.store.SaveState(ctx, st); err != nil {
		p.log.Warn("state save failed", logx.Err(err))
	}
}

// reportError relays the error text to the chat once per distinct error.
func (p *Poller) reportError(ctx context.Context, err error) {
	if !p.cfg.ReportErrors || err == nil {
		return
	}
	text := errorPrefix + err.Error()

	p.mu.Lock()
	dup := text == p.lastError
	p.mu.Unlock()
	if dup {
		return
	}
	if p.notify.Send(ctx, text) {
		p.mu.Lock()
		p.lastError = text
		p.mu.Unlock()
	}
}

func (p *Poller) clearLastError() {
	p.mu.Lock()
	p.lastError = ""
	p.mu.Unlock()
}

func (p *Poller) publish(typ string, res Result) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: typ, Time: p.now(), Data: res})
}
