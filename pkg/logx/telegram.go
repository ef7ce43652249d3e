package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "hwbot/internal/transport"
)

const (
	tgQueueSize   = 256
	tgMessageMax  = 3500
	tgValueMax    = 600
	tgSendTimeout = 10 * time.Second
)

// telegramSink is a zerolog.LevelWriter that mirrors records into a chat.
// Writes never block: records over the rate limit or a full queue are
// counted and dropped.
type telegramSink struct {
	sender kit.Sender
	queue  chan tgRecord

	mu       sync.Mutex
	target   kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	dropped atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

type tgRecord struct {
	to   kit.ChatTarget
	text string
}

func newTelegramSink(sender kit.Sender) *telegramSink {
	return &telegramSink{
		sender:   sender,
		queue:    make(chan tgRecord, tgQueueSize),
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	rps := max(1, cfg.RatePerSec)
	t.mu.Lock()
	t.target = kit.ChatTarget{ChatID: cfg.ChatID, Username: cfg.ChatUsername, ThreadID: cfg.ThreadID}
	t.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	t.mu.Unlock()

	if cfg.Enabled {
		t.startOnce.Do(func() { go t.run() })
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, minLevel, lim := t.target, t.minLevel, t.limiter
	t.mu.Unlock()

	if to.IsZero() || level < minLevel {
		return len(p), nil
	}
	if !lim.Allow() {
		t.dropped.Add(1)
		return len(p), nil
	}
	text := renderRecord(p, t.dropped.Swap(0))
	if text == "" {
		return len(p), nil
	}
	select {
	case t.queue <- tgRecord{to: to, text: text}:
	default:
		t.dropped.Add(1)
	}
	return len(p), nil
}

func (t *telegramSink) run() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case r := <-t.queue:
			t.send(context.Background(), r)
		}
	}
}

func (t *telegramSink) send(parent context.Context, r tgRecord) {
	ctx, cancel := context.WithTimeout(parent, tgSendTimeout)
	defer cancel()
	_, _ = t.sender.SendText(ctx, r.to, r.text, &kit.SendOptions{DisablePreview: true})
}

// close stops the worker and sends what is still queued until timeout.
func (t *telegramSink) close(timeout time.Duration) {
	t.stopOnce.Do(func() {
		// A sink that never started has no worker to wait for.
		t.startOnce.Do(func() { close(t.done) })
		close(t.stop)
		select {
		case <-t.done:
		case <-time.After(timeout):
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		for ctx.Err() == nil {
			select {
			case r := <-t.queue:
				t.send(ctx, r)
			default:
				return
			}
		}
	})
}

// renderRecord turns a zerolog JSON line into a chat message:
//
//	ERROR poller: poll cycle failed
//	err: homework API unreachable: ...
//	kind: api.transport
func renderRecord(p []byte, dropped uint64) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), tgMessageMax)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString(strings.ToUpper(lvl) + " ")
	}
	if comp, _ := m["comp"].(string); comp != "" {
		b.WriteString(comp + ": ")
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message", "comp", zerolog.CallerFieldName:
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, truncate(fmt.Sprint(m[k]), tgValueMax))
	}
	if dropped > 0 {
		fmt.Fprintf(&b, "\n(%d earlier records dropped)", dropped)
	}
	return truncate(b.String(), tgMessageMax)
}

// truncate cuts s to at most maxN bytes without splitting a UTF-8 sequence.
func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	cut, tail := maxN, ""
	if maxN >= 10 {
		cut, tail = maxN-3, "..."
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + tail
}
