package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "hwbot/internal/transport"
)

func TestWriterLoggerFieldsAndLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("component", "poller"))

	log.Debug("hidden")
	log.Info("cycle done", Int64("cursor", 42), Err(errors.New("boom")), Bool("ok", false))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if m["message"] != "cycle done" || m["component"] != "poller" || m["cursor"] != float64(42) || m["ok"] != false {
		t.Fatalf("record = %v", m)
	}
	if m["err"] != "boom" {
		t.Fatalf("err field = %v", m["err"])
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %v", m["caller"])
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop should not be zero")
	}
}

func TestRenderRecord(t *testing.T) {
	t.Parallel()
	in := `{"level":"error","time":"x","message":"poll cycle failed","comp":"poller","kind":"api.http_status","caller":"poller.go:1"}`
	got := renderRecord([]byte(in), 0)
	want := "ERROR poller: poll cycle failed\nkind: api.http_status"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
	if got := renderRecord([]byte(`{"level":"warn","message":"m"}`), 3); got != "WARN m\n(3 earlier records dropped)" {
		t.Fatalf("dropped = %q", got)
	}
	if got := renderRecord([]byte("  plain text \n"), 0); got != "plain text" {
		t.Fatalf("non-JSON = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghijklmnop", 12, "abcdefghi..."},
		{"abcdef", 3, "abc"},
		{"abc", 0, "abc"},
		// "ж" is two bytes; the cut backs off to a rune boundary.
		{"жжжжжжжж", 12, "жжжж..."},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.n); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if parseLevel(" warning ", LevelInfo) != LevelWarn {
		t.Fatal("warning")
	}
	if parseLevel("debug", LevelInfo) != LevelDebug {
		t.Fatal("debug")
	}
	if parseLevel("bogus", LevelError) != LevelError {
		t.Fatal("default")
	}
}

type captureSender struct {
	mu   sync.Mutex
	to   []kit.ChatTarget
	msgs []string
}

func (c *captureSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.to = append(c.to, to)
	c.msgs = append(c.msgs, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestServiceTelegramSink(t *testing.T) {
	t.Parallel()
	sender := &captureSender{}
	svc, log := New(Config{
		Level: "debug",
		Telegram: TelegramConfig{
			Enabled:    true,
			ChatID:     77,
			MinLevel:   "error",
			RatePerSec: 10,
		},
	}, sender)
	defer svc.Close()

	log.Warn("below threshold")
	log.Error("poll cycle failed", String("kind", "api.transport"))

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.msgs) != 1 {
		t.Fatalf("sent %d messages: %q", len(sender.msgs), sender.msgs)
	}
	if sender.to[0].ChatID != 77 {
		t.Fatalf("target = %+v", sender.to[0])
	}
	if !strings.HasPrefix(sender.msgs[0], "ERROR poll cycle failed") || !strings.Contains(sender.msgs[0], "kind: api.transport") {
		t.Fatalf("msg = %q", sender.msgs[0])
	}
}

func TestServiceApplyChangesLevel(t *testing.T) {
	t.Parallel()
	svc, log := New(Config{Level: "error"}, nil)
	defer svc.Close()
	if log.Enabled(LevelInfo) {
		t.Fatal("info enabled at error level")
	}
	svc.Apply(Config{Level: "debug"})
	if !log.Enabled(LevelDebug) {
		t.Fatal("Apply did not lower the level")
	}
}
