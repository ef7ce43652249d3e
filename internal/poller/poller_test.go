package poller

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hwbot/internal/eventbus"
	"hwbot/internal/homework"
	"hwbot/internal/practicum"
	"hwbot/internal/storage"
	"hwbot/pkg/logx"
)

type reply struct {
	body any
	err  error
}

type fakeFetcher struct {
	mu      sync.Mutex
	replies []reply
	cursors []int64
}

func (f *fakeFetcher) Statuses(ctx context.Context, from int64) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, from)
	if len(f.replies) == 0 {
		return map[string]any{"homeworks": []any{}}, nil
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r.body, r.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	fail bool
	sent []string
}

func (n *fakeNotifier) Send(ctx context.Context, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return false
	}
	n.sent = append(n.sent, text)
	return true
}

func (n *fakeNotifier) texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func body(current float64, hws ...map[string]any) map[string]any {
	list := make([]any, 0, len(hws))
	for _, h := range hws {
		list = append(list, h)
	}
	m := map[string]any{"homeworks": list}
	if current > 0 {
		m["current_date"] = current
	}
	return m
}

func hw(name, status string) map[string]any {
	return map[string]any{"homework_name": name, "status": status}
}

const approvedMsg = `Изменился статус проверки работы "hw1". Работа проверена: ревьюеру всё понравилось. Ура!`

func newTestPoller(cfg Config, f Fetcher, n Notifier, st storage.Store, bus eventbus.Bus) *Poller {
	p := New(cfg, f, n, st, bus, logx.Nop())
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	return p
}

func TestCycleNotifiesAndAdvancesCursor(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{replies: []reply{{body: body(1700000500, hw("hw1", "approved"))}}}
	n := &fakeNotifier{}
	p := newTestPoller(Config{InitialCursor: 1700000000}, f, n, nil, nil)

	res := p.Cycle(context.Background())
	if res.Outcome != OutcomeNotified || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Message != approvedMsg {
		t.Fatalf("message = %q", res.Message)
	}
	if got := n.texts(); len(got) != 1 || got[0] != approvedMsg {
		t.Fatalf("sent = %q", got)
	}
	if f.cursors[0] != 1700000000 {
		t.Fatalf("fetched with cursor %d", f.cursors[0])
	}
	if st := p.Snapshot(); st.Cursor != 1700000500 || st.LastMessage != approvedMsg {
		t.Fatalf("state = %+v", st)
	}
}

func TestCycleKeepsCursorWithoutCurrentDate(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{replies: []reply{{body: body(0, hw("hw1", "reviewing"))}}}
	p := newTestPoller(Config{InitialCursor: 42}, f, &fakeNotifier{}, nil, nil)

	res := p.Cycle(context.Background())
	if res.Outcome != OutcomeNotified {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	if res.Cursor != 42 || p.Snapshot().Cursor != 42 {
		t.Fatalf("cursor = %d / %d, want 42", res.Cursor, p.Snapshot().Cursor)
	}
}

func TestCycleSuppressesRepeatedMessage(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{replies: []reply{
		{body: body(10, hw("hw1", "approved"))},
		{body: body(20, hw("hw1", "approved"))},
		{body: body(30, hw("hw1", "rejected"))},
	}}
	n := &fakeNotifier{}
	p := newTestPoller(Config{InitialCursor: 1}, f, n, nil, nil)

	want := []Outcome{OutcomeNotified, OutcomeUnchanged, OutcomeNotified}
	for i, w := range want {
		if got := p.Cycle(context.Background()).Outcome; got != w {
			t.Fatalf("cycle %d outcome = %v, want %v", i, got, w)
		}
	}
	if got := n.texts(); len(got) != 2 {
		t.Fatalf("sent %d messages, want 2: %q", len(got), got)
	}
	if p.Snapshot().Cursor != 30 {
		t.Fatalf("cursor = %d", p.Snapshot().Cursor)
	}
}

func TestCycleEmptyListIsIdle(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{replies: []reply{{body: body(99)}}}
	n := &fakeNotifier{}
	p := newTestPoller(Config{InitialCursor: 1, ReportErrors: true}, f, n, nil, nil)

	res := p.Cycle(context.Background())
	if res.Outcome != OutcomeIdle || !errors.Is(res.Err, homework.ErrNoHomeworks) {
		t.Fatalf("result = %+v", res)
	}
	if len(n.texts()) != 0 {
		t.Fatalf("idle cycle sent %q", n.texts())
	}
	if p.Snapshot().Cursor != 99 {
		t.Fatalf("cursor = %d, want 99", p.Snapshot().Cursor)
	}
}

// sinceFetcher behaves like the real API: a homework is listed only while
// from_date is not past its update time, and current_date is always now.
type sinceFetcher struct {
	mu      sync.Mutex
	updated int64
	now     int64
	cursors []int64
}

func (f *sinceFetcher) Statuses(ctx context.Context, from int64) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, from)
	if from <= f.updated {
		return body(float64(f.now), hw("hw1", "approved")), nil
	}
	return body(float64(f.now)), nil
}

func TestCycleUndeliveredIsRetried(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "hwbot.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	f := &sinceFetcher{updated: 150, now: 200}
	n := &fakeNotifier{fail: true}
	p := newTestPoller(Config{InitialCursor: 100}, f, n, st, nil)

	res := p.Cycle(ctx)
	if res.Outcome != OutcomeUndelivered || res.Err != nil || res.Cursor != 100 {
		t.Fatalf("result = %+v", res)
	}
	if snap := p.Snapshot(); snap.Cursor != 100 || snap.LastMessage != "" {
		t.Fatalf("state after failed delivery = %+v", snap)
	}
	if saved, ok, _ := st.LoadState(ctx); ok && saved.Cursor != 100 {
		t.Fatalf("stored cursor = %d, want 100", saved.Cursor)
	}

	n.mu.Lock()
	n.fail = false
	n.mu.Unlock()
	if res := p.Cycle(ctx); res.Outcome != OutcomeNotified || res.Cursor != 200 {
		t.Fatalf("retry result = %+v", res)
	}
	if got := n.texts(); len(got) != 1 || got[0] != approvedMsg {
		t.Fatalf("sent = %q", got)
	}
	saved, ok, err := st.LoadState(ctx)
	if err != nil || !ok || saved.Cursor != 200 || saved.LastMessage != approvedMsg {
		t.Fatalf("stored state = %+v ok=%v err=%v", saved, ok, err)
	}

	if res := p.Cycle(ctx); res.Outcome != OutcomeIdle {
		t.Fatalf("third cycle = %v", res.Outcome)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if want := []int64{100, 100, 200}; len(f.cursors) != 3 || f.cursors[0] != want[0] || f.cursors[1] != want[1] || f.cursors[2] != want[2] {
		t.Fatalf("cursors = %v, want %v", f.cursors, want)
	}
}

func TestCycleFailures(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		r    reply
		kind string
	}{
		{"unknown status", reply{body: body(0, hw("hw1", "lost"))}, "response.unknown_status"},
		{"missing homeworks", reply{body: map[string]any{"current_date": 5.0}}, "response.missing_key"},
		{"missing name", reply{body: body(0, map[string]any{"status": "approved"})}, "response.missing_key"},
		{"wrong type", reply{body: []any{}}, "response.type"},
		{"http status", reply{err: &practicum.APIError{Kind: practicum.KindHTTPStatus, StatusCode: 503}}, "api.http_status"},
		{"transport", reply{err: &practicum.APIError{Kind: practicum.KindTransport, Err: errors.New("dial tcp")}}, "api.transport"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n := &fakeNotifier{}
			p := newTestPoller(Config{InitialCursor: 1}, &fakeFetcher{replies: []reply{tc.r}}, n, nil, nil)
			res := p.Cycle(context.Background())
			if res.Outcome != OutcomeFailed || res.Err == nil {
				t.Fatalf("result = %+v", res)
			}
			if got := errorKind(res.Err); got != tc.kind {
				t.Fatalf("kind = %q, want %q", got, tc.kind)
			}
			if len(n.texts()) != 0 {
				t.Fatalf("failure sent %q with ReportErrors off", n.texts())
			}
		})
	}
}

func TestReportErrorsOncePerDistinctError(t *testing.T) {
	t.Parallel()
	apiDown := reply{err: &practicum.APIError{Kind: practicum.KindHTTPStatus, StatusCode: 500}}
	f := &fakeFetcher{replies: []reply{
		apiDown,
		apiDown,
		{body: body(0, hw("hw1", "approved"))},
		apiDown,
	}}
	n := &fakeNotifier{}
	p := newTestPoller(Config{InitialCursor: 1, ReportErrors: true}, f, n, nil, nil)

	for i := 0; i < 4; i++ {
		p.Cycle(context.Background())
	}
	got := n.texts()
	if len(got) != 3 {
		t.Fatalf("sent %d messages, want 3: %q", len(got), got)
	}
	if !strings.HasPrefix(got[0], errorPrefix) || got[1] != approvedMsg || !strings.HasPrefix(got[2], errorPrefix) {
		t.Fatalf("sent = %q", got)
	}
}

func TestRestoreFromStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "hwbot.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if err := st.SaveState(ctx, storage.State{Cursor: 555, LastMessage: approvedMsg}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	f := &fakeFetcher{replies: []reply{{body: body(600, hw("hw1", "approved"))}}}
	n := &fakeNotifier{}
	p := newTestPoller(Config{}, f, n, st, nil)
	if err := p.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res := p.Cycle(ctx); res.Outcome != OutcomeUnchanged {
		t.Fatalf("outcome = %v, want unchanged after restore", res.Outcome)
	}
	if f.cursors[0] != 555 {
		t.Fatalf("fetched with cursor %d, want 555", f.cursors[0])
	}
	saved, ok, err := st.LoadState(ctx)
	if err != nil || !ok || saved.Cursor != 600 {
		t.Fatalf("saved = %+v ok:%v err:%v", saved, ok, err)
	}
}

func TestRestoreWithoutStateUsesNow(t *testing.T) {
	t.Parallel()
	p := newTestPoller(Config{}, &fakeFetcher{}, &fakeNotifier{}, nil, nil)
	if err := p.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.Snapshot().Cursor != 1700000000 {
		t.Fatalf("cursor = %d", p.Snapshot().Cursor)
	}
}

func TestCyclePublishesEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	f := &fakeFetcher{replies: []reply{{body: body(0, hw("hw1", "approved"))}}}
	p := newTestPoller(Config{InitialCursor: 1}, f, &fakeNotifier{}, nil, bus)
	p.Cycle(context.Background())

	var types []string
	for len(types) < 2 {
		select {
		case e := <-ch:
			types = append(types, e.Type)
			if e.Type == eventbus.TypeStatusChanged {
				sc, ok := e.Data.(StatusChange)
				if !ok || sc.HomeworkName != "hw1" || sc.Status != "approved" {
					t.Fatalf("payload = %#v", e.Data)
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("events = %v", types)
		}
	}
	if types[0] != eventbus.TypeStatusChanged || types[1] != eventbus.TypeCycleDone {
		t.Fatalf("events = %v", types)
	}
}

func TestRunContinuesAfterFailuresAndStopsOnCancel(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{replies: []reply{
		{err: &practicum.APIError{Kind: practicum.KindTransport, Err: errors.New("boom")}},
		{body: body(0, hw("hw1", "approved"))},
	}}
	n := &fakeNotifier{}
	p := newTestPoller(Config{InitialCursor: 1}, f, n, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var waits int
	p.wait = func(ctx context.Context) error {
		waits++
		if waits == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if waits != 3 {
		t.Fatalf("waits = %d, want a wait after every cycle", waits)
	}
	if !p.LastCycle().Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("last cycle = %v", p.LastCycle())
	}
	if got := n.texts(); len(got) != 1 || got[0] != approvedMsg {
		t.Fatalf("sent = %q", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want Action
	}{
		{nil, ActionNone},
		{context.Canceled, ActionStop},
		{&practicum.APIError{Kind: practicum.KindTransport, Err: context.Canceled}, ActionStop},
		{homework.ErrNoHomeworks, ActionIdle},
		{homework.ErrUnknownStatus, ActionLogAndContinue},
		{&practicum.APIError{Kind: practicum.KindDecode}, ActionLogAndContinue},
		{errors.New("other"), ActionLogAndContinue},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
