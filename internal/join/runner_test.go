package join

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ansa1019/tool/internal/schedule"
	logx "github.com/ansa1019/tool/pkg/logx"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(ctx context.Context, text string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, text)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

// fakeDriver fails the configured step on every attempt.
type fakeDriver struct {
	failStep string // "open", "browser", "name", "audio", "join", "" for none
	url      string // reported by CurrentURL
	closed   *int
}

func (d *fakeDriver) step(name string) error {
	if d.failStep == name {
		return errors.New(name + " boom")
	}
	return nil
}

func (d *fakeDriver) Open(ctx context.Context, url string) error       { return d.step("open") }
func (d *fakeDriver) ClickJoinFromBrowser(ctx context.Context) error   { return d.step("browser") }
func (d *fakeDriver) FillDisplayName(ctx context.Context, name string) error {
	return d.step("name")
}
func (d *fakeDriver) SelectNoAudio(ctx context.Context) error { return d.step("audio") }
func (d *fakeDriver) ClickJoinNow(ctx context.Context) error  { return d.step("join") }
func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	return d.url, nil
}
func (d *fakeDriver) Close() error {
	if d.closed != nil {
		*d.closed++
	}
	return nil
}

func fastConfig() Config {
	return Config{
		GuestName:      "guest",
		RetryLimit:     2,
		WaitBeforeJoin: time.Millisecond,
		MaxWaitHost:    50 * time.Millisecond,
		AdmitPoll:      5 * time.Millisecond,
	}
}

func emptyStore(t *testing.T) *schedule.Store {
	t.Helper()
	s, err := schedule.NewStore(nil, time.UTC)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestAttemptExhaustsRetryBudgetWithOneFailureNotification(t *testing.T) {
	t.Parallel()
	n := &recordingNotifier{}
	spawned := 0
	closed := 0
	factory := func(ctx context.Context) (Driver, error) {
		spawned++
		return &fakeDriver{failStep: "join", closed: &closed}, nil
	}
	r := NewRunner(fastConfig(), factory, emptyStore(t), n, nil, logx.Nop())

	err := r.Attempt(context.Background(), "https://teams.microsoft.com/l/xyz")
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	if spawned != 2 {
		t.Fatalf("sessions spawned = %d, want RetryLimit = 2", spawned)
	}
	if closed != 2 {
		t.Fatalf("sessions closed = %d, want 2 (released on every failure path)", closed)
	}

	msgs := n.all()
	if len(msgs) != 1 {
		t.Fatalf("notifications = %d (%v), want exactly 1", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "join button not found") {
		t.Fatalf("failure reason missing from %q", msgs[0])
	}
	if strings.Contains(msgs[0], "成功") {
		t.Fatalf("unexpected success wording in %q", msgs[0])
	}
}

func TestAttemptStepReasons(t *testing.T) {
	t.Parallel()
	tests := []struct {
		failStep string
		reason   string
	}{
		{failStep: "open", reason: "cannot open resource"},
		{failStep: "browser", reason: "join-control not found"},
		{failStep: "name", reason: "name field not found"},
		{failStep: "audio", reason: "audio toggle not found"},
		{failStep: "join", reason: "join button not found"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.failStep, func(t *testing.T) {
			t.Parallel()
			n := &recordingNotifier{}
			factory := func(ctx context.Context) (Driver, error) {
				return &fakeDriver{failStep: tt.failStep}, nil
			}
			cfg := fastConfig()
			cfg.RetryLimit = 1
			r := NewRunner(cfg, factory, emptyStore(t), n, nil, logx.Nop())

			err := r.Attempt(context.Background(), "https://teams.microsoft.com/l/xyz")
			if err == nil {
				t.Fatal("expected failure")
			}
			var se *stepError
			if !errors.As(err, &se) || se.reason != tt.reason {
				t.Fatalf("err = %v, want reason %q", err, tt.reason)
			}
			msgs := n.all()
			if len(msgs) != 1 || !strings.Contains(msgs[0], tt.reason) {
				t.Fatalf("notifications = %v, want one containing %q", msgs, tt.reason)
			}
		})
	}
}

func TestAttemptAdmissionSuccessLeavesSessionOpen(t *testing.T) {
	t.Parallel()
	n := &recordingNotifier{}
	closed := 0
	factory := func(ctx context.Context) (Driver, error) {
		return &fakeDriver{url: "https://teams.microsoft.com/x/meetingStage/y", closed: &closed}, nil
	}
	r := NewRunner(fastConfig(), factory, emptyStore(t), n, nil, logx.Nop())

	if err := r.Attempt(context.Background(), "https://teams.microsoft.com/l/xyz"); err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if closed != 0 {
		t.Fatalf("session closed %d times; admitted sessions must stay open", closed)
	}
	msgs := n.all()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "成功") {
		t.Fatalf("notifications = %v, want one success message", msgs)
	}
}

func TestAttemptAdmissionTimeout(t *testing.T) {
	t.Parallel()
	n := &recordingNotifier{}
	closed := 0
	factory := func(ctx context.Context) (Driver, error) {
		return &fakeDriver{url: "https://teams.microsoft.com/prejoin", closed: &closed}, nil
	}
	cfg := fastConfig()
	cfg.RetryLimit = 1
	r := NewRunner(cfg, factory, emptyStore(t), n, nil, logx.Nop())

	err := r.Attempt(context.Background(), "https://teams.microsoft.com/l/xyz")
	if err == nil {
		t.Fatal("expected admission timeout")
	}
	var se *stepError
	if !errors.As(err, &se) || se.reason != "host did not admit within timeout" {
		t.Fatalf("err = %v, want admission timeout reason", err)
	}
	if closed != 1 {
		t.Fatalf("session closed %d times, want 1", closed)
	}
}

func TestAttemptBusyGuard(t *testing.T) {
	t.Parallel()
	n := &recordingNotifier{}
	started := make(chan struct{})
	release := make(chan struct{})
	factory := func(ctx context.Context) (Driver, error) {
		close(started)
		<-release
		return &fakeDriver{url: "https://teams.microsoft.com/x/meetingStage/y"}, nil
	}
	r := NewRunner(fastConfig(), factory, emptyStore(t), n, nil, logx.Nop())

	done := make(chan error, 1)
	go func() { done <- r.Attempt(context.Background(), "https://teams.microsoft.com/l/a") }()
	<-started

	if err := r.Attempt(context.Background(), "https://teams.microsoft.com/l/b"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second attempt err = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first attempt: %v", err)
	}
}

func TestJoinNextWarnsWithoutFutureEntry(t *testing.T) {
	t.Parallel()
	n := &recordingNotifier{}
	factory := func(ctx context.Context) (Driver, error) {
		t.Fatal("actuator must not be acquired")
		return nil, nil
	}
	r := NewRunner(fastConfig(), factory, emptyStore(t), n, nil, logx.Nop())

	if err := r.JoinNext(context.Background()); !errors.Is(err, schedule.ErrNoFutureEntry) {
		t.Fatalf("err = %v, want ErrNoFutureEntry", err)
	}
	if msgs := n.all(); len(msgs) != 1 {
		t.Fatalf("notifications = %v, want exactly 1 warning", msgs)
	}
}

func TestJoinNextWarnsOnMissingURL(t *testing.T) {
	t.Parallel()
	store, err := schedule.NewStore([]schedule.Entry{{Date: "2025-11-20", Time: "17:25"}}, time.UTC)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	n := &recordingNotifier{}
	factory := func(ctx context.Context) (Driver, error) {
		t.Fatal("actuator must not be acquired")
		return nil, nil
	}
	r := NewRunner(fastConfig(), factory, store, n, nil, logx.Nop())
	r.now = func() time.Time { return time.Date(2025, 11, 19, 0, 0, 0, 0, time.UTC) }

	if err := r.JoinNext(context.Background()); err == nil {
		t.Fatal("expected error for missing url")
	}
	msgs := n.all()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "2025-11-20") {
		t.Fatalf("notifications = %v, want one warning naming the entry", msgs)
	}
}
