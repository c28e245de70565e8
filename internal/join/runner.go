package join

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ansa1019/tool/internal/metrics"
	"github.com/ansa1019/tool/internal/notify"
	"github.com/ansa1019/tool/internal/schedule"
	"github.com/ansa1019/tool/internal/storage"
	logx "github.com/ansa1019/tool/pkg/logx"
)

// ErrBusy is returned when an attempt sequence is already in flight.
// Concurrent sequences would double-join the meeting, so the runner admits
// one at a time and callers report the overlap instead.
var ErrBusy = errors.New("join attempt already in flight")

// State names one stage of the handshake, for logs and failure reasons.
type State string

const (
	StateIdle                State = "idle"
	StateOpening             State = "opening"
	StateBrowserJoinPending  State = "browser_join_pending"
	StateNamePending         State = "name_pending"
	StateAudioPending        State = "audio_pending"
	StateFinalJoinPending    State = "final_join_pending"
	StateWaitingForAdmission State = "waiting_for_admission"
	StateAdmitted            State = "admitted"
	StateFailed              State = "failed"
)

type Config struct {
	GuestName      string
	RetryLimit     int           // whole-attempt restarts per sequence
	WaitBeforeJoin time.Duration // settle delay after switching to the browser client
	MaxWaitHost    time.Duration // admission wait ceiling
	AdmitPoll      time.Duration // admission poll interval
}

func (c Config) withDefaults() Config {
	if c.RetryLimit <= 0 {
		c.RetryLimit = 2
	}
	if c.WaitBeforeJoin <= 0 {
		c.WaitBeforeJoin = 5 * time.Second
	}
	if c.MaxWaitHost <= 0 {
		c.MaxWaitHost = 5 * time.Minute
	}
	if c.AdmitPoll <= 0 {
		c.AdmitPoll = 5 * time.Second
	}
	return c
}

// stepError marks which stage of an attempt failed and with what
// operator-facing reason.
type stepError struct {
	state  State
	reason string
	err    error
}

func (e *stepError) Error() string {
	if e.err == nil {
		return e.reason
	}
	return fmt.Sprintf("%s: %v", e.reason, e.err)
}

func (e *stepError) Unwrap() error { return e.err }

// Runner executes join attempt sequences. One sequence acquires a fresh
// automation session per attempt, restarts the whole handshake on any step
// failure up to the retry budget, and reports the terminal outcome through
// the notifier exactly once.
type Runner struct {
	cfg      Config
	factory  Factory
	store    *schedule.Store
	notifier notify.Notifier
	history  storage.Store // may be nil
	log      logx.Logger
	now      func() time.Time

	busy chan struct{} // 1-slot token; held for the life of a sequence
}

func NewRunner(cfg Config, factory Factory, store *schedule.Store, notifier notify.Notifier, history storage.Store, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runner{
		cfg:      cfg.withDefaults(),
		factory:  factory,
		store:    store,
		notifier: notifier,
		history:  history,
		log:      log,
		now:      time.Now,
		busy:     make(chan struct{}, 1),
	}
	return r
}

// JoinNext resolves the nearest future schedule entry and attempts it.
// Missing entries and missing URLs are reported as warnings, without ever
// acquiring an automation session.
func (r *Runner) JoinNext(ctx context.Context) error {
	entry, ok := r.store.NearestFuture(r.now())
	if !ok {
		r.notifier.Notify(ctx, "⚠ 找不到未來的排程，無法自動加入")
		return schedule.ErrNoFutureEntry
	}
	if entry.URL == "" {
		r.notifier.Notify(ctx, fmt.Sprintf("⚠ 下一場 %s %s 尚未設定 URL", entry.Date, entry.Time))
		return fmt.Errorf("entry %s has no url", entry.Date)
	}
	return r.Attempt(ctx, entry.URL)
}

// Attempt runs one full sequence against url. It returns ErrBusy when a
// sequence is already running; the caller decides how to report that.
func (r *Runner) Attempt(ctx context.Context, url string) error {
	select {
	case r.busy <- struct{}{}:
	default:
		metrics.JoinAttempts.WithLabelValues("busy").Inc()
		return ErrBusy
	}
	defer func() { <-r.busy }()

	id := uuid.NewString()
	started := r.now()
	log := r.log.With(logx.String("attempt_id", id), logx.String("url", url))

	var lastErr *stepError
	attempts := 0
	for attempt := 1; attempt <= r.cfg.RetryLimit; attempt++ {
		attempts = attempt
		log.Info("join attempt starting", logx.Int("attempt", attempt), logx.Int("budget", r.cfg.RetryLimit))

		err := r.runOnce(ctx, log, url)
		if err == nil {
			took := r.now().Sub(started)
			log.Info("joined meeting", logx.Int("attempt", attempt), logx.Duration("took", took))
			r.notifier.Notify(ctx, "✅ 已成功進入會議！")
			metrics.JoinAttempts.WithLabelValues("admitted").Inc()
			metrics.JoinAttemptSeconds.Observe(took.Seconds())
			r.record(id, url, started, attempts, string(StateAdmitted), "")
			return nil
		}

		var se *stepError
		if !errors.As(err, &se) {
			se = &stepError{state: StateFailed, reason: "automation error", err: err}
		}
		lastErr = se
		log.Warn("join attempt failed", logx.Int("attempt", attempt), logx.String("state", string(se.state)), logx.Err(err))

		if ctx.Err() != nil {
			break
		}
	}

	took := r.now().Sub(started)
	r.notifier.Notify(ctx, fmt.Sprintf("❌ 自動加入失敗：%s\n⚠ 請手動加入會議", lastErr.reason))
	metrics.JoinAttempts.WithLabelValues("failed").Inc()
	metrics.JoinAttemptSeconds.Observe(took.Seconds())
	r.record(id, url, started, attempts, string(StateFailed), lastErr.Error())
	return lastErr
}

// runOnce drives a single attempt. The session is released on every failure
// path; on admission it is deliberately left open so the operator's browser
// stays in the meeting.
func (r *Runner) runOnce(ctx context.Context, log logx.Logger, url string) error {
	d, err := r.factory(ctx)
	if err != nil {
		return &stepError{state: StateOpening, reason: "automation session failed to start", err: err}
	}

	admitted := false
	defer func() {
		if !admitted {
			_ = d.Close()
		}
	}()

	steps := []struct {
		state  State
		reason string
		run    func(context.Context) error
	}{
		{StateOpening, "cannot open resource", func(ctx context.Context) error { return d.Open(ctx, url) }},
		{StateBrowserJoinPending, "join-control not found", func(ctx context.Context) error {
			if err := d.ClickJoinFromBrowser(ctx); err != nil {
				return err
			}
			return sleepCtx(ctx, r.cfg.WaitBeforeJoin)
		}},
		{StateNamePending, "name field not found", func(ctx context.Context) error { return d.FillDisplayName(ctx, r.cfg.GuestName) }},
		{StateAudioPending, "audio toggle not found", func(ctx context.Context) error { return d.SelectNoAudio(ctx) }},
		{StateFinalJoinPending, "join button not found", func(ctx context.Context) error { return d.ClickJoinNow(ctx) }},
	}
	for _, st := range steps {
		log.Debug("join step", logx.String("state", string(st.state)))
		if err := st.run(ctx); err != nil {
			return &stepError{state: st.state, reason: st.reason, err: err}
		}
	}

	log.Debug("join step", logx.String("state", string(StateWaitingForAdmission)))
	if err := r.waitAdmission(ctx, d); err != nil {
		return err
	}
	admitted = true
	return nil
}

// waitAdmission polls the session URL until the meeting stage shows up or
// the ceiling passes.
func (r *Runner) waitAdmission(ctx context.Context, d Driver) error {
	deadline := r.now().Add(r.cfg.MaxWaitHost)
	ticker := time.NewTicker(r.cfg.AdmitPoll)
	defer ticker.Stop()

	for {
		loc, err := d.CurrentURL(ctx)
		if err == nil && strings.Contains(loc, admittedMarker) {
			return nil
		}
		if !r.now().Before(deadline) {
			return &stepError{state: StateWaitingForAdmission, reason: "host did not admit within timeout"}
		}
		select {
		case <-ctx.Done():
			return &stepError{state: StateWaitingForAdmission, reason: "host did not admit within timeout", err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

func (r *Runner) record(id, url string, started time.Time, attempts int, outcome, errMsg string) {
	if r.history == nil {
		return
	}
	rec := storage.AttemptRecord{
		ID:       id,
		URL:      url,
		Started:  started,
		Duration: r.now().Sub(started),
		Attempts: attempts,
		Outcome:  outcome,
		Error:    errMsg,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.history.AppendAttempt(ctx, rec); err != nil {
		r.log.Warn("attempt history write failed", logx.Err(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
