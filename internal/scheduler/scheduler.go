// Package scheduler runs the polling loop that fires scheduled joins and
// the variable-cadence "missing URL" reminder sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ansa1019/tool/internal/join"
	"github.com/ansa1019/tool/internal/metrics"
	"github.com/ansa1019/tool/internal/notify"
	"github.com/ansa1019/tool/internal/runtime/supervisor"
	"github.com/ansa1019/tool/internal/schedule"
	logx "github.com/ansa1019/tool/pkg/logx"
)

const triggerLayout = schedule.DateLayout + " " + schedule.TimeLayout

type Config struct {
	PollInterval time.Duration // default 20s
}

// Triggerer is the slice of the join runner the scheduler needs.
type Triggerer interface {
	Attempt(ctx context.Context, url string) error
}

// Service compares wall-clock time against the schedule store once per poll
// and launches join attempts on their own goroutines. A fired (date,minute)
// is remembered until day rollover so a sub-minute poll interval cannot
// double-fire, and a stalled poll landing late in the same minute still
// fires at most once.
type Service struct {
	cfg      Config
	store    *schedule.Store
	runner   Triggerer
	notifier notify.Notifier
	sup      *supervisor.Supervisor
	log      logx.Logger
	now      func() time.Time

	c *cron.Cron

	mu        sync.Mutex
	fired     map[string]struct{}
	firedDate string

	remindLastAt time.Time
	remindDate   string
}

func New(cfg Config, store *schedule.Store, runner Triggerer, notifier notify.Notifier, sup *supervisor.Supervisor, log logx.Logger) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		notifier: notifier,
		sup:      sup,
		log:      log,
		now:      time.Now,
		fired:    map[string]struct{}{},
	}
}

func (s *Service) Start(ctx context.Context) error {
	if s.c != nil {
		return errors.New("scheduler already started")
	}
	s.c = cron.New(cron.WithLocation(s.store.Location()))
	spec := fmt.Sprintf("@every %s", s.cfg.PollInterval)
	if _, err := s.c.AddFunc(spec, func() { s.cycle(ctx) }); err != nil {
		return fmt.Errorf("scheduler: add poll entry: %w", err)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Duration("poll", s.cfg.PollInterval), logx.Int("entries", s.store.Len()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if s.c == nil {
		return
	}
	stopCtx := s.c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.c = nil
	s.log.Info("scheduler stopped")
}

// cycle runs one poll: day-rollover reset, reminder sweep, trigger matching.
func (s *Service) cycle(ctx context.Context) {
	now := s.now().In(s.store.Location())
	s.rolloverLocked(now)
	s.sweep(ctx, now)
	s.trigger(ctx, now)
}

func (s *Service) rolloverLocked(now time.Time) {
	today := now.Format(schedule.DateLayout)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firedDate != today {
		s.firedDate = today
		s.fired = map[string]struct{}{}
	}
	if s.remindDate != today {
		s.remindDate = today
		s.remindLastAt = time.Time{}
	}
}

// reminderInterval returns the sweep cadence for an hour of day:
// every 2h during 06:00-16:59, every 5m during 17:00-23:59, disabled
// 00:00-05:59.
func reminderInterval(hour int) time.Duration {
	switch {
	case hour >= 6 && hour < 17:
		return 2 * time.Hour
	case hour >= 17:
		return 5 * time.Minute
	default:
		return 0
	}
}

func (s *Service) sweep(ctx context.Context, now time.Time) {
	interval := reminderInterval(now.Hour())
	if interval == 0 {
		return
	}

	s.mu.Lock()
	due := s.remindLastAt.IsZero() || now.Sub(s.remindLastAt) >= interval
	if due {
		s.remindLastAt = now
	}
	s.mu.Unlock()
	if !due {
		return
	}

	entry, ok := s.store.Today(now)
	if !ok || entry.URL != "" {
		return
	}
	s.log.Warn("today's meeting url not set", logx.String("date", entry.Date), logx.String("time", entry.Time))
	s.notifier.Notify(ctx, "⚠ 今天的 URL 尚未設定！")
}

func (s *Service) trigger(ctx context.Context, now time.Time) {
	nowMinute := now.Format(triggerLayout)
	for _, entry := range s.store.Snapshot() {
		runAt := entry.Date + " " + entry.Time
		if runAt != nowMinute {
			continue
		}

		s.mu.Lock()
		_, already := s.fired[runAt]
		if !already {
			s.fired[runAt] = struct{}{}
		}
		s.mu.Unlock()
		if already {
			continue
		}

		if entry.URL == "" {
			metrics.ScheduleTriggers.WithLabelValues("missing_url").Inc()
			s.log.Warn("trigger skipped, url not set", logx.String("run_at", runAt))
			s.notifier.Notify(ctx, fmt.Sprintf("⚠️ 排程時間 %s 的 URL 尚未設定，無法自動加入會議", runAt))
			continue
		}

		metrics.ScheduleTriggers.WithLabelValues("started").Inc()
		s.log.Info("trigger fired", logx.String("run_at", runAt))
		s.notifier.Notify(ctx, fmt.Sprintf("⏰ 觸發排程：%s，開始自動加入會議", runAt))

		url := entry.URL
		s.sup.Go("scheduled-join", func(ctx context.Context) error {
			err := s.runner.Attempt(ctx, url)
			if errors.Is(err, join.ErrBusy) {
				s.notifier.Notify(ctx, "⚠ 已有加入嘗試進行中，略過此次排程觸發")
				return nil
			}
			// Other outcomes already notified by the runner.
			return nil
		})
	}
}
