// Package app wires the bot together: config, logging, LINE transport,
// schedule store, join runner, scheduler loop and the webhook gateway.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ansa1019/tool/internal/command"
	"github.com/ansa1019/tool/internal/config"
	"github.com/ansa1019/tool/internal/gateway"
	"github.com/ansa1019/tool/internal/join"
	"github.com/ansa1019/tool/internal/notify"
	"github.com/ansa1019/tool/internal/runtime/supervisor"
	"github.com/ansa1019/tool/internal/schedule"
	"github.com/ansa1019/tool/internal/scheduler"
	"github.com/ansa1019/tool/internal/storage"
	"github.com/ansa1019/tool/internal/transport/line"
	logx "github.com/ansa1019/tool/pkg/logx"
)

const startupMessage = "✅ 系統啟動完成，排程監控中..."

type App struct {
	cfgm   *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	notifySvc *notify.Service
	history   storage.Store
	store     *schedule.Store
	runner    *join.Runner

	sup    *supervisor.Supervisor
	router *command.Router
	sched  *scheduler.Service
	gw     *gateway.Server

	cfgCh chan *config.Config
}

// New loads the configuration and constructs every subsystem. Nothing is
// running yet until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, root := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log := root.With(logx.String("app", "joinbot"))
	cfgm.SetLogger(log.With(logx.String("component", "config")))

	a := &App{cfgm: cfgm, logSvc: logSvc, log: log}

	client, err := line.NewClient(line.ClientConfig{
		Token:  cfg.Line.Token,
		UserID: cfg.Line.UserID,
	}, log.With(logx.String("component", "line")))
	if err != nil {
		a.closePartial()
		return nil, err
	}

	a.notifySvc = notify.New(notify.Config{
		QueueSize:  cfg.Notifier.QueueSize,
		RatePerSec: cfg.Notifier.RatePerSec,
	}, client, log.With(logx.String("component", "notify")))

	a.history, err = openHistory(cfg.Storage, log)
	if err != nil {
		a.closePartial()
		return nil, err
	}

	loc := cfg.Location()
	a.store, err = schedule.NewStore(cfg.Schedules, loc)
	if err != nil {
		a.closePartial()
		return nil, fmt.Errorf("schedule store: %w", err)
	}

	joinCfg, err := joinConfig(cfg.Join)
	if err != nil {
		a.closePartial()
		return nil, err
	}
	a.runner = join.NewRunner(joinCfg,
		join.NewChromeFactory(log.With(logx.String("component", "chrome"))),
		a.store, a.notifySvc, a.history,
		log.With(logx.String("component", "join")))

	return a, nil
}

// Start brings every service up and sends the startup notification.
// It returns once everything is running; background work lives under
// the supervisor.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("component", "supervisor"))))

	a.notifySvc.Start(ctx)

	a.router = command.NewRouter(a.store, a.notifySvc, a.runner, a.sup,
		a.log.With(logx.String("component", "command")))

	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 20*time.Second)
	if err != nil {
		return err
	}
	a.sched = scheduler.New(scheduler.Config{PollInterval: poll},
		a.store, a.runner, a.notifySvc, a.sup,
		a.log.With(logx.String("component", "scheduler")))
	if err := a.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	a.gw = gateway.New(gateway.Config{
		Addr:          cfg.Gateway.Addr,
		ChannelSecret: cfg.Line.ChannelSecret,
	}, a.router, a.log.With(logx.String("component", "gateway")))
	a.sup.Go("gateway", a.gw.Start)

	a.sup.Go("config-watch", a.cfgm.Watch)
	a.cfgCh = a.cfgm.Subscribe(1)
	a.sup.Go("config-apply", a.applyLoop)

	logRecentHistory(ctx, a.history, a.log)

	a.notifySvc.Notify(ctx, startupMessage)
	a.log.Info("started",
		logx.Int("schedules", a.store.Len()),
		logx.String("gateway", cfg.Gateway.Addr))
	return nil
}

// logRecentHistory surfaces the tail of the attempt audit trail on startup
// so operators can see how the bot fared before the restart.
func logRecentHistory(ctx context.Context, history storage.Store, log logx.Logger) {
	if history == nil {
		return
	}
	recent, err := history.RecentAttempts(ctx, 5)
	if err != nil {
		log.Warn("read attempt history", logx.Err(err))
		return
	}
	if len(recent) == 0 {
		return
	}
	last := recent[0]
	log.Info("attempt history",
		logx.Int("recent", len(recent)),
		logx.String("last_outcome", last.Outcome),
		logx.Time("last_started", last.Started))
}

// Stop shuts everything down in reverse start order.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	if a.sched != nil {
		a.sched.Stop(ctx)
	}
	if a.gw != nil {
		if err := a.gw.Stop(ctx); err != nil {
			a.log.Warn("gateway shutdown", logx.Err(err))
		}
	}
	if a.sup != nil {
		if a.cfgCh != nil {
			a.cfgm.Unsubscribe(a.cfgCh)
		}
		if err := a.sup.Stop(ctx); err != nil {
			a.log.Warn("supervisor stop", logx.Err(err))
		}
	}
	if a.notifySvc != nil {
		a.notifySvc.Stop(ctx)
	}
	a.closePartial()
	a.log.Info("stopped")
	return nil
}

// applyLoop hot-applies the reloadable slice of the config: log level and
// outputs. Schedule entries, transport credentials and service wiring are
// start-time only.
func (a *App) applyLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-a.cfgCh:
			if !ok {
				return nil
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

func (a *App) closePartial() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("close history store", logx.Err(err))
		}
		a.history = nil
	}
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
}

func openHistory(sc *config.StorageConfig, log logx.Logger) (storage.Store, error) {
	if sc == nil {
		return nil, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 0)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("component", "storage")))
}

func joinConfig(jc config.JoinConfig) (join.Config, error) {
	wait, err := config.ParseDurationOrDefault("join.wait_before_join", jc.WaitBeforeJoin, 0)
	if err != nil {
		return join.Config{}, err
	}
	maxWait, err := config.ParseDurationOrDefault("join.max_wait_host", jc.MaxWaitHost, 0)
	if err != nil {
		return join.Config{}, err
	}
	admit, err := config.ParseDurationOrDefault("join.admit_poll", jc.AdmitPoll, 0)
	if err != nil {
		return join.Config{}, err
	}
	return join.Config{
		GuestName:      jc.GuestName,
		RetryLimit:     jc.RetryLimit,
		WaitBeforeJoin: wait,
		MaxWaitHost:    maxWait,
		AdmitPoll:      admit,
	}, nil
}
