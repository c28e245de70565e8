package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ansa1019/tool/internal/join"
	"github.com/ansa1019/tool/internal/metrics"
	"github.com/ansa1019/tool/internal/notify"
	"github.com/ansa1019/tool/internal/runtime/supervisor"
	"github.com/ansa1019/tool/internal/schedule"
	logx "github.com/ansa1019/tool/pkg/logx"
)

const helpText = "❓ 可用指令：\n" +
	"・修改時間： 16 20:00\n" +
	"・修改 URL： 16 https://teams...\n" +
	"・更新下一場 URL： 直接貼上 https://teams...\n" +
	"・重試：重試 / 再試一次 / 重新加入"

// Joiner is the slice of the join runner the router needs.
type Joiner interface {
	JoinNext(ctx context.Context) error
}

// Router applies parsed commands to the schedule store, the join actuator,
// and the notifier. Every handled line results in exactly one notification
// from the router itself; a triggered join reports its own outcome later.
type Router struct {
	store    *schedule.Store
	notifier notify.Notifier
	joiner   Joiner
	sup      *supervisor.Supervisor
	log      logx.Logger
	now      func() time.Time
}

func NewRouter(store *schedule.Store, notifier notify.Notifier, joiner Joiner, sup *supervisor.Supervisor, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		store:    store,
		notifier: notifier,
		joiner:   joiner,
		sup:      sup,
		log:      log,
		now:      time.Now,
	}
}

// Handle parses and executes one chat line.
func (r *Router) Handle(ctx context.Context, text string) {
	cmd := Parse(text)
	metrics.Commands.WithLabelValues(string(cmd.Kind)).Inc()
	r.log.Info("command received", logx.String("kind", string(cmd.Kind)), logx.Int("len", len(text)))

	switch cmd.Kind {
	case KindSetTime:
		r.handleSetTime(ctx, cmd)
	case KindSetURL:
		r.handleSetURL(ctx, cmd)
	case KindSetNextURL:
		r.handleSetNextURL(ctx, cmd)
	case KindRetry:
		r.handleRetry(ctx)
	default:
		r.notifier.Notify(ctx, helpText)
	}
}

func (r *Router) handleSetTime(ctx context.Context, cmd Command) {
	date, err := schedule.ResolveDay(cmd.Day, r.now().In(r.store.Location()))
	if err != nil {
		r.notifier.Notify(ctx, fmt.Sprintf("⚠ 無效的日期：%d 號（本月沒有這一天）", cmd.Day))
		return
	}
	switch err := r.store.SetTime(date, cmd.Time); {
	case errors.Is(err, schedule.ErrNotFound):
		r.notifier.Notify(ctx, fmt.Sprintf("⚠ 找不到 %s 的排程", date))
	case err != nil:
		r.notifier.Notify(ctx, fmt.Sprintf("⚠ 無效的時間：%s", cmd.Time))
	default:
		r.log.Info("schedule time updated", logx.String("date", date), logx.String("time", cmd.Time))
		r.notifier.Notify(ctx, fmt.Sprintf("🕒 已更新排程時間：%s → %s", date, cmd.Time))
	}
}

func (r *Router) handleSetURL(ctx context.Context, cmd Command) {
	date, err := schedule.ResolveDay(cmd.Day, r.now().In(r.store.Location()))
	if err != nil {
		r.notifier.Notify(ctx, fmt.Sprintf("⚠ 無效的日期：%d 號（本月沒有這一天）", cmd.Day))
		return
	}
	switch err := r.store.SetURL(date, cmd.URL); {
	case errors.Is(err, schedule.ErrNotFound):
		r.notifier.Notify(ctx, fmt.Sprintf("⚠ 找不到 %s 的排程", date))
	case err != nil:
		r.notifier.Notify(ctx, "⚠ 會議連結格式不正確")
	default:
		r.log.Info("schedule url updated", logx.String("date", date))
		r.notifier.Notify(ctx, fmt.Sprintf("🔗 已更新 %s 的會議連結", date))
	}
}

func (r *Router) handleSetNextURL(ctx context.Context, cmd Command) {
	entry, err := r.store.SetNearestFutureURL(r.now(), cmd.URL)
	if errors.Is(err, schedule.ErrNoFutureEntry) {
		r.notifier.Notify(ctx, "⚠ 找不到未來的排程，無法更新 URL")
		return
	}
	if err != nil {
		r.notifier.Notify(ctx, "⚠ 會議連結格式不正確")
		return
	}
	r.log.Info("next schedule url updated", logx.String("date", entry.Date), logx.String("time", entry.Time))
	r.notifier.Notify(ctx, fmt.Sprintf("🔗 已更新下一場排程 URL：%s %s", entry.Date, entry.Time))
}

// handleRetry acknowledges, then runs the join on its own goroutine so a
// slow attempt never blocks the webhook path.
func (r *Router) handleRetry(ctx context.Context) {
	r.notifier.Notify(ctx, "🔄 正在重新嘗試加入下一場排程會議...")
	r.sup.Go("manual-retry", func(ctx context.Context) error {
		err := r.joiner.JoinNext(ctx)
		if errors.Is(err, join.ErrBusy) {
			r.notifier.Notify(ctx, "⚠ 已有加入嘗試進行中，略過此次重試")
			return nil
		}
		// Other outcomes already notified by the runner.
		return nil
	})
}
