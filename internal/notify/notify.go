// Package notify implements the outbound notification pipeline: a bounded
// queue drained by one worker through a rate limiter. Sends are
// fire-and-forget; transport errors are logged and swallowed so no caller
// ever blocks or fails on a LINE outage.
package notify

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ansa1019/tool/internal/metrics"
	logx "github.com/ansa1019/tool/pkg/logx"
)

// Notifier is the narrow interface the rest of the bot depends on.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Pusher is the transport behind the service (the LINE push client).
type Pusher interface {
	PushText(ctx context.Context, text string) error
}

type Config struct {
	QueueSize  int
	RatePerSec int
}

type Service struct {
	pusher  Pusher
	log     logx.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	queue     chan string
	accepting bool

	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, pusher Pusher, log logx.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		pusher:  pusher,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		queue:   make(chan string, cfg.QueueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.runCancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.accepting = true
	s.mu.Unlock()

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in notify worker", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		s.workerLoop(runCtx)
	}()
}

// Stop blocks new messages, then drains the queue best-effort until the
// context deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.accepting = false
	q := s.queue
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	done := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		tick := time.NewTicker(50 * time.Millisecond)
		defer tick.Stop()
		for {
			s.mu.Lock()
			n := len(q)
			s.mu.Unlock()
			if n == 0 {
				return
			}
			select {
			case <-done:
				return
			case <-tick.C:
			}
		}
	}()
	select {
	case <-ctx.Done():
	case <-drained:
	}
	close(done)
	cancel()
	s.workerWG.Wait()
}

// Notify enqueues one text message. It never blocks: when the queue is full
// the message is dropped with a warning, matching the "never stall a loop
// on the messaging channel" contract.
func (s *Service) Notify(ctx context.Context, text string) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return
		default:
		}
	}

	s.mu.Lock()
	ok := s.accepting
	q := s.queue
	s.mu.Unlock()
	if !ok {
		metrics.Notifications.WithLabelValues("dropped").Inc()
		return
	}

	select {
	case q <- text:
	default:
		metrics.Notifications.WithLabelValues("dropped").Inc()
		s.log.Warn("notify queue full, dropping message", logx.Int("len", len(text)))
	}
}

func (s *Service) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-s.queue:
			s.sendOne(ctx, text)
		}
	}
}

func (s *Service) sendOne(ctx context.Context, text string) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	if err := s.pusher.PushText(ctx, text); err != nil {
		// Logged only, never retried and never surfaced to callers.
		metrics.Notifications.WithLabelValues("error").Inc()
		s.log.Warn("notification send failed", logx.Err(err))
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
	s.log.Debug("notification sent", logx.Int("len", len(text)))
}
