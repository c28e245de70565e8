package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	logx "github.com/ansa1019/tool/pkg/logx"
)

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))
	s.Go0("boomer", func(ctx context.Context) {
		panic("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Err(); err == nil || !strings.Contains(err.Error(), "boomer") {
		t.Fatalf("Err = %v, want panic error naming the goroutine", err)
	}
}

func TestGoKeepsFirstError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	first := errors.New("first")
	s.Go("a", func(ctx context.Context) error { return first })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Stop(ctx)

	s.Go("b", func(ctx context.Context) error { return errors.New("second") })
	time.Sleep(20 * time.Millisecond)
	if err := s.Err(); !errors.Is(err, first) {
		t.Fatalf("Err = %v, want wrapped first error", err)
	}
}

func TestStopCancelsContext(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	released := make(chan struct{})
	s.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		close(released)
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-released:
	default:
		t.Fatal("goroutine did not observe cancellation")
	}
}

func TestStopHonorsDeadline(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	block := make(chan struct{})
	defer close(block)
	s.Go0("stubborn", func(ctx context.Context) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop = %v, want deadline exceeded", err)
	}
	if !strings.Contains(err.Error(), "1 goroutine(s) still running") {
		t.Fatalf("Stop error %q does not report the stuck goroutine", err)
	}
}
