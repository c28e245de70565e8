package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ansa1019/tool/internal/storage"
	logx "github.com/ansa1019/tool/pkg/logx"
)

type fakeHistory struct {
	limit int
	calls int
	recs  []storage.AttemptRecord
	err   error
}

func (f *fakeHistory) AppendAttempt(ctx context.Context, rec storage.AttemptRecord) error {
	return nil
}

func (f *fakeHistory) RecentAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
	f.calls++
	f.limit = limit
	return f.recs, f.err
}

func (f *fakeHistory) Close() error { return nil }

func TestLogRecentHistoryReadsTail(t *testing.T) {
	t.Parallel()
	h := &fakeHistory{recs: []storage.AttemptRecord{
		{ID: "a", Outcome: "admitted", Started: time.Now()},
		{ID: "b", Outcome: "failed", Started: time.Now().Add(-time.Hour)},
	}}
	logRecentHistory(context.Background(), h, logx.Nop())
	if h.calls != 1 {
		t.Fatalf("RecentAttempts calls = %d, want 1", h.calls)
	}
	if h.limit <= 0 {
		t.Fatalf("RecentAttempts limit = %d, want > 0", h.limit)
	}
}

func TestLogRecentHistoryTolerantOfFailures(t *testing.T) {
	t.Parallel()
	// Disabled history must be a no-op, and a read error must not escape.
	logRecentHistory(context.Background(), nil, logx.Nop())
	logRecentHistory(context.Background(), &fakeHistory{err: errors.New("db locked")}, logx.Nop())
}
