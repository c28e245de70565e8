package schedule

import (
	"errors"
	"testing"
	"time"
)

func mustStore(t *testing.T, entries []Entry) *Store {
	t.Helper()
	s, err := NewStore(entries, time.UTC)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestNearestFuturePicksSmallest(t *testing.T) {
	t.Parallel()
	s := mustStore(t, []Entry{
		{Date: "2025-11-25", Time: "17:25"},
		{Date: "2025-11-18", Time: "17:25"},
		{Date: "2025-11-20", Time: "17:25"},
	})
	now := time.Date(2025, 11, 19, 0, 0, 0, 0, time.UTC)

	e, ok := s.NearestFuture(now)
	if !ok {
		t.Fatal("expected a future entry")
	}
	if e.Date != "2025-11-20" {
		t.Fatalf("Date = %s, want 2025-11-20", e.Date)
	}

	// Idempotent with unchanged store and time.
	again, ok := s.NearestFuture(now)
	if !ok || again != e {
		t.Fatalf("second call = %+v, %v; want %+v", again, ok, e)
	}
}

func TestNearestFutureSkipsPast(t *testing.T) {
	t.Parallel()
	s := mustStore(t, []Entry{
		{Date: "2025-11-18", Time: "17:25"},
		{Date: "2025-11-20", Time: "17:25"},
	})
	now := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	if _, ok := s.NearestFuture(now); ok {
		t.Fatal("expected no entry when all are in the past")
	}
}

func TestNearestFutureIncludesExactNow(t *testing.T) {
	t.Parallel()
	s := mustStore(t, []Entry{{Date: "2025-11-18", Time: "17:25"}})
	now := time.Date(2025, 11, 18, 17, 25, 0, 0, time.UTC)
	e, ok := s.NearestFuture(now)
	if !ok || e.Date != "2025-11-18" {
		t.Fatalf("entry at exactly now must still count, got %+v, %v", e, ok)
	}
}

func TestSetTimeUpdatesOnlyThatEntry(t *testing.T) {
	t.Parallel()
	s := mustStore(t, []Entry{
		{Date: "2025-11-16", Time: "17:25"},
		{Date: "2025-11-18", Time: "17:25"},
	})
	if err := s.SetTime("2025-11-16", "20:00"); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	e, _ := s.FindByDate("2025-11-16")
	if e.Time != "20:00" {
		t.Fatalf("Time = %s, want 20:00", e.Time)
	}
	other, _ := s.FindByDate("2025-11-18")
	if other.Time != "17:25" {
		t.Fatalf("untouched entry changed: %+v", other)
	}
}

func TestSetTimeRejectsUnknownDateAndBadTime(t *testing.T) {
	t.Parallel()
	s := mustStore(t, []Entry{{Date: "2025-11-18", Time: "17:25"}})
	if err := s.SetTime("2025-11-19", "20:00"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.SetTime("2025-11-18", "24:00"); err == nil {
		t.Fatal("expected error for invalid time")
	}
}

func TestSetURLValidatesShape(t *testing.T) {
	t.Parallel()
	s := mustStore(t, []Entry{{Date: "2025-11-18", Time: "17:25"}})
	if err := s.SetURL("2025-11-18", "https://example.com/x"); err == nil {
		t.Fatal("expected error for non-meeting url")
	}
	if err := s.SetURL("2025-11-18", "https://teams.microsoft.com/l/xyz"); err != nil {
		t.Fatalf("SetURL: %v", err)
	}
}

func TestSetNearestFutureURLLeavesLaterEntryAlone(t *testing.T) {
	t.Parallel()
	s := mustStore(t, []Entry{
		{Date: "2025-11-20", Time: "17:25"},
		{Date: "2025-11-21", Time: "17:25"},
	})
	now := time.Date(2025, 11, 19, 12, 0, 0, 0, time.UTC)

	e, err := s.SetNearestFutureURL(now, "https://teams.microsoft.com/l/xyz")
	if err != nil {
		t.Fatalf("SetNearestFutureURL: %v", err)
	}
	if e.Date != "2025-11-20" {
		t.Fatalf("Date = %s, want 2025-11-20", e.Date)
	}
	later, _ := s.FindByDate("2025-11-21")
	if later.URL != "" {
		t.Fatalf("later entry was touched: %+v", later)
	}

	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.SetNearestFutureURL(past, "https://teams.microsoft.com/l/xyz"); !errors.Is(err, ErrNoFutureEntry) {
		t.Fatalf("err = %v, want ErrNoFutureEntry", err)
	}
}

func TestNewStoreRejectsDuplicatesAndBadEntries(t *testing.T) {
	t.Parallel()
	if _, err := NewStore([]Entry{
		{Date: "2025-11-18", Time: "17:25"},
		{Date: "2025-11-18", Time: "18:00"},
	}, time.UTC); err == nil {
		t.Fatal("expected duplicate date error")
	}
	if _, err := NewStore([]Entry{{Date: "2025-13-01", Time: "17:25"}}, time.UTC); err == nil {
		t.Fatal("expected invalid date error")
	}
	if _, err := NewStore([]Entry{{Date: "2025-11-18", Time: "17:25", URL: "http://x"}}, time.UTC); err == nil {
		t.Fatal("expected invalid url error")
	}
}

func TestResolveDay(t *testing.T) {
	t.Parallel()
	nov := time.Date(2025, 11, 5, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		day     int
		now     time.Time
		want    string
		wantErr bool
	}{
		{name: "mid month", day: 16, now: nov, want: "2025-11-16"},
		{name: "first", day: 1, now: nov, want: "2025-11-01"},
		{name: "nov has no 31st", day: 31, now: nov, wantErr: true},
		{name: "feb has no 30th", day: 30, now: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), wantErr: true},
		{name: "zero", day: 0, now: nov, wantErr: true},
		{name: "too large", day: 32, now: nov, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDay(tt.day, tt.now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveDay(%d) = %q, want error", tt.day, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveDay(%d): %v", tt.day, err)
			}
			if got != tt.want {
				t.Fatalf("ResolveDay(%d) = %q, want %q", tt.day, got, tt.want)
			}
		})
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, m, err := ParseHHMM("23:15")
	if err != nil {
		t.Fatalf("ParseHHMM error: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}
	for _, bad := range []string{"24:00", "12:60", "1200", "aa:bb", "7:5", "7:05", "07:5", "007:05"} {
		if _, _, err := ParseHHMM(bad); err == nil {
			t.Fatalf("ParseHHMM(%q): expected error", bad)
		}
	}
}

// A non-padded time must be rejected at validation, not accepted into an
// entry whose trigger minute can never match the formatted clock.
func TestValidateRejectsNonPaddedTime(t *testing.T) {
	t.Parallel()
	e := Entry{Date: "2025-11-18", Time: "7:5", URL: "https://teams.microsoft.com/l/xyz"}
	if err := e.Validate(); err == nil {
		t.Fatal("Validate accepted non-padded time 7:5")
	}
	if _, err := NewStore([]Entry{e}, time.UTC); err == nil {
		t.Fatal("NewStore accepted non-padded time 7:5")
	}
	now := time.Date(2025, 11, 18, 7, 5, 0, 0, time.UTC)
	padded := Entry{Date: "2025-11-18", Time: "07:05"}
	if err := padded.Validate(); err != nil {
		t.Fatalf("Validate(07:05): %v", err)
	}
	if got := now.Format(DateLayout + " " + TimeLayout); got != padded.Date+" "+padded.Time {
		t.Fatalf("formatted clock %q does not match stored %q", got, padded.Date+" "+padded.Time)
	}
}
