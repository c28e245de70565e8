package schedule

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no entry exists for the requested date.
	ErrNotFound = errors.New("no schedule entry for date")
	// ErrNoFutureEntry is returned when every entry is already in the past.
	ErrNoFutureEntry = errors.New("no future schedule entry")
)

// Store holds the full ordered schedule for the process lifetime.
//
// It is shared between the command gateway and the scheduler loop, so every
// read and write goes through one mutex, held only for the duration of a
// single operation and never across a network or actuator call. Entries are
// mutated in place and never deleted at runtime.
type Store struct {
	mu      sync.Mutex
	entries []Entry
	loc     *time.Location
}

// NewStore validates the initial entries and builds the store.
// Entry order is preserved; it breaks (date,time) ties in NearestFuture.
func NewStore(entries []Entry, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	seen := make(map[string]struct{}, len(entries))
	cp := make([]Entry, len(entries))
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("schedules[%d]: %w", i, err)
		}
		if _, dup := seen[e.Date]; dup {
			return nil, fmt.Errorf("schedules[%d]: duplicate date %s", i, e.Date)
		}
		seen[e.Date] = struct{}{}
		cp[i] = e
	}
	return &Store{entries: cp, loc: loc}, nil
}

// Location returns the wall-clock location entries are interpreted in.
func (s *Store) Location() *time.Location { return s.loc }

// FindByDate returns the entry keyed by date (YYYY-MM-DD), if any.
func (s *Store) FindByDate(date string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Date == date {
			return e, true
		}
	}
	return Entry{}, false
}

// Today returns the entry for now's calendar date, if any.
func (s *Store) Today(now time.Time) (Entry, bool) {
	return s.FindByDate(now.In(s.loc).Format(DateLayout))
}

// NearestFuture returns the entry with the smallest (date,time) at or after
// now. Entries strictly in the past are never selected.
func (s *Store) NearestFuture(now time.Time) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best   Entry
		bestAt time.Time
		found  bool
	)
	for _, e := range s.entries {
		at := e.At(s.loc)
		if at.Before(now) {
			continue
		}
		if !found || at.Before(bestAt) {
			best, bestAt, found = e, at, true
		}
	}
	return best, found
}

// SetTime updates the trigger time of the entry for date.
// Existence is re-checked under the lock; callers must not rely on an
// earlier unlocked read.
func (s *Store) SetTime(date, hhmm string) error {
	if _, _, err := ParseHHMM(hhmm); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Date == date {
			s.entries[i].Time = hhmm
			return nil
		}
	}
	return ErrNotFound
}

// SetURL updates the meeting link of the entry for date.
func (s *Store) SetURL(date, url string) error {
	if !IsMeetingURL(url) {
		return fmt.Errorf("invalid meeting url %q", url)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Date == date {
			s.entries[i].URL = url
			return nil
		}
	}
	return ErrNotFound
}

// SetNearestFutureURL assigns url to whatever NearestFuture resolves to at
// now, atomically with the lookup.
func (s *Store) SetNearestFutureURL(now time.Time, url string) (Entry, error) {
	if !IsMeetingURL(url) {
		return Entry{}, fmt.Errorf("invalid meeting url %q", url)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	var bestAt time.Time
	for i, e := range s.entries {
		at := e.At(s.loc)
		if at.Before(now) {
			continue
		}
		if idx < 0 || at.Before(bestAt) {
			idx, bestAt = i, at
		}
	}
	if idx < 0 {
		return Entry{}, ErrNoFutureEntry
	}
	s.entries[idx].URL = url
	return s.entries[idx], nil
}

// Snapshot copies the entries for lock-free iteration by the scheduler loop.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Entry, len(s.entries))
	copy(cp, s.entries)
	return cp
}

// Len reports the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
