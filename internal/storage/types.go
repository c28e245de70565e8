package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled. Schedule state itself
// is never persisted; this store only keeps operational history.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// AttemptRecord is one finished join attempt sequence.
// Keep it compact and schema-stable.
type AttemptRecord struct {
	ID       string
	URL      string
	Started  time.Time
	Duration time.Duration
	Attempts int
	Outcome  string
	Error    string
}
