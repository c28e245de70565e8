package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ansa1019/tool/internal/schedule"
)

// Config is the bot's startup configuration. Schedule entries are loaded
// once here and live in memory afterwards; everything else may be hot-
// reloaded through the Manager.
type Config struct {
	Line      LineConfig       `json:"line"`
	Logging   LoggingConfig    `json:"logging"`
	Gateway   GatewayConfig    `json:"gateway"`
	Join      JoinConfig       `json:"join"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	Notifier  NotifierConfig   `json:"notifier"`
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Schedules []schedule.Entry `json:"schedules"`
}

type LineConfig struct {
	Token string `json:"token"`
	// ChannelSecret enables webhook signature verification when set.
	ChannelSecret string `json:"channel_secret,omitempty"`
	UserID        string `json:"user_id"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type GatewayConfig struct {
	// Addr to bind the webhook server on, e.g. "127.0.0.1:5000".
	// Public exposure (ngrok, reverse proxy) sits in front of this.
	Addr string `json:"addr"`
}

// JoinConfig controls the join actuator.
// All durations are Go duration strings (e.g. "5s", "5m").
type JoinConfig struct {
	GuestName      string `json:"guest_name"`
	RetryLimit     int    `json:"retry_limit,omitempty"`
	WaitBeforeJoin string `json:"wait_before_join,omitempty"`
	MaxWaitHost    string `json:"max_wait_host,omitempty"`
	AdmitPoll      string `json:"admit_poll,omitempty"`
}

type SchedulerConfig struct {
	// PollInterval is a Go duration string; default "20s".
	PollInterval string `json:"poll_interval,omitempty"`
	// Timezone is an IANA TZ name, e.g. "Asia/Taipei"; default local.
	Timezone string `json:"timezone,omitempty"`
}

type NotifierConfig struct {
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional attempt-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./joinbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// Validate checks everything that would otherwise only fail at runtime.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Line.Token) == "" {
		return errors.New("line.token is required")
	}
	if strings.TrimSpace(c.Line.UserID) == "" {
		return errors.New("line.user_id is required")
	}
	if strings.TrimSpace(c.Join.GuestName) == "" {
		return errors.New("join.guest_name is required")
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	for _, field := range []struct {
		path string
		raw  string
	}{
		{"join.wait_before_join", c.Join.WaitBeforeJoin},
		{"join.max_wait_host", c.Join.MaxWaitHost},
		{"join.admit_poll", c.Join.AdmitPoll},
		{"scheduler.poll_interval", c.Scheduler.PollInterval},
	} {
		if _, err := ParseDurationField(field.path, field.raw); err != nil {
			return err
		}
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	seen := map[string]struct{}{}
	for i, e := range c.Schedules {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("schedules[%d]: %w", i, err)
		}
		if _, dup := seen[e.Date]; dup {
			return fmt.Errorf("schedules[%d]: duplicate date %s", i, e.Date)
		}
		seen[e.Date] = struct{}{}
	}
	return nil
}

// Location resolves the scheduler timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
