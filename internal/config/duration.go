package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration fields in the config are optional Go duration strings ("5s",
// "2h"). Empty means "use the component default"; negatives are mistakes.

// ParseDurationField parses one such field, reporting errors under its
// config path (e.g. "join.admit_poll"). An empty field parses to zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0, got %s", path, d)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def for an empty or zero field.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
