package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the calendar-date key format of an entry.
	DateLayout = "2006-01-02"
	// TimeLayout is the wall-clock trigger format of an entry.
	TimeLayout = "15:04"
)

// MeetingURLPrefix is the only resource-locator shape the bot will drive.
const MeetingURLPrefix = "https://teams.microsoft.com/"

// Entry is one scheduled meeting. The date is the identity key: the store
// holds at most one entry per calendar date. URL may be empty until the
// operator supplies it over chat.
type Entry struct {
	Date string `json:"date" yaml:"date"`
	Time string `json:"time" yaml:"time"`
	URL  string `json:"url" yaml:"url"`
}

// At combines the entry's date and time in loc. It panics on entries that
// did not pass Validate, so validate at load time.
func (e Entry) At(loc *time.Location) time.Time {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+e.Time, loc)
	if err != nil {
		panic(fmt.Sprintf("schedule: invalid entry %q %q: %v", e.Date, e.Time, err))
	}
	return t
}

// Validate checks the entry invariants: a real calendar date, a valid
// 24-hour HH:MM, and (when set) a URL matching the meeting-link shape.
func (e Entry) Validate() error {
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", e.Date)
	}
	if _, _, err := ParseHHMM(e.Time); err != nil {
		return err
	}
	if e.URL != "" && !IsMeetingURL(e.URL) {
		return fmt.Errorf("invalid meeting url %q: want %s prefix", e.URL, MeetingURLPrefix)
	}
	return nil
}

// IsMeetingURL reports whether s looks like a joinable meeting link.
func IsMeetingURL(s string) bool {
	return strings.HasPrefix(s, MeetingURLPrefix)
}

// ParseHHMM parses a 24-hour "HH:MM" clock value. Both fields must be
// zero-padded to two digits: trigger matching compares the stored string
// against a "15:04"-formatted clock, so "7:5" would never fire.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// ResolveDay maps a bare day-of-month onto the current month and year.
// Days that do not exist in the current month are rejected, never wrapped
// into the next one (sending "30" in February is an operator mistake, not
// a request for March 2nd).
func ResolveDay(day int, now time.Time) (string, error) {
	if day < 1 || day > 31 {
		return "", fmt.Errorf("invalid day of month %d", day)
	}
	candidate := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location())
	if candidate.Month() != now.Month() {
		return "", fmt.Errorf("day %d does not exist in %s", day, now.Month())
	}
	return candidate.Format(DateLayout), nil
}
