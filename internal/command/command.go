// Package command turns free chat text into schedule mutations and manual
// join triggers. Parsing is pure and separately testable; side effects live
// in the Router.
package command

// Kind tags a parsed command.
type Kind string

const (
	// KindSetTime changes the trigger time of this month's entry for a day.
	KindSetTime Kind = "set_time"
	// KindSetURL changes the meeting link of this month's entry for a day.
	KindSetURL Kind = "set_url"
	// KindSetNextURL assigns a bare link to the nearest future entry.
	KindSetNextURL Kind = "set_next_url"
	// KindRetry manually re-runs the join actuator for the next meeting.
	KindRetry Kind = "retry"
	// KindHelp is the fallback for anything unrecognized.
	KindHelp Kind = "help"
)

// Command is the tagged variant a chat line parses into. Only the fields
// relevant to Kind are set.
type Command struct {
	Kind Kind
	Day  int    // set_time, set_url
	Time string // set_time, "HH:MM"
	URL  string // set_url, set_next_url
}
