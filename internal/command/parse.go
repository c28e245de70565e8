package command

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ansa1019/tool/internal/schedule"
)

// Grammar, tried in priority order; first match wins.
var (
	reDayTime = regexp.MustCompile(`^(\d{1,2})\s+(\d{2}:\d{2})$`)
	reDayURL  = regexp.MustCompile(`^(\d{1,2})\s+(https://teams\.microsoft\.com/\S+)$`)
)

// retrySynonyms are the accepted ways to ask for a manual re-join.
var retrySynonyms = []string{"重試", "retry", "再試一次", "再來一次", "重新加入"}

// Parse classifies one trimmed chat line. It never touches the schedule;
// day-of-month resolution happens in the Router where "now" is known.
func Parse(text string) Command {
	text = strings.TrimSpace(text)

	if m := reDayTime.FindStringSubmatch(text); m != nil && !strings.HasPrefix(strings.ToLower(text), "http") {
		day, _ := strconv.Atoi(m[1])
		return Command{Kind: KindSetTime, Day: day, Time: m[2]}
	}

	if m := reDayURL.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		return Command{Kind: KindSetURL, Day: day, URL: m[2]}
	}

	if schedule.IsMeetingURL(text) {
		return Command{Kind: KindSetNextURL, URL: text}
	}

	lower := strings.ToLower(text)
	for _, syn := range retrySynonyms {
		if text == syn || lower == syn {
			return Command{Kind: KindRetry}
		}
	}

	return Command{Kind: KindHelp}
}
