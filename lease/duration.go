package lease

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// countdownPattern matches "[D day(s) ]H:MM:SS" as the portal renders it.
// maxDays keeps the total within int64 seconds.
const maxDays = math.MaxInt64/86400 - 1

var countdownPattern = regexp.MustCompile(`^(?:(\d+)\s+days?\s+)?(\d{1,2}):(\d{1,2}):(\d{1,2})$`)

// ParseCountdown converts a countdown such as "3 days 04:05:06" or
// "23:59:59" into whole seconds. ok is false when s is not a countdown.
func ParseCountdown(s string) (seconds int64, ok bool) {
	m := countdownPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}

	var days int64
	if m[1] != "" {
		d, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || d > maxDays {
			return 0, false
		}
		days = d
	}
	hours, _ := strconv.ParseInt(m[2], 10, 64)
	minutes, _ := strconv.ParseInt(m[3], 10, 64)
	secs, _ := strconv.ParseInt(m[4], 10, 64)

	return days*86400 + hours*3600 + minutes*60 + secs, true
}
