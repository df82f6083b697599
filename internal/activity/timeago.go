package activity

import (
	"fmt"
	"time"
)

// FormatTimeAgo renders an activity timestamp relative to now for display.
func FormatTimeAgo(timestamp string, now time.Time) string {
	if timestamp == "" {
		return "Just now"
	}
	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return "Unknown time"
	}

	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return plural(int(diff/time.Minute), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff/time.Hour), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff/(24*time.Hour)), "day")
	}
	return t.Local().Format("Jan 2, 2006")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
