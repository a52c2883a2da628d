package domain

import (
	"fmt"
	"time"
)

// UptimeWindow is the trailing window used for uptime aggregation.
const UptimeWindow = 24 * time.Hour

// DefaultUptime is reported when no history falls inside the window.
const DefaultUptime = "100.00%"

// ComputeUptime returns the share of operational entries among history entries
// recorded within UptimeWindow before now, formatted as "99.50%".
func ComputeUptime(history []StatusHistoryEntry, now time.Time) string {
	since := now.Add(-UptimeWindow)

	var total, operational int
	for _, e := range history {
		if e.Timestamp.Before(since) {
			continue
		}
		total++
		if e.Status == ServiceStatusOperational {
			operational++
		}
	}

	if total == 0 {
		return DefaultUptime
	}

	return fmt.Sprintf("%.2f%%", float64(operational)/float64(total)*100)
}
