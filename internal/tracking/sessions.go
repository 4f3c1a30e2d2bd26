package tracking

import (
	"sort"
	"time"
)

// SessionGap is the calendar distance between two page visits that starts a new session
const SessionGap = time.Hour

// StartsNewSession reports whether next opens a new session after prev.
// The distance is taken between wall-clock readings in prev's location,
// so it follows the calendar rather than the monotonic clock.
func StartsNewSession(prev, next time.Time) bool {
	if prev.IsZero() {
		return true
	}
	loc := prev.Location()
	diff := wallClock(next.In(loc)).Sub(wallClock(prev))
	if diff < 0 {
		diff = -diff
	}
	return diff >= SessionGap
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// CountUniqueVisits derives the number of sessions from page visit times.
// Zero or one visit counts as one.
func CountUniqueVisits(times []time.Time) int {
	if len(times) <= 1 {
		return 1
	}

	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	count := 1
	for i := 1; i < len(sorted); i++ {
		if StartsNewSession(sorted[i-1], sorted[i]) {
			count++
		}
	}
	return count
}

// sessionsFor is CountUniqueVisits for scoring, where no visits means no session
func sessionsFor(times []time.Time) int {
	if len(times) == 0 {
		return 0
	}
	return CountUniqueVisits(times)
}
