package scheduler

import "time"

// Delay helpers convert human granularities to exact milliseconds.
// DelayMonths approximates a month as 30 days; calendar months vary, so
// month-scale delays drift against the calendar by design.
func DelayMinutes(n int64) int64 {
	return n * time.Minute.Milliseconds()
}

func DelayHours(n int64) int64 {
	return n * time.Hour.Milliseconds()
}

func DelayDays(n int64) int64 {
	return n * 24 * time.Hour.Milliseconds()
}

func DelayWeeks(n int64) int64 {
	return n * 7 * 24 * time.Hour.Milliseconds()
}

func DelayMonths(n int64) int64 {
	return n * 30 * 24 * time.Hour.Milliseconds()
}

// ComputeScheduledAt returns the execution time for an action proposed at
// now with the given delay.
func ComputeScheduledAt(now time.Time, delayMs int64) time.Time {
	return now.Add(time.Duration(delayMs) * time.Millisecond)
}
