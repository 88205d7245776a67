// Package scheduler runs jobs on cron-style recurrences.
//
// Each recurrence expression gets its own loop: compute the next occurrence
// in the configured timezone, sleep until then, run the job, then recompute
// from the new wall-clock time. Slow or failed runs never cause catch-up
// bursts, and a failing or panicking job keeps its schedule.
package scheduler
