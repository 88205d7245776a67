package feedsync

import (
	"time"

	"leaguewatch/internal/feed"
)

// Status is the result class of one (league, feed type) sync.
type Status string

const (
	StatusSynced      Status = "synced"
	StatusSeeded      Status = "seeded"
	StatusUnsupported Status = "unsupported"
	StatusThrottled   Status = "throttled"
	StatusBusy        Status = "busy"
	StatusCanceled    Status = "canceled"
	StatusFailed      Status = "failed"
)

// Outcome describes one league's sync of one feed type.
type Outcome struct {
	LeagueID  string        `json:"league_id"`
	Type      feed.Type     `json:"type"`
	Status    Status        `json:"status"`
	Fetched   int           `json:"fetched"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Messages  int           `json:"messages"`
	Cursor    string        `json:"cursor,omitempty"`
	Took      time.Duration `json:"took"`
	Error     string        `json:"error,omitempty"`
}

// Report aggregates one Run across all leagues.
type Report struct {
	Type      feed.Type      `json:"type"`
	StartedAt time.Time      `json:"started_at"`
	Took      time.Duration  `json:"took"`
	Outcomes  []Outcome      `json:"outcomes"`
	Counts    map[Status]int `json:"counts"`
	Messages  int            `json:"messages"`
	Error     string         `json:"error,omitempty"`
}

func (r *Report) add(o Outcome) {
	if r.Counts == nil {
		r.Counts = map[Status]int{}
	}
	r.Outcomes = append(r.Outcomes, o)
	r.Counts[o.Status]++
	r.Messages += o.Messages
}

// Failed counts leagues whose sync failed.
func (r Report) Failed() int { return r.Counts[StatusFailed] }
