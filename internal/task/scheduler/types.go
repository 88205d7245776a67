package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"leaguewatch/internal/eventbus"
	rtsup "leaguewatch/internal/runtime/supervisor"
	logx "leaguewatch/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Stockholm"; empty means Local
}

// Job is the unit of scheduled work.
type Job func(ctx context.Context) error

// Options tune one registered job.
type Options struct {
	// Timeout bounds a single run. Zero means no bound beyond shutdown.
	Timeout time.Duration
}

// State is the lifecycle position of one timer.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateRunning
	StateStopped
)

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// timer is one (job, expression) pair.
type timer struct {
	name  string
	expr  string
	sched cron.Schedule
	job   Job
	opt   Options

	mu      sync.Mutex
	state   State
	next    time.Time
	prev    time.Time
	runs    uint64
	lastErr string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus
	now func() time.Time

	parser cron.Parser
	timers []*timer
	names  map[string]struct{}
	sup    *rtsup.Supervisor
}

// TimerInfo is a point-in-time view of one timer.
type TimerInfo struct {
	Name    string    `json:"name"`
	Expr    string    `json:"expr"`
	State   State     `json:"state"`
	Next    time.Time `json:"next"`
	Prev    time.Time `json:"prev"`
	Runs    uint64    `json:"runs"`
	LastErr string    `json:"last_err,omitempty"`
}

// RunEvent is published on the bus after every run.
type RunEvent struct {
	Name  string        `json:"name"`
	Expr  string        `json:"expr"`
	Took  time.Duration `json:"took"`
	Error string        `json:"error,omitempty"`
}
