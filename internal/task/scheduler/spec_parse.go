package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule wraps every expression rejected at registration.
var ErrInvalidSchedule = errors.New("invalid schedule")

// newParser accepts both 5-field and 6-field (leading seconds) expressions,
// plus descriptors such as "@hourly".
func newParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// ParseExpr parses a single recurrence expression.
func ParseExpr(raw string) (cron.Schedule, error) {
	return parseWith(newParser(), raw)
}

func parseWith(p cron.Parser, raw string) (cron.Schedule, error) {
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return nil, fmt.Errorf("%w: expression required", ErrInvalidSchedule)
	}
	sched, err := p.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, raw, err)
	}
	return sched, nil
}

// nextAfter returns the first occurrence strictly after now, evaluated in loc.
func nextAfter(sched cron.Schedule, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return sched.Next(now.In(loc))
}

// LoadLocation resolves an IANA timezone name; empty means Local.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}
