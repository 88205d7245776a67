package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"leaguewatch/internal/eventbus"
	rtsup "leaguewatch/internal/runtime/supervisor"
	logx "leaguewatch/pkg/logx"
)

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		now:    time.Now,
		parser: newParser(),
		names:  map[string]struct{}{},
	}
	s.loc = s.loadLocation()
	return s
}

func (s *Service) loadLocation() *time.Location {
	loc, err := LoadLocation(s.cfg.Timezone)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", s.cfg.Timezone), logx.Err(err))
		return time.Local
	}
	return loc
}

// Location returns the timezone used for every next-occurrence computation.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Schedule registers job under name with one or more expressions. Every
// expression is validated first; on any error nothing is registered.
// Registering after Start launches the new timers immediately.
func (s *Service) Schedule(name string, exprs []string, job Job, opt Options) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if len(exprs) == 0 {
		return fmt.Errorf("%w: %s: at least one expression required", ErrInvalidSchedule, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.names[name]; dup {
		return fmt.Errorf("schedule %q already registered", name)
	}

	added := make([]*timer, 0, len(exprs))
	for _, raw := range exprs {
		sched, err := parseWith(s.parser, raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		added = append(added, &timer{name: name, expr: strings.TrimSpace(raw), sched: sched, job: job, opt: opt})
	}

	s.names[name] = struct{}{}
	s.timers = append(s.timers, added...)
	for _, t := range added {
		if s.log.Enabled(logx.LevelDebug) {
			s.log.Debug("schedule registered", logx.String("name", name), logx.String("expr", t.expr), logx.Time("next", nextAfter(t.sched, s.now(), s.loc)))
		}
		if s.sup != nil {
			s.launchLocked(t)
		}
	}
	return nil
}

// Start launches one loop per registered expression. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	for _, t := range s.timers {
		s.launchLocked(t)
	}
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("timers", len(s.timers)))
}

func (s *Service) launchLocked(t *timer) {
	loc := s.loc
	s.sup.Go0("schedule."+t.name, func(ctx context.Context) {
		s.loop(ctx, t, loc)
	})
}

// Stop cancels every loop and waits for running jobs until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("stop incomplete", logx.Err(err))
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Snapshot lists all timers ordered by next due time.
func (s *Service) Snapshot() []TimerInfo {
	s.mu.Lock()
	timers := append([]*timer(nil), s.timers...)
	s.mu.Unlock()

	out := make([]TimerInfo, 0, len(timers))
	for _, t := range timers {
		t.mu.Lock()
		out = append(out, TimerInfo{
			Name: t.name, Expr: t.expr, State: t.state,
			Next: t.next, Prev: t.prev, Runs: t.runs, LastErr: t.lastErr,
		})
		t.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Next.Equal(out[j].Next) {
			return out[i].Next.Before(out[j].Next)
		}
		return out[i].Name < out[j].Name
	})
	return out
}
