package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"leaguewatch/internal/eventbus"
	logx "leaguewatch/pkg/logx"
)

func (t *timer) setState(st State, next time.Time) {
	t.mu.Lock()
	t.state = st
	if !next.IsZero() {
		t.next = next
	}
	t.mu.Unlock()
}

// loop is the Idle -> Waiting -> Running -> Waiting cycle of one timer.
// It ends in Stopped once ctx is canceled.
func (s *Service) loop(ctx context.Context, t *timer, loc *time.Location) {
	log := s.log.With(logx.String("schedule", t.name), logx.String("expr", t.expr))
	defer t.setState(StateStopped, time.Time{})

	var lastDue time.Time
	for {
		if ctx.Err() != nil {
			return
		}
		now := s.now()
		// Never fire the same occurrence twice if the clock reads early.
		if now.Before(lastDue) {
			now = lastDue
		}
		next := nextAfter(t.sched, now, loc)
		if next.IsZero() {
			log.Warn("schedule has no future occurrence")
			return
		}
		t.setState(StateWaiting, next)

		wait := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			wait.Stop()
			return
		case <-wait.C:
		}

		lastDue = next
		t.setState(StateRunning, time.Time{})
		took, err := s.runOnce(ctx, t)

		t.mu.Lock()
		t.prev = next
		t.runs++
		t.lastErr = ""
		if err != nil {
			t.lastErr = err.Error()
		}
		t.mu.Unlock()

		ev := RunEvent{Name: t.name, Expr: t.expr, Took: took}
		if err != nil {
			ev.Error = err.Error()
			if ctx.Err() == nil {
				log.Error("job failed", logx.Err(err), logx.Duration("took", took))
			}
		} else {
			log.Debug("job finished", logx.Duration("took", took))
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.SchedulerRun, Data: ev})
	}
}

// runOnce invokes the job, converting a panic into an error so the
// schedule keeps running.
func (s *Service) runOnce(ctx context.Context, t *timer) (took time.Duration, err error) {
	start := time.Now()
	runCtx := ctx
	if t.opt.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.opt.Timeout)
		defer cancel()
	}
	defer func() {
		took = time.Since(start)
		if r := recover(); r != nil {
			s.log.Error("job panicked", logx.String("schedule", t.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	err = t.job(runCtx)
	return
}
