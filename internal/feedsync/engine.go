package feedsync

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"leaguewatch/internal/eventbus"
	"leaguewatch/internal/feed"
	"leaguewatch/internal/league"
	"leaguewatch/internal/outbox"
	"leaguewatch/internal/watcher"
	logx "leaguewatch/pkg/logx"
)

// Config tunes the engine.
type Config struct {
	// DailyStarInterval is the minimum time between two daily-star runs of
	// one league.
	DailyStarInterval time.Duration
	// PersistTimeout bounds the final cursor write, which runs detached from
	// the sync context so progress survives cancellation.
	PersistTimeout time.Duration
}

// Matcher finds destinations for an item.
type Matcher interface {
	Match(ctx context.Context, q watcher.Query) ([]watcher.Destination, error)
}

// Enqueuer stages rendered messages.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgs []outbox.Message) (int, error)
}

// Deps are the collaborators the engine needs. Guard, Bus and Log are optional.
type Deps struct {
	Catalog league.Catalog
	Source  feed.Source
	Cursors feed.CursorStore
	Games   feed.GameStore
	Matcher Matcher
	Queue   Enqueuer
	Guard   Guard
	Bus     eventbus.Bus
	Log     logx.Logger
}

type Engine struct {
	cfg  Config
	deps Deps
	log  logx.Logger
	now  func() time.Time
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.DailyStarInterval <= 0 {
		cfg.DailyStarInterval = 18 * time.Hour
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	if deps.Guard == nil {
		deps.Guard = NewLocalGuard()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop()
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{cfg: cfg, deps: deps, log: log, now: time.Now}
}

// Run synchronizes feed type t for every league concurrently and waits for
// all of them. A failing league never affects its siblings. Leagues not yet
// started when ctx is canceled are reported as canceled.
func (e *Engine) Run(ctx context.Context, t feed.Type) Report {
	rep := Report{Type: t, StartedAt: e.now()}
	log := e.log.With(logx.String("feed", string(t)))

	leagues, err := e.deps.Catalog.AllLeagues(ctx)
	if err != nil {
		rep.Error = errors.Wrap(err, "load leagues").Error()
		rep.Took = time.Since(rep.StartedAt)
		log.Error("sync aborted", logx.Err(err))
		e.deps.Bus.Publish(eventbus.Event{Type: eventbus.FeedSyncRun, Data: rep})
		return rep
	}
	log.Info("sync started", logx.Int("leagues", len(leagues)))

	resolver := league.NewResolver(leagues)
	results := make([]Outcome, len(leagues))
	var wg conc.WaitGroup
	for i, lg := range leagues {
		if ctx.Err() != nil {
			results[i] = Outcome{LeagueID: lg.ID, Type: t, Status: StatusCanceled}
			continue
		}
		wg.Go(func() {
			results[i] = e.syncIsolated(ctx, lg, t, resolver)
		})
	}
	wg.Wait()

	for _, o := range results {
		rep.add(o)
	}
	rep.Took = time.Since(rep.StartedAt)
	log.Info("sync finished",
		logx.Int("leagues", len(leagues)),
		logx.Int("messages", rep.Messages),
		logx.Int("failed", rep.Counts[StatusFailed]),
		logx.Int("seeded", rep.Counts[StatusSeeded]),
		logx.Int("unsupported", rep.Counts[StatusUnsupported]),
		logx.Duration("took", rep.Took),
	)
	e.deps.Bus.Publish(eventbus.Event{Type: eventbus.FeedSyncRun, Data: rep})
	return rep
}

// syncIsolated is the league-task boundary: errors and panics stop here.
func (e *Engine) syncIsolated(ctx context.Context, lg league.League, t feed.Type, r *league.Resolver) Outcome {
	start := time.Now()
	log := e.log.With(logx.String("feed", string(t)), logx.String("league", lg.ID))

	var (
		out Outcome
		err error
		pc  panics.Catcher
	)
	pc.Try(func() { out, err = e.Sync(ctx, lg, t, r) })
	if rec := pc.Recovered(); rec != nil {
		err = errors.Newf("panic: %v", rec.Value)
		log.Error("league sync panicked", logx.Any("panic", rec.Value), logx.Stack(string(rec.Stack)))
	}

	out.LeagueID, out.Type = lg.ID, t
	out.Took = time.Since(start)
	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		log.Error("league sync failed", logx.Err(err), logx.Duration("took", out.Took))
	} else {
		fields := []logx.Field{
			logx.String("status", string(out.Status)),
			logx.Int("fetched", out.Fetched),
			logx.Int("processed", out.Processed),
			logx.Int("skipped", out.Skipped),
			logx.Int("messages", out.Messages),
			logx.Duration("took", out.Took),
		}
		if out.Messages > 0 || out.Skipped > 0 {
			log.Info("league synced", fields...)
		} else {
			log.Debug("league synced", fields...)
		}
	}
	e.deps.Bus.Publish(eventbus.Event{Type: eventbus.FeedSyncLeague, Data: out})
	return out
}

// Sync synchronizes one league for one feed type. A returned error is a
// league-level failure: the cursor was not advanced.
func (e *Engine) Sync(ctx context.Context, lg league.League, t feed.Type, r *league.Resolver) (Outcome, error) {
	st, ok := strategies[t]
	if !ok {
		return Outcome{}, errors.Newf("unknown feed type %q", t)
	}
	if r == nil {
		r = league.NewResolver([]league.League{lg})
	}

	release, acquired, err := e.deps.Guard.TryAcquire(ctx, guardKey(lg.ID, t))
	if err != nil {
		return Outcome{}, errors.Wrap(err, "acquire sync guard")
	}
	if !acquired {
		return Outcome{Status: StatusBusy}, nil
	}
	defer release()

	s := &leagueSync{e: e, lg: lg, t: t, st: st, r: r, log: e.log.With(logx.String("feed", string(t)), logx.String("league", lg.ID))}
	switch st.cursor {
	case cursorThrottle:
		return s.dailyStars(ctx)
	case cursorGameState:
		return s.games(ctx)
	default:
		return s.hashed(ctx)
	}
}

// persistCtx detaches from cancellation so progress reached before a
// shutdown is still written.
func (e *Engine) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PersistTimeout)
}

// fetch wraps the source call; ok=false means the feed is unsupported.
func (e *Engine) fetch(ctx context.Context, lg league.League, t feed.Type) ([]feed.Item, bool, error) {
	items, err := e.deps.Source.Fetch(ctx, lg, t)
	if errors.Is(err, feed.ErrUnsupported) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "fetch %s", t)
	}
	feed.Seal(items)
	return items, true, nil
}
