package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"leaguewatch/internal/catalog"
	"leaguewatch/internal/config"
	"leaguewatch/internal/eventbus"
	"leaguewatch/internal/feed"
	"leaguewatch/internal/feedsync"
	"leaguewatch/internal/notifier"
	"leaguewatch/internal/observability/pprof"
	"leaguewatch/internal/outbox"
	rtsup "leaguewatch/internal/runtime/supervisor"
	"leaguewatch/internal/source/httpfeed"
	"leaguewatch/internal/storage"
	"leaguewatch/internal/task/scheduler"
	"leaguewatch/internal/transport"
	"leaguewatch/internal/transport/kafka"
	"leaguewatch/internal/transport/telegram"
	"leaguewatch/internal/watcher"
	logx "leaguewatch/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	redis *redis.Client

	sender    transport.Sender
	engine    *feedsync.Engine
	refresher *catalog.Refresher
	pruner    *watcher.Pruner
	sched     *scheduler.Service
	notif     *notifier.Service
	debug     *pprof.Service

	refreshOnStart bool

	reportsMu sync.Mutex
	reports   map[feed.Type]feedsync.Report
}

// Status is the /status document of the debug server.
type Status struct {
	Timers  []scheduler.TimerInfo         `json:"timers"`
	Reports map[feed.Type]feedsync.Report `json:"reports"`
}

func (a *App) Status() Status {
	a.reportsMu.Lock()
	reports := make(map[feed.Type]feedsync.Report, len(a.reports))
	for k, v := range a.reports {
		reports[k] = v
	}
	a.reportsMu.Unlock()
	return Status{Timers: a.sched.Snapshot(), Reports: reports}
}

func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(config.Validate)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}

	// Alerts need the telegram sender, which needs a logger. Start without a
	// sender and attach it once the transport exists.
	logSvc, log := logx.New(mapLoggingConfig(cfg), nil)
	a := &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log.With(logx.String("comp", "app")),
		bus:     eventbus.New(),
		reports: map[feed.Type]feedsync.Report{},
	}
	if err := a.build(ctx, cfg, log); err != nil {
		a.closeResources()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, log logx.Logger) error {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	a.store = store
	a.log.Info("storage ready", logx.String("driver", sc.Driver))

	guard, err := a.buildGuard(ctx, cfg)
	if err != nil {
		return err
	}

	srcCfg, err := mapSourceConfig(cfg, log)
	if err != nil {
		return err
	}
	src := httpfeed.New(srcCfg)

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return err
	}
	a.engine = feedsync.New(engCfg, feedsync.Deps{
		Catalog: store,
		Source:  src,
		Cursors: store,
		Games:   store,
		Matcher: watcher.NewMatcher(store),
		Queue:   outbox.NewQueue(store),
		Guard:   guard,
		Bus:     a.bus,
		Log:     log.With(logx.String("comp", "feedsync")),
	})
	a.refresher = catalog.NewRefresher(mapCatalogConfig(cfg), store, src, store, store, a.bus, log.With(logx.String("comp", "catalog")))
	a.refreshOnStart = cfg.Catalog.RefreshOnStart

	retention, err := config.ParseDurationField("watchers.retention", cfg.Watchers.Retention)
	if err != nil {
		return err
	}
	a.pruner = watcher.NewPruner(store, retention, log.With(logx.String("comp", "watcher.prune")))

	sender, err := a.buildTransport(cfg, log)
	if err != nil {
		return err
	}
	a.sender = sender

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	a.notif, err = notifier.New(ncfg, store, sender, log, a.bus)
	if err != nil {
		return err
	}

	dcfg, err := mapDebugConfig(cfg)
	if err != nil {
		return err
	}
	a.debug = pprof.New(dcfg, func() any { return a.Status() }, log)

	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, log.With(logx.String("comp", "scheduler")), a.bus)
	return a.registerJobs(cfg)
}

func (a *App) buildGuard(ctx context.Context, cfg *config.Config) (feedsync.Guard, error) {
	if cfg.Sync.Guard != "redis" {
		return feedsync.NewLocalGuard(), nil
	}
	ttl, err := config.ParseDurationField("sync.redis.ttl", cfg.Sync.Redis.TTL)
	if err != nil {
		return nil, err
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Sync.Redis.Addr,
		Password: cfg.Sync.Redis.Password,
		DB:       cfg.Sync.Redis.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "redis ping %s", cfg.Sync.Redis.Addr)
	}
	a.log.Info("sync guard ready", logx.String("backend", "redis"), logx.String("addr", cfg.Sync.Redis.Addr))
	return feedsync.NewRedisGuard(a.redis, cfg.Sync.Redis.Prefix, ttl), nil
}

// buildTransport picks the delivery transport. The telegram sender doubles
// as the log alert sink whenever a token is configured.
func (a *App) buildTransport(cfg *config.Config, log logx.Logger) (transport.Sender, error) {
	tc := cfg.Transport
	var tg *telegram.Sender
	if strings.TrimSpace(tc.Telegram.Token) != "" {
		s, err := telegram.New(telegram.Config{
			Token:          tc.Telegram.Token,
			AlertChatID:    tc.Telegram.AlertChatID,
			DisablePreview: tc.Telegram.DisablePreview,
		}, log)
		if err != nil {
			return nil, err
		}
		tg = s
		if tc.Telegram.AlertChatID != 0 {
			a.logs.SetSender(tg)
		}
	}

	switch tc.Kind {
	case "telegram":
		if tg == nil {
			return nil, errors.New("telegram transport needs a token")
		}
		return tg, nil
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{Brokers: tc.Kafka.Brokers, Topic: tc.Kafka.Topic})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return transport.NewLogSender(log), nil
	}
}

func (a *App) registerJobs(cfg *config.Config) error {
	for _, name := range cfg.EnabledFeeds() {
		t, err := feed.ParseType(name)
		if err != nil {
			return err
		}
		fc := cfg.Feeds[name]
		timeout, err := config.ParseDurationField("feeds."+name+".timeout", fc.Timeout)
		if err != nil {
			return err
		}
		if err := a.sched.Schedule("feed."+string(t), fc.Schedules, a.syncJob(t), scheduler.Options{Timeout: timeout}); err != nil {
			return err
		}
	}
	if len(cfg.Catalog.Schedules) > 0 {
		if err := a.sched.Schedule("catalog.refresh", cfg.Catalog.Schedules, a.refreshJob, scheduler.Options{}); err != nil {
			return err
		}
	}
	if len(cfg.Watchers.PruneSchedules) > 0 {
		prune := func(ctx context.Context) error {
			_, err := a.pruner.Prune(ctx)
			return err
		}
		if err := a.sched.Schedule("watchers.prune", cfg.Watchers.PruneSchedules, prune, scheduler.Options{}); err != nil {
			return err
		}
	}
	return nil
}

// syncJob runs one feed type across every league. Per-league failures are
// already in the report; only an aborted run fails the job.
func (a *App) syncJob(t feed.Type) scheduler.Job {
	return func(ctx context.Context) error {
		rep := a.engine.Run(ctx, t)
		a.reportsMu.Lock()
		a.reports[t] = rep
		a.reportsMu.Unlock()
		if rep.Error != "" {
			return errors.Newf("sync %s: %s", t, rep.Error)
		}
		return nil
	}
}

func (a *App) refreshJob(ctx context.Context) error {
	_, err := a.refresher.Refresh(ctx)
	return err
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log)

	if a.refreshOnStart {
		// Sync jobs wait for their first occurrence, so this normally lands first.
		a.sup.Go0("catalog.refresh.initial", func(c context.Context) {
			if err := a.refreshJob(c); err != nil && c.Err() == nil {
				a.log.Warn("initial catalog refresh failed", logx.Err(err))
			}
		})
	}

	if err := a.debug.Start(a.sup.Context()); err != nil {
		return errors.Wrap(err, "debug server")
	}
	a.notif.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Keep this debug-level to avoid noise for frequent schedules.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Strings("feeds", a.cfgm.Get().EnabledFeeds()),
		logx.String("transport", a.sender.Name()),
		logx.Bool("delivery", a.notif.Enabled()),
	)
	return nil
}

// applyConfig applies the live sections of a reloaded config. Everything
// else is reported and waits for a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(mapLoggingConfig(newCfg))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if restart {
		a.log.Warn("config changes need a restart to take effect", logx.Strings("sections", sections))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step runs one shutdown step with an upper bound so one component
	// can't stall the whole stop.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		stepCtx, cancel := context.WithTimeout(ctx, max(limit, 0))
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("delivery", 5*time.Second, a.notif.Stop)
	step("debug", 2*time.Second, a.debug.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("resources", 2*time.Second, func(context.Context) error { a.closeResources(); return nil })

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) closeResources() {
	if c, ok := a.sender.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.log.Warn("transport close failed", logx.Err(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
}
