package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/task/scheduler"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags first, then everything tags cannot express:
// feed type names, cron expressions, the timezone, duration strings and
// transport prerequisites. All problems are reported together.
func Validate(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := validate.StructCtx(ctx, cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if _, err := scheduler.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
	}

	names := make([]string, 0, len(cfg.Feeds))
	for name := range cfg.Feeds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := cfg.Feeds[name]
		if _, err := feed.ParseType(name); err != nil {
			errs = append(errs, fmt.Errorf("feeds.%s: %w", name, err))
			continue
		}
		if f.Enabled && len(f.Schedules) == 0 {
			errs = append(errs, fmt.Errorf("feeds.%s.schedules: at least one expression required", name))
		}
		errs = append(errs, checkSchedules("feeds."+name+".schedules", f.Schedules)...)
		errs = append(errs, checkDurations(map[string]string{"feeds." + name + ".timeout": f.Timeout})...)
	}
	errs = append(errs, checkSchedules("catalog.schedules", cfg.Catalog.Schedules)...)
	errs = append(errs, checkSchedules("watchers.prune_schedules", cfg.Watchers.PruneSchedules)...)

	errs = append(errs, checkDurations(map[string]string{
		"storage.busy_timeout":     cfg.Storage.BusyTimeout,
		"source.timeout":           cfg.Source.Timeout,
		"source.backoff":           cfg.Source.Backoff,
		"daily_stars.interval":     cfg.DailyStars.Interval,
		"sync.persist_timeout":     cfg.Sync.PersistTimeout,
		"sync.redis.ttl":           cfg.Sync.Redis.TTL,
		"watchers.retention":       cfg.Watchers.Retention,
		"delivery.interval":        cfg.Delivery.Interval,
		"delivery.retry_base":      cfg.Delivery.RetryBase,
		"delivery.retry_max_delay": cfg.Delivery.RetryMaxDelay,
		"delivery.send_timeout":    cfg.Delivery.SendTimeout,
		"debug.read_timeout":       cfg.Debug.ReadTimeout,
		"debug.idle_timeout":       cfg.Debug.IdleTimeout,
	})...)

	if cfg.Sync.Guard == "redis" && strings.TrimSpace(cfg.Sync.Redis.Addr) == "" {
		errs = append(errs, errors.New("sync.redis.addr: required when sync.guard is redis"))
	}
	switch cfg.Transport.Kind {
	case "telegram":
		if strings.TrimSpace(cfg.Transport.Telegram.Token) == "" {
			errs = append(errs, errors.New("transport.telegram.token: required for the telegram transport"))
		}
	case "kafka":
		if len(cfg.Transport.Kafka.Brokers) == 0 || strings.TrimSpace(cfg.Transport.Kafka.Topic) == "" {
			errs = append(errs, errors.New("transport.kafka: brokers and topic required for the kafka transport"))
		}
	}
	if cfg.Logging.Alert.Enabled && (strings.TrimSpace(cfg.Transport.Telegram.Token) == "" || cfg.Transport.Telegram.AlertChatID == 0) {
		errs = append(errs, errors.New("logging.alert: needs transport.telegram.token and alert_chat_id"))
	}
	return errors.Join(errs...)
}

func checkSchedules(path string, exprs []string) []error {
	var errs []error
	for i, raw := range exprs {
		if _, err := scheduler.ParseExpr(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s[%d]: %w", path, i, err))
		}
	}
	return errs
}

func checkDurations(fields map[string]string) []error {
	paths := make([]string, 0, len(fields))
	for p := range fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var errs []error
	for _, p := range paths {
		if _, err := ParseDurationField(p, fields[p]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// fieldPath turns "Config.Storage.DSN" into a dotted path without the root.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
