package app

import (
	"strings"
	"time"

	"leaguewatch/internal/catalog"
	"leaguewatch/internal/config"
	"leaguewatch/internal/feedsync"
	"leaguewatch/internal/notifier"
	"leaguewatch/internal/observability/pprof"
	"leaguewatch/internal/source/httpfeed"
	"leaguewatch/internal/storage"
	logx "leaguewatch/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    cfg.Logging.Alert.Enabled,
			MinLevel:   cfg.Logging.Alert.MinLevel,
			RatePerSec: cfg.Logging.Alert.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:       strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:         strings.TrimSpace(sc.Path),
		DSN:          sc.DSN,
		BusyTimeout:  busy,
		MaxOpenConns: sc.MaxOpenConns,
	}, nil
}

func mapSourceConfig(cfg *config.Config, log logx.Logger) (httpfeed.Config, error) {
	timeout, err := config.ParseDurationOrDefault("source.timeout", cfg.Source.Timeout, 15*time.Second)
	if err != nil {
		return httpfeed.Config{}, err
	}
	backoff, err := config.ParseDurationOrDefault("source.backoff", cfg.Source.Backoff, 500*time.Millisecond)
	if err != nil {
		return httpfeed.Config{}, err
	}
	return httpfeed.Config{
		BaseURL:    cfg.Source.BaseURL,
		Token:      cfg.Source.Token,
		Timeout:    timeout,
		MaxRetries: cfg.Source.MaxRetries,
		Backoff:    backoff,
		Logger:     log,
	}, nil
}

func mapEngineConfig(cfg *config.Config) (feedsync.Config, error) {
	interval, err := config.ParseDurationField("daily_stars.interval", cfg.DailyStars.Interval)
	if err != nil {
		return feedsync.Config{}, err
	}
	persist, err := config.ParseDurationField("sync.persist_timeout", cfg.Sync.PersistTimeout)
	if err != nil {
		return feedsync.Config{}, err
	}
	// zero values take the engine defaults.
	return feedsync.Config{DailyStarInterval: interval, PersistTimeout: persist}, nil
}

func mapCatalogConfig(cfg *config.Config) catalog.Config {
	return catalog.Config{Concurrency: cfg.Catalog.Concurrency}
}

// mapNotifierConfig parses delivery durations. Zero values take the
// drainer's defaults.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	d := cfg.Delivery
	out := notifier.Config{
		Enabled:    d.Enabled,
		BatchSize:  d.BatchSize,
		Workers:    d.Workers,
		RatePerSec: d.RatePerSec,
		RetryMax:   d.RetryMax,
	}
	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"delivery.interval", d.Interval, &out.Interval},
		{"delivery.retry_base", d.RetryBase, &out.RetryBase},
		{"delivery.retry_max_delay", d.RetryMaxDelay, &out.RetryMaxDelay},
		{"delivery.send_timeout", d.SendTimeout, &out.SendTimeout},
	}
	for _, f := range fields {
		v, err := config.ParseDurationField(f.path, f.raw)
		if err != nil {
			return notifier.Config{}, err
		}
		*f.dst = v
	}
	return out, nil
}

func mapDebugConfig(cfg *config.Config) (pprof.Config, error) {
	d := cfg.Debug
	read, err := config.ParseDurationOrDefault("debug.read_timeout", d.ReadTimeout, 10*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("debug.idle_timeout", d.IdleTimeout, time.Minute)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:       d.Enabled,
		Addr:          d.Addr,
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
		ReadTimeout:   read,
		IdleTimeout:   idle,
	}, nil
}
