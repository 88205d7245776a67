package config

import (
	"reflect"
	"sort"
	"strings"

	logx "leaguewatch/pkg/logx"
)

// liveSections are applied without a restart.
var liveSections = map[string]bool{"logging": true}

// SummarizeConfigChange returns (1) the changed top-level sections in
// sorted order, (2) safe structured attrs for logging (never secrets such as
// tokens, DSNs or passwords) and (3) whether any changed section needs a
// restart to take effect.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}
	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.base_url", newCfg.Source.BaseURL),
			logx.Bool("source.token_set", strings.TrimSpace(newCfg.Source.Token) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Feeds, newCfg.Feeds) {
		changed = append(changed, "feeds")
		attrs = append(attrs, logx.Strings("feeds.enabled", newCfg.EnabledFeeds()))
	}
	if oldCfg.DailyStars != newCfg.DailyStars {
		changed = append(changed, "daily_stars")
	}
	if oldCfg.Sync != newCfg.Sync {
		changed = append(changed, "sync")
		attrs = append(attrs, logx.String("sync.guard", newCfg.Sync.Guard))
	}
	if !reflect.DeepEqual(oldCfg.Catalog, newCfg.Catalog) {
		changed = append(changed, "catalog")
	}
	if !reflect.DeepEqual(oldCfg.Watchers, newCfg.Watchers) {
		changed = append(changed, "watchers")
	}
	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Bool("delivery.enabled", newCfg.Delivery.Enabled),
			logx.Int("delivery.workers", newCfg.Delivery.Workers),
		)
	}
	if !reflect.DeepEqual(oldCfg.Transport, newCfg.Transport) {
		changed = append(changed, "transport")
		attrs = append(attrs,
			logx.String("transport.kind", newCfg.Transport.Kind),
			logx.Bool("transport.telegram_token_set", strings.TrimSpace(newCfg.Transport.Telegram.Token) != ""),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}

	sort.Strings(changed)
	restart := false
	for _, s := range changed {
		if !liveSections[s] {
			restart = true
			break
		}
	}
	return changed, attrs, restart
}

// EnabledFeeds returns the enabled feed type names in sorted order.
func (c *Config) EnabledFeeds() []string {
	out := make([]string, 0, len(c.Feeds))
	for name, f := range c.Feeds {
		if f.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
