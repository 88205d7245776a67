package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
logging:
  level: debug
  console: true
scheduler:
  timezone: UTC
storage:
  driver: sqlite
  path: ./leaguewatch.db
source:
  base_url: https://feeds.example.com/v1
  timeout: 10s
feeds:
  trade:
    enabled: true
    schedules: ["*/5 * * * *"]
  daily_star:
    enabled: true
    schedules: ["0 9 * * *", "0 21 * * *"]
daily_stars:
  interval: 18h
delivery:
  enabled: true
  workers: 2
transport:
  kind: log
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "config.yaml", validYAML))
	m.SetValidator(Validate)
	cfg, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || !cfg.Feeds["trade"].Enabled {
		t.Fatalf("cfg = %+v", cfg)
	}
	if got := cfg.EnabledFeeds(); strings.Join(got, ",") != "daily_star,trade" {
		t.Fatalf("EnabledFeeds = %v", got)
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return committed config")
	}
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown key", file: "c.json", body: `{"storage":{"driver":"memory"},"plugins":{}}`},
		{name: "trailing data", file: "c.json", body: `{"storage":{"driver":"memory"}} {}`},
		{name: "bad yaml", file: "c.yaml", body: "storage: [driver"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewConfigManager(writeFile(t, tt.file, tt.body)).Parse(); err == nil {
				t.Fatalf("Parse(%s) succeeded", tt.body)
			}
		})
	}
}

func baseConfig() *Config {
	return &Config{
		Storage: StorageConfig{Driver: "memory"},
		Source:  SourceConfig{BaseURL: "https://feeds.example.com"},
		Feeds: map[string]FeedConfig{
			"trade": {Enabled: true, Schedules: []string{"*/5 * * * *"}},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad cron", mutate: func(c *Config) {
			c.Feeds["trade"] = FeedConfig{Enabled: true, Schedules: []string{"61 * * * *"}}
		}, wantErr: "feeds.trade.schedules[0]"},
		{name: "enabled without schedules", mutate: func(c *Config) {
			c.Feeds["trade"] = FeedConfig{Enabled: true, Schedules: []string{}}
		}, wantErr: "at least one expression"},
		{name: "unknown feed type", mutate: func(c *Config) {
			c.Feeds["box_scores"] = FeedConfig{}
		}, wantErr: "feeds.box_scores"},
		{name: "bad timezone", mutate: func(c *Config) {
			c.Scheduler.Timezone = "Mars/Base"
		}, wantErr: "scheduler.timezone"},
		{name: "bad duration", mutate: func(c *Config) {
			c.Delivery.RetryBase = "soon"
		}, wantErr: "delivery.retry_base"},
		{name: "postgres without dsn", mutate: func(c *Config) {
			c.Storage.Driver = "postgres"
		}, wantErr: "Storage.DSN"},
		{name: "unknown driver", mutate: func(c *Config) {
			c.Storage.Driver = "mongo"
		}, wantErr: "oneof"},
		{name: "missing base url", mutate: func(c *Config) {
			c.Source.BaseURL = ""
		}, wantErr: "Source.BaseURL"},
		{name: "redis guard without addr", mutate: func(c *Config) {
			c.Sync.Guard = "redis"
		}, wantErr: "sync.redis.addr"},
		{name: "telegram without token", mutate: func(c *Config) {
			c.Transport.Kind = "telegram"
		}, wantErr: "transport.telegram.token"},
		{name: "kafka without topic", mutate: func(c *Config) {
			c.Transport.Kind = "kafka"
			c.Transport.Kafka.Brokers = []string{"localhost:9092"}
		}, wantErr: "transport.kafka"},
		{name: "kafka bad broker", mutate: func(c *Config) {
			c.Transport.Kafka.Brokers = []string{"no port"}
		}, wantErr: "hostname_port"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			tt.mutate(cfg)
			err := Validate(context.Background(), cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := baseConfig()
	newCfg := baseConfig()
	newCfg.Logging.Level = "debug"

	changed, _, restart := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "logging" || restart {
		t.Fatalf("changed = %v restart = %v", changed, restart)
	}

	newCfg.Feeds["waiver"] = FeedConfig{Enabled: true, Schedules: []string{"@hourly"}}
	newCfg.Transport.Telegram.Token = "secret"
	changed, attrs, restart := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "feeds,logging,transport" || !restart {
		t.Fatalf("changed = %v restart = %v", changed, restart)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("negative: err = %v", err)
	}
	if _, err := ParseDurationField("x", "soon"); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("garbage: err = %v", err)
	}
	if d, err := ParseDurationField("x", "30d"); err != nil || d != 30*24*time.Hour {
		t.Fatalf("days = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("default = %v, %v", d, err)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	path := writeFile(t, "config.json", `{"storage":{"driver":"memory"},"source":{"base_url":"https://a.example.com"}}`)
	m := NewConfigManager(path)
	m.SetValidator(Validate)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	updates := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	// Invalid content is rejected and never published.
	if err := os.WriteFile(path, []byte(`{"storage":{"driver":"mongo"},"source":{"base_url":"https://a.example.com"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-updates:
		t.Fatalf("invalid config published: %+v", cfg.Storage)
	case <-time.After(600 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"},"storage":{"driver":"memory"},"source":{"base_url":"https://a.example.com"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-updates:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("level = %q", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no update published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("update not committed")
	}

	cancel()
	<-done
}
