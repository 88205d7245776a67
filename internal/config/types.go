package config

// Config is the whole operator surface. Unknown keys are rejected at load.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig         `json:"logging"`
	Scheduler  SchedulerConfig       `json:"scheduler"`
	Storage    StorageConfig         `json:"storage"`
	Source     SourceConfig          `json:"source"`
	Feeds      map[string]FeedConfig `json:"feeds" validate:"dive"`
	DailyStars DailyStarsConfig      `json:"daily_stars"`
	Sync       SyncConfig            `json:"sync"`
	Catalog    CatalogConfig         `json:"catalog"`
	Watchers   WatchersConfig        `json:"watchers"`
	Delivery   DeliveryConfig        `json:"delivery"`
	Transport  TransportConfig       `json:"transport"`
	Debug      DebugConfig           `json:"debug"`
}

type LoggingConfig struct {
	Level   string       `json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

// LoggingAlert forwards high-severity lines to the telegram alert chat.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level" validate:"omitempty,oneof=warn error"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

type SchedulerConfig struct {
	// Timezone every recurrence is evaluated in. Empty means Local.
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig selects the persistence backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./leaguewatch.db" }
type StorageConfig struct {
	Driver       string `json:"driver" validate:"required,oneof=memory sqlite postgres"`
	Path         string `json:"path,omitempty" validate:"required_if=Driver sqlite"`
	DSN          string `json:"dsn,omitempty" validate:"required_if=Driver postgres"`
	BusyTimeout  string `json:"busy_timeout,omitempty"` // sqlite
	MaxOpenConns int    `json:"max_open_conns,omitempty" validate:"gte=0"`
}

type SourceConfig struct {
	BaseURL    string `json:"base_url" validate:"required,url"`
	Token      string `json:"token,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
	Backoff    string `json:"backoff,omitempty"`
}

// FeedConfig schedules one feed type. Keys of Config.Feeds are feed type
// names such as "trade" or "daily_star".
type FeedConfig struct {
	Enabled   bool     `json:"enabled"`
	Schedules []string `json:"schedules" validate:"required_if=Enabled true,dive,required"`
	Timeout   string   `json:"timeout,omitempty"`
}

type DailyStarsConfig struct {
	// Interval is the minimum time between two daily star announcements.
	Interval string `json:"interval,omitempty"`
}

type SyncConfig struct {
	Guard          string      `json:"guard,omitempty" validate:"omitempty,oneof=local redis"`
	Redis          RedisConfig `json:"redis"`
	PersistTimeout string      `json:"persist_timeout,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty" validate:"gte=0"`
	Prefix   string `json:"prefix,omitempty"`
	TTL      string `json:"ttl,omitempty"`
}

type CatalogConfig struct {
	Schedules   []string `json:"schedules,omitempty" validate:"dive,required"`
	Concurrency int      `json:"concurrency,omitempty" validate:"gte=0,lte=64"`
	// RefreshOnStart runs one refresh before the first sync.
	RefreshOnStart bool `json:"refresh_on_start,omitempty"`
}

type WatchersConfig struct {
	Retention      string   `json:"retention,omitempty"`
	PruneSchedules []string `json:"prune_schedules,omitempty" validate:"dive,required"`
}

// DeliveryConfig controls the outbox drainer.
//
// Defaults (when fields are omitted/zero):
//   - interval: "5s"
//   - batch_size: 200
//   - workers: 4
//   - rate_per_sec: 20
//   - retry_base: "500ms"
//   - retry_max_delay: "10s"
//   - send_timeout: "15s"
type DeliveryConfig struct {
	Enabled       bool   `json:"enabled"`
	Interval      string `json:"interval,omitempty"`
	BatchSize     int    `json:"batch_size,omitempty" validate:"gte=0"`
	Workers       int    `json:"workers,omitempty" validate:"gte=0,lte=256"`
	RatePerSec    int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
	RetryMax      int    `json:"retry_max,omitempty" validate:"gte=0,lte=20"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

type TransportConfig struct {
	// Kind picks the delivery transport. Empty means "log".
	Kind     string         `json:"kind,omitempty" validate:"omitempty,oneof=log telegram kafka"`
	Telegram TelegramConfig `json:"telegram"`
	Kafka    KafkaConfig    `json:"kafka"`
}

type TelegramConfig struct {
	Token          string `json:"token,omitempty"`
	AlertChatID    int64  `json:"alert_chat_id,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers,omitempty" validate:"dive,hostname_port"`
	Topic   string   `json:"topic,omitempty"`
}

// DebugConfig controls the optional debug HTTP server (/healthz, /status
// and pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}
