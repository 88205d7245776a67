package notifier

import "time"

// Config controls the delivery drainer.
type Config struct {
	Enabled       bool
	Interval      time.Duration
	BatchSize     int
	Workers       int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// Result summarizes one drain pass.
type Result struct {
	Loaded  int
	Sent    int
	Failed  int
	Blocked int // queued behind a failed message of the same destination
	Dead    int // rejected by the transport for good, never retried
	Took    time.Duration
}

// DeliveryEvent is published on the event bus for each send outcome.
type DeliveryEvent struct {
	MessageID string    `json:"message_id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	Transport string    `json:"transport"`
	Ref       string    `json:"ref,omitempty"`
	Attempts  int       `json:"attempts"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
