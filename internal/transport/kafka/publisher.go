// Package kafka publishes outbox messages to a Kafka topic for downstream
// bots to deliver.
package kafka

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"leaguewatch/internal/outbox"
	"leaguewatch/internal/transport"
)

type Config struct {
	Brokers []string
	Topic   string
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements transport.Sender. Messages are keyed by destination
// so one channel's messages stay ordered within a partition.
type Publisher struct {
	writer writer
	topic  string
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, topic: cfg.Topic}, nil
}

// envelope is the wire payload.
type envelope struct {
	ID        string         `json:"id"`
	GuildID   string         `json:"guild_id"`
	ChannelID string         `json:"channel_id"`
	LeagueID  string         `json:"league_id,omitempty"`
	Type      string         `json:"type,omitempty"`
	EventAt   *time.Time     `json:"event_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Content   outbox.Content `json:"content"`
	Text      string         `json:"text"`
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Send(ctx context.Context, m outbox.Message) (transport.Receipt, error) {
	if m.GuildID == "" || m.ChannelID == "" {
		return transport.Receipt{}, errors.Wrapf(transport.ErrInvalidTarget, "message %s", m.ID)
	}
	value, err := sonic.Marshal(envelope{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		LeagueID:  m.LeagueID,
		Type:      string(m.Type),
		EventAt:   m.EventAt,
		CreatedAt: m.CreatedAt,
		Content:   m.Content,
		Text:      transport.PlainText(m.Content),
	})
	if err != nil {
		return transport.Receipt{}, errors.Wrap(err, "marshal message")
	}
	msg := kafka.Message{
		Key:   []byte(m.GuildID + "/" + m.ChannelID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "message-id", Value: []byte(m.ID)},
			{Key: "feed-type", Value: []byte(m.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return transport.Receipt{}, errors.Wrap(err, "kafka write")
	}
	return transport.Receipt{Ref: p.topic + "/" + m.ID}, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
