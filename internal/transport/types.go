// Package transport delivers staged outbox messages to an external channel.
package transport

import (
	"context"
	"errors"
	"strings"

	"leaguewatch/internal/outbox"
	logx "leaguewatch/pkg/logx"
)

// ErrInvalidTarget means the destination cannot be addressed by the
// transport. Retrying will not help.
var ErrInvalidTarget = errors.New("invalid delivery target")

// Receipt identifies a delivered message on the remote side.
type Receipt struct {
	Ref string
}

// Sender delivers one message to its (guild, channel) destination.
type Sender interface {
	Name() string
	Send(ctx context.Context, m outbox.Message) (Receipt, error)
}

// PlainText renders content without markup.
func PlainText(c outbox.Content) string {
	var b strings.Builder
	if c.Title != "" {
		b.WriteString(c.Title)
		b.WriteString("\n")
	}
	b.WriteString(c.Body)
	for _, f := range c.Fields {
		b.WriteString("\n")
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	if c.URL != "" {
		b.WriteString("\n")
		b.WriteString(c.URL)
	}
	if c.Footer != "" {
		b.WriteString("\n- ")
		b.WriteString(c.Footer)
	}
	return strings.TrimSpace(b.String())
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	log logx.Logger
}

func NewLogSender(log logx.Logger) *LogSender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSender{log: log.With(logx.String("comp", "transport.log"))}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, m outbox.Message) (Receipt, error) {
	s.log.Info("message",
		logx.String("id", m.ID),
		logx.String("guild", m.GuildID),
		logx.String("channel", m.ChannelID),
		logx.String("type", string(m.Type)),
		logx.String("text", PlainText(m.Content)),
	)
	return Receipt{Ref: m.ID}, nil
}
