package outbox

import (
	"context"
	"time"

	"leaguewatch/internal/feed"
)

// Field is one name/value line of a rendered message.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Content is the rendered, transport-neutral body of a message.
type Content struct {
	Title  string  `json:"title,omitempty"`
	Body   string  `json:"body"`
	URL    string  `json:"url,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
}

// Message is one staged notification for a single destination.
//
// Once stored, only the delivery side sets SentAt or FailedAt. A message
// with FailedAt set is dead: it is never pending again.
type Message struct {
	ID         string
	GuildID    string
	ChannelID  string
	Content    Content
	LeagueID   string
	Type       feed.Type
	EventAt    *time.Time
	CreatedAt  time.Time
	SentAt     *time.Time
	FailedAt   *time.Time
	FailReason string
}

// SortTime is the event time when present, else the creation time.
func (m Message) SortTime() time.Time {
	if m.EventAt != nil {
		return *m.EventAt
	}
	return m.CreatedAt
}

// Store is the durable staging area.
type Store interface {
	InsertMessages(ctx context.Context, msgs []Message) error
	// PendingMessages returns messages neither sent nor failed, ordered by
	// SortTime then guild.
	PendingMessages(ctx context.Context, limit int) ([]Message, error)
	MarkSent(ctx context.Context, ids []string, at time.Time) error
	// MarkFailed sets messages aside for good, e.g. when the destination no
	// longer exists.
	MarkFailed(ctx context.Context, ids []string, at time.Time, reason string) error
}
