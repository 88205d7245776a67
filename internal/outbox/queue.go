package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Queue stages rendered messages. It never delivers anything.
type Queue struct {
	store Store
	now   func() time.Time
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

// Enqueue appends msgs and returns how many were staged. An empty slice is
// a no-op. Missing ids and creation times are filled in; SentAt is cleared.
func (q *Queue) Enqueue(ctx context.Context, msgs []Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	now := q.now().UTC()
	staged := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if m.GuildID == "" || m.ChannelID == "" {
			return 0, errors.Newf("message %s: destination required", m.ID)
		}
		m.SentAt = nil
		staged[i] = m
	}
	if err := q.store.InsertMessages(ctx, staged); err != nil {
		return 0, errors.Wrap(err, "stage messages")
	}
	return len(staged), nil
}
