package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	inserted []Message
	calls    int
	err      error
}

func (m *memStore) InsertMessages(_ context.Context, msgs []Message) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, msgs...)
	return nil
}

func (m *memStore) PendingMessages(context.Context, int) ([]Message, error) { return nil, nil }
func (m *memStore) MarkSent(context.Context, []string, time.Time) error     { return nil }
func (m *memStore) MarkFailed(context.Context, []string, time.Time, string) error {
	return nil
}

func TestEnqueueEmptyIsNoop(t *testing.T) {
	st := &memStore{}
	n, err := NewQueue(st).Enqueue(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, st.calls)
}

func TestEnqueueFillsDefaults(t *testing.T) {
	st := &memStore{}
	q := NewQueue(st)
	fixed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }
	sent := fixed

	n, err := q.Enqueue(context.Background(), []Message{
		{GuildID: "g1", ChannelID: "c1", Content: Content{Body: "a"}, SentAt: &sent},
		{ID: "keep", GuildID: "g2", ChannelID: "c2", Content: Content{Body: "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, st.inserted, 2)
	assert.NotEmpty(t, st.inserted[0].ID)
	assert.Equal(t, fixed, st.inserted[0].CreatedAt)
	assert.Nil(t, st.inserted[0].SentAt)
	assert.Equal(t, "keep", st.inserted[1].ID)
}

func TestEnqueueRejectsMissingDestination(t *testing.T) {
	st := &memStore{}
	_, err := NewQueue(st).Enqueue(context.Background(), []Message{{GuildID: "g1"}})
	require.Error(t, err)
	assert.Zero(t, st.calls)
}

func TestEnqueueWrapsStoreError(t *testing.T) {
	boom := errors.New("disk full")
	st := &memStore{err: boom}
	n, err := NewQueue(st).Enqueue(context.Background(), []Message{{GuildID: "g", ChannelID: "c"}})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, n)
}

func TestSortTime(t *testing.T) {
	created := time.Unix(100, 0)
	event := time.Unix(50, 0)
	assert.Equal(t, created, Message{CreatedAt: created}.SortTime())
	assert.Equal(t, event, Message{CreatedAt: created, EventAt: &event}.SortTime())
}
