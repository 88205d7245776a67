package feedsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/outbox"
)

func star(leagueID, team, player string, rank int, at time.Time) *feed.DailyStar {
	return &feed.DailyStar{Meta: feed.Meta{LeagueID: leagueID, At: at}, TeamExtID: team, PlayerName: player, Rank: rank}
}

func TestDailyStarsThrottle(t *testing.T) {
	t.Parallel()
	h := newHarness(testLeague("L1", "10"))
	h.matcher.watch("L1", "L1-10", dest("g1", "c1"))
	h.cursors.set(feed.Cursor{LeagueID: "L1", Type: feed.TypeDailyStar, Timestamp: t0.Add(-17 * time.Hour)})
	h.source.items["L1"] = []feed.Item{star("L1", "10", "Ann", 1, t0)}

	rep := h.engine.Run(context.Background(), feed.TypeDailyStar)

	assert.Equal(t, StatusThrottled, rep.Outcomes[0].Status)
	assert.Equal(t, 0, h.source.calls["L1"])

	h.engine.now = func() time.Time { return t0.Add(time.Hour) }
	rep = h.engine.Run(context.Background(), feed.TypeDailyStar)

	assert.Equal(t, StatusSynced, rep.Outcomes[0].Status)
	assert.Equal(t, 1, h.queue.count())
	cur, _ := h.cursors.get("L1", feed.TypeDailyStar)
	assert.True(t, cur.Timestamp.Equal(t0.Add(time.Hour)))
}

func TestDailyStarsGroupedByTeamLatestDayOnly(t *testing.T) {
	t.Parallel()
	h := newHarness(testLeague("L1", "10", "20"))
	h.matcher.watch("L1", "L1-10", dest("g1", "c1"))
	h.matcher.watch("L1", "L1-20", dest("g2", "c2"))
	yesterday := t0.Add(-24 * time.Hour)
	h.source.items["L1"] = []feed.Item{
		star("L1", "10", "Old", 1, yesterday),
		star("L1", "20", "Cat", 2, t0),
		star("L1", "10", "Bob", 3, t0),
		star("L1", "10", "Ann", 1, t0),
	}

	rep := h.engine.Run(context.Background(), feed.TypeDailyStar)

	o := rep.Outcomes[0]
	assert.Equal(t, StatusSynced, o.Status, "first run is not a backlog seed")
	assert.Equal(t, 3, o.Processed)
	require.Len(t, h.queue.msgs, 2)
	assert.Equal(t, "g1", h.queue.msgs[0].GuildID)
	assert.Equal(t, "1. Ann\n3. Bob", h.queue.msgs[0].Content.Body)
	assert.Equal(t, "g2", h.queue.msgs[1].GuildID)
	assert.Equal(t, "2. Cat", h.queue.msgs[1].Content.Body)
}

func TestDailyStarsUnknownTeamSkipsGroup(t *testing.T) {
	t.Parallel()
	h := newHarness(testLeague("L1", "10"))
	h.matcher.watch("L1", "L1-10", dest("g1", "c1"))
	h.source.items["L1"] = []feed.Item{
		star("L1", "10", "Ann", 1, t0),
		star("L1", "99", "Ghost", 2, t0),
	}

	rep := h.engine.Run(context.Background(), feed.TypeDailyStar)

	o := rep.Outcomes[0]
	assert.Equal(t, 1, o.Processed)
	assert.Equal(t, 1, o.Skipped)
	assert.Equal(t, 1, h.queue.count())
	_, ok := h.cursors.get("L1", feed.TypeDailyStar)
	assert.True(t, ok)
}

func TestGroupStarsOrder(t *testing.T) {
	t.Parallel()
	groups, order := groupStars([]*feed.DailyStar{
		star("L1", "b", "x", 4, t0),
		star("L1", "a", "y", 2, t0),
		star("L1", "b", "z", 1, t0),
	})
	assert.Equal(t, []string{"b", "a"}, order)
	assert.Equal(t, 1, groups["b"][0].Rank)
}

func TestDailyStarsCanceledBeforeStagingRetriesNextRun(t *testing.T) {
	t.Parallel()
	h := newHarness(testLeague("L1", "10"))
	h.matcher.watch("L1", "L1-10", dest("g1", "c1"))
	h.source.items["L1"] = []feed.Item{star("L1", "10", "Ann", 1, t0)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.queue.fail = func([]outbox.Message) bool {
		cancel()
		return true
	}

	rep := h.engine.Run(ctx, feed.TypeDailyStar)

	o := rep.Outcomes[0]
	assert.Equal(t, StatusCanceled, o.Status)
	assert.Equal(t, 0, o.Skipped)
	_, ok := h.cursors.get("L1", feed.TypeDailyStar)
	assert.False(t, ok, "throttle not started for an unsent day")

	h.queue.fail = nil
	rep = h.engine.Run(context.Background(), feed.TypeDailyStar)
	assert.Equal(t, StatusSynced, rep.Outcomes[0].Status)
	assert.Equal(t, 1, h.queue.count())
}
