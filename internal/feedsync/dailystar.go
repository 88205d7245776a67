package feedsync

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/outbox"
	"leaguewatch/internal/watcher"
	logx "leaguewatch/pkg/logx"
)

// dailyStars runs at most once per DailyStarInterval per league and always
// announces the latest day only, one message per team.
func (s *leagueSync) dailyStars(ctx context.Context) (Outcome, error) {
	now := s.e.now()
	cur, found, err := s.e.deps.Cursors.LoadCursor(ctx, s.lg.ID, s.t)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "load cursor")
	}
	if found && !cur.Timestamp.IsZero() && now.Sub(cur.Timestamp) < s.e.cfg.DailyStarInterval {
		return Outcome{Status: StatusThrottled}, nil
	}

	items, supported, err := s.e.fetch(ctx, s.lg, s.t)
	if err != nil {
		return Outcome{}, err
	}
	if !supported {
		return Outcome{Status: StatusUnsupported}, nil
	}
	out := Outcome{Status: StatusSynced, Fetched: len(items)}

	groups, order := groupStars(latestDay(items))
	for _, ext := range order {
		if ctx.Err() != nil {
			out.Status = StatusCanceled
			break
		}
		stars := groups[ext]
		n, err := s.announceStars(ctx, ext, stars)
		out.Messages += n
		if err != nil && ctx.Err() != nil {
			out.Status = StatusCanceled
			break
		}
		if err != nil {
			out.Skipped += len(stars)
			s.log.Warn("daily stars skipped", logx.String("ext", ext), logx.Err(err))
			continue
		}
		out.Processed += len(stars)
	}

	if out.Status == StatusCanceled && out.Messages == 0 {
		// Nothing staged yet; the next run retries the whole day.
		return out, nil
	}
	if err := s.saveCursor(ctx, feed.Cursor{Timestamp: now.UTC()}); err != nil {
		return out, err
	}
	return out, nil
}

func (s *leagueSync) announceStars(ctx context.Context, ext string, stars []*feed.DailyStar) (int, error) {
	team, err := s.r.Resolve(s.lg.ID, ext)
	if err != nil {
		return 0, err
	}
	dests, err := s.e.deps.Matcher.Match(ctx, watcher.Query{
		LeagueIDs: []string{s.lg.ID},
		TeamIDs:   []string{team.ID},
		Types:     []feed.Type{s.t},
	})
	if err != nil {
		return 0, errors.Wrap(err, "match watchers")
	}
	if len(dests) == 0 {
		return 0, nil
	}
	content := renderStars(view{League: s.lg, Team: &team, TeamExt: ext, Names: s.teamNames()}, stars)
	at := stars[0].OccurredAt()
	msgs := make([]outbox.Message, 0, len(dests))
	for _, d := range dests {
		msgs = append(msgs, outbox.Message{
			GuildID:   d.GuildID,
			ChannelID: d.ChannelID,
			Content:   content,
			LeagueID:  s.lg.ID,
			Type:      s.t,
			EventAt:   &at,
		})
	}
	return s.enqueue(ctx, msgs)
}

// latestDay keeps the stars of the most recent UTC calendar day.
func latestDay(items []feed.Item) []*feed.DailyStar {
	var (
		day   time.Time
		stars []*feed.DailyStar
	)
	for _, it := range items {
		ds, ok := it.(*feed.DailyStar)
		if !ok {
			continue
		}
		d := ds.OccurredAt().UTC().Truncate(24 * time.Hour)
		switch {
		case d.After(day):
			day = d
			stars = append(stars[:0], ds)
		case d.Equal(day):
			stars = append(stars, ds)
		}
	}
	return stars
}

// groupStars buckets stars by team, each bucket ranked ascending. Teams are
// returned in order of their best rank.
func groupStars(stars []*feed.DailyStar) (map[string][]*feed.DailyStar, []string) {
	groups := map[string][]*feed.DailyStar{}
	var order []string
	for _, ds := range stars {
		if _, ok := groups[ds.TeamExtID]; !ok {
			order = append(order, ds.TeamExtID)
		}
		groups[ds.TeamExtID] = append(groups[ds.TeamExtID], ds)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Rank < g[j].Rank })
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := groups[order[i]][0].Rank, groups[order[j]][0].Rank
		if a != b {
			return a < b
		}
		return order[i] < order[j]
	})
	return groups, order
}
