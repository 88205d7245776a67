package feedsync

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/league"
	"leaguewatch/internal/outbox"
	"leaguewatch/internal/watcher"
	logx "leaguewatch/pkg/logx"
)

// leagueSync carries the state of one (league, feed type) sync.
type leagueSync struct {
	e   *Engine
	lg  league.League
	t   feed.Type
	st  strategy
	r   *league.Resolver
	log logx.Logger

	names map[string]string
}

func (s *leagueSync) teamNames() map[string]string {
	if s.names != nil {
		return s.names
	}
	s.names = make(map[string]string, len(s.lg.Teams))
	for _, lt := range s.lg.Teams {
		if _, ok := s.names[lt.ExternalID]; !ok {
			s.names[lt.ExternalID] = lt.Team.Name
		}
	}
	return s.names
}

func (s *leagueSync) saveCursor(ctx context.Context, c feed.Cursor) error {
	c.LeagueID, c.Type = s.lg.ID, s.t
	c.UpdatedAt = s.e.now().UTC()
	pctx, cancel := s.e.persistCtx(ctx)
	defer cancel()
	if err := s.e.deps.Cursors.SaveCursor(pctx, c); err != nil {
		return errors.Wrap(err, "save cursor")
	}
	return nil
}

// hashed handles both hash-cursor and hash+timestamp feeds.
func (s *leagueSync) hashed(ctx context.Context) (Outcome, error) {
	cur, found, err := s.e.deps.Cursors.LoadCursor(ctx, s.lg.ID, s.t)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "load cursor")
	}

	items, supported, err := s.e.fetch(ctx, s.lg, s.t)
	if err != nil {
		return Outcome{}, err
	}
	if !supported {
		return Outcome{Status: StatusUnsupported, Cursor: cur.Hash}, nil
	}
	sortItems(items, s.st.less)
	out := Outcome{Fetched: len(items)}

	if !found {
		seed := feed.Cursor{}
		if n := len(items); n > 0 {
			seed.Hash = items[n-1].Fingerprint()
			if s.st.cursor == cursorHashTime {
				seed.Timestamp = latest(items)
			}
		}
		if err := s.saveCursor(ctx, seed); err != nil {
			return Outcome{}, err
		}
		out.Status = StatusSeeded
		out.Cursor = seed.Hash
		return out, nil
	}

	if s.st.cursor == cursorHashTime && !cur.Timestamp.IsZero() {
		kept := items[:0]
		for _, it := range items {
			if !it.OccurredAt().Before(cur.Timestamp) {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	items = trimThrough(items, cur.Hash)

	out.Status = StatusSynced
	next := cur
	for _, it := range items {
		if ctx.Err() != nil {
			out.Status = StatusCanceled
			break
		}
		n, err := s.announce(ctx, it)
		out.Messages += n
		if err != nil && ctx.Err() != nil {
			// Not a poison item: leave the cursor before it.
			out.Status = StatusCanceled
			break
		}
		if err != nil {
			out.Skipped++
			s.log.Warn("item skipped",
				logx.String("hash", it.Fingerprint()),
				logx.Time("at", it.OccurredAt()),
				logx.Err(err),
			)
		} else {
			out.Processed++
		}
		next.Hash = it.Fingerprint()
		if s.st.cursor == cursorHashTime && it.OccurredAt().After(next.Timestamp) {
			next.Timestamp = it.OccurredAt()
		}
	}

	out.Cursor = next.Hash
	if next.Hash == cur.Hash && next.Timestamp.Equal(cur.Timestamp) {
		return out, nil
	}
	if err := s.saveCursor(ctx, next); err != nil {
		return out, err
	}
	return out, nil
}

func latest(items []feed.Item) time.Time {
	var max time.Time
	for _, it := range items {
		if it.OccurredAt().After(max) {
			max = it.OccurredAt()
		}
	}
	return max
}

// announce renders it for every watched team it references and enqueues the
// resulting messages. A destination reached through several teams receives
// the item once, rendered from the first team's perspective.
func (s *leagueSync) announce(ctx context.Context, it feed.Item) (int, error) {
	refs := it.TeamRefs()
	type target struct {
		ext  string
		team *league.Team
	}
	var targets []target
	if len(refs) == 0 {
		targets = append(targets, target{})
	}
	for _, ext := range refs {
		team, err := s.r.Resolve(s.lg.ID, ext)
		if err != nil {
			if s.r.HasAffiliate(s.lg, ext) {
				s.log.Debug("affiliate team reference skipped", logx.String("ext", ext))
			} else {
				s.log.Warn("unknown team reference", logx.String("ext", ext), logx.String("hash", it.Fingerprint()))
			}
			continue
		}
		targets = append(targets, target{ext: ext, team: &team})
	}
	if len(targets) == 0 {
		return 0, errors.Wrapf(league.ErrTeamNotFound, "no team of %v resolves in league %s", refs, s.lg.ID)
	}

	at := it.OccurredAt()
	seen := map[string]struct{}{}
	var msgs []outbox.Message
	for _, tg := range targets {
		q := watcher.Query{LeagueIDs: []string{s.lg.ID}, Types: []feed.Type{s.t}}
		if tg.team != nil {
			q.TeamIDs = []string{tg.team.ID}
		}
		dests, err := s.e.deps.Matcher.Match(ctx, q)
		if err != nil {
			return 0, errors.Wrap(err, "match watchers")
		}
		var (
			content  outbox.Content
			rendered bool
		)
		for _, d := range dests {
			if _, dup := seen[d.Key()]; dup {
				continue
			}
			seen[d.Key()] = struct{}{}
			if !rendered {
				content = s.st.render(view{League: s.lg, Team: tg.team, TeamExt: tg.ext, Names: s.teamNames()}, it)
				rendered = true
			}
			msgs = append(msgs, outbox.Message{
				GuildID:   d.GuildID,
				ChannelID: d.ChannelID,
				Content:   content,
				LeagueID:  s.lg.ID,
				Type:      s.t,
				EventAt:   &at,
			})
		}
	}
	return s.enqueue(ctx, msgs)
}

func (s *leagueSync) enqueue(ctx context.Context, msgs []outbox.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	n, err := s.e.deps.Queue.Enqueue(ctx, msgs)
	if err != nil {
		return 0, errors.Wrap(err, "enqueue")
	}
	return n, nil
}
