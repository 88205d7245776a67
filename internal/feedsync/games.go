package feedsync

import (
	"context"

	"github.com/cockroachdb/errors"

	"leaguewatch/internal/feed"
	logx "leaguewatch/pkg/logx"
)

// games diffs each result against the last stored state for its game id.
// The first run stores everything and announces nothing.
func (s *leagueSync) games(ctx context.Context) (Outcome, error) {
	_, found, err := s.e.deps.Cursors.LoadCursor(ctx, s.lg.ID, s.t)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "load cursor")
	}
	prev, err := s.e.deps.Games.LoadGameStates(ctx, s.lg.ID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "load game states")
	}

	items, supported, err := s.e.fetch(ctx, s.lg, s.t)
	if err != nil {
		return Outcome{}, err
	}
	if !supported {
		return Outcome{Status: StatusUnsupported}, nil
	}
	sortItems(items, s.st.less)
	out := Outcome{Status: StatusSynced, Fetched: len(items)}
	if !found {
		out.Status = StatusSeeded
	}

	pctx, cancel := s.e.persistCtx(ctx)
	defer cancel()

	var last string
	for _, it := range items {
		g, ok := it.(*feed.Game)
		if !ok || g.GameID == "" {
			continue
		}
		if ctx.Err() != nil {
			out.Status = StatusCanceled
			break
		}
		state := g.State(s.lg.ID)
		if old, seen := prev[g.GameID]; seen && !old.Changed(state) {
			last = it.Fingerprint()
			continue
		}
		if found {
			n, err := s.announce(ctx, it)
			out.Messages += n
			if err != nil && ctx.Err() != nil {
				out.Status = StatusCanceled
				break
			}
			if err != nil {
				out.Skipped++
				s.log.Warn("game skipped", logx.String("game", g.GameID), logx.Err(err))
			} else {
				out.Processed++
			}
		}
		if err := s.e.deps.Games.SaveGameState(pctx, state); err != nil {
			return out, errors.Wrapf(err, "save game state %s", g.GameID)
		}
		last = it.Fingerprint()
	}

	out.Cursor = last
	if err := s.saveCursor(ctx, feed.Cursor{Hash: last}); err != nil {
		return out, err
	}
	return out, nil
}
