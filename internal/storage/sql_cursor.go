package storage

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"leaguewatch/internal/feed"
)

func (s *sqlStore) LoadCursor(ctx context.Context, leagueID string, t feed.Type) (feed.Cursor, bool, error) {
	var r cursorRow
	err := s.db.GetContext(ctx, &r, s.q(`SELECT league_id, feed_type, hash, ts, updated_at FROM cursors WHERE league_id = ? AND feed_type = ?`), leagueID, string(t))
	if errors.Is(err, sql.ErrNoRows) {
		return feed.Cursor{}, false, nil
	}
	if err != nil {
		return feed.Cursor{}, false, errors.Wrap(err, "select cursor")
	}
	return feed.Cursor{
		LeagueID:  r.LeagueID,
		Type:      feed.Type(r.FeedType),
		Hash:      r.Hash,
		Timestamp: fromMillis(r.TS),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}, true, nil
}

func (s *sqlStore) SaveCursor(ctx context.Context, c feed.Cursor) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO cursors(league_id, feed_type, hash, ts, updated_at) VALUES(?,?,?,?,?)
		ON CONFLICT(league_id, feed_type) DO UPDATE SET hash=excluded.hash, ts=excluded.ts, updated_at=excluded.updated_at`),
		c.LeagueID, string(c.Type), c.Hash, millis(c.Timestamp), millis(c.UpdatedAt),
	)
	return errors.Wrap(err, "upsert cursor")
}

func (s *sqlStore) DeleteCursors(ctx context.Context, leagueID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM cursors WHERE league_id = ?`), leagueID)
	return errors.Wrap(err, "delete cursors")
}

func (s *sqlStore) LoadGameStates(ctx context.Context, leagueID string) (map[string]feed.GameState, error) {
	var rows []gameStateRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT league_id, game_id, occurred_at, home_score, away_score, overtime, shootout
		FROM game_states WHERE league_id = ?`), leagueID); err != nil {
		return nil, errors.Wrap(err, "select game states")
	}
	out := make(map[string]feed.GameState, len(rows))
	for _, r := range rows {
		out[r.GameID] = feed.GameState{
			LeagueID:   r.LeagueID,
			GameID:     r.GameID,
			OccurredAt: fromMillis(r.OccurredAt),
			HomeScore:  r.HomeScore,
			AwayScore:  r.AwayScore,
			Overtime:   r.Overtime != 0,
			Shootout:   r.Shootout != 0,
		}
	}
	return out, nil
}

func (s *sqlStore) SaveGameState(ctx context.Context, g feed.GameState) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO game_states(league_id, game_id, occurred_at, home_score, away_score, overtime, shootout)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(league_id, game_id) DO UPDATE SET occurred_at=excluded.occurred_at,
			home_score=excluded.home_score, away_score=excluded.away_score,
			overtime=excluded.overtime, shootout=excluded.shootout`),
		g.LeagueID, g.GameID, millis(g.OccurredAt), g.HomeScore, g.AwayScore, boolInt(g.Overtime), boolInt(g.Shootout),
	)
	return errors.Wrap(err, "upsert game state")
}

func (s *sqlStore) DeleteGameStates(ctx context.Context, leagueID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM game_states WHERE league_id = ?`), leagueID)
	return errors.Wrap(err, "delete game states")
}
