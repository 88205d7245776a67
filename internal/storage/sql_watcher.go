package storage

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/watcher"
)

func (s *sqlStore) FindWatchers(ctx context.Context, f watcher.Filter) ([]watcher.Watcher, error) {
	var (
		where []string
		args  []any
	)
	if len(f.GuildIDs) > 0 {
		where = append(where, "guild_id IN (?)")
		args = append(args, f.GuildIDs)
	}
	if len(f.LeagueIDs) > 0 {
		where = append(where, "league_id IN (?)")
		args = append(args, f.LeagueIDs)
	}
	if len(f.Types) > 0 {
		types := make([]string, 0, len(f.Types))
		for _, t := range f.Types {
			types = append(types, string(t))
		}
		where = append(where, "feed_type IN (?)")
		args = append(args, types)
	}
	if !f.IncludeArchived {
		where = append(where, "archived_at IS NULL")
	}

	query := `SELECT id, guild_id, league_id, team_id, feed_type, channel_id, created_at, archived_at FROM watchers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY guild_id, created_at, id"

	var (
		q   = s.q(query)
		err error
	)
	if len(args) > 0 {
		q, args, err = s.in(query, args...)
		if err != nil {
			return nil, errors.Wrap(err, "build watcher query")
		}
	}

	var rows []watcherRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "select watchers")
	}
	out := make([]watcher.Watcher, 0, len(rows))
	for _, r := range rows {
		out = append(out, watcher.Watcher{
			ID:         r.ID,
			GuildID:    r.GuildID,
			LeagueID:   r.LeagueID,
			TeamID:     fromNullString(r.TeamID),
			Type:       feed.Type(r.FeedType),
			ChannelID:  fromNullString(r.ChannelID),
			CreatedAt:  fromMillis(r.CreatedAt),
			ArchivedAt: fromNullMillis(r.ArchivedAt),
		})
	}
	return out, nil
}

func (s *sqlStore) GuildDefaults(ctx context.Context, guildIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(guildIDs))
	if len(guildIDs) == 0 {
		return out, nil
	}
	q, args, err := s.in(`SELECT id, default_channel_id FROM guilds WHERE id IN (?)`, guildIDs)
	if err != nil {
		return nil, errors.Wrap(err, "build guild query")
	}
	var rows []guildRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "select guilds")
	}
	for _, r := range rows {
		if r.DefaultChannelID != "" {
			out[r.ID] = r.DefaultChannelID
		}
	}
	return out, nil
}

func (s *sqlStore) PruneArchived(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM watchers WHERE archived_at IS NOT NULL AND archived_at < ?`), before.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "prune watchers")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqlStore) SaveWatcher(ctx context.Context, w watcher.Watcher) error {
	if w.ID == "" || w.GuildID == "" || w.LeagueID == "" || w.Type == "" {
		return errors.New("watcher id, guild, league and type are required")
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO watchers(id, guild_id, league_id, team_id, feed_type, channel_id, created_at, archived_at)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET guild_id=excluded.guild_id, league_id=excluded.league_id,
			team_id=excluded.team_id, feed_type=excluded.feed_type, channel_id=excluded.channel_id,
			archived_at=excluded.archived_at`),
		w.ID, w.GuildID, w.LeagueID, nullString(w.TeamID), string(w.Type), nullString(w.ChannelID),
		w.CreatedAt.UnixMilli(), nullMillis(w.ArchivedAt),
	)
	return errors.Wrap(err, "upsert watcher")
}

// ArchiveWatcher soft-deletes a watcher. It returns ErrNotFound for unknown
// or already archived ids.
func (s *sqlStore) ArchiveWatcher(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE watchers SET archived_at = ? WHERE id = ? AND archived_at IS NULL`), at.UnixMilli(), id)
	if err != nil {
		return errors.Wrap(err, "archive watcher")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "watcher %s", id)
	}
	return nil
}

func (s *sqlStore) SaveGuild(ctx context.Context, g watcher.Guild) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO guilds(id, default_channel_id) VALUES(?,?)
		ON CONFLICT(id) DO UPDATE SET default_channel_id=excluded.default_channel_id`),
		g.ID, g.DefaultChannelID,
	)
	return errors.Wrap(err, "upsert guild")
}
