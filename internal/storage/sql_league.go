package storage

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"leaguewatch/internal/league"
)

func (s *sqlStore) AllLeagues(ctx context.Context) ([]league.League, error) {
	var rows []leagueRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, site_id, external_id, name, affiliate_ids, tags, season_id, updated_at FROM leagues ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "select leagues")
	}
	var teams []leagueTeamRow
	if err := s.db.SelectContext(ctx, &teams, `
		SELECT lt.league_id, lt.external_id, lt.team_id, t.name, t.short_name, t.logo_url
		FROM league_teams lt JOIN teams t ON t.id = lt.team_id
		ORDER BY lt.league_id, lt.position, lt.external_id`); err != nil {
		return nil, errors.Wrap(err, "select league teams")
	}
	byLeague := map[string][]league.LeagueTeam{}
	for _, t := range teams {
		byLeague[t.LeagueID] = append(byLeague[t.LeagueID], league.LeagueTeam{
			LeagueID:   t.LeagueID,
			ExternalID: t.ExternalID,
			Team:       league.Team{ID: t.TeamID, Name: t.Name, ShortName: t.ShortName, LogoURL: t.LogoURL},
		})
	}

	out := make([]league.League, 0, len(rows))
	for _, r := range rows {
		l := league.League{
			ID:         r.ID,
			SiteID:     r.SiteID,
			ExternalID: r.ExternalID,
			Name:       r.Name,
			Teams:      byLeague[r.ID],
			SeasonID:   fromNullString(r.SeasonID),
			UpdatedAt:  fromMillis(r.UpdatedAt),
		}
		if err := decodeList(r.AffiliateIDs, &l.AffiliateIDs); err != nil {
			return nil, errors.Wrapf(err, "league %s affiliate_ids", r.ID)
		}
		if err := decodeList(r.Tags, &l.Tags); err != nil {
			return nil, errors.Wrapf(err, "league %s tags", r.ID)
		}
		out = append(out, l)
	}
	return out, nil
}

// SaveLeague upserts the league and replaces its roster.
func (s *sqlStore) SaveLeague(ctx context.Context, l league.League) error {
	if l.ID == "" {
		return errors.New("league id is required")
	}
	aff, err := encodeList(l.AffiliateIDs)
	if err != nil {
		return err
	}
	tags, err := encodeList(l.Tags)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO leagues(id, site_id, external_id, name, affiliate_ids, tags, season_id, updated_at)
			VALUES(?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET site_id=excluded.site_id, external_id=excluded.external_id,
				name=excluded.name, affiliate_ids=excluded.affiliate_ids, tags=excluded.tags,
				season_id=excluded.season_id, updated_at=excluded.updated_at`),
			l.ID, l.SiteID, l.ExternalID, l.Name, aff, tags, nullString(l.SeasonID), millis(l.UpdatedAt),
		); err != nil {
			return errors.Wrap(err, "upsert league")
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM league_teams WHERE league_id = ?`), l.ID); err != nil {
			return errors.Wrap(err, "clear league teams")
		}
		for i, lt := range l.Teams {
			if lt.Team.ID == "" || lt.ExternalID == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, s.q(`
				INSERT INTO teams(id, name, short_name, logo_url) VALUES(?,?,?,?)
				ON CONFLICT(id) DO UPDATE SET name=excluded.name, short_name=excluded.short_name, logo_url=excluded.logo_url`),
				lt.Team.ID, lt.Team.Name, lt.Team.ShortName, lt.Team.LogoURL,
			); err != nil {
				return errors.Wrapf(err, "upsert team %s", lt.Team.ID)
			}
			if _, err := tx.ExecContext(ctx, s.q(`
				INSERT INTO league_teams(league_id, external_id, team_id, position) VALUES(?,?,?,?)
				ON CONFLICT(league_id, external_id) DO UPDATE SET team_id=excluded.team_id, position=excluded.position`),
				l.ID, lt.ExternalID, lt.Team.ID, i,
			); err != nil {
				return errors.Wrapf(err, "insert league team %s", lt.ExternalID)
			}
		}
		return nil
	})
}

func encodeList(v []string) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	s, err := sonic.MarshalString(v)
	if err != nil {
		return "", errors.Wrap(err, "encode list")
	}
	return s, nil
}

func decodeList(s string, dst *[]string) error {
	if s == "" || s == "[]" {
		return nil
	}
	return sonic.UnmarshalString(s, dst)
}
