package storage

import "database/sql"

type leagueRow struct {
	ID           string         `db:"id"`
	SiteID       string         `db:"site_id"`
	ExternalID   string         `db:"external_id"`
	Name         string         `db:"name"`
	AffiliateIDs string         `db:"affiliate_ids"`
	Tags         string         `db:"tags"`
	SeasonID     sql.NullString `db:"season_id"`
	UpdatedAt    int64          `db:"updated_at"`
}

type leagueTeamRow struct {
	LeagueID   string `db:"league_id"`
	ExternalID string `db:"external_id"`
	TeamID     string `db:"team_id"`
	Name       string `db:"name"`
	ShortName  string `db:"short_name"`
	LogoURL    string `db:"logo_url"`
}

type cursorRow struct {
	LeagueID  string `db:"league_id"`
	FeedType  string `db:"feed_type"`
	Hash      string `db:"hash"`
	TS        int64  `db:"ts"`
	UpdatedAt int64  `db:"updated_at"`
}

type gameStateRow struct {
	LeagueID   string `db:"league_id"`
	GameID     string `db:"game_id"`
	OccurredAt int64  `db:"occurred_at"`
	HomeScore  int    `db:"home_score"`
	AwayScore  int    `db:"away_score"`
	Overtime   int    `db:"overtime"`
	Shootout   int    `db:"shootout"`
}

type watcherRow struct {
	ID         string         `db:"id"`
	GuildID    string         `db:"guild_id"`
	LeagueID   string         `db:"league_id"`
	TeamID     sql.NullString `db:"team_id"`
	FeedType   string         `db:"feed_type"`
	ChannelID  sql.NullString `db:"channel_id"`
	CreatedAt  int64          `db:"created_at"`
	ArchivedAt sql.NullInt64  `db:"archived_at"`
}

type guildRow struct {
	ID               string `db:"id"`
	DefaultChannelID string `db:"default_channel_id"`
}

type outboxRow struct {
	ID        string        `db:"id"`
	GuildID   string        `db:"guild_id"`
	ChannelID string        `db:"channel_id"`
	Content   string        `db:"content"`
	LeagueID  string        `db:"league_id"`
	FeedType  string        `db:"feed_type"`
	EventAt   sql.NullInt64 `db:"event_at"`
	CreatedAt int64         `db:"created_at"`
	SortAt    int64         `db:"sort_at"`
	SentAt    sql.NullInt64 `db:"sent_at"`
	FailedAt  sql.NullInt64 `db:"failed_at"`
	Reason    string        `db:"fail_reason"`
}
