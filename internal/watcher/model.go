package watcher

import (
	"context"
	"time"

	"leaguewatch/internal/feed"
)

// Watcher is a guild's subscription to one feed type of one league,
// optionally narrowed to a single team.
type Watcher struct {
	ID       string
	GuildID  string
	LeagueID string
	// TeamID nil means every team in the league.
	TeamID *string
	Type   feed.Type
	// ChannelID nil means the guild's default channel.
	ChannelID  *string
	CreatedAt  time.Time
	ArchivedAt *time.Time
}

func (w Watcher) Active() bool { return w.ArchivedAt == nil }

// Guild carries the per-guild default destination.
type Guild struct {
	ID               string
	DefaultChannelID string
}

// Filter narrows FindWatchers. Empty slices match everything.
type Filter struct {
	GuildIDs  []string
	LeagueIDs []string
	Types     []feed.Type
	// IncludeArchived also returns soft-deleted watchers.
	IncludeArchived bool
}

// Store is the watcher persistence contract used by the matcher and pruner.
type Store interface {
	FindWatchers(ctx context.Context, f Filter) ([]Watcher, error)
	GuildDefaults(ctx context.Context, guildIDs []string) (map[string]string, error)
	PruneArchived(ctx context.Context, before time.Time) (int, error)
}
