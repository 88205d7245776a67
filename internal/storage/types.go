package storage

import (
	"context"
	"errors"
	"time"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/league"
	"leaguewatch/internal/outbox"
	"leaguewatch/internal/watcher"
)

var ErrNotFound = errors.New("not found")

// Config configures storage.
//
// Path is used by sqlite (":memory:" works), DSN by postgres.
type Config struct {
	Driver       string
	Path         string
	DSN          string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	MaxOpenConns int           // postgres only
}

// Store is every persistence contract leaguewatch needs, plus the writes used
// by seeding and the command surface.
type Store interface {
	league.Catalog
	feed.CursorStore
	feed.GameStore
	watcher.Store
	outbox.Store

	SaveWatcher(ctx context.Context, w watcher.Watcher) error
	ArchiveWatcher(ctx context.Context, id string, at time.Time) error
	SaveGuild(ctx context.Context, g watcher.Guild) error
	Close() error
}
