package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/league"
	"leaguewatch/internal/outbox"
	"leaguewatch/internal/watcher"
)

type cursorKey struct {
	leagueID string
	t        feed.Type
}

// memStore keeps everything in maps. Values are copied on the way in and
// out so callers never share memory with the store.
type memStore struct {
	mu       sync.RWMutex
	leagues  map[string]league.League
	cursors  map[cursorKey]feed.Cursor
	games    map[string]map[string]feed.GameState
	watchers map[string]watcher.Watcher
	guilds   map[string]watcher.Guild
	outbox   []outbox.Message
	now      func() time.Time
}

func NewMemory() Store {
	return &memStore{
		leagues:  map[string]league.League{},
		cursors:  map[cursorKey]feed.Cursor{},
		games:    map[string]map[string]feed.GameState{},
		watchers: map[string]watcher.Watcher{},
		guilds:   map[string]watcher.Guild{},
		now:      time.Now,
	}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) AllLeagues(context.Context) ([]league.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]league.League, 0, len(s.leagues))
	for _, l := range s.leagues {
		out = append(out, cloneLeague(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SaveLeague(_ context.Context, l league.League) error {
	if l.ID == "" {
		return errors.New("league id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leagues[l.ID] = cloneLeague(l)
	return nil
}

func cloneLeague(l league.League) league.League {
	l.Teams = append([]league.LeagueTeam(nil), l.Teams...)
	l.AffiliateIDs = append([]string(nil), l.AffiliateIDs...)
	l.Tags = append([]string(nil), l.Tags...)
	if l.SeasonID != nil {
		v := *l.SeasonID
		l.SeasonID = &v
	}
	return l
}

func (s *memStore) LoadCursor(_ context.Context, leagueID string, t feed.Type) (feed.Cursor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[cursorKey{leagueID, t}]
	return c, ok, nil
}

func (s *memStore) SaveCursor(_ context.Context, c feed.Cursor) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[cursorKey{c.LeagueID, c.Type}] = c
	return nil
}

func (s *memStore) DeleteCursors(_ context.Context, leagueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.cursors {
		if k.leagueID == leagueID {
			delete(s.cursors, k)
		}
	}
	return nil
}

func (s *memStore) LoadGameStates(_ context.Context, leagueID string) (map[string]feed.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]feed.GameState, len(s.games[leagueID]))
	for k, v := range s.games[leagueID] {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) SaveGameState(_ context.Context, g feed.GameState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.games[g.LeagueID]
	if m == nil {
		m = map[string]feed.GameState{}
		s.games[g.LeagueID] = m
	}
	m[g.GameID] = g
	return nil
}

func (s *memStore) DeleteGameStates(_ context.Context, leagueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, leagueID)
	return nil
}

func (s *memStore) FindWatchers(_ context.Context, f watcher.Filter) ([]watcher.Watcher, error) {
	guilds := stringSet(f.GuildIDs)
	leagues := stringSet(f.LeagueIDs)
	types := map[feed.Type]struct{}{}
	for _, t := range f.Types {
		types[t] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []watcher.Watcher
	for _, w := range s.watchers {
		if !f.IncludeArchived && !w.Active() {
			continue
		}
		if len(guilds) > 0 && !has(guilds, w.GuildID) {
			continue
		}
		if len(leagues) > 0 && !has(leagues, w.LeagueID) {
			continue
		}
		if len(types) > 0 {
			if _, ok := types[w.Type]; !ok {
				continue
			}
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.GuildID != b.GuildID {
			return a.GuildID < b.GuildID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *memStore) GuildDefaults(_ context.Context, guildIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(guildIDs))
	for _, id := range guildIDs {
		if g, ok := s.guilds[id]; ok && g.DefaultChannelID != "" {
			out[id] = g.DefaultChannelID
		}
	}
	return out, nil
}

func (s *memStore) PruneArchived(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, w := range s.watchers {
		if w.ArchivedAt != nil && w.ArchivedAt.Before(before) {
			delete(s.watchers, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) SaveWatcher(_ context.Context, w watcher.Watcher) error {
	if w.ID == "" || w.GuildID == "" || w.LeagueID == "" || w.Type == "" {
		return errors.New("watcher id, guild, league and type are required")
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[w.ID] = w
	return nil
}

func (s *memStore) ArchiveWatcher(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watchers[id]
	if !ok || !w.Active() {
		return errors.Wrapf(ErrNotFound, "watcher %s", id)
	}
	w.ArchivedAt = &at
	s.watchers[id] = w
	return nil
}

func (s *memStore) SaveGuild(_ context.Context, g watcher.Guild) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[g.ID] = g
	return nil
}

func (s *memStore) InsertMessages(_ context.Context, msgs []outbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.outbox))
	for _, m := range s.outbox {
		seen[m.ID] = struct{}{}
	}
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			return errors.Newf("duplicate message id %s", m.ID)
		}
	}
	s.outbox = append(s.outbox, msgs...)
	return nil
}

func (s *memStore) PendingMessages(_ context.Context, limit int) ([]outbox.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	var out []outbox.Message
	for _, m := range s.outbox {
		if m.SentAt == nil && m.FailedAt == nil {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		// Millisecond precision, as stored by the SQL drivers.
		at, bt := a.SortTime().UnixMilli(), b.SortTime().UnixMilli()
		if at != bt {
			return at < bt
		}
		if a.GuildID != b.GuildID {
			return a.GuildID < b.GuildID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, ids []string, at time.Time) error {
	set := stringSet(ids)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].SentAt == nil && has(set, s.outbox[i].ID) {
			t := at
			s.outbox[i].SentAt = &t
		}
	}
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, ids []string, at time.Time, reason string) error {
	set := stringSet(ids)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		m := &s.outbox[i]
		if m.SentAt == nil && m.FailedAt == nil && has(set, m.ID) {
			t := at
			m.FailedAt = &t
			m.FailReason = reason
		}
	}
	return nil
}

func stringSet(v []string) map[string]struct{} {
	out := make(map[string]struct{}, len(v))
	for _, s := range v {
		out[s] = struct{}{}
	}
	return out
}

func has(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}
