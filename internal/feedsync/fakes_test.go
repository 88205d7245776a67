package feedsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/league"
	"leaguewatch/internal/outbox"
	"leaguewatch/internal/watcher"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	leagues []league.League
	err     error
}

func (c *fakeCatalog) AllLeagues(context.Context) ([]league.League, error) {
	return c.leagues, c.err
}
func (c *fakeCatalog) SaveLeague(context.Context, league.League) error { return nil }

type fakeSource struct {
	mu    sync.Mutex
	items map[string][]feed.Item
	errs  map[string]error
	calls map[string]int
	hook  func(leagueID string)
}

func newSource() *fakeSource {
	return &fakeSource{items: map[string][]feed.Item{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (s *fakeSource) Fetch(_ context.Context, l league.League, _ feed.Type) ([]feed.Item, error) {
	s.mu.Lock()
	s.calls[l.ID]++
	items, err, hook := s.items[l.ID], s.errs[l.ID], s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(l.ID)
	}
	if err != nil {
		return nil, err
	}
	out := make([]feed.Item, len(items))
	copy(out, items)
	return out, nil
}

type cursorKey struct {
	league string
	t      feed.Type
}

type fakeCursors struct {
	mu      sync.Mutex
	m       map[cursorKey]feed.Cursor
	saves   int
	loadErr error
	saveErr error
}

func newCursors() *fakeCursors { return &fakeCursors{m: map[cursorKey]feed.Cursor{}} }

func (c *fakeCursors) LoadCursor(_ context.Context, leagueID string, t feed.Type) (feed.Cursor, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return feed.Cursor{}, false, c.loadErr
	}
	cur, ok := c.m[cursorKey{leagueID, t}]
	return cur, ok, nil
}

func (c *fakeCursors) SaveCursor(ctx context.Context, cur feed.Cursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saves++
	c.m[cursorKey{cur.LeagueID, cur.Type}] = cur
	return nil
}

func (c *fakeCursors) DeleteCursors(_ context.Context, leagueID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.m {
		if k.league == leagueID {
			delete(c.m, k)
		}
	}
	return nil
}

func (c *fakeCursors) get(leagueID string, t feed.Type) (feed.Cursor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.m[cursorKey{leagueID, t}]
	return cur, ok
}

func (c *fakeCursors) set(cur feed.Cursor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[cursorKey{cur.LeagueID, cur.Type}] = cur
}

type fakeGames struct {
	mu sync.Mutex
	m  map[string]map[string]feed.GameState
}

func newGames() *fakeGames { return &fakeGames{m: map[string]map[string]feed.GameState{}} }

func (g *fakeGames) LoadGameStates(_ context.Context, leagueID string) (map[string]feed.GameState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := map[string]feed.GameState{}
	for k, v := range g.m[leagueID] {
		out[k] = v
	}
	return out, nil
}

func (g *fakeGames) SaveGameState(_ context.Context, s feed.GameState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.m[s.LeagueID] == nil {
		g.m[s.LeagueID] = map[string]feed.GameState{}
	}
	g.m[s.LeagueID][s.GameID] = s
	return nil
}

func (g *fakeGames) DeleteGameStates(_ context.Context, leagueID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.m, leagueID)
	return nil
}

// fakeMatcher maps "league/team" (team "" for league-wide) to destinations.
type fakeMatcher struct {
	mu      sync.Mutex
	dests   map[string][]watcher.Destination
	queries []watcher.Query
}

func newMatcher() *fakeMatcher { return &fakeMatcher{dests: map[string][]watcher.Destination{}} }

func (m *fakeMatcher) watch(leagueID, teamID string, dests ...watcher.Destination) {
	k := leagueID + "/" + teamID
	m.dests[k] = append(m.dests[k], dests...)
}

func (m *fakeMatcher) Match(_ context.Context, q watcher.Query) ([]watcher.Destination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	team := ""
	if len(q.TeamIDs) > 0 {
		team = q.TeamIDs[0]
	}
	return m.dests[q.LeagueIDs[0]+"/"+team], nil
}

type fakeQueue struct {
	mu    sync.Mutex
	msgs  []outbox.Message
	calls int
	fail  func(msgs []outbox.Message) bool
}

func (q *fakeQueue) Enqueue(_ context.Context, msgs []outbox.Message) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.fail != nil && q.fail(msgs) {
		return 0, errors.New("queue down")
	}
	q.msgs = append(q.msgs, msgs...)
	return len(msgs), nil
}

func (q *fakeQueue) bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.msgs))
	for _, m := range q.msgs {
		out = append(out, m.Content.Body)
	}
	return out
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

type harness struct {
	catalog *fakeCatalog
	source  *fakeSource
	cursors *fakeCursors
	games   *fakeGames
	matcher *fakeMatcher
	queue   *fakeQueue
	engine  *Engine
}

func newHarness(leagues ...league.League) *harness {
	h := &harness{
		catalog: &fakeCatalog{leagues: leagues},
		source:  newSource(),
		cursors: newCursors(),
		games:   newGames(),
		matcher: newMatcher(),
		queue:   &fakeQueue{},
	}
	h.engine = New(Config{}, Deps{
		Catalog: h.catalog,
		Source:  h.source,
		Cursors: h.cursors,
		Games:   h.games,
		Matcher: h.matcher,
		Queue:   h.queue,
	})
	h.engine.now = func() time.Time { return t0 }
	return h
}

func testLeague(id string, teams ...string) league.League {
	l := league.League{ID: id, SiteID: "site", ExternalID: "x" + id, Name: "League " + id}
	for _, ext := range teams {
		l.Teams = append(l.Teams, league.LeagueTeam{
			LeagueID:   id,
			ExternalID: ext,
			Team:       league.Team{ID: id + "-" + ext, Name: "Team " + ext + " FC"},
		})
	}
	return l
}

func dest(guild, channel string) watcher.Destination {
	return watcher.Destination{GuildID: guild, ChannelID: channel}
}

func bid(leagueID, hash, team, player string, at time.Time) *feed.Bid {
	return &feed.Bid{Meta: feed.Meta{LeagueID: leagueID, Hash: hash, At: at}, TeamExtID: team, PlayerName: player, Amount: 1000}
}

func news(leagueID, hash, team, headline string, at time.Time) *feed.News {
	return &feed.News{Meta: feed.Meta{LeagueID: leagueID, Hash: hash, At: at}, TeamExtID: team, Headline: headline}
}
