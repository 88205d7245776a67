// Package catalog keeps league metadata and rosters current.
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc/pool"

	"leaguewatch/internal/eventbus"
	"leaguewatch/internal/feed"
	"leaguewatch/internal/league"
	logx "leaguewatch/pkg/logx"
)

// TeamInfo is one roster entry as reported by the source.
type TeamInfo struct {
	ExternalID string
	Name       string
	ShortName  string
	LogoURL    string
}

// Metadata is the current state of a league at its source.
type Metadata struct {
	Name     string
	Teams    []TeamInfo
	SeasonID *string
}

type MetadataSource interface {
	FetchMetadata(ctx context.Context, l league.League) (Metadata, error)
}

// Resetter forgets sync progress of a league.
type Resetter interface {
	DeleteCursors(ctx context.Context, leagueID string) error
}

type GameResetter interface {
	DeleteGameStates(ctx context.Context, leagueID string) error
}

type Config struct {
	Concurrency int
}

// Result summarizes one refresh pass.
type Result struct {
	Leagues        int
	Updated        int
	Failed         int
	SeasonsChanged []string
	Took           time.Duration
}

type Refresher struct {
	cfg     Config
	catalog league.Catalog
	source  MetadataSource
	cursors Resetter
	games   GameResetter
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time
}

func NewRefresher(cfg Config, catalog league.Catalog, source MetadataSource, cursors Resetter, games GameResetter, bus eventbus.Bus, log logx.Logger) *Refresher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Refresher{
		cfg:     cfg,
		catalog: catalog,
		source:  source,
		cursors: cursors,
		games:   games,
		bus:     bus,
		log:     log.With(logx.String("comp", "catalog")),
		now:     time.Now,
	}
}

// Refresh updates every league. Per-league failures are logged and counted;
// the returned error is non-nil only when the catalog itself is unreadable
// or every league failed.
func (r *Refresher) Refresh(ctx context.Context) (Result, error) {
	start := time.Now()
	leagues, err := r.catalog.AllLeagues(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "load leagues")
	}
	// Canonical teams are shared across leagues of one site.
	known := league.NewResolver(leagues)

	type leagueResult struct {
		id      string
		updated bool
		season  bool
	}
	p := pool.NewWithResults[leagueResult]().WithErrors().WithContext(ctx).WithMaxGoroutines(r.cfg.Concurrency)
	for _, lg := range leagues {
		p.Go(func(ctx context.Context) (leagueResult, error) {
			updated, season, err := r.refreshLeague(ctx, lg, known)
			if err != nil {
				r.log.Warn("league refresh failed", logx.String("league", lg.ID), logx.Err(err))
				return leagueResult{id: lg.ID}, errors.Wrapf(err, "league %s", lg.ID)
			}
			return leagueResult{id: lg.ID, updated: updated, season: season}, nil
		})
	}
	results, poolErr := p.Wait()

	res := Result{Leagues: len(leagues)}
	for _, lr := range results {
		if lr.updated {
			res.Updated++
		}
		if lr.season {
			res.SeasonsChanged = append(res.SeasonsChanged, lr.id)
		}
	}
	sort.Strings(res.SeasonsChanged)
	if poolErr != nil {
		res.Failed = len(leagues) - len(results)
	}
	res.Took = time.Since(start)

	r.log.Info("catalog refreshed",
		logx.Int("leagues", res.Leagues),
		logx.Int("updated", res.Updated),
		logx.Int("failed", res.Failed),
		logx.Strings("season_changed", res.SeasonsChanged),
		logx.Duration("took", res.Took),
	)
	r.bus.Publish(eventbus.Event{Type: eventbus.CatalogRefresh, Data: res})

	if res.Leagues > 0 && res.Failed == res.Leagues {
		return res, poolErr
	}
	return res, nil
}

func (r *Refresher) refreshLeague(ctx context.Context, lg league.League, known *league.Resolver) (updated, seasonChanged bool, err error) {
	meta, err := r.source.FetchMetadata(ctx, lg)
	if errors.Is(err, feed.ErrUnsupported) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	next := lg
	if meta.Name != "" {
		next.Name = meta.Name
	}
	if len(meta.Teams) > 0 {
		next.Teams = mergeTeams(lg, meta.Teams, known)
	}
	if meta.SeasonID != nil {
		s := *meta.SeasonID
		next.SeasonID = &s
	}

	if !changed(lg, next) {
		return false, false, nil
	}
	next.UpdatedAt = r.now().UTC()
	if err := r.catalog.SaveLeague(ctx, next); err != nil {
		return false, false, errors.Wrap(err, "save league")
	}

	// Reset only once the new season is stored.
	if !league.SeasonChanged(lg.SeasonID, next.SeasonID) {
		return true, false, nil
	}
	r.log.Info("season changed, resetting sync progress",
		logx.String("league", lg.ID),
		logx.String("from", *lg.SeasonID),
		logx.String("to", *next.SeasonID),
	)
	if err := r.cursors.DeleteCursors(ctx, lg.ID); err != nil {
		return true, true, errors.Wrap(err, "reset cursors")
	}
	if r.games != nil {
		if err := r.games.DeleteGameStates(ctx, lg.ID); err != nil {
			return true, true, errors.Wrap(err, "reset game states")
		}
	}
	return true, true, nil
}

// mergeTeams keeps the canonical identity of teams already known in the
// league or elsewhere on the same site; unseen teams get a site-scoped id.
func mergeTeams(lg league.League, infos []TeamInfo, known *league.Resolver) []league.LeagueTeam {
	out := make([]league.LeagueTeam, 0, len(infos))
	for _, ti := range infos {
		if ti.ExternalID == "" {
			continue
		}
		team, err := known.Resolve(lg.ID, ti.ExternalID)
		if err != nil && lg.SiteID != "" {
			team, err = known.ResolveSite(lg.SiteID, ti.ExternalID)
		}
		if err != nil {
			team = league.Team{ID: teamID(lg, ti.ExternalID)}
		}
		if ti.Name != "" {
			team.Name = ti.Name
		}
		if ti.ShortName != "" {
			team.ShortName = ti.ShortName
		}
		if ti.LogoURL != "" {
			team.LogoURL = ti.LogoURL
		}
		out = append(out, league.LeagueTeam{LeagueID: lg.ID, ExternalID: ti.ExternalID, Team: team})
	}
	return out
}

func teamID(lg league.League, extID string) string {
	scope := lg.SiteID
	if scope == "" {
		scope = lg.ID
	}
	return scope + ":" + extID
}

func changed(a, b league.League) bool {
	if a.Name != b.Name || len(a.Teams) != len(b.Teams) {
		return true
	}
	if (a.SeasonID == nil) != (b.SeasonID == nil) || (a.SeasonID != nil && *a.SeasonID != *b.SeasonID) {
		return true
	}
	for i := range a.Teams {
		if a.Teams[i].ExternalID != b.Teams[i].ExternalID || a.Teams[i].Team != b.Teams[i].Team {
			return true
		}
	}
	return false
}
