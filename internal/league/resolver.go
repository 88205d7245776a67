package league

import (
	"errors"
	"fmt"
)

// ErrTeamNotFound is returned when an external team id has no mapping.
var ErrTeamNotFound = errors.New("team not found")

type scopeKey struct {
	scope string
	extID string
}

// Resolver translates external team ids into canonical teams.
//
// It is built once per synchronization pass from the full league set and
// is read-only afterwards, so concurrent lookups need no locking.
type Resolver struct {
	byLeague map[scopeKey]Team
	bySite   map[scopeKey]Team
}

// NewResolver indexes every league roster by (league, external id) and
// (site, external id). When an external id repeats within a scope, the
// first team seen wins.
func NewResolver(leagues []League) *Resolver {
	r := &Resolver{
		byLeague: make(map[scopeKey]Team),
		bySite:   make(map[scopeKey]Team),
	}
	for _, l := range leagues {
		for _, lt := range l.Teams {
			if lt.ExternalID == "" {
				continue
			}
			leagueID := lt.LeagueID
			if leagueID == "" {
				leagueID = l.ID
			}
			lk := scopeKey{scope: leagueID, extID: lt.ExternalID}
			if _, ok := r.byLeague[lk]; !ok {
				r.byLeague[lk] = lt.Team
			}
			if l.SiteID == "" {
				continue
			}
			sk := scopeKey{scope: l.SiteID, extID: lt.ExternalID}
			if _, ok := r.bySite[sk]; !ok {
				r.bySite[sk] = lt.Team
			}
		}
	}
	return r
}

// Resolve looks up a team by league and external id.
func (r *Resolver) Resolve(leagueID, extID string) (Team, error) {
	if t, ok := r.byLeague[scopeKey{scope: leagueID, extID: extID}]; ok {
		return t, nil
	}
	return Team{}, fmt.Errorf("%w: league=%s ext=%s", ErrTeamNotFound, leagueID, extID)
}

// ResolveSite looks up a team by site and external id.
func (r *Resolver) ResolveSite(siteID, extID string) (Team, error) {
	if t, ok := r.bySite[scopeKey{scope: siteID, extID: extID}]; ok {
		return t, nil
	}
	return Team{}, fmt.Errorf("%w: site=%s ext=%s", ErrTeamNotFound, siteID, extID)
}

func (r *Resolver) Has(leagueID, extID string) bool {
	_, ok := r.byLeague[scopeKey{scope: leagueID, extID: extID}]
	return ok
}

func (r *Resolver) HasSite(siteID, extID string) bool {
	_, ok := r.bySite[scopeKey{scope: siteID, extID: extID}]
	return ok
}

// HasAffiliate reports whether extID belongs to one of l's affiliate leagues.
// Callers use it to tell a foreign reference from a genuinely unknown one.
func (r *Resolver) HasAffiliate(l League, extID string) bool {
	for _, id := range l.AffiliateIDs {
		if r.Has(id, extID) {
			return true
		}
	}
	return false
}

// Len returns the number of (league, external id) entries.
func (r *Resolver) Len() int { return len(r.byLeague) }
