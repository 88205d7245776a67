package watcher

import (
	"context"
	"fmt"
	"sort"

	"leaguewatch/internal/feed"
)

// Query selects watchers. Every omitted (empty) filter matches all.
type Query struct {
	GuildIDs   []string
	LeagueIDs  []string
	TeamIDs    []string
	Types      []feed.Type
	ChannelIDs []string
}

// Destination is one (guild, channel) pair that should receive a message.
type Destination struct {
	GuildID    string
	ChannelID  string
	WatcherIDs []string
}

func (d Destination) Key() string { return d.GuildID + "/" + d.ChannelID }

// Matcher resolves queries into deduplicated destinations.
type Matcher struct {
	store Store
}

func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store}
}

// Match returns active watchers matching q grouped by (guild, resolved
// channel). Watchers resolving to the same destination collapse into one
// entry. Output is sorted by guild then channel.
func (m *Matcher) Match(ctx context.Context, q Query) ([]Destination, error) {
	ws, err := m.store.FindWatchers(ctx, Filter{GuildIDs: q.GuildIDs, LeagueIDs: q.LeagueIDs, Types: q.Types})
	if err != nil {
		return nil, fmt.Errorf("find watchers: %w", err)
	}
	if len(ws) == 0 {
		return nil, nil
	}

	teams := toSet(q.TeamIDs)
	channels := toSet(q.ChannelIDs)
	guilds := toSet(q.GuildIDs)
	leagues := toSet(q.LeagueIDs)
	types := make(map[feed.Type]struct{}, len(q.Types))
	for _, t := range q.Types {
		types[t] = struct{}{}
	}

	var needDefaults []string
	kept := make([]Watcher, 0, len(ws))
	for _, w := range ws {
		if !w.Active() || !inSet(guilds, w.GuildID) || !inSet(leagues, w.LeagueID) {
			continue
		}
		if len(types) > 0 {
			if _, ok := types[w.Type]; !ok {
				continue
			}
		}
		// A league-wide watcher matches any team.
		if w.TeamID != nil && !inSet(teams, *w.TeamID) {
			continue
		}
		if w.ChannelID == nil {
			needDefaults = append(needDefaults, w.GuildID)
		}
		kept = append(kept, w)
	}

	defaults := map[string]string{}
	if len(needDefaults) > 0 {
		defaults, err = m.store.GuildDefaults(ctx, dedupStrings(needDefaults))
		if err != nil {
			return nil, fmt.Errorf("guild defaults: %w", err)
		}
	}

	byDest := make(map[string]*Destination, len(kept))
	for _, w := range kept {
		channel := defaults[w.GuildID]
		if w.ChannelID != nil {
			channel = *w.ChannelID
		}
		if channel == "" || !inSet(channels, channel) {
			continue
		}
		d := Destination{GuildID: w.GuildID, ChannelID: channel}
		if cur, ok := byDest[d.Key()]; ok {
			cur.WatcherIDs = append(cur.WatcherIDs, w.ID)
			continue
		}
		d.WatcherIDs = []string{w.ID}
		byDest[d.Key()] = &d
	}

	out := make([]Destination, 0, len(byDest))
	for _, d := range byDest {
		sort.Strings(d.WatcherIDs)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GuildID != out[j].GuildID {
			return out[i].GuildID < out[j].GuildID
		}
		return out[i].ChannelID < out[j].ChannelID
	})
	return out, nil
}

func toSet(vals []string) map[string]struct{} {
	if len(vals) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

// inSet treats a nil set as "match all".
func inSet(set map[string]struct{}, v string) bool {
	if set == nil {
		return true
	}
	_, ok := set[v]
	return ok
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
