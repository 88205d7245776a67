package feedsync

import (
	"fmt"
	"strconv"
	"strings"

	"leaguewatch/internal/feed"
	"leaguewatch/internal/league"
	"leaguewatch/internal/outbox"
)

// view is the perspective a message is rendered from.
type view struct {
	League league.League
	// Team is the watched team, nil for league-wide items.
	Team    *league.Team
	TeamExt string
	// Names maps external team ids to display names.
	Names map[string]string
}

func (v view) name(extID string) string {
	if n, ok := v.Names[extID]; ok && n != "" {
		return n
	}
	return "Team " + extID
}

type renderFunc func(v view, it feed.Item) outbox.Content

func footer(v view) string { return v.League.Name }

func renderBid(v view, it feed.Item) outbox.Content {
	b := it.(*feed.Bid)
	verb := "placed a bid on"
	if strings.EqualFold(b.Status, "won") {
		verb = "won the bid for"
	}
	return outbox.Content{
		Title:  "Bid",
		Body:   fmt.Sprintf("%s %s %s", v.name(b.TeamExtID), verb, b.PlayerName),
		Fields: []outbox.Field{{Name: "Amount", Value: money(b.Amount), Inline: true}},
		Footer: footer(v),
	}
}

func renderContract(v view, it feed.Item) outbox.Content {
	c := it.(*feed.Contract)
	kind := c.Kind
	if kind == "" {
		kind = "signing"
	}
	fields := []outbox.Field{{Name: "Salary", Value: money(c.Salary), Inline: true}}
	if c.Years > 0 {
		fields = append(fields, outbox.Field{Name: "Years", Value: strconv.Itoa(c.Years), Inline: true})
	}
	return outbox.Content{
		Title:  "Contract " + kind,
		Body:   fmt.Sprintf("%s: %s", v.name(c.TeamExtID), c.PlayerName),
		Fields: fields,
		Footer: footer(v),
	}
}

func renderDraftPick(v view, it feed.Item) outbox.Content {
	d := it.(*feed.DraftPick)
	return outbox.Content{
		Title:  fmt.Sprintf("Draft pick: round %d, pick %d", d.Round, d.Pick),
		Body:   fmt.Sprintf("%s selected %s", v.name(d.TeamExtID), d.PlayerName),
		Footer: footer(v),
	}
}

func renderWaiver(v view, it feed.Item) outbox.Content {
	w := it.(*feed.Waiver)
	action := w.Action
	if action == "" {
		action = "claimed"
	}
	c := outbox.Content{
		Title:  "Waivers",
		Body:   fmt.Sprintf("%s %s %s", v.name(w.TeamExtID), action, w.PlayerName),
		Footer: footer(v),
	}
	if w.Priority > 0 {
		c.Fields = []outbox.Field{{Name: "Priority", Value: strconv.Itoa(w.Priority), Inline: true}}
	}
	return c
}

func renderRoster(v view, it feed.Item) outbox.Content {
	r := it.(*feed.RosterTransaction)
	body := fmt.Sprintf("%s %s %s", v.name(r.TeamExtID), r.Action, r.PlayerName)
	if r.Detail != "" {
		body += " (" + r.Detail + ")"
	}
	return outbox.Content{Title: "Roster move", Body: body, Footer: footer(v)}
}

func renderNews(v view, it feed.Item) outbox.Content {
	n := it.(*feed.News)
	c := outbox.Content{Title: n.Headline, Body: n.Body, URL: n.URL, Footer: footer(v)}
	if n.Source != "" {
		c.Footer = c.Footer + " | " + n.Source
	}
	return c
}

func renderGame(v view, it feed.Item) outbox.Content {
	g := it.(*feed.Game)
	suffix := ""
	switch {
	case g.Shootout:
		suffix = " (SO)"
	case g.Overtime:
		suffix = " (OT)"
	}
	return outbox.Content{
		Title:  "Final",
		Body:   fmt.Sprintf("%s %d - %d %s%s", v.name(g.HomeExtID), g.HomeScore, g.AwayScore, v.name(g.AwayExtID), suffix),
		Footer: footer(v),
	}
}

// renderTrade writes the trade from the watched team's side. When that side
// sends nothing away, it reads "acquired ... from" instead of "traded ... to".
func renderTrade(v view, it feed.Item) outbox.Content {
	t := it.(*feed.Trade)
	var (
		gives    []string
		gets     []string
		partners []string
	)
	for _, s := range t.Sides {
		if s.TeamExtID == v.TeamExt {
			gives = append(gives, s.Sends...)
			continue
		}
		partners = append(partners, v.name(s.TeamExtID))
		gets = append(gets, s.Sends...)
	}

	team := v.name(v.TeamExt)
	var body string
	switch {
	case len(gives) == 0:
		body = fmt.Sprintf("%s acquired %s from %s", team, list(gets), list(partners))
	case len(gets) == 0:
		body = fmt.Sprintf("%s traded %s to %s", team, list(gives), list(partners))
	default:
		body = fmt.Sprintf("%s traded %s to %s for %s", team, list(gives), list(partners), list(gets))
	}
	return outbox.Content{Title: "Trade", Body: body, Footer: footer(v)}
}

// renderStars writes one team's daily stars as a single message.
func renderStars(v view, stars []*feed.DailyStar) outbox.Content {
	lines := make([]string, 0, len(stars))
	for _, s := range stars {
		line := fmt.Sprintf("%d. %s", s.Rank, s.PlayerName)
		if s.StatLine != "" {
			line += " - " + s.StatLine
		}
		lines = append(lines, line)
	}
	return outbox.Content{
		Title:  "Daily stars: " + v.name(v.TeamExt),
		Body:   strings.Join(lines, "\n"),
		Footer: footer(v),
	}
}

func list(items []string) string {
	switch len(items) {
	case 0:
		return "nothing"
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

func money(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}
