package httpfeed

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"leaguewatch/internal/catalog"
	"leaguewatch/internal/feed"
)

type feedEnvelope struct {
	Items []wireItem `json:"items"`
}

type wireSide struct {
	Team  string   `json:"team"`
	Sends []string `json:"sends"`
}

// wireItem is the union of every feed type's fields. Only the fields of the
// requested type are read.
type wireItem struct {
	ID        string     `json:"id"`
	At        time.Time  `json:"at"`
	Team      string     `json:"team"`
	Player    string     `json:"player"`
	Amount    int64      `json:"amount"`
	Status    string     `json:"status"`
	Salary    int64      `json:"salary"`
	Years     int        `json:"years"`
	Kind      string     `json:"kind"`
	Round     int        `json:"round"`
	Pick      int        `json:"pick"`
	GameID    string     `json:"game_id"`
	Home      string     `json:"home"`
	Away      string     `json:"away"`
	HomeScore int        `json:"home_score"`
	AwayScore int        `json:"away_score"`
	Overtime  bool       `json:"overtime"`
	Shootout  bool       `json:"shootout"`
	Headline  string     `json:"headline"`
	Body      string     `json:"body"`
	URL       string     `json:"url"`
	Source    string     `json:"source"`
	Action    string     `json:"action"`
	Detail    string     `json:"detail"`
	Priority  int        `json:"priority"`
	Rank      int        `json:"rank"`
	StatLine  string     `json:"stat_line"`
	Sides     []wireSide `json:"sides"`
}

func (w wireItem) toItem(leagueID string, t feed.Type) (feed.Item, error) {
	m := feed.Meta{LeagueID: leagueID, Hash: w.ID, At: w.At.UTC()}
	switch t {
	case feed.TypeBid:
		return &feed.Bid{Meta: m, TeamExtID: w.Team, PlayerName: w.Player, Amount: w.Amount, Status: w.Status}, nil
	case feed.TypeContract:
		return &feed.Contract{Meta: m, TeamExtID: w.Team, PlayerName: w.Player, Salary: w.Salary, Years: w.Years, Kind: w.Kind}, nil
	case feed.TypeDraftPick:
		return &feed.DraftPick{Meta: m, TeamExtID: w.Team, PlayerName: w.Player, Round: w.Round, Pick: w.Pick}, nil
	case feed.TypeGame:
		if w.GameID == "" {
			return nil, errors.New("game without game_id")
		}
		return &feed.Game{
			Meta: m, GameID: w.GameID, HomeExtID: w.Home, AwayExtID: w.Away,
			HomeScore: w.HomeScore, AwayScore: w.AwayScore, Overtime: w.Overtime, Shootout: w.Shootout,
		}, nil
	case feed.TypeNews:
		return &feed.News{Meta: m, TeamExtID: w.Team, Headline: w.Headline, Body: w.Body, URL: w.URL, Source: w.Source}, nil
	case feed.TypeRosterTransaction:
		return &feed.RosterTransaction{Meta: m, TeamExtID: w.Team, PlayerName: w.Player, Action: w.Action, Detail: w.Detail}, nil
	case feed.TypeTrade:
		sides := make([]feed.TradeSide, 0, len(w.Sides))
		for _, s := range w.Sides {
			sides = append(sides, feed.TradeSide{TeamExtID: s.Team, Sends: s.Sends})
		}
		return &feed.Trade{Meta: m, Sides: sides}, nil
	case feed.TypeWaiver:
		return &feed.Waiver{Meta: m, TeamExtID: w.Team, PlayerName: w.Player, Priority: w.Priority, Action: w.Action}, nil
	case feed.TypeDailyStar:
		return &feed.DailyStar{Meta: m, TeamExtID: w.Team, PlayerName: w.Player, Rank: w.Rank, StatLine: w.StatLine}, nil
	}
	return nil, errors.Newf("unknown feed type %q", t)
}

type wireTeam struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	LogoURL   string `json:"logo_url"`
}

type wireMetadata struct {
	Name string `json:"name"`
	// SeasonID is a string or a number depending on the site.
	SeasonID any        `json:"season_id"`
	Teams    []wireTeam `json:"teams"`
}

func (w wireMetadata) toMetadata() catalog.Metadata {
	md := catalog.Metadata{Name: w.Name, SeasonID: seasonString(w.SeasonID)}
	for _, t := range w.Teams {
		md.Teams = append(md.Teams, catalog.TeamInfo{ExternalID: t.ID, Name: t.Name, ShortName: t.ShortName, LogoURL: t.LogoURL})
	}
	return md
}

func seasonString(v any) *string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		s = strconv.FormatInt(x, 10)
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}
