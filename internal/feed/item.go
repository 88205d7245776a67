package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Item is one immutable entry produced by a feed source.
type Item interface {
	Type() Type
	Fingerprint() string
	OccurredAt() time.Time
	// TeamRefs lists the external team ids the item refers to.
	TeamRefs() []string

	identity() []string
	meta() *Meta
}

// Meta holds the fields every item carries.
type Meta struct {
	LeagueID string
	Hash     string
	At       time.Time
}

func (m *Meta) Fingerprint() string   { return m.Hash }
func (m *Meta) OccurredAt() time.Time { return m.At }
func (m *Meta) meta() *Meta           { return m }

// Fingerprint hashes the identity fields of an item.
func Fingerprint(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

// Seal fills in missing fingerprints from each item's identity fields.
func Seal(items []Item) {
	for _, it := range items {
		m := it.meta()
		if m.Hash != "" {
			continue
		}
		m.Hash = Fingerprint(append([]string{string(it.Type()), m.LeagueID, ts(m.At)}, it.identity()...)...)
	}
}

func ts(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func itoa(v int) string { return strconv.Itoa(v) }

func btoa(v bool) string { return strconv.FormatBool(v) }

type Bid struct {
	Meta
	TeamExtID  string
	PlayerName string
	Amount     int64
	Status     string
}

func (*Bid) Type() Type           { return TypeBid }
func (b *Bid) TeamRefs() []string { return []string{b.TeamExtID} }
func (b *Bid) identity() []string {
	return []string{b.TeamExtID, b.PlayerName, strconv.FormatInt(b.Amount, 10), b.Status}
}

type Contract struct {
	Meta
	TeamExtID  string
	PlayerName string
	Salary     int64
	Years      int
	Kind       string // signing, extension, release
}

func (*Contract) Type() Type           { return TypeContract }
func (c *Contract) TeamRefs() []string { return []string{c.TeamExtID} }
func (c *Contract) identity() []string {
	return []string{c.TeamExtID, c.PlayerName, strconv.FormatInt(c.Salary, 10), itoa(c.Years), c.Kind}
}

type DraftPick struct {
	Meta
	TeamExtID  string
	PlayerName string
	Round      int
	Pick       int
}

func (*DraftPick) Type() Type           { return TypeDraftPick }
func (d *DraftPick) TeamRefs() []string { return []string{d.TeamExtID} }
func (d *DraftPick) identity() []string {
	return []string{d.TeamExtID, d.PlayerName, itoa(d.Round), itoa(d.Pick)}
}

type Game struct {
	Meta
	GameID    string
	HomeExtID string
	AwayExtID string
	HomeScore int
	AwayScore int
	Overtime  bool
	Shootout  bool
}

func (*Game) Type() Type           { return TypeGame }
func (g *Game) TeamRefs() []string { return []string{g.HomeExtID, g.AwayExtID} }
func (g *Game) identity() []string {
	return []string{g.GameID, itoa(g.HomeScore), itoa(g.AwayScore), btoa(g.Overtime), btoa(g.Shootout)}
}

// State projects the fields that decide whether a result is re-announced.
func (g *Game) State(leagueID string) GameState {
	return GameState{
		LeagueID:   leagueID,
		GameID:     g.GameID,
		OccurredAt: g.At.Truncate(time.Millisecond),
		HomeScore:  g.HomeScore,
		AwayScore:  g.AwayScore,
		Overtime:   g.Overtime,
		Shootout:   g.Shootout,
	}
}

type News struct {
	Meta
	// TeamExtID is empty for league-wide news.
	TeamExtID string
	Headline  string
	Body      string
	URL       string
	Source    string
}

func (*News) Type() Type { return TypeNews }
func (n *News) TeamRefs() []string {
	if n.TeamExtID == "" {
		return nil
	}
	return []string{n.TeamExtID}
}
func (n *News) identity() []string { return []string{n.TeamExtID, n.Headline, n.URL} }

type RosterTransaction struct {
	Meta
	TeamExtID  string
	PlayerName string
	Action     string // added, dropped, moved
	Detail     string
}

func (*RosterTransaction) Type() Type           { return TypeRosterTransaction }
func (r *RosterTransaction) TeamRefs() []string { return []string{r.TeamExtID} }
func (r *RosterTransaction) identity() []string {
	return []string{r.TeamExtID, r.PlayerName, r.Action, r.Detail}
}

// TradeSide is one participant and the assets it sends away.
type TradeSide struct {
	TeamExtID string
	Sends     []string
}

type Trade struct {
	Meta
	Sides []TradeSide
}

func (*Trade) Type() Type { return TypeTrade }
func (t *Trade) TeamRefs() []string {
	out := make([]string, 0, len(t.Sides))
	for _, s := range t.Sides {
		out = append(out, s.TeamExtID)
	}
	return out
}
func (t *Trade) identity() []string {
	out := make([]string, 0, len(t.Sides)*2)
	for _, s := range t.Sides {
		out = append(out, s.TeamExtID, strings.Join(s.Sends, ","))
	}
	return out
}

type Waiver struct {
	Meta
	TeamExtID  string
	PlayerName string
	Priority   int
	Action     string // claimed, released
}

func (*Waiver) Type() Type           { return TypeWaiver }
func (w *Waiver) TeamRefs() []string { return []string{w.TeamExtID} }
func (w *Waiver) identity() []string {
	return []string{w.TeamExtID, w.PlayerName, itoa(w.Priority), w.Action}
}

type DailyStar struct {
	Meta
	TeamExtID  string
	PlayerName string
	Rank       int
	StatLine   string
}

func (*DailyStar) Type() Type           { return TypeDailyStar }
func (d *DailyStar) TeamRefs() []string { return []string{d.TeamExtID} }
func (d *DailyStar) identity() []string {
	return []string{d.TeamExtID, d.PlayerName, itoa(d.Rank), d.StatLine}
}
