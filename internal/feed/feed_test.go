package feed

import (
	"testing"
	"time"
)

func TestParseType(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"trade", "Draft-Pick", " roster_transaction ", "DAILY_STAR"} {
		if _, err := ParseType(in); err != nil {
			t.Fatalf("ParseType(%q) error: %v", in, err)
		}
	}
	if _, err := ParseType("injury"); err == nil {
		t.Fatalf("ParseType(injury) should fail")
	}
	if got := len(All()); got != 9 {
		t.Fatalf("All() = %d types, want 9", got)
	}
}

func TestSealIsStableAndDistinct(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	a := &Bid{Meta: Meta{LeagueID: "l1", At: at}, TeamExtID: "10", PlayerName: "A. Player", Amount: 100}
	b := &Bid{Meta: Meta{LeagueID: "l1", At: at}, TeamExtID: "10", PlayerName: "A. Player", Amount: 100}
	c := &Bid{Meta: Meta{LeagueID: "l1", At: at}, TeamExtID: "10", PlayerName: "A. Player", Amount: 150}
	preset := &Bid{Meta: Meta{LeagueID: "l1", Hash: "given", At: at}}

	Seal([]Item{a, b, c, preset})

	if a.Fingerprint() == "" || a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("identical bids fingerprint differently: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("different amounts share fingerprint")
	}
	if preset.Fingerprint() != "given" {
		t.Fatalf("Seal overwrote an existing fingerprint")
	}
}

func TestTypesDoNotCollide(t *testing.T) {
	t.Parallel()

	at := time.Unix(100, 0)
	w := &Waiver{Meta: Meta{LeagueID: "l1", At: at}, TeamExtID: "1", PlayerName: "p"}
	r := &RosterTransaction{Meta: Meta{LeagueID: "l1", At: at}, TeamExtID: "1", PlayerName: "p"}
	Seal([]Item{w, r})
	if w.Fingerprint() == r.Fingerprint() {
		t.Fatalf("waiver and roster item share fingerprint")
	}
}

func TestGameStateChanged(t *testing.T) {
	t.Parallel()

	base := GameState{GameID: "g1", OccurredAt: time.Unix(10, 0), HomeScore: 2, AwayScore: 1}
	if base.Changed(base) {
		t.Fatalf("identical state reported as changed")
	}
	for name, mut := range map[string]func(*GameState){
		"time":     func(g *GameState) { g.OccurredAt = g.OccurredAt.Add(time.Minute) },
		"home":     func(g *GameState) { g.HomeScore++ },
		"away":     func(g *GameState) { g.AwayScore++ },
		"overtime": func(g *GameState) { g.Overtime = true },
		"shootout": func(g *GameState) { g.Shootout = true },
	} {
		next := base
		mut(&next)
		if !base.Changed(next) {
			t.Fatalf("%s change not detected", name)
		}
	}
}

func TestNewsTeamRefs(t *testing.T) {
	t.Parallel()

	if refs := (&News{}).TeamRefs(); refs != nil {
		t.Fatalf("league-wide news refs = %v", refs)
	}
	if refs := (&News{TeamExtID: "7"}).TeamRefs(); len(refs) != 1 || refs[0] != "7" {
		t.Fatalf("team news refs = %v", refs)
	}
}

func TestGameStateChangedIgnoresSubMillisecond(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	g := &Game{Meta: Meta{At: at}, GameID: "g1", HomeScore: 1}
	stored := GameState{GameID: "g1", OccurredAt: at.Truncate(time.Millisecond), HomeScore: 1}
	if stored.Changed(g.State("")) {
		t.Fatalf("millisecond-truncated state reported as changed")
	}
	if !g.State("").OccurredAt.Equal(at.Truncate(time.Millisecond)) {
		t.Fatalf("State did not truncate to milliseconds: %v", g.State("").OccurredAt)
	}
	moved := g.State("")
	moved.OccurredAt = moved.OccurredAt.Add(time.Millisecond)
	if !stored.Changed(moved) {
		t.Fatalf("a one-millisecond move must count as a change")
	}
}
