package league

import (
	"errors"
	"testing"
)

func testLeagues() []League {
	hawks := Team{ID: "t-hawks", Name: "Hawks"}
	wolves := Team{ID: "t-wolves", Name: "Wolves"}
	bears := Team{ID: "t-bears", Name: "Bears"}
	return []League{
		{
			ID: "l1", SiteID: "s1", AffiliateIDs: []string{"l2"},
			Teams: []LeagueTeam{
				{ExternalID: "10", Team: hawks},
				{ExternalID: "11", Team: wolves},
				{ExternalID: "10", Team: bears}, // duplicate ext id: first wins
			},
		},
		{
			ID: "l2", SiteID: "s1",
			Teams: []LeagueTeam{
				{LeagueID: "l2", ExternalID: "10", Team: bears},
				{LeagueID: "l2", ExternalID: "20", Team: bears},
			},
		},
	}
}

func TestResolverFirstTeamWins(t *testing.T) {
	t.Parallel()

	r := NewResolver(testLeagues())
	got, err := r.Resolve("l1", "10")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != "t-hawks" {
		t.Fatalf("Resolve(l1,10) = %s, want t-hawks", got.ID)
	}
	if got, _ := r.Resolve("l2", "10"); got.ID != "t-bears" {
		t.Fatalf("Resolve(l2,10) = %s, want t-bears", got.ID)
	}
	if got, _ := r.ResolveSite("s1", "10"); got.ID != "t-hawks" {
		t.Fatalf("ResolveSite(s1,10) = %s, want t-hawks", got.ID)
	}
	if r.Len() != 4 {
		t.Fatalf("Len = %d, want 4", r.Len())
	}
}

func TestResolverNotFound(t *testing.T) {
	t.Parallel()

	r := NewResolver(testLeagues())
	if _, err := r.Resolve("l1", "99"); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("Resolve error = %v, want ErrTeamNotFound", err)
	}
	if _, err := r.ResolveSite("s9", "10"); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("ResolveSite error = %v, want ErrTeamNotFound", err)
	}
	if r.Has("l1", "20") {
		t.Fatalf("Has(l1,20) = true")
	}
	if !r.HasSite("s1", "20") {
		t.Fatalf("HasSite(s1,20) = false")
	}
	leagues := testLeagues()
	if !r.HasAffiliate(leagues[0], "20") {
		t.Fatalf("HasAffiliate(l1,20) = false")
	}
	if r.HasAffiliate(leagues[0], "77") {
		t.Fatalf("HasAffiliate(l1,77) = true")
	}
}

func TestSeasonChanged(t *testing.T) {
	t.Parallel()

	s := func(v string) *string { return &v }
	tests := []struct {
		prev, next *string
		want       bool
	}{
		{nil, nil, false},
		{nil, s("2025"), false},
		{s("2025"), nil, false},
		{s("2025"), s("2025"), false},
		{s("2025"), s("2026"), true},
	}
	for i, tt := range tests {
		if got := SeasonChanged(tt.prev, tt.next); got != tt.want {
			t.Fatalf("case %d: SeasonChanged = %v, want %v", i, got, tt.want)
		}
	}
}
