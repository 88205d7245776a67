package league

import (
	"context"
	"time"
)

// Team is the canonical team identity shared across leagues.
type Team struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	ShortName string `json:"short_name,omitempty" db:"short_name"`
	LogoURL   string `json:"logo_url,omitempty" db:"logo_url"`
}

// LeagueTeam maps a source-specific external id to a canonical team.
// Uniqueness is scoped to (LeagueID, ExternalID).
type LeagueTeam struct {
	LeagueID   string
	ExternalID string
	Team       Team
}

// League is owned by the catalog. Feed sync only reads it.
type League struct {
	ID           string
	SiteID       string
	ExternalID   string
	Name         string
	Teams        []LeagueTeam
	AffiliateIDs []string
	Tags         []string
	// SeasonID is nil for sites that do not expose seasons.
	SeasonID  *string
	UpdatedAt time.Time
}

// HasTag reports whether the league carries tag.
func (l League) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SeasonChanged reports whether next carries a different known season.
// An unknown season on either side is not a change.
func SeasonChanged(prev, next *string) bool {
	if prev == nil || next == nil {
		return false
	}
	return *prev != *next
}

// Catalog is the league store used by feed sync and refresh.
type Catalog interface {
	AllLeagues(ctx context.Context) ([]League, error)
	SaveLeague(ctx context.Context, l League) error
}
