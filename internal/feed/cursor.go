package feed

import (
	"context"
	"time"
)

// Cursor is the resume point of one league for one feed type.
//
// Hash-cursor feeds use Hash, hash+timestamp feeds use both fields and the
// daily-star throttle uses Timestamp as the last run time.
type Cursor struct {
	LeagueID  string
	Type      Type
	Hash      string
	Timestamp time.Time
	UpdatedAt time.Time
}

// CursorStore persists cursors. LoadCursor reports ok=false when no cursor
// was ever saved, which marks a first run.
type CursorStore interface {
	LoadCursor(ctx context.Context, leagueID string, t Type) (c Cursor, ok bool, err error)
	SaveCursor(ctx context.Context, c Cursor) error
	DeleteCursors(ctx context.Context, leagueID string) error
}

// GameState is the last announced result of one game.
type GameState struct {
	LeagueID   string
	GameID     string
	OccurredAt time.Time
	HomeScore  int
	AwayScore  int
	Overtime   bool
	Shootout   bool
}

// Changed reports whether any announced field differs. Times compare at
// millisecond precision, the resolution stores keep.
func (g GameState) Changed(next GameState) bool {
	return g.OccurredAt.UnixMilli() != next.OccurredAt.UnixMilli() ||
		g.HomeScore != next.HomeScore ||
		g.AwayScore != next.AwayScore ||
		g.Overtime != next.Overtime ||
		g.Shootout != next.Shootout
}

// GameStore persists per-game results keyed by external game id.
type GameStore interface {
	LoadGameStates(ctx context.Context, leagueID string) (map[string]GameState, error)
	SaveGameState(ctx context.Context, g GameState) error
	DeleteGameStates(ctx context.Context, leagueID string) error
}
