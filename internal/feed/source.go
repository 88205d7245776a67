package feed

import (
	"context"
	"errors"

	"leaguewatch/internal/league"
)

// ErrUnsupported means the feed type does not exist for the league. It is
// distinct from an empty result, which means nothing is currently listed.
var ErrUnsupported = errors.New("feed not supported for league")

// Source fetches every currently available item for a league and type.
// Items may come back in any order.
type Source interface {
	Fetch(ctx context.Context, l league.League, t Type) ([]Item, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, l league.League, t Type) ([]Item, error)

func (f SourceFunc) Fetch(ctx context.Context, l league.League, t Type) ([]Item, error) {
	return f(ctx, l, t)
}
