package feed

import (
	"fmt"
	"strings"
)

// Type identifies one of the known feeds.
type Type string

const (
	TypeBid               Type = "bid"
	TypeContract          Type = "contract"
	TypeDraftPick         Type = "draft_pick"
	TypeGame              Type = "game"
	TypeNews              Type = "news"
	TypeRosterTransaction Type = "roster_transaction"
	TypeTrade             Type = "trade"
	TypeWaiver            Type = "waiver"
	TypeDailyStar         Type = "daily_star"
)

var allTypes = []Type{
	TypeBid, TypeContract, TypeDraftPick, TypeGame, TypeNews,
	TypeRosterTransaction, TypeTrade, TypeWaiver, TypeDailyStar,
}

// All returns every feed type in a stable order.
func All() []Type { return append([]Type(nil), allTypes...) }

func (t Type) Valid() bool {
	for _, v := range allTypes {
		if v == t {
			return true
		}
	}
	return false
}

func (t Type) String() string { return string(t) }

// ParseType accepts the canonical name case-insensitively, with '-' or '_'.
func ParseType(s string) (Type, error) {
	t := Type(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !t.Valid() {
		return "", fmt.Errorf("unknown feed type %q", s)
	}
	return t, nil
}
