package feedsync

import (
	"sort"
	"strings"

	"leaguewatch/internal/feed"
)

type cursorKind int

const (
	cursorHash cursorKind = iota
	cursorHashTime
	cursorThrottle
	cursorGameState
)

// strategy is everything that varies between feed types.
type strategy struct {
	cursor cursorKind
	// less is the canonical total order. Every hash-cursor feed ends on the
	// fingerprint so source order never matters.
	less   func(a, b feed.Item) bool
	render renderFunc
}

func byTime(a, b feed.Item) (less, decided bool) {
	at, bt := a.OccurredAt(), b.OccurredAt()
	if at.Equal(bt) {
		return false, false
	}
	return at.Before(bt), true
}

func timeThenFingerprint(a, b feed.Item) bool {
	if l, ok := byTime(a, b); ok {
		return l
	}
	return a.Fingerprint() < b.Fingerprint()
}

func bidOrder(a, b feed.Item) bool {
	if l, ok := byTime(a, b); ok {
		return l
	}
	ab, _ := a.(*feed.Bid)
	bb, _ := b.(*feed.Bid)
	if ab != nil && bb != nil {
		if an, bn := strings.ToLower(ab.PlayerName), strings.ToLower(bb.PlayerName); an != bn {
			return an < bn
		}
	}
	return a.Fingerprint() < b.Fingerprint()
}

func draftOrder(a, b feed.Item) bool {
	if l, ok := byTime(a, b); ok {
		return l
	}
	ad, _ := a.(*feed.DraftPick)
	bd, _ := b.(*feed.DraftPick)
	if ad != nil && bd != nil {
		if ad.Round != bd.Round {
			return ad.Round < bd.Round
		}
		if ad.Pick != bd.Pick {
			return ad.Pick < bd.Pick
		}
	}
	return a.Fingerprint() < b.Fingerprint()
}

func gameOrder(a, b feed.Item) bool {
	if l, ok := byTime(a, b); ok {
		return l
	}
	ag, _ := a.(*feed.Game)
	bg, _ := b.(*feed.Game)
	if ag != nil && bg != nil && ag.GameID != bg.GameID {
		return ag.GameID < bg.GameID
	}
	return a.Fingerprint() < b.Fingerprint()
}

func starOrder(a, b feed.Item) bool {
	as, _ := a.(*feed.DailyStar)
	bs, _ := b.(*feed.DailyStar)
	if as == nil || bs == nil {
		return false
	}
	return as.Rank < bs.Rank
}

var strategies = map[feed.Type]strategy{
	feed.TypeBid:               {cursor: cursorHash, less: bidOrder, render: renderBid},
	feed.TypeContract:          {cursor: cursorHash, less: timeThenFingerprint, render: renderContract},
	feed.TypeDraftPick:         {cursor: cursorHash, less: draftOrder, render: renderDraftPick},
	feed.TypeTrade:             {cursor: cursorHash, less: timeThenFingerprint, render: renderTrade},
	feed.TypeWaiver:            {cursor: cursorHash, less: timeThenFingerprint, render: renderWaiver},
	feed.TypeNews:              {cursor: cursorHashTime, less: timeThenFingerprint, render: renderNews},
	feed.TypeRosterTransaction: {cursor: cursorHashTime, less: timeThenFingerprint, render: renderRoster},
	feed.TypeGame:              {cursor: cursorGameState, less: gameOrder, render: renderGame},
	feed.TypeDailyStar:         {cursor: cursorThrottle, less: starOrder},
}

func sortItems(items []feed.Item, less func(a, b feed.Item) bool) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

// trimThrough drops every item up to and including the one whose
// fingerprint equals hash. When hash is not present, items are all new.
func trimThrough(items []feed.Item, hash string) []feed.Item {
	if hash == "" {
		return items
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Fingerprint() == hash {
			return items[i+1:]
		}
	}
	return items
}
