package watcher

import (
	"context"
	"time"

	logx "leaguewatch/pkg/logx"
)

// Pruner purges watchers archived longer than the retention window.
type Pruner struct {
	store     Store
	retention time.Duration
	log       logx.Logger
	now       func() time.Time
}

func NewPruner(store Store, retention time.Duration, log logx.Logger) *Pruner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pruner{store: store, retention: retention, log: log, now: time.Now}
}

// Prune deletes watchers archived before now-retention.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.PruneArchived(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.log.Info("archived watchers pruned", logx.Int("count", n), logx.Time("before", cutoff))
	}
	return n, nil
}
