package store

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Pruner drops snapshots that fall out of the retention window.
type Pruner struct {
	store     SnapshotStore
	retention time.Duration
	interval  time.Duration
	log       *logrus.Entry
}

// NewPruner creates a background pruner for the given store.
func NewPruner(store SnapshotStore, retention, interval time.Duration, logger *logrus.Logger) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  interval,
		log:       logger.WithField("component", "store-pruner"),
	}
}

// Run prunes on a ticker until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pruneOnce()
		}
	}
}

func (p *Pruner) pruneOnce() {
	cutoff := time.Now().Add(-p.retention)
	removed, err := p.store.DeleteBefore(cutoff)
	if err != nil {
		p.log.WithError(err).Error("retention prune failed")
		return
	}
	if removed > 0 {
		p.log.WithFields(logrus.Fields{"removed": removed, "cutoff": cutoff}).Debug("pruned snapshots")
	}
}
