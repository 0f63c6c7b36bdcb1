package blocker

import (
	"context"
	"log"
	"time"

	"github.com/ShanpreetSingh/cyber-siege/pkg/metrics"
)

// SweepStats summarizes one maintenance pass.
type SweepStats struct {
	PrunedSources int
	Expired       int
	Reconciled    int
	Retried       int
}

func (s SweepStats) empty() bool {
	return s.PrunedSources == 0 && s.Expired == 0 && s.Reconciled == 0 && s.Retried == 0
}

// Sweep runs one maintenance pass: expire stale failures, lift lapsed
// blocks, honor whitelist edits, and replay failed firewall calls.
func (b *Blocker) Sweep(now time.Time) SweepStats {
	stats := SweepStats{}

	stats.PrunedSources = b.tracker.Prune(now)

	for _, entry := range b.store.TakeLapsed(now) {
		b.lift(entry, ReasonExpired, now)
		stats.Expired++
	}

	for _, entry := range b.store.All(now) {
		if !b.whitelist.Contains(entry.Source) {
			continue
		}
		if removed, ok := b.store.Unblock(entry.Source); ok {
			b.lift(removed, ReasonWhitelisted, now)
			stats.Reconciled++
		}
	}

	stats.Retried = b.retryPending(now)

	metrics.ActiveBlocks.Set(float64(b.store.Len()))
	metrics.TrackedSources.Set(float64(len(b.tracker.Sources())))

	if !stats.empty() {
		b.saveAsync()
	}

	return stats
}

// Sweeper periodically runs the blocker's maintenance pass.
type Sweeper struct {
	blocker  *Blocker
	interval time.Duration
}

func NewSweeper(b *Blocker, interval time.Duration) *Sweeper {
	return &Sweeper{blocker: b, interval: interval}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.blocker.Sweep(s.blocker.clock.Now())
			if !stats.empty() {
				log.Printf("sweep: expired=%v reconciled=%v pruned=%v retried=%v\n",
					stats.Expired, stats.Reconciled, stats.PrunedSources, stats.Retried)
			}
		}
	}
}
