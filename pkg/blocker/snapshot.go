package blocker

import (
	"log"
	"time"

	"github.com/ShanpreetSingh/cyber-siege/pkg/metrics"
)

// Snapshot is the persisted daemon state.
type Snapshot struct {
	SavedAt  time.Time
	Failures map[string][]time.Time
	Blocks   []BlockEntry
}

// SnapshotData copies the current state for persistence.
func (b *Blocker) SnapshotData() Snapshot {
	return Snapshot{
		SavedAt:  b.clock.Now(),
		Failures: b.tracker.Snapshot(),
		Blocks:   b.store.Snapshot(),
	}
}

// RestoreSnapshot replaces tracker and store state. Restored blocks are
// not pushed to the firewall here, use EnforceActive for that.
func (b *Blocker) RestoreSnapshot(snap Snapshot) {
	b.tracker.Restore(snap.Failures)
	b.store.Restore(snap.Blocks)
	metrics.ActiveBlocks.Set(float64(b.store.Len()))
}

// LoadSnapshot restores persisted state if a snapshotter is configured
// and a snapshot file exists.
func (b *Blocker) LoadSnapshot() (bool, error) {
	if b.snap == nil {
		return false, nil
	}

	var snap Snapshot
	found, err := b.snap.Load(&snap)
	if err != nil || !found {
		return false, err
	}

	b.RestoreSnapshot(snap)
	return true, nil
}

// SaveSnapshot writes the current state synchronously.
func (b *Blocker) SaveSnapshot() error {
	if b.snap == nil {
		return nil
	}

	return b.snap.Save(b.SnapshotData())
}

func (b *Blocker) saveAsync() {
	if b.snap == nil {
		return
	}

	b.snap.SaveAsync(b.SnapshotData())
}

// EnforceActive reapplies firewall rules for every active block, used
// after a snapshot restore. Failures land in the retry queue. Blocking
// an already blocked source is a no-op at the firewall, so repeating
// rules is safe.
func (b *Blocker) EnforceActive() {
	now := b.clock.Now()

	for _, entry := range b.store.All(now) {
		if err := b.firewall.Block(entry.Source); err != nil {
			metrics.FirewallErrors.Inc()
			log.Printf("failed to re-block %v at the firewall: %v\n", entry.Source, err)
			b.queueRetry(opBlock, entry.Source, now)
		}
	}
}
