package blocker

import (
	"sync"
	"time"

	"github.com/ShanpreetSingh/cyber-siege/pkg/unix_time"
)

// Reasons attached to decisions and block entries.
const (
	ReasonThreshold   = "threshold-exceeded"
	ReasonManual      = "manual"
	ReasonExpired     = "block-expired"
	ReasonWhitelisted = "whitelisted"
)

// BlockEntry is one block on a source. A zero ExpiresAt never expires on
// its own.
type BlockEntry struct {
	Source    string         `json:"source"`
	Reason    string         `json:"reason"`
	BlockedAt unix_time.Time `json:"blocked_at"`
	ExpiresAt unix_time.Time `json:"expires_at"`
}

// Expired reports whether the entry has lapsed at now.
func (e BlockEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt.Time())
}

// Store is the authoritative record of blocked sources. Expired entries
// are evicted lazily on reads and parked until the sweeper releases the
// matching firewall rule.
type Store struct {
	lock   sync.Mutex
	blocks map[string]BlockEntry
	lapsed []BlockEntry
}

func NewStore() *Store {
	return &Store{
		blocks: make(map[string]BlockEntry),
	}
}

// Block records an entry unless the source already carries an active
// block. The existing entry wins: repeated breaches never move an expiry.
func (s *Store) Block(entry BlockEntry, now time.Time) (BlockEntry, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if cur, ok := s.blocks[entry.Source]; ok && !cur.Expired(now) {
		return cur, false
	}

	s.blocks[entry.Source] = entry
	return entry, true
}

// Unblock removes a source's entry, lapsed or not, and returns it.
func (s *Store) Unblock(source string) (BlockEntry, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	entry, ok := s.blocks[source]
	if ok {
		delete(s.blocks, source)
	}

	kept := s.lapsed[:0]
	for _, e := range s.lapsed {
		if e.Source == source {
			if !ok {
				entry, ok = e, true
			}
			continue
		}
		kept = append(kept, e)
	}
	s.lapsed = kept

	return entry, ok
}

// Get returns the stored entry for a source, expired or not.
func (s *Store) Get(source string) (BlockEntry, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	entry, ok := s.blocks[source]
	return entry, ok
}

// IsBlocked reports whether a source is actively blocked. A lapsed entry
// is evicted and parked, the sweeper still owes the firewall a release
// for it.
func (s *Store) IsBlocked(source string, now time.Time) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	entry, ok := s.blocks[source]
	if !ok {
		return false
	}

	if entry.Expired(now) {
		delete(s.blocks, source)
		s.lapsed = append(s.lapsed, entry)
		return false
	}

	return true
}

// TakeLapsed removes and returns every entry expired by now, including
// ones evicted lazily since the last call. Sources that were re-blocked
// in the meantime are skipped, their firewall rule must stay.
func (s *Store) TakeLapsed(now time.Time) []BlockEntry {
	s.lock.Lock()
	defer s.lock.Unlock()

	seen := make(map[string]struct{})
	var out []BlockEntry

	take := func(entry BlockEntry) {
		if _, ok := seen[entry.Source]; ok {
			return
		}
		seen[entry.Source] = struct{}{}
		out = append(out, entry)
	}

	for source, entry := range s.blocks {
		if entry.Expired(now) {
			delete(s.blocks, source)
			take(entry)
		}
	}

	for _, entry := range s.lapsed {
		if cur, ok := s.blocks[entry.Source]; ok && !cur.Expired(now) {
			continue
		}
		take(entry)
	}
	s.lapsed = nil

	return out
}

// All returns the entries still active at now.
func (s *Store) All(now time.Time) []BlockEntry {
	s.lock.Lock()
	defer s.lock.Unlock()

	entries := make([]BlockEntry, 0, len(s.blocks))
	for _, e := range s.blocks {
		if !e.Expired(now) {
			entries = append(entries, e)
		}
	}

	return entries
}

func (s *Store) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.blocks)
}

// Snapshot copies every entry, including ones awaiting release.
func (s *Store) Snapshot() []BlockEntry {
	s.lock.Lock()
	defer s.lock.Unlock()

	entries := make([]BlockEntry, 0, len(s.blocks)+len(s.lapsed))
	for _, e := range s.blocks {
		entries = append(entries, e)
	}
	entries = append(entries, s.lapsed...)

	return entries
}

// Restore replaces the store's state. Expired entries land back in the
// blocks map and are released on the first sweep.
func (s *Store) Restore(entries []BlockEntry) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.blocks = make(map[string]BlockEntry, len(entries))
	s.lapsed = nil
	for _, e := range entries {
		s.blocks[e.Source] = e
	}
}
