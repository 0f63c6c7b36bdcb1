// Package blocker decides when authentication failures turn into firewall
// blocks and keeps the firewall in line with those decisions.
package blocker

import (
	"log"
	"sync"
	"time"

	"github.com/ShanpreetSingh/cyber-siege/pkg/clock"
	"github.com/ShanpreetSingh/cyber-siege/pkg/firewall"
	"github.com/ShanpreetSingh/cyber-siege/pkg/metrics"
	"github.com/ShanpreetSingh/cyber-siege/pkg/storage"
	"github.com/ShanpreetSingh/cyber-siege/pkg/unix_time"
	"github.com/ShanpreetSingh/cyber-siege/pkg/whitelist"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	InvalidEventErr   = errors.New("invalid authentication event")
	WhitelistedErr    = errors.New("source is whitelisted")
	AlreadyBlockedErr = errors.New("source is already blocked")
	NotBlockedErr     = errors.New("source is not blocked")
)

// Policy holds the detection thresholds. A zero BlockTime blocks forever.
type Policy struct {
	Attempts  int           `json:"attempts"`
	Period    time.Duration `json:"period"`
	BlockTime time.Duration `json:"block_time"`
}

func (p Policy) Validate() error {
	if p.Attempts < 1 {
		return errors.Errorf("attempts must be at least 1, got %v", p.Attempts)
	}
	if p.Period <= 0 {
		return errors.Errorf("period must be positive, got %v", p.Period)
	}
	if p.BlockTime < 0 {
		return errors.Errorf("block time cannot be negative, got %v", p.BlockTime)
	}
	return nil
}

// Action is the verdict for a single evaluation.
type Action int

const (
	None Action = iota
	Blocked
	AlreadyBlocked
)

func (a Action) String() string {
	switch a {
	case Blocked:
		return "blocked"
	case AlreadyBlocked:
		return "already-blocked"
	default:
		return "none"
	}
}

// Result pairs the verdict with the block entry it refers to, if any.
type Result struct {
	Action Action
	Entry  BlockEntry
}

// Options wires the blocker's collaborators. Firewall is the only
// mandatory field.
type Options struct {
	Policy    Policy
	Clock     clock.Clock
	Firewall  firewall.Adapter
	Whitelist *whitelist.Guard

	// Notifier receives a copy of every decision, on top of the
	// built-in audit log.
	Notifier Recorder

	// Snapshot persists state across restarts when set.
	Snapshot *storage.Snapshotter

	// AuditSize caps the retained decisions, defaulting to 256.
	AuditSize int
}

// Blocker turns authentication events into block and unblock decisions.
// State commits before the firewall is called and never under a lock, a
// failed call is retried on later sweeps.
type Blocker struct {
	policy    Policy
	clock     clock.Clock
	firewall  firewall.Adapter
	whitelist *whitelist.Guard
	notifier  Recorder
	snap      *storage.Snapshotter

	tracker *Tracker
	store   *Store
	audit   *AuditLog

	retryLock sync.Mutex
	retries   map[string]*pendingOp
}

func New(opts Options) (*Blocker, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid policy")
	}
	if opts.Firewall == nil {
		return nil, errors.New("a firewall adapter is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Whitelist == nil {
		opts.Whitelist, _ = whitelist.New(nil)
	}

	return &Blocker{
		policy:    opts.Policy,
		clock:     opts.Clock,
		firewall:  opts.Firewall,
		whitelist: opts.Whitelist,
		notifier:  opts.Notifier,
		snap:      opts.Snapshot,
		tracker:   NewTracker(opts.Policy.Period),
		store:     NewStore(),
		audit:     NewAuditLog(opts.AuditSize),
		retries:   make(map[string]*pendingOp),
	}, nil
}

// Ingest validates and applies one authentication event, then evaluates
// its source. This is the single entry point for the log watcher and the
// API alike.
func (b *Blocker) Ingest(event AuthEvent) (Result, error) {
	if !event.Valid() {
		metrics.MalformedEvents.Inc()
		return Result{}, InvalidEventErr
	}

	ts := event.Timestamp.Time()
	b.tracker.Record(event.Source, ts, event.Outcome)
	metrics.AuthEvents.WithLabelValues(event.Outcome.String()).Inc()

	if event.Outcome == Success {
		return Result{Action: None}, nil
	}

	return b.Evaluate(event.Source, ts), nil
}

// Evaluate runs the decision sequence for a source at a given time:
// whitelisted sources always win, an active block stays untouched, and a
// window at or above the attempt limit commits a new block.
func (b *Blocker) Evaluate(source string, now time.Time) Result {
	if b.whitelist.Contains(source) {
		if entry, ok := b.store.Unblock(source); ok {
			b.lift(entry, ReasonWhitelisted, now)
		}
		return Result{Action: None}
	}

	if b.store.IsBlocked(source, now) {
		entry, _ := b.store.Get(source)
		return Result{Action: AlreadyBlocked, Entry: entry}
	}

	if b.tracker.Count(source, now) < b.policy.Attempts {
		return Result{Action: None}
	}

	entry := BlockEntry{
		Source:    source,
		Reason:    ReasonThreshold,
		BlockedAt: unix_time.Time(now),
	}
	if b.policy.BlockTime > 0 {
		entry.ExpiresAt = unix_time.Time(now.Add(b.policy.BlockTime))
	}

	committed, ok := b.store.Block(entry, now)
	if !ok {
		return Result{Action: AlreadyBlocked, Entry: committed}
	}

	b.tracker.Reset(source)
	b.apply(committed, now)

	return Result{Action: Blocked, Entry: committed}
}

// BlockIP imposes a manual block with the configured block time.
func (b *Blocker) BlockIP(ip string) (BlockEntry, error) {
	now := b.clock.Now()

	if b.whitelist.Contains(ip) {
		return BlockEntry{}, WhitelistedErr
	}

	entry := BlockEntry{
		Source:    ip,
		Reason:    ReasonManual,
		BlockedAt: unix_time.Time(now),
	}
	if b.policy.BlockTime > 0 {
		entry.ExpiresAt = unix_time.Time(now.Add(b.policy.BlockTime))
	}

	committed, ok := b.store.Block(entry, now)
	if !ok {
		return committed, AlreadyBlockedErr
	}

	b.apply(committed, now)
	return committed, nil
}

// UnblockIP lifts a block by hand.
func (b *Blocker) UnblockIP(ip string) error {
	entry, ok := b.store.Unblock(ip)
	if !ok {
		return NotBlockedErr
	}

	b.lift(entry, ReasonManual, b.clock.Now())
	return nil
}

// IsBlocked reports whether a source is actively blocked right now.
func (b *Blocker) IsBlocked(ip string) (bool, BlockEntry) {
	if !b.store.IsBlocked(ip, b.clock.Now()) {
		return false, BlockEntry{}
	}

	entry, _ := b.store.Get(ip)
	return true, entry
}

// BlockedEntries returns the currently active blocks.
func (b *Blocker) BlockedEntries() []BlockEntry {
	return b.store.All(b.clock.Now())
}

// Sources returns the in-window failure count per source.
func (b *Blocker) Sources() map[string]int {
	return b.tracker.Sources()
}

// Decisions returns the retained audit decisions, oldest first.
func (b *Blocker) Decisions() []Decision {
	return b.audit.Recent()
}

// Policy returns the active policy.
func (b *Blocker) Policy() Policy {
	return b.policy
}

// Whitelist exposes the runtime-editable guard.
func (b *Blocker) Whitelist() *whitelist.Guard {
	return b.whitelist
}

// apply pushes a committed block to the firewall. The store is already
// updated, a failed call lands in the retry queue.
func (b *Blocker) apply(entry BlockEntry, now time.Time) {
	b.decide(entry.Source, ActionBlock, entry.Reason, now, entry.ExpiresAt)
	metrics.Blocks.Inc()
	metrics.ActiveBlocks.Set(float64(b.store.Len()))

	if err := b.firewall.Block(entry.Source); err != nil {
		metrics.FirewallErrors.Inc()
		log.Printf("failed to block %v at the firewall: %v\n", entry.Source, err)
		b.queueRetry(opBlock, entry.Source, now)
	}

	b.saveAsync()
}

// lift releases a block at the firewall after its store entry is gone.
func (b *Blocker) lift(entry BlockEntry, reason string, now time.Time) {
	b.decide(entry.Source, ActionUnblock, reason, now, entry.ExpiresAt)
	metrics.Unblocks.Inc()
	metrics.ActiveBlocks.Set(float64(b.store.Len()))

	if err := b.firewall.Unblock(entry.Source); err != nil {
		metrics.FirewallErrors.Inc()
		log.Printf("failed to unblock %v at the firewall: %v\n", entry.Source, err)
		b.queueRetry(opUnblock, entry.Source, now)
	}

	b.saveAsync()
}

// decide records one decision with the audit log and the notifier.
func (b *Blocker) decide(source, action, reason string, now time.Time, expires unix_time.Time) {
	d := Decision{
		ID:        uuid.New().String(),
		Source:    source,
		Action:    action,
		Reason:    reason,
		Timestamp: unix_time.Time(now),
		ExpiresAt: expires,
	}

	b.audit.Record(d)
	if b.notifier != nil {
		b.notifier.Record(d)
	}
}
