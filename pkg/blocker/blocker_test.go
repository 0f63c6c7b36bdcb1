package blocker

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ShanpreetSingh/cyber-siege/pkg/clock"
	"github.com/ShanpreetSingh/cyber-siege/pkg/firewall"
	"github.com/ShanpreetSingh/cyber-siege/pkg/storage"
	"github.com/ShanpreetSingh/cyber-siege/pkg/unix_time"
	"github.com/ShanpreetSingh/cyber-siege/pkg/whitelist"
	"github.com/pkg/errors"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeFirewall records calls and can be told to fail.
type fakeFirewall struct {
	lock      sync.Mutex
	blocked   []string
	unblocked []string
	failing   bool
}

func (f *fakeFirewall) Name() string {
	return "fake"
}

func (f *fakeFirewall) Block(ip string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.failing {
		return errors.New("fake firewall is down")
	}

	f.blocked = append(f.blocked, ip)
	return nil
}

func (f *fakeFirewall) Unblock(ip string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.failing {
		return errors.New("fake firewall is down")
	}

	f.unblocked = append(f.unblocked, ip)
	return nil
}

func (f *fakeFirewall) fail(failing bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.failing = failing
}

func (f *fakeFirewall) blockCalls() []string {
	f.lock.Lock()
	defer f.lock.Unlock()

	return append([]string(nil), f.blocked...)
}

func (f *fakeFirewall) unblockCalls() []string {
	f.lock.Lock()
	defer f.lock.Unlock()

	return append([]string(nil), f.unblocked...)
}

func newTestBlocker(t *testing.T, policy Policy, entries []string) (*Blocker, *fakeFirewall, *clock.Mock) {
	t.Helper()

	guard, err := whitelist.New(entries)
	if err != nil {
		t.Fatalf("whitelist: %v", err)
	}

	fw := &fakeFirewall{}
	clk := clock.NewMock(testEpoch)

	b, err := New(Options{
		Policy:    policy,
		Clock:     clk,
		Firewall:  fw,
		Whitelist: guard,
	})
	if err != nil {
		t.Fatalf("new blocker: %v", err)
	}

	return b, fw, clk
}

func ingestFailure(t *testing.T, b *Blocker, source string, ts time.Time) Result {
	t.Helper()

	res, err := b.Ingest(AuthEvent{
		Source:    source,
		Outcome:   Failure,
		Timestamp: unix_time.Time(ts),
	})
	if err != nil {
		t.Fatalf("ingest failure for %v: %v", source, err)
	}

	return res
}

func TestBlockAtThreshold(t *testing.T) {
	b, fw, _ := newTestBlocker(t, Policy{Attempts: 5, Period: 10 * time.Minute, BlockTime: time.Hour}, nil)

	for i := 0; i < 4; i++ {
		res := ingestFailure(t, b, "192.0.2.1", testEpoch.Add(time.Duration(i)*time.Second))
		if res.Action != None {
			t.Fatalf("got action %v after %v failures, expected none", res.Action, i+1)
		}
	}

	res := ingestFailure(t, b, "192.0.2.1", testEpoch.Add(4*time.Second))
	if res.Action != Blocked {
		t.Fatalf("got action %v on the fifth failure, expected blocked", res.Action)
	}

	wantExpiry := testEpoch.Add(4*time.Second + time.Hour)
	if !res.Entry.ExpiresAt.Time().Equal(wantExpiry) {
		t.Errorf("got expiry %v, expected %v", res.Entry.ExpiresAt.Time(), wantExpiry)
	}

	if calls := fw.blockCalls(); len(calls) != 1 || calls[0] != "192.0.2.1" {
		t.Errorf("got firewall block calls %v, expected exactly one for 192.0.2.1", calls)
	}
}

func TestSuccessResetsWindow(t *testing.T) {
	b, fw, _ := newTestBlocker(t, Policy{Attempts: 3, Period: 10 * time.Minute, BlockTime: time.Hour}, nil)

	ingestFailure(t, b, "192.0.2.1", testEpoch)
	ingestFailure(t, b, "192.0.2.1", testEpoch.Add(time.Second))

	success := AuthEvent{
		Source:    "192.0.2.1",
		Outcome:   Success,
		Timestamp: unix_time.Time(testEpoch.Add(2 * time.Second)),
	}
	if _, err := b.Ingest(success); err != nil {
		t.Fatalf("ingest success: %v", err)
	}

	if res := ingestFailure(t, b, "192.0.2.1", testEpoch.Add(3*time.Second)); res.Action != None {
		t.Fatalf("got action %v on the first failure after a success, expected none", res.Action)
	}
	if res := ingestFailure(t, b, "192.0.2.1", testEpoch.Add(4*time.Second)); res.Action != None {
		t.Fatalf("got action %v on the second failure after a success, expected none", res.Action)
	}

	if res := ingestFailure(t, b, "192.0.2.1", testEpoch.Add(5*time.Second)); res.Action != Blocked {
		t.Fatalf("got action %v on the third failure after a success, expected blocked", res.Action)
	}

	if calls := fw.blockCalls(); len(calls) != 1 {
		t.Errorf("got %v firewall block calls, expected 1", len(calls))
	}
}

func TestFailuresOutsideWindowExpire(t *testing.T) {
	b, _, _ := newTestBlocker(t, Policy{Attempts: 3, Period: time.Minute, BlockTime: time.Hour}, nil)

	ingestFailure(t, b, "192.0.2.1", testEpoch)
	ingestFailure(t, b, "192.0.2.1", testEpoch.Add(30*time.Second))

	res := ingestFailure(t, b, "192.0.2.1", testEpoch.Add(90*time.Second))
	if res.Action != None {
		t.Fatalf("got action %v, expected the first failure to have left the window", res.Action)
	}
}

func TestWhitelistedSourceNeverBlocked(t *testing.T) {
	b, fw, _ := newTestBlocker(t, Policy{Attempts: 5, Period: 10 * time.Minute, BlockTime: time.Hour}, []string{"10.0.0.5"})

	for i := 0; i < 100; i++ {
		res := ingestFailure(t, b, "10.0.0.5", testEpoch.Add(time.Duration(i)*time.Second))
		if res.Action != None {
			t.Fatalf("got action %v for a whitelisted source, expected none", res.Action)
		}
	}

	if calls := fw.blockCalls(); len(calls) != 0 {
		t.Errorf("got firewall block calls %v for a whitelisted source", calls)
	}
}

func TestRepeatedBreachesDoNotExtend(t *testing.T) {
	b, fw, _ := newTestBlocker(t, Policy{Attempts: 2, Period: 10 * time.Minute, BlockTime: time.Hour}, nil)

	ingestFailure(t, b, "192.0.2.1", testEpoch)
	res := ingestFailure(t, b, "192.0.2.1", testEpoch.Add(time.Second))
	if res.Action != Blocked {
		t.Fatalf("got action %v, expected blocked", res.Action)
	}
	wantExpiry := res.Entry.ExpiresAt.Time()

	res = ingestFailure(t, b, "192.0.2.1", testEpoch.Add(10*time.Minute))
	if res.Action != AlreadyBlocked {
		t.Fatalf("got action %v for a blocked source, expected already-blocked", res.Action)
	}
	if !res.Entry.ExpiresAt.Time().Equal(wantExpiry) {
		t.Errorf("got expiry %v after a repeated breach, expected it to stay %v", res.Entry.ExpiresAt.Time(), wantExpiry)
	}

	if calls := fw.blockCalls(); len(calls) != 1 {
		t.Errorf("got %v firewall block calls, expected 1", len(calls))
	}
}

func TestZeroBlockTimeBlocksForever(t *testing.T) {
	b, fw, clk := newTestBlocker(t, Policy{Attempts: 1, Period: time.Minute, BlockTime: 0}, nil)

	res := ingestFailure(t, b, "192.0.2.1", testEpoch)
	if res.Action != Blocked {
		t.Fatalf("got action %v, expected blocked", res.Action)
	}
	if !res.Entry.ExpiresAt.IsZero() {
		t.Fatalf("got expiry %v, expected an indefinite block", res.Entry.ExpiresAt.Time())
	}

	clk.Advance(1000 * time.Hour)
	if stats := b.Sweep(clk.Now()); stats.Expired != 0 {
		t.Errorf("got %v expired blocks, an indefinite block must not lapse", stats.Expired)
	}

	if blocked, _ := b.IsBlocked("192.0.2.1"); !blocked {
		t.Error("expected the source to still be blocked")
	}
	if calls := fw.unblockCalls(); len(calls) != 0 {
		t.Errorf("got firewall unblock calls %v, expected none", calls)
	}
}

func TestBlockExpiresOnSweep(t *testing.T) {
	b, fw, clk := newTestBlocker(t, Policy{Attempts: 1, Period: time.Minute, BlockTime: time.Hour}, nil)

	ingestFailure(t, b, "192.0.2.1", testEpoch)

	clk.Advance(30 * time.Minute)
	if stats := b.Sweep(clk.Now()); stats.Expired != 0 {
		t.Fatalf("got %v expired blocks before the expiry, expected none", stats.Expired)
	}

	clk.Advance(31 * time.Minute)
	if stats := b.Sweep(clk.Now()); stats.Expired != 1 {
		t.Fatalf("got %v expired blocks after the expiry, expected 1", stats.Expired)
	}

	if calls := fw.unblockCalls(); len(calls) != 1 || calls[0] != "192.0.2.1" {
		t.Errorf("got firewall unblock calls %v, expected exactly one for 192.0.2.1", calls)
	}
	if blocked, _ := b.IsBlocked("192.0.2.1"); blocked {
		t.Error("expected the source to be unblocked after the sweep")
	}
}

func TestWhitelistAdditionLiftsExistingBlock(t *testing.T) {
	b, fw, clk := newTestBlocker(t, Policy{Attempts: 1, Period: time.Minute, BlockTime: time.Hour}, nil)

	ingestFailure(t, b, "192.0.2.1", testEpoch)
	if blocked, _ := b.IsBlocked("192.0.2.1"); !blocked {
		t.Fatal("expected the source to be blocked")
	}

	if err := b.Whitelist().Add("192.0.2.1"); err != nil {
		t.Fatalf("whitelist add: %v", err)
	}

	if stats := b.Sweep(clk.Now()); stats.Reconciled != 1 {
		t.Fatalf("got %v reconciled blocks, expected the whitelist edit to lift one", stats.Reconciled)
	}

	if blocked, _ := b.IsBlocked("192.0.2.1"); blocked {
		t.Error("expected the source to be unblocked")
	}
	if calls := fw.unblockCalls(); len(calls) != 1 {
		t.Errorf("got %v firewall unblock calls, expected 1", len(calls))
	}
}

func TestFirewallFailureRetriedOnSweep(t *testing.T) {
	b, fw, clk := newTestBlocker(t, Policy{Attempts: 1, Period: time.Minute, BlockTime: time.Hour}, nil)

	fw.fail(true)
	res := ingestFailure(t, b, "192.0.2.1", testEpoch)
	if res.Action != Blocked {
		t.Fatalf("got action %v, the decision must commit even when the firewall is down", res.Action)
	}
	if blocked, _ := b.IsBlocked("192.0.2.1"); !blocked {
		t.Fatal("expected the block to be committed in the store")
	}

	if stats := b.Sweep(clk.Now()); stats.Retried != 0 {
		t.Fatalf("got %v retries immediately, the first retry waits for its delay", stats.Retried)
	}

	fw.fail(false)
	clk.Advance(time.Minute)
	if stats := b.Sweep(clk.Now()); stats.Retried != 1 {
		t.Fatalf("got %v retries after the delay, expected 1", stats.Retried)
	}
	if calls := fw.blockCalls(); len(calls) != 1 || calls[0] != "192.0.2.1" {
		t.Errorf("got firewall block calls %v, expected the retry to block 192.0.2.1", calls)
	}

	clk.Advance(time.Minute)
	if stats := b.Sweep(clk.Now()); stats.Retried != 0 {
		t.Errorf("got %v retries after success, expected the queue to be empty", stats.Retried)
	}
}

func TestRetryGivesUpEventually(t *testing.T) {
	b, fw, clk := newTestBlocker(t, Policy{Attempts: 1, Period: time.Minute, BlockTime: 0}, nil)

	fw.fail(true)
	ingestFailure(t, b, "192.0.2.1", testEpoch)

	for i := 0; i < retryMaxAttempts; i++ {
		clk.Advance(10 * time.Minute)
		b.Sweep(clk.Now())
	}

	var gaveUp bool
	for _, d := range b.Decisions() {
		if d.Action == ActionGiveUp && d.Source == "192.0.2.1" {
			gaveUp = true
		}
	}
	if !gaveUp {
		t.Fatal("expected a give-up decision once the retry budget is spent")
	}

	clk.Advance(10 * time.Minute)
	if stats := b.Sweep(clk.Now()); stats.Retried != 0 {
		t.Errorf("got %v retries after giving up, expected none", stats.Retried)
	}
}

func TestDryRunCommitsStateWithoutMutation(t *testing.T) {
	guard, err := whitelist.New(nil)
	if err != nil {
		t.Fatalf("whitelist: %v", err)
	}

	dry := firewall.NewDryRun()
	b, err := New(Options{
		Policy:    Policy{Attempts: 1, Period: time.Minute, BlockTime: time.Hour},
		Clock:     clock.NewMock(testEpoch),
		Firewall:  dry,
		Whitelist: guard,
	})
	if err != nil {
		t.Fatalf("new blocker: %v", err)
	}

	res := ingestFailure(t, b, "192.0.2.1", testEpoch)
	if res.Action != Blocked {
		t.Fatalf("got action %v, expected blocked", res.Action)
	}
	if blocked, _ := b.IsBlocked("192.0.2.1"); !blocked {
		t.Fatal("expected the block to be committed in the store")
	}

	intents := dry.Intents()
	if len(intents) != 1 || intents[0].Action != "block" || intents[0].IP != "192.0.2.1" {
		t.Fatalf("got intents %v, expected a single block intent for 192.0.2.1", intents)
	}

	var blocks int
	for _, d := range b.Decisions() {
		if d.Action == ActionBlock {
			blocks++
		}
	}
	if blocks != 1 {
		t.Errorf("got %v block decisions, expected 1", blocks)
	}
}

func TestIngestRejectsInvalidEvents(t *testing.T) {
	b, _, _ := newTestBlocker(t, Policy{Attempts: 1, Period: time.Minute, BlockTime: time.Hour}, nil)

	tests := []struct {
		name  string
		event AuthEvent
	}{
		{"bad address", AuthEvent{Source: "not-an-ip", Outcome: Failure, Timestamp: unix_time.Time(testEpoch)}},
		{"missing source", AuthEvent{Outcome: Failure, Timestamp: unix_time.Time(testEpoch)}},
		{"missing timestamp", AuthEvent{Source: "192.0.2.1", Outcome: Failure}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Ingest(tt.event); err != InvalidEventErr {
				t.Errorf("got error %v, expected %v", err, InvalidEventErr)
			}
		})
	}
}

func TestManualBlockAndUnblock(t *testing.T) {
	b, fw, _ := newTestBlocker(t, Policy{Attempts: 5, Period: 10 * time.Minute, BlockTime: time.Hour}, []string{"10.0.0.5"})

	if _, err := b.BlockIP("10.0.0.5"); err != WhitelistedErr {
		t.Errorf("got error %v blocking a whitelisted source, expected %v", err, WhitelistedErr)
	}

	entry, err := b.BlockIP("192.0.2.1")
	if err != nil {
		t.Fatalf("manual block: %v", err)
	}
	if entry.Reason != ReasonManual {
		t.Errorf("got reason %v, expected %v", entry.Reason, ReasonManual)
	}

	if _, err := b.BlockIP("192.0.2.1"); err != AlreadyBlockedErr {
		t.Errorf("got error %v blocking twice, expected %v", err, AlreadyBlockedErr)
	}

	if err := b.UnblockIP("192.0.2.1"); err != nil {
		t.Fatalf("manual unblock: %v", err)
	}
	if err := b.UnblockIP("192.0.2.1"); err != NotBlockedErr {
		t.Errorf("got error %v unblocking twice, expected %v", err, NotBlockedErr)
	}

	if calls := fw.blockCalls(); len(calls) != 1 {
		t.Errorf("got %v firewall block calls, expected 1", len(calls))
	}
	if calls := fw.unblockCalls(); len(calls) != 1 {
		t.Errorf("got %v firewall unblock calls, expected 1", len(calls))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := storage.NewSnapshotter(filepath.Join(t.TempDir(), "siege.snapshot"))
	policy := Policy{Attempts: 3, Period: 10 * time.Minute, BlockTime: time.Hour}

	guard, err := whitelist.New(nil)
	if err != nil {
		t.Fatalf("whitelist: %v", err)
	}

	clk := clock.NewMock(testEpoch)
	b, err := New(Options{Policy: policy, Clock: clk, Firewall: &fakeFirewall{}, Whitelist: guard, Snapshot: snap})
	if err != nil {
		t.Fatalf("new blocker: %v", err)
	}

	ingestFailure(t, b, "198.51.100.7", testEpoch)
	ingestFailure(t, b, "198.51.100.7", testEpoch.Add(time.Second))
	for i := 0; i < 3; i++ {
		ingestFailure(t, b, "192.0.2.1", testEpoch.Add(time.Duration(i)*time.Second))
	}

	if err := b.SaveSnapshot(); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	fw := &fakeFirewall{}
	restored, err := New(Options{Policy: policy, Clock: clk, Firewall: fw, Whitelist: guard, Snapshot: snap})
	if err != nil {
		t.Fatalf("new blocker: %v", err)
	}

	found, err := restored.LoadSnapshot()
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !found {
		t.Fatal("expected a snapshot to be found")
	}

	if blocked, _ := restored.IsBlocked("192.0.2.1"); !blocked {
		t.Error("expected 192.0.2.1 to be blocked after the restore")
	}
	if got := restored.Sources()["198.51.100.7"]; got != 2 {
		t.Errorf("got %v tracked failures for 198.51.100.7, expected 2", got)
	}

	restored.EnforceActive()
	if calls := fw.blockCalls(); len(calls) != 1 || calls[0] != "192.0.2.1" {
		t.Errorf("got firewall block calls %v, expected the restore to re-block 192.0.2.1", calls)
	}
}
