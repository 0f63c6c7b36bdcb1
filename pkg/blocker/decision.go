package blocker

import (
	"log"
	"sync"

	"github.com/ShanpreetSingh/cyber-siege/pkg/unix_time"
)

// Decision actions.
const (
	ActionBlock   = "block"
	ActionUnblock = "unblock"
	ActionGiveUp  = "give-up"
)

// Decision is one audited verdict: a block, an unblock, or an abandoned
// firewall operation.
type Decision struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Action    string         `json:"action"`
	Reason    string         `json:"reason"`
	Timestamp unix_time.Time `json:"timestamp"`
	ExpiresAt unix_time.Time `json:"expires_at"`
}

// Recorder receives a copy of every decision the blocker takes.
type Recorder interface {
	Record(d Decision)
}

// AuditLog keeps the most recent decisions in memory and mirrors them to
// the process log.
type AuditLog struct {
	lock    sync.Mutex
	entries []Decision
	limit   int
}

func NewAuditLog(limit int) *AuditLog {
	if limit <= 0 {
		limit = 256
	}
	return &AuditLog{limit: limit}
}

func (a *AuditLog) Record(d Decision) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.entries = append(a.entries, d)
	if len(a.entries) > a.limit {
		a.entries = a.entries[len(a.entries)-a.limit:]
	}

	log.Printf("decision %v: %v %v (reason=%v)\n", d.ID, d.Action, d.Source, d.Reason)
}

// Recent returns the retained decisions, oldest first.
func (a *AuditLog) Recent() []Decision {
	a.lock.Lock()
	defer a.lock.Unlock()

	out := make([]Decision, len(a.entries))
	copy(out, a.entries)
	return out
}
