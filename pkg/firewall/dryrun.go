package firewall

import (
	"log"
	"sync"
	"time"
)

const maxIntents = 1024

// Intent is a mutation the dry-run adapter would have applied.
type Intent struct {
	Action string    `json:"action"`
	IP     string    `json:"ip"`
	At     time.Time `json:"at"`
}

// DryRun logs intended mutations and keeps them for inspection without
// ever touching the firewall.
type DryRun struct {
	lock    sync.Mutex
	intents []Intent
}

func NewDryRun() *DryRun {
	return &DryRun{}
}

func (d *DryRun) Name() string {
	return "dry-run"
}

func (d *DryRun) Block(ip string) error {
	d.record("block", ip)
	return nil
}

func (d *DryRun) Unblock(ip string) error {
	d.record("unblock", ip)
	return nil
}

func (d *DryRun) record(action, ip string) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.intents = append(d.intents, Intent{Action: action, IP: ip, At: time.Now()})
	if len(d.intents) > maxIntents {
		d.intents = d.intents[len(d.intents)-maxIntents:]
	}

	log.Printf("dry run: would %v %v\n", action, ip)
}

// Intents returns a copy of the recorded mutations, oldest first.
func (d *DryRun) Intents() []Intent {
	d.lock.Lock()
	defer d.lock.Unlock()

	out := make([]Intent, len(d.intents))
	copy(out, d.intents)
	return out
}
