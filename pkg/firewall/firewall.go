// Package firewall applies and lifts source blocks at the host firewall.
package firewall

import (
	"time"

	"github.com/pkg/errors"
)

var UnavailableErr = errors.New("no supported firewall backend found")

// Adapter is the single mutation surface towards the host firewall.
// Implementations are idempotent: blocking an already blocked source or
// unblocking a cleared one must not fail.
type Adapter interface {
	Name() string
	Block(ip string) error
	Unblock(ip string) error
}

const commandTimeout = 10 * time.Second

// Detect probes for an active ufw first and falls back to raw iptables.
func Detect() (Adapter, error) {
	if ufwActive() {
		return NewUfw(), nil
	}

	if ipt, err := NewIptables(); err == nil {
		return ipt, nil
	}

	return nil, UnavailableErr
}
