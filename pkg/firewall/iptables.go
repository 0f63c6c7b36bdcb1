package firewall

import (
	"github.com/coreos/go-iptables/iptables"
	"github.com/pkg/errors"
)

// Iptables drops traffic with plain INPUT rules.
type Iptables struct {
	ipt *iptables.IPTables
}

func NewIptables() (*Iptables, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get iptables link")
	}

	return &Iptables{ipt: ipt}, nil
}

func (t *Iptables) Name() string {
	return "iptables"
}

func (t *Iptables) Block(ip string) error {
	if err := t.ipt.AppendUnique("filter", "INPUT", "-s", ip, "-j", "DROP"); err != nil {
		return errors.Wrapf(err, "failed to insert iptables rule for %v", ip)
	}

	return nil
}

func (t *Iptables) Unblock(ip string) error {
	if err := t.ipt.DeleteIfExists("filter", "INPUT", "-s", ip, "-j", "DROP"); err != nil {
		return errors.Wrapf(err, "failed to remove iptables rule for %v", ip)
	}

	return nil
}
