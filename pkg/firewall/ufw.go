package firewall

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Ufw shells out to the uncomplicated firewall.
type Ufw struct {
	timeout time.Duration
}

func NewUfw() *Ufw {
	return &Ufw{timeout: commandTimeout}
}

func (u *Ufw) Name() string {
	return "ufw"
}

func (u *Ufw) Block(ip string) error {
	return u.run("deny", "from", ip, "to", "any")
}

func (u *Ufw) Unblock(ip string) error {
	return u.run("delete", "deny", "from", ip, "to", "any")
}

func (u *Ufw) run(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ufw", args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "ufw %v failed: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}

	return nil
}

// ufwActive reports whether ufw is installed and enabled.
func ufwActive() bool {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ufw", "status").CombinedOutput()
	return err == nil && strings.Contains(string(out), "Status: active")
}
