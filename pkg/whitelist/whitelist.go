// Package whitelist keeps trusted sources out of the blocker's reach.
package whitelist

import (
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Guard holds the sources that must never be blocked, as exact IPs or
// CIDR ranges. The set can be edited while the daemon runs.
type Guard struct {
	lock  sync.RWMutex
	exact map[string]struct{}
	nets  map[string]*net.IPNet
}

func New(entries []string) (*Guard, error) {
	g := &Guard{
		exact: make(map[string]struct{}),
		nets:  make(map[string]*net.IPNet),
	}

	for _, e := range entries {
		if err := g.Add(e); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Add accepts an exact IP ("10.0.0.5") or a CIDR range ("10.0.0.0/8").
func (g *Guard) Add(entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return errors.New("empty whitelist entry")
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	if strings.Contains(entry, "/") {
		_, ipnet, err := net.ParseCIDR(entry)
		if err != nil {
			return errors.Wrapf(err, "invalid whitelist range %v", entry)
		}

		g.nets[ipnet.String()] = ipnet
		return nil
	}

	ip := net.ParseIP(entry)
	if ip == nil {
		return errors.Errorf("invalid whitelist address %v", entry)
	}

	g.exact[ip.String()] = struct{}{}
	return nil
}

// Remove drops an entry, reporting whether it was present.
func (g *Guard) Remove(entry string) bool {
	entry = strings.TrimSpace(entry)

	g.lock.Lock()
	defer g.lock.Unlock()

	if ip := net.ParseIP(entry); ip != nil {
		if _, ok := g.exact[ip.String()]; ok {
			delete(g.exact, ip.String())
			return true
		}
		return false
	}

	if _, ipnet, err := net.ParseCIDR(entry); err == nil {
		if _, ok := g.nets[ipnet.String()]; ok {
			delete(g.nets, ipnet.String())
			return true
		}
	}

	return false
}

// Contains reports whether a source is whitelisted. Unparseable sources
// never match.
func (g *Guard) Contains(source string) bool {
	ip := net.ParseIP(source)
	if ip == nil {
		return false
	}

	g.lock.RLock()
	defer g.lock.RUnlock()

	if _, ok := g.exact[ip.String()]; ok {
		return true
	}

	for _, n := range g.nets {
		if n.Contains(ip) {
			return true
		}
	}

	return false
}

// Entries returns the current set, sorted for stable output.
func (g *Guard) Entries() []string {
	g.lock.RLock()
	defer g.lock.RUnlock()

	entries := make([]string, 0, len(g.exact)+len(g.nets))
	for ip := range g.exact {
		entries = append(entries, ip)
	}
	for r := range g.nets {
		entries = append(entries, r)
	}

	sort.Strings(entries)
	return entries
}
