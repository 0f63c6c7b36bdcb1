// Package logwatch follows a host's sshd log and turns its lines into
// authentication events.
package logwatch

import (
	"regexp"
	"strings"
	"time"

	"github.com/ShanpreetSingh/cyber-siege/pkg/blocker"
	"github.com/ShanpreetSingh/cyber-siege/pkg/clock"
	"github.com/ShanpreetSingh/cyber-siege/pkg/metrics"
	"github.com/ShanpreetSingh/cyber-siege/pkg/unix_time"
)

var (
	failureRe = regexp.MustCompile(`sshd\[\d+\]: (?:Failed password|Invalid user).* from (\d{1,3}(?:\.\d{1,3}){3})`)
	successRe = regexp.MustCompile(`sshd\[\d+\]: Accepted \S+ for .* from (\d{1,3}(?:\.\d{1,3}){3})`)

	syslogStampRe = regexp.MustCompile(`^([A-Z][a-z]{2}\s+\d{1,2} \d{2}:\d{2}:\d{2})`)
	isoStampRe    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[+-]\d{4})?)`)
)

var isoLayouts = []string{
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Parser extracts authentication events from sshd log lines, in the
// classic syslog format and in journalctl's short-iso output.
type Parser struct {
	clock clock.Clock
}

func NewParser(clk clock.Clock) *Parser {
	return &Parser{clock: clk}
}

// Parse reads one log line. Lines that are not sshd authentication
// results are skipped silently, auth lines with an unreadable timestamp
// count as malformed.
func (p *Parser) Parse(line string) (blocker.AuthEvent, bool) {
	outcome := blocker.Failure
	match := failureRe.FindStringSubmatch(line)
	if match == nil {
		match = successRe.FindStringSubmatch(line)
		outcome = blocker.Success
	}
	if match == nil {
		return blocker.AuthEvent{}, false
	}

	ts, ok := p.stamp(line)
	if !ok {
		metrics.MalformedEvents.Inc()
		return blocker.AuthEvent{}, false
	}

	return blocker.AuthEvent{
		Source:    match[1],
		Outcome:   outcome,
		Timestamp: unix_time.Time(ts),
		Raw:       strings.TrimSpace(line),
	}, true
}

// stamp reads the leading timestamp. Classic syslog stamps carry no
// year, the current one is assumed unless that lands the event more
// than a day in the future.
func (p *Parser) stamp(line string) (time.Time, bool) {
	if m := isoStampRe.FindStringSubmatch(line); m != nil {
		for _, layout := range isoLayouts {
			if ts, err := time.Parse(layout, m[1]); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	}

	m := syslogStampRe.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}

	ts, err := time.Parse("Jan _2 15:04:05", m[1])
	if err != nil {
		return time.Time{}, false
	}

	now := p.clock.Now()
	ts = ts.AddDate(now.Year()-ts.Year(), 0, 0)
	if ts.After(now.Add(24 * time.Hour)) {
		ts = ts.AddDate(-1, 0, 0)
	}

	return ts, true
}
