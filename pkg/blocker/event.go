package blocker

import (
	"net"

	"github.com/ShanpreetSingh/cyber-siege/pkg/unix_time"
	"github.com/pkg/errors"
)

// Outcome classifies an authentication attempt.
type Outcome int

const (
	Failure Outcome = iota
	Success
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failure"
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return []byte(`"` + o.String() + `"`), nil
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"failure"`:
		*o = Failure
	case `"success"`:
		*o = Success
	default:
		return errors.Errorf("unknown outcome %s", data)
	}
	return nil
}

// AuthEvent is one authentication attempt against the host.
type AuthEvent struct {
	Source    string         `json:"source"`
	Outcome   Outcome        `json:"outcome"`
	Timestamp unix_time.Time `json:"timestamp"`
	Raw       string         `json:"raw,omitempty"`
}

func (e AuthEvent) Valid() bool {
	return net.ParseIP(e.Source) != nil && !e.Timestamp.IsZero()
}
