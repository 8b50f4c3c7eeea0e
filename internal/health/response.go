// Package health holds the operator-facing health state of one directory
// node and evaluates it into the single status line a load balancer's
// agent-check understands.
package health

import (
	"fmt"
	"strings"
)

// Status is the externally visible node state.
type Status int

const (
	StatusUp Status = iota
	StatusDown
	StatusFail
	StatusStopped
	// StatusReady and StatusMaint are the maintenance-mode spellings of up
	// and down.
	StatusReady
	StatusMaint
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "up"
	case StatusDown:
		return "down"
	case StatusFail:
		return "fail"
	case StatusStopped:
		return "stopped"
	case StatusReady:
		return "ready"
	case StatusMaint:
		return "maint"
	default:
		return "down"
	}
}

// MarshalText makes the status serialize as its protocol spelling.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the protocol spelling produced by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "up":
		*s = StatusUp
	case "down":
		*s = StatusDown
	case "fail":
		*s = StatusFail
	case "stopped":
		*s = StatusStopped
	case "ready":
		*s = StatusReady
	case "maint":
		*s = StatusMaint
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Response is the materialized agent-check answer. Weight is a percentage.
type Response struct {
	Status  Status  `json:"status"`
	Weight  *uint64 `json:"weight,omitempty"`
	MaxConn *uint64 `json:"maxconn,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// NewUp is the serving starting response. The agent seeds with it so a
// capacity-only override like drain leaves a healthy node in the backend.
func NewUp() Response {
	return Response{Status: StatusUp}
}

// NewDown is the pessimistic response.
func NewDown() Response {
	return Response{Status: StatusDown}
}

// Drain zeroes the advertised capacity without changing the state.
func (r *Response) Drain() {
	weight := uint64(0)
	r.Weight = &weight
}

// Maintenance switches the node into maintenance mode.
func (r *Response) Maintenance() {
	r.Status = StatusMaint
}

// UpAndReady restores full weight and clears any failure reason. A node in
// maintenance comes back as "ready" rather than "up" so the balancer keeps
// its maintenance bookkeeping consistent.
func (r *Response) UpAndReady() {
	weight := uint64(100)
	r.Weight = &weight
	r.Reason = ""
	if r.Status == StatusMaint {
		r.Status = StatusReady
	} else {
		r.Status = StatusUp
	}
}

// Fail marks the node failed with a reason.
func (r *Response) Fail(reason string) {
	r.Status = StatusFail
	r.Reason = reason
}

// Stop marks the node stopped with a reason.
func (r *Response) Stop(reason string) {
	r.Status = StatusStopped
	r.Reason = reason
}

// Down marks the node down with a reason.
func (r *Response) Down(reason string) {
	r.Status = StatusDown
	r.Reason = reason
}

func asciiFilter(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c < 128 {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// AgentCheckLine encodes the response as one agent-check protocol line:
//
//	<state>[ weight:<0-100>%][ maxconn:<n>][ #<reason>]\n
//
// Weight and maxconn only make sense for a serving node (up/ready); the
// reason only accompanies a non-serving one (down/fail/stopped). The reason
// is ASCII-filtered and newline-stripped so it cannot break the line
// protocol.
func (r Response) AgentCheckLine() string {
	var b strings.Builder
	b.WriteString(r.Status.String())

	if r.Status == StatusUp || r.Status == StatusReady {
		if r.Weight != nil {
			fmt.Fprintf(&b, " weight:%d%%", *r.Weight)
		}
		if r.MaxConn != nil {
			fmt.Fprintf(&b, " maxconn:%d", *r.MaxConn)
		}
	}

	if r.Status == StatusDown || r.Status == StatusFail || r.Status == StatusStopped {
		if r.Reason != "" {
			reason := asciiFilter(strings.ReplaceAll(strings.TrimSpace(r.Reason), "\n", " "))
			b.WriteString(" #")
			b.WriteString(reason)
		}
	}

	b.WriteString("\n")
	return b.String()
}
