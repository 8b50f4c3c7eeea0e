// Package nagios implements the plugin-style check protocol: an exit code,
// one status line and machine-readable perfdata after the pipe.
package nagios

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ReturnCode is the plugin exit code.
type ReturnCode int

const (
	OK       ReturnCode = 0
	Warning  ReturnCode = 1
	Critical ReturnCode = 2
	Unknown  ReturnCode = 3
)

func (rc ReturnCode) String() string {
	switch rc {
	case OK:
		return "OK"
	case Warning:
		return "WARN"
	case Critical:
		return "CRIT"
	default:
		return "UNKNOWN"
	}
}

// Warn escalates OK to Warning. A worse code is never downgraded.
func (rc *ReturnCode) Warn() {
	if *rc == OK {
		*rc = Warning
	}
}

// Crit escalates OK or Warning to Critical. Unknown stays Unknown.
func (rc *ReturnCode) Crit() {
	if *rc == OK || *rc == Warning {
		*rc = Critical
	}
}

// Value is an optional perfdata number. The zero Value renders empty, which
// is how the protocol spells "not set".
type Value struct {
	text string
}

func Int(v uint64) Value {
	return Value{text: strconv.FormatUint(v, 10)}
}

func Float(v float64) Value {
	return Value{text: strconv.FormatFloat(v, 'f', -1, 64)}
}

// IntPtr converts an optional threshold; nil renders empty.
func IntPtr(v *uint64) Value {
	if v == nil {
		return Value{}
	}
	return Int(*v)
}

// FloatPtr converts an optional threshold; nil renders empty.
func FloatPtr(v *float64) Value {
	if v == nil {
		return Value{}
	}
	return Float(*v)
}

func (v Value) String() string { return v.text }

// PerfData is one labeled measurement with its thresholds and range.
type PerfData struct {
	Value Value
	Warn  Value
	Crit  Value
	Min   Value
	Max   Value
	Unit  string
}

func (p PerfData) String() string {
	return fmt.Sprintf("%s%s;%s;%s;%s;%s ", p.Value, p.Unit, p.Warn, p.Crit, p.Min, p.Max)
}

// Result accumulates the outcome of one check run.
type Result struct {
	Code        ReturnCode
	Description string
	PerfData    map[string]PerfData
}

func NewResult() *Result {
	return &Result{PerfData: make(map[string]PerfData)}
}

// Add records one perfdata entry.
func (r *Result) Add(key string, pd PerfData) {
	r.PerfData[key] = pd
}

// Render produces the full status line. Perfdata keys are sorted so repeated
// runs are diffable; quotes and equals signs are stripped from keys since
// they would break the format.
func (r *Result) Render() string {
	keys := make([]string, 0, len(r.PerfData))
	for k := range r.PerfData {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s | ", r.Code, r.Description)
	for _, k := range keys {
		clean := strings.NewReplacer("'", "", "=", "").Replace(k)
		fmt.Fprintf(&b, "'%s'=%s", clean, r.PerfData[k])
	}
	return b.String()
}

// ExitWithMessage prints the status line and terminates the process with the
// accumulated code.
func (r *Result) ExitWithMessage() {
	fmt.Println(r.Render())
	os.Exit(int(r.Code))
}
