// Package dsctl shells out to the 389-ds administration tooling for the
// checks that have no LDAP equivalent: lint-style healthchecks and the
// systemd unit state.
package dsctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// DefaultInstance is the instance name used when none is configured.
const DefaultInstance = "default"

// Severity ranks a healthcheck finding. The numeric values leave room
// between levels so scores can be summed per bucket.
type Severity int

const (
	SeverityLow    Severity = 0
	SeverityMedium Severity = 100
	SeverityHigh   Severity = 1000
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// UnmarshalJSON accepts the mixed-case spellings dsctl emits.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch strings.ToUpper(raw) {
	case "HIGH":
		*s = SeverityHigh
	case "MEDIUM":
		*s = SeverityMedium
	case "LOW":
		*s = SeverityLow
	default:
		return fmt.Errorf("unknown severity %q", raw)
	}
	return nil
}

// CheckResult is one finding from dsctl healthcheck --json.
type CheckResult struct {
	DSLE        string   `json:"dsle"`
	Severity    Severity `json:"severity"`
	Items       []string `json:"items"`
	Detail      string   `json:"detail"`
	Fix         string   `json:"fix"`
	Description string   `json:"description"`
}

// Command runs dsctl/systemctl for one directory instance. A zero Timeout
// means no limit beyond the caller's context.
type Command struct {
	Instance string        `mapstructure:"instance"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (c Command) instance() string {
	if c.Instance == "" {
		return DefaultInstance
	}
	return c.Instance
}

func (c Command) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), msg)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// ListChecks returns the available check patterns collapsed to their prefix
// form ("config:*", "backends:*", ...), sorted.
func (c Command) ListChecks(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "sudo", "dsctl", "--json", c.instance(), "healthcheck", "--list-checks")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, line := range strings.Split(string(out), "\n") {
		prefix, _, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		seen[prefix+":*"] = struct{}{}
	}

	patterns := make([]string, 0, len(seen))
	for p := range seen {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	return patterns, nil
}

// Healthcheck runs one check pattern and decodes its findings.
func (c Command) Healthcheck(ctx context.Context, pattern string) ([]CheckResult, error) {
	out, err := c.run(ctx, "sudo", "dsctl", "--json", c.instance(), "healthcheck", "--check", pattern)
	if err != nil {
		return nil, err
	}

	var results []CheckResult
	if err := json.Unmarshal(out, &results); err != nil {
		return nil, fmt.Errorf("decoding healthcheck output: %w", err)
	}
	return results, nil
}

// Healthchecks runs every available check group and concatenates the
// findings. Log checks are skipped: they scan whole log files and their
// runtime grows with log volume.
func (c Command) Healthchecks(ctx context.Context) ([]CheckResult, error) {
	patterns, err := c.ListChecks(ctx)
	if err != nil {
		return nil, err
	}

	var results []CheckResult
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "logs") {
			continue
		}
		found, err := c.Healthcheck(ctx, pattern)
		if err != nil {
			return nil, err
		}
		results = append(results, found...)
	}
	return results, nil
}

// ServiceRunning reports whether the instance's systemd unit is active.
// A non-zero exit from is-active means inactive, not an error.
func (c Command) ServiceRunning(ctx context.Context) (bool, error) {
	unit := fmt.Sprintf("dirsrv@%s.service", c.instance())
	_, err := c.run(ctx, "systemctl", "is-active", "--quiet", unit)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}
