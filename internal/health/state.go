package health

import (
	"sort"
	"strings"
	"sync"
)

// Disabled are the operator-set override flags. They are independent
// booleans; only the evaluation order below makes them exclusive.
type Disabled struct {
	Drain     bool `json:"mark_drain"`
	SoftMaint bool `json:"mark_soft_maint"`
	HardMaint bool `json:"mark_hard_maint"`
	Stopped   bool `json:"mark_stopped"`
}

// Live is the latest observed node status, written by the scraper loops.
type Live struct {
	ServiceRunning  bool            `json:"is_service_running"`
	Reachable       bool            `json:"is_reachable"`
	ConnectionCount *uint64         `json:"connection_number"`
	Checks          map[string]bool `json:"queries_status"`
}

// Snapshot is a consistent copy of the full health record.
type Snapshot struct {
	Disabled Disabled `json:"disabled"`
	Live     Live     `json:"status"`
}

// State is the single shared mutable record of the process. Every scraper
// loop writes into it and every status reader evaluates it; the lock is held
// only for field access, never across I/O.
type State struct {
	mu       sync.Mutex
	disabled Disabled
	live     Live
}

// NewState starts pessimistic: unreachable and not running until a check
// says otherwise.
func NewState() *State {
	return &State{
		live: Live{Checks: make(map[string]bool)},
	}
}

// Snapshot returns a copy safe for serialization.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	checks := make(map[string]bool, len(s.live.Checks))
	for k, v := range s.live.Checks {
		checks[k] = v
	}
	live := s.live
	live.Checks = checks
	return Snapshot{Disabled: s.disabled, Live: live}
}

// MarkDrain requests connection draining.
func (s *State) MarkDrain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled.Drain = true
}

// MarkStopped takes the node out of service unconditionally.
func (s *State) MarkStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled.Stopped = true
}

// MarkMaintenance enters maintenance mode. With force set, live-check
// failures are masked (hard maintenance); without it they still surface.
func (s *State) MarkMaintenance(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if force {
		s.disabled.HardMaint = true
	} else {
		s.disabled.SoftMaint = true
	}
}

// MarkReady clears every operator override.
func (s *State) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = Disabled{}
}

// SetReachable records the latest reachability probe.
func (s *State) SetReachable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Reachable = ok
}

// SetServiceRunning records the latest service-unit probe.
func (s *State) SetServiceRunning(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.ServiceRunning = ok
}

// SetConnectionCount records the latest observed connection count.
func (s *State) SetConnectionCount(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.ConnectionCount = &n
}

// SetCheck records one named health-check outcome.
func (s *State) SetCheck(name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Checks[name] = ok
}

// failedChecks lists failing named checks, sorted for stable reasons.
func (l Live) failedChecks() []string {
	var failed []string
	for name, ok := range l.Checks {
		if !ok {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

// rule is one step of the evaluation order. Rules run top to bottom; a later
// rule overwrites the response of an earlier one, which is exactly how the
// precedence stopped > hard-maint > (errors | soft-maint) > drain > up
// falls out.
type rule struct {
	name    string
	applies func(Snapshot) bool
	apply   func(Snapshot, *Response)
}

var evaluationOrder = []rule{
	{
		name:    "drain",
		applies: func(s Snapshot) bool { return s.Disabled.Drain },
		apply:   func(_ Snapshot, r *Response) { r.Drain() },
	},
	{
		name:    "soft-maintenance",
		applies: func(s Snapshot) bool { return s.Disabled.SoftMaint },
		apply:   func(_ Snapshot, r *Response) { r.Maintenance() },
	},
	{
		name:    "failed-checks",
		applies: func(s Snapshot) bool { return len(s.Live.failedChecks()) > 0 },
		apply: func(s Snapshot, r *Response) {
			r.Fail("healthcheck queries failed: " + strings.Join(s.Live.failedChecks(), ", "))
		},
	},
	{
		name:    "unreachable",
		applies: func(s Snapshot) bool { return !s.Live.Reachable },
		apply:   func(_ Snapshot, r *Response) { r.Fail("directory server is not reachable") },
	},
	{
		name:    "service-not-running",
		applies: func(s Snapshot) bool { return !s.Live.ServiceRunning },
		apply:   func(_ Snapshot, r *Response) { r.Fail("directory service unit is not running") },
	},
	{
		// Hard maintenance comes after the live checks so it masks their
		// failure state on purpose.
		name:    "hard-maintenance",
		applies: func(s Snapshot) bool { return s.Disabled.HardMaint },
		apply:   func(_ Snapshot, r *Response) { r.Maintenance() },
	},
	{
		name:    "stopped",
		applies: func(s Snapshot) bool { return s.Disabled.Stopped },
		apply:   func(_ Snapshot, r *Response) { r.Stop("stopped by operator") },
	},
}

// Evaluate folds the current state into resp. When no rule applies the node
// recovers to full weight; any applied rule pins the outcome until the next
// evaluation observes a clean state.
func (s *State) Evaluate(resp *Response) {
	snapshot := s.Snapshot()

	recovered := true
	for _, r := range evaluationOrder {
		if r.applies(snapshot) {
			r.apply(snapshot, resp)
			recovered = false
		}
	}

	if recovered {
		resp.UpAndReady()
	}
}
