package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/dirsrv-monitor/internal/health"
)

// Agent owns the current agent-check response. The response persists across
// evaluations so flags like drain keep their effect on an otherwise
// unchanged answer.
type Agent struct {
	state *health.State

	mu       sync.Mutex
	response health.Response
}

// NewAgent seeds the persistent response as serving, so overrides that only
// adjust capacity (drain) keep a healthy node in the backend even before the
// first full evaluation.
func NewAgent(state *health.State) *Agent {
	return &Agent{state: state, response: health.NewUp()}
}

// Evaluate folds the current health state into the response and returns the
// result.
func (a *Agent) Evaluate() health.Response {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Evaluate(&a.response)
	return a.response
}

// Current returns the last evaluated response without re-evaluating.
func (a *Agent) Current() health.Response {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.response
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// healthStatus is the full operator-visible record served on /health-status.
type healthStatus struct {
	Health   health.Snapshot `json:"health"`
	Response health.Response `json:"response"`
}

// NewAgentMux builds the agent-check HTTP surface:
//
//	GET  /                        agent-check line; ?skip_evaluation=true
//	                              serves the last answer without re-evaluating
//	GET  /health-status           full state as JSON
//	POST /mark/drain              drain connections
//	POST /mark/stop               take the node out of service
//	POST /mark/maintenance        maintenance mode; ?force=true masks failures
//	POST /mark/ready              clear every operator override
//
// Every mark answers with the updated state so the operator sees the effect
// immediately.
func NewAgentMux(agent *Agent, state *health.State) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", logged("agent check received",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}

			response := agent.Current()
			if skip, _ := strconv.ParseBool(r.URL.Query().Get("skip_evaluation")); !skip {
				response = agent.Evaluate()
			}

			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(response.AgentCheckLine()))
		})))

	mux.Handle("/health-status", logged("health status requested",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, healthStatus{Health: state.Snapshot(), Response: agent.Current()})
		})))

	mark := func(msg string, apply func(r *http.Request)) http.Handler {
		return logged(msg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			apply(r)
			writeJSON(w, healthStatus{Health: state.Snapshot(), Response: agent.Evaluate()})
		}))
	}

	mux.Handle("/mark/drain", mark("mark drain", func(*http.Request) { state.MarkDrain() }))
	mux.Handle("/mark/stop", mark("mark stop", func(*http.Request) { state.MarkStopped() }))
	mux.Handle("/mark/ready", mark("mark ready", func(*http.Request) { state.MarkReady() }))
	mux.Handle("/mark/maintenance", mark("mark maintenance", func(r *http.Request) {
		force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
		state.MarkMaintenance(force)
	}))

	return mux
}

// NewAgentServer serves the agent-check surface on addr.
func NewAgentServer(addr string, agent *Agent, state *health.State) *HTTPServer {
	return newHTTPServer(addr, NewAgentMux(agent, state))
}
