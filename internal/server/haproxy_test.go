package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirsrv-monitor/internal/health"
	"github.com/dirsrv-monitor/internal/server"
)

func newTestAgent() (*server.Agent, *health.State, *httptest.Server) {
	state := health.NewState()
	state.SetReachable(true)
	state.SetServiceRunning(true)
	agent := server.NewAgent(state)
	ts := httptest.NewServer(server.NewAgentMux(agent, state))
	return agent, state, ts
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestAgentCheckEndpoint(t *testing.T) {
	_, _, ts := newTestAgent()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "up weight:100%\n", body(t, resp))
}

func TestAgentCheckSkipEvaluationServesLastAnswer(t *testing.T) {
	_, state, ts := newTestAgent()
	defer ts.Close()

	// Evaluate once while healthy, then break the node.
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	require.Equal(t, "up weight:100%\n", body(t, resp))

	state.SetReachable(false)

	resp, err = http.Get(ts.URL + "/?skip_evaluation=true")
	require.NoError(t, err)
	assert.Equal(t, "up weight:100%\n", body(t, resp))

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, "fail #directory server is not reachable\n", body(t, resp))
}

func TestAgentCheckUnknownPathIs404(t *testing.T) {
	_, _, ts := newTestAgent()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMarkEndpointsRequirePost(t *testing.T) {
	_, _, ts := newTestAgent()
	defer ts.Close()

	for _, path := range []string{"/mark/drain", "/mark/stop", "/mark/ready", "/mark/maintenance"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}

func TestMarkStopTakesNodeOut(t *testing.T) {
	_, _, ts := newTestAgent()
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/mark/stop", "", nil)
	require.NoError(t, err)

	var status struct {
		Health   health.Snapshot `json:"health"`
		Response health.Response `json:"response"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()

	assert.True(t, status.Health.Disabled.Stopped)
	assert.Equal(t, health.StatusStopped, status.Response.Status)

	check, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, "stopped #stopped by operator\n", body(t, check))
}

func TestMarkDrainOnFreshNodeStaysServing(t *testing.T) {
	_, _, ts := newTestAgent()
	defer ts.Close()

	// Drain before any agent check has evaluated: the node must keep
	// serving at zero weight, not drop out of the backend.
	resp, err := http.Post(ts.URL+"/mark/drain", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	check, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, "up weight:0%\n", body(t, check))
}

func TestMarkMaintenanceForceMasksFailures(t *testing.T) {
	_, state, ts := newTestAgent()
	defer ts.Close()

	state.SetReachable(false)

	resp, err := http.Post(ts.URL+"/mark/maintenance?force=true", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	check, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, "maint\n", body(t, check))
}

func TestMarkReadyRecovers(t *testing.T) {
	_, _, ts := newTestAgent()
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/mark/maintenance", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Post(ts.URL+"/mark/ready", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	check, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, "ready weight:100%\n", body(t, check))
}

func TestHealthStatusEndpoint(t *testing.T) {
	_, state, ts := newTestAgent()
	defer ts.Close()

	state.SetConnectionCount(12)
	state.SetCheck("replication_status", true)

	resp, err := http.Get(ts.URL + "/health-status")
	require.NoError(t, err)

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status struct {
		Health health.Snapshot `json:"health"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()

	require.NotNil(t, status.Health.Live.ConnectionCount)
	assert.Equal(t, uint64(12), *status.Health.Live.ConnectionCount)
	assert.True(t, status.Health.Live.Checks["replication_status"])
}
