package health_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dirsrv-monitor/internal/health"
)

// healthy puts the live probes into a fully passing state.
func healthy(state *health.State) {
	state.SetReachable(true)
	state.SetServiceRunning(true)
	state.SetCheck("ldap_monitoring", true)
	state.SetCheck("replication_status", true)
}

func TestEvaluateHealthyNode(t *testing.T) {
	state := health.NewState()
	healthy(state)

	resp := health.NewDown()
	state.Evaluate(&resp)

	assert.Equal(t, health.StatusUp, resp.Status)
	assert.Equal(t, uint64(100), *resp.Weight)
	assert.Empty(t, resp.Reason)
}

func TestEvaluateStartsPessimistic(t *testing.T) {
	state := health.NewState()

	resp := health.NewDown()
	state.Evaluate(&resp)

	assert.Equal(t, health.StatusFail, resp.Status)
}

func TestEvaluateFailedChecksListedSorted(t *testing.T) {
	state := health.NewState()
	healthy(state)
	state.SetCheck("replication_status", false)
	state.SetCheck("ldap_monitoring", false)

	resp := health.NewDown()
	state.Evaluate(&resp)

	assert.Equal(t, health.StatusFail, resp.Status)
	assert.Equal(t, "healthcheck queries failed: ldap_monitoring, replication_status", resp.Reason)
}

func TestEvaluateDrainKeepsNodeUpAtZeroWeight(t *testing.T) {
	state := health.NewState()
	healthy(state)
	state.MarkDrain()

	resp := health.NewUp()
	state.Evaluate(&resp)

	// Drain caps capacity; a healthy node stays in the backend at weight 0.
	assert.Equal(t, "up weight:0%\n", resp.AgentCheckLine())
}

func TestEvaluateSoftMaintenanceStillSurfacesFailures(t *testing.T) {
	state := health.NewState()
	healthy(state)
	state.SetReachable(false)
	state.MarkMaintenance(false)

	resp := health.NewDown()
	state.Evaluate(&resp)

	assert.Equal(t, health.StatusFail, resp.Status)
}

func TestEvaluateHardMaintenanceMasksFailures(t *testing.T) {
	state := health.NewState()
	healthy(state)
	state.SetReachable(false)
	state.MarkMaintenance(true)

	resp := health.NewDown()
	state.Evaluate(&resp)

	assert.Equal(t, health.StatusMaint, resp.Status)
}

func TestEvaluateStoppedBeatsEverything(t *testing.T) {
	state := health.NewState()
	healthy(state)
	state.MarkMaintenance(true)
	state.MarkStopped()

	resp := health.NewDown()
	state.Evaluate(&resp)

	assert.Equal(t, health.StatusStopped, resp.Status)
	assert.Equal(t, "stopped by operator", resp.Reason)
}

func TestEvaluateReadyClearsOverrides(t *testing.T) {
	state := health.NewState()
	healthy(state)
	state.MarkStopped()
	state.MarkDrain()
	state.MarkReady()

	resp := health.NewDown()
	state.Evaluate(&resp)

	assert.Equal(t, health.StatusUp, resp.Status)
	assert.Equal(t, uint64(100), *resp.Weight)
}

func TestEvaluateRecoveryFromMaintenanceReportsReady(t *testing.T) {
	state := health.NewState()
	healthy(state)
	state.MarkMaintenance(false)

	resp := health.NewDown()
	state.Evaluate(&resp)
	assert.Equal(t, health.StatusMaint, resp.Status)

	state.MarkReady()
	state.Evaluate(&resp)
	assert.Equal(t, health.StatusReady, resp.Status)
}

func TestSnapshotIsACopy(t *testing.T) {
	state := health.NewState()
	state.SetCheck("ldap_monitoring", true)

	snapshot := state.Snapshot()
	snapshot.Live.Checks["ldap_monitoring"] = false

	assert.True(t, state.Snapshot().Live.Checks["ldap_monitoring"])
}

func TestSnapshotConnectionCount(t *testing.T) {
	state := health.NewState()
	assert.Nil(t, state.Snapshot().Live.ConnectionCount)

	state.SetConnectionCount(42)
	assert.Equal(t, uint64(42), *state.Snapshot().Live.ConnectionCount)
}
