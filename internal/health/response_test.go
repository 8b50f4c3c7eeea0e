package health_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dirsrv-monitor/internal/health"
)

func TestAgentCheckLineUpWithWeight(t *testing.T) {
	resp := health.NewUp()
	resp.UpAndReady()

	assert.Equal(t, "up weight:100%\n", resp.AgentCheckLine())
}

func TestAgentCheckLineDrainedNode(t *testing.T) {
	resp := health.NewUp()
	resp.UpAndReady()
	resp.Drain()

	assert.Equal(t, "up weight:0%\n", resp.AgentCheckLine())
}

func TestAgentCheckLineMaintenanceRecoversAsReady(t *testing.T) {
	resp := health.NewUp()
	resp.Maintenance()
	assert.Equal(t, "maint\n", resp.AgentCheckLine())

	resp.UpAndReady()
	assert.Equal(t, "ready weight:100%\n", resp.AgentCheckLine())
}

func TestAgentCheckLineReasonOnlyOnNonServingStates(t *testing.T) {
	resp := health.NewUp()
	resp.Fail("replication is broken")
	assert.Equal(t, "fail #replication is broken\n", resp.AgentCheckLine())

	resp.Stop("stopped by operator")
	assert.Equal(t, "stopped #stopped by operator\n", resp.AgentCheckLine())

	// Recovery clears the reason entirely.
	resp.UpAndReady()
	assert.NotContains(t, resp.AgentCheckLine(), "#")
}

func TestAgentCheckLineSanitizesReason(t *testing.T) {
	resp := health.NewDown()
	resp.Fail("bad\nnews 显示 here")

	line := resp.AgentCheckLine()
	assert.Equal(t, "fail #bad news  here\n", line)
}

func TestAgentCheckLineMaxConn(t *testing.T) {
	resp := health.NewUp()
	resp.UpAndReady()
	maxConn := uint64(250)
	resp.MaxConn = &maxConn

	assert.Equal(t, "up weight:100% maxconn:250\n", resp.AgentCheckLine())
}
