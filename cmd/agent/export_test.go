package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirsrv-monitor/config"
	"github.com/dirsrv-monitor/internal/metrics"
)

func TestBuildSchedulerRegistersEveryKind(t *testing.T) {
	cfg := config.NewDefaultConfig()

	scheduler, err := buildScheduler(cfg, metrics.NewSink())
	require.NoError(t, err)

	// An empty catalog still registers the kind, so the disabled-loop log
	// inventory stays uniform across kinds.
	assert.Equal(t,
		[]string{"self", "ldap_monitoring", "replication_status", "gids_info", "dsctl", "custom_queries"},
		scheduler.Kinds())
}
