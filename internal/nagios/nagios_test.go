package nagios_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dirsrv-monitor/internal/nagios"
)

func TestReturnCodeEscalation(t *testing.T) {
	rc := nagios.OK
	rc.Warn()
	assert.Equal(t, nagios.Warning, rc)

	rc.Crit()
	assert.Equal(t, nagios.Critical, rc)

	// A worse code is never downgraded.
	rc.Warn()
	assert.Equal(t, nagios.Critical, rc)

	rc = nagios.Unknown
	rc.Crit()
	assert.Equal(t, nagios.Unknown, rc)
}

func TestRenderSortsPerfDataKeys(t *testing.T) {
	result := nagios.NewResult()
	result.Description = "directory server reported connections"
	result.Add("zeta", nagios.PerfData{Value: nagios.Int(2)})
	result.Add("alpha", nagios.PerfData{Value: nagios.Int(1)})

	assert.Equal(t, "OK: directory server reported connections | 'alpha'=1;;;; 'zeta'=2;;;; ", result.Render())
}

func TestRenderThresholdsAndUnits(t *testing.T) {
	warn := uint64(10)
	crit := uint64(20)

	result := nagios.NewResult()
	result.Description = "disk"
	result.Add("available", nagios.PerfData{
		Value: nagios.Int(512),
		Warn:  nagios.IntPtr(&warn),
		Crit:  nagios.IntPtr(&crit),
		Min:   nagios.Int(0),
		Unit:  "B",
	})

	assert.Equal(t, "OK: disk | 'available'=512B;10;20;0; ", result.Render())
}

func TestRenderOmitsNilThresholds(t *testing.T) {
	result := nagios.NewResult()
	result.Description = "d"
	result.Add("v", nagios.PerfData{
		Value: nagios.Float(1.5),
		Warn:  nagios.IntPtr(nil),
		Crit:  nagios.FloatPtr(nil),
	})

	assert.Equal(t, "OK: d | 'v'=1.5;;;; ", result.Render())
}

func TestRenderStripsFormatBreakersFromKeys(t *testing.T) {
	result := nagios.NewResult()
	result.Description = "connections"
	result.Add("cn='admin'=x", nagios.PerfData{Value: nagios.Int(3)})

	assert.Equal(t, "OK: connections | 'cnadminx'=3;;;; ", result.Render())
}

func TestRenderReflectsCode(t *testing.T) {
	result := nagios.NewResult()
	result.Description = "something broke"
	result.Code.Crit()

	assert.Equal(t, "CRIT: something broke | ", result.Render())
}
