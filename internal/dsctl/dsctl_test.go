package dsctl_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirsrv-monitor/internal/dsctl"
)

func TestSeverityUnmarshalAcceptsMixedCase(t *testing.T) {
	cases := map[string]dsctl.Severity{
		`"HIGH"`:   dsctl.SeverityHigh,
		`"high"`:   dsctl.SeverityHigh,
		`"Medium"`: dsctl.SeverityMedium,
		`"LOW"`:    dsctl.SeverityLow,
		`"low"`:    dsctl.SeverityLow,
	}
	for raw, expected := range cases {
		var s dsctl.Severity
		require.NoError(t, json.Unmarshal([]byte(raw), &s), raw)
		assert.Equal(t, expected, s, raw)
	}
}

func TestSeverityUnmarshalRejectsUnknown(t *testing.T) {
	var s dsctl.Severity
	assert.Error(t, json.Unmarshal([]byte(`"catastrophic"`), &s))
	assert.Error(t, json.Unmarshal([]byte(`42`), &s))
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "HIGH", dsctl.SeverityHigh.String())
	assert.Equal(t, "MEDIUM", dsctl.SeverityMedium.String())
	assert.Equal(t, "LOW", dsctl.SeverityLow.String())
}

func TestCheckResultDecoding(t *testing.T) {
	raw := `[{
		"dsle": "DSBLE0001",
		"severity": "Medium",
		"items": ["cn=config"],
		"detail": "The backend has no monitoring enabled.",
		"fix": "Enable monitoring on the backend.",
		"check": "backends:userroot:search",
		"description": "Backend sanity"
	}]`

	var results []dsctl.CheckResult
	require.NoError(t, json.Unmarshal([]byte(raw), &results))
	require.Len(t, results, 1)

	assert.Equal(t, "DSBLE0001", results[0].DSLE)
	assert.Equal(t, dsctl.SeverityMedium, results[0].Severity)
	assert.Equal(t, []string{"cn=config"}, results[0].Items)
	assert.Equal(t, "Backend sanity", results[0].Description)
}
