package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirsrv-monitor/config"
	"github.com/dirsrv-monitor/internal/query"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ldap://localhost", cfg.Ldap.URI)
	assert.Equal(t, uint32(999), cfg.Ldap.PageSize)
	assert.Equal(t, "default", cfg.Dsctl.Instance)

	assert.Equal(t, "0.0.0.0:9100", cfg.ExportAddr())
	assert.Equal(t, 5*time.Second, cfg.Export.ScrapeInterval)
	assert.True(t, cfg.Export.ScrapeFlags.LdapMonitoring)
	assert.True(t, cfg.Export.ScrapeFlags.ReplicationStatus)
	assert.False(t, cfg.Export.ScrapeFlags.GidsInfo)
	assert.False(t, cfg.Export.ScrapeFlags.Dsctl)

	assert.Equal(t, "0.0.0.0:6699", cfg.HaproxyAddr())
	assert.True(t, cfg.Haproxy.ScrapeFlags.SystemdStatus)
	assert.Equal(t, 5*time.Second, cfg.Haproxy.ScrapeInterval.CustomQueries)
	assert.Empty(t, cfg.Haproxy.HealthCheckQueries)
}

func TestValidateRejectsZeroInterval(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Export.ScrapeInterval = 0

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadListenAddress(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Export.ExposeAddress = "not an address"

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateQueryNames(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Queries = []query.Query{
		{Name: "people", Filter: "(objectClass=posixAccount)"},
		{Name: "people", Filter: "(objectClass=posixGroup)"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "people")
}

func TestValidateRejectsQueryWithoutFilter(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Queries = []query.Query{{Name: "incomplete"}}

	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsQueryCatalog(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Queries = []query.Query{
		{Name: "people", Filter: "(objectClass=posixAccount)"},
		{Name: "groups", Filter: "(objectClass=posixGroup)", MaxEntries: 100},
	}

	assert.NoError(t, cfg.Validate())
}
