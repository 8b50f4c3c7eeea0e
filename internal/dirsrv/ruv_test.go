package dirsrv_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirsrv-monitor/internal/dirsrv"
)

func TestParseRUVGeneration(t *testing.T) {
	ruv, err := dirsrv.ParseRUV("{replicageneration} 61a4d8f8000000010000")
	require.NoError(t, err)

	assert.Equal(t, dirsrv.RuvGeneration, ruv.Kind)
	assert.Equal(t, "61a4d8f8000000010000", ruv.Generation)
	assert.Equal(t, int64(-1), ruv.MetricReplicaID())
}

func TestParseRUVBrokenPeer(t *testing.T) {
	ruv, err := dirsrv.ParseRUV("{replica 2 ldap://ds02.example.com:389}")
	require.NoError(t, err)

	assert.Equal(t, dirsrv.RuvBroken, ruv.Kind)
	assert.Equal(t, int64(2), ruv.ReplicaID)
	assert.Equal(t, "ldap://ds02.example.com:389", ruv.Server)
	assert.Equal(t, int64(2), ruv.MetricReplicaID())
}

func TestParseRUVInfo(t *testing.T) {
	ruv, err := dirsrv.ParseRUV("{replica 1 ldap://ds01.example.com:389} 61a4d8fb000000010000 638a0c2c000300010000")
	require.NoError(t, err)

	assert.Equal(t, dirsrv.RuvInfo, ruv.Kind)
	assert.Equal(t, int64(1), ruv.ReplicaID)
	assert.Equal(t, "ldap://ds01.example.com:389", ruv.Server)
	assert.Equal(t, "61a4d8fb000000010000", ruv.LastChange)
	assert.Equal(t, "638a0c2c000300010000", ruv.FirstChange)
}

func TestParseRUVFailures(t *testing.T) {
	cases := map[string]string{
		"no brackets":      "replica 1 ldap://host",
		"unclosed bracket": "{replica 1 ldap://host",
		"not a replica":    "{something else} tail",
		"missing id":       "{replica}",
		"non-numeric id":   "{replica one ldap://host}",
		"single timestamp": "{replica 1 ldap://host} 61a4d8fb000000010000",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := dirsrv.ParseRUV(input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), input)
		})
	}
}

func TestRuvLabelsAreDimensionallyStable(t *testing.T) {
	variants := []dirsrv.Ruv{
		{Kind: dirsrv.RuvGeneration, Generation: "61a4d8f8000000010000"},
		{Kind: dirsrv.RuvBroken, ReplicaID: 2, Server: "ldap://host"},
		{Kind: dirsrv.RuvInfo, ReplicaID: 1, Server: "ldap://host", LastChange: "a", FirstChange: "b"},
	}

	for _, v := range variants {
		labels := v.Labels()
		assert.Len(t, labels, 4)
		for _, key := range []string{"replicagen", "server", "last_change", "first_change"} {
			assert.Contains(t, labels, key)
		}
	}
}

func TestParseChangesSent(t *testing.T) {
	changes := dirsrv.ParseChangesSent("1:1000/10 2:2500/0")
	require.Len(t, changes, 2)

	assert.Equal(t, int64(1), changes[0].ReplicaID)
	assert.Equal(t, uint64(1000), changes[0].ChangesReplayed)
	assert.Equal(t, uint64(10), changes[0].ChangesSkipped)
	assert.Equal(t, int64(2), changes[1].ReplicaID)
	assert.Equal(t, uint64(0), changes[1].ChangesSkipped)
}

func TestParseChangesSentSkipsGarbledTokens(t *testing.T) {
	changes := dirsrv.ParseChangesSent("garbage 1:100/5 2:nope/3 :4/4 3:7")
	require.Len(t, changes, 1)
	assert.Equal(t, int64(1), changes[0].ReplicaID)
}

func TestParseStatusJSON(t *testing.T) {
	raw := `{"state": "green", "ldap_rc": "0", "ldap_rc_text": "Success",
		"repl_rc": 0, "repl_rc_text": "replica acquired",
		"date": "2026-01-15T10:30:00Z",
		"message": "Incremental update succeeded"}`

	status, err := dirsrv.ParseStatusJSON(raw)
	require.NoError(t, err)

	assert.Equal(t, "green", status.State)
	assert.Equal(t, int64(0), status.LdapRC)
	assert.Equal(t, int64(0), status.ReplRC)
	assert.Equal(t, "Incremental update succeeded", status.Message)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC), status.Date)
}

func TestParseStatusJSONQuotedAndBareNumbersAgree(t *testing.T) {
	quoted, err := dirsrv.ParseStatusJSON(`{"state":"red","ldap_rc":"81","repl_rc":"16","date":"2026-01-15T10:30:00Z"}`)
	require.NoError(t, err)
	bare, err := dirsrv.ParseStatusJSON(`{"state":"red","ldap_rc":81,"repl_rc":16,"date":"2026-01-15T10:30:00Z"}`)
	require.NoError(t, err)

	assert.Equal(t, quoted, bare)
	assert.Equal(t, int64(81), quoted.LdapRC)
	assert.Equal(t, int64(16), quoted.ReplRC)
}

func TestParseStatusJSONRejectsBadDate(t *testing.T) {
	_, err := dirsrv.ParseStatusJSON(`{"state":"green","ldap_rc":0,"repl_rc":0,"date":"yesterday"}`)
	require.Error(t, err)
}
