package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirsrv-monitor/internal/metrics"
)

func TestSinkSetAndGather(t *testing.T) {
	sink := metrics.NewSink()
	sink.Describe("monitor_connection_count", "Number of live client connections")
	sink.Set("monitor_connection_count", nil, 7)

	expected := `
# HELP monitor_connection_count Number of live client connections
# TYPE monitor_connection_count gauge
monitor_connection_count 7
`
	require.NoError(t, testutil.GatherAndCompare(sink.Registry(),
		strings.NewReader(expected), "monitor_connection_count"))
}

func TestSinkCounterAccumulates(t *testing.T) {
	sink := metrics.NewSink()
	sink.Add("monitor_scrape_count", nil, 1)
	sink.Add("monitor_scrape_count", nil, 1)
	sink.Add("monitor_scrape_count", nil, 1)

	expected := `
# HELP monitor_scrape_count dirsrv-monitor scraped value
# TYPE monitor_scrape_count counter
monitor_scrape_count 3
`
	require.NoError(t, testutil.GatherAndCompare(sink.Registry(),
		strings.NewReader(expected), "monitor_scrape_count"))
}

func TestSinkFirstUseFixesLabelKeys(t *testing.T) {
	sink := metrics.NewSink()
	sink.Set("internal_health", prometheus.Labels{"scraper": "ldap_monitoring"}, 1)

	// A mismatched label set must not panic; the write is dropped.
	sink.Set("internal_health", prometheus.Labels{"kind": "dsctl"}, 1)

	families, err := sink.Registry().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() == "internal_health" {
			assert.Len(t, family.GetMetric(), 1)
		}
	}
}

func TestSinkDescribeAfterFirstUseKeepsOriginalHelp(t *testing.T) {
	sink := metrics.NewSink()
	sink.Set("monitor_threads", nil, 16)
	sink.Describe("monitor_threads", "too late")

	expected := `
# HELP monitor_threads dirsrv-monitor scraped value
# TYPE monitor_threads gauge
monitor_threads 16
`
	require.NoError(t, testutil.GatherAndCompare(sink.Registry(),
		strings.NewReader(expected), "monitor_threads"))
}

func TestSinkRegistryCarriesProcessCollectors(t *testing.T) {
	sink := metrics.NewSink()

	families, err := sink.Registry().Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
}
