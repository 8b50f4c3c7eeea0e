package scrape

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirsrv-monitor/internal/dirsrv"
	"github.com/dirsrv-monitor/internal/ldapx"
	"github.com/dirsrv-monitor/internal/metrics"
)

func ldapConfigForTest() ldapx.Config {
	return ldapx.Config{URI: "ldap://localhost"}
}

// gatherValue reads one series back out of the sink's registry. A missing
// series is reported as (0, false) so tests can assert absence too.
func gatherValue(t *testing.T, sink *metrics.Sink, name string, labels prometheus.Labels) (float64, bool) {
	t.Helper()

	families, err := sink.Registry().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metric:
		for _, m := range family.GetMetric() {
			got := make(map[string]string, len(m.GetLabel()))
			for _, pair := range m.GetLabel() {
				got[pair.GetName()] = pair.GetValue()
			}
			if len(got) != len(labels) {
				continue
			}
			for k, v := range labels {
				if got[k] != v {
					continue metric
				}
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue(), true
			}
			return m.GetCounter().GetValue(), true
		}
	}
	return 0, false
}

func monitorWith(version string, dns ...string) *dirsrv.Monitor {
	mon := &dirsrv.Monitor{
		Version:     version,
		IntMetrics:  map[string]uint64{"currentconnections": uint64(len(dns))},
		DateMetrics: map[string]time.Time{},
	}
	for _, dn := range dns {
		mon.Connections = append(mon.Connections, dirsrv.Connection{DN: dn, IP: "10.0.0.1"})
	}
	return mon
}

func TestMonitorScraperVersionSupersession(t *testing.T) {
	sink := metrics.NewSink()
	scraper := NewMonitorScraper(ldapConfigForTest(), sink)

	scraper.emitRoot(monitorWith("389-ds 2.1"))
	scraper.emitRoot(monitorWith("389-ds 2.2"))

	old, ok := gatherValue(t, sink, "monitor_version", prometheus.Labels{"version": "389-ds 2.1"})
	require.True(t, ok)
	assert.Equal(t, 0.0, old)

	current, ok := gatherValue(t, sink, "monitor_version", prometheus.Labels{"version": "389-ds 2.2"})
	require.True(t, ok)
	assert.Equal(t, 1.0, current)
}

func TestMonitorScraperRunningAverageMergesVanishedKeys(t *testing.T) {
	sink := metrics.NewSink()
	scraper := NewMonitorScraper(ldapConfigForTest(), sink)

	// Pass 1: alice has 2 connections. Pass 2: alice is gone, bob has 4.
	scraper.emitRoot(monitorWith("v", "cn=alice", "cn=alice"))
	scraper.emitRoot(monitorWith("v", "cn=bob", "cn=bob", "cn=bob", "cn=bob"))

	instant, ok := gatherValue(t, sink, "monitor_connection_by_dn", prometheus.Labels{"dn": "cn=alice"})
	require.True(t, ok)
	assert.Equal(t, 0.0, instant)

	avgAlice, ok := gatherValue(t, sink, "monitor_connection_avg_by_dn", prometheus.Labels{"dn": "cn=alice"})
	require.True(t, ok)
	assert.Equal(t, 1.0, avgAlice) // (2+0)/2

	avgBob, ok := gatherValue(t, sink, "monitor_connection_avg_by_dn", prometheus.Labels{"dn": "cn=bob"})
	require.True(t, ok)
	assert.Equal(t, 2.0, avgBob) // (0+4)/2
}

func TestMonitorScraperScrapeCount(t *testing.T) {
	sink := metrics.NewSink()
	scraper := NewMonitorScraper(ldapConfigForTest(), sink)

	scraper.emitRoot(monitorWith("v"))
	scraper.emitRoot(monitorWith("v"))
	scraper.emitRoot(monitorWith("v"))

	count, ok := gatherValue(t, sink, "monitor_scrape_count", nil)
	require.True(t, ok)
	assert.Equal(t, 3.0, count)
}

func TestMonitorScraperDiskUsePercentageRename(t *testing.T) {
	sink := metrics.NewSink()
	scraper := NewMonitorScraper(ldapConfigForTest(), sink)

	scraper.emitDisk(&dirsrv.Disk{Partitions: map[string]dirsrv.Partition{
		"/var/lib/dirsrv": {IntMetrics: map[string]uint64{"use%": 25, "available": 7500}},
	}})

	labels := prometheus.Labels{"partition": "/var/lib/dirsrv"}
	used, ok := gatherValue(t, sink, "monitor_disk_use_percentage", labels)
	require.True(t, ok)
	assert.Equal(t, 25.0, used)

	available, ok := gatherValue(t, sink, "monitor_disk_available", labels)
	require.True(t, ok)
	assert.Equal(t, 7500.0, available)
}

func agreementNamed(cn string) dirsrv.Agreement {
	return dirsrv.Agreement{CN: cn, Host: "ds02.example.com", Root: "dc=example,dc=com"}
}

func TestReplicationScraperZeroesRemovedAgreementOnce(t *testing.T) {
	sink := metrics.NewSink()
	scraper := NewReplicationScraper(ldapConfigForTest(), sink)

	scraper.emitAgreements([]dirsrv.Agreement{agreementNamed("to-ds02"), agreementNamed("to-ds03")})
	scraper.emitAgreements([]dirsrv.Agreement{agreementNamed("to-ds03")})

	gone := prometheus.Labels{"agreement": "to-ds02", "host": "ds02.example.com", "root": "dc=example,dc=com"}
	value, ok := gatherValue(t, sink, "replication_agreement", gone)
	require.True(t, ok)
	assert.Equal(t, 0.0, value)

	kept := prometheus.Labels{"agreement": "to-ds03", "host": "ds02.example.com", "root": "dc=example,dc=com"}
	value, ok = gatherValue(t, sink, "replication_agreement", kept)
	require.True(t, ok)
	assert.Equal(t, 1.0, value)

	// The removed agreement is forgotten: its series is not touched again.
	assert.NotContains(t, scraper.known, "to-ds02")
}

func TestReplicationScraperReappearedAgreementComesBack(t *testing.T) {
	sink := metrics.NewSink()
	scraper := NewReplicationScraper(ldapConfigForTest(), sink)

	scraper.emitAgreements([]dirsrv.Agreement{agreementNamed("to-ds02")})
	scraper.emitAgreements(nil)
	scraper.emitAgreements([]dirsrv.Agreement{agreementNamed("to-ds02")})

	labels := prometheus.Labels{"agreement": "to-ds02", "host": "ds02.example.com", "root": "dc=example,dc=com"}
	value, ok := gatherValue(t, sink, "replication_agreement", labels)
	require.True(t, ok)
	assert.Equal(t, 1.0, value)
}

func TestSchedulerRunsImmediatelyThenOnTicks(t *testing.T) {
	sink := metrics.NewSink()
	scheduler := NewScheduler(sink)

	var passes atomic.Int64
	scheduler.Register("fast", 10*time.Millisecond, func(context.Context) error {
		passes.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	scheduler.Run(ctx)

	assert.GreaterOrEqual(t, passes.Load(), int64(2))

	healthy, ok := gatherValue(t, sink, "internal_health", prometheus.Labels{"scraper": "fast"})
	require.True(t, ok)
	assert.Equal(t, 1.0, healthy)
}

func TestSchedulerFailingPassSetsHealthZeroAndKeepsLooping(t *testing.T) {
	sink := metrics.NewSink()
	scheduler := NewScheduler(sink)

	var passes atomic.Int64
	scheduler.Register("flaky", 10*time.Millisecond, func(context.Context) error {
		passes.Add(1)
		return errors.New("directory unavailable")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	scheduler.Run(ctx)

	assert.GreaterOrEqual(t, passes.Load(), int64(2))

	healthy, ok := gatherValue(t, sink, "internal_health", prometheus.Labels{"scraper": "flaky"})
	require.True(t, ok)
	assert.Equal(t, 0.0, healthy)
}

func TestSchedulerDisabledKindNeverScrapes(t *testing.T) {
	sink := metrics.NewSink()
	scheduler := NewScheduler(sink)
	scheduler.RegisterDisabled("dsctl")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	scheduler.Run(ctx)

	_, ok := gatherValue(t, sink, "internal_health", prometheus.Labels{"scraper": "dsctl"})
	assert.False(t, ok)
}
