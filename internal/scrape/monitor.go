package scrape

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dirsrv-monitor/internal/dirsrv"
	"github.com/dirsrv-monitor/internal/ldapx"
	"github.com/dirsrv-monitor/internal/metrics"
)

// MonitorScraper reads cn=monitor, cn=disk space and cn=snmp on each pass.
// It carries state across passes so series for bind DNs, client IPs and
// server versions that vanish are reset to zero instead of going stale.
type MonitorScraper struct {
	cfg  ldapx.Config
	sink *metrics.Sink

	// Cumulative sums and scrape count feed the per-key running averages.
	// The key sets grow with every DN/IP ever seen; for a directory server's
	// bind population that stays small.
	scrapes uint64
	dnSums  map[string]uint64
	ipSums  map[string]uint64

	versions map[string]struct{}
}

func NewMonitorScraper(cfg ldapx.Config, sink *metrics.Sink) *MonitorScraper {
	sink.Describe("monitor_version", "Directory server version; current one 1, previously seen ones 0")
	sink.Describe("monitor_connection_count", "Number of live client connections")
	sink.Describe("monitor_connection_avg_by_dn", "Average of monitor_connection_by_dn over every scrape")
	sink.Describe("monitor_connection_avg_by_ip", "Average of monitor_connection_by_ip over every scrape")
	sink.Describe("monitor_scrape_count", "Scrapes of the cn=monitor root entry since process start")
	sink.Describe("monitor_disk_scrape_count", "Scrapes of cn=disk space since process start")
	sink.Describe("monitor_snmp_scrape_count", "Scrapes of cn=snmp since process start")
	return &MonitorScraper{
		cfg:      cfg,
		sink:     sink,
		dnSums:   make(map[string]uint64),
		ipSums:   make(map[string]uint64),
		versions: make(map[string]struct{}),
	}
}

func (m *MonitorScraper) emitRoot(mon *dirsrv.Monitor) {
	m.scrapes++
	m.sink.Add("monitor_scrape_count", nil, 1)

	// Zero out superseded versions before asserting the current one.
	for version := range m.versions {
		if version != mon.Version {
			m.sink.Set("monitor_version", prometheus.Labels{"version": version}, 0)
		}
	}
	m.versions[mon.Version] = struct{}{}
	m.sink.Set("monitor_version", prometheus.Labels{"version": mon.Version}, 1)

	m.sink.Set("monitor_connection_count", nil, float64(len(mon.Connections)))

	m.emitGrouped(mon.GroupConnectionsByDN(), m.dnSums, "dn",
		"monitor_connection_by_dn", "monitor_connection_avg_by_dn")
	m.emitGrouped(mon.GroupConnectionsByIP(), m.ipSums, "ip",
		"monitor_connection_by_ip", "monitor_connection_avg_by_ip")

	for attr, value := range mon.IntMetrics {
		m.sink.Set("monitor_"+attr, nil, float64(value))
	}
	for attr, value := range mon.DateMetrics {
		m.sink.Set("monitor_"+attr, nil, float64(value.Unix()))
	}
}

// emitGrouped merges previously seen keys into the current grouping (absent
// ones count zero), then emits the instantaneous value and the running
// average for every key.
func (m *MonitorScraper) emitGrouped(current map[string]uint64, sums map[string]uint64, label, name, avgName string) {
	for key := range sums {
		if _, ok := current[key]; !ok {
			current[key] = 0
		}
	}
	for key, value := range current {
		sums[key] += value
		labels := prometheus.Labels{label: key}
		m.sink.Set(name, labels, float64(value))
		m.sink.Set(avgName, labels, float64(sums[key])/float64(m.scrapes))
	}
}

func (m *MonitorScraper) emitDisk(disk *dirsrv.Disk) {
	m.sink.Add("monitor_disk_scrape_count", nil, 1)
	for partition, figures := range disk.Partitions {
		for key, value := range figures.IntMetrics {
			name := "monitor_disk_" + strings.ReplaceAll(key, "%", "_percentage")
			m.sink.Set(name, prometheus.Labels{"partition": partition}, float64(value))
		}
	}
}

func (m *MonitorScraper) emitSNMP(snmp *dirsrv.SNMP) {
	m.sink.Add("monitor_snmp_scrape_count", nil, 1)
	for attr, value := range snmp.IntMetrics {
		m.sink.Set("monitor_snmp_"+attr, nil, float64(value))
	}
}

// Scrape performs one pass over all three monitor entries on a single
// connection.
func (m *MonitorScraper) Scrape(ctx context.Context) error {
	client, err := m.cfg.Connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	mon, err := dirsrv.ScrapeMonitor(ctx, client)
	if err != nil {
		return err
	}
	m.emitRoot(mon)

	disk, err := dirsrv.ScrapeDisk(ctx, client)
	if err != nil {
		return err
	}
	m.emitDisk(disk)

	snmp, err := dirsrv.ScrapeSNMP(ctx, client)
	if err != nil {
		return err
	}
	m.emitSNMP(snmp)

	return nil
}
