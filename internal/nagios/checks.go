package nagios

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dirsrv-monitor/internal/dirsrv"
	"github.com/dirsrv-monitor/internal/dsctl"
	"github.com/dirsrv-monitor/internal/ldapx"
	"github.com/dirsrv-monitor/internal/query"
)

// Thresholds in this file compare with >= (or <= where a low value is the
// problem, like free space); a nil limit disables that comparison.

func atLeast(value uint64, limit *uint64) bool {
	return limit != nil && value >= *limit
}

func atMost(value uint64, limit *uint64) bool {
	return limit != nil && value <= *limit
}

// IntMetricOptions select one integer figure from the monitor or snmp entry.
type IntMetricOptions struct {
	Source string
	Metric string
	Warn   *uint64
	Crit   *uint64
	// Revert flips the comparison so low values alert instead of high ones.
	Revert bool
}

// CheckIntMetric alerts on a single scraped integer crossing its thresholds.
func CheckIntMetric(ctx context.Context, client *ldapx.Client, opts IntMetricOptions, result *Result) error {
	monitor, err := dirsrv.ScrapeMonitor(ctx, client)
	if err != nil {
		return err
	}
	snmp, err := dirsrv.ScrapeSNMP(ctx, client)
	if err != nil {
		return err
	}

	var (
		value int64
		ok    bool
	)
	switch opts.Source {
	case "monitor":
		var v uint64
		v, ok = monitor.IntMetrics[opts.Metric]
		value = int64(v)
	case "snmp":
		value, ok = snmp.IntMetrics[opts.Metric]
	default:
		return fmt.Errorf("no such a metric source: %q", opts.Source)
	}
	if !ok {
		return fmt.Errorf("no such a metric: %s in %s", opts.Metric, opts.Source)
	}

	unit := ""
	if strings.Contains(opts.Metric, "bytes") {
		unit = "B"
	}

	result.Description = opts.Source + "_" + opts.Metric
	result.Add("value", PerfData{
		Value: Float(float64(value)),
		Warn:  IntPtr(opts.Warn),
		Crit:  IntPtr(opts.Crit),
		Unit:  unit,
	})

	crossed := func(limit *uint64) bool {
		if limit == nil {
			return false
		}
		if opts.Revert {
			return value <= int64(*limit)
		}
		return value >= int64(*limit)
	}
	if crossed(opts.Warn) {
		result.Code.Warn()
	}
	if crossed(opts.Crit) {
		result.Code.Crit()
	}
	return nil
}

// AgreementStatusOptions configure the replication status check.
type AgreementStatusOptions struct {
	// NoRUV skips the per-peer update-vector inspection.
	NoRUV bool
}

// CheckAgreementStatus goes critical when any agreement reports a non-zero
// result code, a state other than green, or a broken update-vector peer.
func CheckAgreementStatus(ctx context.Context, client *ldapx.Client, opts AgreementStatusOptions, result *Result) error {
	agreements, err := dirsrv.ScrapeAgreements(ctx, client)
	if err != nil {
		return err
	}

	result.Description = "agreement status"

	for _, agreement := range agreements {
		if agreement.Status.LdapRC != 0 || agreement.Status.ReplRC != 0 || agreement.Status.State != "green" {
			result.Code.Crit()
		}

		result.Add(agreement.CN, PerfData{Value: Int(0), Crit: Int(1), Min: Int(0)})

		if opts.NoRUV {
			continue
		}
		for _, ruv := range agreement.Ruvs {
			if ruv.Kind == dirsrv.RuvGeneration {
				continue
			}
			key := fmt.Sprintf("%s RUV server(%s) replica(%d)", agreement.CN, ruv.Server, ruv.ReplicaID)
			broken := uint64(0)
			if ruv.Kind == dirsrv.RuvBroken {
				broken = 1
				result.Code.Crit()
			}
			result.Add(key, PerfData{Value: Int(broken), Crit: Int(1), Min: Int(0)})
		}
	}
	return nil
}

// CheckAgreementSkipped alerts when any replication peer skipped too many
// entries since startup.
func CheckAgreementSkipped(ctx context.Context, client *ldapx.Client, warn, crit *uint64, result *Result) error {
	agreements, err := dirsrv.ScrapeAgreements(ctx, client)
	if err != nil {
		return err
	}

	result.Description = "agreement objects skipped"

	for _, agreement := range agreements {
		for _, change := range agreement.ChangesSent {
			key := fmt.Sprintf("%s replica_%d", agreement.CN, change.ReplicaID)
			result.Add(key, PerfData{
				Value: Int(change.ChangesSkipped),
				Warn:  IntPtr(warn),
				Crit:  IntPtr(crit),
				Min:   Int(0),
			})

			if atLeast(change.ChangesSkipped, warn) {
				result.Code.Warn()
			}
			if atLeast(change.ChangesSkipped, crit) {
				result.Code.Crit()
			}
		}
	}
	return nil
}

// CheckAgreementDuration alerts on long replication update cycles.
func CheckAgreementDuration(ctx context.Context, client *ldapx.Client, warn, crit *uint64, result *Result) error {
	agreements, err := dirsrv.ScrapeAgreements(ctx, client)
	if err != nil {
		return err
	}

	result.Description = "agreements duration (seconds)"

	for _, agreement := range agreements {
		duration := uint64(0)
		if agreement.LastUpdateDurationSeconds > 0 {
			duration = uint64(agreement.LastUpdateDurationSeconds)
		}
		result.Add(agreement.CN, PerfData{
			Value: Int(duration),
			Warn:  IntPtr(warn),
			Crit:  IntPtr(crit),
			Min:   Int(0),
			Unit:  "s",
		})

		if atLeast(duration, warn) {
			result.Code.Warn()
		}
		if atLeast(duration, crit) {
			result.Code.Crit()
		}
	}
	return nil
}

// MissingGidsOptions hold thresholds on missing group count and on the
// number of accounts affected.
type MissingGidsOptions struct {
	WarnGroups *uint64
	CritGroups *uint64
	WarnUsers  *uint64
	CritUsers  *uint64
}

// CheckMissingGids alerts on posixAccount primary gids with no posixGroup.
func CheckMissingGids(ctx context.Context, cfg ldapx.Config, opts MissingGidsOptions, result *Result) error {
	gids, err := dirsrv.MissingGids(ctx, cfg)
	if err != nil {
		return err
	}

	result.Description = "Missing gids"

	totalGids := uint64(len(gids))
	totalUsers := uint64(0)
	for gid, users := range gids {
		totalUsers += users
		result.Add(fmt.Sprintf("gid[%d]", gid), PerfData{Value: Int(users)})
	}

	result.Add("total_gids", PerfData{
		Value: Int(totalGids),
		Warn:  IntPtr(opts.WarnGroups),
		Crit:  IntPtr(opts.CritGroups),
	})
	result.Add("total_users", PerfData{
		Value: Int(totalUsers),
		Warn:  IntPtr(opts.WarnUsers),
		Crit:  IntPtr(opts.CritUsers),
	})

	if atLeast(totalGids, opts.WarnGroups) || atLeast(totalUsers, opts.WarnUsers) {
		result.Code.Warn()
	}
	if atLeast(totalGids, opts.CritGroups) || atLeast(totalUsers, opts.CritUsers) {
		result.Code.Crit()
	}
	return nil
}

// ConnectionsOptions filter and bound the live connection count.
type ConnectionsOptions struct {
	Warn *uint64
	Crit *uint64

	DNs        []string
	IPs        []string
	ExcludeDNs []string
	ExcludeIPs []string

	// SkipIntegrity disables the cross-check between the counted connection
	// list, the cn=monitor figure and the snmp figure.
	SkipIntegrity bool
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func containsExact(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CheckConnections counts live connections after DN/IP filtering, optionally
// verifying first that the three connection figures the server reports agree
// with each other.
func CheckConnections(ctx context.Context, client *ldapx.Client, opts ConnectionsOptions, result *Result) error {
	monitor, err := dirsrv.ScrapeMonitor(ctx, client)
	if err != nil {
		return err
	}

	counted := uint64(len(monitor.Connections))
	reported := monitor.IntMetrics["currentconnections"]

	if !opts.SkipIntegrity {
		snmp, err := dirsrv.ScrapeSNMP(ctx, client)
		if err != nil {
			return err
		}
		snmpReported := uint64(snmp.IntMetrics["connections"])

		if counted != reported || reported != snmpReported {
			result.Add("reported_connections", PerfData{Value: Int(reported)})
			result.Add("reported_connections_snmp", PerfData{Value: Int(snmpReported)})
			result.Add("counted", PerfData{Value: Int(counted)})
			return fmt.Errorf("inconsistent number of connections between reported values")
		}
	}

	matched := uint64(0)
	for _, conn := range monitor.Connections {
		if len(opts.DNs) > 0 && !containsFold(opts.DNs, conn.DN) {
			continue
		}
		if len(opts.IPs) > 0 && !containsExact(opts.IPs, conn.IP) {
			continue
		}
		if containsFold(opts.ExcludeDNs, conn.DN) || containsExact(opts.ExcludeIPs, conn.IP) {
			continue
		}
		matched++
	}

	result.Description = "directory server reported connections"
	result.Add("connections", PerfData{
		Value: Int(matched),
		Warn:  IntPtr(opts.Warn),
		Crit:  IntPtr(opts.Crit),
		Min:   Int(0),
	})

	if atLeast(matched, opts.Warn) {
		result.Code.Warn()
	}
	if atLeast(matched, opts.Crit) {
		result.Code.Crit()
	}
	return nil
}

// ErrorsOptions bound the snmp error counters, per key and summed.
type ErrorsOptions struct {
	WarnSum *uint64
	CritSum *uint64
	Warn    *uint64
	Crit    *uint64
	// Names restricts which error counters count; empty means all of them.
	Names []string
}

// CheckErrors alerts on the snmp counters whose name contains "error".
func CheckErrors(ctx context.Context, client *ldapx.Client, opts ErrorsOptions, result *Result) error {
	snmp, err := dirsrv.ScrapeSNMP(ctx, client)
	if err != nil {
		return err
	}

	result.Description = "directory server errors in the SNMP monitor"

	sum := uint64(0)
	for key, raw := range snmp.IntMetrics {
		if !strings.Contains(key, "error") {
			continue
		}
		if len(opts.Names) > 0 && !containsExact(opts.Names, key) {
			continue
		}

		value := uint64(0)
		if raw > 0 {
			value = uint64(raw)
		}
		sum += value
		result.Add(key, PerfData{
			Value: Int(value),
			Warn:  IntPtr(opts.Warn),
			Crit:  IntPtr(opts.Crit),
			Min:   Int(0),
		})

		if atLeast(value, opts.Warn) {
			result.Code.Warn()
		}
		if atLeast(value, opts.Crit) {
			result.Code.Crit()
		}
	}

	result.Add("errors_sum", PerfData{
		Value: Int(sum),
		Warn:  IntPtr(opts.WarnSum),
		Crit:  IntPtr(opts.CritSum),
		Min:   Int(0),
	})
	if atLeast(sum, opts.WarnSum) {
		result.Code.Warn()
	}
	if atLeast(sum, opts.CritSum) {
		result.Code.Crit()
	}
	return nil
}

// CheckRecentRestart warns when the server came up less than warnIfLessThan
// seconds ago, judged by the server's own clock.
func CheckRecentRestart(ctx context.Context, client *ldapx.Client, warnIfLessThan *uint64, result *Result) error {
	monitor, err := dirsrv.ScrapeMonitor(ctx, client)
	if err != nil {
		return err
	}

	start, ok := monitor.DateMetrics["starttime"]
	if !ok {
		return fmt.Errorf("missing starttime")
	}
	current, ok := monitor.DateMetrics["currenttime"]
	if !ok {
		return fmt.Errorf("missing currenttime")
	}

	uptime := current.Unix() - start.Unix()
	if uptime < 0 {
		uptime = 0
	}

	result.Description = "seconds since last restart of the directory server"
	result.Add("seconds_since_last_restart", PerfData{
		Value: Float(float64(uptime)),
		Warn:  IntPtr(warnIfLessThan),
		Min:   Float(0),
		Unit:  "s",
	})

	if atMost(uint64(uptime), warnIfLessThan) {
		result.Code.Warn()
	}
	return nil
}

// DiskspaceOptions bound the daemon-reported partition figures.
type DiskspaceOptions struct {
	WarnPercentUsed       *float64
	CritPercentUsed       *float64
	WarnAbsoluteAvailable *uint64
	CritAbsoluteAvailable *uint64
	// Partitions restricts the check; empty means every reported partition.
	Partitions []string
}

// CheckDiskspace alerts on used percentage or absolute free space of the
// partitions the directory server itself monitors.
func CheckDiskspace(ctx context.Context, client *ldapx.Client, opts DiskspaceOptions, result *Result) error {
	disk, err := dirsrv.ScrapeDisk(ctx, client)
	if err != nil {
		return err
	}

	result.Description = "disk free space (directory server reported)"

	for name, partition := range disk.Partitions {
		if len(opts.Partitions) > 0 && !containsExact(opts.Partitions, name) {
			continue
		}

		usedPercent, hasUsed := partition.IntMetrics["use%"]
		available := partition.IntMetrics["available"]
		if !hasUsed {
			// No figure means no headroom to assume.
			usedPercent = 100
		}

		result.Add("use_percentage "+name, PerfData{
			Value: Int(usedPercent),
			Warn:  FloatPtr(opts.WarnPercentUsed),
			Crit:  FloatPtr(opts.CritPercentUsed),
			Min:   Float(1),
			Max:   Float(100),
			Unit:  "%",
		})
		result.Add("available_space "+name, PerfData{
			Value: Int(available),
			Warn:  IntPtr(opts.WarnAbsoluteAvailable),
			Crit:  IntPtr(opts.CritAbsoluteAvailable),
			Min:   Int(0),
			Unit:  "B",
		})

		if opts.WarnPercentUsed != nil && float64(usedPercent) >= *opts.WarnPercentUsed {
			result.Code.Warn()
		}
		if atMost(available, opts.WarnAbsoluteAvailable) {
			result.Code.Warn()
		}
		if opts.CritPercentUsed != nil && float64(usedPercent) >= *opts.CritPercentUsed {
			result.Code.Crit()
		}
		if atMost(available, opts.CritAbsoluteAvailable) {
			result.Code.Crit()
		}
	}
	return nil
}

// CliHealthcheckOptions bound the dsctl findings overall and per severity.
type CliHealthcheckOptions struct {
	Warn       *uint64
	Crit       *uint64
	WarnLow    *uint64
	CritLow    *uint64
	WarnMedium *uint64
	CritMedium *uint64
	WarnHigh   *uint64
	CritHigh   *uint64
}

// CheckCliHealthcheck runs the dsctl healthcheck suite and alerts on the
// number of findings per severity bucket.
func CheckCliHealthcheck(ctx context.Context, cmd dsctl.Command, opts CliHealthcheckOptions, result *Result) error {
	findings, err := cmd.Healthchecks(ctx)
	if err != nil {
		return err
	}

	counts := make(map[dsctl.Severity]uint64)
	for _, finding := range findings {
		counts[finding.Severity]++
	}
	low := counts[dsctl.SeverityLow]
	medium := counts[dsctl.SeverityMedium]
	high := counts[dsctl.SeverityHigh]
	all := low + medium + high

	result.Description = "CLI healthcheck"
	result.Add("all_severity", PerfData{Value: Int(all), Warn: IntPtr(opts.Warn), Crit: IntPtr(opts.Crit), Min: Int(0)})
	result.Add("low_severity", PerfData{Value: Int(low), Warn: IntPtr(opts.WarnLow), Crit: IntPtr(opts.CritLow), Min: Int(0)})
	result.Add("medium_severity", PerfData{Value: Int(medium), Warn: IntPtr(opts.WarnMedium), Crit: IntPtr(opts.CritMedium), Min: Int(0)})
	result.Add("high_severity", PerfData{Value: Int(high), Warn: IntPtr(opts.WarnHigh), Crit: IntPtr(opts.CritHigh), Min: Int(0)})

	if atLeast(all, opts.Warn) || atLeast(low, opts.WarnLow) ||
		atLeast(medium, opts.WarnMedium) || atLeast(high, opts.WarnHigh) {
		result.Code.Warn()
	}
	if atLeast(all, opts.Crit) || atLeast(low, opts.CritLow) ||
		atLeast(medium, opts.CritMedium) || atLeast(high, opts.CritHigh) {
		result.Code.Crit()
	}
	return nil
}

// CheckCustomQueryTime alerts when a configured search takes too long, in
// milliseconds.
func CheckCustomQueryTime(ctx context.Context, base ldapx.Config, filter string, warn, crit *uint64, result *Result) error {
	q := query.Query{Name: "query", Filter: filter}
	metrics, err := q.Execute(ctx, base)
	if err != nil {
		return err
	}

	elapsed := uint64(metrics.Elapsed.Milliseconds())

	result.Description = "query time"
	result.Add("query_time", PerfData{
		Value: Int(elapsed),
		Warn:  IntPtr(warn),
		Crit:  IntPtr(crit),
		Min:   Int(0),
	})

	if atLeast(elapsed, warn) {
		result.Code.Warn()
	}
	if atLeast(elapsed, crit) {
		result.Code.Crit()
	}
	return nil
}

// QueryIntegrityOptions select the enforced dimensions of a two-host
// comparison; each one toggles independently.
type QueryIntegrityOptions struct {
	Host   string
	Filter string
	Attrs  []string

	Sha256Integrity     bool
	EntriesIntegrity    bool
	AttributesIntegrity bool
	BytesIntegrity      bool
}

// CheckCustomQueryIntegrity runs the same search on this host and on
// opts.Host, then goes critical for every enabled dimension that differs.
func CheckCustomQueryIntegrity(ctx context.Context, base ldapx.Config, opts QueryIntegrityOptions, result *Result) error {
	q := query.Query{Name: "query", Filter: opts.Filter, Attrs: opts.Attrs}
	diff, err := query.CompareHosts(ctx, q, base, opts.Host)
	if err != nil {
		return err
	}

	if diff.Failed(query.Checks{
		Checksum:    opts.Sha256Integrity,
		ObjectCount: opts.EntriesIntegrity,
		AttrCount:   opts.AttributesIntegrity,
		Bytes:       opts.BytesIntegrity,
	}) {
		result.Code.Crit()
	}

	checksumOK := uint64(0)
	if !diff.ChecksumMismatch {
		checksumOK = 1
	}

	result.Description = "query integrity across hosts"
	result.Add("object_number", PerfData{Value: Int(diff.Local.ObjectCount)})
	result.Add("bytes_size", PerfData{Value: Int(diff.Local.Bytes)})
	result.Add("attr_number", PerfData{Value: Int(diff.Local.AttrCount)})
	result.Add("object_number_compared", PerfData{Value: Int(diff.Remote.ObjectCount)})
	result.Add("bytes_size_compared", PerfData{Value: Int(diff.Remote.Bytes)})
	result.Add("attr_number_compared", PerfData{Value: Int(diff.Remote.AttrCount)})
	result.Add("checksum_ok", PerfData{Value: Int(checksumOK)})
	return nil
}

// DebugIntMetrics dumps every known integer figure for interactive use.
func DebugIntMetrics(ctx context.Context, client *ldapx.Client) (string, error) {
	monitor, err := dirsrv.ScrapeMonitor(ctx, client)
	if err != nil {
		return "", err
	}
	snmp, err := dirsrv.ScrapeSNMP(ctx, client)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("monitor:\n")
	for key, value := range monitor.IntMetrics {
		b.WriteString("  " + key + "=" + strconv.FormatUint(value, 10) + "\n")
	}
	b.WriteString("snmp:\n")
	for key, value := range snmp.IntMetrics {
		b.WriteString("  " + key + "=" + strconv.FormatInt(value, 10) + "\n")
	}
	return b.String(), nil
}
