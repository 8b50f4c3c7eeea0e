// Package dirsrv decodes the operational attributes a 389-DS compatible
// directory exposes under cn=monitor and cn=config into typed snapshots.
package dirsrv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/dirsrv-monitor/internal/ldapx"
)

// MonitorTimeLayout is the generalized-time format of cn=monitor date
// attributes.
const MonitorTimeLayout = "20060102150405Z"

// snmpIntAttrs is the allow-list of integer counters under
// cn=snmp,cn=monitor. Attributes outside the list are ignored so newer
// servers do not break older monitors.
var snmpIntAttrs = []string{
	"anonymousbinds",
	"unauthbinds",
	"simpleauthbinds",
	"strongauthbinds",
	"bindsecurityerrors",
	"inops",
	"readops",
	"compareops",
	"addentryops",
	"removeentryops",
	"modifyentryops",
	"modifyrdnops",
	"listops",
	"searchops",
	"onelevelsearchops",
	"wholesubtreesearchops",
	"referrals",
	"chainings",
	"securityerrors",
	"errors",
	"connections",
	"connectionseq",
	"connectionsinmaxthreads",
	"connectionsmaxthreadscount",
	"bytesrecv",
	"bytessent",
	"entriesreturned",
	"referralsreturned",
	"supplierentries",
	"copyentries",
	"cacheentries",
	"cachehits",
	"consumerhits",
}

var rootIntAttrs = []string{
	"threads",
	"currentconnections",
	"totalconnections",
	"currentconnectionsatmaxthreads",
	"maxthreadsperconnhits",
	"dtablesize",
	"readwaiters",
	"opsinitiated",
	"opscompleted",
	"entriessent",
	"bytessent",
	"nbackends",
}

var rootDateAttrs = []string{"currenttime", "starttime"}

// DiskIntKeys are the per-partition figures reported in the dsdisk blob.
var DiskIntKeys = []string{"used", "available", "size", "use%"}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Connection is one live client connection from the cn=monitor connection
// attribute.
type Connection struct {
	DN string
	IP string
}

// Monitor is one scrape of the cn=monitor root entry.
type Monitor struct {
	Version     string
	Connections []Connection
	IntMetrics  map[string]uint64
	DateMetrics map[string]time.Time
}

// GroupConnectionsByDN counts live connections per bind DN.
func (m *Monitor) GroupConnectionsByDN() map[string]uint64 {
	out := make(map[string]uint64)
	for _, c := range m.Connections {
		out[c.DN]++
	}
	return out
}

// GroupConnectionsByIP counts live connections per client IP.
func (m *Monitor) GroupConnectionsByIP() map[string]uint64 {
	out := make(map[string]uint64)
	for _, c := range m.Connections {
		out[c.IP]++
	}
	return out
}

// parseConnection splits one colon-separated connection descriptor. The bind
// DN sits in field 5 and the client IP (prefixed "ip=") in field 10.
func parseConnection(raw string) Connection {
	fields := strings.Split(raw, ":")
	dn := ldapx.AttrUnknown
	if len(fields) > 5 {
		dn = fields[5]
	}
	ip := ldapx.AttrUnknown
	if len(fields) > 10 {
		ip = strings.Replace(fields[10], "ip=", "", 1)
	}
	return Connection{DN: dn, IP: ip}
}

// ScrapeMonitor reads the cn=monitor root entry.
func ScrapeMonitor(ctx context.Context, client *ldapx.Client) (*Monitor, error) {
	attrs := []string{"version", "connection"}
	attrs = append(attrs, rootIntAttrs...)
	attrs = append(attrs, rootDateAttrs...)

	entries, err := client.Search(ctx, "cn=monitor", ldap.ScopeBaseObject, "(objectClass=top)", attrs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("unable to get root monitor metrics")
	}

	result := &Monitor{
		IntMetrics:  make(map[string]uint64),
		DateMetrics: make(map[string]time.Time),
	}

	for attr, values := range entries[0].Attrs {
		switch {
		case attr == "version":
			if len(values) > 0 {
				result.Version = values[0]
			}
		case attr == "connection":
			for _, raw := range values {
				result.Connections = append(result.Connections, parseConnection(raw))
			}
		case contains(rootDateAttrs, attr):
			if len(values) > 0 {
				t, err := time.Parse(MonitorTimeLayout, values[0])
				if err != nil {
					return nil, fmt.Errorf("monitor attribute %s=%q: %w", attr, values[0], err)
				}
				result.DateMetrics[attr] = t
			}
		case contains(rootIntAttrs, attr):
			if len(values) > 0 {
				v, err := strconv.ParseUint(values[0], 10, 64)
				if err != nil {
					return nil, fmt.Errorf("monitor attribute %s=%q: %w", attr, values[0], err)
				}
				result.IntMetrics[attr] = v
			}
		}
	}

	return result, nil
}

// Partition holds the integer figures for one disk partition.
type Partition struct {
	IntMetrics map[string]uint64
}

// Disk is one scrape of cn=disk space,cn=monitor.
type Disk struct {
	Partitions map[string]Partition
}

// ScrapeDisk reads the dsdisk attribute, one logfmt blob per partition.
func ScrapeDisk(ctx context.Context, client *ldapx.Client) (*Disk, error) {
	entries, err := client.Search(ctx, "cn=disk space,cn=monitor", ldap.ScopeBaseObject, "(objectClass=top)", []string{"dsdisk"})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("unable to get disk metrics")
	}

	result := &Disk{Partitions: make(map[string]Partition)}

	for _, values := range entries[0].Attrs {
		for _, raw := range values {
			pairs := parseLogfmt(raw)
			name, ok := pairs["partition"]
			if !ok {
				continue
			}

			partition := Partition{IntMetrics: make(map[string]uint64, len(DiskIntKeys))}
			for _, key := range DiskIntKeys {
				// Missing or garbled figures default to zero; a partition
				// line without numbers is still worth the partition label.
				v, _ := strconv.ParseUint(pairs[key], 10, 64)
				partition.IntMetrics[key] = v
			}
			result.Partitions[name] = partition
		}
	}

	return result, nil
}

// SNMP is one scrape of the cn=snmp,cn=monitor counters.
type SNMP struct {
	IntMetrics map[string]int64
}

// ScrapeSNMP reads the SNMP-style operation counters.
func ScrapeSNMP(ctx context.Context, client *ldapx.Client) (*SNMP, error) {
	entries, err := client.Search(ctx, "cn=snmp,cn=monitor", ldap.ScopeBaseObject, "(objectClass=top)", snmpIntAttrs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("unable to get snmp metrics")
	}

	result := &SNMP{IntMetrics: make(map[string]int64)}
	for attr, values := range entries[0].Attrs {
		if len(values) == 0 {
			continue
		}
		// Unparsable counters degrade to zero rather than failing the
		// whole scrape.
		v, _ := strconv.ParseInt(values[0], 10, 64)
		result.IntMetrics[attr] = v
	}
	return result, nil
}
