package dirsrv

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/dirsrv-monitor/internal/ldapx"
)

const (
	attrCN          = "cn"
	attrHost        = "nsDS5ReplicaHost"
	attrRoot        = "nsDS5ReplicaRoot"
	attrRUV         = "nsds50ruv"
	attrStatus      = "nsds5replicaLastUpdateStatusJSON"
	attrUpdateStart = "nsds5replicaLastUpdateStart"
	attrUpdateEnd   = "nsds5replicaLastUpdateEnd"
	attrChangesSent = "nsds5replicaChangesSentSinceStartup"

	attrReplicaName = "nsDS5ReplicaName"

	// AttrReplicaChanges and AttrReplicaReapActive are exported because the
	// metric help strings reference the source attribute names.
	AttrReplicaChanges    = "nsds5ReplicaChangeCount"
	AttrReplicaReapActive = "nsds5replicareapactive"
)

// Agreement is one scrape of a replication agreement entry.
type Agreement struct {
	CN   string
	Host string
	Root string

	ChangesSent               []ChangesSent
	LastUpdateDurationSeconds int64

	Ruvs   []Ruv
	Status Status
}

// ScrapeAgreements reads every replication agreement under cn=config.
func ScrapeAgreements(ctx context.Context, client *ldapx.Client) ([]Agreement, error) {
	attrs := []string{
		attrCN, attrHost, attrRoot, attrRUV,
		attrUpdateStart, attrUpdateEnd, attrChangesSent, attrStatus,
	}

	entries, err := client.Search(ctx, "cn=config", ldap.ScopeWholeSubtree, "(objectClass=nsds5ReplicationAgreement)", attrs)
	if err != nil {
		return nil, err
	}

	result := make([]Agreement, 0, len(entries))
	for _, entry := range entries {
		agreement := Agreement{
			CN:   ldapx.GetAttr(entry, attrCN),
			Host: ldapx.GetAttr(entry, attrHost),
			Root: ldapx.GetAttr(entry, attrRoot),
		}

		for _, raw := range entry.Attrs[attrRUV] {
			ruv, err := ParseRUV(raw)
			if err != nil {
				return nil, err
			}
			agreement.Ruvs = append(agreement.Ruvs, ruv)
		}

		start, err := time.Parse(MonitorTimeLayout, ldapx.GetAttr(entry, attrUpdateStart))
		if err != nil {
			return nil, fmt.Errorf("agreement %s: update start: %w", agreement.CN, err)
		}
		end, err := time.Parse(MonitorTimeLayout, ldapx.GetAttr(entry, attrUpdateEnd))
		if err != nil {
			return nil, fmt.Errorf("agreement %s: update end: %w", agreement.CN, err)
		}
		agreement.LastUpdateDurationSeconds = int64(end.Sub(start).Seconds())

		agreement.ChangesSent = ParseChangesSent(ldapx.GetAttr(entry, attrChangesSent))

		status, err := ParseStatusJSON(ldapx.GetAttr(entry, attrStatus))
		if err != nil {
			return nil, fmt.Errorf("agreement %s: %w", agreement.CN, err)
		}
		agreement.Status = status

		result = append(result, agreement)
	}
	return result, nil
}

// Replica is one scrape of a local replica entry.
type Replica struct {
	Root         string
	Name         string
	ChangesCount uint64
	ReapActive   bool
}

// ScrapeReplicas reads every local replica under cn=config.
func ScrapeReplicas(ctx context.Context, client *ldapx.Client) ([]Replica, error) {
	attrs := []string{attrRoot, attrReplicaName, AttrReplicaChanges, AttrReplicaReapActive}

	entries, err := client.Search(ctx, "cn=config", ldap.ScopeWholeSubtree, "(objectClass=nsds5replica)", attrs)
	if err != nil {
		return nil, err
	}

	result := make([]Replica, 0, len(entries))
	for _, entry := range entries {
		changes, err := strconv.ParseUint(ldapx.GetAttr(entry, AttrReplicaChanges), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("replica change count: %w", err)
		}
		active, err := strconv.ParseUint(ldapx.GetAttr(entry, AttrReplicaReapActive), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("replica reap active: %w", err)
		}

		result = append(result, Replica{
			Root:         ldapx.GetAttr(entry, attrRoot),
			Name:         ldapx.GetAttr(entry, attrReplicaName),
			ChangesCount: changes,
			ReapActive:   active != 0,
		})
	}
	return result, nil
}

// ReplicationPluginVersion reads the version of the replication plugin from
// the plugin configuration.
func ReplicationPluginVersion(ctx context.Context, client *ldapx.Client) (string, error) {
	const attr = "nsslapd-pluginversion"

	entries, err := client.Search(ctx, "cn=plugins,cn=config", ldap.ScopeWholeSubtree,
		"(&(objectClass=nsslapdPlugin)(cn=*Replication*))", []string{attr})
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("could not get replication plugin entry in config")
	}

	values := entries[0].Attrs[attr]
	if len(values) == 0 {
		return "", fmt.Errorf("replication plugin version seems to be empty")
	}
	return values[0], nil
}
