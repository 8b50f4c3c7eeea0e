package scrape

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dirsrv-monitor/internal/dirsrv"
	"github.com/dirsrv-monitor/internal/ldapx"
	"github.com/dirsrv-monitor/internal/metrics"
)

// ReplicationScraper reads the replication topology under cn=config: plugin
// version, local replicas and every agreement with its RUV, status and
// change counters. Agreements that disappear between passes are zeroed once
// with their last known labels, then forgotten.
type ReplicationScraper struct {
	cfg  ldapx.Config
	sink *metrics.Sink

	// known maps an agreement cn to the labels it was last emitted with, so
	// a removed agreement can be zeroed on the exact series it occupied.
	known map[string]prometheus.Labels
}

func NewReplicationScraper(cfg ldapx.Config, sink *metrics.Sink) *ReplicationScraper {
	sink.Describe("replication_agreement", "Replication agreement presence; removed agreements drop to 0 once")
	sink.Describe("replication_agreement_ruv", "Replica id per update-vector entry; -1 for the generation marker")
	sink.Describe("replication_agreement_last_update_duration_seconds", "Wall time of the last replication update")
	sink.Describe("replication_agreement_last_status_color", "Unix time of the last agreement status change")
	sink.Describe("replication_replica_replica_reap_active", "LDAP attribute: "+dirsrv.AttrReplicaReapActive)
	sink.Describe("replication_replica_change_count", "LDAP attribute: "+dirsrv.AttrReplicaChanges)
	return &ReplicationScraper{
		cfg:   cfg,
		sink:  sink,
		known: make(map[string]prometheus.Labels),
	}
}

func (r *ReplicationScraper) emitAgreement(a dirsrv.Agreement) {
	labels := prometheus.Labels{"agreement": a.CN, "host": a.Host, "root": a.Root}
	r.sink.Set("replication_agreement", labels, 1)
	r.known[a.CN] = labels

	for _, ruv := range a.Ruvs {
		ruvLabels := prometheus.Labels{"agreement": a.CN, "host": a.Host, "root": a.Root}
		for k, v := range ruv.Labels() {
			ruvLabels[k] = v
		}
		r.sink.Set("replication_agreement_ruv", ruvLabels, float64(ruv.MetricReplicaID()))
	}

	r.sink.Set("replication_agreement_last_update_duration_seconds", labels, float64(a.LastUpdateDurationSeconds))

	for _, change := range a.ChangesSent {
		changeLabels := prometheus.Labels{
			"agreement":  a.CN,
			"host":       a.Host,
			"root":       a.Root,
			"replica_id": strconv.FormatInt(change.ReplicaID, 10),
		}
		r.sink.Set("replication_agreement_changes_replayed", changeLabels, float64(change.ChangesReplayed))
		r.sink.Set("replication_agreement_changes_skipped", changeLabels, float64(change.ChangesSkipped))
	}

	statusLabels := prometheus.Labels{
		"agreement": a.CN,
		"host":      a.Host,
		"root":      a.Root,
		"state":     a.Status.State,
	}
	r.sink.Set("replication_agreement_ldap_status", statusLabels, float64(a.Status.LdapRC))
	r.sink.Set("replication_agreement_repl_status", statusLabels, float64(a.Status.ReplRC))
	r.sink.Set("replication_agreement_last_status_color", statusLabels, float64(a.Status.Date.Unix()))
}

func (r *ReplicationScraper) emitAgreements(agreements []dirsrv.Agreement) {
	active := make(map[string]struct{}, len(agreements))
	for _, a := range agreements {
		active[a.CN] = struct{}{}
	}

	// Zero removed agreements before the current ones are asserted, then
	// drop them so the zero is emitted exactly once.
	for cn, labels := range r.known {
		if _, ok := active[cn]; !ok {
			r.sink.Set("replication_agreement", labels, 0)
			delete(r.known, cn)
		}
	}

	for _, a := range agreements {
		r.emitAgreement(a)
	}
}

func (r *ReplicationScraper) emitReplicas(replicas []dirsrv.Replica) {
	for _, replica := range replicas {
		labels := prometheus.Labels{"replica_root": replica.Root, "replica_name": replica.Name}

		reap := 0.0
		if replica.ReapActive {
			reap = 1
		}
		r.sink.Set("replication_replica_replica_reap_active", labels, reap)
		r.sink.Set("replication_replica_change_count", labels, float64(replica.ChangesCount))
	}
}

// Scrape performs one replication pass on a single connection.
func (r *ReplicationScraper) Scrape(ctx context.Context) error {
	client, err := r.cfg.Connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	version, err := dirsrv.ReplicationPluginVersion(ctx, client)
	if err != nil {
		return err
	}
	r.sink.Set("replication_plugin_version", prometheus.Labels{"version": version}, 1)

	replicas, err := dirsrv.ScrapeReplicas(ctx, client)
	if err != nil {
		return err
	}
	r.emitReplicas(replicas)

	agreements, err := dirsrv.ScrapeAgreements(ctx, client)
	if err != nil {
		return err
	}
	r.emitAgreements(agreements)

	return nil
}
