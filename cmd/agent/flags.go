package agent

import (
	"github.com/spf13/cobra"

	"github.com/dirsrv-monitor/config"
)

// Flag names mirror the TOML keys so viper folds both into the same tree.
var defaultCfg = config.NewDefaultConfig()

func initLdapFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.StringP("ldap_uri", "H", defaultCfg.Ldap.URI, "Directory server URI")
	f.String("default_query_base", "", "Base DN for subtree queries; detected from the root DSE when empty")
	f.Uint32P("page_size", "P", defaultCfg.Ldap.PageSize, "Page size for paged searches")
	f.Bool("verify_certs", true, "Verify TLS certificates")
	f.StringP("bind.dn", "D", "", "Simple bind DN")
	f.StringP("bind.pass", "w", "", "Simple bind password")
}

func initLogFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("log.level", defaultCfg.Log.Level, "Log level [debug,info,warn,error]")
	f.String("log.format", defaultCfg.Log.Format, "Console log format [console,json]")
	f.String("log.path", defaultCfg.Log.Path, "Directory for rotated JSON log files; empty disables the file sink")
	f.Int("log.max_age", defaultCfg.Log.MaxAge, "Days to keep rotated log files")
}

func initDsctlFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.StringP("dsctl.instance", "I", defaultCfg.Dsctl.Instance, "Directory server instance name")
	f.DurationP("dsctl.timeout", "T", defaultCfg.Dsctl.Timeout, "Timeout for shelled-out dsctl commands; 0 means none")
}

func initExportFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.StringP("export.expose_address", "a", defaultCfg.Export.ExposeAddress, "Exporter listen address")
	f.Uint16P("export.expose_port", "p", defaultCfg.Export.ExposePort, "Exporter listen port")
	f.Duration("export.scrape_interval", defaultCfg.Export.ScrapeInterval, "Interval between scrape passes")
	f.Bool("export.scrape_flags.ldap_monitoring", defaultCfg.Export.ScrapeFlags.LdapMonitoring, "Scrape cn=monitor")
	f.Bool("export.scrape_flags.replication_status", defaultCfg.Export.ScrapeFlags.ReplicationStatus, "Scrape replication topology")
	f.Bool("export.scrape_flags.gids_info", defaultCfg.Export.ScrapeFlags.GidsInfo, "Count unresolvable primary gids")
	f.Bool("export.scrape_flags.dsctl", defaultCfg.Export.ScrapeFlags.Dsctl, "Run dsctl healthcheck")
}

func initHaproxyFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.StringP("haproxy.expose_address", "a", defaultCfg.Haproxy.ExposeAddress, "Agent-check listen address")
	f.Uint16P("haproxy.expose_port", "p", defaultCfg.Haproxy.ExposePort, "Agent-check listen port")
	f.Duration("haproxy.scrape_interval.ldap_accessibility", defaultCfg.Haproxy.ScrapeInterval.LdapAccessibility, "Interval between reachability probes")
	f.Duration("haproxy.scrape_interval.ldap_monitoring", defaultCfg.Haproxy.ScrapeInterval.LdapMonitoring, "Interval between cn=monitor probes")
	f.Duration("haproxy.scrape_interval.replication_status", defaultCfg.Haproxy.ScrapeInterval.ReplicationStatus, "Interval between replication probes")
	f.Duration("haproxy.scrape_interval.systemd_status", defaultCfg.Haproxy.ScrapeInterval.SystemdStatus, "Interval between systemd unit probes")
	f.Duration("haproxy.scrape_interval.custom_queries", defaultCfg.Haproxy.ScrapeInterval.CustomQueries, "Interval between health-check query probes")
	f.Bool("haproxy.scrape_flags.ldap_monitoring", defaultCfg.Haproxy.ScrapeFlags.LdapMonitoring, "Probe cn=monitor for the connection count")
	f.Bool("haproxy.scrape_flags.replication_status", defaultCfg.Haproxy.ScrapeFlags.ReplicationStatus, "Probe replication agreement status")
	f.Bool("haproxy.scrape_flags.systemd_status", defaultCfg.Haproxy.ScrapeFlags.SystemdStatus, "Probe the systemd unit state")
	f.StringSlice("haproxy.health_check_queries", nil, "Catalog query names to run as health probes")
}
