package agent

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dirsrv-monitor/config"
	"github.com/dirsrv-monitor/internal/ldapx"
	"github.com/dirsrv-monitor/internal/nagios"
	"github.com/dirsrv-monitor/pkg/logger"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "One-shot plugin checks with Nagios-style output and exit codes",
}

// checkSetup is setup() without the base detection and with quiet logging,
// so the status line on stdout stays the only output unless the operator
// asked for more.
func checkSetup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithCli(cmd)
	if err != nil {
		return nil, err
	}

	if !cmd.Flags().Changed("log.level") {
		cfg.Log.Level = "error"
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func ensureBase(ctx context.Context, cfg *config.Config) error {
	if cfg.Ldap.DefaultBase != "" {
		return nil
	}
	base, err := ldapx.DetectBase(ctx, cfg.Ldap)
	if err != nil {
		return fmt.Errorf("detect default base: %w", err)
	}
	cfg.Ldap.DefaultBase = base
	return nil
}

// runCheck drives one plugin invocation. Any error, connection failures
// included, surfaces as UNKNOWN with the error text as the description; the
// process always exits through the result.
func runCheck(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, result *nagios.Result) error) {
	result := nagios.NewResult()

	cfg, err := checkSetup(cmd)
	if err == nil {
		err = fn(cmd.Context(), cfg, result)
	}
	if err != nil {
		result.Code = nagios.Unknown
		result.Description = err.Error()
	}
	result.ExitWithMessage()
}

func withClient(ctx context.Context, cfg *config.Config, fn func(*ldapx.Client) error) error {
	client, err := cfg.Ldap.Connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

// optUint returns the flag value only when the operator actually set it; an
// unset threshold disables its comparison.
func optUint(cmd *cobra.Command, name string) *uint64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetUint64(name)
	return &v
}

func optFloat(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}

var intMetricCmd = &cobra.Command{
	Use:   "int-metric",
	Short: "Check one integer figure from cn=monitor or cn=snmp,cn=monitor",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			source, _ := cmd.Flags().GetString("source")
			metric, _ := cmd.Flags().GetString("metric")
			revert, _ := cmd.Flags().GetBool("revert")
			return withClient(ctx, cfg, func(client *ldapx.Client) error {
				return nagios.CheckIntMetric(ctx, client, nagios.IntMetricOptions{
					Source: source,
					Metric: metric,
					Warn:   optUint(cmd, "warning"),
					Crit:   optUint(cmd, "critical"),
					Revert: revert,
				}, result)
			})
		})
	},
}

var listMetricsCmd = &cobra.Command{
	Use:   "list-metrics",
	Short: "Dump every integer figure usable with int-metric",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			return withClient(ctx, cfg, func(client *ldapx.Client) error {
				dump, err := nagios.DebugIntMetrics(ctx, client)
				if err != nil {
					return err
				}
				fmt.Print(dump)
				result.Description = "available metrics listed above"
				return nil
			})
		})
	},
}

var agreementStatusCmd = &cobra.Command{
	Use:   "agreement-status",
	Short: "Check every replication agreement's last status and update vector",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			noRUV, _ := cmd.Flags().GetBool("no-ruv")
			return withClient(ctx, cfg, func(client *ldapx.Client) error {
				return nagios.CheckAgreementStatus(ctx, client, nagios.AgreementStatusOptions{NoRUV: noRUV}, result)
			})
		})
	},
}

var agreementSkippedCmd = &cobra.Command{
	Use:   "agreement-skipped",
	Short: "Check entries skipped by replication peers",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			return withClient(ctx, cfg, func(client *ldapx.Client) error {
				return nagios.CheckAgreementSkipped(ctx, client,
					optUint(cmd, "warning"), optUint(cmd, "critical"), result)
			})
		})
	},
}

var agreementDurationCmd = &cobra.Command{
	Use:   "agreement-duration",
	Short: "Check the duration of the last replication update cycle",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			return withClient(ctx, cfg, func(client *ldapx.Client) error {
				return nagios.CheckAgreementDuration(ctx, client,
					optUint(cmd, "warning"), optUint(cmd, "critical"), result)
			})
		})
	},
}

var missingGidsCmd = &cobra.Command{
	Use:   "missing-gids",
	Short: "Check for account primary gids without a matching group",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			if err := ensureBase(ctx, cfg); err != nil {
				return err
			}
			return nagios.CheckMissingGids(ctx, cfg.Ldap, nagios.MissingGidsOptions{
				WarnGroups: optUint(cmd, "warning-groups"),
				CritGroups: optUint(cmd, "critical-groups"),
				WarnUsers:  optUint(cmd, "warning-users"),
				CritUsers:  optUint(cmd, "critical-users"),
			}, result)
		})
	},
}

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Check the live connection count, optionally filtered by DN or IP",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			dns, _ := cmd.Flags().GetStringSlice("dn")
			ips, _ := cmd.Flags().GetStringSlice("ip")
			excludeDNs, _ := cmd.Flags().GetStringSlice("exclude-dn")
			excludeIPs, _ := cmd.Flags().GetStringSlice("exclude-ip")
			skipIntegrity, _ := cmd.Flags().GetBool("skip-integrity")
			return withClient(ctx, cfg, func(client *ldapx.Client) error {
				return nagios.CheckConnections(ctx, client, nagios.ConnectionsOptions{
					Warn:          optUint(cmd, "warning"),
					Crit:          optUint(cmd, "critical"),
					DNs:           dns,
					IPs:           ips,
					ExcludeDNs:    excludeDNs,
					ExcludeIPs:    excludeIPs,
					SkipIntegrity: skipIntegrity,
				}, result)
			})
		})
	},
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Check the SNMP error counters, per counter and summed",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			names, _ := cmd.Flags().GetStringSlice("name")
			return withClient(ctx, cfg, func(client *ldapx.Client) error {
				return nagios.CheckErrors(ctx, client, nagios.ErrorsOptions{
					WarnSum: optUint(cmd, "warning-sum"),
					CritSum: optUint(cmd, "critical-sum"),
					Warn:    optUint(cmd, "warning"),
					Crit:    optUint(cmd, "critical"),
					Names:   names,
				}, result)
			})
		})
	},
}

var recentRestartCmd = &cobra.Command{
	Use:   "recent-restart",
	Short: "Warn when the directory server restarted recently",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			return withClient(ctx, cfg, func(client *ldapx.Client) error {
				return nagios.CheckRecentRestart(ctx, client, optUint(cmd, "warning-if-less-than"), result)
			})
		})
	},
}

var diskspaceCmd = &cobra.Command{
	Use:   "diskspace",
	Short: "Check the partitions the directory server monitors itself",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			partitions, _ := cmd.Flags().GetStringSlice("partition")
			return withClient(ctx, cfg, func(client *ldapx.Client) error {
				return nagios.CheckDiskspace(ctx, client, nagios.DiskspaceOptions{
					WarnPercentUsed:       optFloat(cmd, "warning-percent-used"),
					CritPercentUsed:       optFloat(cmd, "critical-percent-used"),
					WarnAbsoluteAvailable: optUint(cmd, "warning-available"),
					CritAbsoluteAvailable: optUint(cmd, "critical-available"),
					Partitions:            partitions,
				}, result)
			})
		})
	},
}

var cliHealthcheckCmd = &cobra.Command{
	Use:   "cli-healthcheck",
	Short: "Check the number of dsctl healthcheck findings per severity",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			return nagios.CheckCliHealthcheck(ctx, cfg.Dsctl, nagios.CliHealthcheckOptions{
				Warn:       optUint(cmd, "warning"),
				Crit:       optUint(cmd, "critical"),
				WarnLow:    optUint(cmd, "warning-low"),
				CritLow:    optUint(cmd, "critical-low"),
				WarnMedium: optUint(cmd, "warning-medium"),
				CritMedium: optUint(cmd, "critical-medium"),
				WarnHigh:   optUint(cmd, "warning-high"),
				CritHigh:   optUint(cmd, "critical-high"),
			}, result)
		})
	},
}

var customQueryTimeCmd = &cobra.Command{
	Use:   "custom-query-time",
	Short: "Check how long a configured search takes",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			if err := ensureBase(ctx, cfg); err != nil {
				return err
			}
			filter, _ := cmd.Flags().GetString("filter")
			return nagios.CheckCustomQueryTime(ctx, cfg.Ldap, filter,
				optUint(cmd, "warning"), optUint(cmd, "critical"), result)
		})
	},
}

var customQueryIntegrityCmd = &cobra.Command{
	Use:   "custom-query-integrity",
	Short: "Compare the same search between this host and another one",
	Run: func(cmd *cobra.Command, args []string) {
		runCheck(cmd, func(ctx context.Context, cfg *config.Config, result *nagios.Result) error {
			if err := ensureBase(ctx, cfg); err != nil {
				return err
			}
			host, _ := cmd.Flags().GetString("compared-host")
			filter, _ := cmd.Flags().GetString("filter")
			attrs, _ := cmd.Flags().GetStringSlice("attrs")
			sha, _ := cmd.Flags().GetBool("sha256-integrity")
			entries, _ := cmd.Flags().GetBool("entries-integrity")
			attributes, _ := cmd.Flags().GetBool("attributes-integrity")
			bytes, _ := cmd.Flags().GetBool("bytes-integrity")
			return nagios.CheckCustomQueryIntegrity(ctx, cfg.Ldap, nagios.QueryIntegrityOptions{
				Host:                host,
				Filter:              filter,
				Attrs:               attrs,
				Sha256Integrity:     sha,
				EntriesIntegrity:    entries,
				AttributesIntegrity: attributes,
				BytesIntegrity:      bytes,
			}, result)
		})
	},
}

func init() {
	intMetricCmd.Flags().String("source", "monitor", "Metric source [monitor,snmp]")
	intMetricCmd.Flags().String("metric", "", "Metric name; see list-metrics")
	intMetricCmd.Flags().Uint64("warning", 0, "Warning threshold")
	intMetricCmd.Flags().Uint64("critical", 0, "Critical threshold")
	intMetricCmd.Flags().Bool("revert", false, "Alert on values at or below the thresholds instead of above")
	_ = intMetricCmd.MarkFlagRequired("metric")

	agreementStatusCmd.Flags().Bool("no-ruv", false, "Skip the per-peer update-vector inspection")

	agreementSkippedCmd.Flags().Uint64("warning", 0, "Warning threshold on skipped entries per peer")
	agreementSkippedCmd.Flags().Uint64("critical", 0, "Critical threshold on skipped entries per peer")

	agreementDurationCmd.Flags().Uint64("warning", 0, "Warning threshold in seconds")
	agreementDurationCmd.Flags().Uint64("critical", 0, "Critical threshold in seconds")

	missingGidsCmd.Flags().Uint64("warning-groups", 0, "Warning threshold on missing groups")
	missingGidsCmd.Flags().Uint64("critical-groups", 0, "Critical threshold on missing groups")
	missingGidsCmd.Flags().Uint64("warning-users", 0, "Warning threshold on affected accounts")
	missingGidsCmd.Flags().Uint64("critical-users", 0, "Critical threshold on affected accounts")

	connectionsCmd.Flags().Uint64("warning", 0, "Warning threshold on matched connections")
	connectionsCmd.Flags().Uint64("critical", 0, "Critical threshold on matched connections")
	connectionsCmd.Flags().StringSlice("dn", nil, "Count only connections bound as one of these DNs")
	connectionsCmd.Flags().StringSlice("ip", nil, "Count only connections from one of these IPs")
	connectionsCmd.Flags().StringSlice("exclude-dn", nil, "Ignore connections bound as one of these DNs")
	connectionsCmd.Flags().StringSlice("exclude-ip", nil, "Ignore connections from one of these IPs")
	connectionsCmd.Flags().Bool("skip-integrity", false, "Skip the cross-check of the three reported connection figures")

	errorsCmd.Flags().Uint64("warning", 0, "Warning threshold per error counter")
	errorsCmd.Flags().Uint64("critical", 0, "Critical threshold per error counter")
	errorsCmd.Flags().Uint64("warning-sum", 0, "Warning threshold on the summed counters")
	errorsCmd.Flags().Uint64("critical-sum", 0, "Critical threshold on the summed counters")
	errorsCmd.Flags().StringSlice("name", nil, "Restrict to these counter names")

	recentRestartCmd.Flags().Uint64("warning-if-less-than", 0, "Warn when uptime is at most this many seconds")

	diskspaceCmd.Flags().Float64("warning-percent-used", 0, "Warning threshold on used percentage")
	diskspaceCmd.Flags().Float64("critical-percent-used", 0, "Critical threshold on used percentage")
	diskspaceCmd.Flags().Uint64("warning-available", 0, "Warning threshold on available bytes")
	diskspaceCmd.Flags().Uint64("critical-available", 0, "Critical threshold on available bytes")
	diskspaceCmd.Flags().StringSlice("partition", nil, "Restrict to these partitions")

	cliHealthcheckCmd.Flags().Uint64("warning", 0, "Warning threshold on all findings")
	cliHealthcheckCmd.Flags().Uint64("critical", 0, "Critical threshold on all findings")
	cliHealthcheckCmd.Flags().Uint64("warning-low", 0, "Warning threshold on low-severity findings")
	cliHealthcheckCmd.Flags().Uint64("critical-low", 0, "Critical threshold on low-severity findings")
	cliHealthcheckCmd.Flags().Uint64("warning-medium", 0, "Warning threshold on medium-severity findings")
	cliHealthcheckCmd.Flags().Uint64("critical-medium", 0, "Critical threshold on medium-severity findings")
	cliHealthcheckCmd.Flags().Uint64("warning-high", 0, "Warning threshold on high-severity findings")
	cliHealthcheckCmd.Flags().Uint64("critical-high", 0, "Critical threshold on high-severity findings")

	customQueryTimeCmd.Flags().String("filter", "(objectClass=*)", "Search filter")
	customQueryTimeCmd.Flags().Uint64("warning", 0, "Warning threshold in milliseconds")
	customQueryTimeCmd.Flags().Uint64("critical", 0, "Critical threshold in milliseconds")

	customQueryIntegrityCmd.Flags().String("compared-host", "", "URI of the host to compare against")
	customQueryIntegrityCmd.Flags().String("filter", "(objectClass=*)", "Search filter")
	customQueryIntegrityCmd.Flags().StringSlice("attrs", nil, "Attributes to request; empty means all")
	customQueryIntegrityCmd.Flags().Bool("sha256-integrity", false, "Enforce matching content checksums")
	customQueryIntegrityCmd.Flags().Bool("entries-integrity", false, "Enforce matching entry counts")
	customQueryIntegrityCmd.Flags().Bool("attributes-integrity", false, "Enforce matching attribute counts")
	customQueryIntegrityCmd.Flags().Bool("bytes-integrity", false, "Enforce matching payload sizes")
	_ = customQueryIntegrityCmd.MarkFlagRequired("compared-host")

	checkCmd.AddCommand(
		intMetricCmd,
		listMetricsCmd,
		agreementStatusCmd,
		agreementSkippedCmd,
		agreementDurationCmd,
		missingGidsCmd,
		connectionsCmd,
		errorsCmd,
		recentRestartCmd,
		diskspaceCmd,
		cliHealthcheckCmd,
		customQueryIntegrityCmd,
		customQueryTimeCmd,
	)
}
