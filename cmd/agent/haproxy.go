package agent

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dirsrv-monitor/config"
	"github.com/dirsrv-monitor/internal/dirsrv"
	"github.com/dirsrv-monitor/internal/health"
	"github.com/dirsrv-monitor/internal/ldapx"
	"github.com/dirsrv-monitor/internal/query"
	"github.com/dirsrv-monitor/internal/server"
	"github.com/dirsrv-monitor/pkg/banner"
	"github.com/dirsrv-monitor/pkg/logger"
	"github.com/dirsrv-monitor/pkg/signal"
)

var haproxyCmd = &cobra.Command{
	Use:   "haproxy",
	Short: "Run the load-balancer agent-check daemon",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := setup(cmd)
		if err != nil {
			fatal(err)
		}
		runHaproxy(cfg)
	},
}

// probe is one background check feeding the shared health state. Unlike the
// exporter's scrapers a probe cannot fail the loop: every outcome, error
// included, becomes a state update.
type probe struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
}

func probeLoop(ctx context.Context, p probe) {
	logger.Info("health probe started",
		zap.String("probe", p.name),
		zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.fn(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func buildProbes(cfg *config.Config, state *health.State) []probe {
	intervals := cfg.Haproxy.ScrapeInterval
	flags := cfg.Haproxy.ScrapeFlags

	probes := []probe{{
		name:     "ldap_accessibility",
		interval: intervals.LdapAccessibility,
		fn: func(ctx context.Context) {
			client, err := cfg.Ldap.Connect(ctx)
			if err != nil {
				logger.Warn("directory unreachable", zap.Error(err))
				state.SetReachable(false)
				return
			}
			client.Close()
			state.SetReachable(true)
		},
	}}

	if flags.SystemdStatus {
		probes = append(probes, probe{
			name:     "systemd_status",
			interval: intervals.SystemdStatus,
			fn: func(ctx context.Context) {
				running, err := cfg.Dsctl.ServiceRunning(ctx)
				if err != nil {
					logger.Warn("systemd probe failed", zap.Error(err))
					state.SetServiceRunning(false)
					return
				}
				state.SetServiceRunning(running)
			},
		})
	} else {
		// With the probe off the service state must not hold the node down.
		state.SetServiceRunning(true)
		logger.Info("health probe disabled", zap.String("probe", "systemd_status"))
	}

	if flags.LdapMonitoring {
		probes = append(probes, probe{
			name:     "ldap_monitoring",
			interval: intervals.LdapMonitoring,
			fn: func(ctx context.Context) {
				state.SetCheck("ldap_monitoring", probeMonitor(ctx, cfg.Ldap, state))
			},
		})
	} else {
		logger.Info("health probe disabled", zap.String("probe", "ldap_monitoring"))
	}

	if flags.ReplicationStatus {
		probes = append(probes, probe{
			name:     "replication_status",
			interval: intervals.ReplicationStatus,
			fn: func(ctx context.Context) {
				state.SetCheck("replication_status", probeReplication(ctx, cfg.Ldap))
			},
		})
	} else {
		logger.Info("health probe disabled", zap.String("probe", "replication_status"))
	}

	for _, q := range resolveHealthQueries(cfg.Queries, cfg.Haproxy.HealthCheckQueries) {
		q := q
		probes = append(probes, probe{
			name:     "query " + q.Name,
			interval: intervals.CustomQueries,
			fn: func(ctx context.Context) {
				state.SetCheck(q.Name, probeQuery(ctx, cfg.Ldap, q))
			},
		})
	}

	return probes
}

// resolveHealthQueries maps the configured health-check query names onto the
// catalog. An unknown name is logged and skipped rather than failing the
// daemon.
func resolveHealthQueries(catalog []query.Query, names []string) []query.Query {
	byName := make(map[string]query.Query, len(catalog))
	for _, q := range catalog {
		byName[q.Name] = q
	}

	resolved := make([]query.Query, 0, len(names))
	for _, name := range names {
		q, ok := byName[name]
		if !ok {
			logger.Warn("health-check query not in the catalog, skipping",
				zap.String("query", name))
			continue
		}
		resolved = append(resolved, q)
	}
	return resolved
}

// probeQuery passes when the query executes cleanly against the node.
func probeQuery(ctx context.Context, ldapCfg ldapx.Config, q query.Query) bool {
	if _, err := q.Execute(ctx, ldapCfg); err != nil {
		logger.Warn("health-check query failed",
			zap.String("query", q.Name), zap.Error(err))
		return false
	}
	return true
}

// probeMonitor reads cn=monitor and feeds the connection count into the
// state. A readable monitor entry counts as a passing check.
func probeMonitor(ctx context.Context, ldapCfg ldapx.Config, state *health.State) bool {
	client, err := ldapCfg.Connect(ctx)
	if err != nil {
		logger.Warn("monitoring probe failed", zap.Error(err))
		return false
	}
	defer client.Close()

	monitor, err := dirsrv.ScrapeMonitor(ctx, client)
	if err != nil {
		logger.Warn("monitoring probe failed", zap.Error(err))
		return false
	}
	state.SetConnectionCount(monitor.IntMetrics["currentconnections"])
	return true
}

// probeReplication passes when every agreement reports a clean last status.
func probeReplication(ctx context.Context, ldapCfg ldapx.Config) bool {
	client, err := ldapCfg.Connect(ctx)
	if err != nil {
		logger.Warn("replication probe failed", zap.Error(err))
		return false
	}
	defer client.Close()

	agreements, err := dirsrv.ScrapeAgreements(ctx, client)
	if err != nil {
		logger.Warn("replication probe failed", zap.Error(err))
		return false
	}

	for _, agreement := range agreements {
		status := agreement.Status
		if status.LdapRC != 0 || status.ReplRC != 0 {
			logger.Warn("replication agreement unhealthy",
				zap.String("agreement", agreement.CN),
				zap.Int64("ldap_rc", status.LdapRC),
				zap.Int64("repl_rc", status.ReplRC),
				zap.String("message", status.Message))
			return false
		}
	}
	return true
}

func runHaproxy(cfg *config.Config) {
	banner.Print("dirsrv agent check")
	defer func() { _ = logger.Sync() }()

	state := health.NewState()
	agent := server.NewAgent(state)

	httpServer := server.NewAgentServer(cfg.HaproxyAddr(), agent, state)
	httpServer.Start()

	ctx, cancel := signal.NotifyContext(context.Background())
	defer cancel()

	probesDone := make(chan struct{})
	go func() {
		defer close(probesDone)
		runProbes(ctx, buildProbes(cfg, state))
	}()

	signal.WaitForShutdown(logger.L(), func() error {
		<-probesDone
		return httpServer.Shutdown()
	})
}

func runProbes(ctx context.Context, probes []probe) {
	done := make(chan struct{})
	for _, p := range probes {
		go func(p probe) {
			probeLoop(ctx, p)
			done <- struct{}{}
		}(p)
	}
	for range probes {
		<-done
	}
}
