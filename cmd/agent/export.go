package agent

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dirsrv-monitor/config"
	"github.com/dirsrv-monitor/internal/metrics"
	"github.com/dirsrv-monitor/internal/scrape"
	"github.com/dirsrv-monitor/internal/server"
	"github.com/dirsrv-monitor/pkg/banner"
	"github.com/dirsrv-monitor/pkg/logger"
	"github.com/dirsrv-monitor/pkg/signal"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run the Prometheus exporter daemon",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := setup(cmd)
		if err != nil {
			fatal(err)
		}
		runExport(cfg)
	},
}

func buildScheduler(cfg *config.Config, sink *metrics.Sink) (*scrape.Scheduler, error) {
	scheduler := scrape.NewScheduler(sink)
	interval := cfg.Export.ScrapeInterval
	flags := cfg.Export.ScrapeFlags

	self, err := scrape.NewSelfScraper(sink, interval)
	if err != nil {
		return nil, err
	}
	scheduler.Register("self", interval, self.Scrape)

	if flags.LdapMonitoring {
		scheduler.Register("ldap_monitoring", interval,
			scrape.NewMonitorScraper(cfg.Ldap, sink).Scrape)
	} else {
		scheduler.RegisterDisabled("ldap_monitoring")
	}

	if flags.ReplicationStatus {
		scheduler.Register("replication_status", interval,
			scrape.NewReplicationScraper(cfg.Ldap, sink).Scrape)
	} else {
		scheduler.RegisterDisabled("replication_status")
	}

	if flags.GidsInfo {
		scheduler.Register("gids_info", interval,
			scrape.NewGidsScraper(cfg.Ldap, sink).Scrape)
	} else {
		scheduler.RegisterDisabled("gids_info")
	}

	if flags.Dsctl {
		scheduler.Register("dsctl", interval,
			scrape.NewDsctlScraper(cfg.Dsctl, sink).Scrape)
	} else {
		scheduler.RegisterDisabled("dsctl")
	}

	if len(cfg.Queries) > 0 {
		scheduler.Register("custom_queries", interval,
			scrape.NewQueryScraper(cfg.Ldap, cfg.Queries, sink).Scrape)
	} else {
		scheduler.RegisterDisabled("custom_queries")
	}

	return scheduler, nil
}

func runExport(cfg *config.Config) {
	banner.Print("dirsrv exporter")
	defer func() { _ = logger.Sync() }()

	sink := metrics.NewSink()
	scheduler, err := buildScheduler(cfg, sink)
	if err != nil {
		fatal(err)
	}

	httpServer := server.NewMetricsServer(cfg.ExportAddr(), sink.Registry())
	httpServer.Start()

	ctx, cancel := signal.NotifyContext(context.Background())
	defer cancel()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	// The signal cancels ctx and unblocks WaitForShutdown at the same time;
	// the scrape loops drain before the HTTP surface goes away.
	signal.WaitForShutdown(logger.L(), func() error {
		<-schedulerDone
		return httpServer.Shutdown()
	})
}
